// Package crypto implements the cryptographic primitives backing the
// security pipeline: authenticated symmetric encryption, hashing, HMAC,
// key derivation, and secure random material.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/aegis-desktop/aegis/internal/shared"
)

// KeySize is the master key length in bytes (AES-256).
const KeySize = 32

// Service holds the process master key and exposes pure cryptographic
// operations over it. Key material lives for the process lifetime; in
// production deployments it is supplied through configuration from a
// managed secret store.
type Service struct {
	key []byte
}

// NewService constructs a Service. When key is empty a fresh random master
// key is generated; otherwise key must be exactly KeySize bytes.
func NewService(key []byte) (*Service, error) {
	if len(key) == 0 {
		key = make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("crypto: generate master key: %w", shared.ErrInternal)
		}
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: master key must be %d bytes, got %d", KeySize, len(key))
	}
	s := &Service{key: make([]byte, KeySize)}
	copy(s.key, key)
	return s, nil
}

// Encrypt seals data with AES-256-GCM. The random nonce is prepended to
// the returned ciphertext. Empty input is valid and round-trips.
func (s *Service) Encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: encrypt: %w", shared.ErrInternal)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: encrypt: %w", shared.ErrInternal)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", shared.ErrInternal)
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. Tampered or truncated
// input fails; there is no fallback path.
func (s *Service) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", shared.ErrInternal)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", shared.ErrInternal)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: authentication failed")
	}
	return plain, nil
}

// Hash digests data with the named algorithm: sha256, sha384, or sha512.
func (s *Service) Hash(data []byte, algorithm string) ([]byte, error) {
	var h hash.Hash
	switch algorithm {
	case "sha256", "":
		h = sha256.New()
	case "sha384":
		h = sha512.New384()
	case "sha512":
		h = sha512.New()
	default:
		return nil, fmt.Errorf("crypto: unsupported hash algorithm %q", algorithm)
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// HMAC computes an HMAC-SHA256 digest of data under key. When key is nil
// the process master key is used.
func (s *Service) HMAC(data, key []byte) []byte {
	if key == nil {
		key = s.key
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyHMAC reports whether digest matches HMAC(data, key) in constant time.
func (s *Service) VerifyHMAC(data, key, digest []byte) bool {
	return hmac.Equal(s.HMAC(data, key), digest)
}

// DeriveKey stretches password with PBKDF2-SHA256 into a 32-byte key.
func (s *Service) DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// RandomBytes returns n cryptographically secure random bytes.
func (s *Service) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: random: %w", shared.ErrInternal)
	}
	return b, nil
}

// RandomToken returns a URL-safe random token built from n random bytes.
// Used for API key secrets and correlation IDs.
func (s *Service) RandomToken(n int) (string, error) {
	b, err := s.RandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
