package crypto

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(nil)
	require.NoError(t, err)
	return svc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := newTestService(t)

	payloads := [][]byte{
		nil,
		{},
		[]byte("a"),
		[]byte("the quick brown fox"),
		bytes.Repeat([]byte{0x00, 0xff}, 4096),
	}
	for _, payload := range payloads {
		sealed, err := svc.Encrypt(payload)
		require.NoError(t, err)

		plain, err := svc.Decrypt(sealed)
		require.NoError(t, err)
		require.True(t, bytes.Equal(payload, plain), "round trip mismatch for %d bytes", len(payload))
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	svc := newTestService(t)

	sealed, err := svc.Encrypt([]byte("sensitive"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = svc.Decrypt(sealed)
	require.Error(t, err)
}

func TestDecryptRejectsShortInput(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Decrypt([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestNewServiceRejectsBadKeyLength(t *testing.T) {
	_, err := NewService([]byte("too-short"))
	require.Error(t, err)
}

func TestHashAlgorithms(t *testing.T) {
	svc := newTestService(t)

	digest, err := svc.Hash([]byte("data"), "sha256")
	require.NoError(t, err)
	want := sha256.Sum256([]byte("data"))
	require.Equal(t, want[:], digest)

	for algo, size := range map[string]int{"sha256": 32, "sha384": 48, "sha512": 64} {
		d, err := svc.Hash([]byte("data"), algo)
		require.NoError(t, err)
		require.Len(t, d, size)
	}

	_, err = svc.Hash([]byte("data"), "md5")
	require.Error(t, err)
}

func TestHMACVerify(t *testing.T) {
	svc := newTestService(t)

	key := []byte("hmac-key")
	digest := svc.HMAC([]byte("payload"), key)
	require.True(t, svc.VerifyHMAC([]byte("payload"), key, digest))
	require.False(t, svc.VerifyHMAC([]byte("other"), key, digest))
}

func TestDeriveKeyDeterministic(t *testing.T) {
	svc := newTestService(t)

	k1 := svc.DeriveKey([]byte("password"), []byte("salt"), 1000)
	k2 := svc.DeriveKey([]byte("password"), []byte("salt"), 1000)
	k3 := svc.DeriveKey([]byte("password"), []byte("other"), 1000)

	require.Len(t, k1, KeySize)
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}

func TestRandomToken(t *testing.T) {
	svc := newTestService(t)

	a, err := svc.RandomToken(32)
	require.NoError(t, err)
	b, err := svc.RandomToken(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.NotEmpty(t, a)
}
