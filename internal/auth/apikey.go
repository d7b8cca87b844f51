package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-desktop/aegis/internal/shared"
)

// IssueAPIKey mints a new key for userID with the given permission snapshot
// and per-minute rate budget. The opaque secret is returned exactly once;
// only its hash is stored.
func (s *Service) IssueAPIKey(ctx context.Context, userID string, permissions []string, rateLimit int) (secret string, key *APIKey, err error) {
	secret, err = s.cryptoSvc.RandomToken(32)
	if err != nil {
		return "", nil, fmt.Errorf("auth: issue api key: %w", err)
	}
	hash := s.hashSecret(secret)
	key = &APIKey{
		ID:           uuid.NewString(),
		UserID:       userID,
		Permissions:  append([]string(nil), permissions...),
		RateLimit:    rateLimit,
		CreatedAt:    time.Now().UTC(),
		Active:       true,
		hashedSecret: hash,
	}

	s.mu.Lock()
	s.keys[hash] = key
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("api key issued", "key_id", key.ID, "user_id", userID)
	}
	return secret, key, nil
}

// ValidateAPIKey hashes the presented secret and looks up its metadata.
// Unknown or inactive keys fail closed. On success the key's last-used
// timestamp is advanced and a copy of the metadata is returned.
func (s *Service) ValidateAPIKey(ctx context.Context, secret string) (*APIKey, error) {
	hash := s.hashSecret(secret)

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[hash]
	if !ok {
		return nil, fmt.Errorf("%w: unknown api key", shared.ErrAuthenticationFailed)
	}
	if !key.Active {
		return nil, fmt.Errorf("%w: api key revoked", shared.ErrAuthenticationFailed)
	}
	key.LastUsedAt = time.Now().UTC()

	out := *key
	out.Permissions = append([]string(nil), key.Permissions...)
	return &out, nil
}

// RevokeAPIKey clears the active flag for the key with the given ID.
func (s *Service) RevokeAPIKey(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.keys {
		if key.ID == keyID {
			key.Active = false
			if s.logger != nil {
				s.logger.Info("api key revoked", "key_id", keyID, "user_id", key.UserID)
			}
			return nil
		}
	}
	return fmt.Errorf("auth: api key %s: %w", keyID, shared.ErrNotFound)
}

func (s *Service) hashSecret(secret string) string {
	digest, _ := s.cryptoSvc.Hash([]byte(secret), "sha256")
	return hex.EncodeToString(digest)
}
