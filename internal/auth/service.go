// Package auth implements the authentication framework: API key issuance
// and validation, the signed access/refresh token lifecycle, and the
// consecutive-failure lockout policy. Request-level rate limiting for
// authentication attempts belongs to the gateway, not here.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-desktop/aegis/internal/crypto"
	"github.com/aegis-desktop/aegis/internal/shared"
)

// Config carries the externally tunable authentication parameters.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	MaxFailedLogins int
	LockoutDuration time.Duration
	Issuer          string
	Audience        string
}

// Service owns credential state: stored API key hashes, interactive
// credentials, and the lockout tracker. All state is process-local.
type Service struct {
	cfg        Config
	cryptoSvc  *crypto.Service
	logger     *slog.Logger
	signingKey []byte
	lockouts   *lockoutTracker

	mu    sync.RWMutex
	keys  map[string]*APIKey     // keyed by secret hash
	creds map[string]*Credential // keyed by username
}

// NewService constructs a Service. The token signing key is derived from
// the crypto service's random material once per process.
func NewService(cfg Config, cryptoSvc *crypto.Service, logger *slog.Logger) (*Service, error) {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxFailedLogins <= 0 {
		cfg.MaxFailedLogins = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "aegis"
	}
	if cfg.Audience == "" {
		cfg.Audience = "aegis-desktop"
	}
	signingKey, err := cryptoSvc.RandomBytes(crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("auth: signing key: %w", err)
	}
	return &Service{
		cfg:        cfg,
		cryptoSvc:  cryptoSvc,
		logger:     logger,
		signingKey: signingKey,
		lockouts:   newLockoutTracker(cfg.MaxFailedLogins, cfg.LockoutDuration),
		keys:       make(map[string]*APIKey),
		creds:      make(map[string]*Credential),
	}, nil
}

// RegisterCredential stores an interactive login credential. The password
// is bcrypt-hashed before storage.
func (s *Service) RegisterCredential(userID, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", shared.ErrInternal)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creds[username]; exists {
		return fmt.Errorf("auth: username %q already registered", username)
	}
	s.creds[username] = &Credential{
		UserID:       userID,
		Username:     username,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	return nil
}

// AuthenticatePassword validates username/password credentials. Every
// failure path returns the same taxonomy error so callers cannot probe for
// which part was wrong, and counts toward the identifier's lockout.
func (s *Service) AuthenticatePassword(ctx context.Context, username, password string) (string, error) {
	if locked, until := s.lockouts.locked(username); locked {
		return "", fmt.Errorf("%w: account locked until %s", shared.ErrAuthenticationFailed, until.UTC().Format(time.RFC3339))
	}

	s.mu.RLock()
	cred, ok := s.creds[username]
	s.mu.RUnlock()
	if !ok || !cred.Active {
		s.fail(username, "unknown or inactive credential")
		return "", fmt.Errorf("%w: invalid credentials", shared.ErrAuthenticationFailed)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		s.fail(username, "password mismatch")
		return "", fmt.Errorf("%w: invalid credentials", shared.ErrAuthenticationFailed)
	}

	s.lockouts.recordSuccess(username)
	return cred.UserID, nil
}

func (s *Service) fail(identifier, reason string) {
	locked := s.lockouts.recordFailure(identifier)
	if s.logger != nil {
		s.logger.Warn("authentication failure",
			slog.String("identifier", identifier),
			slog.String("reason", reason),
			slog.Bool("locked_out", locked))
	}
}
