package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegis-desktop/aegis/internal/crypto"
	"github.com/aegis-desktop/aegis/internal/shared"
)

func newTestAuth(t *testing.T, cfg Config) *Service {
	t.Helper()
	cryptoSvc, err := crypto.NewService(nil)
	require.NoError(t, err)
	svc, err := NewService(cfg, cryptoSvc, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return svc
}

func TestAuthenticatePassword(t *testing.T) {
	svc := newTestAuth(t, Config{})
	require.NoError(t, svc.RegisterCredential("u-1", "alice", "s3cret"))

	userID, err := svc.AuthenticatePassword(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "u-1", userID)

	_, err = svc.AuthenticatePassword(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)

	_, err = svc.AuthenticatePassword(context.Background(), "nobody", "whatever")
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)
}

func TestLockoutAfterConsecutiveFailures(t *testing.T) {
	svc := newTestAuth(t, Config{MaxFailedLogins: 3, LockoutDuration: time.Hour})
	require.NoError(t, svc.RegisterCredential("u-1", "bob", "correct"))

	for i := 0; i < 3; i++ {
		_, err := svc.AuthenticatePassword(context.Background(), "bob", "wrong")
		require.ErrorIs(t, err, shared.ErrAuthenticationFailed)
	}

	// Locked out now, even with the correct password.
	_, err := svc.AuthenticatePassword(context.Background(), "bob", "correct")
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)
	require.Contains(t, err.Error(), "locked")
}

func TestLockoutClearedBySuccess(t *testing.T) {
	svc := newTestAuth(t, Config{MaxFailedLogins: 3, LockoutDuration: time.Hour})
	require.NoError(t, svc.RegisterCredential("u-1", "carol", "pw"))

	for i := 0; i < 2; i++ {
		_, _ = svc.AuthenticatePassword(context.Background(), "carol", "wrong")
	}
	_, err := svc.AuthenticatePassword(context.Background(), "carol", "pw")
	require.NoError(t, err)

	// Counter reset: two more failures must not lock.
	for i := 0; i < 2; i++ {
		_, _ = svc.AuthenticatePassword(context.Background(), "carol", "wrong")
	}
	_, err = svc.AuthenticatePassword(context.Background(), "carol", "pw")
	require.NoError(t, err)
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc := newTestAuth(t, Config{})
	ctx := context.Background()

	secret, issued, err := svc.IssueAPIKey(ctx, "u-9", []string{"threats:read"}, 60)
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	key, err := svc.ValidateAPIKey(ctx, secret)
	require.NoError(t, err)
	require.Equal(t, "u-9", key.UserID)
	require.Equal(t, []string{"threats:read"}, key.Permissions)
	require.False(t, key.LastUsedAt.IsZero())

	_, err = svc.ValidateAPIKey(ctx, "not-a-real-secret")
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)

	require.NoError(t, svc.RevokeAPIKey(ctx, issued.ID))
	_, err = svc.ValidateAPIKey(ctx, secret)
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)

	err = svc.RevokeAPIKey(ctx, "missing-id")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTokenPairValidation(t *testing.T) {
	svc := newTestAuth(t, Config{})
	ctx := context.Background()

	pair, err := svc.IssueTokenPair(ctx, "u-7", []string{"reports:read"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	require.Equal(t, "u-7", claims.Subject)
	require.Equal(t, []string{"reports:read"}, claims.Permissions)
	require.NotEmpty(t, claims.ID)

	_, err = svc.ValidateToken(ctx, pair.RefreshToken, TokenRefresh)
	require.NoError(t, err)
}

func TestRefreshTokenRejectedAsAccess(t *testing.T) {
	svc := newTestAuth(t, Config{})
	ctx := context.Background()

	pair, err := svc.IssueTokenPair(ctx, "u-7", nil)
	require.NoError(t, err)

	// Valid signature and lifetime, wrong type tag: must be rejected.
	_, err = svc.ValidateToken(ctx, pair.RefreshToken, TokenAccess)
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)
	require.Contains(t, err.Error(), "token type")

	_, err = svc.ValidateToken(ctx, pair.AccessToken, TokenRefresh)
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)
}

func TestExpiredAccessToken(t *testing.T) {
	svc := newTestAuth(t, Config{AccessTokenTTL: time.Millisecond})
	ctx := context.Background()

	pair, err := svc.IssueTokenPair(ctx, "u-7", nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = svc.ValidateToken(ctx, pair.AccessToken, TokenAccess)
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)
	require.Contains(t, err.Error(), "expired")
}

func TestRefreshIssuesNewPair(t *testing.T) {
	svc := newTestAuth(t, Config{})
	ctx := context.Background()

	pair, err := svc.IssueTokenPair(ctx, "u-7", []string{"threats:read"})
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, pair.RefreshToken, []string{"threats:read"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, fresh.AccessToken, TokenAccess)
	require.NoError(t, err)
	require.Equal(t, "u-7", claims.Subject)

	// An access token cannot drive a refresh.
	_, err = svc.Refresh(ctx, pair.AccessToken, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, shared.ErrAuthenticationFailed))
}

func TestTamperedTokenRejected(t *testing.T) {
	svc := newTestAuth(t, Config{})
	ctx := context.Background()

	pair, err := svc.IssueTokenPair(ctx, "u-7", nil)
	require.NoError(t, err)

	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	_, err = svc.ValidateToken(ctx, tampered, TokenAccess)
	require.ErrorIs(t, err, shared.ErrAuthenticationFailed)
}
