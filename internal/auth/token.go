package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aegis-desktop/aegis/internal/shared"
)

// IssueTokenPair mints a signed access/refresh pair for userID. The
// permission snapshot is embedded on the access token only. Tokens are
// immutable once issued; each carries a unique jti for future revocation.
func (s *Service) IssueTokenPair(ctx context.Context, userID string, permissions []string) (*TokenPair, error) {
	now := time.Now().UTC()
	accessExp := now.Add(s.cfg.AccessTokenTTL)
	refreshExp := now.Add(s.cfg.RefreshTokenTTL)

	access, err := s.signClaims(Claims{
		Permissions: append([]string(nil), permissions...),
		TokenType:   TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	})
	if err != nil {
		return nil, err
	}

	refresh, err := s.signClaims(Claims{
		TokenType: TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateToken verifies signature, expiry, not-before, issuer, audience,
// and the type tag. A refresh token presented where an access token is
// expected is rejected even when otherwise valid.
func (s *Service) ValidateToken(ctx context.Context, raw string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", shared.ErrAuthenticationFailed)
		}
		return nil, fmt.Errorf("%w: invalid token", shared.ErrAuthenticationFailed)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", shared.ErrAuthenticationFailed)
	}
	if claims.TokenType != expected {
		return nil, fmt.Errorf("%w: token type %q where %q expected", shared.ErrAuthenticationFailed, claims.TokenType, expected)
	}
	return claims, nil
}

// Refresh validates a refresh token and issues a fresh pair for its
// subject with the given permission snapshot.
func (s *Service) Refresh(ctx context.Context, refreshToken string, permissions []string) (*TokenPair, error) {
	claims, err := s.ValidateToken(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	return s.IssueTokenPair(ctx, claims.Subject, permissions)
}

func (s *Service) signClaims(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", shared.ErrInternal)
	}
	return signed, nil
}
