package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType tags a token as access or refresh. Validators must require the
// type they expect; a refresh token is never accepted in an access slot.
type TokenType string

const (
	// TokenAccess is the short-lived token carrying a permission snapshot.
	TokenAccess TokenType = "access"
	// TokenRefresh is the long-lived token used only to mint new pairs.
	TokenRefresh TokenType = "refresh"
)

// APIKey holds the stored metadata for an issued key. The opaque secret is
// never stored; only its SHA-256 hash is kept for lookup.
type APIKey struct {
	ID           string
	UserID       string
	Permissions  []string
	RateLimit    int
	CreatedAt    time.Time
	LastUsedAt   time.Time
	Active       bool
	hashedSecret string
}

// Claims is the signed token payload. Permissions are embedded on access
// tokens only.
type Claims struct {
	Permissions []string  `json:"permissions,omitempty"`
	TokenType   TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair bundles a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Credential is a stored interactive login credential.
type Credential struct {
	UserID       string
	Username     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}
