package app

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8443"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// RedisAddr is optional. When empty the response cache and audit
	// mirror stay process-local and the background worker is unavailable.
	RedisAddr string `envconfig:"REDIS_ADDR" default:""`

	// MasterKey is the hex-encoded 32-byte crypto master key. When empty a
	// random key is generated at startup; encrypted material then does not
	// survive a restart.
	MasterKey string `envconfig:"AEGIS_MASTER_KEY" default:""`

	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`
	MaxFailedLogins int           `envconfig:"MAX_FAILED_LOGINS" default:"5"`
	LoginLockout    time.Duration `envconfig:"LOGIN_LOCKOUT" default:"15m"`
	TokenIssuer     string        `envconfig:"TOKEN_ISSUER" default:"aegis"`
	TokenAudience   string        `envconfig:"TOKEN_AUDIENCE" default:"aegis-desktop"`

	DecisionTTL time.Duration `envconfig:"DECISION_TTL" default:"15m"`
	ResponseTTL time.Duration `envconfig:"RESPONSE_TTL" default:"5m"`
	ProbeTTL    time.Duration `envconfig:"PROBE_TTL" default:"30s"`

	ElevationMaxFailures   int           `envconfig:"ELEVATION_MAX_FAILURES" default:"3"`
	ElevationSessionWindow time.Duration `envconfig:"ELEVATION_SESSION_WINDOW" default:"5m"`
	ElevationReuseWindow   time.Duration `envconfig:"ELEVATION_REUSE_WINDOW" default:"5m"`
	ElevationTimeout       time.Duration `envconfig:"ELEVATION_TIMEOUT" default:"60s"`
	ElevationMethod        string        `envconfig:"ELEVATION_METHOD" default:""`

	GatewayLockout  time.Duration `envconfig:"GATEWAY_LOCKOUT" default:"15m"`
	EventRetention  int           `envconfig:"EVENT_RETENTION" default:"1000"`
	BlockThreshold  int           `envconfig:"BLOCK_THRESHOLD" default:"5"`
	AuditRetention  int           `envconfig:"AUDIT_RETENTION" default:"10000"`
	AuditMaxAge     time.Duration `envconfig:"AUDIT_MAX_AGE" default:"720h"`
	HTTPRatePerMin  int           `envconfig:"HTTP_RATE_PER_MINUTE" default:"120"`

	// EnterprisePatterns lists resource prefixes that always require
	// authentication, comma separated.
	EnterprisePatterns string `envconfig:"ENTERPRISE_PATTERNS" default:"enterprise/,admin/"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.MasterKey != "" {
		key, err := hex.DecodeString(cfg.MasterKey)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("AEGIS_MASTER_KEY must be 64 hex characters")
		}
	}
	return &cfg, nil
}

// MasterKeyBytes returns the decoded master key, or nil when unset.
func (c *Config) MasterKeyBytes() []byte {
	if c == nil || c.MasterKey == "" {
		return nil
	}
	key, err := hex.DecodeString(c.MasterKey)
	if err != nil {
		return nil
	}
	return key
}

// EnterprisePrefixes returns the parsed enterprise resource prefixes.
func (c *Config) EnterprisePrefixes() []string {
	if c == nil || c.EnterprisePatterns == "" {
		return nil
	}
	parts := strings.Split(c.EnterprisePatterns, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
