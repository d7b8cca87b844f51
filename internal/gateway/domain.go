package gateway

import "time"

// APIRequest is the gateway's view of one inbound request. Identifier is
// the rate-limit subject (API key ID, user ID, or client IP).
type APIRequest struct {
	Identifier string         `validate:"required"`
	ClientIP   string         `validate:"omitempty,ip"`
	Rule       string         `validate:"omitempty,oneof=default authentication file_operations"`
	Endpoint   string         `validate:"required"`
	Payload    map[string]any `validate:"-"`
}

// FieldRule describes validation for one payload field.
type FieldRule struct {
	Name          string
	Required      bool
	Type          string // string, int, float, bool
	MinLen        int
	MaxLen        int
	Pattern       string
	AllowedValues []string
}

// Verdict is the gateway's answer for one request. Warnings never block on
// their own; the coordinator decides whether a warning is fatal for the
// request type at hand.
type Verdict struct {
	Allowed   bool
	Reason    string
	Errors    []string
	Warnings  []string
	Sanitized map[string]any
}

// RateLimitRule is one named ceiling set. The burst window is a fixed ten
// seconds; minute and hour ceilings use sliding windows.
type RateLimitRule struct {
	Name      string
	PerMinute int
	PerHour   int
	Burst     int
	Window    time.Duration
	Enabled   bool
}

// ThreatLevel classifies a security event.
type ThreatLevel string

// Threat levels from benign to severe.
const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// SecurityEvent is an immutable record of a security-relevant occurrence,
// retained in a bounded ring buffer.
type SecurityEvent struct {
	ID       string
	Time     time.Time
	Type     string
	SourceIP string
	Threat   ThreatLevel
	Blocked  bool
	Details  string
}
