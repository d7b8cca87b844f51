package coordinator

import (
	"time"
)

// RequestType selects which pipeline stages run. Adding a type means
// adding a row to stagePlans, not a new conditional.
type RequestType string

// Supported request types.
const (
	RequestAuthorization   RequestType = "authorization"
	RequestPermissionCheck RequestType = "permission_check"
	RequestElevation       RequestType = "elevation"
	RequestAPIAccess       RequestType = "api_access"
)

// Stage names one pipeline step. Stages execute strictly in plan order;
// each stage's outcome gates the next.
type Stage string

// Pipeline stages.
const (
	StageAuthenticate Stage = "authenticate"
	StageAuthorize    Stage = "authorize"
	StagePermission   Stage = "permission"
	StageElevation    Stage = "elevation"
	StageGateway      Stage = "gateway"
)

// stagePlans declares which stages each request type runs.
var stagePlans = map[RequestType][]Stage{
	RequestAuthorization:   {StageAuthenticate, StageAuthorize},
	RequestPermissionCheck: {StageAuthenticate, StageAuthorize, StagePermission},
	RequestElevation:       {StageAuthenticate, StageAuthorize, StageElevation},
	RequestAPIAccess:       {StageAuthenticate, StageAuthorize, StageGateway},
}

// Priority orders requests for audit purposes.
type Priority string

// Priorities.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Credentials carries whichever credential the caller presents. At most
// one of APIKey, AccessToken, or Username/Password is used; RefreshToken
// enables the single retry-after-refresh path for an expired access token.
type Credentials struct {
	APIKey       string
	AccessToken  string
	RefreshToken string
	Username     string
	Password     string
}

// SecurityRequest is the coordinator's public request contract.
type SecurityRequest struct {
	RequestID   string
	UserID      string
	Resource    string
	Action      string
	Type        RequestType
	Priority    Priority
	Credentials Credentials
	Context     map[string]any

	// Permission-check requests.
	Path          string
	RequiredLevel string

	// Elevation requests.
	Command     string
	Args        []string
	Method      string
	Reason      string
	Interactive bool
	Timeout     time.Duration

	// API-access requests.
	ClientIP    string
	UserAgent   string
	GatewayRule string
	Payload     map[string]any
}

// SecurityResponse is the coordinator's public response contract. Stage
// names the failing stage on denial; it is empty on success.
type SecurityResponse struct {
	RequestID   string         `json:"request_id"`
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	Stage       Stage          `json:"stage,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	CacheHit    bool           `json:"cache_hit"`
	Latency     time.Duration  `json:"latency_ns"`
	Sanitized   map[string]any `json:"-"`
}

// Stats is the coordinator's rolling performance view.
type Stats struct {
	TotalRequests  uint64
	Successes      uint64
	Failures       uint64
	CacheHits      uint64
	AverageLatency time.Duration
	PeakLatency    time.Duration
}
