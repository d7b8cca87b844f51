package shared

import "errors"

// Security failure taxonomy. Every denial produced by the pipeline wraps
// exactly one of these so callers can branch without string matching.
var (
	// ErrAuthenticationFailed indicates a bad, expired, or wrong-type credential.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAuthorizationDenied indicates a resolved but insufficient permission set.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrRateLimited indicates a minute/hour/burst ceiling or an active lockout.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrValidationFailed indicates a schema or pattern violation in a payload.
	ErrValidationFailed = errors.New("validation failed")
	// ErrAttackSuspected indicates a heuristic match; it may or may not block.
	ErrAttackSuspected = errors.New("attack pattern suspected")
	// ErrElevationFailed indicates a method-specific escalation failure or lockout.
	ErrElevationFailed = errors.New("privilege elevation failed")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInternal indicates an unexpected fault inside a pipeline stage.
	ErrInternal = errors.New("internal security error")
)
