package permission

import "time"

// Level is an ordered OS permission level.
type Level int

// Levels from weakest to strongest.
const (
	LevelNone Level = iota
	LevelRead
	LevelExecute
	LevelWrite
	LevelOwner
	LevelRoot
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelRead:
		return "read"
	case LevelExecute:
		return "execute"
	case LevelWrite:
		return "write"
	case LevelOwner:
		return "owner"
	case LevelRoot:
		return "root"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name. Unknown names map to LevelRoot so a
// typo in configuration can only over-require, never under-require.
func ParseLevel(s string) Level {
	switch s {
	case "none":
		return LevelNone
	case "read":
		return LevelRead
	case "execute":
		return LevelExecute
	case "write":
		return LevelWrite
	case "owner":
		return LevelOwner
	case "root":
		return LevelRoot
	default:
		return LevelRoot
	}
}

// PrivilegedPrefix maps a path prefix to the level required to touch it
// and whether sudo-style elevation is pre-approved for it.
type PrivilegedPrefix struct {
	Prefix       string
	Required     Level
	SudoApproved bool
}

// CheckResult is the outcome of a permission check for one path.
type CheckResult struct {
	Path     string
	Required Level
	Actual   Level
	Granted  bool
	CacheHit bool
}

// ElevationRequest asks for a command to run with elevated privileges.
// Method may name a specific elevation method; when empty the discovered
// preference order applies. Timeout bounds the subprocess.
type ElevationRequest struct {
	Identity    string
	Command     string
	Args        []string
	Method      string
	Reason      string
	Interactive bool
	Timeout     time.Duration
}

// ElevationResult reports one escalation attempt.
type ElevationResult struct {
	Identity string
	Method   string
	Success  bool
	Duration time.Duration
	Output   string
	Error    string
	// Anomaly marks an elevation that was requested but not actually
	// required; this signals upstream misconfiguration and is surfaced,
	// not swallowed.
	Anomaly bool
	// Reused marks an attempt inside the re-use window of a recent
	// successful elevation for the same identity and method.
	Reused bool
}
