package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditTrim clears audit events past the retention age. It is the
	// only queued task; the other sweeps run on in-process tickers because
	// their state never leaves the serving process.
	TaskAuditTrim = "maintenance:audit_trim"
)

// AuditTrimPayload bounds the audit trim run.
type AuditTrimPayload struct {
	MaxAge time.Duration `json:"max_age"`
}

// NewAuditTrimTask constructs the audit trim task.
func NewAuditTrimTask(maxAge time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(AuditTrimPayload{MaxAge: maxAge})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditTrim, data), nil
}
