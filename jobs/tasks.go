package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSecurityCleanup purges security events past their retention.
	TaskSecurityCleanup = "security:cleanup"
)

// SecurityCleanupPayload carries the retention applied by a cleanup run.
// Zero means the job's configured retention.
type SecurityCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds,omitempty"`
}

// Retention returns the payload retention as a duration.
func (p SecurityCleanupPayload) Retention() time.Duration {
	return time.Duration(p.RetentionSeconds) * time.Second
}

// NewSecurityCleanupTask constructs an Asynq task.
func NewSecurityCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(SecurityCleanupPayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSecurityCleanup, data, asynq.Queue(QueueDefault)), nil
}
