package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileWarmup precomputes reconciliation summaries for recent inquiries.
	TaskReconcileWarmup = "sourcing:reconcile_warmup"
)

// ReconcileWarmupPayload selects which inquiries to warm.
type ReconcileWarmupPayload struct {
	// Scope picks inquiries when no explicit IDs are given. Only "open" is
	// recognised today.
	Scope      string  `json:"scope"`
	InquiryIDs []int64 `json:"inquiry_ids,omitempty"`
}

// NewReconcileWarmupTask constructs an Asynq task.
func NewReconcileWarmupTask(payload ReconcileWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileWarmup, data, asynq.Queue(QueueDefault)), nil
}
