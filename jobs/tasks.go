package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcile runs the ledger and stock integrity checks.
	TaskReconcile = "reconcile:run"
)

// Reconciliation checks.
const (
	CheckLedger = "ledger"
	CheckStock  = "stock"
)

// ReconcilePayload selects which checks to run. Empty Checks runs all of them.
type ReconcilePayload struct {
	Checks []string `json:"checks,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

func (p ReconcilePayload) wants(check string) bool {
	if len(p.Checks) == 0 {
		return true
	}
	for _, c := range p.Checks {
		if c == check {
			return true
		}
	}
	return false
}

// NewReconcileTask constructs an Asynq task for reconciliation.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcile, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
