package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atelier-erp/atelier/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockLowAlert reports one product that reached its low-stock threshold.
	TaskStockLowAlert = "stock:low_alert"
	// TaskStockLowDigest summarises every low-stock product once a day.
	TaskStockLowDigest = "stock:low_digest"
	// TaskIdempotencyCleanup purges expired sale idempotency keys.
	TaskIdempotencyCleanup = "sales:idempotency_cleanup"
)

// NewLowStockAlertTask constructs a low-stock alert task.
func NewLowStockAlertTask(signal inventory.LowStockSignal) (*asynq.Task, error) {
	body, err := json.Marshal(signal)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockLowAlert, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// LowStockDigestPayload carries scheduling metadata.
type LowStockDigestPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockDigestTask constructs the daily digest task.
func NewLowStockDigestTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockDigestPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockLowDigest, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets how long keys are kept.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the key purge task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
