package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/inventory"
)

// ProductReader loads the current state of a product.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// LowStockLister returns the current low-stock list.
type LowStockLister interface {
	LowStock(ctx context.Context) ([]inventory.LowStockItem, error)
}

// KeyCleaner purges idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// JobMetrics counts job outcomes.
type JobMetrics interface {
	ObserveJob(task, outcome string)
}

// LowStockAlertJob raises the alert for a low-stock signal once it is confirmed
// against the current stock.
type LowStockAlertJob struct {
	Products ProductReader
	Logger   *slog.Logger
	Metrics  JobMetrics
}

// Handle processes TaskStockLowAlert tasks.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) error {
	outcome := "error"
	defer func() { observe(j.Metrics, TaskStockLowAlert, outcome) }()

	var signal inventory.LowStockSignal
	if err := json.Unmarshal(t.Payload(), &signal); err != nil || signal.ProductID <= 0 {
		outcome = "invalid"
		return asynq.SkipRetry
	}
	product, err := j.Products.GetProduct(ctx, signal.ProductID)
	if err != nil {
		return err
	}
	logger := loggerOr(j.Logger).With(
		slog.Int64("product_id", product.ID),
		slog.String("sku", product.SKU),
		slog.Int64("stock", product.Stock),
		slog.Int64("low_stock_alert", product.LowStockAlert),
	)
	// A restock may have landed between the signal and now.
	if !product.Active() || !product.LowStock() {
		outcome = "stale"
		logger.Info("low stock alert no longer applies", slog.Int64("signalled_stock", signal.Stock))
		return nil
	}
	outcome = "sent"
	logger.Warn("product stock is low",
		slog.Bool("alert", true),
		slog.Bool("backordered", product.Stock < 0),
		slog.String("source", string(signal.Source)),
		slog.String("ref_id", signal.RefID))
	return nil
}

// LowStockDigestJob logs a daily summary of every low-stock product.
type LowStockDigestJob struct {
	Stock   LowStockLister
	Logger  *slog.Logger
	Metrics JobMetrics
}

// Handle processes TaskStockLowDigest tasks.
func (j *LowStockDigestJob) Handle(ctx context.Context, t *asynq.Task) error {
	outcome := "error"
	defer func() { observe(j.Metrics, TaskStockLowDigest, outcome) }()

	var payload LowStockDigestPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			outcome = "invalid"
			return asynq.SkipRetry
		}
	}
	items, err := j.Stock.LowStock(ctx)
	if err != nil {
		return err
	}
	logger := loggerOr(j.Logger)
	var backordered int
	for _, it := range items {
		if it.Stock < 0 {
			backordered++
		}
		logger.Info("low stock digest item",
			slog.Int64("product_id", it.ProductID),
			slog.String("sku", it.SKU),
			slog.Int64("stock", it.Stock),
			slog.Int64("deficit", it.Deficit))
	}
	outcome = "success"
	logger.Info("low stock digest",
		slog.Int("products", len(items)),
		slog.Int("backordered", backordered),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}

// IdempotencyCleanupJob removes expired sale idempotency keys.
type IdempotencyCleanupJob struct {
	Keys    KeyCleaner
	Logger  *slog.Logger
	Metrics JobMetrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	outcome := "error"
	defer func() { observe(j.Metrics, TaskIdempotencyCleanup, outcome) }()

	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		outcome = "invalid"
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 72
	}
	removed, err := j.Keys.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err != nil {
		return err
	}
	outcome = "success"
	loggerOr(j.Logger).Info("idempotency keys purged", slog.Int64("removed", removed), slog.Int("retention_hours", payload.RetentionHours))
	return nil
}

func observe(m JobMetrics, task, outcome string) {
	if m != nil {
		m.ObserveJob(task, outcome)
	}
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
