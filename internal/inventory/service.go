package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, StockStore) error) error
	ListLowStock(ctx context.Context) ([]catalog.Product, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error)
}

// CachePort is the versioned cache used for the low-stock list.
type CachePort interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// AlertPort receives low-stock signals once the change that produced them has committed.
type AlertPort interface {
	EnqueueLowStock(ctx context.Context, signal LowStockSignal) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts stock adjustments.
type MetricsPort interface {
	ObserveStockAdjustment(source, result string)
}

// LowStockSignal tells the alert pipeline a product reached its threshold.
type LowStockSignal struct {
	ProductID     int64  `json:"product_id"`
	Stock         int64  `json:"stock"`
	LowStockAlert int64  `json:"low_stock_alert"`
	Source        Source `json:"source"`
	RefID         string `json:"ref_id,omitempty"`
}

// AdjustInput is a manual stock adjustment by staff.
type AdjustInput struct {
	ProductID int64  `json:"-"`
	Mode      Mode   `json:"mode" validate:"required,oneof=ADD REMOVE SET"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
	Note      string `json:"note" validate:"max=500"`
}

// Service coordinates stock operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   CachePort
	alerts  AlertPort
	metrics MetricsPort
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService builds Service. Every port except repo may be nil.
func NewService(repo RepositoryPort, audit AuditPort, cache CachePort, alerts AlertPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, alerts: alerts, metrics: metrics, logger: logger}
}

// Adjust applies a manual ADD/REMOVE/SET in its own transaction. Manual removals never
// drive stock below zero.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Adjustment, error) {
	actor, _ := shared.ActorFromContext(ctx)
	change := Change{
		ProductID: input.ProductID,
		Mode:      input.Mode,
		Quantity:  input.Quantity,
		Source:    SourceManual,
		Note:      input.Note,
		ActorID:   actor.ID,
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, store StockStore) error {
		var err error
		adj, err = Apply(ctx, store, change, PolicyReject)
		return err
	})
	if err != nil {
		s.observe(SourceManual, "rejected")
		return Adjustment{}, fmt.Errorf("inventory: adjust: %w", err)
	}
	s.observe(SourceManual, "applied")
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "inventory:" + string(adj.Mode),
			Entity:   "product",
			EntityID: strconv.FormatInt(adj.ProductID, 10),
			Meta: map[string]any{
				"code":           adj.Code,
				"quantity":       adj.Quantity,
				"previous_stock": adj.PreviousStock,
				"new_stock":      adj.NewStock,
				"note":           adj.Note,
			},
		})
		if err != nil {
			s.logger.Warn("audit record failed", slog.String("code", adj.Code), slog.Any("error", err))
		}
	}
	s.Notify(ctx, adj)
	return adj, nil
}

// Notify runs the post-commit side effects of committed adjustments: it invalidates the
// low-stock cache and forwards low-stock signals. Failures are logged, never returned.
func (s *Service) Notify(ctx context.Context, adjustments ...Adjustment) {
	if len(adjustments) == 0 {
		return
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("low stock cache bump failed", slog.Any("error", err))
		}
	}
	for _, adj := range adjustments {
		if adj.Backordered {
			s.observe(adj.Source, "backordered")
			s.logger.Info("stock backordered",
				slog.Int64("product_id", adj.ProductID),
				slog.Int64("stock", adj.NewStock),
				slog.String("ref_id", adj.RefID))
		}
		if !adj.LowStock || s.alerts == nil {
			continue
		}
		signal := LowStockSignal{
			ProductID:     adj.ProductID,
			Stock:         adj.NewStock,
			LowStockAlert: adj.LowStockAlert,
			Source:        adj.Source,
			RefID:         adj.RefID,
		}
		if err := s.alerts.EnqueueLowStock(ctx, signal); err != nil {
			s.logger.Warn("enqueue low stock alert failed", slog.Int64("product_id", adj.ProductID), slog.Any("error", err))
		}
	}
}

// LowStock lists active products whose stock is at or below their alert threshold.
// Concurrent callers share one load.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	key := "inventory:low_stock"
	if s.cache != nil {
		built, err := s.cache.BuildKey(ctx, "inventory", "low_stock")
		if err != nil {
			s.logger.Warn("low stock cache key failed", slog.Any("error", err))
		} else {
			key = built
		}
	}
	// The flight outlives any single caller, so it must not inherit one caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.loadLowStock(loadCtx, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("inventory: low stock: %w", res.Err)
		}
		return res.Val.([]LowStockItem), nil
	}
}

func (s *Service) loadLowStock(ctx context.Context, key string) ([]LowStockItem, error) {
	loader := func(ctx context.Context) (any, error) {
		products, err := s.repo.ListLowStock(ctx)
		if err != nil {
			return nil, err
		}
		items := make([]LowStockItem, 0, len(products))
		for _, p := range products {
			items = append(items, LowStockItem{
				ProductID:     p.ID,
				SKU:           p.SKU,
				Description:   p.Description,
				Stock:         p.Stock,
				LowStockAlert: p.LowStockAlert,
				Deficit:       p.LowStockAlert - p.Stock,
			})
		}
		return items, nil
	}
	if s.cache == nil {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		return v.([]LowStockItem), nil
	}
	var (
		items     []LowStockItem
		loaderErr error
	)
	err := s.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (any, error) {
		v, err := loader(ctx)
		loaderErr = err
		return v, err
	})
	if err != nil {
		if loaderErr != nil {
			return nil, loaderErr
		}
		// Redis trouble must not take the list down with it.
		s.logger.Warn("low stock cache unavailable", slog.Any("error", err))
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		return v.([]LowStockItem), nil
	}
	if items == nil {
		items = []LowStockItem{}
	}
	return items, nil
}

// Movements returns recent ledger rows of a product.
func (s *Service) Movements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, productID, limit)
}

// Bump invalidates the low-stock cache.
func (s *Service) Bump(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Bump(ctx)
}

func (s *Service) observe(source Source, result string) {
	if s.metrics != nil {
		s.metrics.ObserveStockAdjustment(string(source), result)
	}
}
