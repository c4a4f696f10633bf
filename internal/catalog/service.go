package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/atelier-erp/atelier/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, id int64, upd ProductUpdate) (Product, error)
	SetProductStatus(ctx context.Context, id int64, from, to Status) error
	GetLocation(ctx context.Context, id int64) (Location, error)
	SetLocationStatus(ctx context.Context, id int64, from, to Status) error
	GetCustomer(ctx context.Context, id int64) (Customer, error)
}

// AuditPort records catalog changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops derived views, such as the low-stock list, after catalog changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service exposes catalog maintenance operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService constructs the catalog service. audit and invalidator may be nil.
func NewService(repo RepositoryPort, audit AuditPort, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, invalidator: invalidator, logger: logger}
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetLocation returns a location by id.
func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	return s.repo.GetLocation(ctx, id)
}

// GetCustomer returns a customer by id.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// UpdateProduct edits description, prices and the alert threshold. Existing sale
// lines keep their own snapshots and are unaffected.
func (s *Service) UpdateProduct(ctx context.Context, id int64, upd ProductUpdate) (Product, error) {
	if upd.Empty() {
		return Product{}, fmt.Errorf("%w: nothing to update", shared.ErrInvalidArgument)
	}
	if upd.FinalSellingPriceRetail != nil && upd.FinalSellingPriceRetail.IsNegative() {
		return Product{}, fmt.Errorf("%w: retail price must not be negative", shared.ErrInvalidArgument)
	}
	if upd.FinalSellingPriceWholesale != nil && upd.FinalSellingPriceWholesale.IsNegative() {
		return Product{}, fmt.Errorf("%w: wholesale price must not be negative", shared.ErrInvalidArgument)
	}
	if upd.LowStockAlert != nil && *upd.LowStockAlert < 0 {
		return Product{}, fmt.Errorf("%w: low stock alert must not be negative", shared.ErrInvalidArgument)
	}
	product, err := s.repo.UpdateProduct(ctx, id, upd)
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	s.record(ctx, "catalog:product_update", "product", id, map[string]any{"update": upd})
	if upd.LowStockAlert != nil {
		s.invalidate(ctx)
	}
	return product, nil
}

// ArchiveProduct hides a product from new sales.
func (s *Service) ArchiveProduct(ctx context.Context, id int64) error {
	return s.moveProduct(ctx, id, StatusActive, StatusArchived)
}

// RestoreProduct makes an archived product sellable again.
func (s *Service) RestoreProduct(ctx context.Context, id int64) error {
	return s.moveProduct(ctx, id, StatusArchived, StatusActive)
}

// ArchiveLocation stops a location from accepting new sales.
func (s *Service) ArchiveLocation(ctx context.Context, id int64) error {
	return s.moveLocation(ctx, id, StatusActive, StatusArchived)
}

// RestoreLocation reactivates an archived location.
func (s *Service) RestoreLocation(ctx context.Context, id int64) error {
	return s.moveLocation(ctx, id, StatusArchived, StatusActive)
}

func (s *Service) moveProduct(ctx context.Context, id int64, from, to Status) error {
	if err := s.repo.SetProductStatus(ctx, id, from, to); err != nil {
		return fmt.Errorf("set product status: %w", err)
	}
	s.record(ctx, "catalog:product_"+statusVerb(to), "product", id, nil)
	s.invalidate(ctx)
	return nil
}

func (s *Service) moveLocation(ctx context.Context, id int64, from, to Status) error {
	if err := s.repo.SetLocationStatus(ctx, id, from, to); err != nil {
		return fmt.Errorf("set location status: %w", err)
	}
	s.record(ctx, "catalog:location_"+statusVerb(to), "location", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := shared.ActorFromContext(ctx)
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("low stock cache bump failed", slog.Any("error", err))
	}
}

func statusVerb(to Status) string {
	if to == StatusArchived {
		return "archive"
	}
	return "restore"
}
