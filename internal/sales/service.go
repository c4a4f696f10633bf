package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/inventory"
	"github.com/atelier-erp/atelier/internal/pricing"
	"github.com/atelier-erp/atelier/internal/shared"
)

const idempotencyModule = "sales:record"

// TxRepository is the transactional surface of a sale write. Everything done through
// it commits or rolls back together.
type TxRepository interface {
	inventory.StockStore
	GetLocation(ctx context.Context, id int64) (catalog.Location, error)
	GetCustomer(ctx context.Context, id int64) (catalog.Customer, error)
	LockProducts(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
	ReserveIdempotencyKey(ctx context.Context, key string) error
	InsertSale(ctx context.Context, sale *Sale) error
	InsertSaleLine(ctx context.Context, line *SaleLine) error
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	UpdateSaleHeader(ctx context.Context, sale Sale) (int64, error)
	DeleteSaleLines(ctx context.Context, saleID int64) (int64, error)
	DeleteSale(ctx context.Context, id int64) (int64, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// StockNotifier runs post-commit stock side effects.
type StockNotifier interface {
	Notify(ctx context.Context, adjustments ...inventory.Adjustment)
}

// MetricsPort records sale outcomes.
type MetricsPort interface {
	ObserveSale(op, outcome string)
	ObserveSaleValue(total float64)
}

// ServiceConfig tunes sale behaviour.
type ServiceConfig struct {
	// AllowBackorder lets a sale drive stock below zero instead of failing.
	AllowBackorder bool
}

// Service records, updates and deletes sales.
type Service struct {
	repo     RepositoryPort
	resolver *Resolver
	stock    StockNotifier
	metrics  MetricsPort
	policy   inventory.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the sale recorder. stock and metrics may be nil.
func NewService(repo RepositoryPort, resolver *Resolver, stock StockNotifier, metrics MetricsPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	policy := inventory.PolicyReject
	if cfg.AllowBackorder {
		policy = inventory.PolicyBackorder
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		stock:    stock,
		metrics:  metrics,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================================
// PRICING PREVIEW
// ============================================================================

// ResolveCartItem prices one cart entry without touching stock.
func (s *Service) ResolveCartItem(ctx context.Context, productID, quantity int64, wholesale bool) (CartLine, error) {
	return s.resolver.Resolve(ctx, productID, quantity, wholesale)
}

// CalculatePricing resolves every item concurrently and prices the cart.
func (s *Service) CalculatePricing(ctx context.Context, input PricingPreviewInput) (Breakdown, error) {
	lines := make([]CartLine, len(input.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, item := range input.Items {
		g.Go(func() error {
			line, err := s.resolver.Resolve(gctx, item.ProductID, item.Quantity, input.IsWholesale)
			if err != nil {
				return err
			}
			lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Breakdown{}, err
	}
	res, err := pricing.Calculate(cartRequest(lines, input.IsWholesale, input.PackagingCost, input.Discount))
	if err != nil {
		return Breakdown{}, err
	}
	return NewBreakdown(res), nil
}

// ============================================================================
// SALE OPERATIONS
// ============================================================================

// RecordSale prices the cart, decrements stock and persists the sale with its
// snapshot lines in one transaction.
func (s *Service) RecordSale(ctx context.Context, input RecordSaleInput) (detail SaleDetail, err error) {
	defer func() { s.observe("record", err) }()

	if len(input.Items) == 0 {
		return SaleDetail{}, ErrEmptySale
	}
	if !input.PaymentMethod.Valid() {
		return SaleDetail{}, fmt.Errorf("%w: unknown payment method %q", shared.ErrInvalidArgument, input.PaymentMethod)
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return SaleDetail{}, ErrInvalidQuantity
		}
	}
	if input.Discount == nil {
		input.Discount = pricing.NoDiscount{}
	}
	actor, _ := shared.ActorFromContext(ctx)

	var adjustments []inventory.Adjustment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		adjustments = adjustments[:0]
		if input.IdempotencyKey != "" {
			if err := tx.ReserveIdempotencyKey(ctx, input.IdempotencyKey); err != nil {
				return err
			}
		}
		if err := s.verifyReferences(ctx, tx, input.LocationID, input.CustomerID); err != nil {
			return err
		}

		products, err := tx.LockProducts(ctx, productIDs(input.Items))
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		cart := make([]CartLine, len(input.Items))
		for i, item := range input.Items {
			cart[i], err = BuildLine(products[item.ProductID], item.Quantity, input.IsWholesale)
			if err != nil {
				return err
			}
		}
		res, err := pricing.Calculate(cartRequest(cart, input.IsWholesale, input.PackagingCost, input.Discount))
		if err != nil {
			return err
		}

		sale := Sale{
			Date:          input.Date,
			CustomerID:    input.CustomerID,
			LocationID:    input.LocationID,
			PaymentMethod: input.PaymentMethod,
			IsWholesale:   input.IsWholesale,
			PackagingCost: res.PackagingCost,
			DiscountKind:  input.Discount.Kind(),
			DiscountValue: pricing.DiscountValue(input.Discount),
			Subtotal:      res.Subtotal,
			DiscountTotal: res.DiscountAmount,
			GrandTotal:    res.FinalTotal,
			CreatedBy:     actor.ID,
		}
		if sale.Date.IsZero() {
			sale.Date = s.now()
		}
		if err := tx.InsertSale(ctx, &sale); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		ref := strconv.FormatInt(sale.ID, 10)
		for _, item := range input.Items {
			product := products[item.ProductID]
			adj, err := inventory.Apply(ctx, tx, inventory.Change{
				ProductID: item.ProductID,
				Mode:      inventory.ModeRemove,
				Quantity:  item.Quantity,
				Source:    inventory.SourceSale,
				RefID:     ref,
				ActorID:   actor.ID,
			}, s.policy)
			if err != nil {
				return err
			}
			adjustments = append(adjustments, adj)

			line := SaleLine{
				SaleID:                     sale.ID,
				ProductID:                  product.ID,
				Quantity:                   item.Quantity,
				ProductDescriptionSnapshot: product.Description,
				PriceAtTheTime:             product.FinalSellingPriceRetail,
				WholesalePriceAtTheTime:    product.FinalSellingPriceWholesale,
			}
			if err := tx.InsertSaleLine(ctx, &line); err != nil {
				return fmt.Errorf("insert sale line: %w", err)
			}
			sale.Lines = append(sale.Lines, line)
		}

		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "sales:record",
			Entity:   "sale",
			EntityID: ref,
			Meta: map[string]any{
				"grand_total": sale.GrandTotal.String(),
				"lines":       len(sale.Lines),
				"wholesale":   sale.IsWholesale,
			},
		}); err != nil {
			return fmt.Errorf("audit sale: %w", err)
		}
		detail = SaleDetail{Sale: sale, Breakdown: NewBreakdown(res)}
		return nil
	})
	if err != nil {
		return SaleDetail{}, fmt.Errorf("sales: record: %w", err)
	}
	s.notify(ctx, adjustments)
	if s.metrics != nil {
		s.metrics.ObserveSaleValue(detail.GrandTotal.InexactFloat64())
	}
	return detail, nil
}

// UpdateSale changes header fields only. Totals are recomputed from the stored line
// snapshots and the new discount; lines are never rewritten.
func (s *Service) UpdateSale(ctx context.Context, pathID int64, input UpdateSaleInput) (detail SaleDetail, err error) {
	defer func() { s.observe("update", err) }()

	if input.ID != pathID {
		return SaleDetail{}, fmt.Errorf("sale id %d does not match path id %d: %w", input.ID, pathID, shared.ErrForbidden)
	}
	if !input.PaymentMethod.Valid() {
		return SaleDetail{}, fmt.Errorf("%w: unknown payment method %q", shared.ErrInvalidArgument, input.PaymentMethod)
	}
	if input.Discount == nil {
		input.Discount = pricing.NoDiscount{}
	}
	actor, _ := shared.ActorFromContext(ctx)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, pathID)
		if err != nil {
			return err
		}
		if err := s.verifyReferences(ctx, tx, input.LocationID, input.CustomerID); err != nil {
			return err
		}
		res, err := pricing.Calculate(snapshotRequest(sale, input.Discount))
		if err != nil {
			return err
		}

		sale.CustomerID = input.CustomerID
		sale.LocationID = input.LocationID
		sale.PaymentMethod = input.PaymentMethod
		sale.DiscountKind = input.Discount.Kind()
		sale.DiscountValue = pricing.DiscountValue(input.Discount)
		sale.Subtotal = res.Subtotal
		sale.DiscountTotal = res.DiscountAmount
		sale.GrandTotal = res.FinalTotal
		sale.UpdatedAt = s.now()
		rows, err := tx.UpdateSaleHeader(ctx, sale)
		if err != nil {
			return fmt.Errorf("update sale header: %w", err)
		}
		if rows != 1 {
			return fmt.Errorf("update of locked sale %d touched %d rows: %w", pathID, rows, shared.ErrFatal)
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "sales:update",
			Entity:   "sale",
			EntityID: strconv.FormatInt(pathID, 10),
			Meta: map[string]any{
				"grand_total":   sale.GrandTotal.String(),
				"discount_kind": string(sale.DiscountKind),
			},
		}); err != nil {
			return fmt.Errorf("audit sale: %w", err)
		}
		detail = SaleDetail{Sale: sale, Breakdown: NewBreakdown(res)}
		return nil
	})
	if err != nil {
		return SaleDetail{}, fmt.Errorf("sales: update: %w", err)
	}
	return detail, nil
}

// DeleteSale restores the stock of every line additively and removes the sale.
// Any mismatch between what was locked and what was deleted is fatal.
func (s *Service) DeleteSale(ctx context.Context, id int64) (err error) {
	defer func() { s.observe("delete", err) }()
	actor, _ := shared.ActorFromContext(ctx)

	var adjustments []inventory.Adjustment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		adjustments = adjustments[:0]
		sale, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(sale.Lines))
		for _, l := range sale.Lines {
			ids = append(ids, l.ProductID)
		}
		slices.Sort(ids)
		if _, err := tx.LockProducts(ctx, slices.Compact(ids)); err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		ref := strconv.FormatInt(id, 10)
		for _, l := range sale.Lines {
			// Additive restore: stock may be negative from a backorder and stay so.
			adj, err := inventory.Apply(ctx, tx, inventory.Change{
				ProductID: l.ProductID,
				Mode:      inventory.ModeAdd,
				Quantity:  l.Quantity,
				Source:    inventory.SourceSaleReversal,
				RefID:     ref,
				ActorID:   actor.ID,
			}, inventory.PolicyBackorder)
			if err != nil {
				return err
			}
			adjustments = append(adjustments, adj)
		}

		lines, err := tx.DeleteSaleLines(ctx, id)
		if err != nil {
			return fmt.Errorf("delete sale lines: %w", err)
		}
		if lines != int64(len(sale.Lines)) {
			return fmt.Errorf("sale %d: deleted %d of %d lines after stock restore: %w", id, lines, len(sale.Lines), shared.ErrFatal)
		}
		rows, err := tx.DeleteSale(ctx, id)
		if err != nil {
			return fmt.Errorf("delete sale: %w", err)
		}
		if rows != 1 {
			return fmt.Errorf("sale %d: header delete touched %d rows after stock restore: %w", id, rows, shared.ErrFatal)
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "sales:delete",
			Entity:   "sale",
			EntityID: ref,
			Meta: map[string]any{
				"grand_total": sale.GrandTotal.String(),
				"lines":       len(sale.Lines),
			},
		})
	})
	if err != nil {
		if errors.Is(err, shared.ErrFatal) {
			s.logger.Error("sale delete left inconsistent state", slog.Int64("sale_id", id), slog.Bool("alert", true), slog.Any("error", err))
		}
		return fmt.Errorf("sales: delete: %w", err)
	}
	s.notify(ctx, adjustments)
	return nil
}

// GetSale loads a sale and recomputes its breakdown from the line snapshots.
func (s *Service) GetSale(ctx context.Context, id int64) (SaleDetail, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return SaleDetail{}, err
	}
	discount, err := sale.Discount()
	if err != nil {
		return SaleDetail{}, fmt.Errorf("sale %d discount: %w", id, err)
	}
	res, err := pricing.Calculate(snapshotRequest(sale, discount))
	if err != nil {
		return SaleDetail{}, fmt.Errorf("sale %d pricing: %w", id, err)
	}
	return SaleDetail{Sale: sale, Breakdown: NewBreakdown(res)}, nil
}

// ListSales returns sale headers ordered by date, newest first.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: date range ends before it starts", shared.ErrInvalidArgument)
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	if page.PerPage > 100 {
		page.PerPage = 100
	}
	filter.Page, filter.PerPage = page.Page, page.PerPage
	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return sales, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) verifyReferences(ctx context.Context, tx TxRepository, locationID int64, customerID *int64) error {
	location, err := tx.GetLocation(ctx, locationID)
	if err != nil {
		return fmt.Errorf("verify location: %w", err)
	}
	if !location.Active() {
		return fmt.Errorf("location %d is archived: %w", locationID, shared.ErrNotFound)
	}
	if customerID == nil {
		return nil
	}
	customer, err := tx.GetCustomer(ctx, *customerID)
	if err != nil {
		return fmt.Errorf("verify customer: %w", err)
	}
	if !customer.Active() {
		return fmt.Errorf("customer %d is archived: %w", *customerID, shared.ErrNotFound)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, adjustments []inventory.Adjustment) {
	if s.stock != nil {
		s.stock.Notify(ctx, adjustments...)
	}
}

func (s *Service) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveSale(op, outcome(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrFatal):
		return "fatal"
	case errors.Is(err, shared.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrAlreadyExists):
		return "duplicate"
	default:
		return "error"
	}
}

// productIDs returns the sorted, unique product ids of items.
func productIDs(items []ItemInput) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func cartRequest(lines []CartLine, wholesale bool, packaging decimal.Decimal, discount pricing.Discount) pricing.Request {
	req := pricing.Request{
		Lines:         make([]pricing.Line, len(lines)),
		Wholesale:     wholesale,
		PackagingCost: packaging,
		Discount:      discount,
	}
	for i, l := range lines {
		req.Lines[i] = l.PricingLine()
	}
	return req
}
