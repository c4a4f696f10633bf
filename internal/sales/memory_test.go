package sales

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/inventory"
	"github.com/atelier-erp/atelier/internal/shared"
)

// memoryRepo is an in-memory RepositoryPort. WithTx snapshots every table and
// restores the snapshot when the callback fails.
type memoryRepo struct {
	mu        sync.Mutex
	products  map[int64]catalog.Product
	locations map[int64]catalog.Location
	customers map[int64]catalog.Customer
	sales     map[int64]Sale
	keys      map[string]bool
	movements []inventory.Movement
	audits    []shared.AuditLog
	nextID    int64
	failOn    string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:  map[int64]catalog.Product{},
		locations: map[int64]catalog.Location{1: {ID: 1, Name: "Showroom", Status: catalog.StatusActive}},
		customers: map[int64]catalog.Customer{},
		sales:     map[int64]Sale{},
		keys:      map[string]bool{},
	}
}

func (r *memoryRepo) addProduct(id, stock int64, retail, wholesale string) {
	r.products[id] = catalog.Product{
		ID:                         id,
		SKU:                        fmt.Sprintf("RING-%03d", id),
		Description:                fmt.Sprintf("Gold ring %d", id),
		Status:                     catalog.StatusActive,
		Stock:                      stock,
		LowStockAlert:              1,
		FinalSellingPriceRetail:    decimal.RequireFromString(retail),
		FinalSellingPriceWholesale: decimal.RequireFromString(wholesale),
	}
}

func (r *memoryRepo) stock(id int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].Stock
}

func (r *memoryRepo) setProduct(id int64, fn func(*catalog.Product)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.products[id]
	fn(&p)
	r.products[id] = p
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	products := maps.Clone(r.products)
	sales := maps.Clone(r.sales)
	keys := maps.Clone(r.keys)
	movements, audits, nextID := len(r.movements), len(r.audits), r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products, r.sales, r.keys = products, sales, keys
		r.movements, r.audits, r.nextID = r.movements[:movements], r.audits[:audits], nextID
		return err
	}
	return nil
}

func (r *memoryRepo) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (r *memoryRepo) GetSale(_ context.Context, id int64) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return Sale{}, fmt.Errorf("sale %d: %w", id, shared.ErrNotFound)
	}
	s.Lines = slices.Clone(s.Lines)
	return s, nil
}

func (r *memoryRepo) ListSales(_ context.Context, filter ListFilter) ([]Sale, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Sale{}
	for _, s := range r.sales {
		if filter.LocationID != nil && s.LocationID != *filter.LocationID {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Sale) int { return int(b.ID - a.ID) })
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetForUpdate(_ context.Context, productID int64) (inventory.Level, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return inventory.Level{}, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
	}
	return inventory.Level{ProductID: p.ID, Stock: p.Stock, LowStockAlert: p.LowStockAlert}, nil
}

func (tx *memoryTx) SetStock(_ context.Context, productID, stock int64) error {
	p := tx.repo.products[productID]
	p.Stock = stock
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m inventory.Movement) error {
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

func (tx *memoryTx) GetLocation(_ context.Context, id int64) (catalog.Location, error) {
	l, ok := tx.repo.locations[id]
	if !ok {
		return catalog.Location{}, fmt.Errorf("location %d: %w", id, shared.ErrNotFound)
	}
	return l, nil
}

func (tx *memoryTx) GetCustomer(_ context.Context, id int64) (catalog.Customer, error) {
	c, ok := tx.repo.customers[id]
	if !ok {
		return catalog.Customer{}, fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

func (tx *memoryTx) LockProducts(_ context.Context, ids []int64) (map[int64]catalog.Product, error) {
	if !slices.IsSorted(ids) {
		return nil, errors.New("ids must be sorted")
	}
	out := make(map[int64]catalog.Product, len(ids))
	for _, id := range ids {
		p, ok := tx.repo.products[id]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
		}
		out[id] = p
	}
	return out, nil
}

func (tx *memoryTx) ReserveIdempotencyKey(_ context.Context, key string) error {
	if tx.repo.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	tx.repo.keys[key] = true
	return nil
}

func (tx *memoryTx) InsertSale(_ context.Context, sale *Sale) error {
	tx.repo.nextID++
	sale.ID = tx.repo.nextID
	sale.CreatedAt = time.Now().UTC()
	sale.UpdatedAt = sale.CreatedAt
	tx.repo.sales[sale.ID] = *sale
	return nil
}

func (tx *memoryTx) InsertSaleLine(_ context.Context, line *SaleLine) error {
	if tx.repo.failOn == "line" {
		return errors.New("connection reset")
	}
	s := tx.repo.sales[line.SaleID]
	line.ID = int64(len(s.Lines) + 1)
	s.Lines = append(slices.Clone(s.Lines), *line)
	tx.repo.sales[line.SaleID] = s
	return nil
}

func (tx *memoryTx) GetSaleForUpdate(_ context.Context, id int64) (Sale, error) {
	s, ok := tx.repo.sales[id]
	if !ok {
		return Sale{}, fmt.Errorf("sale %d: %w", id, shared.ErrNotFound)
	}
	s.Lines = slices.Clone(s.Lines)
	return s, nil
}

func (tx *memoryTx) UpdateSaleHeader(_ context.Context, sale Sale) (int64, error) {
	stored, ok := tx.repo.sales[sale.ID]
	if !ok {
		return 0, nil
	}
	sale.Lines = stored.Lines
	tx.repo.sales[sale.ID] = sale
	return 1, nil
}

func (tx *memoryTx) DeleteSaleLines(_ context.Context, saleID int64) (int64, error) {
	s := tx.repo.sales[saleID]
	n := int64(len(s.Lines))
	s.Lines = nil
	tx.repo.sales[saleID] = s
	return n, nil
}

func (tx *memoryTx) DeleteSale(_ context.Context, id int64) (int64, error) {
	if tx.repo.failOn == "delete" {
		return 0, nil
	}
	if _, ok := tx.repo.sales[id]; !ok {
		return 0, nil
	}
	delete(tx.repo.sales, id)
	return 1, nil
}

func (tx *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	tx.repo.audits = append(tx.repo.audits, log)
	return nil
}

// recordingNotifier captures adjustments handed over after commit.
type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]inventory.Adjustment
}

func (n *recordingNotifier) Notify(_ context.Context, adjustments ...inventory.Adjustment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, adjustments)
}

// recordingMetrics captures sale outcomes.
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	values   []float64
}

func (m *recordingMetrics) ObserveSale(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, op+":"+outcome)
}

func (m *recordingMetrics) ObserveSaleValue(total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = append(m.values, total)
}
