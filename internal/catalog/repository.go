package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/shared"
)

const productColumns = `id, sku, description, status, stock, low_stock_alert,
	final_selling_price_retail, final_selling_price_wholesale, updated_at`

// Store reads and writes catalog records. It runs against a pool or inside a
// caller's transaction, depending on the Querier it is built with.
type Store struct {
	q db.Querier
}

// NewStore constructs a Store.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// GetProduct loads a product regardless of status.
func (s *Store) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := s.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

// LockProducts loads the given products FOR UPDATE in ascending id order, so that
// concurrent writers acquire row locks in the same sequence. ids must be sorted
// and unique. A missing id yields shared.ErrNotFound.
func (s *Store) LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	rows, err := s.q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
		}
	}
	return out, nil
}

// UpdateProduct applies non-nil fields of upd and returns the stored product.
func (s *Store) UpdateProduct(ctx context.Context, id int64, upd ProductUpdate) (Product, error) {
	row := s.q.QueryRow(ctx, `UPDATE products SET
		description = COALESCE($2, description),
		final_selling_price_retail = COALESCE($3, final_selling_price_retail),
		final_selling_price_wholesale = COALESCE($4, final_selling_price_wholesale),
		low_stock_alert = COALESCE($5, low_stock_alert),
		updated_at = NOW()
		WHERE id=$1
		RETURNING `+productColumns,
		id, upd.Description, upd.FinalSellingPriceRetail, upd.FinalSellingPriceWholesale, upd.LowStockAlert)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

// SetProductStatus moves a product from one status to another. A product that is
// not in from yields ErrInvalidTransition; a missing one shared.ErrNotFound.
func (s *Store) SetProductStatus(ctx context.Context, id int64, from, to Status) error {
	return s.transition(ctx, "products", "product", id, from, to)
}

// GetLocation loads a location regardless of status.
func (s *Store) GetLocation(ctx context.Context, id int64) (Location, error) {
	var l Location
	err := s.q.QueryRow(ctx, `SELECT id, name, status FROM locations WHERE id=$1`, id).Scan(&l.ID, &l.Name, &l.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, fmt.Errorf("location %d: %w", id, shared.ErrNotFound)
	}
	return l, err
}

// SetLocationStatus moves a location between statuses.
func (s *Store) SetLocationStatus(ctx context.Context, id int64, from, to Status) error {
	return s.transition(ctx, "locations", "location", id, from, to)
}

// GetCustomer loads a customer regardless of status.
func (s *Store) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var (
		c     Customer
		email pgtype.Text
	)
	err := s.q.QueryRow(ctx, `SELECT id, name, email, status FROM customers WHERE id=$1`, id).Scan(&c.ID, &c.Name, &email, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Customer{}, err
	}
	c.Email = email.String
	return c, nil
}

// ListLowStock returns active products whose stock is at or below their alert threshold.
func (s *Store) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := s.q.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE status = 'ACTIVE' AND stock <= low_stock_alert
		ORDER BY stock - low_stock_alert, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) transition(ctx context.Context, table, entity string, id int64, from, to Status) error {
	// table is one of two constants above, never caller input.
	tag, err := s.q.Exec(ctx, `UPDATE `+table+` SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %d: %w", entity, id, shared.ErrNotFound)
	}
	return fmt.Errorf("%s %d is not %s: %w", entity, id, from, ErrInvalidTransition)
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p                 Product
		retail, wholesale pgtype.Numeric
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Description, &p.Status, &p.Stock, &p.LowStockAlert, &retail, &wholesale, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.FinalSellingPriceRetail = db.Decimal(retail)
	p.FinalSellingPriceWholesale = db.Decimal(wholesale)
	return p, nil
}
