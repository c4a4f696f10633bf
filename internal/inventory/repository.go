package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/shared"
)

// Store implements StockStore over a pool or a transaction.
type Store struct {
	q db.Querier
}

// NewStore constructs a Store. Pass a pgx.Tx to make GetForUpdate hold its lock.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// GetForUpdate locks the product row and returns its stock level.
func (s *Store) GetForUpdate(ctx context.Context, productID int64) (Level, error) {
	var l Level
	err := s.q.QueryRow(ctx, `SELECT id, stock, low_stock_alert FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&l.ProductID, &l.Stock, &l.LowStockAlert)
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
	}
	return l, err
}

// SetStock writes the new stock value.
func (s *Store) SetStock(ctx context.Context, productID, stock int64) error {
	tag, err := s.q.Exec(ctx, `UPDATE products SET stock=$2, updated_at=NOW() WHERE id=$1`, productID, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("product %d stock update touched %d rows: %w", productID, tag.RowsAffected(), shared.ErrFatal)
	}
	return nil
}

// InsertMovement appends to the stock ledger.
func (s *Store) InsertMovement(ctx context.Context, m Movement) error {
	_, err := s.q.Exec(ctx, `INSERT INTO inventory_movements
		(code, product_id, mode, quantity, previous_stock, new_stock, source, ref_id, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, 0), $11)`,
		m.Code, m.ProductID, m.Mode, m.Quantity, m.PreviousStock, m.NewStock, m.Source, m.RefID, m.Note, m.ActorID, m.CreatedAt)
	return err
}

// ListMovements returns the most recent ledger rows of a product.
func (s *Store) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.q.Query(ctx, `SELECT code, product_id, mode, quantity, previous_stock, new_stock, source, ref_id, note, actor_id, created_at
		FROM inventory_movements WHERE product_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Movement, 0)
	for rows.Next() {
		var (
			m         Movement
			ref, note pgtype.Text
			actor     pgtype.Int8
		)
		if err := rows.Scan(&m.Code, &m.ProductID, &m.Mode, &m.Quantity, &m.PreviousStock, &m.NewStock, &m.Source, &ref, &note, &actor, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.RefID, m.Note, m.ActorID = ref.String, note.String, actor.Int64
		out = append(out, m)
	}
	return out, rows.Err()
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, txOpts: opts}
}

// WithTx runs fn with a StockStore bound to a fresh transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, StockStore) error) error {
	return db.WithTx(ctx, r.pool, r.txOpts, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// ListLowStock returns active products at or below their threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]catalog.Product, error) {
	return catalog.NewStore(r.pool).ListLowStock(ctx)
}

// ListMovements returns recent ledger rows of a product.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	return NewStore(r.pool).ListMovements(ctx, productID, limit)
}
