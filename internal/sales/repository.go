package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/inventory"
	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/shared"
)

const saleColumns = `id, sale_date, customer_id, location_id, payment_method, is_wholesale,
	packaging_cost, discount_kind, discount_value, subtotal, discount_amount, grand_total,
	created_by, created_at, updated_at`

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, txOpts: opts}
}

// WithTx runs fn with a TxRepository bound to a fresh transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.txOpts, func(tx pgx.Tx) error {
		return fn(ctx, newTxStore(tx))
	})
}

// GetSale loads a sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	return getSale(ctx, r.pool, id, false)
}

// ListSales returns one page of sale headers and the total match count.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.From != nil {
		add("sale_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("sale_date < $%d", *filter.To)
	}
	if filter.LocationID != nil {
		add("location_id = $%d", *filter.LocationID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM sales%s ORDER BY sale_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		saleColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Sale, 0, page.PerPage)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// txStore is the TxRepository over one pgx.Tx. Product, location and customer reads
// go through catalog.Store and stock writes through inventory.Store, so a sale takes
// the same locks as any other writer of those rows.
type txStore struct {
	tx          pgx.Tx
	catalog     *catalog.Store
	stock       *inventory.Store
	audit       *shared.AuditLogger
	idempotency *shared.IdempotencyStore
}

func newTxStore(tx pgx.Tx) *txStore {
	return &txStore{
		tx:          tx,
		catalog:     catalog.NewStore(tx),
		stock:       inventory.NewStore(tx),
		audit:       shared.NewAuditLogger(tx),
		idempotency: shared.NewIdempotencyStore(tx),
	}
}

func (s *txStore) GetForUpdate(ctx context.Context, productID int64) (inventory.Level, error) {
	return s.stock.GetForUpdate(ctx, productID)
}

func (s *txStore) SetStock(ctx context.Context, productID, stock int64) error {
	return s.stock.SetStock(ctx, productID, stock)
}

func (s *txStore) InsertMovement(ctx context.Context, m inventory.Movement) error {
	return s.stock.InsertMovement(ctx, m)
}

func (s *txStore) GetLocation(ctx context.Context, id int64) (catalog.Location, error) {
	return s.catalog.GetLocation(ctx, id)
}

func (s *txStore) GetCustomer(ctx context.Context, id int64) (catalog.Customer, error) {
	return s.catalog.GetCustomer(ctx, id)
}

func (s *txStore) LockProducts(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	return s.catalog.LockProducts(ctx, ids)
}

func (s *txStore) ReserveIdempotencyKey(ctx context.Context, key string) error {
	return s.idempotency.CheckAndInsert(ctx, key, idempotencyModule)
}

func (s *txStore) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return s.audit.Record(ctx, log)
}

func (s *txStore) InsertSale(ctx context.Context, sale *Sale) error {
	return s.tx.QueryRow(ctx, `INSERT INTO sales
		(sale_date, customer_id, location_id, payment_method, is_wholesale, packaging_cost,
		 discount_kind, discount_value, subtotal, discount_amount, grand_total, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, 0))
		RETURNING id, created_at, updated_at`,
		sale.Date, sale.CustomerID, sale.LocationID, sale.PaymentMethod, sale.IsWholesale, sale.PackagingCost,
		sale.DiscountKind, sale.DiscountValue, sale.Subtotal, sale.DiscountTotal, sale.GrandTotal, sale.CreatedBy,
	).Scan(&sale.ID, &sale.CreatedAt, &sale.UpdatedAt)
}

func (s *txStore) InsertSaleLine(ctx context.Context, line *SaleLine) error {
	return s.tx.QueryRow(ctx, `INSERT INTO sale_product
		(sale_id, product_id, quantity, product_description_snapshot, price_at_the_time, wholesale_price_at_the_time)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		line.SaleID, line.ProductID, line.Quantity, line.ProductDescriptionSnapshot, line.PriceAtTheTime, line.WholesalePriceAtTheTime,
	).Scan(&line.ID)
}

func (s *txStore) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	return getSale(ctx, s.tx, id, true)
}

func (s *txStore) UpdateSaleHeader(ctx context.Context, sale Sale) (int64, error) {
	tag, err := s.tx.Exec(ctx, `UPDATE sales SET
		customer_id=$2, location_id=$3, payment_method=$4, discount_kind=$5, discount_value=$6,
		subtotal=$7, discount_amount=$8, grand_total=$9, updated_at=$10
		WHERE id=$1`,
		sale.ID, sale.CustomerID, sale.LocationID, sale.PaymentMethod, sale.DiscountKind, sale.DiscountValue,
		sale.Subtotal, sale.DiscountTotal, sale.GrandTotal, sale.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *txStore) DeleteSaleLines(ctx context.Context, saleID int64) (int64, error) {
	tag, err := s.tx.Exec(ctx, `DELETE FROM sale_product WHERE sale_id=$1`, saleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *txStore) DeleteSale(ctx context.Context, id int64) (int64, error) {
	tag, err := s.tx.Exec(ctx, `DELETE FROM sales WHERE id=$1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func getSale(ctx context.Context, q db.Querier, id int64, lock bool) (Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, fmt.Errorf("sale %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Sale{}, err
	}

	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, quantity, product_description_snapshot,
		price_at_the_time, wholesale_price_at_the_time
		FROM sale_product WHERE sale_id=$1 ORDER BY id`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	sale.Lines = make([]SaleLine, 0)
	for rows.Next() {
		var (
			l                 SaleLine
			retail, wholesale pgtype.Numeric
		)
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Quantity, &l.ProductDescriptionSnapshot, &retail, &wholesale); err != nil {
			return Sale{}, err
		}
		l.PriceAtTheTime, l.WholesalePriceAtTheTime = db.Decimal(retail), db.Decimal(wholesale)
		sale.Lines = append(sale.Lines, l)
	}
	return sale, rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var s pgSale
	err := row.Scan(&s.ID, &s.Date, &s.customer, &s.LocationID, &s.PaymentMethod, &s.IsWholesale,
		&s.packaging, &s.DiscountKind, &s.discountValue, &s.subtotal, &s.discountAmount, &s.grandTotal,
		&s.createdBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Sale{}, err
	}
	out := s.Sale
	if s.customer.Valid {
		id := s.customer.Int64
		out.CustomerID = &id
	}
	out.PackagingCost = db.Decimal(s.packaging)
	out.DiscountValue = db.Decimal(s.discountValue)
	out.Subtotal = db.Decimal(s.subtotal)
	out.DiscountTotal = db.Decimal(s.discountAmount)
	out.GrandTotal = db.Decimal(s.grandTotal)
	out.CreatedBy = s.createdBy.Int64
	return out, nil
}

// pgSale holds the nullable and numeric columns of a sales row while scanning.
type pgSale struct {
	Sale
	customer, createdBy                                            pgtype.Int8
	packaging, discountValue, subtotal, discountAmount, grandTotal pgtype.Numeric
}
