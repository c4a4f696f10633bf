package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/atelier-erp/atelier/internal/shared"
)

// Mode selects how a change is applied to the current stock.
type Mode string

const (
	// ModeAdd increases stock by the quantity.
	ModeAdd Mode = "ADD"
	// ModeRemove decreases stock by the quantity.
	ModeRemove Mode = "REMOVE"
	// ModeSet replaces stock with the quantity.
	ModeSet Mode = "SET"
)

// Source records why stock moved.
type Source string

const (
	SourceManual       Source = "MANUAL"
	SourceSale         Source = "SALE"
	SourceSaleReversal Source = "SALE_REVERSAL"
)

// Policy decides what happens when a change would leave stock below zero.
type Policy int

const (
	// PolicyReject fails the change with ErrInsufficientStock. Used for staff-initiated removals.
	PolicyReject Policy = iota
	// PolicyBackorder lets stock go negative and flags the adjustment. Used for sales.
	PolicyBackorder
)

func (p Policy) String() string {
	if p == PolicyBackorder {
		return "backorder"
	}
	return "reject"
}

var (
	// ErrInvalidQuantity indicates a zero or negative magnitude for ADD/REMOVE, or a negative SET.
	ErrInvalidQuantity = fmt.Errorf("%w: invalid stock quantity", shared.ErrInvalidArgument)
	// ErrInvalidMode indicates a mode outside ADD/REMOVE/SET.
	ErrInvalidMode = fmt.Errorf("%w: invalid stock mode", shared.ErrInvalidArgument)
	// ErrInsufficientStock indicates a rejected change that would drive stock below zero.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrInvalidArgument)
)

// Change describes one stock mutation. Quantity is a magnitude; Mode carries the sign.
type Change struct {
	ProductID int64
	Mode      Mode
	Quantity  int64
	Source    Source
	RefID     string
	Note      string
	ActorID   int64
}

// Level is the locked stock row of a product.
type Level struct {
	ProductID     int64
	Stock         int64
	LowStockAlert int64
}

// Movement is one row of the stock ledger.
type Movement struct {
	Code          string    `json:"code"`
	ProductID     int64     `json:"productId"`
	Mode          Mode      `json:"mode"`
	Quantity      int64     `json:"quantity"`
	PreviousStock int64     `json:"previousStock"`
	NewStock      int64     `json:"newStock"`
	Source        Source    `json:"source"`
	RefID         string    `json:"refId,omitempty"`
	Note          string    `json:"note,omitempty"`
	ActorID       int64     `json:"actorId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Adjustment is the outcome of Apply.
type Adjustment struct {
	Movement
	LowStockAlert int64 `json:"lowStockAlert"`
	// Backordered is set when a backorder policy let stock fall below zero.
	Backordered bool `json:"backordered"`
	// LowStock is the derived alert status after the change (stock <= threshold).
	LowStock bool `json:"lowStock"`
}

// LowStockItem is one entry of the low-stock list.
type LowStockItem struct {
	ProductID     int64  `json:"productId"`
	SKU           string `json:"sku"`
	Description   string `json:"description"`
	Stock         int64  `json:"stock"`
	LowStockAlert int64  `json:"lowStockAlert"`
	Deficit       int64  `json:"deficit"`
}

// StockStore is the transactional surface Apply works on. Implementations must lock
// the product row in GetForUpdate until the surrounding transaction ends.
type StockStore interface {
	GetForUpdate(ctx context.Context, productID int64) (Level, error)
	SetStock(ctx context.Context, productID, stock int64) error
	InsertMovement(ctx context.Context, m Movement) error
}
