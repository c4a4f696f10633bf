package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-erp/atelier/internal/shared"
)

// Apply is the single code path for stock mutations. It must run inside the caller's
// transaction: the level read locks the product row, and the stock write and ledger
// insert commit or roll back with everything else the caller does.
func Apply(ctx context.Context, store StockStore, change Change, policy Policy) (Adjustment, error) {
	if err := validateChange(change); err != nil {
		return Adjustment{}, err
	}
	level, err := store.GetForUpdate(ctx, change.ProductID)
	if err != nil {
		return Adjustment{}, fmt.Errorf("lock stock of product %d: %w", change.ProductID, err)
	}

	next := level.Stock
	switch change.Mode {
	case ModeAdd:
		next += change.Quantity
	case ModeRemove:
		next -= change.Quantity
	case ModeSet:
		next = change.Quantity
	}
	// Only an overdrawing REMOVE is refused; a partial restock may leave stock negative.
	if change.Mode == ModeRemove && next < 0 && policy == PolicyReject {
		return Adjustment{}, fmt.Errorf("product %d has %d, cannot remove %d: %w", change.ProductID, level.Stock, change.Quantity, ErrInsufficientStock)
	}

	if err := store.SetStock(ctx, change.ProductID, next); err != nil {
		return Adjustment{}, fmt.Errorf("set stock of product %d: %w", change.ProductID, err)
	}
	source := change.Source
	if source == "" {
		source = SourceManual
	}
	movement := Movement{
		Code:          uuid.NewString(),
		ProductID:     change.ProductID,
		Mode:          change.Mode,
		Quantity:      change.Quantity,
		PreviousStock: level.Stock,
		NewStock:      next,
		Source:        source,
		RefID:         change.RefID,
		Note:          change.Note,
		ActorID:       change.ActorID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.InsertMovement(ctx, movement); err != nil {
		return Adjustment{}, fmt.Errorf("insert stock movement: %w", err)
	}
	return Adjustment{
		Movement:      movement,
		LowStockAlert: level.LowStockAlert,
		Backordered:   next < 0,
		LowStock:      next <= level.LowStockAlert,
	}, nil
}

func validateChange(c Change) error {
	if c.ProductID <= 0 {
		return fmt.Errorf("%w: product id required", shared.ErrInvalidArgument)
	}
	switch c.Mode {
	case ModeAdd, ModeRemove:
		if c.Quantity <= 0 {
			return fmt.Errorf("%s %d: %w", c.Mode, c.Quantity, ErrInvalidQuantity)
		}
	case ModeSet:
		if c.Quantity < 0 {
			return fmt.Errorf("%s %d: %w", c.Mode, c.Quantity, ErrInvalidQuantity)
		}
	default:
		return fmt.Errorf("%q: %w", c.Mode, ErrInvalidMode)
	}
	return nil
}
