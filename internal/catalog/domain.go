package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/shared"
)

// Status is the lifecycle state of a catalog record.
type Status string

const (
	// StatusActive records can be sold, stocked and referenced by new sales.
	StatusActive Status = "ACTIVE"
	// StatusArchived records stay readable for history but reject new use.
	StatusArchived Status = "ARCHIVED"
)

// ErrInvalidTransition is returned when archiving an archived record or restoring an active one.
var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", shared.ErrInvalidArgument)

// Product is a sellable catalog item with its current prices and stock.
type Product struct {
	ID                         int64           `json:"id"`
	SKU                        string          `json:"sku"`
	Description                string          `json:"description"`
	Status                     Status          `json:"status"`
	Stock                      int64           `json:"stock"`
	LowStockAlert              int64           `json:"lowStockAlert"`
	FinalSellingPriceRetail    decimal.Decimal `json:"finalSellingPriceRetail"`
	FinalSellingPriceWholesale decimal.Decimal `json:"finalSellingPriceWholesale"`
	UpdatedAt                  time.Time       `json:"updatedAt"`
}

// Active reports whether the product accepts new sales.
func (p Product) Active() bool { return p.Status == StatusActive }

// PriceFor returns the unit price for the requested channel.
func (p Product) PriceFor(wholesale bool) decimal.Decimal {
	if wholesale {
		return p.FinalSellingPriceWholesale
	}
	return p.FinalSellingPriceRetail
}

// LowStock reports whether stock is at or below the alert threshold.
func (p Product) LowStock() bool { return p.Stock <= p.LowStockAlert }

// Location is a point of sale or storage site.
type Location struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Active reports whether the location accepts new sales.
func (l Location) Active() bool { return l.Status == StatusActive }

// Customer is a buyer referenced optionally by sales.
type Customer struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Status Status `json:"status"`
}

// Active reports whether the customer can be attached to new sales.
func (c Customer) Active() bool { return c.Status == StatusActive }

// ProductUpdate carries editable product fields; nil fields are left unchanged.
type ProductUpdate struct {
	Description                *string          `json:"description" validate:"omitempty,min=1,max=500"`
	FinalSellingPriceRetail    *decimal.Decimal `json:"finalSellingPriceRetail"`
	FinalSellingPriceWholesale *decimal.Decimal `json:"finalSellingPriceWholesale"`
	LowStockAlert              *int64           `json:"lowStockAlert" validate:"omitempty,gte=0"`
}

// Empty reports whether no field is set.
func (u ProductUpdate) Empty() bool {
	return u.Description == nil && u.FinalSellingPriceRetail == nil &&
		u.FinalSellingPriceWholesale == nil && u.LowStockAlert == nil
}
