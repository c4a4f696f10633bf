package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/pricing"
	"github.com/atelier-erp/atelier/internal/shared"
)

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentCard     PaymentMethod = "CARD"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentOther    PaymentMethod = "OTHER"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentOther:
		return true
	}
	return false
}

// ErrEmptySale is returned when a sale is recorded without items.
var ErrEmptySale = fmt.Errorf("%w: a sale needs at least one item", shared.ErrInvalidArgument)

// Sale is the persisted sale aggregate.
type Sale struct {
	ID            int64                `json:"id"`
	Date          time.Time            `json:"date"`
	CustomerID    *int64               `json:"customerId"`
	LocationID    int64                `json:"locationId"`
	PaymentMethod PaymentMethod        `json:"paymentMethod"`
	IsWholesale   bool                 `json:"isWholesale"`
	PackagingCost decimal.Decimal      `json:"packagingCost"`
	DiscountKind  pricing.DiscountKind `json:"discountKind"`
	DiscountValue decimal.Decimal      `json:"discountValue"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	DiscountTotal decimal.Decimal      `json:"discountAmount"`
	GrandTotal    decimal.Decimal      `json:"grandTotal"`
	CreatedBy     int64                `json:"createdBy,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	Lines         []SaleLine           `json:"lines"`
}

// Discount restores the directive recorded on the sale.
func (s Sale) Discount() (pricing.Discount, error) {
	return pricing.DiscountFromRecord(s.DiscountKind, s.DiscountValue)
}

// SaleLine is a write-once line of a sale. The snapshot fields keep the product's
// description and prices as they were when the sale was recorded.
type SaleLine struct {
	ID                         int64           `json:"id"`
	SaleID                     int64           `json:"saleId"`
	ProductID                  int64           `json:"productId"`
	Quantity                   int64           `json:"quantity"`
	ProductDescriptionSnapshot string          `json:"productDescriptionSnapshot"`
	PriceAtTheTime             decimal.Decimal `json:"priceAtTheTime"`
	WholesalePriceAtTheTime    decimal.Decimal `json:"wholesalePriceAtTheTime"`
}

// UnitPrice returns the snapshot price of the sale's channel.
func (l SaleLine) UnitPrice(wholesale bool) decimal.Decimal {
	if wholesale {
		return l.WholesalePriceAtTheTime
	}
	return l.PriceAtTheTime
}

// CartLine is a priced, unpersisted cart entry.
type CartLine struct {
	ProductID    int64           `json:"productId"`
	Description  string          `json:"description"`
	Quantity     int64           `json:"quantity"`
	IsWholesale  bool            `json:"isWholesale"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	CurrentStock int64           `json:"currentStock"`
	LowStock     bool            `json:"lowStock"`
}

// PricingLine converts the cart line into engine input.
func (c CartLine) PricingLine() pricing.Line {
	return pricing.Line{
		ProductID:   c.ProductID,
		Description: c.Description,
		Quantity:    decimal.NewFromInt(c.Quantity),
		UnitPrice:   c.UnitPrice,
	}
}

// ItemInput is one requested product and quantity.
type ItemInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"gt=0"`
}

// RecordSaleInput carries everything needed to record a sale.
type RecordSaleInput struct {
	Date           time.Time
	LocationID     int64
	CustomerID     *int64
	PaymentMethod  PaymentMethod
	Items          []ItemInput
	IsWholesale    bool
	PackagingCost  decimal.Decimal
	Discount       pricing.Discount
	IdempotencyKey string
}

// UpdateSaleInput is the header-only update of a sale.
type UpdateSaleInput struct {
	ID            int64
	CustomerID    *int64
	LocationID    int64
	PaymentMethod PaymentMethod
	Discount      pricing.Discount
}

// PricingPreviewInput is a cart priced without recording anything.
type PricingPreviewInput struct {
	Items         []ItemInput
	IsWholesale   bool
	PackagingCost decimal.Decimal
	Discount      pricing.Discount
}

// ListFilter narrows ListSales.
type ListFilter struct {
	From       *time.Time
	To         *time.Time
	LocationID *int64
	Page       int
	PerPage    int
}

// SaleDetail is a sale with its recomputed price breakdown.
type SaleDetail struct {
	Sale
	Breakdown Breakdown `json:"breakdown"`
}
