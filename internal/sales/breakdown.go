package sales

import (
	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/pricing"
)

// Breakdown is the wire form of a pricing.Result.
type Breakdown struct {
	Lines                       []BreakdownLine  `json:"lines"`
	Subtotal                    decimal.Decimal  `json:"subtotal"`
	PackagingCost               decimal.Decimal  `json:"packagingCost"`
	PreDiscountTotal            decimal.Decimal  `json:"preDiscountTotal"`
	DiscountAmount              decimal.Decimal  `json:"discountAmount"`
	PackagingDiscount           decimal.Decimal  `json:"packagingDiscount"`
	FinalTotal                  decimal.Decimal  `json:"finalTotal"`
	EffectiveDiscountPercentage decimal.Decimal  `json:"effectiveDiscountPercentage"`
	DiscountPercentage          *decimal.Decimal `json:"discountPercentage,omitempty"`
	FinalPrice                  *decimal.Decimal `json:"finalPrice,omitempty"`
}

// BreakdownLine is one priced line of a Breakdown.
type BreakdownLine struct {
	ProductID         int64           `json:"productId"`
	Description       string          `json:"description"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	AllocatedDiscount decimal.Decimal `json:"allocatedDiscount"`
	FinalPrice        decimal.Decimal `json:"finalPrice"`
}

// NewBreakdown converts an engine result for the wire.
func NewBreakdown(res pricing.Result) Breakdown {
	b := Breakdown{
		Lines:                       make([]BreakdownLine, len(res.Lines)),
		Subtotal:                    res.Subtotal,
		PackagingCost:               res.PackagingCost,
		PreDiscountTotal:            res.PreDiscountTotal,
		DiscountAmount:              res.DiscountAmount,
		PackagingDiscount:           res.PackagingDiscount,
		FinalTotal:                  res.FinalTotal,
		EffectiveDiscountPercentage: res.EffectiveDiscountPercentage,
	}
	if res.Discount != nil {
		b.DiscountPercentage, b.FinalPrice = pricing.WireFields(res.Discount)
	}
	for i, l := range res.Lines {
		b.Lines[i] = BreakdownLine{
			ProductID:         l.ProductID,
			Description:       l.Description,
			Quantity:          l.Quantity,
			UnitPrice:         l.UnitPrice,
			Subtotal:          l.Subtotal,
			AllocatedDiscount: l.AllocatedDiscount,
			FinalPrice:        l.FinalPrice,
		}
	}
	return b
}

// snapshotRequest rebuilds the engine request of a stored sale from its line
// snapshots, never from live product prices.
func snapshotRequest(sale Sale, discount pricing.Discount) pricing.Request {
	lines := make([]pricing.Line, len(sale.Lines))
	for i, l := range sale.Lines {
		lines[i] = pricing.Line{
			ProductID:   l.ProductID,
			Description: l.ProductDescriptionSnapshot,
			Quantity:    decimal.NewFromInt(l.Quantity),
			UnitPrice:   l.UnitPrice(sale.IsWholesale),
		}
	}
	return pricing.Request{
		Lines:         lines,
		Wholesale:     sale.IsWholesale,
		PackagingCost: sale.PackagingCost,
		Discount:      discount,
	}
}
