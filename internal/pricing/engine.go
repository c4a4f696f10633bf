// Package pricing computes sale price breakdowns. It performs no I/O and is safe
// for concurrent use.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/shared"
)

// Precision is the number of currency decimal places; rounding is half-up.
const Precision = 2

var hundred = decimal.NewFromInt(100)

var (
	// ErrNegativeQuantity is returned when a line quantity is below zero.
	ErrNegativeQuantity = fmt.Errorf("%w: quantity must not be negative", shared.ErrInvalidArgument)
	// ErrNegativePrice is returned when a unit price is below zero.
	ErrNegativePrice = fmt.Errorf("%w: unit price must not be negative", shared.ErrInvalidArgument)
	// ErrNegativePackaging is returned when the packaging cost is below zero.
	ErrNegativePackaging = fmt.Errorf("%w: packaging cost must not be negative", shared.ErrInvalidArgument)
	// ErrPercentageRange is returned when a percentage lies outside [0,100].
	ErrPercentageRange = fmt.Errorf("%w: discount percentage must be within [0,100]", shared.ErrInvalidArgument)
	// ErrNegativeOverride is returned when a final price override is below zero.
	ErrNegativeOverride = fmt.Errorf("%w: final price must not be negative", shared.ErrInvalidArgument)
)

// Line is one cart line with its channel-selected unit price.
type Line struct {
	ProductID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Request is the input of Calculate. A nil Discount means NoDiscount.
type Request struct {
	Lines         []Line
	Wholesale     bool
	PackagingCost decimal.Decimal
	Discount      Discount
}

// LineResult carries the priced line and its share of the discount.
type LineResult struct {
	Line
	Subtotal          decimal.Decimal
	AllocatedDiscount decimal.Decimal
	FinalPrice        decimal.Decimal
}

// Result is the full breakdown of a calculation.
//
// Lines carry at most Subtotal worth of discount. When the discount exceeds the
// line subtotal (only possible with packaging), the excess is PackagingDiscount,
// so sum(AllocatedDiscount) + PackagingDiscount == DiscountAmount and
// sum(FinalPrice) + PackagingCost - PackagingDiscount == FinalTotal, always.
type Result struct {
	Lines                       []LineResult
	Subtotal                    decimal.Decimal
	PackagingCost               decimal.Decimal
	PreDiscountTotal            decimal.Decimal
	DiscountAmount              decimal.Decimal
	PackagingDiscount           decimal.Decimal
	FinalTotal                  decimal.Decimal
	EffectiveDiscountPercentage decimal.Decimal
	Discount                    Discount
}

// Calculate prices the request.
func Calculate(req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	discount := req.Discount
	if discount == nil {
		discount = NoDiscount{}
	}

	res := Result{
		Lines:         make([]LineResult, len(req.Lines)),
		PackagingCost: round(req.PackagingCost),
		Discount:      discount,
	}
	subtotal := decimal.Zero
	for i, line := range req.Lines {
		sub := round(line.Quantity.Mul(line.UnitPrice))
		res.Lines[i] = LineResult{Line: line, Subtotal: sub}
		subtotal = subtotal.Add(sub)
	}
	res.Subtotal = subtotal
	res.PreDiscountTotal = subtotal.Add(res.PackagingCost)

	switch d := discount.(type) {
	case FinalPriceOverride:
		amount := round(res.PreDiscountTotal.Sub(d.Value))
		if amount.IsNegative() {
			amount = decimal.Zero
		}
		res.DiscountAmount = amount
		if res.PreDiscountTotal.IsPositive() {
			res.EffectiveDiscountPercentage = round(amount.Mul(hundred).Div(res.PreDiscountTotal))
		}
	case Percentage:
		res.DiscountAmount = round(res.PreDiscountTotal.Mul(d.Value).Div(hundred))
		res.EffectiveDiscountPercentage = d.Value
	default:
		res.DiscountAmount = decimal.Zero
		res.EffectiveDiscountPercentage = decimal.Zero
	}
	res.FinalTotal = res.PreDiscountTotal.Sub(res.DiscountAmount)

	lineDiscount := decimal.Min(res.DiscountAmount, subtotal)
	res.PackagingDiscount = res.DiscountAmount.Sub(lineDiscount)
	allocate(res.Lines, subtotal, lineDiscount)
	return res, nil
}

// allocate spreads amount over lines proportionally to their subtotals and puts the
// rounding remainder on the largest line (the first one on ties).
func allocate(lines []LineResult, subtotal, amount decimal.Decimal) {
	if len(lines) == 0 {
		return
	}
	allocated := decimal.Zero
	largest := 0
	for i := range lines {
		share := decimal.Zero
		if subtotal.IsPositive() {
			share = round(lines[i].Subtotal.Mul(amount).Div(subtotal))
		}
		lines[i].AllocatedDiscount = share
		allocated = allocated.Add(share)
		if lines[i].Subtotal.GreaterThan(lines[largest].Subtotal) {
			largest = i
		}
	}
	// Each line's discount stays within [0, subtotal]; what the largest line cannot
	// absorb moves on in cart order.
	remainder := absorb(&lines[largest], amount.Sub(allocated))
	for i := 0; i < len(lines) && !remainder.IsZero(); i++ {
		remainder = absorb(&lines[i], remainder)
	}
	for i := range lines {
		lines[i].FinalPrice = lines[i].Subtotal.Sub(lines[i].AllocatedDiscount)
	}
}

func absorb(line *LineResult, amount decimal.Decimal) decimal.Decimal {
	var take decimal.Decimal
	if amount.IsPositive() {
		take = decimal.Min(line.Subtotal.Sub(line.AllocatedDiscount), amount)
	} else {
		take = decimal.Max(line.AllocatedDiscount.Neg(), amount)
	}
	line.AllocatedDiscount = line.AllocatedDiscount.Add(take)
	return amount.Sub(take)
}

func validate(req Request) error {
	for i, line := range req.Lines {
		if line.Quantity.IsNegative() {
			return fmt.Errorf("line %d: %w", i, ErrNegativeQuantity)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("line %d: %w", i, ErrNegativePrice)
		}
	}
	if req.PackagingCost.IsNegative() {
		return ErrNegativePackaging
	}
	switch d := req.Discount.(type) {
	case Percentage:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return ErrPercentageRange
		}
	case FinalPriceOverride:
		if d.Value.IsNegative() {
			return ErrNegativeOverride
		}
	}
	return nil
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}
