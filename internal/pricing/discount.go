package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/shared"
)

// DiscountKind names the discount directive as persisted on a sale.
type DiscountKind string

const (
	KindNone       DiscountKind = "NONE"
	KindPercentage DiscountKind = "PERCENTAGE"
	KindFinalPrice DiscountKind = "FINAL_PRICE"
)

// Discount is the discount directive of a calculation. Exactly one variant applies;
// the set of variants is closed to this package.
type Discount interface {
	Kind() DiscountKind
	isDiscount()
}

// NoDiscount leaves the pre-discount total untouched.
type NoDiscount struct{}

// Percentage takes Value percent (0..100) off the pre-discount total.
type Percentage struct {
	Value decimal.Decimal
}

// FinalPriceOverride fixes the amount the customer pays; the difference becomes the discount.
type FinalPriceOverride struct {
	Value decimal.Decimal
}

func (NoDiscount) Kind() DiscountKind         { return KindNone }
func (Percentage) Kind() DiscountKind         { return KindPercentage }
func (FinalPriceOverride) Kind() DiscountKind { return KindFinalPrice }

func (NoDiscount) isDiscount()         {}
func (Percentage) isDiscount()         {}
func (FinalPriceOverride) isDiscount() {}

// DiscountScale is the number of decimal places a directive value is stored with.
// Finer values would price differently once read back.
const DiscountScale = 4

// ParseDiscount builds a directive from the two optional wire fields.
// Supplying both is rejected, as is a value finer than DiscountScale.
func ParseDiscount(percentage, finalPrice *decimal.Decimal) (Discount, error) {
	switch {
	case percentage != nil && finalPrice != nil:
		return nil, fmt.Errorf("%w: discountPercentage and finalPrice are mutually exclusive", shared.ErrInvalidArgument)
	case percentage != nil:
		if err := checkScale("discountPercentage", *percentage); err != nil {
			return nil, err
		}
		return Percentage{Value: *percentage}, nil
	case finalPrice != nil:
		if err := checkScale("finalPrice", *finalPrice); err != nil {
			return nil, err
		}
		return FinalPriceOverride{Value: *finalPrice}, nil
	default:
		return NoDiscount{}, nil
	}
}

func checkScale(field string, v decimal.Decimal) error {
	if !v.Equal(v.Round(DiscountScale)) {
		return fmt.Errorf("%w: %s %s has more than %d decimal places", shared.ErrInvalidArgument, field, v, DiscountScale)
	}
	return nil
}

// DiscountFromRecord restores a directive from its persisted kind and value.
func DiscountFromRecord(kind DiscountKind, value decimal.Decimal) (Discount, error) {
	switch kind {
	case KindNone, "":
		return NoDiscount{}, nil
	case KindPercentage:
		return Percentage{Value: value}, nil
	case KindFinalPrice:
		return FinalPriceOverride{Value: value}, nil
	}
	return nil, fmt.Errorf("%w: unknown discount kind %q", shared.ErrInvalidArgument, kind)
}

// DiscountValue returns the directive's numeric value, zero for NoDiscount.
func DiscountValue(d Discount) decimal.Decimal {
	switch v := d.(type) {
	case Percentage:
		return v.Value
	case FinalPriceOverride:
		return v.Value
	}
	return decimal.Zero
}

// WireFields splits a directive back into the optional wire fields.
func WireFields(d Discount) (percentage, finalPrice *decimal.Decimal) {
	switch v := d.(type) {
	case Percentage:
		p := v.Value
		return &p, nil
	case FinalPriceOverride:
		f := v.Value
		return nil, &f
	}
	return nil, nil
}
