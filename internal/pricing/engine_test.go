package pricing

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s got %s %v", want, got, msgAndArgs)
}

func line(id int64, qty, price string) Line {
	return Line{ProductID: id, Quantity: dec(qty), UnitPrice: dec(price)}
}

func TestCalculateEmptyCart(t *testing.T) {
	res, err := Calculate(Request{})
	require.NoError(t, err)
	requireDec(t, "0", res.Subtotal)
	requireDec(t, "0", res.PreDiscountTotal)
	requireDec(t, "0", res.DiscountAmount)
	requireDec(t, "0", res.FinalTotal)
	requireDec(t, "0", res.EffectiveDiscountPercentage)
	assert.Empty(t, res.Lines)
	assert.Equal(t, KindNone, res.Discount.Kind())
}

func TestCalculatePercentage(t *testing.T) {
	res, err := Calculate(Request{
		Lines:    []Line{line(1, "1", "100.00")},
		Discount: Percentage{Value: dec("20")},
	})
	require.NoError(t, err)
	requireDec(t, "20.00", res.DiscountAmount)
	requireDec(t, "80.00", res.FinalTotal)
	requireDec(t, "20", res.EffectiveDiscountPercentage)
	requireDec(t, "80.00", res.Lines[0].FinalPrice)
}

func TestCalculatePercentageIncludesPackaging(t *testing.T) {
	res, err := Calculate(Request{
		Lines:         []Line{line(1, "2", "45.00")},
		PackagingCost: dec("10.00"),
		Discount:      Percentage{Value: dec("10")},
	})
	require.NoError(t, err)
	requireDec(t, "90.00", res.Subtotal)
	requireDec(t, "100.00", res.PreDiscountTotal)
	requireDec(t, "10.00", res.DiscountAmount)
	requireDec(t, "90.00", res.FinalTotal)
	requireDec(t, "10.00", res.Lines[0].AllocatedDiscount)
	requireDec(t, "0", res.PackagingDiscount)
}

func TestCalculateOverride(t *testing.T) {
	res, err := Calculate(Request{
		Lines:    []Line{line(1, "1", "60.00"), line(2, "2", "20.00")},
		Discount: FinalPriceOverride{Value: dec("75.00")},
	})
	require.NoError(t, err)
	requireDec(t, "100.00", res.PreDiscountTotal)
	requireDec(t, "25.00", res.DiscountAmount)
	requireDec(t, "75.00", res.FinalTotal)
	requireDec(t, "25", res.EffectiveDiscountPercentage)
	requireDec(t, "15.00", res.Lines[0].AllocatedDiscount)
	requireDec(t, "10.00", res.Lines[1].AllocatedDiscount)
}

func TestCalculateOverrideAboveTotalClamps(t *testing.T) {
	res, err := Calculate(Request{
		Lines:         []Line{line(1, "1", "50.00")},
		PackagingCost: dec("5.00"),
		Discount:      FinalPriceOverride{Value: dec("80.00")},
	})
	require.NoError(t, err)
	requireDec(t, "0", res.DiscountAmount)
	requireDec(t, "55.00", res.FinalTotal)
	requireDec(t, "0", res.EffectiveDiscountPercentage)
}

func TestCalculateOverrideOnZeroTotal(t *testing.T) {
	res, err := Calculate(Request{Discount: FinalPriceOverride{Value: dec("0")}})
	require.NoError(t, err)
	requireDec(t, "0", res.DiscountAmount)
	requireDec(t, "0", res.EffectiveDiscountPercentage)
}

func TestCalculateRoundingRemainderGoesToLargestLine(t *testing.T) {
	res, err := Calculate(Request{
		Lines: []Line{
			line(1, "1", "10.00"),
			line(2, "1", "10.00"),
			line(3, "1", "10.00"),
		},
		Discount: FinalPriceOverride{Value: dec("20.00")},
	})
	require.NoError(t, err)
	requireDec(t, "10.00", res.DiscountAmount)
	// 3.33 each, the tie goes to the first line.
	requireDec(t, "3.34", res.Lines[0].AllocatedDiscount)
	requireDec(t, "3.33", res.Lines[1].AllocatedDiscount)
	requireDec(t, "3.33", res.Lines[2].AllocatedDiscount)

	res, err = Calculate(Request{
		Lines:    []Line{line(1, "1", "10.00"), line(2, "1", "20.00")},
		Discount: FinalPriceOverride{Value: dec("29.99")},
	})
	require.NoError(t, err)
	requireDec(t, "0.01", res.DiscountAmount)
	requireDec(t, "0", res.Lines[0].AllocatedDiscount)
	requireDec(t, "0.01", res.Lines[1].AllocatedDiscount)
}

func TestCalculateNegativeRemainderNeverGoesBelowZero(t *testing.T) {
	lines := make([]Line, 5)
	for i := range lines {
		lines[i] = line(int64(i+1), "1", "0.01")
	}
	res, err := Calculate(Request{Lines: lines, Discount: FinalPriceOverride{Value: dec("0.02")}})
	require.NoError(t, err)
	requireDec(t, "0.03", res.DiscountAmount)
	want := []string{"0", "0", "0.01", "0.01", "0.01"}
	for i, l := range res.Lines {
		requireDec(t, want[i], l.AllocatedDiscount, i)
	}
}

func TestCalculateDiscountBeyondLinesSpillsToPackaging(t *testing.T) {
	res, err := Calculate(Request{
		Lines:         []Line{line(1, "1", "5.00")},
		PackagingCost: dec("20.00"),
		Discount:      FinalPriceOverride{Value: dec("10.00")},
	})
	require.NoError(t, err)
	requireDec(t, "15.00", res.DiscountAmount)
	requireDec(t, "5.00", res.Lines[0].AllocatedDiscount)
	requireDec(t, "0", res.Lines[0].FinalPrice)
	requireDec(t, "10.00", res.PackagingDiscount)
	requireDec(t, "10.00", res.FinalTotal)
}

func TestCalculateZeroSubtotalLines(t *testing.T) {
	res, err := Calculate(Request{
		Lines:    []Line{line(1, "0", "10.00"), line(2, "1", "0")},
		Discount: Percentage{Value: dec("50")},
	})
	require.NoError(t, err)
	requireDec(t, "0", res.FinalTotal)
	for _, l := range res.Lines {
		requireDec(t, "0", l.AllocatedDiscount)
	}
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	cases := map[string]struct {
		req  Request
		want error
	}{
		"negative quantity":  {Request{Lines: []Line{line(1, "-1", "10")}}, ErrNegativeQuantity},
		"negative price":     {Request{Lines: []Line{line(1, "1", "-10")}}, ErrNegativePrice},
		"negative packaging": {Request{PackagingCost: dec("-1")}, ErrNegativePackaging},
		"percentage above":   {Request{Discount: Percentage{Value: dec("100.01")}}, ErrPercentageRange},
		"percentage below":   {Request{Discount: Percentage{Value: dec("-1")}}, ErrPercentageRange},
		"negative override":  {Request{Discount: FinalPriceOverride{Value: dec("-0.01")}}, ErrNegativeOverride},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Calculate(tc.req)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, shared.ErrInvalidArgument)
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	req := Request{
		Lines:         []Line{line(1, "3", "19.99"), line(2, "1", "7.45")},
		PackagingCost: dec("2.50"),
		Discount:      Percentage{Value: dec("12.5")},
	}
	first, err := Calculate(req)
	require.NoError(t, err)
	second, err := Calculate(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// Sum invariants over randomly generated carts and directives.
func TestCalculateAllocationInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	cents := func(max int) decimal.Decimal {
		return decimal.New(int64(rng.IntN(max)), -2)
	}
	for i := 0; i < 500; i++ {
		lines := make([]Line, rng.IntN(6))
		for j := range lines {
			lines[j] = Line{
				ProductID: int64(j + 1),
				Quantity:  decimal.NewFromInt(int64(rng.IntN(5))),
				UnitPrice: cents(100000),
			}
		}
		var discount Discount = NoDiscount{}
		switch rng.IntN(3) {
		case 1:
			discount = Percentage{Value: decimal.New(int64(rng.IntN(10001)), -2)}
		case 2:
			discount = FinalPriceOverride{Value: cents(300000)}
		}
		req := Request{Lines: lines, PackagingCost: cents(3000), Discount: discount}

		res, err := Calculate(req)
		require.NoError(t, err)

		allocated, finals := decimal.Zero, decimal.Zero
		for _, l := range res.Lines {
			allocated = allocated.Add(l.AllocatedDiscount)
			finals = finals.Add(l.FinalPrice)
			require.False(t, l.FinalPrice.IsNegative(), "case %d", i)
		}
		require.True(t, allocated.Add(res.PackagingDiscount).Equal(res.DiscountAmount), "case %d", i)
		require.True(t, finals.Add(res.PackagingCost).Sub(res.PackagingDiscount).Equal(res.FinalTotal), "case %d", i)
		require.True(t, res.PreDiscountTotal.Sub(res.DiscountAmount).Equal(res.FinalTotal), "case %d", i)
		require.False(t, res.DiscountAmount.IsNegative(), "case %d", i)
		if res.DiscountAmount.LessThanOrEqual(res.Subtotal) {
			require.True(t, allocated.Equal(res.DiscountAmount), "case %d", i)
			require.True(t, res.PackagingDiscount.IsZero(), "case %d", i)
		}
	}
}
