package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func referenceCurve(t *testing.T) Curve {
	t.Helper()
	c, err := NewCurve(d("0.001"), d("0.00000001"), d("1000000000"))
	require.NoError(t, err)
	return c
}

// iterativeCost sums the marginal price unit by unit.
func iterativeCost(c Curve, sold decimal.Decimal, n int64) decimal.Decimal {
	total := decimal.Zero
	for i := int64(0); i < n; i++ {
		total = total.Add(c.PriceAt(sold.Add(decimal.NewFromInt(i))))
	}
	return total
}

func TestNewCurve_Validation(t *testing.T) {
	_, err := NewCurve(decimal.Zero, d("0.1"), d("100"))
	assert.ErrorIs(t, err, ErrInvalidCurve)

	_, err = NewCurve(d("1"), d("-0.1"), d("100"))
	assert.ErrorIs(t, err, ErrInvalidCurve)

	_, err = NewCurve(d("1"), d("0.1"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidCurve)

	_, err = NewCurve(d("1"), decimal.Zero, d("100"))
	assert.NoError(t, err, "flat curve is allowed")
}

func TestPriceAt_Monotonic(t *testing.T) {
	c := referenceCurve(t)

	assert.True(t, c.PriceAt(decimal.Zero).Equal(d("0.001")))
	assert.True(t, c.PriceAt(d("100000")).Equal(d("0.002")))

	prev := c.PriceAt(decimal.Zero)
	for _, s := range []string{"1", "10", "1000", "999999", "500000000"} {
		p := c.PriceAt(d(s))
		assert.True(t, p.GreaterThanOrEqual(prev), "price must not decrease at %s", s)
		prev = p
	}
}

func TestCostToBuy_MatchesIterativeSum(t *testing.T) {
	curves := []Curve{
		referenceCurve(t),
		{BasePrice: d("2.5"), Increment: d("0.25"), TotalSupply: d("100000")},
		{BasePrice: d("1"), Increment: decimal.Zero, TotalSupply: d("100000")},
	}
	cases := []struct {
		sold string
		n    int64
	}{
		{"0", 1},
		{"0", 2},
		{"0", 1000},
		{"12345", 777},
		{"99000", 1000},
	}

	for _, c := range curves {
		for _, tc := range cases {
			sold := d(tc.sold)
			q, err := c.CostToBuy(sold, decimal.NewFromInt(tc.n))
			require.NoError(t, err)

			want := iterativeCost(c, sold, tc.n)
			assert.True(t, q.TotalCost.Equal(want), "closed form %s != iterative %s", q.TotalCost, want)

			// Float rendition agrees within rounding tolerance too.
			assert.InDelta(t, want.InexactFloat64(), q.TotalCost.InexactFloat64(), 1e-9*want.InexactFloat64()+1e-12)

			assert.True(t, q.NewTokensSold.Equal(sold.Add(decimal.NewFromInt(tc.n))))
			assert.True(t, q.NewPrice.Equal(c.PriceAt(q.NewTokensSold)))
		}
	}
}

func TestCostToBuy_RejectsInvalidQuantity(t *testing.T) {
	c := referenceCurve(t)
	for _, q := range []string{"0", "-1", "1.5"} {
		_, err := c.CostToBuy(decimal.Zero, d(q))
		assert.ErrorIs(t, err, ErrInvalidQuantity, q)
	}
}

func TestCostToBuy_RejectsBeyondSupply(t *testing.T) {
	c := Curve{BasePrice: d("1"), Increment: d("0.01"), TotalSupply: d("1000")}

	_, err := c.CostToBuy(d("990"), d("11"))
	assert.ErrorIs(t, err, ErrExceedsSupply)

	q, err := c.CostToBuy(d("990"), d("10"))
	require.NoError(t, err, "exactly reaching supply is allowed")
	assert.True(t, q.NewTokensSold.Equal(d("1000")))
}

func TestQuoteWithinBudget(t *testing.T) {
	c := Curve{BasePrice: d("1"), Increment: d("1"), TotalSupply: d("1000")}

	// 1 + 2 + 3 = 6
	q, err := c.QuoteWithinBudget(decimal.Zero, d("3"), d("6"))
	require.NoError(t, err)
	assert.True(t, q.TotalCost.Equal(d("6")))
	assert.True(t, q.AveragePrice.Equal(d("2")))

	_, err = c.QuoteWithinBudget(decimal.Zero, d("3"), d("5.99"))
	assert.ErrorIs(t, err, ErrCostExceedsBudget)
}

func TestQuantityForBudget_IsMaximal(t *testing.T) {
	curves := []Curve{
		referenceCurve(t),
		{BasePrice: d("1"), Increment: d("1"), TotalSupply: d("1000000")},
		{BasePrice: d("3"), Increment: decimal.Zero, TotalSupply: d("1000000")},
	}
	budgets := []string{"0.5", "1", "6", "1500", "2000", "123456.78"}

	for _, c := range curves {
		for _, sold := range []string{"0", "500", "250000"} {
			for _, b := range budgets {
				budget := d(b)
				n := c.QuantityForBudget(d(sold), budget)
				if n.IsZero() {
					assert.True(t, c.PriceAt(d(sold)).GreaterThan(budget))
					continue
				}
				q, err := c.CostToBuy(d(sold), n)
				require.NoError(t, err)
				assert.True(t, q.TotalCost.LessThanOrEqual(budget), "cost %s over budget %s", q.TotalCost, budget)

				next, err := c.CostToBuy(d(sold), n.Add(decimal.NewFromInt(1)))
				require.NoError(t, err)
				assert.True(t, next.TotalCost.GreaterThan(budget), "n=%s is not maximal", n)
			}
		}
	}
}

func TestQuantityForBudget_ReferenceScenario(t *testing.T) {
	c := referenceCurve(t)
	n := c.QuantityForBudget(decimal.Zero, d("1500"))
	assert.True(t, n.IsPositive())

	q, err := c.QuoteWithinBudget(decimal.Zero, n, d("1500"))
	require.NoError(t, err)
	assert.True(t, q.NewTokensSold.Equal(n))
	assert.True(t, q.NewPrice.Equal(c.PriceAt(n)))
}

func TestQuantityForBudget_NonPositiveBudget(t *testing.T) {
	c := referenceCurve(t)
	assert.True(t, c.QuantityForBudget(decimal.Zero, decimal.Zero).IsZero())
	assert.True(t, c.QuantityForBudget(decimal.Zero, d("-5")).IsZero())
}

func TestMarketCap(t *testing.T) {
	c := Curve{BasePrice: d("1"), Increment: d("0.5"), TotalSupply: d("1000")}
	assert.True(t, c.MarketCap(d("2")).Equal(d("2000")))
}

func TestGraduates(t *testing.T) {
	assert.False(t, Graduates(d("999"), d("1000")))
	assert.True(t, Graduates(d("1000"), d("1000")))
	assert.True(t, Graduates(d("1500"), d("1000")))
	assert.False(t, Graduates(d("1500"), decimal.Zero), "zero threshold disables graduation")
}
