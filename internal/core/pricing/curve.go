// Package pricing implements the linear bonding curve that prices tradable
// assets. Everything here is pure: no storage, no clocks, no shared state.
package pricing

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCurve      = errors.New("pricing: base price must be positive, increment non-negative and supply positive")
	ErrInvalidQuantity   = errors.New("pricing: quantity must be a positive whole number of units")
	ErrExceedsSupply     = errors.New("pricing: purchase exceeds total supply")
	ErrCostExceedsBudget = errors.New("pricing: cost exceeds budget")
	ErrGraduated         = errors.New("pricing: asset has graduated off the curve")
)

var half = decimal.New(5, -1)

// Curve is a linear bonding curve: price(s) = BasePrice + s * Increment,
// where s is the number of units already sold.
type Curve struct {
	BasePrice   decimal.Decimal
	Increment   decimal.Decimal
	TotalSupply decimal.Decimal
}

// Quote is the result of pricing a purchase of Quantity units.
type Quote struct {
	Quantity      decimal.Decimal
	TotalCost     decimal.Decimal
	AveragePrice  decimal.Decimal
	NewTokensSold decimal.Decimal
	NewPrice      decimal.Decimal
}

// NewCurve validates the parameters and returns a Curve.
func NewCurve(basePrice, increment, totalSupply decimal.Decimal) (Curve, error) {
	if !basePrice.IsPositive() || increment.IsNegative() || !totalSupply.IsPositive() {
		return Curve{}, ErrInvalidCurve
	}
	return Curve{BasePrice: basePrice, Increment: increment, TotalSupply: totalSupply}, nil
}

// PriceAt returns the marginal price of the next unit after tokensSold units.
// Monotonically non-decreasing in tokensSold.
func (c Curve) PriceAt(tokensSold decimal.Decimal) decimal.Decimal {
	return c.BasePrice.Add(tokensSold.Mul(c.Increment))
}

// CostToBuy prices quantity units starting at tokensSold. The cost is the
// exact arithmetic series sum_{i=0}^{n-1} price(s+i) in closed form:
//
//	n*price(s) + inc*n*(n-1)/2
//
// A purchase that would push sales past total supply is rejected, never clipped.
func (c Curve) CostToBuy(tokensSold, quantity decimal.Decimal) (Quote, error) {
	if !quantity.IsPositive() || !quantity.Equal(quantity.Truncate(0)) {
		return Quote{}, ErrInvalidQuantity
	}

	newSold := tokensSold.Add(quantity)
	if newSold.GreaterThan(c.TotalSupply) {
		return Quote{}, ErrExceedsSupply
	}

	cost := c.seriesCost(tokensSold, quantity)
	return Quote{
		Quantity:      quantity,
		TotalCost:     cost,
		AveragePrice:  cost.Div(quantity),
		NewTokensSold: newSold,
		NewPrice:      c.PriceAt(newSold),
	}, nil
}

// QuoteWithinBudget prices quantity and additionally rejects the purchase
// when its cost exceeds budget.
func (c Curve) QuoteWithinBudget(tokensSold, quantity, budget decimal.Decimal) (Quote, error) {
	q, err := c.CostToBuy(tokensSold, quantity)
	if err != nil {
		return Quote{}, err
	}
	if q.TotalCost.GreaterThan(budget) {
		return Quote{}, ErrCostExceedsBudget
	}
	return q, nil
}

// QuantityForBudget returns the largest whole quantity whose series cost does
// not exceed budget. It solves inc/2*n^2 + (p0 - inc/2)*n - budget = 0 in
// float64 and then corrects the estimate against the exact decimal cost, so
// the result is deterministic for given inputs. Supply is not considered here.
func (c Curve) QuantityForBudget(tokensSold, budget decimal.Decimal) decimal.Decimal {
	if !budget.IsPositive() {
		return decimal.Zero
	}

	p0 := c.PriceAt(tokensSold)
	var estimate float64
	if c.Increment.IsZero() {
		estimate = budget.Div(p0).Floor().InexactFloat64()
	} else {
		inc := c.Increment.InexactFloat64()
		b := p0.InexactFloat64() - inc/2
		disc := b*b + 2*inc*budget.InexactFloat64()
		estimate = math.Floor((-b + math.Sqrt(disc)) / inc)
	}
	if estimate < 0 || math.IsNaN(estimate) || math.IsInf(estimate, 0) {
		estimate = 0
	}

	n := decimal.NewFromFloat(estimate).Floor()
	one := decimal.NewFromInt(1)
	for n.IsPositive() && c.seriesCost(tokensSold, n).GreaterThan(budget) {
		n = n.Sub(one)
	}
	for !c.seriesCost(tokensSold, n.Add(one)).GreaterThan(budget) {
		n = n.Add(one)
	}
	return n
}

// Graduates reports whether raised liquidity has crossed threshold. A
// non-positive threshold never graduates.
func Graduates(liquidityRaised, threshold decimal.Decimal) bool {
	return threshold.IsPositive() && liquidityRaised.GreaterThanOrEqual(threshold)
}

// MarketCap is price times total supply.
func (c Curve) MarketCap(price decimal.Decimal) decimal.Decimal {
	return price.Mul(c.TotalSupply)
}

func (c Curve) seriesCost(tokensSold, n decimal.Decimal) decimal.Decimal {
	if !n.IsPositive() {
		return decimal.Zero
	}
	linear := n.Mul(c.PriceAt(tokensSold))
	// n*(n-1) is always even, so the halving is exact.
	triangle := n.Mul(n.Sub(decimal.NewFromInt(1))).Mul(half)
	return linear.Add(c.Increment.Mul(triangle))
}
