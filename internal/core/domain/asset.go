package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement-engine/internal/core/pricing"
)

// Asset is a tradable asset priced on a linear bonding curve until it graduates.
type Asset struct {
	ID                  uuid.UUID       `json:"id"`
	Symbol              string          `json:"symbol"`
	Name                string          `json:"name"`
	BasePrice           decimal.Decimal `json:"base_price"`
	PriceIncrement      decimal.Decimal `json:"price_increment"`
	TokensSold          decimal.Decimal `json:"tokens_sold"`
	TotalSupply         decimal.Decimal `json:"total_supply"`
	LiquidityRaised     decimal.Decimal `json:"liquidity_raised"`
	GraduationThreshold decimal.Decimal `json:"graduation_threshold"`
	Graduated           bool            `json:"graduated"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	MarketCap           decimal.Decimal `json:"market_cap"`
	HolderCount         int             `json:"holder_count"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Curve returns the asset's pricing curve.
func (a *Asset) Curve() pricing.Curve {
	return pricing.Curve{
		BasePrice:   a.BasePrice,
		Increment:   a.PriceIncrement,
		TotalSupply: a.TotalSupply,
	}
}

// ApplyPurchase folds a priced purchase into the market state. Graduation is
// one-way: an already graduated asset stays graduated.
func (a *Asset) ApplyPurchase(q pricing.Quote) {
	c := a.Curve()
	a.TokensSold = q.NewTokensSold
	a.CurrentPrice = q.NewPrice
	a.LiquidityRaised = a.LiquidityRaised.Add(q.TotalCost)
	a.MarketCap = c.MarketCap(q.NewPrice)
	if !a.Graduated && pricing.Graduates(a.LiquidityRaised, a.GraduationThreshold) {
		a.Graduated = true
	}
}

// Holding is a user's position in one asset.
type Holding struct {
	UserID         uuid.UUID       `json:"user_id"`
	AssetID        uuid.UUID       `json:"asset_id"`
	Balance        decimal.Decimal `json:"balance"`
	TotalBought    decimal.Decimal `json:"total_bought"`
	TotalSold      decimal.Decimal `json:"total_sold"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
