package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerKind classifies an append-only ledger entry.
type LedgerKind string

const (
	LedgerKindDeposit LedgerKind = "deposit"
	LedgerKindGrant   LedgerKind = "grant"
	LedgerKindBuy     LedgerKind = "buy"
	LedgerKindSell    LedgerKind = "sell"
)

// LedgerEntry records one value movement caused by a settled payment.
// At most one entry of each kind exists per payment request.
type LedgerEntry struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	PaymentRequestID uuid.UUID        `json:"payment_request_id"`
	Kind             LedgerKind       `json:"kind"`
	Amount           decimal.Decimal  `json:"amount"`
	BalanceAfter     decimal.Decimal  `json:"balance_after"`
	AssetID          *uuid.UUID       `json:"asset_id,omitempty"`
	Quantity         *decimal.Decimal `json:"quantity,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	// Residual is the part of a purchase payment the curve did not consume,
	// credited to the fiat balance alongside the buy.
	Residual         *decimal.Decimal `json:"residual,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Account holds a user's fiat balance.
type Account struct {
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GrantStatus is the state of a locked bonus.
type GrantStatus string

const (
	GrantStatusLocked    GrantStatus = "locked"
	GrantStatusUnlocking GrantStatus = "unlocking"
	GrantStatusClaimed   GrantStatus = "claimed"
)

// Grant is a bonus released to a user by paying an unlock fee.
type Grant struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Bonus     decimal.Decimal `json:"bonus"`
	Status    GrantStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Claimable is true while the grant has not been paid out.
func (g *Grant) Claimable() bool {
	return g.Status != GrantStatusClaimed
}
