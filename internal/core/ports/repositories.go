package ports

import (
	"context"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PaymentRequestRepository defines persistence operations for payment requests.
// Methods accepting pgx.Tx are used inside transaction blocks; the ForUpdate
// variants take a row lock that serializes reconciliation per payment.
type PaymentRequestRepository interface {
	Create(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (*domain.PaymentRequest, error)
	GetByCheckoutIDForUpdate(ctx context.Context, tx pgx.Tx, checkoutID string) (*domain.PaymentRequest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRequest, error)
	// UpdateOutcome persists status, receipt, result code/description and completion time.
	UpdateOutcome(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error
	IncrementAttempts(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error)
	MarkReleased(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	// ListAwaitingRelease returns completed, unreleased requests with fewer than maxAttempts settlement attempts.
	ListAwaitingRelease(ctx context.Context, maxAttempts int, limit int) ([]domain.PaymentRequest, error)
}

// AccountRepository defines persistence for fiat balances.
type AccountRepository interface {
	// Credit atomically adds amount (creating the account on first credit)
	// and returns the resulting balance.
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
}

// AssetRepository defines persistence for bonding-curve assets.
type AssetRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Asset, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Asset, error)
	// UpdateMarketState writes tokens sold, price, liquidity, market cap and
	// graduation. A stored graduated flag is never cleared.
	UpdateMarketState(ctx context.Context, tx pgx.Tx, asset *domain.Asset) error
	IncrementHolderCount(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// HoldingRepository defines persistence for user positions.
type HoldingRepository interface {
	// Credit upserts the holding and reports whether it was created.
	Credit(ctx context.Context, tx pgx.Tx, userID, assetID uuid.UUID, quantity decimal.Decimal) (bool, error)
	Get(ctx context.Context, userID, assetID uuid.UUID) (*domain.Holding, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error)
}

// LedgerRepository defines the append-only ledger.
type LedgerRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	Exists(ctx context.Context, tx pgx.Tx, paymentRequestID uuid.UUID, kind domain.LedgerKind) (bool, error)
	ListByPayment(ctx context.Context, paymentRequestID uuid.UUID) ([]domain.LedgerEntry, error)
}

// GrantRepository defines persistence for locked grants.
type GrantRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Grant, error)
	MarkUnlocking(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	// ClaimIfUnlocking moves the user's grant unlocking->claimed in one
	// conditional update. Returns nil when nothing was claimed.
	ClaimIfUnlocking(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Grant, error)
}

// GatewayConfigRepository reads stored gateway credentials.
type GatewayConfigRepository interface {
	ListActive(ctx context.Context) ([]domain.GatewayConfigRecord, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
