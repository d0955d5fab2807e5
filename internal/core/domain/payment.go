package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement-engine/pkg/apperror"
)

// PaymentStatus is the lifecycle state of a payment request.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// IsTerminal returns true once the gateway outcome has been recorded.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted ||
		s == PaymentStatusFailed ||
		s == PaymentStatusCancelled
}

// PurposeKind selects the settlement branch for a payment.
type PurposeKind string

const (
	PurposeFiatDeposit   PurposeKind = "fiat_deposit"
	PurposeGrantUnlock   PurposeKind = "grant_unlock"
	PurposeAssetPurchase PurposeKind = "asset_purchase"
)

// Purpose says what a confirmed payment buys. It is fixed at initiation and
// never re-derived from anything else.
type Purpose struct {
	Kind    PurposeKind `json:"kind"`
	AssetID *uuid.UUID  `json:"asset_id,omitempty"`
}

func FiatDeposit() Purpose { return Purpose{Kind: PurposeFiatDeposit} }

func GrantUnlock() Purpose { return Purpose{Kind: PurposeGrantUnlock} }

func AssetPurchase(assetID uuid.UUID) Purpose {
	return Purpose{Kind: PurposeAssetPurchase, AssetID: &assetID}
}

// ParsePurpose builds a Purpose from its wire form. assetID is required for
// asset purchases and rejected for everything else.
func ParsePurpose(kind string, assetID string) (Purpose, error) {
	switch PurposeKind(kind) {
	case PurposeFiatDeposit, PurposeGrantUnlock:
		if assetID != "" {
			return Purpose{}, apperror.ErrInvalidPurpose("asset_id is only allowed for asset purchases")
		}
		return Purpose{Kind: PurposeKind(kind)}, nil
	case PurposeAssetPurchase:
		id, err := uuid.Parse(assetID)
		if err != nil {
			return Purpose{}, apperror.ErrInvalidPurpose("asset_purchase requires a valid asset_id")
		}
		return AssetPurchase(id), nil
	}
	return Purpose{}, apperror.ErrInvalidPurpose("unknown purpose " + kind)
}

// Validate checks the union is well formed.
func (p Purpose) Validate() error {
	switch p.Kind {
	case PurposeFiatDeposit, PurposeGrantUnlock:
		if p.AssetID != nil {
			return apperror.ErrInvalidPurpose("asset_id is only allowed for asset purchases")
		}
		return nil
	case PurposeAssetPurchase:
		if p.AssetID == nil || *p.AssetID == uuid.Nil {
			return apperror.ErrInvalidPurpose("asset_purchase requires a valid asset_id")
		}
		return nil
	}
	return apperror.ErrInvalidPurpose("unknown purpose " + string(p.Kind))
}

// LedgerKind is the primary ledger entry a settled payment of this purpose
// writes. Settlement idempotency is keyed on (payment id, LedgerKind).
func (p Purpose) LedgerKind() LedgerKind {
	if p.Kind == PurposeAssetPurchase {
		return LedgerKindBuy
	}
	return LedgerKindDeposit
}

// AccountReference is the short label shown on the payer's prompt.
func (p Purpose) AccountReference() string {
	switch p.Kind {
	case PurposeGrantUnlock:
		return "GRANT"
	case PurposeAssetPurchase:
		return "ASSET"
	}
	return "DEPOSIT"
}

// PaymentRequest is one attempt to collect money through the gateway.
type PaymentRequest struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	Purpose            Purpose         `json:"purpose"`
	Amount             decimal.Decimal `json:"amount"`
	Phone              string          `json:"phone"`
	Status             PaymentStatus   `json:"status"`
	CheckoutRequestID  string          `json:"checkout_request_id"`
	MerchantRequestID  string          `json:"merchant_request_id"`
	ReceiptNumber      *string         `json:"receipt_number,omitempty"`
	ResultCode         *int            `json:"result_code,omitempty"`
	ResultDesc         *string         `json:"result_desc,omitempty"`
	Released           bool            `json:"released"`
	SettlementAttempts int             `json:"settlement_attempts"`
	DestinationAddress *string         `json:"destination_address,omitempty"`
	Network            *string         `json:"network,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the request is in a final state.
func (p *PaymentRequest) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// AwaitingRelease is true when money was received but value not yet credited.
func (p *PaymentRequest) AwaitingRelease() bool {
	return p.Status == PaymentStatusCompleted && !p.Released
}

// MarkCompleted records a successful gateway outcome.
func (p *PaymentRequest) MarkCompleted(receipt string, resultCode int, resultDesc string, at time.Time) {
	p.Status = PaymentStatusCompleted
	if receipt != "" {
		p.ReceiptNumber = &receipt
	}
	p.ResultCode = &resultCode
	p.ResultDesc = &resultDesc
	p.CompletedAt = &at
	p.UpdatedAt = at
}

// MarkFailed records a non-zero gateway outcome.
func (p *PaymentRequest) MarkFailed(resultCode int, resultDesc string, at time.Time) {
	p.Status = PaymentStatusFailed
	p.ResultCode = &resultCode
	p.ResultDesc = &resultDesc
	p.UpdatedAt = at
}
