package dto

import (
	"time"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"

	"github.com/shopspring/decimal"
)

// InitiatePaymentRequest is the request body for starting a push payment.
// Amount accepts a JSON number or a decimal string.
type InitiatePaymentRequest struct {
	Purpose            string          `json:"purpose" binding:"required,oneof=fiat_deposit grant_unlock asset_purchase"`
	AssetID            string          `json:"asset_id,omitempty" binding:"omitempty,uuid"`
	Amount             decimal.Decimal `json:"amount"`
	Phone              string          `json:"phone" binding:"required,max=20"`
	DestinationAddress *string         `json:"destination_address,omitempty" binding:"omitempty,max=128,safe_id"`
	Network            *string         `json:"network,omitempty" binding:"omitempty,max=32,safe_id"`
}

// PaymentResponse is the public view of a payment request.
type PaymentResponse struct {
	ID                 string  `json:"id"`
	Purpose            string  `json:"purpose"`
	AssetID            *string `json:"asset_id,omitempty"`
	Amount             string  `json:"amount"`
	Phone              string  `json:"phone"`
	Status             string  `json:"status"`
	CheckoutRequestID  string  `json:"checkout_request_id"`
	MerchantRequestID  string  `json:"merchant_request_id"`
	ReceiptNumber      *string `json:"receipt_number,omitempty"`
	ResultCode         *int    `json:"result_code,omitempty"`
	ResultDesc         *string `json:"result_desc,omitempty"`
	Released           bool    `json:"released"`
	DestinationAddress *string `json:"destination_address,omitempty"`
	Network            *string `json:"network,omitempty"`
	CreatedAt          string  `json:"created_at"`
	CompletedAt        *string `json:"completed_at,omitempty"`
}

// AccountResponse is the response for the fiat balance query.
type AccountResponse struct {
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// HoldingResponse is one asset position.
type HoldingResponse struct {
	AssetID        string `json:"asset_id"`
	Balance        string `json:"balance"`
	TotalBought    string `json:"total_bought"`
	TotalSold      string `json:"total_sold"`
	RealizedProfit string `json:"realized_profit"`
}

// HoldingListResponse wraps the caller's holdings.
type HoldingListResponse struct {
	Items []HoldingResponse `json:"items"`
	Total int               `json:"total"`
}

// ReconcileResponse describes the effect of a manual requery.
type ReconcileResponse struct {
	Outcome         string           `json:"outcome"`
	Payment         *PaymentResponse `json:"payment,omitempty"`
	SettlementError *string          `json:"settlement_error,omitempty"`
}

// RedriveResponse reports one manual redrive sweep.
type RedriveResponse struct {
	ports.RedriveReport
}

// NewPaymentResponse converts a domain payment to its public view.
func NewPaymentResponse(p *domain.PaymentRequest) PaymentResponse {
	resp := PaymentResponse{
		ID:                 p.ID.String(),
		Purpose:            string(p.Purpose.Kind),
		Amount:             p.Amount.StringFixed(2),
		Phone:              p.Phone,
		Status:             string(p.Status),
		CheckoutRequestID:  p.CheckoutRequestID,
		MerchantRequestID:  p.MerchantRequestID,
		ReceiptNumber:      p.ReceiptNumber,
		ResultCode:         p.ResultCode,
		ResultDesc:         p.ResultDesc,
		Released:           p.Released,
		DestinationAddress: p.DestinationAddress,
		Network:            p.Network,
		CreatedAt:          p.CreatedAt.Format(time.RFC3339),
	}
	if p.Purpose.AssetID != nil {
		s := p.Purpose.AssetID.String()
		resp.AssetID = &s
	}
	if p.CompletedAt != nil {
		s := p.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// NewAccountResponse converts an account. A user that was never credited
// reports a zero balance.
func NewAccountResponse(a *domain.Account) AccountResponse {
	resp := AccountResponse{
		UserID:  a.UserID.String(),
		Balance: a.Balance.StringFixed(2),
	}
	if !a.UpdatedAt.IsZero() {
		resp.UpdatedAt = a.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}

// NewHoldingListResponse converts holdings in the order given.
func NewHoldingListResponse(holdings []domain.Holding) HoldingListResponse {
	items := make([]HoldingResponse, 0, len(holdings))
	for _, h := range holdings {
		items = append(items, HoldingResponse{
			AssetID:        h.AssetID.String(),
			Balance:        h.Balance.String(),
			TotalBought:    h.TotalBought.String(),
			TotalSold:      h.TotalSold.String(),
			RealizedProfit: h.RealizedProfit.StringFixed(2),
		})
	}
	return HoldingListResponse{Items: items, Total: len(items)}
}

// NewReconcileResponse converts a reconcile result.
func NewReconcileResponse(res *domain.ReconcileResult) ReconcileResponse {
	resp := ReconcileResponse{Outcome: string(res.Outcome)}
	if res.Payment != nil {
		p := NewPaymentResponse(res.Payment)
		resp.Payment = &p
	}
	if res.SettlementErr != nil {
		s := res.SettlementErr.Error()
		resp.SettlementError = &s
	}
	return resp
}
