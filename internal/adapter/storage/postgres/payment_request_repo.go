package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, user_id, purpose_kind, asset_id, amount, phone, status,
	checkout_request_id, merchant_request_id, receipt_number, result_code, result_desc,
	released, settlement_attempts, destination_address, network,
	created_at, updated_at, completed_at`

// PaymentRequestRepo implements ports.PaymentRequestRepository.
type PaymentRequestRepo struct {
	pool Pool
}

// NewPaymentRequestRepo creates a new PaymentRequestRepo.
func NewPaymentRequestRepo(pool Pool) *PaymentRequestRepo {
	return &PaymentRequestRepo{pool: pool}
}

func scanPayment(row rowScanner) (*domain.PaymentRequest, error) {
	p := &domain.PaymentRequest{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Purpose.Kind, &p.Purpose.AssetID, &p.Amount, &p.Phone, &p.Status,
		&p.CheckoutRequestID, &p.MerchantRequestID, &p.ReceiptNumber, &p.ResultCode, &p.ResultDesc,
		&p.Released, &p.SettlementAttempts, &p.DestinationAddress, &p.Network,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a payment request within a database transaction.
func (r *PaymentRequestRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error {
	query := `INSERT INTO payment_requests (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.UserID, p.Purpose.Kind, p.Purpose.AssetID, p.Amount, p.Phone, p.Status,
		p.CheckoutRequestID, p.MerchantRequestID, p.ReceiptNumber, p.ResultCode, p.ResultDesc,
		p.Released, p.SettlementAttempts, p.DestinationAddress, p.Network,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

// GetByID fetches a payment request by id (non-locking read).
func (r *PaymentRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE id = $1`
	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment request by id: %w", err)
	}
	return p, nil
}

// GetByCheckoutID fetches a payment request by gateway correlation id (non-locking read).
func (r *PaymentRequestRepo) GetByCheckoutID(ctx context.Context, checkoutID string) (*domain.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE checkout_request_id = $1`
	p, err := scanPayment(r.pool.QueryRow(ctx, query, checkoutID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment request by checkout id: %w", err)
	}
	return p, nil
}

// GetByCheckoutIDForUpdate fetches and row-locks a payment request by correlation id.
// This MUST be called within a transaction.
func (r *PaymentRequestRepo) GetByCheckoutIDForUpdate(ctx context.Context, tx pgx.Tx, checkoutID string) (*domain.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE checkout_request_id = $1 FOR UPDATE`
	p, err := scanPayment(tx.QueryRow(ctx, query, checkoutID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment request for update by checkout id: %w", err)
	}
	return p, nil
}

// GetByIDForUpdate fetches and row-locks a payment request by id.
// This MUST be called within a transaction.
func (r *PaymentRequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE id = $1 FOR UPDATE`
	p, err := scanPayment(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment request for update by id: %w", err)
	}
	return p, nil
}

// UpdateOutcome records the gateway result. Only a processing row moves; the
// receipt is only ever set, never overwritten with NULL.
func (r *PaymentRequestRepo) UpdateOutcome(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error {
	query := `UPDATE payment_requests
		SET status = $2,
			receipt_number = COALESCE(receipt_number, $3),
			result_code = $4,
			result_desc = $5,
			completed_at = $6,
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`

	tag, err := tx.Exec(ctx, query, p.ID, p.Status, p.ReceiptNumber, p.ResultCode, p.ResultDesc, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("update payment outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment request not found or not processing: %s", p.ID)
	}
	return nil
}

// IncrementAttempts bumps the settlement attempt counter and returns the new value.
func (r *PaymentRequestRepo) IncrementAttempts(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	query := `UPDATE payment_requests
		SET settlement_attempts = settlement_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING settlement_attempts`

	var attempts int
	if err := tx.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("increment settlement attempts: %w", err)
	}
	return attempts, nil
}

// MarkReleased flags value as credited. Only completed requests can be released.
func (r *PaymentRequestRepo) MarkReleased(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE payment_requests SET released = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'completed'`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark payment released: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment request %s is not completed", id)
	}
	return nil
}

// ListAwaitingRelease returns completed, unreleased requests eligible for another settlement attempt.
func (r *PaymentRequestRepo) ListAwaitingRelease(ctx context.Context, maxAttempts int, limit int) ([]domain.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests
		WHERE status = 'completed' AND released = FALSE AND settlement_attempts < $1
		ORDER BY completed_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list awaiting release: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentRequest
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate awaiting release: %w", err)
	}
	return out, nil
}
