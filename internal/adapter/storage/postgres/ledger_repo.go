package postgres

import (
	"context"
	"fmt"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Append inserts a ledger entry. UNIQUE (payment_request_id, kind) makes a
// second entry for the same payment fail rather than double credit.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries
		(id, user_id, payment_request_id, kind, amount, balance_after, asset_id, quantity, price, residual, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.UserID, e.PaymentRequestID, e.Kind, e.Amount, e.BalanceAfter,
		e.AssetID, e.Quantity, e.Price, e.Residual, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Exists reports whether an entry of kind already exists for the payment.
func (r *LedgerRepo) Exists(ctx context.Context, tx pgx.Tx, paymentRequestID uuid.UUID, kind domain.LedgerKind) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE payment_request_id = $1 AND kind = $2)`

	var exists bool
	if err := tx.QueryRow(ctx, query, paymentRequestID, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("check ledger entry: %w", err)
	}
	return exists, nil
}

// ListByPayment returns the entries written for one payment.
func (r *LedgerRepo) ListByPayment(ctx context.Context, paymentRequestID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT id, user_id, payment_request_id, kind, amount, balance_after, asset_id, quantity, price, residual, created_at
		FROM ledger_entries WHERE payment_request_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, paymentRequestID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.PaymentRequestID, &e.Kind, &e.Amount, &e.BalanceAfter,
			&e.AssetID, &e.Quantity, &e.Price, &e.Residual, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
