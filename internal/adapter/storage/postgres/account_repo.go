package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Credit adds amount to the user's balance in a single statement, creating
// the account on first credit.
func (r *AccountRepo) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	query := `INSERT INTO accounts (user_id, balance, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
			SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance`

	var balance decimal.Decimal
	if err := tx.QueryRow(ctx, query, userID, amount).Scan(&balance); err != nil {
		return decimal.Zero, fmt.Errorf("credit account: %w", err)
	}
	return balance, nil
}

// GetByUserID fetches an account. Returns nil if the user was never credited.
func (r *AccountRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	query := `SELECT user_id, balance, updated_at FROM accounts WHERE user_id = $1`

	a := &domain.Account{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&a.UserID, &a.Balance, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}
