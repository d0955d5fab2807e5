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

const holdingColumns = `user_id, asset_id, balance, total_bought, total_sold, realized_profit, created_at, updated_at`

// HoldingRepo implements ports.HoldingRepository.
type HoldingRepo struct {
	pool Pool
}

// NewHoldingRepo creates a new HoldingRepo.
func NewHoldingRepo(pool Pool) *HoldingRepo {
	return &HoldingRepo{pool: pool}
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	h := &domain.Holding{}
	if err := row.Scan(&h.UserID, &h.AssetID, &h.Balance, &h.TotalBought, &h.TotalSold,
		&h.RealizedProfit, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return h, nil
}

// Credit upserts the holding. xmax is zero only for a freshly inserted row,
// which tells the caller whether this purchase created a new holder.
func (r *HoldingRepo) Credit(ctx context.Context, tx pgx.Tx, userID, assetID uuid.UUID, quantity decimal.Decimal) (bool, error) {
	query := `INSERT INTO holdings (user_id, asset_id, balance, total_bought, created_at, updated_at)
		VALUES ($1, $2, $3, $3, NOW(), NOW())
		ON CONFLICT (user_id, asset_id) DO UPDATE
			SET balance = holdings.balance + EXCLUDED.balance,
				total_bought = holdings.total_bought + EXCLUDED.total_bought,
				updated_at = NOW()
		RETURNING (xmax = 0) AS created`

	var created bool
	if err := tx.QueryRow(ctx, query, userID, assetID, quantity).Scan(&created); err != nil {
		return false, fmt.Errorf("credit holding: %w", err)
	}
	return created, nil
}

// Get fetches one holding.
func (r *HoldingRepo) Get(ctx context.Context, userID, assetID uuid.UUID) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = $1 AND asset_id = $2`
	h, err := scanHolding(r.pool.QueryRow(ctx, query, userID, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get holding: %w", err)
	}
	return h, nil
}

// ListByUser returns every holding of a user.
func (r *HoldingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}
