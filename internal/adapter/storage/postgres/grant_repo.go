package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GrantRepo implements ports.GrantRepository.
type GrantRepo struct {
	pool Pool
}

// NewGrantRepo creates a new GrantRepo.
func NewGrantRepo(pool Pool) *GrantRepo {
	return &GrantRepo{pool: pool}
}

// GetByUserID fetches the user's grant.
func (r *GrantRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Grant, error) {
	query := `SELECT id, user_id, bonus, status, created_at, updated_at FROM grants WHERE user_id = $1`

	g := &domain.Grant{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&g.ID, &g.UserID, &g.Bonus, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get grant: %w", err)
	}
	return g, nil
}

// MarkUnlocking moves a locked grant to unlocking. Re-initiating an unlock
// that is already in flight is allowed.
func (r *GrantRepo) MarkUnlocking(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE grants SET status = 'unlocking', updated_at = NOW()
		WHERE id = $1 AND status IN ('locked', 'unlocking')`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark grant unlocking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("grant %s is not claimable", id)
	}
	return nil
}

// ClaimIfUnlocking claims the grant in a single conditional update.
func (r *GrantRepo) ClaimIfUnlocking(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Grant, error) {
	query := `UPDATE grants SET status = 'claimed', updated_at = NOW()
		WHERE user_id = $1 AND status = 'unlocking'
		RETURNING id, user_id, bonus, status, created_at, updated_at`

	g := &domain.Grant{}
	err := tx.QueryRow(ctx, query, userID).Scan(&g.ID, &g.UserID, &g.Bonus, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim grant: %w", err)
	}
	return g, nil
}
