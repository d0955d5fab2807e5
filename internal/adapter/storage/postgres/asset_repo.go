package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const assetColumns = `id, symbol, name, base_price, price_increment, tokens_sold, total_supply,
	liquidity_raised, graduation_threshold, graduated, current_price, market_cap, holder_count,
	created_at, updated_at`

// AssetRepo implements ports.AssetRepository.
type AssetRepo struct {
	pool Pool
}

// NewAssetRepo creates a new AssetRepo.
func NewAssetRepo(pool Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	a := &domain.Asset{}
	err := row.Scan(
		&a.ID, &a.Symbol, &a.Name, &a.BasePrice, &a.PriceIncrement, &a.TokensSold, &a.TotalSupply,
		&a.LiquidityRaised, &a.GraduationThreshold, &a.Graduated, &a.CurrentPrice, &a.MarketCap, &a.HolderCount,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID fetches an asset (non-locking read).
func (r *AssetRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset by id: %w", err)
	}
	return a, nil
}

// GetByIDForUpdate fetches an asset with pessimistic locking so concurrent
// purchases price against the latest tokens sold.
// This MUST be called within a transaction.
func (r *AssetRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Asset, error) {
	a, err := scanAsset(tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset for update: %w", err)
	}
	return a, nil
}

// UpdateMarketState writes the post-purchase market state. graduated is
// OR-ed so it can never be cleared.
func (r *AssetRepo) UpdateMarketState(ctx context.Context, tx pgx.Tx, a *domain.Asset) error {
	query := `UPDATE assets
		SET tokens_sold = $2,
			current_price = $3,
			liquidity_raised = $4,
			market_cap = $5,
			graduated = graduated OR $6,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, a.ID, a.TokensSold, a.CurrentPrice, a.LiquidityRaised, a.MarketCap, a.Graduated)
	if err != nil {
		return fmt.Errorf("update asset market state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset not found: %s", a.ID)
	}
	return nil
}

// IncrementHolderCount adds one holder.
func (r *AssetRepo) IncrementHolderCount(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `UPDATE assets SET holder_count = holder_count + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment holder count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset not found: %s", id)
	}
	return nil
}
