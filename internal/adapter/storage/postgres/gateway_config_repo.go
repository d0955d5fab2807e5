package postgres

import (
	"context"
	"fmt"

	"settlement-engine/internal/core/domain"
)

// GatewayConfigRepo implements ports.GatewayConfigRepository.
type GatewayConfigRepo struct {
	pool Pool
}

// NewGatewayConfigRepo creates a new GatewayConfigRepo.
func NewGatewayConfigRepo(pool Pool) *GatewayConfigRepo {
	return &GatewayConfigRepo{pool: pool}
}

// ListActive returns every row flagged active. Callers decide what more
// than one means.
func (r *GatewayConfigRepo) ListActive(ctx context.Context) ([]domain.GatewayConfigRecord, error) {
	query := `SELECT id, base_url, short_code, till_number, transaction_type, consumer_key,
			consumer_secret_enc, passkey_enc, callback_url, active, created_at
		FROM gateway_configs WHERE active = TRUE ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active gateway configs: %w", err)
	}
	defer rows.Close()

	var out []domain.GatewayConfigRecord
	for rows.Next() {
		var c domain.GatewayConfigRecord
		if err := rows.Scan(&c.ID, &c.BaseURL, &c.ShortCode, &c.TillNumber, &c.TransactionType, &c.ConsumerKey,
			&c.ConsumerSecretEnc, &c.PasskeyEnc, &c.CallbackURL, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gateway config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
