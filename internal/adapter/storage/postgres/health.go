package postgres

import (
	"context"
	"errors"
	"fmt"
)

// schemaProbe is false until migrations/001_init.sql has been applied.
const schemaProbe = `SELECT to_regclass('public.payment_requests') IS NOT NULL
	AND to_regclass('public.ledger_entries') IS NOT NULL`

var errSchemaMissing = errors.New("settlement schema not migrated")

// HealthCheck reports whether PostgreSQL is reachable and carries the schema.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	var migrated bool
	if err := h.pool.QueryRow(ctx, schemaProbe).Scan(&migrated); err != nil {
		return fmt.Errorf("probing postgres: %w", err)
	}
	if !migrated {
		return errSchemaMissing
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
