package memory

import (
	"time"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedAsset adds an asset, filling price and market cap from its curve when
// they are unset. Seeding is meant to happen before the store is shared.
func (s *Store) SeedAsset(a domain.Asset) domain.Asset {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CurrentPrice.IsZero() {
		a.CurrentPrice = a.Curve().PriceAt(a.TokensSold)
	}
	if a.MarketCap.IsZero() {
		a.MarketCap = a.Curve().MarketCap(a.CurrentPrice)
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_ = s.write(func(d *state) error {
		d.assets[a.ID] = a
		return nil
	})
	return a
}

// SeedGrant adds a locked grant for the user.
func (s *Store) SeedGrant(userID uuid.UUID, bonus decimal.Decimal) domain.Grant {
	now := time.Now().UTC()
	g := domain.Grant{
		ID:        uuid.New(),
		UserID:    userID,
		Bonus:     bonus,
		Status:    domain.GrantStatusLocked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_ = s.write(func(d *state) error {
		d.grants[g.ID] = g
		return nil
	})
	return g
}

// SeedGatewayConfig adds a gateway configuration row.
func (s *Store) SeedGatewayConfig(c domain.GatewayConfigRecord) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_ = s.write(func(d *state) error {
		d.gateways = append(d.gateways, c)
		return nil
	})
}

// AuditEntries returns a copy of everything audited so far.
func (s *Store) AuditEntries() []domain.AuditLog {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return append([]domain.AuditLog(nil), s.audit...)
}
