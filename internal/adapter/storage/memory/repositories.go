package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PaymentRequestRepo implements ports.PaymentRequestRepository.
type PaymentRequestRepo struct{ s *Store }

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct{ s *Store }

// AssetRepo implements ports.AssetRepository.
type AssetRepo struct{ s *Store }

// HoldingRepo implements ports.HoldingRepository.
type HoldingRepo struct{ s *Store }

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct{ s *Store }

// GrantRepo implements ports.GrantRepository.
type GrantRepo struct{ s *Store }

// GatewayConfigRepo implements ports.GatewayConfigRepository.
type GatewayConfigRepo struct{ s *Store }

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ s *Store }

func (s *Store) Payments() *PaymentRequestRepo      { return &PaymentRequestRepo{s} }
func (s *Store) Accounts() *AccountRepo             { return &AccountRepo{s} }
func (s *Store) Assets() *AssetRepo                 { return &AssetRepo{s} }
func (s *Store) Holdings() *HoldingRepo             { return &HoldingRepo{s} }
func (s *Store) Ledger() *LedgerRepo                { return &LedgerRepo{s} }
func (s *Store) Grants() *GrantRepo                 { return &GrantRepo{s} }
func (s *Store) GatewayConfigs() *GatewayConfigRepo { return &GatewayConfigRepo{s} }
func (s *Store) Audit() *AuditRepo                  { return &AuditRepo{s} }

// --- payment requests ---

func (r *PaymentRequestRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return r.s.write(func(d *state) error {
		if _, ok := d.payments[p.ID]; ok {
			return fmt.Errorf("insert payment request: duplicate id %s", p.ID)
		}
		if _, ok := d.byCheckout[p.CheckoutRequestID]; ok {
			return fmt.Errorf("insert payment request: duplicate checkout_request_id %s", p.CheckoutRequestID)
		}
		d.payments[p.ID] = *p
		d.byCheckout[p.CheckoutRequestID] = p.ID
		return nil
	})
}

func (r *PaymentRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	var out *domain.PaymentRequest
	r.s.read(func(d *state) {
		if p, ok := d.payments[id]; ok {
			out = &p
		}
	})
	return out, nil
}

func (r *PaymentRequestRepo) GetByCheckoutID(ctx context.Context, checkoutID string) (*domain.PaymentRequest, error) {
	var out *domain.PaymentRequest
	r.s.read(func(d *state) {
		if id, ok := d.byCheckout[checkoutID]; ok {
			p := d.payments[id]
			out = &p
		}
	})
	return out, nil
}

// GetByCheckoutIDForUpdate needs no row lock: the transaction already holds
// the store exclusively.
func (r *PaymentRequestRepo) GetByCheckoutIDForUpdate(ctx context.Context, tx pgx.Tx, checkoutID string) (*domain.PaymentRequest, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	return r.GetByCheckoutID(ctx, checkoutID)
}

func (r *PaymentRequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRequest, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *PaymentRequestRepo) UpdateOutcome(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return r.s.write(func(d *state) error {
		cur, ok := d.payments[p.ID]
		if !ok {
			return fmt.Errorf("payment request not found: %s", p.ID)
		}
		if cur.Status != domain.PaymentStatusProcessing {
			return fmt.Errorf("payment request not found or not processing: %s", p.ID)
		}
		cur.Status = p.Status
		if cur.ReceiptNumber == nil {
			cur.ReceiptNumber = p.ReceiptNumber
		}
		cur.ResultCode = p.ResultCode
		cur.ResultDesc = p.ResultDesc
		cur.CompletedAt = p.CompletedAt
		cur.UpdatedAt = time.Now().UTC()
		d.payments[p.ID] = cur
		return nil
	})
}

func (r *PaymentRequestRepo) IncrementAttempts(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	if err := requireTx(tx); err != nil {
		return 0, err
	}
	var attempts int
	err := r.s.write(func(d *state) error {
		cur, ok := d.payments[id]
		if !ok {
			return fmt.Errorf("increment settlement attempts: payment request not found: %s", id)
		}
		cur.SettlementAttempts++
		cur.UpdatedAt = time.Now().UTC()
		d.payments[id] = cur
		attempts = cur.SettlementAttempts
		return nil
	})
	return attempts, err
}

func (r *PaymentRequestRepo) MarkReleased(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return r.s.write(func(d *state) error {
		cur, ok := d.payments[id]
		if !ok || cur.Status != domain.PaymentStatusCompleted {
			return fmt.Errorf("payment request %s is not completed", id)
		}
		cur.Released = true
		cur.UpdatedAt = time.Now().UTC()
		d.payments[id] = cur
		return nil
	})
}

func (r *PaymentRequestRepo) ListAwaitingRelease(ctx context.Context, maxAttempts int, limit int) ([]domain.PaymentRequest, error) {
	var out []domain.PaymentRequest
	r.s.read(func(d *state) {
		for _, p := range d.payments {
			if p.AwaitingRelease() && p.SettlementAttempts < maxAttempts {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return completedAt(out[i]).Before(completedAt(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func completedAt(p domain.PaymentRequest) time.Time {
	if p.CompletedAt != nil {
		return *p.CompletedAt
	}
	return p.UpdatedAt
}

// --- accounts ---

func (r *AccountRepo) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := requireTx(tx); err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	err := r.s.write(func(d *state) error {
		a, ok := d.accounts[userID]
		if !ok {
			a = domain.Account{UserID: userID, Balance: decimal.Zero}
		}
		a.Balance = a.Balance.Add(amount)
		a.UpdatedAt = time.Now().UTC()
		d.accounts[userID] = a
		balance = a.Balance
		return nil
	})
	return balance, err
}

func (r *AccountRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var out *domain.Account
	r.s.read(func(d *state) {
		if a, ok := d.accounts[userID]; ok {
			out = &a
		}
	})
	return out, nil
}

// --- assets ---

func (r *AssetRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	var out *domain.Asset
	r.s.read(func(d *state) {
		if a, ok := d.assets[id]; ok {
			out = &a
		}
	})
	return out, nil
}

func (r *AssetRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Asset, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *AssetRepo) UpdateMarketState(ctx context.Context, tx pgx.Tx, a *domain.Asset) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return r.s.write(func(d *state) error {
		cur, ok := d.assets[a.ID]
		if !ok {
			return fmt.Errorf("asset not found: %s", a.ID)
		}
		cur.TokensSold = a.TokensSold
		cur.CurrentPrice = a.CurrentPrice
		cur.LiquidityRaised = a.LiquidityRaised
		cur.MarketCap = a.MarketCap
		cur.Graduated = cur.Graduated || a.Graduated
		cur.UpdatedAt = time.Now().UTC()
		d.assets[a.ID] = cur
		return nil
	})
}

func (r *AssetRepo) IncrementHolderCount(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return r.s.write(func(d *state) error {
		cur, ok := d.assets[id]
		if !ok {
			return fmt.Errorf("asset not found: %s", id)
		}
		cur.HolderCount++
		d.assets[id] = cur
		return nil
	})
}

// --- holdings ---

func (r *HoldingRepo) Credit(ctx context.Context, tx pgx.Tx, userID, assetID uuid.UUID, quantity decimal.Decimal) (bool, error) {
	if err := requireTx(tx); err != nil {
		return false, err
	}
	var created bool
	err := r.s.write(func(d *state) error {
		k := holdingKey{userID: userID, assetID: assetID}
		now := time.Now().UTC()
		h, ok := d.holdings[k]
		if !ok {
			created = true
			h = domain.Holding{UserID: userID, AssetID: assetID, CreatedAt: now}
			d.holdOrder = append(d.holdOrder, k)
		}
		h.Balance = h.Balance.Add(quantity)
		h.TotalBought = h.TotalBought.Add(quantity)
		h.UpdatedAt = now
		d.holdings[k] = h
		return nil
	})
	return created, err
}

func (r *HoldingRepo) Get(ctx context.Context, userID, assetID uuid.UUID) (*domain.Holding, error) {
	var out *domain.Holding
	r.s.read(func(d *state) {
		if h, ok := d.holdings[holdingKey{userID: userID, assetID: assetID}]; ok {
			out = &h
		}
	})
	return out, nil
}

func (r *HoldingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	var out []domain.Holding
	r.s.read(func(d *state) {
		for _, k := range d.holdOrder {
			if k.userID == userID {
				out = append(out, d.holdings[k])
			}
		}
	})
	return out, nil
}

// --- ledger ---

func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return r.s.write(func(d *state) error {
		k := ledgerKey{paymentID: e.PaymentRequestID, kind: e.Kind}
		if _, ok := d.ledgerKeys[k]; ok {
			return fmt.Errorf("insert ledger entry: duplicate %s entry for payment %s", e.Kind, e.PaymentRequestID)
		}
		d.ledgerKeys[k] = struct{}{}
		d.ledger = append(d.ledger, *e)
		return nil
	})
}

func (r *LedgerRepo) Exists(ctx context.Context, tx pgx.Tx, paymentRequestID uuid.UUID, kind domain.LedgerKind) (bool, error) {
	if err := requireTx(tx); err != nil {
		return false, err
	}
	var ok bool
	r.s.read(func(d *state) {
		_, ok = d.ledgerKeys[ledgerKey{paymentID: paymentRequestID, kind: kind}]
	})
	return ok, nil
}

func (r *LedgerRepo) ListByPayment(ctx context.Context, paymentRequestID uuid.UUID) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	r.s.read(func(d *state) {
		for _, e := range d.ledger {
			if e.PaymentRequestID == paymentRequestID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

// --- grants ---

func (r *GrantRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Grant, error) {
	var out *domain.Grant
	r.s.read(func(d *state) {
		for _, g := range d.grants {
			if g.UserID == userID {
				g := g
				out = &g
				return
			}
		}
	})
	return out, nil
}

func (r *GrantRepo) MarkUnlocking(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return r.s.write(func(d *state) error {
		g, ok := d.grants[id]
		if !ok || g.Status == domain.GrantStatusClaimed {
			return fmt.Errorf("grant %s is not claimable", id)
		}
		g.Status = domain.GrantStatusUnlocking
		g.UpdatedAt = time.Now().UTC()
		d.grants[id] = g
		return nil
	})
}

func (r *GrantRepo) ClaimIfUnlocking(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Grant, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	var out *domain.Grant
	err := r.s.write(func(d *state) error {
		for id, g := range d.grants {
			if g.UserID != userID || g.Status != domain.GrantStatusUnlocking {
				continue
			}
			g.Status = domain.GrantStatusClaimed
			g.UpdatedAt = time.Now().UTC()
			d.grants[id] = g
			out = &g
			return nil
		}
		return nil
	})
	return out, err
}

// --- gateway configs ---

func (r *GatewayConfigRepo) ListActive(ctx context.Context) ([]domain.GatewayConfigRecord, error) {
	var out []domain.GatewayConfigRecord
	r.s.read(func(d *state) {
		for _, c := range d.gateways {
			if c.Active {
				out = append(out, c)
			}
		}
	})
	return out, nil
}

// --- audit ---

func (r *AuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.s.auditMu.Lock()
	defer r.s.auditMu.Unlock()
	r.s.audit = append(r.s.audit, *entry)
	return nil
}
