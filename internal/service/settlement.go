package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"
	"settlement-engine/internal/core/pricing"
	"settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SettlementRouterImpl implements ports.SettlementRouter. Every write goes
// through the caller's transaction; the caller owns commit and rollback.
type SettlementRouterImpl struct {
	accounts   ports.AccountRepository
	assets     ports.AssetRepository
	holdings   ports.HoldingRepository
	ledger     ports.LedgerRepository
	grants     ports.GrantRepository
	grantBonus decimal.Decimal
	now        func() time.Time
	log        zerolog.Logger
}

// NewSettlementRouter creates a new SettlementRouterImpl. defaultGrantBonus
// is paid when a claimed grant row carries no bonus of its own.
func NewSettlementRouter(
	accounts ports.AccountRepository,
	assets ports.AssetRepository,
	holdings ports.HoldingRepository,
	ledger ports.LedgerRepository,
	grants ports.GrantRepository,
	defaultGrantBonus decimal.Decimal,
	log zerolog.Logger,
) *SettlementRouterImpl {
	return &SettlementRouterImpl{
		accounts:   accounts,
		assets:     assets,
		holdings:   holdings,
		ledger:     ledger,
		grants:     grants,
		grantBonus: defaultGrantBonus,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Settle credits the value a completed payment bought. Calling it again for
// the same payment is a no-op.
func (s *SettlementRouterImpl) Settle(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error {
	if p.Status != domain.PaymentStatusCompleted {
		return apperror.ErrSettlement(fmt.Sprintf("payment %s is %s, not completed", p.ID, p.Status), nil)
	}

	done, err := s.ledger.Exists(ctx, tx, p.ID, p.Purpose.LedgerKind())
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("check ledger: %w", err))
	}
	if done {
		s.log.Info().Str("payment_id", p.ID.String()).Msg("settlement already recorded, skipping")
		return nil
	}

	switch p.Purpose.Kind {
	case domain.PurposeFiatDeposit:
		_, err = s.creditFiat(ctx, tx, p, domain.LedgerKindDeposit, p.Amount)
	case domain.PurposeGrantUnlock:
		err = s.settleGrantUnlock(ctx, tx, p)
	case domain.PurposeAssetPurchase:
		err = s.settleAssetPurchase(ctx, tx, p)
	default:
		err = apperror.ErrSettlement("unknown purpose "+string(p.Purpose.Kind), nil)
	}
	if err != nil {
		return err
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("purpose", string(p.Purpose.Kind)).
		Str("amount", p.Amount.String()).
		Msg("payment settled")
	return nil
}

func (s *SettlementRouterImpl) creditFiat(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest, kind domain.LedgerKind, amount decimal.Decimal) (decimal.Decimal, error) {
	balance, err := s.accounts.Credit(ctx, tx, p.UserID, amount)
	if err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("credit account: %w", err))
	}
	entry := &domain.LedgerEntry{
		ID:               uuid.New(),
		UserID:           p.UserID,
		PaymentRequestID: p.ID,
		Kind:             kind,
		Amount:           amount,
		BalanceAfter:     balance,
		CreatedAt:        s.now(),
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("append %s entry: %w", kind, err))
	}
	return balance, nil
}

func (s *SettlementRouterImpl) settleGrantUnlock(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error {
	if _, err := s.creditFiat(ctx, tx, p, domain.LedgerKindDeposit, p.Amount); err != nil {
		return err
	}

	grant, err := s.grants.ClaimIfUnlocking(ctx, tx, p.UserID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("claim grant: %w", err))
	}
	if grant == nil {
		// Already claimed through another payment: the fee stays as a deposit.
		s.log.Warn().
			Str("payment_id", p.ID.String()).
			Str("user_id", p.UserID.String()).
			Msg("no unlocking grant to claim")
		return nil
	}

	bonus := grant.Bonus
	if !bonus.IsPositive() {
		bonus = s.grantBonus
	}
	if !bonus.IsPositive() {
		return nil
	}
	_, err = s.creditFiat(ctx, tx, p, domain.LedgerKindGrant, bonus)
	return err
}

func (s *SettlementRouterImpl) settleAssetPurchase(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error {
	if p.Purpose.AssetID == nil {
		return apperror.ErrSettlement("asset purchase without asset id", nil)
	}
	assetID := *p.Purpose.AssetID

	asset, err := s.assets.GetByIDForUpdate(ctx, tx, assetID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("lock asset: %w", err))
	}
	if asset == nil {
		return apperror.ErrSettlement("asset "+assetID.String()+" not found", nil)
	}
	if asset.Graduated {
		return apperror.ErrAssetGraduated()
	}

	curve := asset.Curve()
	quantity := curve.QuantityForBudget(asset.TokensSold, p.Amount)
	if !quantity.IsPositive() {
		return apperror.ErrSettlement("amount does not cover a single unit", pricing.ErrInvalidQuantity)
	}

	quote, err := curve.QuoteWithinBudget(asset.TokensSold, quantity, p.Amount)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrExceedsSupply):
			return apperror.ErrSupplyExhausted()
		case errors.Is(err, pricing.ErrCostExceedsBudget):
			return apperror.ErrCostExceedsAmount()
		}
		return apperror.ErrSettlement("pricing failed", err)
	}

	asset.ApplyPurchase(quote)
	if err := s.assets.UpdateMarketState(ctx, tx, asset); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update asset: %w", err))
	}

	created, err := s.holdings.Credit(ctx, tx, p.UserID, assetID, quote.Quantity)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("credit holding: %w", err))
	}
	if created {
		if err := s.assets.IncrementHolderCount(ctx, tx, assetID); err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("increment holders: %w", err))
		}
	}

	residual := p.Amount.Sub(quote.TotalCost)
	balance, err := s.accounts.Credit(ctx, tx, p.UserID, residual)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("credit residual: %w", err))
	}

	entry := &domain.LedgerEntry{
		ID:               uuid.New(),
		UserID:           p.UserID,
		PaymentRequestID: p.ID,
		Kind:             domain.LedgerKindBuy,
		Amount:           quote.TotalCost,
		BalanceAfter:     balance,
		AssetID:          &assetID,
		Quantity:         &quote.Quantity,
		Price:            &quote.AveragePrice,
		Residual:         &residual,
		CreatedAt:        s.now(),
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("append buy entry: %w", err))
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("asset", asset.Symbol).
		Str("quantity", quote.Quantity.String()).
		Str("cost", quote.TotalCost.String()).
		Str("residual", residual.String()).
		Bool("graduated", asset.Graduated).
		Msg("asset purchase settled")
	return nil
}
