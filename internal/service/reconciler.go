package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"
	"settlement-engine/pkg/apperror"
	"settlement-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// callbackCacheTTL bounds how long a terminal status short-circuits redeliveries.
const callbackCacheTTL = 24 * time.Hour

// ReconcilerConfig bounds settlement retries.
type ReconcilerConfig struct {
	MaxAttempts int
	BatchSize   int
}

// CallbackReconcilerImpl implements ports.CallbackReconciler and ports.RedriveService.
type CallbackReconcilerImpl struct {
	payments   ports.PaymentRequestRepository
	transactor ports.DBTransactor
	settlement ports.SettlementRouter
	cache      ports.CallbackCache
	alerts     ports.AlertService
	audit      ports.AuditService
	resolver   ports.GatewayConfigResolver
	gateway    ports.GatewayClient
	tokens     *GatewayTokenProvider
	cfg        ReconcilerConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewCallbackReconciler creates a new CallbackReconcilerImpl.
func NewCallbackReconciler(
	payments ports.PaymentRequestRepository,
	transactor ports.DBTransactor,
	settlement ports.SettlementRouter,
	cache ports.CallbackCache,
	alerts ports.AlertService,
	audit ports.AuditService,
	resolver ports.GatewayConfigResolver,
	gateway ports.GatewayClient,
	tokens *GatewayTokenProvider,
	cfg ReconcilerConfig,
	log zerolog.Logger,
) *CallbackReconcilerImpl {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	return &CallbackReconcilerImpl{
		payments:   payments,
		transactor: transactor,
		settlement: settlement,
		cache:      cache,
		alerts:     alerts,
		audit:      audit,
		resolver:   resolver,
		gateway:    gateway,
		tokens:     tokens,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// HandleCallback applies a gateway callback. Redeliveries of an outcome that
// was already recorded are reported as duplicates and change nothing.
func (s *CallbackReconcilerImpl) HandleCallback(ctx context.Context, cb *domain.Callback) (*domain.ReconcileResult, error) {
	if cb == nil || cb.CheckoutRequestID == "" {
		return nil, apperror.ErrMalformedCallback("callback is missing CheckoutRequestID")
	}

	// Layer 1: Redis fast path
	cached, err := s.cache.GetStatus(ctx, cb.CheckoutRequestID)
	if err != nil {
		s.log.Warn().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).Msg("callback cache read failed, falling through to DB")
	}
	if cached.IsTerminal() {
		s.log.Info().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Str("status", string(cached)).
			Msg("duplicate callback (cache)")
		return &domain.ReconcileResult{Outcome: domain.OutcomeDuplicate}, nil
	}

	// Layer 2: row lock
	res, err := s.reconcile(ctx, cb)
	if err != nil {
		return nil, err
	}
	s.auditOutcome(ctx, domain.AuditActionCallback, cb.CheckoutRequestID, res)
	return res, nil
}

// Requery asks the gateway for the outcome of a push whose callback never
// arrived and feeds the answer through the callback path.
func (s *CallbackReconcilerImpl) Requery(ctx context.Context, checkoutID string) (*domain.ReconcileResult, error) {
	p, err := s.payments.GetByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment request: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment request")
	}
	if p.IsTerminal() {
		return &domain.ReconcileResult{Outcome: domain.OutcomeDuplicate, Payment: p}, nil
	}

	cfg, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Token(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cb, err := s.gateway.QueryStatus(ctx, cfg, token, checkoutID)
	if err != nil {
		return nil, err
	}

	res, err := s.reconcile(ctx, cb)
	if err != nil {
		return nil, err
	}
	s.auditOutcome(ctx, domain.AuditActionRequery, checkoutID, res)
	return res, nil
}

func (s *CallbackReconcilerImpl) reconcile(ctx context.Context, cb *domain.Callback) (*domain.ReconcileResult, error) {
	log := s.log.With().Str("checkout_request_id", cb.CheckoutRequestID).Logger()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	p, err := s.payments.GetByCheckoutIDForUpdate(ctx, dbTx, cb.CheckoutRequestID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock payment request: %w", err))
	}
	if p == nil {
		logger.Anomaly(log).
			Int("result_code", cb.ResultCode).
			Str("merchant_request_id", cb.MerchantRequestID).
			Msg("callback for unknown payment request")
		s.alerts.Raise(ctx, &domain.Alert{
			ID:                uuid.New(),
			Severity:          domain.AlertSeverityCritical,
			Kind:              "unknown_correlation",
			CheckoutRequestID: cb.CheckoutRequestID,
			Message:           fmt.Sprintf("callback with result code %d matched no payment request", cb.ResultCode),
			CreatedAt:         s.now(),
		})
		return nil, apperror.ErrPaymentNotFoundForCallback(cb.CheckoutRequestID)
	}

	if p.IsTerminal() {
		log.Info().Str("status", string(p.Status)).Msg("duplicate callback")
		s.cacheStatus(ctx, p)
		return &domain.ReconcileResult{Outcome: domain.OutcomeDuplicate, Payment: p}, nil
	}
	// Only an acknowledged push may be settled by a callback.
	if p.Status != domain.PaymentStatusProcessing {
		logger.Anomaly(log).
			Str("payment_id", p.ID.String()).
			Str("status", string(p.Status)).
			Int("result_code", cb.ResultCode).
			Msg("callback for payment not awaiting confirmation, ignored")
		return &domain.ReconcileResult{Outcome: domain.OutcomeDuplicate, Payment: p}, nil
	}

	now := s.now()
	if !cb.Succeeded() {
		p.MarkFailed(cb.ResultCode, cb.ResultDesc, now)
		if err := s.payments.UpdateOutcome(ctx, dbTx, p); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("record failure: %w", err))
		}
		if err := dbTx.Commit(ctx); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
		}
		s.cacheStatus(ctx, p)
		log.Info().Int("result_code", cb.ResultCode).Str("result_desc", cb.ResultDesc).Msg("payment failed")
		return &domain.ReconcileResult{Outcome: domain.OutcomeFailed, Payment: p}, nil
	}

	p.MarkCompleted(cb.ReceiptNumber(), cb.ResultCode, cb.ResultDesc, now)
	if err := s.payments.UpdateOutcome(ctx, dbTx, p); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("record completion: %w", err))
	}
	if p.ReceiptNumber == nil {
		log.Warn().Msg("completed callback without receipt number")
	}

	settleErr, err := s.release(ctx, dbTx, p)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	s.cacheStatus(ctx, p)

	if settleErr != nil {
		s.alertStuck(ctx, p, settleErr)
	} else {
		log.Info().Str("payment_id", p.ID.String()).Msg("payment completed and released")
	}
	return &domain.ReconcileResult{Outcome: domain.OutcomeCompleted, Payment: p, SettlementErr: settleErr}, nil
}

// release makes one settlement attempt inside a savepoint. A settlement error
// rolls back the savepoint only and is returned as settleErr so the
// completed status still commits; any other error aborts the transaction.
func (s *CallbackReconcilerImpl) release(ctx context.Context, dbTx pgx.Tx, p *domain.PaymentRequest) (settleErr error, err error) {
	attempts, err := s.payments.IncrementAttempts(ctx, dbTx, p.ID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("increment attempts: %w", err))
	}
	p.SettlementAttempts = attempts

	sp, err := dbTx.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("open savepoint: %w", err))
	}
	if err := s.settlement.Settle(ctx, sp, p); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return nil, apperror.InternalError(fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		if apperror.IsKind(err, apperror.KindSettlement) {
			return err, nil
		}
		return nil, err
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("release savepoint: %w", err))
	}

	if err := s.payments.MarkReleased(ctx, dbTx, p.ID); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("mark released: %w", err))
	}
	p.Released = true
	return nil, nil
}

// Redrive re-offers completed but unreleased payments to settlement, each in
// its own transaction and under its row lock.
func (s *CallbackReconcilerImpl) Redrive(ctx context.Context) (*ports.RedriveReport, error) {
	candidates, err := s.payments.ListAwaitingRelease(ctx, s.cfg.MaxAttempts, s.cfg.BatchSize)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list awaiting release: %w", err))
	}

	report := &ports.RedriveReport{Scanned: len(candidates)}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := s.redriveOne(ctx, c.ID)
		if err != nil {
			s.log.Error().Err(err).Str("payment_id", c.ID.String()).Msg("redrive attempt aborted")
			report.Failed++
			continue
		}
		switch outcome {
		case redriveReleased:
			report.Released++
		case redriveStuck:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	if report.Scanned > 0 {
		s.log.Info().
			Int("scanned", report.Scanned).
			Int("released", report.Released).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Msg("redrive sweep finished")
	}
	return report, nil
}

type redriveOutcome int

const (
	redriveSkipped redriveOutcome = iota
	redriveReleased
	redriveStuck
)

func (s *CallbackReconcilerImpl) redriveOne(ctx context.Context, id uuid.UUID) (redriveOutcome, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return redriveSkipped, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	p, err := s.payments.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return redriveSkipped, apperror.ErrDatabaseError(fmt.Errorf("lock payment request: %w", err))
	}
	// Released or exhausted by a concurrent callback or sweep since listing.
	if p == nil || !p.AwaitingRelease() || p.SettlementAttempts >= s.cfg.MaxAttempts {
		return redriveSkipped, nil
	}

	settleErr, err := s.release(ctx, dbTx, p)
	if err != nil {
		return redriveSkipped, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return redriveSkipped, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	res := &domain.ReconcileResult{Outcome: domain.OutcomeCompleted, Payment: p, SettlementErr: settleErr}
	s.auditOutcome(ctx, domain.AuditActionRedrive, p.CheckoutRequestID, res)
	if settleErr != nil {
		s.alertStuck(ctx, p, settleErr)
		return redriveStuck, nil
	}
	return redriveReleased, nil
}

func (s *CallbackReconcilerImpl) alertStuck(ctx context.Context, p *domain.PaymentRequest, settleErr error) {
	severity := domain.AlertSeverityWarning
	if p.SettlementAttempts >= s.cfg.MaxAttempts {
		severity = domain.AlertSeverityCritical
	}
	logger.Anomaly(s.log).Err(settleErr).
		Str("payment_id", p.ID.String()).
		Str("checkout_request_id", p.CheckoutRequestID).
		Int("attempts", p.SettlementAttempts).
		Msg("payment completed but value not released")

	id := p.ID
	s.alerts.Raise(ctx, &domain.Alert{
		ID:                uuid.New(),
		Severity:          severity,
		Kind:              "settlement_failed",
		CheckoutRequestID: p.CheckoutRequestID,
		PaymentRequestID:  &id,
		Message:           fmt.Sprintf("attempt %d/%d: %v", p.SettlementAttempts, s.cfg.MaxAttempts, settleErr),
		CreatedAt:         s.now(),
	})
}

func (s *CallbackReconcilerImpl) cacheStatus(ctx context.Context, p *domain.PaymentRequest) {
	if err := s.cache.SetStatus(ctx, p.CheckoutRequestID, p.Status, callbackCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("checkout_request_id", p.CheckoutRequestID).Msg("failed to cache callback status")
	}
}

func (s *CallbackReconcilerImpl) auditOutcome(ctx context.Context, action domain.AuditAction, checkoutID string, res *domain.ReconcileResult) {
	details := map[string]any{"outcome": res.Outcome}
	var userID *uuid.UUID
	if res.Payment != nil {
		id := res.Payment.UserID
		userID = &id
		details["released"] = res.Payment.Released
	}
	if res.SettlementErr != nil {
		details["settlement_error"] = res.SettlementErr.Error()
	}
	raw, _ := json.Marshal(details)

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       userID,
		Action:       action,
		ResourceType: "payment_request",
		ResourceID:   checkoutID,
		Details:      string(raw),
		CreatedAt:    s.now(),
	})
}
