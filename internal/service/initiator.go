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
	"settlement-engine/pkg/phone"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// initiationLockTTL is how long a user is blocked from a second prompt.
const initiationLockTTL = 30 * time.Second

const pushDescription = "Payment"

// persistTimeout bounds the write of an acknowledged push. The write runs
// detached from the caller: once the gateway has accepted the prompt the row
// must exist for the callback to match, whether or not the client is still
// waiting.
const persistTimeout = 5 * time.Second

// InitiatorLimits holds per-purpose minimum amounts in whole currency units.
type InitiatorLimits struct {
	MinDeposit       int64
	MinAssetPurchase int64
}

func (l InitiatorLimits) minimumFor(kind domain.PurposeKind) int64 {
	if kind == domain.PurposeAssetPurchase {
		return l.MinAssetPurchase
	}
	return l.MinDeposit
}

// PaymentInitiatorImpl implements ports.PaymentInitiator.
type PaymentInitiatorImpl struct {
	payments   ports.PaymentRequestRepository
	assets     ports.AssetRepository
	grants     ports.GrantRepository
	transactor ports.DBTransactor
	resolver   ports.GatewayConfigResolver
	gateway    ports.GatewayClient
	tokens     *GatewayTokenProvider
	lock       ports.InitiationLock
	audit      ports.AuditService
	limits     InitiatorLimits
	now        func() time.Time
	log        zerolog.Logger
}

// NewPaymentInitiator creates a new PaymentInitiatorImpl.
func NewPaymentInitiator(
	payments ports.PaymentRequestRepository,
	assets ports.AssetRepository,
	grants ports.GrantRepository,
	transactor ports.DBTransactor,
	resolver ports.GatewayConfigResolver,
	gateway ports.GatewayClient,
	tokens *GatewayTokenProvider,
	lock ports.InitiationLock,
	audit ports.AuditService,
	limits InitiatorLimits,
	log zerolog.Logger,
) *PaymentInitiatorImpl {
	return &PaymentInitiatorImpl{
		payments:   payments,
		assets:     assets,
		grants:     grants,
		transactor: transactor,
		resolver:   resolver,
		gateway:    gateway,
		tokens:     tokens,
		lock:       lock,
		audit:      audit,
		limits:     limits,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Initiate validates the request, sends the push prompt and records the
// payment request once the gateway has acknowledged it. Nothing is persisted
// for a prompt the gateway never accepted.
func (s *PaymentInitiatorImpl) Initiate(ctx context.Context, req ports.InitiateRequest) (*domain.PaymentRequest, error) {
	msisdn, grant, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	lockKey := req.UserID.String()
	acquired, err := s.lock.Acquire(ctx, lockKey, initiationLockTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", lockKey).Msg("initiation lock unavailable, continuing without it")
		acquired = true
	} else if !acquired {
		return nil, apperror.ErrInitiationInProgress()
	}

	p, pushed, err := s.submit(ctx, req, msisdn, grant)
	if err != nil {
		// A timed-out push may still reach the payer; hold the lock until it
		// expires. Otherwise the user may retry straight away.
		if !pushed || !apperror.IsKind(err, apperror.KindGatewayTimeout) {
			if relErr := s.lock.Release(ctx, lockKey); relErr != nil {
				s.log.Warn().Err(relErr).Str("user_id", lockKey).Msg("failed to release initiation lock")
			}
		}
		return nil, err
	}

	details, _ := json.Marshal(map[string]string{
		"purpose": string(p.Purpose.Kind),
		"amount":  p.Amount.String(),
	})
	userID := p.UserID
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionInitiate,
		ResourceType: "payment_request",
		ResourceID:   p.CheckoutRequestID,
		Details:      string(details),
		IPAddress:    req.ClientIP,
		CreatedAt:    p.CreatedAt,
	})

	return p, nil
}

func (s *PaymentInitiatorImpl) validate(ctx context.Context, req ports.InitiateRequest) (string, *domain.Grant, error) {
	if !req.Amount.IsPositive() {
		return "", nil, apperror.ErrInvalidAmount("Amount must be positive")
	}
	if err := req.Purpose.Validate(); err != nil {
		return "", nil, err
	}
	if minimum := s.limits.minimumFor(req.Purpose.Kind); req.Amount.LessThan(decimal.NewFromInt(minimum)) {
		return "", nil, apperror.ErrAmountBelowMinimum(minimum)
	}

	msisdn, err := phone.Normalize(req.Phone)
	if err != nil {
		return "", nil, err
	}

	switch req.Purpose.Kind {
	case domain.PurposeAssetPurchase:
		asset, err := s.assets.GetByID(ctx, *req.Purpose.AssetID)
		if err != nil {
			return "", nil, apperror.ErrDatabaseError(fmt.Errorf("get asset: %w", err))
		}
		if asset == nil {
			return "", nil, apperror.ErrAssetNotPurchasable("Asset not found")
		}
		if asset.Graduated {
			return "", nil, apperror.ErrAssetNotPurchasable("Asset has graduated; curve purchases are closed")
		}
	case domain.PurposeGrantUnlock:
		grant, err := s.grants.GetByUserID(ctx, req.UserID)
		if err != nil {
			return "", nil, apperror.ErrDatabaseError(fmt.Errorf("get grant: %w", err))
		}
		if grant == nil {
			return "", nil, apperror.Validation("No grant to unlock")
		}
		if !grant.Claimable() {
			return "", nil, apperror.Validation("Grant already claimed")
		}
		return msisdn, grant, nil
	}
	return msisdn, nil, nil
}

// submit reports pushed once the prompt has been handed to the gateway,
// whether or not an ack came back.
func (s *PaymentInitiatorImpl) submit(ctx context.Context, req ports.InitiateRequest, msisdn string, grant *domain.Grant) (p *domain.PaymentRequest, pushed bool, err error) {
	cfg, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, false, err
	}
	token, err := s.tokens.Token(ctx, cfg)
	if err != nil {
		return nil, false, err
	}

	ack, err := s.gateway.STKPush(ctx, cfg, token, domain.PushRequest{
		Phone:            msisdn,
		Amount:           req.Amount.Ceil().IntPart(),
		AccountReference: req.Purpose.AccountReference(),
		Description:      pushDescription,
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("user_id", req.UserID.String()).
			Str("phone", phone.Mask(msisdn)).
			Msg("push prompt not accepted")
		return nil, true, err
	}

	now := s.now()
	p = &domain.PaymentRequest{
		ID:                 uuid.New(),
		UserID:             req.UserID,
		Purpose:            req.Purpose,
		Amount:             req.Amount,
		Phone:              msisdn,
		Status:             domain.PaymentStatusProcessing,
		CheckoutRequestID:  ack.CheckoutRequestID,
		MerchantRequestID:  ack.MerchantRequestID,
		DestinationAddress: req.DestinationAddress,
		Network:            req.Network,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.persist(persistCtx, p, grant); err != nil {
		// The payer has a prompt on their phone that we have no row for; the
		// callback will surface as a reconciliation anomaly.
		logger.Anomaly(s.log).Err(err).
			Str("checkout_request_id", p.CheckoutRequestID).
			Str("user_id", p.UserID.String()).
			Msg("acknowledged push could not be recorded")
		return nil, true, err
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("checkout_request_id", p.CheckoutRequestID).
		Str("purpose", string(p.Purpose.Kind)).
		Str("amount", p.Amount.String()).
		Msg("push prompt sent")
	return p, true, nil
}

func (s *PaymentInitiatorImpl) persist(ctx context.Context, p *domain.PaymentRequest, grant *domain.Grant) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.payments.Create(ctx, dbTx, p); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("create payment request: %w", err))
	}
	if grant != nil {
		if err := s.grants.MarkUnlocking(ctx, dbTx, grant.ID); err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("mark grant unlocking: %w", err))
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
