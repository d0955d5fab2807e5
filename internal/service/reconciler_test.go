package service

import (
	"context"
	"errors"
	"testing"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports/mocks"
	"settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reconcilerTestDeps struct {
	svc        *CallbackReconcilerImpl
	payments   *mocks.MockPaymentRequestRepository
	transactor *mocks.MockDBTransactor
	settlement *mocks.MockSettlementRouter
	cache      *mocks.MockCallbackCache
	alerts     *mocks.MockAlertService
	audit      *mocks.MockAuditService
	resolver   *mocks.MockGatewayConfigResolver
	gateway    *mocks.MockGatewayClient
	tokenCache *mocks.MockTokenCache
}

func setupReconciler(t *testing.T, maxAttempts int) *reconcilerTestDeps {
	ctrl := gomock.NewController(t)
	d := &reconcilerTestDeps{
		payments:   mocks.NewMockPaymentRequestRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		settlement: mocks.NewMockSettlementRouter(ctrl),
		cache:      mocks.NewMockCallbackCache(ctrl),
		alerts:     mocks.NewMockAlertService(ctrl),
		audit:      mocks.NewMockAuditService(ctrl),
		resolver:   mocks.NewMockGatewayConfigResolver(ctrl),
		gateway:    mocks.NewMockGatewayClient(ctrl),
		tokenCache: mocks.NewMockTokenCache(ctrl),
	}
	tokens := NewGatewayTokenProvider(d.gateway, d.tokenCache, zerolog.Nop())
	d.svc = NewCallbackReconciler(d.payments, d.transactor, d.settlement, d.cache, d.alerts, d.audit,
		d.resolver, d.gateway, tokens, ReconcilerConfig{MaxAttempts: maxAttempts, BatchSize: 10}, zerolog.Nop())
	return d
}

func processingPayment() *domain.PaymentRequest {
	return &domain.PaymentRequest{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		Purpose:           domain.FiatDeposit(),
		Status:            domain.PaymentStatusProcessing,
		CheckoutRequestID: "ws_CO_191220191020363925",
		MerchantRequestID: "29115-34620561-1",
	}
}

func successCallback(checkoutID string) *domain.Callback {
	return &domain.Callback{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		Metadata: []domain.CallbackItem{
			{Name: "Amount", Value: float64(2000)},
			{Name: "MpesaReceiptNumber", Value: "ABC123"},
			{Name: "PhoneNumber", Value: float64(254712345678)},
		},
	}
}

// ==================== HandleCallback ====================

func TestReconciler_Success_SettlesAndReleases(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	tx := &mockTx{}
	p := processingPayment()

	d.cache.EXPECT().GetStatus(ctx, p.CheckoutRequestID).Return(domain.PaymentStatus(""), nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, p.CheckoutRequestID).Return(p, nil)
	d.payments.EXPECT().UpdateOutcome(ctx, tx, p).Return(nil)
	d.payments.EXPECT().IncrementAttempts(ctx, tx, p.ID).Return(1, nil)
	d.settlement.EXPECT().Settle(ctx, gomock.Any(), p).DoAndReturn(
		func(_ context.Context, sp pgx.Tx, got *domain.PaymentRequest) error {
			assert.NotSame(t, tx, sp, "settlement runs inside a savepoint")
			assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
			return nil
		})
	d.payments.EXPECT().MarkReleased(ctx, tx, p.ID).Return(nil)
	d.cache.EXPECT().SetStatus(ctx, p.CheckoutRequestID, domain.PaymentStatusCompleted, callbackCacheTTL).Return(nil)
	d.audit.EXPECT().Log(ctx, gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionCallback, e.Action)
		assert.Contains(t, e.Details, `"released":true`)
	})

	res, err := d.svc.HandleCallback(ctx, successCallback(p.CheckoutRequestID))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.NoError(t, res.SettlementErr)
	assert.True(t, res.Payment.Released)
	require.NotNil(t, res.Payment.ReceiptNumber)
	assert.Equal(t, "ABC123", *res.Payment.ReceiptNumber)
	assert.Equal(t, 1, res.Payment.SettlementAttempts)
}

func TestReconciler_PendingPaymentNotTransitioned(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	tx := &mockTx{}
	p := processingPayment()
	p.Status = domain.PaymentStatusPending

	// No UpdateOutcome, Settle or cache write is expected.
	d.cache.EXPECT().GetStatus(ctx, p.CheckoutRequestID).Return(domain.PaymentStatus(""), nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, p.CheckoutRequestID).Return(p, nil)
	d.audit.EXPECT().Log(ctx, gomock.Any())

	res, err := d.svc.HandleCallback(ctx, successCallback(p.CheckoutRequestID))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, domain.PaymentStatusPending, res.Payment.Status)
	assert.Nil(t, res.Payment.ReceiptNumber)
	assert.False(t, res.Payment.Released)
}

func TestReconciler_FailedResultCode(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	tx := &mockTx{}
	p := processingPayment()

	cb := &domain.Callback{CheckoutRequestID: p.CheckoutRequestID, ResultCode: 1032, ResultDesc: "Request cancelled by user"}

	d.cache.EXPECT().GetStatus(ctx, p.CheckoutRequestID).Return(domain.PaymentStatus(""), nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, p.CheckoutRequestID).Return(p, nil)
	d.payments.EXPECT().UpdateOutcome(ctx, tx, p).Return(nil)
	d.cache.EXPECT().SetStatus(ctx, p.CheckoutRequestID, domain.PaymentStatusFailed, callbackCacheTTL).Return(nil)
	d.audit.EXPECT().Log(ctx, gomock.Any())

	res, err := d.svc.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, domain.PaymentStatusFailed, res.Payment.Status)
	require.NotNil(t, res.Payment.ResultCode)
	assert.Equal(t, 1032, *res.Payment.ResultCode)
	assert.False(t, res.Payment.Released)
}

func TestReconciler_DuplicateFromCache(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()

	d.cache.EXPECT().GetStatus(ctx, "ws_CO_1").Return(domain.PaymentStatusCompleted, nil)

	res, err := d.svc.HandleCallback(ctx, successCallback("ws_CO_1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
}

func TestReconciler_DuplicateFromDatabase(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	tx := &mockTx{}
	p := processingPayment()
	p.Status = domain.PaymentStatusFailed

	d.cache.EXPECT().GetStatus(ctx, p.CheckoutRequestID).Return(domain.PaymentStatus(""), errors.New("redis down"))
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, p.CheckoutRequestID).Return(p, nil)
	d.cache.EXPECT().SetStatus(ctx, p.CheckoutRequestID, domain.PaymentStatusFailed, callbackCacheTTL).Return(nil)
	d.audit.EXPECT().Log(ctx, gomock.Any())

	res, err := d.svc.HandleCallback(ctx, successCallback(p.CheckoutRequestID))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, domain.PaymentStatusFailed, res.Payment.Status, "a late success never overturns a recorded failure")
}

func TestReconciler_UnknownCorrelation(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	tx := &mockTx{}

	d.cache.EXPECT().GetStatus(ctx, "ws_CO_ghost").Return(domain.PaymentStatus(""), nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, "ws_CO_ghost").Return(nil, nil)
	d.alerts.EXPECT().Raise(ctx, gomock.Any()).Do(func(_ context.Context, a *domain.Alert) {
		assert.Equal(t, "unknown_correlation", a.Kind)
		assert.Equal(t, domain.AlertSeverityCritical, a.Severity)
	})

	_, err := d.svc.HandleCallback(ctx, successCallback("ws_CO_ghost"))
	assertAppError(t, err, "REC_001")
	assert.True(t, apperror.IsKind(err, apperror.KindReconciliation))
}

func TestReconciler_MissingCorrelation(t *testing.T) {
	d := setupReconciler(t, 2)

	_, err := d.svc.HandleCallback(context.Background(), &domain.Callback{ResultCode: 0})
	assertAppError(t, err, "REC_002")
}

func TestReconciler_SettlementErrorStillCommitsCompletion(t *testing.T) {
	d := setupReconciler(t, 1)
	ctx := context.Background()
	tx := &mockTx{}
	p := processingPayment()
	assetID := uuid.New()
	p.Purpose = domain.AssetPurchase(assetID)

	d.cache.EXPECT().GetStatus(ctx, p.CheckoutRequestID).Return(domain.PaymentStatus(""), nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, p.CheckoutRequestID).Return(p, nil)
	d.payments.EXPECT().UpdateOutcome(ctx, tx, p).Return(nil)
	d.payments.EXPECT().IncrementAttempts(ctx, tx, p.ID).Return(1, nil)
	d.settlement.EXPECT().Settle(ctx, gomock.Any(), p).Return(apperror.ErrAssetGraduated())
	d.cache.EXPECT().SetStatus(ctx, p.CheckoutRequestID, domain.PaymentStatusCompleted, callbackCacheTTL).Return(nil)
	d.alerts.EXPECT().Raise(ctx, gomock.Any()).Do(func(_ context.Context, a *domain.Alert) {
		assert.Equal(t, "settlement_failed", a.Kind)
		assert.Equal(t, domain.AlertSeverityCritical, a.Severity, "attempts exhausted")
		require.NotNil(t, a.PaymentRequestID)
		assert.Equal(t, p.ID, *a.PaymentRequestID)
	})
	d.audit.EXPECT().Log(ctx, gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Contains(t, e.Details, "settlement_error")
	})

	res, err := d.svc.HandleCallback(ctx, successCallback(p.CheckoutRequestID))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.True(t, res.Payment.AwaitingRelease())
	assertAppError(t, res.SettlementErr, "SET_002")
}

func TestReconciler_SettlementWarningBeforeExhaustion(t *testing.T) {
	d := setupReconciler(t, 3)
	ctx := context.Background()
	tx := &mockTx{}
	p := processingPayment()

	d.cache.EXPECT().GetStatus(ctx, gomock.Any()).Return(domain.PaymentStatus(""), nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, gomock.Any()).Return(p, nil)
	d.payments.EXPECT().UpdateOutcome(ctx, tx, p).Return(nil)
	d.payments.EXPECT().IncrementAttempts(ctx, tx, p.ID).Return(1, nil)
	d.settlement.EXPECT().Settle(ctx, gomock.Any(), p).Return(apperror.ErrSupplyExhausted())
	d.cache.EXPECT().SetStatus(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	d.alerts.EXPECT().Raise(ctx, gomock.Any()).Do(func(_ context.Context, a *domain.Alert) {
		assert.Equal(t, domain.AlertSeverityWarning, a.Severity)
	})
	d.audit.EXPECT().Log(ctx, gomock.Any())

	res, err := d.svc.HandleCallback(ctx, successCallback(p.CheckoutRequestID))
	require.NoError(t, err)
	assert.Error(t, res.SettlementErr)
}

func TestReconciler_InfrastructureErrorAborts(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	tx := &mockTx{}
	p := processingPayment()

	d.cache.EXPECT().GetStatus(ctx, gomock.Any()).Return(domain.PaymentStatus(""), nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, gomock.Any()).Return(p, nil)
	d.payments.EXPECT().UpdateOutcome(ctx, tx, p).Return(nil)
	d.payments.EXPECT().IncrementAttempts(ctx, tx, p.ID).Return(1, nil)
	d.settlement.EXPECT().Settle(ctx, gomock.Any(), p).Return(apperror.ErrDatabaseError(errors.New("conn reset")))

	_, err := d.svc.HandleCallback(ctx, successCallback(p.CheckoutRequestID))
	assertAppError(t, err, "SYS_001")
}

func TestReconciler_BeginFails(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()

	d.cache.EXPECT().GetStatus(ctx, gomock.Any()).Return(domain.PaymentStatus(""), nil)
	d.transactor.EXPECT().Begin(ctx).Return(nil, errors.New("pool exhausted"))

	_, err := d.svc.HandleCallback(ctx, successCallback("ws_CO_1"))
	assertAppError(t, err, "SYS_001")
}

// ==================== Requery ====================

func TestReconciler_Requery_AppliesGatewayAnswer(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	tx := &mockTx{}
	p := processingPayment()
	cfg := validGatewayConfig()

	d.payments.EXPECT().GetByCheckoutID(ctx, p.CheckoutRequestID).Return(p, nil)
	d.resolver.EXPECT().Resolve(ctx).Return(&cfg, nil)
	d.tokenCache.EXPECT().Get(ctx, gomock.Any()).Return("tok", nil)
	d.gateway.EXPECT().QueryStatus(ctx, &cfg, "tok", p.CheckoutRequestID).
		Return(&domain.Callback{CheckoutRequestID: p.CheckoutRequestID, ResultCode: 1, ResultDesc: "Insufficient funds"}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByCheckoutIDForUpdate(ctx, tx, p.CheckoutRequestID).Return(p, nil)
	d.payments.EXPECT().UpdateOutcome(ctx, tx, p).Return(nil)
	d.cache.EXPECT().SetStatus(ctx, p.CheckoutRequestID, domain.PaymentStatusFailed, callbackCacheTTL).Return(nil)
	d.audit.EXPECT().Log(ctx, gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionRequery, e.Action)
	})

	res, err := d.svc.Requery(ctx, p.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
}

func TestReconciler_Requery_TerminalIsDuplicate(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	p := processingPayment()
	p.Status = domain.PaymentStatusCompleted

	d.payments.EXPECT().GetByCheckoutID(ctx, p.CheckoutRequestID).Return(p, nil)

	res, err := d.svc.Requery(ctx, p.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
}

func TestReconciler_Requery_NotFound(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()

	d.payments.EXPECT().GetByCheckoutID(ctx, "ws_CO_x").Return(nil, nil)

	_, err := d.svc.Requery(ctx, "ws_CO_x")
	assertAppError(t, err, "NF_001")
}

func TestReconciler_Requery_StillProcessing(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	p := processingPayment()
	cfg := validGatewayConfig()

	d.payments.EXPECT().GetByCheckoutID(ctx, p.CheckoutRequestID).Return(p, nil)
	d.resolver.EXPECT().Resolve(ctx).Return(&cfg, nil)
	d.tokenCache.EXPECT().Get(ctx, gomock.Any()).Return("tok", nil)
	d.gateway.EXPECT().QueryStatus(ctx, &cfg, "tok", p.CheckoutRequestID).
		Return(nil, apperror.ErrGatewaySubmission("The transaction is being processed", nil))

	_, err := d.svc.Requery(ctx, p.CheckoutRequestID)
	assertAppError(t, err, "GW_SUB_001")
}

// ==================== Redrive ====================

func TestReconciler_Redrive(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()

	stuck := processingPayment()
	stuck.MarkCompleted("R1", 0, "ok", stuck.CreatedAt)
	stuck.SettlementAttempts = 1

	raced := processingPayment()
	raced.CheckoutRequestID = "ws_CO_raced"
	raced.MarkCompleted("R2", 0, "ok", raced.CreatedAt)
	racedNow := *raced
	racedNow.Released = true

	tx1, tx2 := &mockTx{}, &mockTx{}

	d.payments.EXPECT().ListAwaitingRelease(ctx, 2, 10).Return([]domain.PaymentRequest{*stuck, *raced}, nil)

	d.transactor.EXPECT().Begin(ctx).Return(tx1, nil)
	d.payments.EXPECT().GetByIDForUpdate(ctx, tx1, stuck.ID).Return(stuck, nil)
	d.payments.EXPECT().IncrementAttempts(ctx, tx1, stuck.ID).Return(2, nil)
	d.settlement.EXPECT().Settle(ctx, gomock.Any(), stuck).Return(nil)
	d.payments.EXPECT().MarkReleased(ctx, tx1, stuck.ID).Return(nil)
	d.audit.EXPECT().Log(ctx, gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionRedrive, e.Action)
	})

	d.transactor.EXPECT().Begin(ctx).Return(tx2, nil)
	d.payments.EXPECT().GetByIDForUpdate(ctx, tx2, raced.ID).Return(&racedNow, nil)

	report, err := d.svc.Redrive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Released)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
}

func TestReconciler_Redrive_StuckAgain(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()
	tx := &mockTx{}

	p := processingPayment()
	p.MarkCompleted("R1", 0, "ok", p.CreatedAt)
	p.SettlementAttempts = 1

	d.payments.EXPECT().ListAwaitingRelease(ctx, 2, 10).Return([]domain.PaymentRequest{*p}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(ctx, tx, p.ID).Return(p, nil)
	d.payments.EXPECT().IncrementAttempts(ctx, tx, p.ID).Return(2, nil)
	d.settlement.EXPECT().Settle(ctx, gomock.Any(), p).Return(apperror.ErrCostExceedsAmount())
	d.audit.EXPECT().Log(ctx, gomock.Any())
	d.alerts.EXPECT().Raise(ctx, gomock.Any()).Do(func(_ context.Context, a *domain.Alert) {
		assert.Equal(t, domain.AlertSeverityCritical, a.Severity)
	})

	report, err := d.svc.Redrive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Released)
}

func TestReconciler_Redrive_ListError(t *testing.T) {
	d := setupReconciler(t, 2)
	ctx := context.Background()

	d.payments.EXPECT().ListAwaitingRelease(ctx, 2, 10).Return(nil, errors.New("db down"))

	_, err := d.svc.Redrive(ctx)
	assertAppError(t, err, "SYS_001")
}

func TestNewCallbackReconciler_Defaults(t *testing.T) {
	svc := NewCallbackReconciler(nil, nil, nil, nil, nil, nil, nil, nil, nil, ReconcilerConfig{}, zerolog.Nop())
	assert.Equal(t, 1, svc.cfg.MaxAttempts)
	assert.Equal(t, 50, svc.cfg.BatchSize)
}
