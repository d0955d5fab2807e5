package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayment() *domain.PaymentRequest {
	now := time.Now().UTC()
	return &domain.PaymentRequest{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		Purpose:           domain.FiatDeposit(),
		Amount:            decimal.NewFromInt(2000),
		Phone:             "254712345678",
		Status:            domain.PaymentStatusProcessing,
		CheckoutRequestID: "ws_CO_" + uuid.NewString(),
		MerchantRequestID: "m-1",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestStore_CommitPersists(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := newPayment()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Payments().Create(ctx, tx, p))
	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed, "rollback after commit is a no-op")

	got, err := s.Payments().GetByCheckoutID(ctx, p.CheckoutRequestID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
}

func TestStore_RollbackDiscards(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := newPayment()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Payments().Create(ctx, tx, p))
	require.NoError(t, tx.Rollback(ctx))

	got, err := s.Payments().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SavepointRollbackKeepsOuterWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := newPayment()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Payments().Create(ctx, tx, p))

	sp, err := tx.Begin(ctx)
	require.NoError(t, err)
	_, err = s.Accounts().Credit(ctx, sp, p.UserID, decimal.NewFromInt(2000))
	require.NoError(t, err)
	require.NoError(t, sp.Rollback(ctx))

	require.NoError(t, tx.Commit(ctx))

	got, _ := s.Payments().GetByID(ctx, p.ID)
	assert.NotNil(t, got, "outer write survives")
	acct, _ := s.Accounts().GetByUserID(ctx, p.UserID)
	assert.Nil(t, acct, "savepoint write is gone")
}

func TestStore_WritesRequireTransaction(t *testing.T) {
	s := NewStore()
	_, err := s.Accounts().Credit(context.Background(), nil, uuid.New(), decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestLedgerRepo_OneEntryPerKind(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	pid := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	entry := &domain.LedgerEntry{ID: uuid.New(), PaymentRequestID: pid, Kind: domain.LedgerKindDeposit}
	require.NoError(t, s.Ledger().Append(ctx, tx, entry))
	assert.Error(t, s.Ledger().Append(ctx, tx, entry))

	exists, err := s.Ledger().Exists(ctx, tx, pid, domain.LedgerKindDeposit)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Ledger().Exists(ctx, tx, pid, domain.LedgerKindGrant)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHoldingRepo_CreditReportsNewHolder(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID, assetID := uuid.New(), uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	created, err := s.Holdings().Credit(ctx, tx, userID, assetID, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Holdings().Credit(ctx, tx, userID, assetID, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, tx.Commit(ctx))

	h, err := s.Holdings().Get(ctx, userID, assetID)
	require.NoError(t, err)
	assert.True(t, h.Balance.Equal(decimal.NewFromInt(15)))

	list, err := s.Holdings().ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGrantRepo_ClaimOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()
	g := s.SeedGrant(userID, decimal.NewFromInt(300))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	claimed, err := s.Grants().ClaimIfUnlocking(ctx, tx, userID)
	require.NoError(t, err)
	assert.Nil(t, claimed, "locked grants are not claimable yet")

	require.NoError(t, s.Grants().MarkUnlocking(ctx, tx, g.ID))

	claimed, err = s.Grants().ClaimIfUnlocking(ctx, tx, userID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, domain.GrantStatusClaimed, claimed.Status)

	claimed, err = s.Grants().ClaimIfUnlocking(ctx, tx, userID)
	require.NoError(t, err)
	assert.Nil(t, claimed)

	assert.Error(t, s.Grants().MarkUnlocking(ctx, tx, g.ID))
}

func TestAssetRepo_GraduationNeverCleared(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := s.SeedAsset(domain.Asset{
		Symbol:              "KOA",
		BasePrice:           decimal.RequireFromString("0.001"),
		PriceIncrement:      decimal.RequireFromString("0.00000001"),
		TotalSupply:         decimal.NewFromInt(1_000_000_000),
		GraduationThreshold: decimal.NewFromInt(100),
		Graduated:           true,
	})

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	a.Graduated = false
	require.NoError(t, s.Assets().UpdateMarketState(ctx, tx, &a))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.Assets().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Graduated)
}

func TestPaymentRequestRepo_UpdateOutcomeOnlyFromProcessing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	p := newPayment()
	p.Status = domain.PaymentStatusPending
	require.NoError(t, s.Payments().Create(ctx, tx, p))

	update := *p
	update.MarkCompleted("R1", 0, "ok", time.Now().UTC())
	assert.Error(t, s.Payments().UpdateOutcome(ctx, tx, &update))

	got, err := s.Payments().GetByIDForUpdate(ctx, tx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, got.Status)
	assert.Nil(t, got.ReceiptNumber)

	q := newPayment()
	require.NoError(t, s.Payments().Create(ctx, tx, q))
	q.MarkCompleted("R2", 0, "ok", time.Now().UTC())
	require.NoError(t, s.Payments().UpdateOutcome(ctx, tx, q))
	assert.Error(t, s.Payments().UpdateOutcome(ctx, tx, q), "a completed row does not move again")
}

func TestPaymentRequestRepo_ListAwaitingRelease(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	released := newPayment()
	pending := newPayment()
	exhausted := newPayment()
	for _, p := range []*domain.PaymentRequest{released, pending, exhausted} {
		p.MarkCompleted("R", 0, "ok", time.Now().UTC())
		require.NoError(t, s.Payments().Create(ctx, tx, p))
	}
	require.NoError(t, s.Payments().MarkReleased(ctx, tx, released.ID))
	_, err = s.Payments().IncrementAttempts(ctx, tx, exhausted.ID)
	require.NoError(t, err)
	_, err = s.Payments().IncrementAttempts(ctx, tx, exhausted.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	list, err := s.Payments().ListAwaitingRelease(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)
}

func TestStore_TransactionsAreSerialized(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.Begin(ctx)
			if !assert.NoError(t, err) {
				return
			}
			acct, _ := s.Accounts().GetByUserID(ctx, userID)
			if acct == nil || acct.Balance.LessThan(decimal.NewFromInt(10)) {
				_, err = s.Accounts().Credit(ctx, tx, userID, decimal.NewFromInt(1))
				assert.NoError(t, err)
			}
			assert.NoError(t, tx.Commit(ctx))
		}()
	}
	wg.Wait()

	acct, err := s.Accounts().GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(10)), "read-then-write under a transaction never races")
}

func TestAuditRepo_SurvivesRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Audit().Create(ctx, &domain.AuditLog{ID: uuid.New(), Action: domain.AuditActionInitiate}))
	require.NoError(t, tx.Rollback(ctx))

	assert.Len(t, s.AuditEntries(), 1)
}
