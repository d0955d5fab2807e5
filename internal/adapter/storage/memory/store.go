// Package memory is an in-process implementation of every repository port.
// Transactions are serialized on a single lock and rolled back by restoring a
// snapshot, so the semantics match SERIALIZABLE with savepoints. It backs
// local demo runs (storage.driver=memory) and end-to-end tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type holdingKey struct {
	userID  uuid.UUID
	assetID uuid.UUID
}

type ledgerKey struct {
	paymentID uuid.UUID
	kind      domain.LedgerKind
}

type state struct {
	payments   map[uuid.UUID]domain.PaymentRequest
	byCheckout map[string]uuid.UUID
	accounts   map[uuid.UUID]domain.Account
	assets     map[uuid.UUID]domain.Asset
	holdings   map[holdingKey]domain.Holding
	holdOrder  []holdingKey
	ledger     []domain.LedgerEntry
	ledgerKeys map[ledgerKey]struct{}
	grants     map[uuid.UUID]domain.Grant
	gateways   []domain.GatewayConfigRecord
}

func newState() *state {
	return &state{
		payments:   make(map[uuid.UUID]domain.PaymentRequest),
		byCheckout: make(map[string]uuid.UUID),
		accounts:   make(map[uuid.UUID]domain.Account),
		assets:     make(map[uuid.UUID]domain.Asset),
		holdings:   make(map[holdingKey]domain.Holding),
		ledgerKeys: make(map[ledgerKey]struct{}),
		grants:     make(map[uuid.UUID]domain.Grant),
	}
}

// clone copies the state. Stored values hold no shared mutable data apart
// from pointer fields, which are never mutated in place.
func (s *state) clone() *state {
	c := &state{
		payments:   make(map[uuid.UUID]domain.PaymentRequest, len(s.payments)),
		byCheckout: make(map[string]uuid.UUID, len(s.byCheckout)),
		accounts:   make(map[uuid.UUID]domain.Account, len(s.accounts)),
		assets:     make(map[uuid.UUID]domain.Asset, len(s.assets)),
		holdings:   make(map[holdingKey]domain.Holding, len(s.holdings)),
		holdOrder:  append([]holdingKey(nil), s.holdOrder...),
		ledger:     append([]domain.LedgerEntry(nil), s.ledger...),
		ledgerKeys: make(map[ledgerKey]struct{}, len(s.ledgerKeys)),
		grants:     make(map[uuid.UUID]domain.Grant, len(s.grants)),
		gateways:   append([]domain.GatewayConfigRecord(nil), s.gateways...),
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.byCheckout {
		c.byCheckout[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.assets {
		c.assets[k] = v
	}
	for k, v := range s.holdings {
		c.holdings[k] = v
	}
	for k := range s.ledgerKeys {
		c.ledgerKeys[k] = struct{}{}
	}
	for k, v := range s.grants {
		c.grants[k] = v
	}
	return c
}

// Store owns the in-memory data set. Audit entries live outside the
// transactional state so a rollback never drops them.
type Store struct {
	txMu   sync.Mutex
	dataMu sync.RWMutex
	data   *state

	auditMu sync.Mutex
	audit   []domain.AuditLog
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

func (s *Store) read(fn func(d *state)) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	fn(s.data)
}

func (s *Store) write(fn func(d *state) error) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return fn(s.data)
}

func (s *Store) snapshot() *state {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.data.clone()
}

func (s *Store) restore(snap *state) {
	s.dataMu.Lock()
	s.data = snap
	s.dataMu.Unlock()
}

// Begin implements ports.DBTransactor. Only one transaction runs at a time.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	return &memTx{store: s, snap: s.snapshot()}, nil
}

// memTx satisfies pgx.Tx for the methods the repositories use. Anything else
// falls through to the nil embedded interface and panics.
type memTx struct {
	pgx.Tx
	store  *Store
	snap   *state
	nested bool
	closed bool
}

// Begin opens a savepoint.
func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) {
	if t.closed {
		return nil, pgx.ErrTxClosed
	}
	return &memTx{store: t.store, snap: t.store.snapshot(), nested: true}, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if !t.nested {
		t.store.txMu.Unlock()
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.store.restore(t.snap)
	if !t.nested {
		t.store.txMu.Unlock()
	}
	return nil
}

var errNoTx = errors.New("memory: write outside transaction")

func requireTx(tx pgx.Tx) error {
	mt, ok := tx.(*memTx)
	if !ok || mt == nil {
		return errNoTx
	}
	if mt.closed {
		return pgx.ErrTxClosed
	}
	return nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }
