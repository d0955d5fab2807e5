package service

import (
	"context"
	"fmt"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"
	"settlement-engine/pkg/apperror"

	"github.com/google/uuid"
)

// StatusServiceImpl implements ports.StatusService and ports.AccountService.
type StatusServiceImpl struct {
	payments ports.PaymentRequestRepository
	accounts ports.AccountRepository
	holdings ports.HoldingRepository
}

// NewStatusService creates a new StatusServiceImpl.
func NewStatusService(
	payments ports.PaymentRequestRepository,
	accounts ports.AccountRepository,
	holdings ports.HoldingRepository,
) *StatusServiceImpl {
	return &StatusServiceImpl{payments: payments, accounts: accounts, holdings: holdings}
}

// GetStatus returns a payment request owned by userID. Requests owned by
// somebody else are reported as not found.
func (s *StatusServiceImpl) GetStatus(ctx context.Context, userID uuid.UUID, checkoutID string) (*domain.PaymentRequest, error) {
	p, err := s.payments.GetByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment request: %w", err))
	}
	if p == nil || p.UserID != userID {
		return nil, apperror.ErrNotFound("payment request")
	}
	return p, nil
}

// GetPayment returns a payment request by id, scoped to its owner.
func (s *StatusServiceImpl) GetPayment(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*domain.PaymentRequest, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment request: %w", err))
	}
	if p == nil || p.UserID != userID {
		return nil, apperror.ErrNotFound("payment request")
	}
	return p, nil
}

// GetAccount returns the user's fiat account; a user never credited has a zero balance.
func (s *StatusServiceImpl) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	a, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get account: %w", err))
	}
	if a == nil {
		return &domain.Account{UserID: userID}, nil
	}
	return a, nil
}

// ListHoldings returns the user's asset positions.
func (s *StatusServiceImpl) ListHoldings(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	hs, err := s.holdings.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list holdings: %w", err))
	}
	if hs == nil {
		hs = []domain.Holding{}
	}
	return hs, nil
}
