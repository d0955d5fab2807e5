package ports

import (
	"context"
	"time"

	"settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   string
}

// RoleAdmin grants access to operator routes.
const RoleAdmin = "admin"

// CallbackCache is the Redis-layer record of terminal payment statuses (fast path).
type CallbackCache interface {
	// GetStatus returns the cached status or "" on miss.
	GetStatus(ctx context.Context, checkoutID string) (domain.PaymentStatus, error)
	SetStatus(ctx context.Context, checkoutID string, status domain.PaymentStatus, ttl time.Duration) error
}

// TokenCache stores gateway access credentials until shortly before they expire.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, error) // "" on miss
	Set(ctx context.Context, key string, token string, ttl time.Duration) error
}

// InitiationLock rejects duplicate payment prompts for the same user.
type InitiationLock interface {
	// Acquire returns true if the lock was taken, false if it is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// --- Gateway ---

// GatewayClient talks to the mobile-money gateway.
type GatewayClient interface {
	AccessToken(ctx context.Context, cfg *domain.GatewayConfig) (string, time.Duration, error)
	STKPush(ctx context.Context, cfg *domain.GatewayConfig, token string, req domain.PushRequest) (*domain.PushAck, error)
	QueryStatus(ctx context.Context, cfg *domain.GatewayConfig, token string, checkoutID string) (*domain.Callback, error)
}

// GatewayConfigResolver yields the single active gateway configuration.
type GatewayConfigResolver interface {
	Resolve(ctx context.Context) (*domain.GatewayConfig, error)
}

// --- Service Ports (Business Logic) ---

// InitiateRequest holds input for a payment prompt.
type InitiateRequest struct {
	UserID             uuid.UUID
	Purpose            domain.Purpose
	Amount             decimal.Decimal
	Phone              string
	DestinationAddress *string
	Network            *string
	ClientIP           string
}

// PaymentInitiator starts a push payment.
type PaymentInitiator interface {
	Initiate(ctx context.Context, req InitiateRequest) (*domain.PaymentRequest, error)
}

// CallbackReconciler applies gateway outcomes to payment requests.
type CallbackReconciler interface {
	HandleCallback(ctx context.Context, cb *domain.Callback) (*domain.ReconcileResult, error)
	Requery(ctx context.Context, checkoutID string) (*domain.ReconcileResult, error)
}

// RedriveReport summarizes one redrive sweep.
type RedriveReport struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// RedriveService re-offers completed but unreleased payments to settlement.
type RedriveService interface {
	Redrive(ctx context.Context) (*RedriveReport, error)
}

// SettlementRouter credits value for a completed payment inside the caller's transaction.
type SettlementRouter interface {
	Settle(ctx context.Context, tx pgx.Tx, p *domain.PaymentRequest) error
}

// StatusService answers payment status queries.
type StatusService interface {
	GetStatus(ctx context.Context, userID uuid.UUID, checkoutID string) (*domain.PaymentRequest, error)
	GetPayment(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*domain.PaymentRequest, error)
}

// AccountService answers balance and holdings queries.
type AccountService interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	ListHoldings(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error)
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// AlertService notifies operators of payments needing manual attention.
type AlertService interface {
	Raise(ctx context.Context, alert *domain.Alert)
}

// HealthChecker is a dependency reported by GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
