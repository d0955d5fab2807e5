package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind groups error codes into the failure classes callers branch on.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindGatewayAuth       Kind = "GATEWAY_AUTH"
	KindGatewaySubmission Kind = "GATEWAY_SUBMISSION"
	KindGatewayTimeout    Kind = "GATEWAY_TIMEOUT"
	KindReconciliation    Kind = "RECONCILIATION"
	KindSettlement        Kind = "SETTLEMENT"
	KindAuth              Kind = "AUTH"
	KindRateLimit         Kind = "RATE_LIMIT"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindSystem            Kind = "SYSTEM"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Kind derives the failure class from the code prefix.
func (e *AppError) Kind() Kind {
	switch {
	case strings.HasPrefix(e.Code, "VAL_"):
		return KindValidation
	case strings.HasPrefix(e.Code, "GW_AUTH_"):
		return KindGatewayAuth
	case strings.HasPrefix(e.Code, "GW_SUB_"):
		return KindGatewaySubmission
	case strings.HasPrefix(e.Code, "GW_TIMEOUT"):
		return KindGatewayTimeout
	case strings.HasPrefix(e.Code, "REC_"):
		return KindReconciliation
	case strings.HasPrefix(e.Code, "SET_"):
		return KindSettlement
	case strings.HasPrefix(e.Code, "AUTH_"):
		return KindAuth
	case strings.HasPrefix(e.Code, "RATE_"):
		return KindRateLimit
	case strings.HasPrefix(e.Code, "NF_"):
		return KindNotFound
	case strings.HasPrefix(e.Code, "CONF_"):
		return KindConflict
	}
	return KindSystem
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// IsKind reports whether err (or anything it wraps) is an AppError of kind k.
func IsKind(err error, k Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind() == k
	}
	return false
}

// ---- Validation (VAL) ----

// Validation returns a generic validation error with the given message.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount(message string) *AppError {
	return New("VAL_002", message, http.StatusBadRequest)
}

func ErrAmountBelowMinimum(minimum int64) *AppError {
	return New("VAL_003", fmt.Sprintf("Amount must be at least %d", minimum), http.StatusBadRequest)
}

func ErrInvalidPhone(original string, reason string) *AppError {
	return New("VAL_004", fmt.Sprintf("Invalid phone number %q: %s", original, reason), http.StatusBadRequest)
}

func ErrInvalidPurpose(message string) *AppError {
	return New("VAL_005", message, http.StatusBadRequest)
}

func ErrAssetNotPurchasable(message string) *AppError {
	return New("VAL_006", message, http.StatusUnprocessableEntity)
}

func ErrPayloadTooLarge() *AppError {
	return New("VAL_007", "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- Gateway (GW) ----

func ErrGatewayAuth(err error) *AppError {
	return Wrap("GW_AUTH_001", "Payment gateway rejected credentials", http.StatusBadGateway, err)
}

func ErrGatewayConfig(message string) *AppError {
	return New("GW_AUTH_002", message, http.StatusServiceUnavailable)
}

// ErrGatewaySubmission carries the gateway's own message where one was returned.
func ErrGatewaySubmission(gatewayMessage string, err error) *AppError {
	msg := "Payment gateway rejected the request"
	if gatewayMessage != "" {
		msg = msg + ": " + gatewayMessage
	}
	return Wrap("GW_SUB_001", msg, http.StatusBadGateway, err)
}

// ErrGatewayTimeout means the outcome of the submission is unknown; the payer
// may still receive the prompt.
func ErrGatewayTimeout(err error) *AppError {
	return Wrap("GW_TIMEOUT", "Payment gateway did not respond in time; outcome unknown", http.StatusGatewayTimeout, err)
}

// ErrGatewayTokenTimeout is a stalled credential round-trip. Nothing reached
// the payer, so unlike ErrGatewayTimeout the outcome is known.
func ErrGatewayTokenTimeout(err error) *AppError {
	return Wrap("GW_TIMEOUT", "Payment gateway did not issue an access token in time; nothing was submitted", http.StatusGatewayTimeout, err)
}

// ---- Reconciliation (REC) ----

func ErrPaymentNotFoundForCallback(correlationID string) *AppError {
	return New("REC_001", fmt.Sprintf("No payment request for correlation id %s", correlationID), http.StatusNotFound)
}

func ErrMalformedCallback(message string) *AppError {
	return New("REC_002", message, http.StatusBadRequest)
}

// ---- Settlement (SET) ----

func ErrSettlement(message string, err error) *AppError {
	return Wrap("SET_001", message, http.StatusConflict, err)
}

func ErrAssetGraduated() *AppError {
	return New("SET_002", "Asset has graduated; curve purchases are closed", http.StatusConflict)
}

func ErrCostExceedsAmount() *AppError {
	return New("SET_003", "Purchase cost exceeds the amount paid", http.StatusConflict)
}

func ErrSupplyExhausted() *AppError {
	return New("SET_004", "Purchase exceeds remaining asset supply", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_002", "Insufficient permissions", http.StatusForbidden)
}

func ErrInvalidCallbackToken() *AppError {
	return New("AUTH_003", "Invalid callback token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

func ErrInitiationInProgress() *AppError {
	return New("RATE_002", "A payment prompt is already in progress; wait before retrying", http.StatusTooManyRequests)
}

// ---- Lookup (NF / CONF) ----

func ErrNotFound(entity string) *AppError {
	return New("NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrConflict(message string) *AppError {
	return New("CONF_001", message, http.StatusConflict)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
