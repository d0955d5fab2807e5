package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("VAL_002", "Invalid amount", http.StatusBadRequest),
			expected: "[VAL_002] Invalid amount",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
	assert.Nil(t, New("VAL_001", "test", http.StatusBadRequest).Unwrap())
}

func TestKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		kind       Kind
		httpStatus int
	}{
		{"Validation", Validation("bad"), KindValidation, 400},
		{"BelowMinimum", ErrAmountBelowMinimum(500), KindValidation, 400},
		{"InvalidPhone", ErrInvalidPhone("12", "too short"), KindValidation, 400},
		{"AssetNotPurchasable", ErrAssetNotPurchasable("closed"), KindValidation, 422},
		{"GatewayAuth", ErrGatewayAuth(errors.New("401")), KindGatewayAuth, 502},
		{"GatewayConfig", ErrGatewayConfig("none active"), KindGatewayAuth, 503},
		{"GatewaySubmission", ErrGatewaySubmission("Invalid BusinessShortCode", nil), KindGatewaySubmission, 502},
		{"GatewayTimeout", ErrGatewayTimeout(errors.New("deadline")), KindGatewayTimeout, 504},
		{"GatewayTokenTimeout", ErrGatewayTokenTimeout(errors.New("deadline")), KindGatewayTimeout, 504},
		{"Reconciliation", ErrPaymentNotFoundForCallback("ws_CO_1"), KindReconciliation, 404},
		{"MalformedCallback", ErrMalformedCallback("no body"), KindReconciliation, 400},
		{"Settlement", ErrSettlement("boom", nil), KindSettlement, 409},
		{"Graduated", ErrAssetGraduated(), KindSettlement, 409},
		{"CostExceeds", ErrCostExceedsAmount(), KindSettlement, 409},
		{"Supply", ErrSupplyExhausted(), KindSettlement, 409},
		{"InvalidToken", ErrInvalidToken(), KindAuth, 401},
		{"Forbidden", ErrForbidden(), KindAuth, 403},
		{"RateLimit", ErrRateLimitExceeded(), KindRateLimit, 429},
		{"InProgress", ErrInitiationInProgress(), KindRateLimit, 429},
		{"NotFound", ErrNotFound("payment"), KindNotFound, 404},
		{"Conflict", ErrConflict("dup"), KindConflict, 409},
		{"Internal", InternalError(errors.New("x")), KindSystem, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind())
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestIsKind_Wrapped(t *testing.T) {
	err := fmt.Errorf("settle payment: %w", ErrAssetGraduated())
	assert.True(t, IsKind(err, KindSettlement))
	assert.False(t, IsKind(err, KindValidation))
	assert.False(t, IsKind(errors.New("plain"), KindSystem))
}

func TestErrGatewaySubmission_CarriesGatewayMessage(t *testing.T) {
	err := ErrGatewaySubmission("Invalid Access Token", nil)
	assert.Contains(t, err.Message, "Invalid Access Token")

	bare := ErrGatewaySubmission("", nil)
	assert.Equal(t, "Payment gateway rejected the request", bare.Message)
}

func TestErrInvalidPhone_IncludesOriginal(t *testing.T) {
	err := ErrInvalidPhone("+1 (555) 0100", "must be 254 followed by 9 digits")
	assert.Contains(t, err.Message, "+1 (555) 0100")
}
