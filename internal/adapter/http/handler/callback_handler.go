package handler

import (
	"io"
	"net/http"

	"settlement-engine/internal/adapter/gateway/mpesa"
	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"
	"settlement-engine/pkg/apperror"
	"settlement-engine/pkg/logger"
	"settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	ackAccepted = 0
	ackRejected = 1
)

// CallbackHandler receives push-payment result notifications.
type CallbackHandler struct {
	reconciler ports.CallbackReconciler
	log        zerolog.Logger
}

// NewCallbackHandler creates a new CallbackHandler.
func NewCallbackHandler(reconciler ports.CallbackReconciler, log zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{reconciler: reconciler, log: logger.Component(log, "callback_handler")}
}

// STKCallback handles POST /api/v1/callbacks/stk/:token.
//
// The gateway only needs to know whether to redeliver. Anything that was
// recorded, or that redelivery cannot fix, is accepted; only infrastructure
// failures answer 500.
func (h *CallbackHandler) STKCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warn().Err(err).Msg("unreadable callback body")
		response.Ack(c, http.StatusBadRequest, ackRejected, "Unreadable body")
		return
	}

	cb, err := mpesa.ParseCallback(body)
	if err != nil {
		logger.Anomaly(h.log).Err(err).Int("bytes", len(body)).Msg("malformed callback")
		response.Ack(c, http.StatusBadRequest, ackRejected, "Malformed callback")
		return
	}

	res, err := h.reconciler.HandleCallback(c.Request.Context(), cb)
	if err != nil {
		if apperror.IsKind(err, apperror.KindReconciliation) {
			// Already alerted by the reconciler.
			h.log.Warn().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).Msg("callback not reconciled")
			response.Ack(c, http.StatusOK, ackAccepted, "Accepted")
			return
		}
		h.log.Error().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).Msg("callback processing failed")
		response.Ack(c, http.StatusInternalServerError, ackRejected, "Temporarily unavailable")
		return
	}

	event := h.log.Info()
	if res.SettlementErr != nil {
		event = h.log.Error().AnErr("settlement_error", res.SettlementErr)
	}
	event.
		Str("checkout_request_id", cb.CheckoutRequestID).
		Str("outcome", string(res.Outcome)).
		Bool("released", res.Outcome == domain.OutcomeCompleted && res.SettlementErr == nil).
		Msg("callback handled")

	response.Ack(c, http.StatusOK, ackAccepted, "Accepted")
}
