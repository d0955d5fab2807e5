package handler

import (
	"settlement-engine/internal/adapter/http/dto"
	"settlement-engine/internal/adapter/http/middleware"
	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"
	"settlement-engine/pkg/apperror"
	"settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles payment initiation and status endpoints.
type PaymentHandler struct {
	initiator ports.PaymentInitiator
	statusSvc ports.StatusService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(initiator ports.PaymentInitiator, statusSvc ports.StatusService) *PaymentHandler {
	return &PaymentHandler{initiator: initiator, statusSvc: statusSvc}
}

// Initiate handles POST /api/v1/payments.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(dto.BindingMessage(err)))
		return
	}
	dto.SanitizeStruct(&req)

	purpose, err := domain.ParsePurpose(req.Purpose, req.AssetID)
	if err != nil {
		response.Error(c, err)
		return
	}

	p, err := h.initiator.Initiate(c.Request.Context(), ports.InitiateRequest{
		UserID:             userID,
		Purpose:            purpose,
		Amount:             req.Amount,
		Phone:              req.Phone,
		DestinationAddress: req.DestinationAddress,
		Network:            req.Network,
		ClientIP:           c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewPaymentResponse(p))
}

// Status handles GET /api/v1/payments/:checkout_id/status.
func (h *PaymentHandler) Status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	checkoutID := c.Param("checkout_id")
	if !dto.ValidCheckoutID(checkoutID) {
		response.Error(c, apperror.Validation("invalid checkout_id"))
		return
	}

	p, err := h.statusSvc.GetStatus(c.Request.Context(), userID, checkoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPaymentResponse(p))
}

// GetPayment handles GET /api/v1/payment-requests/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment request id"))
		return
	}

	p, err := h.statusSvc.GetPayment(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPaymentResponse(p))
}

// currentUser returns the authenticated user set by middleware.JWTAuth.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(middleware.CtxUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}
