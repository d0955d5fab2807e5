package handler

import (
	"settlement-engine/internal/adapter/http/dto"
	"settlement-engine/internal/core/ports"
	"settlement-engine/pkg/apperror"
	"settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operator tools for stuck payments.
type AdminHandler struct {
	redriveSvc ports.RedriveService
	reconciler ports.CallbackReconciler
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(redriveSvc ports.RedriveService, reconciler ports.CallbackReconciler) *AdminHandler {
	return &AdminHandler{redriveSvc: redriveSvc, reconciler: reconciler}
}

// Redrive handles POST /api/v1/admin/redrive.
func (h *AdminHandler) Redrive(c *gin.Context) {
	report, err := h.redriveSvc.Redrive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.RedriveResponse{RedriveReport: *report})
}

// Requery handles POST /api/v1/admin/payments/:checkout_id/requery. It asks
// the gateway for the outcome of a payment whose callback never arrived.
func (h *AdminHandler) Requery(c *gin.Context) {
	checkoutID := c.Param("checkout_id")
	if !dto.ValidCheckoutID(checkoutID) {
		response.Error(c, apperror.Validation("invalid checkout_id"))
		return
	}

	res, err := h.reconciler.Requery(c.Request.Context(), checkoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewReconcileResponse(res))
}
