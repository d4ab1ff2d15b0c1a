package handlers

import (
	"net/http"

	"mpesa-gateway/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"
)

type AdminHandler struct {
	paymentService *services.PaymentService
	logger         *zap.Logger
}

func NewAdminHandler(paymentService *services.PaymentService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// GetPendingPushes - List pushes still waiting for a result
func (h *AdminHandler) GetPendingPushes(e *core.RequestEvent) error {
	pushes, err := h.paymentService.PendingPushes(e.Request.Context())
	if err != nil {
		h.logger.Error("PendingPushes", zap.Error(err))
		return apis.NewInternalServerError("Failed to get pending pushes", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"count":  len(pushes),
		"pushes": pushes,
	})
}

// ReconcilePending - Poll every pending push now
func (h *AdminHandler) ReconcilePending(e *core.RequestEvent) error {
	report, err := h.paymentService.ReconcilePending(e.Request.Context())
	if err != nil {
		h.logger.Error("ReconcilePending", zap.Error(err))
		return apis.NewInternalServerError("Failed to reconcile pending pushes", err)
	}

	return e.JSON(http.StatusOK, report)
}
