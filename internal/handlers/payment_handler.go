package handlers

import (
	"errors"
	"io"
	"net/http"

	"mpesa-gateway/internal/phone"
	"mpesa-gateway/internal/services"
	"mpesa-gateway/internal/services/mpesa"
	"mpesa-gateway/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"
)

const maxCallbackBody = 64 << 10

type PaymentHandler struct {
	paymentService *services.PaymentService
	logger         *zap.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// InitiatePush - Send an STK push for an order
func (h *PaymentHandler) InitiatePush(e *core.RequestEvent) error {
	var req services.InitiateRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	res, err := h.paymentService.InitiatePush(e.Request.Context(), req)
	if err != nil {
		return h.apiError("InitiatePush", err)
	}

	return e.JSON(http.StatusOK, res)
}

// GetPushStatus - Resolve the state of a push by checkout id
func (h *PaymentHandler) GetPushStatus(e *core.RequestEvent) error {
	checkoutID := e.Request.PathValue("checkoutId")
	if checkoutID == "" {
		return apis.NewBadRequestError("Missing checkout id", nil)
	}

	res, err := h.paymentService.QueryPushStatus(e.Request.Context(), checkoutID)
	if err != nil {
		return h.apiError("GetPushStatus", err)
	}

	return e.JSON(http.StatusOK, res)
}

// NormalizePhone - Validate a phone number before checkout
func (h *PaymentHandler) NormalizePhone(e *core.RequestEvent) error {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	res := h.paymentService.NormalizePhone(req.Phone)
	return e.JSON(http.StatusOK, map[string]any{
		"ok":      res.OK,
		"e164":    res.E164,
		"network": phone.DetectNetwork(res.E164),
		"reason":  res.Reason,
	})
}

// Callback - Receive the asynchronous STK result from M-Pesa
func (h *PaymentHandler) Callback(e *core.RequestEvent) error {
	body, err := io.ReadAll(io.LimitReader(e.Request.Body, maxCallbackBody))
	if err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	token := e.Request.URL.Query().Get("token")
	res, err := h.paymentService.HandleCallback(e.Request.Context(), token, body)
	if err != nil {
		return h.apiError("Callback", err)
	}

	h.logger.Info("callback accepted",
		zap.String("checkout_request_id", res.CheckoutRequestID),
		zap.String("state", string(res.State)),
	)
	return e.JSON(http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *PaymentHandler) apiError(op string, err error) error {
	var (
		valErr  *mpesa.ValidationError
		authErr *mpesa.AuthError
		provErr *mpesa.ProviderError
		cfgErr  *mpesa.ConfigurationError
	)

	switch {
	case errors.As(err, &valErr):
		return apis.NewBadRequestError(valErr.Error(), nil)
	case errors.Is(err, status.ErrOrderInProgress):
		return apis.NewApiError(http.StatusConflict, "A payment request for this order is already being sent", nil)
	case errors.Is(err, status.ErrInvalidCallbackToken):
		return apis.NewUnauthorizedError("Invalid callback token", nil)
	case errors.Is(err, status.ErrMalformedCallback):
		return apis.NewBadRequestError("Malformed callback", nil)
	case errors.As(err, &authErr):
		h.logger.Error(op, zap.Error(err))
		return apis.NewApiError(http.StatusBadGateway, "Payment provider authentication failed", nil)
	case errors.As(err, &provErr):
		h.logger.Error(op, zap.Error(err))
		if provErr.Timeout {
			return apis.NewApiError(http.StatusGatewayTimeout, "Payment provider timed out", nil)
		}
		return apis.NewApiError(http.StatusBadGateway, "Payment provider unavailable", nil)
	case errors.As(err, &cfgErr):
		h.logger.Error(op, zap.Error(err))
		return apis.NewInternalServerError("Payment gateway misconfigured", nil)
	}

	h.logger.Error(op, zap.Error(err))
	return apis.NewInternalServerError("internal error", err)
}
