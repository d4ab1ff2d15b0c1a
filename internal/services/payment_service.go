package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"mpesa-gateway/internal/phone"
	"mpesa-gateway/internal/services/mpesa"
	"mpesa-gateway/internal/status"
	"mpesa-gateway/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Gateway is implemented by *mpesa.Gateway.
type Gateway interface {
	InitiatePush(ctx context.Context, orderID string, amount decimal.Decimal, phoneNumber, accountReference, description string) (*mpesa.PushResult, error)
	QueryPushStatus(ctx context.Context, checkoutID string) (*mpesa.PollResult, error)
	NormalizePhone(raw string) phone.Result
}

// OrderStore is implemented by *OrderGuard.
type OrderStore interface {
	Reserve(ctx context.Context, orderID string) (string, error)
	Complete(ctx context.Context, orderID, checkoutID string) error
	Release(ctx context.Context, orderID string) error
	OrderFor(ctx context.Context, checkoutID string) (string, error)
	Resolve(ctx context.Context, orderID, checkoutID string, state status.State) error
	Pending(ctx context.Context) ([]string, error)
	Forget(ctx context.Context, checkoutID string) error
}

type InitiateRequest struct {
	OrderID          string          `json:"order_id"`
	Amount           decimal.Decimal `json:"amount"`
	Phone            string          `json:"phone"`
	AccountReference string          `json:"account_reference"`
	Description      string          `json:"description"`
}

// ReconcileReport summarizes one ReconcilePending run.
type ReconcileReport struct {
	Checked int `json:"checked"`
	Settled int `json:"settled"`
	Pending int `json:"pending"`
	Expired int `json:"expired"`
	Errors  int `json:"errors"`
}

type PendingPush struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	OrderID           string `json:"order_id,omitempty"`
}

type PaymentService struct {
	gateway           Gateway
	orders            OrderStore
	records           PaymentRecorder
	notifier          Notifier
	monitor           *monitoring.Monitor
	callbackTokenHash string
	logger            *zap.Logger
}

func NewPaymentService(gateway Gateway, orders OrderStore, records PaymentRecorder, notifier Notifier, monitor *monitoring.Monitor, callbackTokenHash string, logger *zap.Logger) *PaymentService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if monitor == nil {
		monitor = monitoring.NewMonitor(nil, PendingKey, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		gateway:           gateway,
		orders:            orders,
		records:           records,
		notifier:          notifier,
		monitor:           monitor,
		callbackTokenHash: callbackTokenHash,
		logger:            logger,
	}
}

// InitiatePush sends at most one push per order. Repeating the call for an
// order that already has a push returns that push, with its final outcome
// when known, without contacting the provider.
func (s *PaymentService) InitiatePush(ctx context.Context, req InitiateRequest) (*mpesa.PushResult, error) {
	defer s.monitor.TrackDuration("push", time.Now())

	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return nil, &mpesa.ValidationError{Field: "order_id", Reason: "must not be empty"}
	}

	existing, err := s.orders.Reserve(ctx, req.OrderID)
	if err != nil {
		s.monitor.TrackError("push", errorKind(err))
		return nil, err
	}
	if existing != "" {
		s.logger.Info("push already sent for order", zap.String("order_id", req.OrderID), zap.String("checkout_request_id", existing))
		return s.existingPush(ctx, req.OrderID, existing), nil
	}

	res, err := s.gateway.InitiatePush(ctx, req.OrderID, req.Amount, req.Phone, req.AccountReference, req.Description)
	if err != nil {
		s.monitor.TrackError("push", errorKind(err))
		// after a timeout the push may still reach the customer, so the
		// reservation is left to expire instead of being released
		var provErr *mpesa.ProviderError
		if !errors.As(err, &provErr) || !provErr.Timeout {
			s.release(ctx, req.OrderID)
		}
		return nil, err
	}
	s.monitor.TrackPush(string(res.State))

	if res.State == status.Queued {
		if err := s.orders.Complete(ctx, req.OrderID, res.CheckoutRequestID); err != nil {
			s.logger.Error("s.orders.Complete()", zap.String("order_id", req.OrderID), zap.Error(err))
		}
	} else {
		s.release(ctx, req.OrderID)
	}

	if err := s.records.RecordPush(ctx, res); err != nil {
		s.logger.Error("s.records.RecordPush()", zap.String("order_id", req.OrderID), zap.Error(err))
	}
	s.notify(ctx, req.OrderID, res.CheckoutRequestID, res.State, res.Message, "")

	return res, nil
}

// QueryPushStatus answers from the stored record once a terminal state is
// known and otherwise asks the provider.
func (s *PaymentService) QueryPushStatus(ctx context.Context, checkoutID string) (*mpesa.PollResult, error) {
	defer s.monitor.TrackDuration("poll", time.Now())

	checkoutID = strings.TrimSpace(checkoutID)
	if record, err := s.records.FindByCheckoutID(ctx, checkoutID); err == nil && record.State.Terminal() {
		return &mpesa.PollResult{
			CheckoutRequestID: checkoutID,
			State:             record.State,
			Message:           record.Message,
			ResultCode:        record.ResultCode,
			ResultDescription: record.ResultDescription,
		}, nil
	}

	res, err := s.gateway.QueryPushStatus(ctx, checkoutID)
	if err != nil {
		s.monitor.TrackError("poll", errorKind(err))
		return nil, err
	}
	s.monitor.TrackPoll(string(res.State))

	if res.State.Terminal() {
		s.settle(ctx, checkoutID, Outcome{
			State:             res.State,
			ResultCode:        res.ResultCode,
			ResultDescription: res.ResultDescription,
			Message:           res.Message,
		})
	}
	return res, nil
}

// HandleCallback authenticates and applies a provider callback. Without a
// configured token hash the outcome is taken from a provider poll instead.
func (s *PaymentService) HandleCallback(ctx context.Context, token string, body []byte) (*mpesa.CallbackResult, error) {
	if !s.validCallbackToken(token) {
		s.monitor.TrackError("callback", "unauthorized")
		return nil, status.ErrInvalidCallbackToken
	}

	res, err := mpesa.ParseCallback(body)
	if err != nil {
		s.monitor.TrackError("callback", "malformed")
		return nil, err
	}
	s.monitor.TrackCallback(string(res.State))

	if s.callbackTokenHash == "" {
		if err := s.confirmCallback(ctx, res); err != nil {
			s.monitor.TrackError("callback", errorKind(err))
			s.logger.Warn("callback not confirmed, left for reconciliation", zap.String("checkout_request_id", res.CheckoutRequestID), zap.Error(err))
			res.State = status.Processing
			return res, nil
		}
	}
	if !res.State.Terminal() {
		s.logger.Info("callback without final result", zap.String("checkout_request_id", res.CheckoutRequestID), zap.String("result_code", res.ResultCode))
		return res, nil
	}

	s.settle(ctx, res.CheckoutRequestID, Outcome{
		State:             res.State,
		ResultCode:        res.ResultCode,
		ResultDescription: res.ResultDescription,
		Message:           res.Message,
		ReceiptNumber:     res.ReceiptNumber,
	})
	return res, nil
}

// PendingPushes lists pushes still waiting for a result. OrderID is empty
// when the order mapping has already expired.
func (s *PaymentService) PendingPushes(ctx context.Context) ([]PendingPush, error) {
	ids, err := s.orders.Pending(ctx)
	if err != nil {
		return nil, err
	}

	pushes := make([]PendingPush, 0, len(ids))
	for _, checkoutID := range ids {
		orderID, err := s.orders.OrderFor(ctx, checkoutID)
		if err != nil && !errors.Is(err, status.ErrPaymentNotFound) {
			return nil, err
		}
		pushes = append(pushes, PendingPush{CheckoutRequestID: checkoutID, OrderID: orderID})
	}
	return pushes, nil
}

// ReconcilePending polls every push that has not reached a terminal state,
// covering callbacks that never arrived. Pushes whose order mapping outlived
// the reconciliation window are dropped.
func (s *PaymentService) ReconcilePending(ctx context.Context) (*ReconcileReport, error) {
	ids, err := s.orders.Pending(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	for _, checkoutID := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		if _, err := s.orders.OrderFor(ctx, checkoutID); errors.Is(err, status.ErrPaymentNotFound) {
			if err := s.orders.Forget(ctx, checkoutID); err != nil {
				s.logger.Error("s.orders.Forget()", zap.String("checkout_request_id", checkoutID), zap.Error(err))
			}
			report.Expired++
			continue
		}

		res, err := s.QueryPushStatus(ctx, checkoutID)
		if err != nil {
			s.logger.Warn("reconcile poll failed", zap.String("checkout_request_id", checkoutID), zap.Error(err))
			report.Errors++
			continue
		}
		if !res.State.Terminal() {
			report.Pending++
			continue
		}

		// answered from a stored record, the pending entry may still be there
		if err := s.orders.Forget(ctx, checkoutID); err != nil {
			s.logger.Error("s.orders.Forget()", zap.String("checkout_request_id", checkoutID), zap.Error(err))
		}
		report.Settled++
	}

	s.logger.Info("reconciled pending pushes",
		zap.Int("checked", report.Checked),
		zap.Int("settled", report.Settled),
		zap.Int("pending", report.Pending),
		zap.Int("expired", report.Expired),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// existingPush describes the push already sent for an order, using the stored
// outcome once it is final.
func (s *PaymentService) existingPush(ctx context.Context, orderID, checkoutID string) *mpesa.PushResult {
	res := &mpesa.PushResult{
		OrderID:           orderID,
		CheckoutRequestID: checkoutID,
		State:             status.Queued,
		Message:           "A payment request is already pending for this order",
	}

	record, err := s.records.FindByCheckoutID(ctx, checkoutID)
	if err != nil {
		if !errors.Is(err, status.ErrPaymentNotFound) {
			s.logger.Warn("s.records.FindByCheckoutID()", zap.String("checkout_request_id", checkoutID), zap.Error(err))
		}
		return res
	}
	if record.State.Terminal() {
		res.State = record.State
		res.Message = record.Message
		res.ResponseCode = record.ResultCode
		res.ResponseDescription = record.ResultDescription
		res.MerchantRequestID = record.MerchantRequestID
		res.Phone = record.Phone
		res.Amount = record.Amount
	}
	return res
}

// confirmCallback replaces the reported outcome with the provider's own
// answer. Used when callbacks cannot be authenticated.
func (s *PaymentService) confirmCallback(ctx context.Context, res *mpesa.CallbackResult) error {
	poll, err := s.gateway.QueryPushStatus(ctx, res.CheckoutRequestID)
	if err != nil {
		return err
	}
	if poll.State != res.State {
		s.logger.Warn("callback contradicted by provider",
			zap.String("checkout_request_id", res.CheckoutRequestID),
			zap.String("reported", string(res.State)),
			zap.String("confirmed", string(poll.State)),
		)
	}
	if poll.State != status.Succeeded {
		res.ReceiptNumber = ""
	}
	res.State = poll.State
	res.ResultCode = poll.ResultCode
	res.ResultDescription = poll.ResultDescription
	res.Message = poll.Message
	return nil
}

func (s *PaymentService) NormalizePhone(raw string) phone.Result {
	return s.gateway.NormalizePhone(raw)
}

func (s *PaymentService) validCallbackToken(token string) bool {
	if s.callbackTokenHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(s.callbackTokenHash), []byte(token)) == nil
}

// settle applies a terminal outcome everywhere it is tracked. Failures are
// only logged.
func (s *PaymentService) settle(ctx context.Context, checkoutID string, o Outcome) {
	orderID, err := s.orders.OrderFor(ctx, checkoutID)
	if err != nil && !errors.Is(err, status.ErrPaymentNotFound) {
		s.logger.Error("s.orders.OrderFor()", zap.String("checkout_request_id", checkoutID), zap.Error(err))
	}

	if err := s.orders.Resolve(ctx, orderID, checkoutID, o.State); err != nil {
		s.logger.Error("s.orders.Resolve()", zap.String("checkout_request_id", checkoutID), zap.Error(err))
	}
	if err := s.records.UpdateOutcome(ctx, checkoutID, o); err != nil {
		s.logger.Warn("s.records.UpdateOutcome()", zap.String("checkout_request_id", checkoutID), zap.Error(err))
	}
	if orderID != "" {
		s.notify(ctx, orderID, checkoutID, o.State, o.Message, o.ReceiptNumber)
	}

	s.logger.Info("payment settled",
		zap.String("order_id", orderID),
		zap.String("checkout_request_id", checkoutID),
		zap.String("state", string(o.State)),
		zap.String("result_code", o.ResultCode),
	)
}

func (s *PaymentService) release(ctx context.Context, orderID string) {
	if err := s.orders.Release(ctx, orderID); err != nil {
		s.logger.Error("s.orders.Release()", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *PaymentService) notify(ctx context.Context, orderID, checkoutID string, state status.State, message, receipt string) {
	payload := map[string]any{
		"order_id":            orderID,
		"checkout_request_id": checkoutID,
		"state":               string(state),
		"message":             message,
	}
	if receipt != "" {
		payload["receipt_number"] = receipt
	}
	if err := s.notifier.Notify(ctx, orderID, payload); err != nil {
		s.logger.Warn("s.notifier.Notify()", zap.String("order_id", orderID), zap.Error(err))
	}
}

func errorKind(err error) string {
	var (
		cfgErr  *mpesa.ConfigurationError
		valErr  *mpesa.ValidationError
		authErr *mpesa.AuthError
		provErr *mpesa.ProviderError
	)
	switch {
	case errors.As(err, &valErr):
		return "validation"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &provErr):
		if provErr.Timeout {
			return "timeout"
		}
		return "provider"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.Is(err, status.ErrOrderInProgress):
		return "in_progress"
	}
	return "internal"
}
