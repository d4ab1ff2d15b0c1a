package mpesa

import (
	"context"

	"mpesa-gateway/config"
	"mpesa-gateway/internal/phone"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PushInitiator interface {
	Initiate(ctx context.Context, req PaymentRequest) (*PushResult, error)
}

type StatusPoller interface {
	Poll(ctx context.Context, checkoutID string) (*PollResult, error)
}

// Gateway is the caller facing entry point. Simulated checkout ids are only
// honoured when the gateway itself runs on the sandbox.
type Gateway struct {
	initiator PushInitiator
	poller    StatusPoller
	simulated bool
	logger    *zap.Logger
}

// NewGateway picks the live client or the sandbox from configuration. In
// live mode incomplete credentials fail with *ConfigurationError.
func NewGateway(cfg config.MpesaConfig, logger *zap.Logger) (*Gateway, error) {
	opts := Options{
		Timeout:     cfg.HTTPTimeout,
		MaxAmount:   decimal.NewFromInt(cfg.MaxAmount),
		Logger:      logger,
		SuccessRate: cfg.SimulateSuccessRate,
	}
	if cfg.Simulate {
		sandbox := NewSandbox(opts)
		return newGateway(sandbox, sandbox, true, logger), nil
	}

	client, err := NewClient(LoadCredentials(cfg), opts)
	if err != nil {
		return nil, err
	}
	return newGateway(client, client, false, logger), nil
}

func newGateway(initiator PushInitiator, poller StatusPoller, simulated bool, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		initiator: initiator,
		poller:    poller,
		simulated: simulated,
		logger:    logger,
	}
}

func (g *Gateway) Simulated() bool { return g.simulated }

func (g *Gateway) InitiatePush(ctx context.Context, orderID string, amount decimal.Decimal, phoneNumber, accountReference, description string) (*PushResult, error) {
	return g.initiator.Initiate(ctx, PaymentRequest{
		OrderID:          orderID,
		Amount:           amount,
		Phone:            phoneNumber,
		AccountReference: accountReference,
		Description:      description,
	})
}

func (g *Gateway) QueryPushStatus(ctx context.Context, checkoutID string) (*PollResult, error) {
	if IsSimulated(checkoutID) && !g.simulated {
		g.logger.Warn("simulated checkout id queried on live gateway", zap.String("checkout_request_id", checkoutID))
		return nil, &ValidationError{Field: "checkout_request_id", Reason: "simulated ids are not accepted by the live provider"}
	}
	return g.poller.Poll(ctx, checkoutID)
}

func (g *Gateway) NormalizePhone(raw string) phone.Result {
	return phone.Normalize(raw)
}
