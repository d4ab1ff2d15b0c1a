package mpesa

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"mpesa-gateway/internal/phone"
	"mpesa-gateway/internal/status"
	"mpesa-gateway/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimulatedPrefix marks checkout ids issued by the Sandbox.
const SimulatedPrefix = "SIM_"

var simulatedDeclines = []string{
	ResultCancelledByUser,
	ResultInsufficientFunds,
	ResultUserUnreachable,
	ResultInvalidInitiator,
}

func IsSimulated(checkoutID string) bool {
	return strings.HasPrefix(checkoutID, SimulatedPrefix)
}

// Sandbox stands in for the provider when no credentials are available. It
// applies the same input checks as Client but never leaves the process.
type Sandbox struct {
	maxAmount   decimal.Decimal
	successRate float64
	logger      *zap.Logger
}

func NewSandbox(opts Options) *Sandbox {
	opts = opts.withDefaults()
	return &Sandbox{
		maxAmount:   opts.MaxAmount,
		successRate: opts.SuccessRate,
		logger:      opts.Logger.With(zap.String("provider", "mpesa-sandbox")),
	}
}

func (s *Sandbox) Initiate(ctx context.Context, req PaymentRequest) (*PushResult, error) {
	p, err := req.prepare(s.maxAmount)
	if err != nil {
		return nil, err
	}

	merchantID, err := utils.GenerateCode(8)
	if err != nil {
		return nil, fmt.Errorf("Sandbox.Initiate: utils.GenerateCode: %w", err)
	}

	result := &PushResult{
		OrderID:             p.orderID,
		CheckoutRequestID:   SimulatedPrefix + strings.ReplaceAll(uuid.NewString(), "-", ""),
		MerchantRequestID:   merchantID,
		State:               status.Queued,
		Message:             "Simulated request accepted",
		ResponseCode:        ResultSuccess,
		ResponseDescription: Describe(ResultSuccess),
		Phone:               p.msisdn,
		Network:             phone.DetectNetwork(p.msisdn),
		Amount:              p.amount,
	}

	s.logger.Info("simulated stk push",
		zap.String("order_id", p.orderID),
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.String("amount", p.amount.String()),
	)
	return result, nil
}

// Poll resolves a simulated checkout id to a terminal state. The outcome is
// derived from the id, so the same id always yields the same result.
func (s *Sandbox) Poll(ctx context.Context, checkoutID string) (*PollResult, error) {
	if !IsSimulated(checkoutID) {
		return nil, &ValidationError{Field: "checkout_request_id", Reason: "not issued by the sandbox"}
	}

	h := fnv.New64a()
	h.Write([]byte(checkoutID))
	rng := rand.New(rand.NewPCG(h.Sum64(), 0))

	rc := ResultSuccess
	if rng.Float64() >= s.successRate {
		rc = simulatedDeclines[rng.IntN(len(simulatedDeclines))]
	}

	return &PollResult{
		CheckoutRequestID: checkoutID,
		State:             resultState(rc),
		ResultCode:        rc,
		ResultDescription: Describe(rc),
		Message:           Describe(rc),
	}, nil
}
