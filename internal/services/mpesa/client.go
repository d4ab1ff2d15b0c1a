package mpesa

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultHTTPTimeout = 15 * time.Second
	DefaultSuccessRate = 0.8
	redacted           = "[REDACTED]"
)

var DefaultMaxAmount = decimal.NewFromInt(250000)

// Options tunes a Client or Sandbox. Zero values fall back to defaults.
type Options struct {
	Timeout   time.Duration
	MaxAmount decimal.Decimal
	Clock     func() time.Time
	Logger    *zap.Logger

	// SuccessRate is the share of simulated pushes that succeed. Zero makes
	// every simulated push decline.
	SuccessRate float64
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultHTTPTimeout
	}
	if !o.MaxAmount.IsPositive() {
		o.MaxAmount = DefaultMaxAmount
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.SuccessRate < 0 || o.SuccessRate > 1 {
		o.SuccessRate = DefaultSuccessRate
	}
	return o
}

// Client talks to the Daraja API. It holds no mutable state besides the
// circuit breaker, so it is safe for concurrent use.
type Client struct {
	creds     Credentials
	signer    *Signer
	rc        *resty.Client
	cb        *gobreaker.CircuitBreaker
	maxAmount decimal.Decimal
	logger    *zap.Logger
}

// NewClient fails with *ConfigurationError when creds are incomplete.
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if err := creds.Check(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	logger := opts.Logger.With(zap.String("provider", "mpesa"), zap.String("environment", creds.Environment))

	rc := resty.New().
		SetBaseURL(creds.baseURL()).
		SetTimeout(opts.Timeout).
		SetLogger(logger.Sugar())

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mpesa",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Client{
		creds:     creds,
		signer:    NewSigner(opts.Clock),
		rc:        rc,
		cb:        cb,
		maxAmount: opts.MaxAmount,
		logger:    logger,
	}, nil
}

// send runs exactly one HTTP exchange through the breaker. Only transport
// failures count against the breaker; any HTTP status is returned as is.
func (c *Client) send(ctx context.Context, op string, build func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	started := time.Now()
	out, err := c.cb.Execute(func() (interface{}, error) {
		return build(c.rc.R().SetContext(ctx))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ProviderError{Op: op, Err: err}
		}
		c.logger.Error("request failed", zap.String("op", op), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return nil, transportError(op, err)
	}

	resp := out.(*resty.Response)
	c.logger.Debug("request done", zap.String("op", op), zap.Int("status", resp.StatusCode()), zap.Duration("elapsed", time.Since(started)))
	return resp, nil
}

// code decodes a JSON string or number as its textual form.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	*c = code(strings.TrimSpace(s))
	return nil
}

func (c code) String() string { return string(c) }

func maskToken(token string) string {
	if len(token) <= 4 {
		return redacted
	}
	return redacted + token[len(token)-4:]
}
