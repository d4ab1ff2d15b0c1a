package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	pushRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_push_requests_total",
			Help: "STK push attempts by outcome",
		},
		[]string{"state"},
	)

	pollRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_poll_requests_total",
			Help: "STK status queries by outcome",
		},
		[]string{"state"},
	)

	callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_callbacks_total",
			Help: "Provider callbacks received by outcome",
		},
		[]string{"state"},
	)

	gatewayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_gateway_errors_total",
			Help: "Gateway errors by operation and kind",
		},
		[]string{"operation", "kind"},
	)

	pendingPushes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpesa_pending_pushes",
			Help: "Orders with a queued push awaiting a terminal result",
		},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpesa_gateway_duration_seconds",
			Help:    "Duration of gateway operations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)
)

type Monitor struct {
	redis      *redis.Client
	pendingKey string
	logger     *zap.Logger
}

// NewMonitor accepts a nil client, in which case Start is a no-op.
func NewMonitor(redisClient *redis.Client, pendingKey string, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{redis: redisClient, pendingKey: pendingKey, logger: logger}
}

// Start collects Redis backed gauges every 30s until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.redis == nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectPending(ctx)
		}
	}
}

func (m *Monitor) collectPending(ctx context.Context) {
	n, err := m.redis.SCard(ctx, m.pendingKey).Result()
	if err != nil {
		m.logger.Warn("collect pending pushes", zap.Error(err))
		return
	}
	pendingPushes.Set(float64(n))
}

func (m *Monitor) TrackPush(state string) {
	pushRequests.WithLabelValues(state).Inc()
}

func (m *Monitor) TrackPoll(state string) {
	pollRequests.WithLabelValues(state).Inc()
}

func (m *Monitor) TrackCallback(state string) {
	callbacks.WithLabelValues(state).Inc()
}

func (m *Monitor) TrackError(operation, kind string) {
	gatewayErrors.WithLabelValues(operation, kind).Inc()
}

// TrackDuration observes the time elapsed since started.
func (m *Monitor) TrackDuration(operation string, started time.Time) {
	gatewayDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
