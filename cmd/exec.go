package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpesa-gateway/config"
	"mpesa-gateway/internal/handlers"
	"mpesa-gateway/internal/services"
	"mpesa-gateway/internal/services/mpesa"
	"mpesa-gateway/monitoring"
	"mpesa-gateway/security"
	"mpesa-gateway/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Initialize the M-Pesa gateway, failing fast on incomplete credentials
	gateway, err := mpesa.NewGateway(cfg.Mpesa, logger.Named("mpesa"))
	if err != nil {
		return err
	}
	if gateway.Simulated() {
		logger.Warn("MPESA_SIMULATE is on, no money will move")
	}
	if err := mpesa.CheckCallbackAuth(cfg.Mpesa); err != nil {
		return err
	}
	if cfg.Mpesa.CallbackTokenHash == "" {
		logger.Warn("MPESA_CALLBACK_TOKEN_HASH is empty, successful callbacks are confirmed by polling")
	}

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		notifier = services.NewPubNubNotifier(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUserID)
	}

	// Initialize services
	monitor := monitoring.NewMonitor(redisClient, services.PendingKey, logger)
	orderGuard := services.NewOrderGuard(redisClient, cfg.OrderLockTTL, cfg.ReconciliationTTL)
	paymentService := services.NewPaymentService(
		gateway,
		orderGuard,
		services.NewPocketBaseRecorder(app),
		notifier,
		monitor,
		cfg.Mpesa.CallbackTokenHash,
		logger,
	)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	adminHandler := handlers.NewAdminHandler(paymentService, logger)
	rateLimiter := security.NewRateLimiter(redisClient, cfg.PushRateLimit, logger)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Start background tasks
	go monitor.Start(ctx)
	if cfg.EnableMetrics {
		go serveMetrics(ctx, cfg.MetricsPort, logger)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel, logger)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		mpesaRoutes := e.Router.Group("/api/v1/mpesa")

		// Customer facing endpoints
		push := mpesaRoutes.POST("/stkpush", paymentHandler.InitiatePush)
		push.BindFunc(rateLimiter.AntiBot)
		push.BindFunc(rateLimiter.PushRateLimit)
		status := mpesaRoutes.GET("/stkpush/{checkoutId}", paymentHandler.GetPushStatus)
		normalize := mpesaRoutes.POST("/phone/normalize", paymentHandler.NormalizePhone)
		if cfg.RequireAuth {
			push.Bind(apis.RequireAuth())
			status.Bind(apis.RequireAuth())
			normalize.Bind(apis.RequireAuth())
		}

		// Provider callback, authenticated by the token in CallBackURL
		mpesaRoutes.POST("/callback", paymentHandler.Callback)

		// Admin endpoints
		admin := mpesaRoutes.Group("/admin")
		admin.Bind(apis.RequireSuperuserAuth())
		admin.GET("/pending", adminHandler.GetPendingPushes)
		admin.POST("/reconcile", adminHandler.ReconcilePending)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]any{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]any{
				"status":    "healthy",
				"simulated": gateway.Simulated(),
			})
		})

		logger.Info("Server routes registered")

		// callbacks missed while the server was down
		go reconcileOnStart(ctx, paymentService, logger)

		return e.Next()
	})

	if len(os.Args) == 1 {
		app.RootCmd.SetArgs([]string{"serve", "--http=0.0.0.0:" + cfg.Port})
	}

	// Start server
	return app.Start()
}

func reconcileOnStart(ctx context.Context, paymentService *services.PaymentService, logger *zap.Logger) {
	if _, err := paymentService.ReconcilePending(ctx); err != nil {
		logger.Error("paymentService.ReconcilePending()", zap.Error(err))
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serveMetrics(ctx context.Context, port string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")
	cancel()
}
