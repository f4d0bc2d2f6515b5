package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gogift-backend/api/controllers"
	"github.com/angelmondragon/gogift-backend/api/routes"
	"github.com/angelmondragon/gogift-backend/internal/checkout"
	"github.com/angelmondragon/gogift-backend/internal/codepool"
	"github.com/angelmondragon/gogift-backend/internal/inventory"
	"github.com/angelmondragon/gogift-backend/internal/notifications"
	"github.com/angelmondragon/gogift-backend/internal/orders"
	"github.com/angelmondragon/gogift-backend/internal/payments/provider"
	"github.com/angelmondragon/gogift-backend/internal/redemption"
	"github.com/angelmondragon/gogift-backend/internal/webhooks"
	"github.com/angelmondragon/gogift-backend/pkg/config"
	"github.com/angelmondragon/gogift-backend/pkg/db"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/metrics"
	"github.com/angelmondragon/gogift-backend/pkg/migrate"
	"github.com/angelmondragon/gogift-backend/pkg/outbox"
	"github.com/angelmondragon/gogift-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway, err := provider.New(ctx, cfg, logg)
	if err != nil {
		return err
	}

	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	notifier, err := notifications.NewService(outboxSvc, logg)
	if err != nil {
		return err
	}
	ledger := inventory.NewLedger(cfg.Checkout.LowStockThreshold)
	ordersRepo := orders.NewRepository(dbClient.DB())

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:          ordersRepo,
		Tx:            dbClient,
		Outbox:        outboxSvc,
		Inventory:     ledger,
		Codes:         codepool.NewManager(codepool.Options{StrictFixedPool: cfg.CodePool.StrictFixedPool, GenerationAttempts: cfg.CodePool.GenerationAttempts}),
		Notifications: notifier,
		Metrics:       orderMetrics,
		Logger:        logg,
	})
	if err != nil {
		return err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:            dbClient,
		Repo:          checkout.NewRepository(dbClient.DB()),
		Orders:        ordersRepo,
		Inventory:     ledger,
		Gateway:       gateway,
		Outbox:        outboxSvc,
		Notifications: notifier,
		Metrics:       orderMetrics,
		Logger:        logg,
		Options: checkout.Options{
			FeeRate:        cfg.Checkout.FeeRate(),
			Currency:       cfg.Checkout.Currency,
			PaymentExpiry:  cfg.Checkout.PaymentExpiry,
			GatewayTimeout: cfg.Gateway.RequestTimeout,
			OpsEmail:       cfg.Checkout.OpsEmail,
		},
	})
	if err != nil {
		return err
	}

	redemptionSvc, err := redemption.NewService(redemption.ServiceParams{
		Repo:          redemption.NewRepository(dbClient.DB()),
		Tx:            dbClient,
		Outbox:        outboxSvc,
		Notifications: notifier,
		Logger:        logg,
	})
	if err != nil {
		return err
	}

	webhookSvc, err := webhooks.NewService(webhooks.ServiceParams{Gateway: gateway, Orders: ordersSvc, Logger: logg})
	if err != nil {
		return err
	}
	guard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Checkout:     checkoutSvc,
		Orders:       ordersSvc,
		Redemption:   redemptionSvc,
		Gateway:      gateway,
		Webhooks:     webhookSvc,
		WebhookGuard: guard,
		Redis:        redisClient,
		Ready: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"provider": cfg.Gateway.Provider,
	})
	logg.Info(logCtx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
