package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/drinkrun-backend/internal/catalog"
	"github.com/angelmondragon/drinkrun-backend/internal/cron"
	"github.com/angelmondragon/drinkrun-backend/internal/ledger"
	"github.com/angelmondragon/drinkrun-backend/internal/orderlock"
	"github.com/angelmondragon/drinkrun-backend/internal/orders"
	"github.com/angelmondragon/drinkrun-backend/internal/payments"
	"github.com/angelmondragon/drinkrun-backend/internal/settings"
	"github.com/angelmondragon/drinkrun-backend/internal/wallets"
	"github.com/angelmondragon/drinkrun-backend/pkg/config"
	"github.com/angelmondragon/drinkrun-backend/pkg/db"
	"github.com/angelmondragon/drinkrun-backend/pkg/gateway"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/metrics"
	"github.com/angelmondragon/drinkrun-backend/pkg/migrate"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox"
	"github.com/angelmondragon/drinkrun-backend/pkg/redis"
)

const cronLockName = "worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis client", err)
		}
	}()

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	gatewayClient, err := gateway.NewClient(cfg.Payments.GatewayAPIKey,
		gateway.WithBaseURL(cfg.Payments.GatewayBaseURL),
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Payments.GatewayTimeout}),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway client", err)
		os.Exit(1)
	}

	locker, err := orderlock.New(orderlock.Params{Store: redisClient})
	if err != nil {
		logg.Error(context.Background(), "failed to create order locker", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	settingsService, err := settings.NewService(settings.NewRepository(dbClient.DB()), cfg.Fees)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	walletsRepo := wallets.NewRepository(dbClient.DB())

	walletsService, err := wallets.NewService(wallets.ServiceParams{
		Repo:    walletsRepo,
		Logger:  logg,
		Metrics: paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallets service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledger.NewRepository(dbClient.DB()),
		Wallets:  walletsRepo,
		Settings: settingsService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:    ordersRepo,
		Client:  dbClient,
		Lock:    locker,
		Catalog: catalogService,
		Ledger:  ledgerService,
		Outbox:  outboxService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:      payments.NewRepository(dbClient.DB()),
		Orders:    ordersService,
		OrderRepo: ordersRepo,
		Ledger:    ledgerService,
		Wallets:   walletsRepo,
		Gateway:   gatewayClient,
		Client:    dbClient,
		Lock:      locker,
		Outbox:    outboxService,
		Logger:    logg,
		Metrics:   paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	paymentTimeoutJob, err := cron.NewPaymentTimeoutJob(cron.PaymentTimeoutJobParams{
		Logger:     logg,
		Payments:   paymentsService,
		PollBudget: cfg.Payments.PollTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment timeout job", err)
		os.Exit(1)
	}

	walletReconcileJob, err := cron.NewWalletReconcileJob(cron.WalletReconcileJobParams{
		Logger:  logg,
		Wallets: walletsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet reconcile job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey(cronLockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(paymentTimeoutJob, walletReconcileJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
