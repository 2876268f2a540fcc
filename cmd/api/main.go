package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/drinkrun-backend/api/routes"
	"github.com/angelmondragon/drinkrun-backend/internal/assignment"
	"github.com/angelmondragon/drinkrun-backend/internal/catalog"
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

const shutdownGrace = 15 * time.Second

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

	assignmentService, err := assignment.NewService(assignment.ServiceParams{
		Repo:   assignment.NewRepository(dbClient.DB()),
		Orders: ordersRepo,
		Client: dbClient,
		Lock:   locker,
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create assignment service", err)
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

	poller, err := payments.NewPoller(payments.PollerParams{
		Service:  paymentsService,
		Logger:   logg,
		Payments: cfg.Payments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment poller", err)
		os.Exit(1)
	}
	paymentsService.Bind(poller)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	poller.Start(ctx)
	defer poller.Stop()

	router := routes.NewRouter(routes.Deps{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Orders:     ordersService,
		Payments:   paymentsService,
		Assignment: assignmentService,
		Ledger:     ledgerService,
	})

	port := cfg.App.Port
	if fromEnv := os.Getenv("PORT"); fromEnv != "" {
		port = fromEnv
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"port": port,
	})
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "error shutting down api server", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
