package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/blockhaven/blockhaven/cmd/blockhaven/cli"
	"github.com/blockhaven/blockhaven/internal/account"
	"github.com/blockhaven/blockhaven/internal/app"
	"github.com/blockhaven/blockhaven/internal/auth"
	"github.com/blockhaven/blockhaven/internal/billing"
	"github.com/blockhaven/blockhaven/internal/dashboard"
	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/observability"
	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/payments"
	"github.com/blockhaven/blockhaven/internal/platform/cache"
	"github.com/blockhaven/blockhaven/internal/platform/db"
	"github.com/blockhaven/blockhaven/internal/provision"
	"github.com/blockhaven/blockhaven/internal/servers"
	"github.com/blockhaven/blockhaven/internal/shared"
	"github.com/blockhaven/blockhaven/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if len(os.Args) > 1 {
		cli.Run(os.Args[1:])
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "blockhaven_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	panelClient := panel.NewClient(cfg.PanelURL, cfg.PanelAPIKey)
	if !panelClient.Configured() {
		logger.Warn("panel integration disabled, provisioning endpoints will report unavailable")
	}

	secretBox, err := account.NewSecretBox(cfg.PanelSecretKey)
	if err != nil {
		logger.Error("panel secret key", slog.Any("error", err))
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo)

	accountRepo := account.NewRepository(dbpool)
	accountService := account.NewService(accountRepo, panelClient, secretBox, cfg.PanelURL, logger)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(accountService, ledgerService, authRepo, cfg.DefaultCurrency)
	providers := auth.NewProviderRegistry(cfg.AppBaseURL, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.DiscordClientID, cfg.DiscordClientSecret)
	authHandler := auth.NewHandler(logger, authService, sessionManager, providers)

	billingRepo := billing.NewRepository(dbpool)
	billingService := billing.NewService(logger, billingRepo, ledgerService, cfg.DefaultCurrency)

	serverRepo := servers.NewRepository(dbpool)
	serverService := servers.NewService(logger, serverRepo, panelClient, servers.NewRenewalStore(dbpool), billingService)
	billingService.WithServers(serverService)

	allocator := provision.NewAllocator(logger, panelClient)
	provisionStore := provision.NewPGStore(dbpool)
	provisionService := provision.NewService(logger, provision.DefaultCatalog(), accountService, panelClient,
		allocator, ledgerService, provisionStore, serverRepo, idempotencyStore, auditLogger)

	paypalClient := payments.NewClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret)
	paymentsRepo := payments.NewRepository(dbpool)
	paymentsService := payments.NewService(logger, paypalClient, ledgerService, paymentsRepo, cfg.DefaultCurrency)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		AccountHandler:   account.NewHandler(logger, accountService),
		WalletHandler:    ledger.NewHandler(logger, ledgerService),
		PaymentsHandler:  payments.NewHandler(logger, paymentsService, cfg.AppBaseURL),
		ProvisionHandler: provision.NewHandler(logger, provisionService),
		ServersHandler:   servers.NewHandler(logger, serverService),
		BillingHandler:   billing.NewHandler(logger, billingService),
		DashboardHandler: dashboard.NewHandler(logger, ledgerService, serverService, billingService),
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
