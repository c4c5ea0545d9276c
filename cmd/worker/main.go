package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/blockhaven/blockhaven/internal/app"
	"github.com/blockhaven/blockhaven/internal/billing"
	"github.com/blockhaven/blockhaven/internal/jobmetrics"
	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/platform/db"
	"github.com/blockhaven/blockhaven/internal/servers"
	"github.com/blockhaven/blockhaven/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	panelClient := panel.NewClient(cfg.PanelURL, cfg.PanelAPIKey)
	if !panelClient.Configured() {
		logger.Warn("panel integration disabled, expiry sweep will idle")
	}

	metrics := jobmetrics.NewMetrics(nil)

	ledgerService := ledger.NewService(ledger.NewRepository(pool))
	billingService := billing.NewService(logger, billing.NewRepository(pool), ledgerService, cfg.DefaultCurrency)
	serverService := servers.NewService(logger, servers.NewRepository(pool), panelClient, servers.NewRenewalStore(pool), billingService)
	billingService.WithServers(serverService)

	expirySweep := jobs.NewExpirySweepJob(serverService, billingService, logger, metrics)
	overdueSweep := jobs.NewOverdueSweepJob(billingService, logger, metrics)
	reconcile := jobs.NewLedgerReconcileJob(ledgerService, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskServersExpirySweep, Handler: expirySweep.Handle},
			{Type: jobs.TaskBillingOverdueSweep, Handler: overdueSweep.Handle},
			{Type: jobs.TaskLedgerReconcile, Handler: reconcile.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: asynq.NewTask(jobs.TaskServersExpirySweep, nil), Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "0 * * * *", Task: asynq.NewTask(jobs.TaskBillingOverdueSweep, nil), Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "45 3 * * *", Task: asynq.NewTask(jobs.TaskLedgerReconcile, nil), Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
