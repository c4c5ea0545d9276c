// Package cli hosts the operator subcommands of the blockhaven binary.
package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/blockhaven/blockhaven/internal/account"
	"github.com/blockhaven/blockhaven/internal/app"
	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/platform/db"
	"github.com/blockhaven/blockhaven/jobs"
)

// Run dispatches an operator subcommand and exits the process.
func Run(args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var err error
	switch args[0] {
	case "panel-account":
		err = runPanelAccount(ctx, args[1:])
	case "sweep":
		err = runSweep(ctx)
	case "queue-stats":
		err = runQueueStats()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: blockhaven <command>

commands:
  panel-account -email <email> [-username <name>]   ensure a local + panel account
  sweep                                             enqueue an expiry sweep now
  queue-stats                                       show background queue depth`)
}

func runPanelAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("panel-account", flag.ExitOnError)
	email := fs.String("email", "", "account email (required)")
	username := fs.String("username", "", "account username (defaults to the email local part)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	secretBox, err := account.NewSecretBox(cfg.PanelSecretKey)
	if err != nil {
		return err
	}
	panelClient := panel.NewClient(cfg.PanelURL, cfg.PanelAPIKey)
	accountService := account.NewService(account.NewRepository(pool), panelClient, secretBox, cfg.PanelURL, logger)
	ledgerService := ledger.NewService(ledger.NewRepository(pool))

	cli := NewPanelAccountCLI(accountService, ledgerService, cfg.DefaultCurrency)
	result, err := cli.Create(ctx, *email, *username)
	if err != nil {
		return err
	}
	verb := "reused"
	if result.Created {
		verb = "created"
	}
	fmt.Printf("account %d %s, panel user %d\n", result.AccountID, verb, result.RemoteUserID)
	return nil
}

func runSweep(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Default().Warn("jobs client close", slog.Any("error", err))
		}
	}()

	info, err := client.EnqueueExpirySweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("expiry sweep enqueued, task id %s\n", info.ID)
	return nil
}

func runQueueStats() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		_ = inspector.Close()
	}()

	info, err := inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return err
	}
	fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry)
	return nil
}
