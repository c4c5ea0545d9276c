// Package dashboard aggregates the signed-in customer's overview in one
// round trip: wallet, servers, invoices and recent transactions are fetched
// concurrently.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/blockhaven/blockhaven/internal/billing"
	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/platform/httpx"
	"github.com/blockhaven/blockhaven/internal/servers"
	"github.com/blockhaven/blockhaven/internal/shared"
)

const recentTransactions = 10

// WalletPort reads the wallet balance.
type WalletPort interface {
	Balance(ctx context.Context, accountID int64) (*ledger.Wallet, error)
	History(ctx context.Context, accountID int64, limit int) ([]ledger.Transaction, error)
}

// ServerPort lists the account's servers.
type ServerPort interface {
	List(ctx context.Context, accountID int64) ([]servers.ServerRecord, error)
}

// InvoicePort lists the account's invoices.
type InvoicePort interface {
	ListByAccount(ctx context.Context, accountID int64) ([]billing.Invoice, error)
}

// Handler serves the aggregated dashboard endpoint.
type Handler struct {
	logger   *slog.Logger
	wallet   WalletPort
	servers  ServerPort
	invoices InvoicePort
	now      func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, wallet WalletPort, serverList ServerPort, invoices InvoicePort) *Handler {
	return &Handler{logger: logger, wallet: wallet, servers: serverList, invoices: invoices, now: time.Now}
}

// MountRoutes registers the dashboard route on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.handleDashboard)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var (
		wallet       *ledger.Wallet
		transactions []ledger.Transaction
		serverList   []servers.ServerRecord
		invoices     []billing.Invoice
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		wallet, err = h.wallet.Balance(ctx, accountID)
		return err
	})
	g.Go(func() error {
		var err error
		transactions, err = h.wallet.History(ctx, accountID, recentTransactions)
		return err
	})
	g.Go(func() error {
		var err error
		serverList, err = h.servers.List(ctx, accountID)
		return err
	})
	g.Go(func() error {
		var err error
		invoices, err = h.invoices.ListByAccount(ctx, accountID)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("dashboard aggregation failed", "account_id", accountID, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	now := h.now()
	expiringSoon := 0
	for i := range serverList {
		if serverList[i].ExpiringSoon(now) {
			expiringSoon++
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"wallet": map[string]any{
			"balance":   wallet.Balance,
			"currency":  wallet.Currency,
			"formatted": ledger.FormatAmount(wallet.Balance, wallet.Currency),
		},
		"servers":      serverList,
		"expiringSoon": expiringSoon,
		"invoices":     invoices,
		"transactions": transactions,
	})
}
