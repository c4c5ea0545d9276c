package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/blockhaven/blockhaven/internal/account"
	"github.com/blockhaven/blockhaven/internal/auth"
	"github.com/blockhaven/blockhaven/internal/billing"
	"github.com/blockhaven/blockhaven/internal/dashboard"
	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/observability"
	"github.com/blockhaven/blockhaven/internal/payments"
	"github.com/blockhaven/blockhaven/internal/provision"
	"github.com/blockhaven/blockhaven/internal/servers"
	"github.com/blockhaven/blockhaven/internal/shared"
	"github.com/blockhaven/blockhaven/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler      *auth.Handler
	AccountHandler   *account.Handler
	WalletHandler    *ledger.Handler
	PaymentsHandler  *payments.Handler
	ProvisionHandler *provision.Handler
	ServersHandler   *servers.Handler
	BillingHandler   *billing.Handler
	DashboardHandler *dashboard.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.DashboardHandler != nil {
		params.DashboardHandler.MountRoutes(r)
	}
	if params.WalletHandler != nil {
		params.WalletHandler.MountRoutes(r)
	}
	if params.PaymentsHandler != nil {
		params.PaymentsHandler.MountRoutes(r)
	}
	if params.AccountHandler != nil {
		params.AccountHandler.MountRoutes(r)
	}
	if params.ProvisionHandler != nil {
		params.ProvisionHandler.MountRoutes(r)
	}
	if params.ServersHandler != nil {
		params.ServersHandler.MountRoutes(r)
	}
	if params.BillingHandler != nil {
		params.BillingHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
