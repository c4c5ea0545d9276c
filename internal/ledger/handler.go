package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/blockhaven/blockhaven/internal/platform/httpx"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// Handler wires the wallet read endpoints. Deposits go through the
// payments package; nothing here mutates a balance.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers wallet routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/wallet", h.handleBalance)
	r.Get("/wallet/transactions", h.handleTransactions)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	wallet, err := h.service.Balance(r.Context(), accountID)
	if err != nil {
		h.logger.Error("wallet lookup failed", "account_id", accountID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"balance":   wallet.Balance,
		"currency":  wallet.Currency,
		"formatted": FormatAmount(wallet.Balance, wallet.Currency),
	})
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}
	transactions, err := h.service.History(r.Context(), accountID, limit)
	if err != nil {
		h.logger.Error("transaction history failed", "account_id", accountID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}
