package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/blockhaven/blockhaven/internal/platform/httpx"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// Handler wires HTTP endpoints for invoices.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.handleList)
	r.Post("/invoices/{id}/pay", h.handlePay)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	invoices, err := h.service.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.logger.Error("list invoices failed", "account_id", accountID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}

	inv, err := h.service.Pay(r.Context(), accountID, invoiceID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, shared.ErrInsufficientBalance):
		httpx.Problem(w, http.StatusPaymentRequired, "Insufficient Balance", err.Error())
	case err != nil:
		httpx.Problem(w, http.StatusBadRequest, "Payment Failed", err.Error())
	default:
		httpx.JSON(w, http.StatusOK, inv)
	}
}
