package servers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/blockhaven/blockhaven/internal/platform/httpx"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// Handler wires HTTP endpoints for server lifecycle management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers server routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/servers", h.handleList)
	r.Get("/servers/{id}", h.handleGet)
	r.Post("/servers/{id}/renew", h.handleRenew)
	r.Post("/servers/{id}/auto-renew", h.handleAutoRenew)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	records, err := h.service.List(r.Context(), accountID)
	if err != nil {
		h.logger.Error("list servers failed", "account_id", accountID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"servers": records})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	serverID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid server id")
		return
	}
	rec, err := h.service.Get(r.Context(), accountID, serverID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

type renewForm struct {
	Months int `json:"months" validate:"required,min=1,max=24"`
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	serverID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid server id")
		return
	}
	var form renewForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rec, err := h.service.Renew(r.Context(), accountID, serverID, form.Months)
	switch {
	case errors.Is(err, ErrUnsuspendFailed):
		// The renewal itself went through; report the stuck suspension.
		httpx.JSON(w, http.StatusOK, map[string]any{"server": rec, "warning": err.Error()})
	case errors.Is(err, shared.ErrInsufficientBalance):
		httpx.Problem(w, http.StatusPaymentRequired, "Insufficient Balance", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case err != nil:
		h.logger.Error("renewal failed", "account_id", accountID, "server_id", serverID, "error", err)
		httpx.Problem(w, http.StatusBadRequest, "Renewal Failed", err.Error())
	default:
		httpx.JSON(w, http.StatusOK, map[string]any{"server": rec})
	}
}

type autoRenewForm struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) handleAutoRenew(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	serverID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid server id")
		return
	}
	var form autoRenewForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.service.SetAutoRenew(r.Context(), accountID, serverID, form.Enabled); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"autoRenew": form.Enabled})
}
