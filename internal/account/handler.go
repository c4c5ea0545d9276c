package account

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/platform/httpx"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// Handler wires the panel account endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers panel account routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/panel/account", h.handleGetLink)
	r.Post("/panel/account", h.handleEnsure)
	r.Post("/panel/account/reveal", h.handleReveal)
}

func linkPayload(link *PanelLink) map[string]any {
	return map[string]any{
		"remoteUserId": link.RemoteUserID,
		"username":     link.RemoteUsername,
		"email":        link.RemoteEmail,
		"panelUrl":     link.PanelURL,
	}
}

func (h *Handler) handleGetLink(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	link, err := h.service.PanelLink(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, linkPayload(link))
}

func (h *Handler) handleEnsure(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	acct, err := h.service.Get(r.Context(), accountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	link, err := h.service.EnsurePanelAccount(r.Context(), acct)
	if err != nil {
		if errors.Is(err, panel.ErrUnavailable) {
			httpx.RespondError(w, httpx.ErrUnavailable)
			return
		}
		h.logger.Error("ensure panel account failed", "account_id", accountID, "error", err)
		httpx.Problem(w, http.StatusBadGateway, "Panel Error", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, linkPayload(link))
}

func (h *Handler) handleReveal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	password, err := h.service.RevealPanelPassword(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		if errors.Is(err, ErrNoSecretKey) {
			httpx.RespondError(w, httpx.ErrUnavailable)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"password": password})
}
