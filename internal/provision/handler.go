package provision

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/platform/httpx"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// Handler wires HTTP endpoints for the store front.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers provisioning routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/plans", h.handlePlans)
	r.Post("/servers", h.handleProvision)
}

func (h *Handler) handlePlans(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"plans": h.service.Plans()})
}

type provisionForm struct {
	Name      string `json:"name" validate:"required,min=1,max=48"`
	Plan      string `json:"plan" validate:"required"`
	AutoRenew bool   `json:"autoRenew"`
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var form provisionForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rec, err := h.service.Provision(r.Context(), Request{
		AccountID:      accountID,
		Name:           form.Name,
		PlanSlug:       form.Plan,
		AutoRenew:      form.AutoRenew,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	switch {
	case errors.Is(err, shared.ErrInsufficientBalance):
		httpx.Problem(w, http.StatusPaymentRequired, "Insufficient Balance", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this order was already submitted")
	case errors.Is(err, panel.ErrUnavailable):
		httpx.RespondError(w, httpx.ErrUnavailable)
	case err != nil:
		h.logger.Error("provisioning failed", "account_id", accountID, "plan", form.Plan, "error", err)
		httpx.Problem(w, http.StatusBadRequest, "Provisioning Failed", err.Error())
	default:
		httpx.JSON(w, http.StatusCreated, rec)
	}
}
