package payments

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/blockhaven/blockhaven/internal/platform/httpx"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// Handler wires the deposit endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	baseURL   string
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. baseURL is this application's
// public URL, used to build the provider return and cancel links.
func NewHandler(logger *slog.Logger, service *Service, baseURL string) *Handler {
	return &Handler{logger: logger, service: service, baseURL: baseURL, validator: validator.New()}
}

// MountRoutes registers deposit routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/wallet/deposit", h.handleStart)
	r.Get("/wallet/deposit/capture", h.handleCapture)
}

type depositForm struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var form depositForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	order, err := h.service.StartDeposit(r.Context(), accountID, form.Amount,
		h.baseURL+"/wallet/deposit/capture", h.baseURL+"/wallet")
	switch {
	case errors.Is(err, ErrUnavailable):
		httpx.RespondError(w, httpx.ErrUnavailable)
	case err != nil:
		h.logger.Error("deposit start failed", "account_id", accountID, "error", err)
		httpx.Problem(w, http.StatusBadRequest, "Deposit Failed", err.Error())
	default:
		httpx.JSON(w, http.StatusCreated, map[string]any{
			"orderId":     order.ID,
			"approvalUrl": order.ApprovalURL,
		})
	}
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	accountID, ok := shared.AccountIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	// The provider appends ?token=<orderID> on the return redirect.
	orderID := r.URL.Query().Get("token")
	if orderID == "" {
		orderID = r.URL.Query().Get("orderId")
	}
	if orderID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing order id")
		return
	}

	order, err := h.service.CompleteDeposit(r.Context(), accountID, orderID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case err != nil:
		h.logger.Error("deposit capture failed", "account_id", accountID, "order_id", orderID, "error", err)
		httpx.Problem(w, http.StatusBadGateway, "Capture Failed", err.Error())
	default:
		httpx.JSON(w, http.StatusOK, map[string]any{
			"orderId": order.OrderID,
			"status":  order.Status,
			"amount":  order.Amount,
		})
	}
}
