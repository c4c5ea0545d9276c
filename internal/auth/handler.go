package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/blockhaven/blockhaven/internal/platform/httpx"
	"github.com/blockhaven/blockhaven/internal/shared"
)

const oauthStateKey = "oauth_state"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	providers      ProviderRegistry
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, providers ProviderRegistry) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		providers:      providers,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/oauth/{provider}", h.handleOAuthStart)
	r.Get("/oauth/{provider}/callback", h.handleOAuthCallback)
}

type registerForm struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var form registerForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	acct, err := h.service.Register(r.Context(), form.Email, form.Username, form.Password)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Registration Failed", err.Error())
		return
	}
	h.establishSession(w, r, acct.ID)
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":       acct.ID,
		"email":    acct.Email,
		"username": acct.Username,
	})
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	acct, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}
	h.establishSession(w, r, acct.ID)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":       acct.ID,
		"email":    acct.Email,
		"username": acct.Username,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	state := shared.NewStateToken()
	sess.Set(oauthStateKey, state)
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.Get(oauthStateKey) == "" || sess.Get(oauthStateKey) != r.URL.Query().Get("state") {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "oauth state mismatch")
		return
	}
	sess.Delete(oauthStateKey)

	identity, err := provider.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.Warn("oauth exchange", slog.String("provider", chi.URLParam(r, "provider")), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "OAuth Failed", "identity provider rejected the sign-in")
		return
	}
	acct, err := h.service.SignInWithOAuth(r.Context(), identity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Sign-in Failed", err.Error())
		return
	}
	h.establishSession(w, r, acct.ID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) establishSession(w http.ResponseWriter, r *http.Request, accountID int64) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		return
	}
	sess.SetAccount(strconv.FormatInt(accountID, 10))
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, accountID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
}
