package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tracechain/tracechain/internal/platform/httpx"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router. requireAuth guards
// the endpoints that need an authenticated principal.
func (h *Handler) MountRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		if requireAuth != nil {
			r.Use(requireAuth)
		}
		r.Post("/mfa/verify", h.handleVerifyMFA)
		r.Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type mfaRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "Email and password are required")
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Error(w, r, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.Error(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	var req mfaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "A 6-digit code is required")
		return
	}
	result, err := h.service.VerifyMFA(r.Context(), *principal, req.Code)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, result)
	case errors.Is(err, ErrMFANotEnabled):
		httpx.Error(w, r, http.StatusBadRequest, "Multi-factor authentication is not enabled")
	case errors.Is(err, ErrInvalidMFACode), errors.Is(err, ErrInvalidCredentials):
		httpx.Error(w, r, http.StatusUnauthorized, "Invalid verification code")
	default:
		h.logger.Error("verify mfa", slog.Any("error", err), slog.String("user_id", principal.ID))
		httpx.Error(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}
