package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-desktop/aegis/internal/platform/httpx"
)

// Handler exposes credential and token management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the authentication routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/refresh", h.refresh)
	r.Post("/api-keys", h.issueAPIKey)
	r.Delete("/api-keys/{keyID}", h.revokeAPIKey)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	userID, err := h.service.AuthenticatePassword(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, err := h.service.IssueTokenPair(r.Context(), userID, nil)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken, nil)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

type issueAPIKeyRequest struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
	RateLimit   int      `json:"rate_limit"`
}

func (h *Handler) issueAPIKey(w http.ResponseWriter, r *http.Request) {
	var req issueAPIKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if req.UserID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id is required")
		return
	}
	secret, key, err := h.service.IssueAPIKey(r.Context(), req.UserID, req.Permissions, req.RateLimit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// The secret is shown exactly once; only its hash is retained.
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"key_id":  key.ID,
		"secret":  secret,
		"user_id": key.UserID,
	})
}

func (h *Handler) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")
	if err := h.service.RevokeAPIKey(r.Context(), keyID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
