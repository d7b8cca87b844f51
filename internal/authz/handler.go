package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-desktop/aegis/internal/platform/httpx"
)

// Handler exposes role and user administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Post("/", h.createRole)
		r.Get("/{name}", h.getRole)
		r.Delete("/{name}", h.deleteRole)
	})
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.createUser)
		r.Get("/{userID}", h.getUser)
		r.Get("/{userID}/permissions", h.effectivePermissions)
		r.Post("/{userID}/roles/{role}", h.assignRole)
		r.Delete("/{userID}/roles/{role}", h.revokeRole)
		r.Post("/{userID}/permissions/{permission}", h.grantPermission)
		r.Delete("/{userID}/permissions/{permission}", h.revokePermission)
		r.Put("/{userID}/status", h.setStatus)
	})
}

type createRoleRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Permissions  []string `json:"permissions"`
	InheritsFrom []string `json:"inherits_from"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	err := h.service.CreateRole(Role{
		Name:         req.Name,
		Description:  req.Description,
		Permissions:  req.Permissions,
		InheritsFrom: req.InheritsFrom,
	})
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(chi.URLParam(r, "name")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createUserRequest struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	err := h.service.CreateUser(User{
		ID:       req.ID,
		Username: req.Username,
		Roles:    req.Roles,
		Active:   true,
	})
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.EffectivePermissions(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AssignRole(chi.URLParam(r, "userID"), chi.URLParam(r, "role")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RevokeRole(chi.URLParam(r, "userID"), chi.URLParam(r, "role")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.GrantPermission(chi.URLParam(r, "userID"), chi.URLParam(r, "permission")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RevokePermission(chi.URLParam(r, "userID"), chi.URLParam(r, "permission")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Active bool `json:"active"`
	Locked bool `json:"locked"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.service.SetUserStatus(chi.URLParam(r, "userID"), req.Active, req.Locked); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
