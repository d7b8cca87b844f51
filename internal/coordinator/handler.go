package coordinator

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-desktop/aegis/internal/platform/httpx"
	"github.com/aegis-desktop/aegis/internal/shared"
)

// Handler exposes the security pipeline over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the pipeline routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/process", h.process)
	r.Post("/authorize", h.authorize)
	r.Post("/permission-check", h.permissionCheck)
	r.Post("/elevate", h.elevate)
	r.Get("/stats", h.stats)
}

type processRequest struct {
	UserID        string         `json:"user_id"`
	Resource      string         `json:"resource"`
	Action        string         `json:"action"`
	Type          string         `json:"type"`
	Priority      string         `json:"priority"`
	APIKey        string         `json:"api_key"`
	AccessToken   string         `json:"access_token"`
	RefreshToken  string         `json:"refresh_token"`
	Username      string         `json:"username"`
	Password      string         `json:"password"`
	Path          string         `json:"path"`
	RequiredLevel string         `json:"required_level"`
	Command       string         `json:"command"`
	Args          []string       `json:"args"`
	Method        string         `json:"method"`
	Reason        string         `json:"reason"`
	Interactive   bool           `json:"interactive"`
	TimeoutMS     int            `json:"timeout_ms"`
	GatewayRule   string         `json:"gateway_rule"`
	Payload       map[string]any `json:"payload"`
	Context       map[string]any `json:"context"`
}

func (req processRequest) toSecurityRequest(r *http.Request) SecurityRequest {
	return SecurityRequest{
		UserID:   req.UserID,
		Resource: req.Resource,
		Action:   req.Action,
		Type:     RequestType(req.Type),
		Priority: Priority(req.Priority),
		Credentials: Credentials{
			APIKey:       req.APIKey,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			Username:     req.Username,
			Password:     req.Password,
		},
		Context:       req.Context,
		Path:          req.Path,
		RequiredLevel: req.RequiredLevel,
		Command:       req.Command,
		Args:          req.Args,
		Method:        req.Method,
		Reason:        req.Reason,
		Interactive:   req.Interactive,
		Timeout:       time.Duration(req.TimeoutMS) * time.Millisecond,
		ClientIP:      clientIP(r),
		UserAgent:     r.UserAgent(),
		GatewayRule:   req.GatewayRule,
		Payload:       req.Payload,
	}
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	resp := h.service.Process(r.Context(), req.toSecurityRequest(r))
	h.respond(w, resp)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	sec := req.toSecurityRequest(r)
	sec.Type = RequestAuthorization
	h.respond(w, h.service.Process(r.Context(), sec))
}

func (h *Handler) permissionCheck(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	sec := req.toSecurityRequest(r)
	sec.Type = RequestPermissionCheck
	h.respond(w, h.service.Process(r.Context(), sec))
}

func (h *Handler) elevate(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	sec := req.toSecurityRequest(r)
	sec.Type = RequestElevation
	h.respond(w, h.service.Process(r.Context(), sec))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.service.GetStats()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total_requests":  stats.TotalRequests,
		"successes":       stats.Successes,
		"failures":        stats.Failures,
		"cache_hits":      stats.CacheHits,
		"average_latency": stats.AverageLatency.String(),
		"peak_latency":    stats.PeakLatency.String(),
	})
}

// respond maps a pipeline response to HTTP. Denials keep the structured
// body so clients see which stage failed; the status code follows the
// failure taxonomy embedded in the message.
func (h *Handler) respond(w http.ResponseWriter, resp SecurityResponse) {
	status := http.StatusOK
	if !resp.Success {
		switch resp.Stage {
		case StageAuthenticate:
			status = http.StatusUnauthorized
		case StageAuthorize, StagePermission, StageElevation:
			status = http.StatusForbidden
		case StageGateway:
			status = http.StatusBadRequest
			switch {
			case strings.HasPrefix(resp.Message, shared.ErrRateLimited.Error()):
				status = http.StatusTooManyRequests
			case strings.HasPrefix(resp.Message, shared.ErrAuthorizationDenied.Error()):
				status = http.StatusForbidden
			}
		default:
			status = http.StatusBadRequest
		}
	}
	httpx.JSON(w, status, resp)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
