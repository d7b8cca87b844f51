package gateway

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-desktop/aegis/internal/platform/httpx"
)

// Handler exposes the gateway's event log and blocklist administration.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the gateway routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/events", h.events)
	r.Post("/blocklist", h.block)
	r.Delete("/blocklist/{ip}", h.unblock)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"events": h.service.Events()})
}

type blockRequest struct {
	IP string `json:"ip"`
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if net.ParseIP(req.IP) == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "ip must be a valid address")
		return
	}
	h.service.BlockIP(req.IP)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	h.service.UnblockIP(chi.URLParam(r, "ip"))
	w.WriteHeader(http.StatusNoContent)
}
