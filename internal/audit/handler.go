package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-desktop/aegis/internal/platform/httpx"
)

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/events", h.timeline)
	r.Get("/export", h.export)
}

func parseFilters(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	filters := TimelineFilters{
		Actor: q.Get("actor"),
		Type:  q.Get("type"),
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = t
		}
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Page = n
		}
	}
	if v := q.Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.PageSize = n
		}
	}
	return filters
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	res := h.service.Timeline(parseFilters(r))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"events": res.Rows,
		"paging": res.Paging,
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	rows := h.service.Export(parseFilters(r))
	httpx.JSON(w, http.StatusOK, map[string]any{"events": rows})
}
