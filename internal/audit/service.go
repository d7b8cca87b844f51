// Package audit keeps the append-only trail of security-relevant
// outcomes: every authentication, authorization, and elevation event.
// Events are retained in a bounded in-memory ring, logged structurally,
// and optionally mirrored to a Redis stream for the external compliance
// consumer.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StreamKey is the Redis stream the compliance exporter reads.
const StreamKey = "aegis:audit"

// Event is one immutable audit record.
type Event struct {
	ID       string
	Time     time.Time
	Type     string // authentication, authorization, elevation, gateway
	Actor    string
	Resource string
	Action   string
	Result   string // success, denied, failed
	Severity string
	ClientIP string
	Meta     map[string]string
}

// TimelineFilters narrows a timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Type     string
	Page     int
	PageSize int
}

// PagingInfo describes the window a timeline call returned.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []Event
	Paging PagingInfo
}

// Service owns the retained events.
type Service struct {
	logger    *slog.Logger
	stream    *redis.Client
	retention int

	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

// NewService constructs the audit trail. stream may be nil; events are
// then retained in memory only.
func NewService(retention int, stream *redis.Client, logger *slog.Logger) *Service {
	if retention <= 0 {
		retention = 10_000
	}
	return &Service{
		logger:    logger,
		stream:    stream,
		retention: retention,
		events:    make([]Event, retention),
	}
}

// Record appends an event to the trail. Records require a type, actor and
// result; incomplete records are rejected so gaps are visible at the call
// site instead of silently missing from the trail.
func (s *Service) Record(ctx context.Context, e Event) error {
	if e.Type == "" || e.Actor == "" || e.Result == "" {
		return fmt.Errorf("audit: event requires type/actor/result")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	s.mu.Lock()
	s.events[s.next] = e
	s.next++
	if s.next == s.retention {
		s.next = 0
		s.full = true
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("audit",
			slog.String("event_id", e.ID),
			slog.String("type", e.Type),
			slog.String("actor", e.Actor),
			slog.String("resource", e.Resource),
			slog.String("action", e.Action),
			slog.String("result", e.Result),
			slog.String("client_ip", e.ClientIP))
	}

	if s.stream != nil {
		values := map[string]any{
			"id":       e.ID,
			"time":     e.Time.Format(time.RFC3339Nano),
			"type":     e.Type,
			"actor":    e.Actor,
			"resource": e.Resource,
			"action":   e.Action,
			"result":   e.Result,
			"severity": e.Severity,
		}
		if err := s.stream.XAdd(ctx, &redis.XAddArgs{Stream: StreamKey, Values: values}).Err(); err != nil {
			// The in-memory trail already holds the event; losing the
			// mirror is logged, not fatal.
			if s.logger != nil {
				s.logger.Error("audit stream write failed", slog.Any("error", err))
			}
		}
	}
	return nil
}

// Timeline returns matching events, newest first, with paging.
func (s *Service) Timeline(filters TimelineFilters) Result {
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	all := s.matching(filters)
	offset := (page - 1) * pageSize
	var rows []Event
	if offset < len(all) {
		end := offset + pageSize
		if end > len(all) {
			end = len(all)
		}
		rows = all[offset:end]
	}

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: offset+pageSize < len(all)}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if paging.HasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}
}

// Export returns every matching event without paging.
func (s *Service) Export(filters TimelineFilters) []Event {
	return s.matching(filters)
}

// TrimStream drops mirrored stream entries older than the retention
// window. Stream IDs are millisecond timestamps, so a range query up to
// the cutoff finds exactly the entries the ring trim would drop. No-op
// when no stream is configured.
func (s *Service) TrimStream(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.stream == nil {
		return 0, nil
	}
	end := strconv.FormatInt(time.Now().Add(-olderThan).UnixMilli(), 10)
	msgs, err := s.stream.XRange(ctx, StreamKey, "-", end).Result()
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return s.stream.XDel(ctx, StreamKey, ids...).Result()
}

// Trim drops ring events older than the retention window. Returns how
// many were cleared.
func (s *Service) Trim(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	cleared := 0
	s.mu.Lock()
	for i := range s.events {
		if s.events[i].ID != "" && s.events[i].Time.Before(cutoff) {
			s.events[i] = Event{}
			cleared++
		}
	}
	s.mu.Unlock()
	return cleared
}

func (s *Service) matching(filters TimelineFilters) []Event {
	s.mu.RLock()
	retained := make([]Event, 0, s.retention)
	start := 0
	if s.full {
		start = s.next
	}
	for i := 0; i < s.retention; i++ {
		e := s.events[(start+i)%s.retention]
		if e.ID != "" {
			retained = append(retained, e)
		}
	}
	s.mu.RUnlock()

	out := make([]Event, 0, len(retained))
	// Walk newest first.
	for i := len(retained) - 1; i >= 0; i-- {
		e := retained[i]
		if !filters.From.IsZero() && e.Time.Before(filters.From) {
			continue
		}
		if !filters.To.IsZero() && e.Time.After(filters.To) {
			continue
		}
		if filters.Actor != "" && !strings.EqualFold(e.Actor, filters.Actor) {
			continue
		}
		if filters.Type != "" && e.Type != filters.Type {
			continue
		}
		out = append(out, e)
	}
	return out
}
