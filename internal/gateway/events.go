package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// eventRing is a bounded append-only buffer of security events. Once full,
// the oldest event is overwritten.
type eventRing struct {
	mu     sync.RWMutex
	events []SecurityEvent
	next   int
	full   bool
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &eventRing{events: make([]SecurityEvent, capacity)}
}

func (r *eventRing) add(e SecurityEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	r.mu.Lock()
	r.events[r.next] = e
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// snapshot returns the retained events, oldest first.
func (r *eventRing) snapshot() []SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		out := make([]SecurityEvent, r.next)
		copy(out, r.events[:r.next])
		return out
	}
	out := make([]SecurityEvent, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	out = append(out, r.events[:r.next]...)
	return out
}

// countHighThreatBlocked counts retained blocked events at or above high
// threat from the given source IP.
func (r *eventRing) countHighThreatBlocked(sourceIP string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, e := range r.events {
		if e.ID == "" {
			continue
		}
		if e.SourceIP == sourceIP && e.Blocked && (e.Threat == ThreatHigh || e.Threat == ThreatCritical) {
			count++
		}
	}
	return count
}
