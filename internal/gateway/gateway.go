// Package gateway implements the API security gateway: blocklist check,
// sliding-window rate limiting, input validation and sanitization, and
// attack-pattern detection, composed in that fixed order.
package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config carries the gateway tunables.
type Config struct {
	Rules           []RateLimitRule
	LockoutDuration time.Duration
	EventRetention  int
	// BlockThreshold is the number of retained high-threat blocked events
	// from one source IP that escalates to a permanent block.
	BlockThreshold int
}

// Service composes the gateway filters. Any filter failing short-circuits
// the remaining ones.
type Service struct {
	cfg      Config
	logger   *slog.Logger
	limiter  *Limiter
	events   *eventRing
	validate *validator.Validate

	blockMu sync.RWMutex
	blocked map[string]struct{}
}

// NewService constructs the gateway.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRateLimitRules()
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = 5
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		limiter:  NewLimiter(cfg.Rules, cfg.LockoutDuration, logger),
		events:   newEventRing(cfg.EventRetention),
		validate: validator.New(),
		blocked:  make(map[string]struct{}),
	}
}

// Limiter exposes the rate limiter, for the worker sweep and tests.
func (s *Service) Limiter() *Limiter { return s.limiter }

// Process runs the filter chain for one request: blocklist, then rate
// limit, then validation and attack detection.
func (s *Service) Process(req APIRequest, rules []FieldRule) Verdict {
	if err := s.validate.Struct(req); err != nil {
		return Verdict{Allowed: false, Reason: "invalid_request_envelope", Errors: []string{err.Error()}}
	}

	if req.ClientIP != "" && s.IsBlocked(req.ClientIP) {
		s.record(SecurityEvent{
			Type:     "blocked_ip_rejected",
			SourceIP: req.ClientIP,
			Threat:   ThreatHigh,
			Blocked:  true,
			Details:  "request from permanently blocked address",
		})
		return Verdict{Allowed: false, Reason: "ip_blocked"}
	}

	if allowed, reason := s.limiter.Check(req.Identifier, req.Rule); !allowed {
		s.record(SecurityEvent{
			Type:     "rate_limited",
			SourceIP: req.ClientIP,
			Threat:   ThreatMedium,
			Blocked:  true,
			Details:  reason + " for " + req.Identifier,
		})
		return Verdict{Allowed: false, Reason: reason}
	}

	errs, warnings, sanitized := validateFields(req.Payload, rules)
	warnings = append(warnings, detectAttacks(req.Payload)...)

	if len(errs) > 0 {
		s.record(SecurityEvent{
			Type:     "validation_failed",
			SourceIP: req.ClientIP,
			Threat:   ThreatMedium,
			Blocked:  true,
			Details:  errs[0],
		})
		return Verdict{Allowed: false, Reason: "validation_failed", Errors: errs, Warnings: warnings}
	}

	return Verdict{Allowed: true, Warnings: warnings, Sanitized: sanitized}
}

// ReportBlocked records that the coordinator rejected a request as a
// threat, and escalates the source IP to a permanent block when the
// retained count reaches the threshold.
func (s *Service) ReportBlocked(sourceIP, details string, threat ThreatLevel) {
	s.record(SecurityEvent{
		Type:     "request_blocked",
		SourceIP: sourceIP,
		Threat:   threat,
		Blocked:  true,
		Details:  details,
	})
}

// IsBlocked reports whether ip is permanently blocked.
func (s *Service) IsBlocked(ip string) bool {
	s.blockMu.RLock()
	_, ok := s.blocked[ip]
	s.blockMu.RUnlock()
	return ok
}

// BlockIP permanently blocks an address until manually cleared.
func (s *Service) BlockIP(ip string) {
	s.blockMu.Lock()
	s.blocked[ip] = struct{}{}
	s.blockMu.Unlock()
	if s.logger != nil {
		s.logger.Warn("source ip permanently blocked", "ip", ip)
	}
}

// UnblockIP clears a permanent block.
func (s *Service) UnblockIP(ip string) {
	s.blockMu.Lock()
	delete(s.blocked, ip)
	s.blockMu.Unlock()
}

// Events returns the retained security events, oldest first.
func (s *Service) Events() []SecurityEvent { return s.events.snapshot() }

func (s *Service) record(e SecurityEvent) {
	s.events.add(e)
	if e.SourceIP == "" || !e.Blocked {
		return
	}
	if e.Threat != ThreatHigh && e.Threat != ThreatCritical {
		return
	}
	if s.events.countHighThreatBlocked(e.SourceIP) >= s.cfg.BlockThreshold && !s.IsBlocked(e.SourceIP) {
		s.BlockIP(e.SourceIP)
	}
}
