// Package coordinator chains the security components into one pipeline:
// authenticate, authorize, then the request-type specific stage, with a
// short-TTL response cache and rolling performance counters.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-desktop/aegis/internal/audit"
	"github.com/aegis-desktop/aegis/internal/auth"
	"github.com/aegis-desktop/aegis/internal/authz"
	"github.com/aegis-desktop/aegis/internal/gateway"
	"github.com/aegis-desktop/aegis/internal/observability"
	"github.com/aegis-desktop/aegis/internal/permission"
	"github.com/aegis-desktop/aegis/internal/shared"
)

// Config carries the coordinator tunables.
type Config struct {
	ResponseTTL time.Duration
	// EnterprisePatterns lists resource prefixes that always require
	// authentication, bypassing the response cache.
	EnterprisePatterns []string
}

// Service is the security integration coordinator. It is constructed
// explicitly at the composition root and injected where needed; there is
// no process-wide lazy singleton.
type Service struct {
	cfg      Config
	logger   *slog.Logger
	authn    *auth.Service
	authzEng *authz.Service
	checker  *permission.Checker
	elevator *permission.Elevator
	gw       *gateway.Service
	trail    *audit.Service
	metrics  *observability.Metrics
	cache    ResponseCache

	rulesMu    sync.RWMutex
	fieldRules map[string][]gateway.FieldRule

	statsMu      sync.Mutex
	stats        Stats
	totalLatency time.Duration
}

// NewService wires the coordinator from its collaborators.
func NewService(
	cfg Config,
	authn *auth.Service,
	authzEng *authz.Service,
	checker *permission.Checker,
	elevator *permission.Elevator,
	gw *gateway.Service,
	trail *audit.Service,
	metrics *observability.Metrics,
	respCache ResponseCache,
	logger *slog.Logger,
) *Service {
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = 5 * time.Minute
	}
	if respCache == nil {
		respCache = NewMemoryResponseCache()
	}
	s := &Service{
		cfg:        cfg,
		logger:     logger,
		authn:      authn,
		authzEng:   authzEng,
		checker:    checker,
		elevator:   elevator,
		gw:         gw,
		trail:      trail,
		metrics:    metrics,
		cache:      respCache,
		fieldRules: make(map[string][]gateway.FieldRule),
	}
	// A role or permission mutation drops the engine's decisions and must
	// drop the cached responses built on them in the same step, or a
	// revoked grant keeps answering until the response TTL runs out.
	if authzEng != nil {
		authzEng.OnInvalidateUser(func(userID string) {
			s.InvalidateUser(context.Background(), userID)
		})
	}
	return s
}

// RegisterFieldRules installs payload validation rules for a resource.
func (s *Service) RegisterFieldRules(resource string, rules []gateway.FieldRule) {
	s.rulesMu.Lock()
	s.fieldRules[resource] = rules
	s.rulesMu.Unlock()
}

// InvalidateUser drops the cached responses and authorization decisions
// for one user, leaving other users' entries untouched.
func (s *Service) InvalidateUser(ctx context.Context, userID string) {
	s.cache.Invalidate(ctx, userID+"|")
}

// Process runs the pipeline for one request. Any stage failing aborts the
// pipeline and returns a structured failure naming the stage; subsequent
// stages are not attempted.
func (s *Service) Process(ctx context.Context, req SecurityRequest) SecurityResponse {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Type == "" {
		req.Type = RequestAuthorization
	}

	plan, ok := stagePlans[req.Type]
	if !ok {
		resp := s.finish(start, req, SecurityResponse{
			RequestID: req.RequestID,
			Message:   fmt.Sprintf("unknown request type %q", req.Type),
		})
		return resp
	}

	enterprise := s.isEnterprise(req.Resource)

	// Enterprise resources always authenticate; the cache never
	// short-circuits them. Requests without a resolved identity are not
	// cacheable either way.
	if !enterprise && req.Type != RequestElevation && req.UserID != "" {
		if cached, ok := s.cache.Get(ctx, s.cacheKey(req)); ok {
			resp := *cached
			resp.RequestID = req.RequestID
			resp.CacheHit = true
			resp.Latency = time.Since(start)
			s.metrics.ObserveCacheHit()
			// Cached decisions still count as decisions.
			s.metrics.ObserveDecision(string(req.Type), outcome(resp.Success), resp.Latency)
			s.count(resp, true)
			return resp
		}
	}

	resp := SecurityResponse{RequestID: req.RequestID, Success: true}
	for _, stage := range plan {
		if err := s.runStage(ctx, stage, &req, &resp, enterprise); err != nil {
			resp.Success = false
			resp.Stage = stage
			resp.Message = err.Error()
			s.metrics.ObserveStageFailure(string(stage))
			s.audit(ctx, req, string(stage), "denied", err.Error())
			return s.finish(start, req, resp)
		}
	}

	resp.Message = "request allowed"
	s.audit(ctx, req, string(req.Type), "success", "")

	// Elevation has side effects; its responses are never cached. The key
	// uses the identity the authenticate stage resolved.
	if req.Type != RequestElevation && req.UserID != "" {
		toCache := resp
		toCache.CacheHit = false
		s.cache.Set(ctx, s.cacheKey(req), &toCache, s.cfg.ResponseTTL)
	}
	return s.finish(start, req, resp)
}

func (s *Service) cacheKey(req SecurityRequest) string {
	return req.UserID + "|" + req.Resource + "|" + req.Action
}

func (s *Service) runStage(ctx context.Context, stage Stage, req *SecurityRequest, resp *SecurityResponse, enterprise bool) error {
	switch stage {
	case StageAuthenticate:
		return s.authenticate(ctx, req, enterprise)
	case StageAuthorize:
		return s.authorize(ctx, req, resp)
	case StagePermission:
		return s.checkPermission(req)
	case StageElevation:
		return s.elevate(ctx, req, resp)
	case StageGateway:
		return s.gatewayCheck(req, resp)
	default:
		return fmt.Errorf("%w: unknown stage %q", shared.ErrInternal, stage)
	}
}

// authenticate resolves the presented credential to a user ID. Requests
// without credentials pass through unless the resource is enterprise; the
// authorization stage still decides on the claimed identity. An expired
// access token with a refresh token in hand is refreshed and re-validated
// exactly once.
func (s *Service) authenticate(ctx context.Context, req *SecurityRequest, enterprise bool) error {
	creds := req.Credentials
	switch {
	case creds.APIKey != "":
		key, err := s.authn.ValidateAPIKey(ctx, creds.APIKey)
		if err != nil {
			return err
		}
		if req.UserID == "" {
			req.UserID = key.UserID
		} else if req.UserID != key.UserID {
			return fmt.Errorf("%w: api key does not belong to %s", shared.ErrAuthenticationFailed, req.UserID)
		}
		if req.GatewayRule == "" {
			req.GatewayRule = "default"
		}
		return nil

	case creds.AccessToken != "":
		claims, err := s.authn.ValidateToken(ctx, creds.AccessToken, auth.TokenAccess)
		if err != nil && creds.RefreshToken != "" && strings.Contains(err.Error(), "expired") {
			pair, refreshErr := s.authn.Refresh(ctx, creds.RefreshToken, nil)
			if refreshErr != nil {
				return err
			}
			claims, err = s.authn.ValidateToken(ctx, pair.AccessToken, auth.TokenAccess)
		}
		if err != nil {
			return err
		}
		if req.UserID == "" {
			req.UserID = claims.Subject
		} else if req.UserID != claims.Subject {
			return fmt.Errorf("%w: token subject mismatch", shared.ErrAuthenticationFailed)
		}
		return nil

	case creds.Username != "":
		userID, err := s.authn.AuthenticatePassword(ctx, creds.Username, creds.Password)
		if err != nil {
			return err
		}
		req.UserID = userID
		return nil

	default:
		if enterprise {
			return fmt.Errorf("%w: resource requires authentication", shared.ErrAuthenticationFailed)
		}
		if req.UserID == "" {
			return fmt.Errorf("%w: no identity presented", shared.ErrAuthenticationFailed)
		}
		return nil
	}
}

func (s *Service) authorize(ctx context.Context, req *SecurityRequest, resp *SecurityResponse) error {
	decision := s.authzEng.Authorize(ctx, authz.Request{
		UserID:    req.UserID,
		Resource:  req.Resource,
		Action:    req.Action,
		ClientIP:  req.ClientIP,
		UserAgent: req.UserAgent,
		Extra:     req.Context,
	})
	resp.Permissions = decision.Permissions
	resp.Warnings = append(resp.Warnings, decision.Policies...)
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", shared.ErrAuthorizationDenied, decision.Reason)
	}
	return nil
}

func (s *Service) checkPermission(req *SecurityRequest) error {
	// No explicit level defers to the privileged-prefix table.
	required := permission.LevelNone
	if req.RequiredLevel != "" {
		required = permission.ParseLevel(req.RequiredLevel)
	}
	res := s.checker.Check(req.Path, required)
	if !res.Granted {
		return fmt.Errorf("%w: %s requires %s, have %s",
			shared.ErrAuthorizationDenied, req.Path, res.Required, res.Actual)
	}
	return nil
}

func (s *Service) elevate(ctx context.Context, req *SecurityRequest, resp *SecurityResponse) error {
	res, err := s.elevator.Elevate(ctx, permission.ElevationRequest{
		Identity:    req.UserID,
		Command:     req.Command,
		Args:        req.Args,
		Method:      req.Method,
		Reason:      req.Reason,
		Interactive: req.Interactive,
		Timeout:     req.Timeout,
	})
	if err != nil {
		return err
	}
	if res.Anomaly {
		resp.Warnings = append(resp.Warnings, "elevation_not_required")
	}
	if res.Reused {
		resp.Warnings = append(resp.Warnings, "elevation_session_reused")
	}
	return nil
}

// gatewayCheck runs the gateway filters. Attack warnings block API-access
// requests; this is where a warning becomes a denial, and repeated
// high-threat blocks escalate the source IP to a permanent block.
func (s *Service) gatewayCheck(req *SecurityRequest, resp *SecurityResponse) error {
	identifier := req.UserID
	if identifier == "" {
		identifier = req.ClientIP
	}
	s.rulesMu.RLock()
	rules := s.fieldRules[req.Resource]
	s.rulesMu.RUnlock()

	verdict := s.gw.Process(gateway.APIRequest{
		Identifier: identifier,
		ClientIP:   req.ClientIP,
		Rule:       req.GatewayRule,
		Endpoint:   req.Resource,
		Payload:    req.Payload,
	}, rules)

	resp.Warnings = append(resp.Warnings, verdict.Warnings...)
	resp.Sanitized = verdict.Sanitized

	if !verdict.Allowed {
		switch verdict.Reason {
		case "rate_limit_exceeded", "burst_limit_exceeded", "identifier_locked_out":
			return fmt.Errorf("%w: %s", shared.ErrRateLimited, verdict.Reason)
		case "ip_blocked":
			return fmt.Errorf("%w: %s", shared.ErrAuthorizationDenied, verdict.Reason)
		default:
			return fmt.Errorf("%w: %s", shared.ErrValidationFailed, verdict.Reason)
		}
	}

	for _, w := range verdict.Warnings {
		if strings.Contains(w, "suspected") {
			s.gw.ReportBlocked(req.ClientIP, w, gateway.ThreatHigh)
			return fmt.Errorf("%w: %s", shared.ErrAttackSuspected, w)
		}
	}
	return nil
}

func (s *Service) isEnterprise(resource string) bool {
	for _, pattern := range s.cfg.EnterprisePatterns {
		if strings.HasPrefix(resource, pattern) {
			return true
		}
	}
	return false
}

func (s *Service) audit(ctx context.Context, req SecurityRequest, eventType, result, detail string) {
	if s.trail == nil {
		return
	}
	actor := req.UserID
	if actor == "" {
		actor = "anonymous"
	}
	meta := map[string]string{}
	if detail != "" {
		meta["detail"] = detail
	}
	if err := s.trail.Record(ctx, audit.Event{
		Type:     eventType,
		Actor:    actor,
		Resource: req.Resource,
		Action:   req.Action,
		Result:   result,
		Severity: string(req.Priority),
		ClientIP: req.ClientIP,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Error("audit record failed", slog.Any("error", err))
	}
}

func (s *Service) finish(start time.Time, req SecurityRequest, resp SecurityResponse) SecurityResponse {
	resp.Latency = time.Since(start)
	s.metrics.ObserveDecision(string(req.Type), outcome(resp.Success), resp.Latency)
	s.count(resp, false)
	return resp
}

func (s *Service) count(resp SecurityResponse, cacheHit bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.TotalRequests++
	if resp.Success {
		s.stats.Successes++
	} else {
		s.stats.Failures++
	}
	if cacheHit {
		s.stats.CacheHits++
	}
	s.totalLatency += resp.Latency
	s.stats.AverageLatency = s.totalLatency / time.Duration(s.stats.TotalRequests)
	if resp.Latency > s.stats.PeakLatency {
		s.stats.PeakLatency = resp.Latency
	}
}

// GetStats returns a snapshot of the rolling performance counters.
func (s *Service) GetStats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func outcome(success bool) string {
	if success {
		return "allowed"
	}
	return "denied"
}

// Authenticate is the convenience entry for interactive logins.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	_, err := s.authn.AuthenticatePassword(ctx, username, password)
	if err != nil {
		if errors.Is(err, shared.ErrAuthenticationFailed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Authorize is the convenience entry for in-process permission questions.
func (s *Service) Authorize(ctx context.Context, userID, resource, action string, extra map[string]any) bool {
	resp := s.Process(ctx, SecurityRequest{
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Type:     RequestAuthorization,
		Context:  extra,
	})
	return resp.Success
}

// CheckFilePermission reports whether the process holds the required
// level on path. This is the in-process fast path; it asks the checker
// directly and skips the RBAC stages.
func (s *Service) CheckFilePermission(ctx context.Context, userID, path, level string) bool {
	required := permission.LevelNone
	if level != "" {
		required = permission.ParseLevel(level)
	}
	res := s.checker.Check(path, required)
	if !res.Granted && s.logger != nil {
		s.logger.Debug("file permission denied",
			slog.String("user_id", userID),
			slog.String("path", path),
			slog.String("required", res.Required.String()),
			slog.String("actual", res.Actual.String()))
	}
	return res.Granted
}

// Elevate is the convenience entry for privilege escalation.
func (s *Service) Elevate(ctx context.Context, userID, command, reason string, interactive bool) SecurityResponse {
	return s.Process(ctx, SecurityRequest{
		UserID:      userID,
		Resource:    "system",
		Action:      "admin",
		Type:        RequestElevation,
		Command:     command,
		Reason:      reason,
		Interactive: interactive,
	})
}
