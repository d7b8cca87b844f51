package permission

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aegis-desktop/aegis/internal/shared"
)

// ElevatorConfig carries the escalation tunables.
type ElevatorConfig struct {
	MaxFailures     int
	SessionWindow   time.Duration
	ReuseWindow     time.Duration
	DefaultTimeout  time.Duration
	PreferredMethod string
}

// Elevator executes privilege escalations through discovered methods and
// owns the per (identity, method) session and lockout state.
type Elevator struct {
	cfg      ElevatorConfig
	logger   *slog.Logger
	methods  []Method
	sessions *sessionTracker

	geteuid func() int
}

// NewElevator constructs an Elevator over the given methods, usually the
// result of DiscoverMethods.
func NewElevator(cfg ElevatorConfig, methods []Method, logger *slog.Logger) *Elevator {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = 5 * time.Minute
	}
	if cfg.ReuseWindow <= 0 {
		cfg.ReuseWindow = 5 * time.Minute
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
	return &Elevator{
		cfg:      cfg,
		logger:   logger,
		methods:  methods,
		sessions: newSessionTracker(cfg.MaxFailures, cfg.SessionWindow, cfg.ReuseWindow),
		geteuid:  os.Geteuid,
	}
}

// Methods returns the names of the available methods in preference order.
func (e *Elevator) Methods() []string {
	names := make([]string, 0, len(e.methods))
	for _, m := range e.methods {
		names = append(names, m.Name())
	}
	return names
}

// SweepSessions drops idle session entries; called by the worker.
func (e *Elevator) SweepSessions() int { return e.sessions.sweep() }

// Elevate runs req.Command with elevated privileges. Three consecutive
// failures for the same (identity, method) pair lock that pair out until
// the session window expires, without invoking the underlying mechanism.
// A timeout fails the attempt; there is no automatic retry.
func (e *Elevator) Elevate(ctx context.Context, req ElevationRequest) (ElevationResult, error) {
	start := time.Now()

	method, err := e.pickMethod(req.Method)
	if err != nil {
		return ElevationResult{Identity: req.Identity, Method: req.Method}, err
	}
	key := req.Identity + "|" + method.Name()
	res := ElevationResult{Identity: req.Identity, Method: method.Name()}

	if locked, until := e.sessions.locked(key); locked {
		res.Error = "too many failed attempts"
		res.Duration = time.Since(start)
		return res, fmt.Errorf("%w: too many failed attempts for %s via %s (locked until %s)",
			shared.ErrElevationFailed, req.Identity, method.Name(), until.UTC().Format(time.RFC3339))
	}

	// Elevation that is not actually required indicates upstream
	// misconfiguration. Surface it as a policy anomaly, not a denial.
	if e.geteuid() == 0 {
		res.Success = true
		res.Anomaly = true
		res.Duration = time.Since(start)
		e.logger.Warn("elevation requested while already privileged",
			"identity", req.Identity, "reason", req.Reason)
		return res, nil
	}

	res.Reused = e.sessions.reusable(key)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, execErr := method.Execute(execCtx, req.Command, req.Args)
	res.Output = output
	res.Duration = time.Since(start)

	if execErr != nil {
		res.Error = execErr.Error()
		if execCtx.Err() != nil {
			res.Error = "timed out after " + timeout.String()
		}
		lockedNow := e.sessions.recordFailure(key)
		e.logger.Warn("elevation failed",
			"identity", req.Identity,
			"method", method.Name(),
			"error", res.Error,
			"locked_out", lockedNow)
		return res, fmt.Errorf("%w: %s via %s: %s", shared.ErrElevationFailed, req.Identity, method.Name(), res.Error)
	}

	res.Success = true
	e.sessions.recordSuccess(key)
	e.logger.Info("elevation succeeded",
		"identity", req.Identity,
		"method", method.Name(),
		"reused", res.Reused,
		"duration", res.Duration)
	return res, nil
}

func (e *Elevator) pickMethod(name string) (Method, error) {
	if len(e.methods) == 0 {
		return nil, fmt.Errorf("%w: no elevation methods available", shared.ErrElevationFailed)
	}
	if name != "" {
		for _, m := range e.methods {
			if m.Name() == name {
				return m, nil
			}
		}
		return nil, fmt.Errorf("%w: elevation method %q not available", shared.ErrElevationFailed, name)
	}
	if e.cfg.PreferredMethod != "" {
		for _, m := range e.methods {
			if m.Name() == e.cfg.PreferredMethod {
				return m, nil
			}
		}
	}
	return e.methods[0], nil
}
