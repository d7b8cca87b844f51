package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-desktop/aegis/internal/audit"
	jobmetrics "github.com/aegis-desktop/aegis/internal/jobs"
	"github.com/aegis-desktop/aegis/internal/platform/cache"
)

// Sweepable is any component that can drop expired internal state and
// report how much it cleared.
type Sweepable interface {
	Sweep() int
}

// SweeperFunc adapts a plain sweep function to Sweepable.
type SweeperFunc func() int

// Sweep implements Sweepable.
func (f SweeperFunc) Sweep() int { return f() }

// CacheSweepJob sweeps expired entries out of the registered caches. The
// caches live in process memory, so this job runs inside the serving
// process, not on the external worker.
type CacheSweepJob struct {
	caches  []*cache.Memory
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewCacheSweepJob builds the job over the process caches.
func NewCacheSweepJob(logger *slog.Logger, metrics *jobmetrics.Metrics, caches ...*cache.Memory) *CacheSweepJob {
	return &CacheSweepJob{caches: caches, logger: logger, metrics: metrics}
}

// Run sweeps all registered caches once.
func (j *CacheSweepJob) Run(ctx context.Context) error {
	tracker := j.metrics.Track("cache_sweep")
	removed := 0
	for _, c := range j.caches {
		if c != nil {
			removed += c.Sweep()
		}
	}
	j.metrics.AddCleared("cache", removed)
	j.logger.Info("cache sweep complete", slog.Int("removed", removed))
	return tracker.End(nil)
}

// SessionSweepJob expires idle rate-limit windows and elevation sessions.
// Like the cache sweep, the swept state is process-local.
type SessionSweepJob struct {
	targets []Sweepable
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSessionSweepJob builds the job over the sweepable components.
func NewSessionSweepJob(logger *slog.Logger, metrics *jobmetrics.Metrics, targets ...Sweepable) *SessionSweepJob {
	return &SessionSweepJob{targets: targets, logger: logger, metrics: metrics}
}

// Run sweeps all registered targets once.
func (j *SessionSweepJob) Run(ctx context.Context) error {
	tracker := j.metrics.Track("session_sweep")
	removed := 0
	for _, target := range j.targets {
		if target != nil {
			removed += target.Sweep()
		}
	}
	j.metrics.AddCleared("session", removed)
	j.logger.Info("session sweep complete", slog.Int("removed", removed))
	return tracker.End(nil)
}

// AuditTrimJob clears audit events older than the retention age: the
// local in-memory ring and the shared Redis stream. The stream is the
// one store the external worker can maintain, so this job runs both
// in-process and as an asynq task.
type AuditTrimJob struct {
	trail   *audit.Service
	maxAge  time.Duration
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditTrimJob builds the job. maxAge is the default when the task
// payload does not carry one.
func NewAuditTrimJob(trail *audit.Service, maxAge time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditTrimJob {
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &AuditTrimJob{trail: trail, maxAge: maxAge, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditTrim tasks.
func (j *AuditTrimJob) Handle(ctx context.Context, t *asynq.Task) error {
	maxAge := j.maxAge
	if t != nil && len(t.Payload()) > 0 {
		var payload AuditTrimPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.MaxAge > 0 {
			maxAge = payload.MaxAge
		}
	}
	return j.trim(ctx, maxAge)
}

// Run trims with the configured default age.
func (j *AuditTrimJob) Run(ctx context.Context) error {
	return j.trim(ctx, j.maxAge)
}

func (j *AuditTrimJob) trim(ctx context.Context, maxAge time.Duration) error {
	tracker := j.metrics.Track("audit_trim")
	cleared := j.trail.Trim(maxAge)
	trimmed, err := j.trail.TrimStream(ctx, maxAge)
	if err != nil {
		j.logger.Warn("audit stream trim failed", slog.Any("error", err))
	}
	j.metrics.AddCleared("audit", cleared+int(trimmed))
	j.logger.Info("audit trim complete",
		slog.Int("cleared", cleared),
		slog.Int64("stream_trimmed", trimmed))
	return tracker.End(err)
}

// LocalMaintenanceConfig sets the sweep cadence. Zero values take the
// defaults.
type LocalMaintenanceConfig struct {
	CacheSweepEvery   time.Duration
	SessionSweepEvery time.Duration
	AuditTrimEvery    time.Duration
}

// LocalMaintenance runs the maintenance jobs on in-process tickers.
// Caches, rate-limit windows, and elevation sessions live inside the
// serving process where no external worker can reach them; only the
// Redis audit stream is also maintained out of process.
type LocalMaintenance struct {
	cfg        LocalMaintenanceConfig
	logger     *slog.Logger
	cacheJob   *CacheSweepJob
	sessionJob *SessionSweepJob
	trimJob    *AuditTrimJob
}

// NewLocalMaintenance builds the in-process scheduler. Any job may be
// nil; its ticker then fires into a no-op.
func NewLocalMaintenance(cfg LocalMaintenanceConfig, logger *slog.Logger, cacheJob *CacheSweepJob, sessionJob *SessionSweepJob, trimJob *AuditTrimJob) *LocalMaintenance {
	if cfg.CacheSweepEvery <= 0 {
		cfg.CacheSweepEvery = 10 * time.Minute
	}
	if cfg.SessionSweepEvery <= 0 {
		cfg.SessionSweepEvery = 15 * time.Minute
	}
	if cfg.AuditTrimEvery <= 0 {
		cfg.AuditTrimEvery = time.Hour
	}
	return &LocalMaintenance{
		cfg:        cfg,
		logger:     logger,
		cacheJob:   cacheJob,
		sessionJob: sessionJob,
		trimJob:    trimJob,
	}
}

// Run blocks until ctx is done, firing each job on its cadence.
func (m *LocalMaintenance) Run(ctx context.Context) {
	cacheTick := time.NewTicker(m.cfg.CacheSweepEvery)
	defer cacheTick.Stop()
	sessionTick := time.NewTicker(m.cfg.SessionSweepEvery)
	defer sessionTick.Stop()
	trimTick := time.NewTicker(m.cfg.AuditTrimEvery)
	defer trimTick.Stop()

	m.logger.Info("local maintenance started",
		slog.Duration("cache_sweep_every", m.cfg.CacheSweepEvery),
		slog.Duration("session_sweep_every", m.cfg.SessionSweepEvery),
		slog.Duration("audit_trim_every", m.cfg.AuditTrimEvery))

	for {
		select {
		case <-ctx.Done():
			return
		case <-cacheTick.C:
			if m.cacheJob != nil {
				_ = m.cacheJob.Run(ctx)
			}
		case <-sessionTick.C:
			if m.sessionJob != nil {
				_ = m.sessionJob.Run(ctx)
			}
		case <-trimTick.C:
			if m.trimJob != nil {
				_ = m.trimJob.Run(ctx)
			}
		}
	}
}
