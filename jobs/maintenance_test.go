package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aegis-desktop/aegis/internal/audit"
	"github.com/aegis-desktop/aegis/internal/platform/cache"
)

func TestCacheSweepClearsExpiredEntries(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	c := cache.NewMemory()
	c.Set("stale", 1, time.Millisecond)
	c.Set("fresh", 2, time.Hour)
	time.Sleep(5 * time.Millisecond)

	job := NewCacheSweepJob(logger, nil, c, nil)
	require.NoError(t, job.Run(context.Background()))

	_, ok := c.Get("stale")
	require.False(t, ok)
	_, ok = c.Get("fresh")
	require.True(t, ok)
}

func TestSessionSweepVisitsAllTargets(t *testing.T) {
	calls := 0
	job := NewSessionSweepJob(slog.New(slog.DiscardHandler), nil,
		SweeperFunc(func() int { calls++; return 3 }),
		SweeperFunc(func() int { calls++; return 0 }),
		nil)
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 2, calls)
}

func TestAuditTrimClearsRingAndStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.DiscardHandler)
	trail := audit.NewService(100, client, logger)
	ctx := context.Background()

	// A stream entry whose ID predates the cutoff, as a long-running
	// deployment would have accumulated.
	_, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: audit.StreamKey,
		ID:     "1000-0",
		Values: map[string]any{"type": "authorization"},
	}).Result()
	require.NoError(t, err)

	require.NoError(t, trail.Record(ctx, audit.Event{
		Type: "authorization", Actor: "u-1", Result: "success",
		Time: time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, trail.Record(ctx, audit.Event{
		Type: "authorization", Actor: "u-2", Result: "success",
	}))

	job := NewAuditTrimJob(trail, 24*time.Hour, logger, nil)
	require.NoError(t, job.Handle(ctx, nil))

	// Ring: only the recent event survives.
	rows := trail.Export(audit.TimelineFilters{})
	require.Len(t, rows, 1)
	require.Equal(t, "u-2", rows[0].Actor)

	// Stream: the pre-cutoff entry is gone, the mirrored recent ones stay.
	length, err := client.XLen(ctx, audit.StreamKey).Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), length)
}
