package audit

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestAudit(t *testing.T, retention int, stream *redis.Client) *Service {
	t.Helper()
	return NewService(retention, stream, slog.New(slog.DiscardHandler))
}

func TestRecordRequiresCoreFields(t *testing.T) {
	s := newTestAudit(t, 10, nil)
	err := s.Record(context.Background(), Event{Type: "authentication"})
	require.Error(t, err)

	err = s.Record(context.Background(), Event{Type: "authentication", Actor: "u-1", Result: "success"})
	require.NoError(t, err)
}

func TestTimelinePaging(t *testing.T) {
	s := newTestAudit(t, 100, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Event{
			Type:   "authorization",
			Actor:  "u-1",
			Result: "success",
			Time:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	res := s.Timeline(TimelineFilters{Page: 1, PageSize: 2})
	require.Len(t, res.Rows, 2)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.NextPage)

	// Newest first.
	require.Equal(t, base.Add(4*time.Minute), res.Rows[0].Time)

	res = s.Timeline(TimelineFilters{Page: 3, PageSize: 2})
	require.Len(t, res.Rows, 1)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.PrevPage)
}

func TestTimelineFilters(t *testing.T) {
	s := newTestAudit(t, 100, nil)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, Event{Type: "authentication", Actor: "alice", Result: "success"}))
	require.NoError(t, s.Record(ctx, Event{Type: "elevation", Actor: "bob", Result: "failed"}))
	require.NoError(t, s.Record(ctx, Event{Type: "authentication", Actor: "bob", Result: "denied"}))

	res := s.Timeline(TimelineFilters{Actor: "bob"})
	require.Len(t, res.Rows, 2)

	res = s.Timeline(TimelineFilters{Actor: "bob", Type: "elevation"})
	require.Len(t, res.Rows, 1)
	require.Equal(t, "failed", res.Rows[0].Result)
}

func TestRingOverwritesOldest(t *testing.T) {
	s := newTestAudit(t, 3, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Event{
			Type:   "gateway",
			Actor:  fmt.Sprintf("actor-%d", i),
			Result: "denied",
		}))
	}
	rows := s.Export(TimelineFilters{})
	require.Len(t, rows, 3)
	// Oldest two were overwritten.
	require.Equal(t, "actor-4", rows[0].Actor)
	require.Equal(t, "actor-2", rows[2].Actor)
}

func TestTrimClearsOldEvents(t *testing.T) {
	s := newTestAudit(t, 10, nil)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, Event{Type: "gateway", Actor: "old", Result: "denied", Time: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, s.Record(ctx, Event{Type: "gateway", Actor: "new", Result: "denied"}))

	cleared := s.Trim(time.Hour)
	require.Equal(t, 1, cleared)

	rows := s.Export(TimelineFilters{})
	require.Len(t, rows, 1)
	require.Equal(t, "new", rows[0].Actor)
}

func TestRedisStreamMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := newTestAudit(t, 10, client)

	require.NoError(t, s.Record(context.Background(), Event{
		Type:     "elevation",
		Actor:    "u-1",
		Resource: "/etc/hosts",
		Result:   "success",
	}))

	entries, err := client.XRange(context.Background(), StreamKey, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "elevation", entries[0].Values["type"])
	require.Equal(t, "u-1", entries[0].Values["actor"])
}
