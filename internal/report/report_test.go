package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"msgwatch/internal/reconcile"
	"msgwatch/internal/snapshot"
	"msgwatch/internal/storage"
	"msgwatch/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"0 9 * * *", "30 0 9 * * *", "@daily", "@every 6h"} {
		_, err := ParseSchedule(spec)
		require.NoError(t, err, spec)
	}
	_, err := ParseSchedule("  ")
	require.Error(t, err)
	_, err = ParseSchedule("61 * * * *")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	require.NoError(t, Config{Enabled: true, Cron: "@hourly", Timezone: "UTC"}.Validate())
	require.ErrorContains(t, Config{Enabled: true, Cron: "bogus"}.Validate(), "report.cron")
	require.ErrorContains(t, Config{Enabled: true, Cron: "@hourly", Timezone: "Mars/Base"}.Validate(), "report.timezone")
}

func TestRender(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	out := Render(Summary{
		Stats: reconcile.Stats{
			Cache:     snapshot.Stats{Entries: 3, Scopes: 2, MaxPerScope: 1000, Evicted: 1},
			Edits:     4,
			Deletes:   2,
			Delivered: 5,
			Failed:    1,
			LastEvent: at,
		},
		Counts: map[int64]int{10: 1, 20: 2},
		Recent: []storage.JournalEntry{
			{At: at, Event: "delete", ScopeName: "A & B", SenderName: "Eve", CacheHit: true, Media: "photo", Delivered: true, Path: "bot_media"},
			{At: at, Event: "edit", ScopeName: "C", SenderName: "?", Delivered: false},
		},
		Loc: time.UTC,
	})

	require.True(t, strings.HasPrefix(out, "<b>msgwatch stats</b>\n"))
	require.Contains(t, out, "Cached: 3 in 2 scopes (cap 1000 per scope, evicted 1)")
	require.Contains(t, out, "Delivered: 5, failed: 1")
	require.Contains(t, out, "Last event: 2026-03-04 05:06:07")
	require.Less(t, strings.Index(out, "<code>20</code>: 2"), strings.Index(out, "<code>10</code>: 1"))
	require.Contains(t, out, "03-04 05:06 delete A &amp; B / Eve (hit, photo) ✓ bot_media")
	require.Contains(t, out, "edit C / ? (miss) ✗ failed")
	require.NotContains(t, out, "panics")
}

func TestRenderEmpty(t *testing.T) {
	out := Render(Summary{Title: "Daily"})
	require.True(t, strings.HasPrefix(out, "<b>Daily</b>"))
	require.Contains(t, out, "Last event: never")
	require.NotContains(t, out, "Busiest")
	require.NotContains(t, out, "Recent")
}

func TestBusiestLimit(t *testing.T) {
	got := busiest(map[int64]int{1: 1, 2: 5, 3: 5, 4: 2}, 3)
	require.Equal(t, []scopeCount{{2, 5}, {3, 5}, {4, 2}}, got)
}

func TestServiceScheduleAndApply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan struct{}, 1)
	s := New(Config{}, func(context.Context) error {
		runs <- struct{}{}
		return nil
	}, logx.Nop())

	require.NoError(t, s.Start(ctx))
	require.True(t, s.Next().IsZero())

	require.NoError(t, s.Apply(Config{Enabled: true, Cron: "0 9 * * *", Timezone: "UTC"}))
	next := s.Next()
	require.False(t, next.IsZero())
	require.Equal(t, 9, next.In(time.UTC).Hour())
	require.Equal(t, time.UTC, s.Location())

	require.Error(t, s.Apply(Config{Enabled: true, Cron: "nope"}))
	require.True(t, next.Equal(s.Next()))

	require.NoError(t, s.RunNow(ctx))
	<-runs

	require.NoError(t, s.Apply(Config{}))
	require.True(t, s.Next().IsZero())
	s.Stop()
}
