package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"msgwatch/pkg/logx"
)

func entry(i int) JournalEntry {
	return JournalEntry{
		ID:         fmt.Sprintf("id-%d", i),
		At:         time.Date(2026, 1, 2, 3, 4, i%60, 0, time.UTC),
		Event:      "delete",
		ScopeID:    -100,
		MessageID:  i,
		ScopeName:  "Team",
		SenderName: "Alice",
		CacheHit:   i%2 == 0,
		Media:      "photo",
		Delivered:  true,
		Path:       "bot_media",
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		require.Nil(t, st)
	}
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}

func testJournal(t *testing.T, driver string) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "journal.db")

	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, st.AppendJournal(ctx, entry(i)))
	}

	got, err := st.RecentJournal(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, entry(3), got[0])
	require.Equal(t, entry(2), got[1])
	require.NoError(t, st.Close())

	// Entries survive a reopen.
	st, err = Open(Config{Driver: driver, Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	got, err = st.RecentJournal(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, entry(1), got[2])
}

func TestFileJournal(t *testing.T)   { testJournal(t, "file") }
func TestSQLiteJournal(t *testing.T) { testJournal(t, "sqlite") }

func TestFileJournalKeepsBoundedTail(t *testing.T) {
	ctx := context.Background()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j.jsonl")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	for i := 0; i < recentKeep+50; i++ {
		require.NoError(t, st.AppendJournal(ctx, entry(i)))
	}
	got, err := st.RecentJournal(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, recentKeep)
	require.Equal(t, recentKeep+49, got[0].MessageID)
}

func TestSQLiteRetention(t *testing.T) {
	ctx := context.Background()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "j.db"), Retention: 5}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	st.(*sqliteStore).pruneEvery = 1

	for i := 0; i < 12; i++ {
		require.NoError(t, st.AppendJournal(ctx, entry(i)))
	}
	got, err := st.RecentJournal(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Equal(t, 11, got[0].MessageID)
	require.Equal(t, 7, got[4].MessageID)
}

func TestFileJournalClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j.jsonl")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Error(t, st.AppendJournal(context.Background(), entry(1)))
	require.NoError(t, st.Close())
}
