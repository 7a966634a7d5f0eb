package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"msgwatch/internal/delivery"
	"msgwatch/internal/eventbus"
	"msgwatch/internal/notify"
	"msgwatch/internal/snapshot"
	"msgwatch/internal/storage"
	"msgwatch/internal/transport"
	"msgwatch/pkg/logx"
)

type dispatched struct {
	text string
	att  snapshot.Attachment
}

type fakeDispatcher struct {
	calls []dispatched
	fail  bool
	hook  func(text string)
}

func (f *fakeDispatcher) Dispatch(_ context.Context, text string, att snapshot.Attachment) delivery.Result {
	f.calls = append(f.calls, dispatched{text: text, att: att})
	if f.hook != nil {
		f.hook(text)
	}
	if f.fail {
		return delivery.Result{}
	}
	return delivery.Result{Delivered: true, Path: delivery.PathSelfText}
}

func newEngine(t *testing.T, maxPerScope int) (*Engine, *snapshot.Cache, *fakeDispatcher) {
	t.Helper()
	cache := snapshot.NewCache(maxPerScope)
	disp := &fakeDispatcher{}
	n := 0
	e := New(cache, disp, Options{
		Log:   logx.Nop(),
		Now:   func() time.Time { return time.Unix(1700000000, 0) },
		NewID: func() string { n++; return fmt.Sprintf("n%d", n) },
	})
	return e, cache, disp
}

func msg(scope int64, id int, sender, text string) *transport.Message {
	return &transport.Message{
		ID:      id,
		Chat:    &transport.Chat{ID: scope, Title: fmt.Sprintf("Chat %d", scope)},
		Sender:  &transport.Sender{ID: 1, FirstName: sender},
		Content: transport.Content{Text: text},
	}
}

func TestEndToEndScenario(t *testing.T) {
	e, cache, disp := newEngine(t, 10)
	ctx := context.Background()

	e.OnSeen(msg(10, 5, "Alice", "hello"))
	require.Equal(t, 1, cache.Len())

	e.OnEdited(ctx, msg(10, 5, "Alice", "hello world"))
	require.Len(t, disp.calls, 1)
	require.Contains(t, disp.calls[0].text, "<pre>hello</pre>")
	require.Contains(t, disp.calls[0].text, "<pre>hello world</pre>")
	got, ok := cache.Get(10, 5)
	require.True(t, ok)
	require.Equal(t, "hello world", got.Text)
	require.Equal(t, 1, cache.Len())

	e.OnDeleted(ctx, []transport.Message{{ID: 5, Chat: &transport.Chat{ID: 10}}})
	require.Len(t, disp.calls, 2)
	require.Contains(t, disp.calls[1].text, "<pre>hello world</pre>")
	require.Contains(t, disp.calls[1].text, "Message deleted")
	_, ok = cache.Get(10, 5)
	require.False(t, ok)
}

func TestEditMissStillNotifies(t *testing.T) {
	e, cache, disp := newEngine(t, 10)

	e.OnEdited(context.Background(), msg(3, 9, "Bob", "new text"))
	require.Len(t, disp.calls, 1)
	require.Contains(t, disp.calls[0].text, "<pre>"+notify.EditMissing+"</pre>")
	require.Contains(t, disp.calls[0].text, "<pre>new text</pre>")
	require.Contains(t, disp.calls[0].text, "<b>Bob</b>")
	require.True(t, disp.calls[0].att.IsZero())

	_, ok := cache.Get(3, 9)
	require.True(t, ok, "the edited version becomes the cached snapshot")
	require.Equal(t, uint64(1), e.st.Misses)
}

func TestEditUsesCachedAttachmentAndNames(t *testing.T) {
	e, _, disp := newEngine(t, 10)
	m := msg(1, 2, "Alice", "")
	m.Content = transport.Content{Caption: "cat", Photo: &transport.File{ID: "ph1"}}
	e.OnSeen(m)

	edited := msg(1, 2, "Renamed", "")
	edited.Content = transport.Content{Caption: "a cat"}
	e.OnEdited(context.Background(), edited)

	require.Len(t, disp.calls, 1)
	require.Equal(t, snapshot.NewAttachment("ph1", snapshot.KindPhoto), disp.calls[0].att)
	require.Contains(t, disp.calls[0].text, "<b>Alice</b>")
	require.Contains(t, disp.calls[0].text, "[caption: cat] | [📷 Photo]")
	require.Contains(t, disp.calls[0].text, "[caption: a cat]")
}

func TestOutgoingAndUnattributableIgnored(t *testing.T) {
	e, cache, disp := newEngine(t, 10)
	ctx := context.Background()

	out := msg(1, 1, "Me", "mine")
	out.Outgoing = true
	e.OnSeen(out)
	e.OnEdited(ctx, out)

	e.OnSeen(&transport.Message{ID: 2, Content: transport.Content{Text: "orphan"}})
	e.OnEdited(ctx, &transport.Message{ID: 2, Sender: &transport.Sender{ID: 4}})
	e.OnSeen(nil)

	require.Zero(t, cache.Len())
	require.Empty(t, disp.calls)
	require.Equal(t, uint64(5), e.st.Ignored)
}

func TestScopelessDeleteNotifiesPerMatch(t *testing.T) {
	e, cache, disp := newEngine(t, 10)
	e.OnSeen(msg(100, 7, "Alice", "from A"))
	e.OnSeen(msg(200, 7, "Bob", "from B"))
	e.OnSeen(msg(200, 8, "Bob", "keep"))

	e.OnDeleted(context.Background(), []transport.Message{{ID: 7}})

	require.Len(t, disp.calls, 2)
	require.Contains(t, disp.calls[0].text, "from A")
	require.Contains(t, disp.calls[0].text, "Chat 100")
	require.Contains(t, disp.calls[1].text, "from B")
	require.Contains(t, disp.calls[1].text, "Chat 200")
	require.Equal(t, 1, cache.Len())
}

func TestDeleteMissUsesEventFields(t *testing.T) {
	e, _, disp := newEngine(t, 10)

	e.OnDeleted(context.Background(), []transport.Message{
		{ID: 1, Chat: &transport.Chat{ID: 5, Title: "Room"}, Sender: &transport.Sender{FirstName: "Eve"}},
		{ID: 2},
	})

	require.Len(t, disp.calls, 2)
	require.Contains(t, disp.calls[0].text, "<b>Room</b>")
	require.Contains(t, disp.calls[0].text, "<b>Eve</b>")
	require.Contains(t, disp.calls[0].text, "<pre>"+notify.DeleteMissing+"</pre>")
	require.Contains(t, disp.calls[1].text, "Chat: <b>?</b>")
	require.Contains(t, disp.calls[1].text, "From: <b>?</b>")
	require.Equal(t, uint64(2), e.st.Misses)
}

func TestDeleteBatchIsIndependent(t *testing.T) {
	e, cache, disp := newEngine(t, 10)
	e.OnSeen(msg(1, 1, "A", "one"))
	e.OnSeen(msg(1, 2, "A", "two"))

	e.OnDeleted(context.Background(), []transport.Message{
		{ID: 1, Chat: &transport.Chat{ID: 1}},
		{ID: 3, Chat: &transport.Chat{ID: 1}},
		{ID: 2, Chat: &transport.Chat{ID: 1}},
	})
	require.Len(t, disp.calls, 3)
	require.Contains(t, disp.calls[0].text, "one")
	require.Contains(t, disp.calls[1].text, notify.DeleteMissing)
	require.Contains(t, disp.calls[2].text, "two")
	require.Zero(t, cache.Len())
}

func TestFailedDeliveryIsCountedNotFatal(t *testing.T) {
	e, _, disp := newEngine(t, 10)
	disp.fail = true
	e.OnSeen(msg(1, 1, "A", "x"))
	e.OnDeleted(context.Background(), []transport.Message{{ID: 1, Chat: &transport.Chat{ID: 1}}})
	require.Equal(t, uint64(1), e.st.Failed)
	require.Equal(t, uint64(0), e.st.Delivered)
}

func TestJournalAndEvents(t *testing.T) {
	cache := snapshot.NewCache(1)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j.jsonl")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	e := New(cache, &fakeDispatcher{}, Options{Bus: bus, Journal: st, NewID: func() string { return "fixed" }})
	ctx := context.Background()

	m := msg(1, 1, "A", "")
	m.Content.Voice = &transport.File{ID: "v"}
	e.OnSeen(m)
	e.OnSeen(msg(1, 2, "A", "evicts 1"))
	e.OnDeleted(ctx, []transport.Message{{ID: 2, Chat: &transport.Chat{ID: 1}}})

	got, err := st.RecentJournal(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "fixed", got[0].ID)
	require.Equal(t, "delete", got[0].Event)
	require.True(t, got[0].CacheHit)
	require.True(t, got[0].Delivered)
	require.Equal(t, 2, got[0].MessageID)

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	require.Equal(t, []string{eventbus.CacheEvicted, eventbus.NotificationDelivered}, types)
}

func TestRunSerializesAndRecoversFromPanics(t *testing.T) {
	e, _, disp := newEngine(t, 10)
	panicked := false
	disp.hook = func(text string) {
		if !panicked {
			panicked = true
			panic("dispatcher bug")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan transport.Update)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, updates) }()

	updates <- transport.Update{Kind: transport.UpdateObserved, Message: msg(1, 1, "A", "a")}
	updates <- transport.Update{Kind: transport.UpdateEdited, Message: msg(1, 1, "A", "b")} // panics
	updates <- transport.Update{Kind: transport.UpdateObserved, Message: msg(1, 2, "A", "c")}

	counts, err := e.ScopeCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]int{1: 2}, counts)

	require.NoError(t, e.SetMaxPerScope(ctx, 1))
	require.Equal(t, 1, e.Stats().Cache.Entries)
	require.Equal(t, uint64(1), e.Stats().Panics)
	require.Equal(t, uint64(2), e.Stats().Seen)

	close(updates)
	require.NoError(t, <-done)
	require.ErrorIs(t, e.Do(ctx, func(*snapshot.Cache) {}), ErrStopped)
}

func TestEvictionEventsPerScope(t *testing.T) {
	cache := snapshot.NewCache(2)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	e := New(cache, &fakeDispatcher{}, Options{Bus: bus})

	e.OnSeen(msg(1, 1, "A", "oldest"))
	e.OnSeen(msg(2, 1, "B", "b1"))
	e.OnSeen(msg(2, 2, "B", "b2"))
	e.OnSeen(msg(2, 3, "B", "b3"))

	var got []eventbus.Eviction
	for len(events) > 0 {
		ev := <-events
		require.Equal(t, eventbus.CacheEvicted, ev.Type)
		got = append(got, ev.Data.(eventbus.Eviction))
	}
	require.Equal(t, []eventbus.Eviction{{ScopeID: 1, Count: 1}, {ScopeID: 2, Count: 1}}, got)
}

func TestDoWaitsForRunningJobAfterCancel(t *testing.T) {
	e, _, _ := newEngine(t, 10)
	loopCtx, stop := context.WithCancel(context.Background())
	defer stop()
	updates := make(chan transport.Update)
	go func() { _ = e.Run(loopCtx, updates) }()

	ctx, cancel := context.WithCancel(context.Background())
	finished := false
	err := e.Do(ctx, func(*snapshot.Cache) {
		cancel()
		time.Sleep(20 * time.Millisecond)
		finished = true
	})
	require.NoError(t, err)
	require.True(t, finished)
}
