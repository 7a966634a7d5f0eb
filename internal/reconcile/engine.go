// Package reconcile owns the snapshot cache and turns edit and deletion events
// into notifications.
//
// All cache access happens on the engine loop (Run). Other goroutines reach the
// cache through Do, or read the published Stats.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"msgwatch/internal/delivery"
	"msgwatch/internal/eventbus"
	"msgwatch/internal/notify"
	"msgwatch/internal/snapshot"
	"msgwatch/internal/storage"
	"msgwatch/internal/transport"
	"msgwatch/pkg/logx"
)

var ErrStopped = errors.New("engine stopped")

// Dispatcher delivers one rendered notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string, att snapshot.Attachment) delivery.Result
}

type Options struct {
	Log     logx.Logger
	Bus     eventbus.Bus
	Journal storage.Store // optional
	Now     func() time.Time
	NewID   func() string
}

// Stats are counters published after every handled update.
type Stats struct {
	Cache     snapshot.Stats `json:"cache"`
	Seen      uint64         `json:"seen"`
	Ignored   uint64         `json:"ignored"`
	Edits     uint64         `json:"edits"`
	Deletes   uint64         `json:"deletes"`
	Misses    uint64         `json:"misses"`
	Delivered uint64         `json:"delivered"`
	Failed    uint64         `json:"failed"`
	Panics    uint64         `json:"panics"`
	LastEvent time.Time      `json:"last_event"`
}

type Engine struct {
	cache *snapshot.Cache
	disp  Dispatcher
	log   logx.Logger
	bus   eventbus.Bus
	jrnl  storage.Store
	now   func() time.Time
	newID func() string

	ctrl chan func()
	done chan struct{}

	// Written only by the loop goroutine (or by handlers called directly in tests).
	st Stats

	published atomic.Pointer[Stats]
}

// New builds an engine around cache. The cache must not be used by anyone else.
func New(cache *snapshot.Cache, disp Dispatcher, opt Options) *Engine {
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.NewID == nil {
		opt.NewID = func() string { return uuid.NewString() }
	}
	e := &Engine{
		cache: cache,
		disp:  disp,
		log:   opt.Log,
		bus:   opt.Bus,
		jrnl:  opt.Journal,
		now:   opt.Now,
		newID: opt.NewID,
		ctrl:  make(chan func()),
		done:  make(chan struct{}),
	}
	e.publish()
	return e
}

// Run consumes updates until ctx is done or updates is closed. Updates are
// handled one at a time; a panic in a handler is logged and the loop goes on.
func (e *Engine) Run(ctx context.Context, updates <-chan transport.Update) error {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-e.ctrl:
			fn()
			e.publish()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			e.handle(ctx, u)
			e.publish()
		}
	}
}

func (e *Engine) handle(ctx context.Context, u transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			e.st.Panics++
			e.log.Error("update handler panic",
				logx.String("kind", string(u.Kind)),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	switch u.Kind {
	case transport.UpdateObserved:
		e.OnSeen(u.Message)
	case transport.UpdateEdited:
		e.OnEdited(ctx, u.Message)
	case transport.UpdateDeleted:
		e.OnDeleted(ctx, u.Deleted)
	default:
		e.log.Debug("update ignored", logx.String("kind", string(u.Kind)))
	}
}

// Do runs fn on the engine loop and waits for it. fn must not call Do. Once
// the loop has taken fn, Do waits for it to finish even if ctx is cancelled,
// so anything fn writes is visible to the caller on return.
func (e *Engine) Do(ctx context.Context, fn func(c *snapshot.Cache)) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn(e.cache)
	}
	select {
	case e.ctrl <- job:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// SetMaxPerScope changes the cache cap on the loop.
func (e *Engine) SetMaxPerScope(ctx context.Context, n int) error {
	return e.Do(ctx, func(c *snapshot.Cache) { c.SetMaxPerScope(n) })
}

// ScopeCounts returns the live entry count per scope, read on the loop.
func (e *Engine) ScopeCounts(ctx context.Context) (map[int64]int, error) {
	var out map[int64]int
	err := e.Do(ctx, func(c *snapshot.Cache) { out = c.ScopeCounts() })
	return out, err
}

// Stats returns the counters published after the last handled update.
func (e *Engine) Stats() Stats {
	if p := e.published.Load(); p != nil {
		return *p
	}
	return Stats{}
}

func (e *Engine) publish() {
	s := e.st
	s.Cache = e.cache.Stats()
	e.published.Store(&s)
}

// OnSeen caches an incoming message.
func (e *Engine) OnSeen(m *transport.Message) {
	if m == nil || (m.Sender == nil && m.Chat == nil) || m.Outgoing {
		e.st.Ignored++
		return
	}
	snap, ok := snapshot.FromMessage(m)
	if !ok {
		e.st.Ignored++
		return
	}
	e.st.Seen++
	e.st.LastEvent = e.now()
	e.put(snap)
}

// OnEdited notifies about an edit, then stores the new version.
func (e *Engine) OnEdited(ctx context.Context, m *transport.Message) {
	if m == nil || m.Outgoing || m.Chat == nil {
		e.st.Ignored++
		return
	}
	e.st.Edits++
	e.st.LastEvent = e.now()

	old, hit := e.cache.Get(m.Chat.ID, m.ID)
	after, _ := snapshot.FromMessage(m)

	before := notify.EditMissing
	scopeName, senderName := eventScope(m.Chat), eventSender(m.Sender)
	if hit {
		before = old.Text
		scopeName, senderName = old.ScopeName, old.SenderName
	} else {
		e.st.Misses++
	}

	text := notify.Edit(scopeName, senderName, before, after.Text)
	e.notify(ctx, "edit", target{
		scopeID:    m.Chat.ID,
		messageID:  m.ID,
		scopeName:  scopeName,
		senderName: senderName,
		hit:        hit,
		attachment: old.Attachment,
	}, text)

	e.put(after)
}

// OnDeleted notifies once per resolved deletion target. Messages without a
// chat are matched by id across every scope, and each match is its own target.
func (e *Engine) OnDeleted(ctx context.Context, msgs []transport.Message) {
	for i := range msgs {
		m := &msgs[i]
		e.st.Deletes++
		e.st.LastEvent = e.now()

		var found []snapshot.Snapshot
		if m.Chat != nil {
			if s, ok := e.cache.Pop(m.Chat.ID, m.ID); ok {
				found = append(found, s)
			}
		} else {
			found = e.cache.PopAllByMessageID(m.ID)
		}

		if len(found) == 0 {
			e.st.Misses++
			t := target{
				messageID:  m.ID,
				scopeName:  eventScope(m.Chat),
				senderName: eventSender(m.Sender),
			}
			if m.Chat != nil {
				t.scopeID = m.Chat.ID
			}
			e.notify(ctx, "delete", t, notify.Delete(t.scopeName, t.senderName, notify.DeleteMissing))
			continue
		}
		for _, s := range found {
			t := target{
				scopeID:    s.ScopeID,
				messageID:  s.MessageID,
				scopeName:  s.ScopeName,
				senderName: s.SenderName,
				hit:        true,
				attachment: s.Attachment,
			}
			e.notify(ctx, "delete", t, notify.Delete(s.ScopeName, s.SenderName, s.Text))
		}
	}
}

func (e *Engine) put(s snapshot.Snapshot) {
	evicted := e.cache.Put(s)
	if len(evicted) == 0 || e.bus == nil {
		return
	}
	scopes := make([]int64, 0, len(evicted))
	for id := range evicted {
		scopes = append(scopes, id)
	}
	slices.Sort(scopes)
	for _, id := range scopes {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.CacheEvicted,
			Time: e.now(),
			Data: eventbus.Eviction{ScopeID: id, Count: uint64(evicted[id])},
		})
	}
}

type target struct {
	scopeID    int64
	messageID  int
	scopeName  string
	senderName string
	hit        bool
	attachment snapshot.Attachment
}

func (e *Engine) notify(ctx context.Context, event string, t target, text string) {
	res := e.disp.Dispatch(ctx, text, t.attachment)
	id := e.newID()

	log := e.log.With(
		logx.String("id", id),
		logx.String("event", event),
		logx.Int64("scope_id", t.scopeID),
		logx.Int("message_id", t.messageID),
		logx.Bool("cache_hit", t.hit),
	)
	evType := eventbus.NotificationDelivered
	if res.Delivered {
		e.st.Delivered++
		log.Debug("notification delivered", logx.String("path", string(res.Path)))
	} else {
		e.st.Failed++
		evType = eventbus.NotificationFailed
		log.Warn("notification failed")
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: evType,
			Time: e.now(),
			Data: eventbus.Notification{
				ID:        id,
				Event:     event,
				ScopeID:   t.scopeID,
				MessageID: t.messageID,
				CacheHit:  t.hit,
				Path:      string(res.Path),
			},
		})
	}

	if e.jrnl != nil {
		err := e.jrnl.AppendJournal(ctx, storage.JournalEntry{
			ID:         id,
			At:         e.now(),
			Event:      event,
			ScopeID:    t.scopeID,
			MessageID:  t.messageID,
			ScopeName:  t.scopeName,
			SenderName: t.senderName,
			CacheHit:   t.hit,
			Media:      mediaName(t.attachment),
			Delivered:  res.Delivered,
			Path:       string(res.Path),
		})
		if err != nil {
			log.Warn("journal append failed", logx.Err(err))
		}
	}
}

func mediaName(a snapshot.Attachment) string {
	if a.IsZero() {
		return ""
	}
	return a.Kind.String()
}

// eventScope and eventSender name the parties of an event that has no cached
// snapshot. Missing parties render as "?".
func eventScope(c *transport.Chat) string {
	if c == nil {
		return notify.UnknownName
	}
	return snapshot.ScopeName(c)
}

func eventSender(s *transport.Sender) string {
	if s == nil {
		return notify.UnknownName
	}
	return snapshot.SenderName(s)
}

// String is used by /stats and the scheduled report.
func (s Stats) String() string {
	return fmt.Sprintf("cached=%d scopes=%d evicted=%d seen=%d edits=%d deletes=%d misses=%d delivered=%d failed=%d",
		s.Cache.Entries, s.Cache.Scopes, s.Cache.Evicted, s.Seen, s.Edits, s.Deletes, s.Misses, s.Delivered, s.Failed)
}
