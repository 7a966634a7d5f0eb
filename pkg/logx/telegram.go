package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"msgwatch/internal/transport"
	"msgwatch/pkg/tgui"
)

const (
	telegramQueue    = 256
	telegramMaxRunes = 3500
	telegramMaxValue = 300
)

// telegramSink forwards log lines at or above minLevel to a chat. Writes never
// block: lines over the rate limit or beyond a full queue are dropped.
type telegramSink struct {
	sender Sender
	chatID atomic.Int64

	mu       sync.Mutex
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue     chan string
	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	dropped   atomic.Uint64
}

func newTelegramSink(sender Sender) *telegramSink {
	return &telegramSink{sender: sender, minLevel: zerolog.WarnLevel, queue: make(chan string, telegramQueue)}
}

func (t *telegramSink) configure(min zerolog.Level, lim *rate.Limiter) {
	t.mu.Lock()
	t.minLevel, t.limiter = min, lim
	t.mu.Unlock()
	t.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.done = make(chan struct{})
		go t.run(ctx)
	})
}

func (t *telegramSink) run(ctx context.Context) {
	defer close(t.done)
	opt := &transport.SendOptions{ParseMode: tgui.ParseModeHTML, DisablePreview: true}
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-t.queue:
			chatID := t.chatID.Load()
			if chatID == 0 {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, _ = t.sender.SendText(sctx, transport.ChatTarget{ChatID: chatID}, line, opt)
			cancel()
		}
	}
}

func (t *telegramSink) close() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

func (t *telegramSink) Write(p []byte) (int, error) { return t.WriteLevel(zerolog.InfoLevel, p) }

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	min, lim := t.minLevel, t.limiter
	t.mu.Unlock()

	if level < min || t.chatID.Load() == 0 || lim == nil || !lim.Allow() {
		return len(p), nil
	}
	select {
	case t.queue <- formatTelegramLine(p):
	default:
		t.dropped.Add(1)
	}
	return len(p), nil
}

// formatTelegramLine renders one JSON log line as HTML: the level and message
// in bold, then the remaining keys sorted, one per line.
func formatTelegramLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return tgui.Esc(tgui.TruncRunes(strings.TrimSpace(string(p)), telegramMaxRunes)).String()
	}
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)
	delete(m, "level")
	delete(m, "message")
	delete(m, "time")

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []tgui.H{tgui.B(strings.ToUpper(lvl) + " " + msg)}
	for _, k := range keys {
		v := tgui.TruncRunes(fmt.Sprint(m[k]), telegramMaxValue)
		lines = append(lines, tgui.Code(k)+" "+tgui.Esc(v))
	}
	out := tgui.Lines(lines...).String()
	if len([]rune(out)) > telegramMaxRunes {
		// Cutting HTML could leave a tag open; fall back to the escaped plain line.
		return tgui.Esc(tgui.TruncRunes(strings.ToUpper(lvl)+" "+msg, telegramMaxRunes)).String()
	}
	return out
}
