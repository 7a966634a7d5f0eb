// Package adapter is the telebot-based source transport. It turns Telegram
// updates (regular chats, channels and Business connections) into
// transport.Update values, and performs self-delivery sends and downloads.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "msgwatch/internal/runtime/supervisor"
	"msgwatch/internal/transport"
	"msgwatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// OwnerIDs are treated as "self": their messages are outgoing.
	OwnerIDs []int64
	// Offline skips the getMe call; used by tests.
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	owners atomic.Pointer[map[int64]struct{}]

	runMu   sync.Mutex
	running bool
	out     chan<- transport.Update
	ctx     context.Context
	sup     *rtsup.Supervisor

	dropped atomic.Uint64
}

var _ transport.Adapter = (*Adapter)(nil)

// observedEndpoints are the content handlers for new messages. Telebot routes a
// message to the most specific endpoint, so every content kind is listed.
var observedEndpoints = []string{
	tele.OnText, tele.OnPhoto, tele.OnVideo, tele.OnDocument, tele.OnVoice,
	tele.OnVideoNote, tele.OnAudio, tele.OnSticker, tele.OnAnimation,
	tele.OnPoll, tele.OnContact, tele.OnLocation, tele.OnVenue, tele.OnDice,
	tele.OnChannelPost,
}

var commands = []tele.Command{
	{Text: "start", Description: "What this bot does"},
	{Text: "myid", Description: "Show this chat's id"},
	{Text: "stats", Description: "Cache and delivery stats (owners only)"},
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowedUpdates},
		Offline: cfg.Offline,
		// Ordered delivery: an edit must never overtake the message it edits.
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	a.SetOwners(cfg.OwnerIDs)
	a.registerHandlers()
	return a, nil
}

var allowedUpdates = []string{
	"message", "edited_message", "channel_post", "edited_channel_post",
	"business_message", "edited_business_message", "deleted_business_messages",
}

// SetOwners replaces the owner set. Safe to call while running.
func (a *Adapter) SetOwners(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	a.owners.Store(&m)
}

func (a *Adapter) isSelf(id int64) bool {
	if a.bot != nil && a.bot.Me != nil && a.bot.Me.ID == id {
		return true
	}
	if p := a.owners.Load(); p != nil {
		_, ok := (*p)[id]
		return ok
	}
	return false
}

// BotUsername is empty until the bot is online.
func (a *Adapter) BotUsername() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) registerHandlers() {
	observed := func(c tele.Context) error {
		a.emit(transport.UpdateObserved, c.Message())
		return nil
	}
	for _, ep := range observedEndpoints {
		a.bot.Handle(ep, observed)
	}
	a.bot.Handle(tele.OnEdited, func(c tele.Context) error {
		a.emit(transport.UpdateEdited, c.Update().EditedMessage)
		return nil
	})
	a.bot.Handle(tele.OnEditedChannelPost, func(c tele.Context) error {
		a.emit(transport.UpdateEdited, c.Update().EditedChannelPost)
		return nil
	})

	a.bot.Handle(tele.OnBusinessMessage, func(c tele.Context) error {
		a.emit(transport.UpdateObserved, c.Update().BusinessMessage)
		return nil
	})
	a.bot.Handle(tele.OnEditedBusinessMessage, func(c tele.Context) error {
		a.emit(transport.UpdateEdited, c.Update().EditedBusinessMessage)
		return nil
	})
	a.bot.Handle(tele.OnDeletedBusinessMessages, func(c tele.Context) error {
		if d := c.Update().DeletedBusinessMessages; d != nil {
			a.sendUpdate(transport.Update{Kind: transport.UpdateDeleted, Deleted: convertDeleted(d.Chat, d.MessageIDs)})
		}
		return nil
	})

	for _, cmd := range commands {
		name := cmd.Text
		a.bot.Handle("/"+name, func(c tele.Context) error {
			m := c.Message()
			if m == nil || m.Chat == nil {
				return nil
			}
			up := transport.Update{Kind: transport.UpdateCommand, Command: &transport.Command{
				Name:   name,
				Args:   strings.TrimSpace(m.Payload),
				ChatID: m.Chat.ID,
			}}
			if m.Sender != nil {
				up.Command.FromID = m.Sender.ID
			}
			a.sendUpdate(up)
			return nil
		})
	}
}

func (a *Adapter) emit(kind transport.UpdateKind, m *tele.Message) {
	if m == nil {
		return
	}
	msg := convertMessage(m, a.isSelf)
	a.sendUpdate(transport.Update{Kind: kind, Message: &msg})
}

// sendUpdate blocks while the consumer is busy so no snapshot is lost; the
// poller stalls instead. Updates arriving while stopped are dropped.
func (a *Adapter) sendUpdate(up transport.Update) {
	a.runMu.Lock()
	out, ctx := a.out, a.ctx
	a.runMu.Unlock()
	if out == nil {
		a.dropped.Add(1)
		return
	}
	select {
	case out <- up:
	case <-ctx.Done():
		a.dropped.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	a.ctx = a.sup.Context()
	a.out = out
	sup := a.sup
	a.runMu.Unlock()

	if !a.cfg.Offline {
		if err := a.bot.SetCommands(commands); err != nil {
			a.log.Warn("set commands failed", logx.Err(err))
		}
	}

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until Stop. Restart it if it returns while still running.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started", logx.String("bot", a.BotUsername()))
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	wasRunning := a.running
	a.running = false
	a.sup = nil
	a.out = nil
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates", a.dropped.Load()))
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates is still long-polling.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop incomplete", logx.Err(err))
	}
	return nil
}

// Dropped returns the number of updates that arrived while stopped.
func (a *Adapter) Dropped() uint64 { return a.dropped.Load() }
