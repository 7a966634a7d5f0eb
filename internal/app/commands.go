package app

import (
	"context"
	"fmt"
	"time"

	"msgwatch/internal/config"
	"msgwatch/internal/reconcile"
	"msgwatch/internal/report"
	"msgwatch/internal/storage"
	"msgwatch/internal/transport"
	"msgwatch/pkg/logx"
	"msgwatch/pkg/tgui"
)

// recentInStats is how many journal entries /stats and the report show.
const recentInStats = 5

type textSender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// commands answers /start, /myid and /stats. It runs off the engine loop and
// reads engine state through Engine.Do.
type commands struct {
	send    textSender
	config  func() *config.Config
	engine  *reconcile.Engine
	store   storage.Store
	loc     func() *time.Location
	started time.Time
	log     logx.Logger
}

var htmlNoPreview = &transport.SendOptions{ParseMode: tgui.ParseModeHTML, DisablePreview: true}

func (h *commands) handle(ctx context.Context, cmd transport.Command) {
	log := h.log.With(logx.String("cmd", cmd.Name), logx.Int64("chat_id", cmd.ChatID), logx.Int64("from_id", cmd.FromID))

	var reply string
	switch cmd.Name {
	case "start":
		reply = startText
	case "myid":
		reply = myIDText(cmd)
	case "stats":
		if !h.config().IsOwner(cmd.FromID) {
			log.Info("stats denied")
			reply = "This command is for the bot owner."
			break
		}
		reply = h.summary(ctx, "msgwatch stats")
	default:
		log.Debug("unknown command")
		return
	}

	if _, err := h.send.SendText(ctx, transport.ChatTarget{ChatID: cmd.ChatID}, reply, htmlNoPreview); err != nil {
		log.Warn("command reply failed", logx.Err(err))
		return
	}
	log.Debug("command handled")
}

var startText = tgui.Lines(
	tgui.B("msgwatch"),
	"Watches the chats this bot is connected to and reports edited and deleted messages.",
	"",
	"/myid shows the id of this chat, for <code>delivery.chat_id</code>.",
	"/stats shows cache and delivery counters (owners only).",
).String()

func myIDText(cmd transport.Command) string {
	lines := []tgui.H{tgui.H("Chat ID: ") + tgui.Code(fmt.Sprint(cmd.ChatID))}
	if cmd.FromID != 0 {
		lines = append(lines, tgui.H("Your user ID: ")+tgui.Code(fmt.Sprint(cmd.FromID)))
	}
	return tgui.Lines(lines...).String()
}

// summary renders the engine counters, per-scope counts and the latest journal
// entries. Parts that cannot be read are left out.
func (h *commands) summary(ctx context.Context, title string) string {
	s := report.Summary{Title: title}
	if h.loc != nil {
		s.Loc = h.loc()
	}

	// ScopeCounts runs on the loop, so the stats read after it are at least as new.
	if counts, err := h.engine.ScopeCounts(ctx); err != nil {
		h.log.Warn("scope counts unavailable", logx.Err(err))
	} else {
		s.Counts = counts
	}
	s.Stats = h.engine.Stats()
	if h.store != nil {
		if recent, err := h.store.RecentJournal(ctx, recentInStats); err != nil {
			h.log.Warn("journal read failed", logx.Err(err))
		} else {
			s.Recent = recent
		}
	}

	text := report.Render(s)
	if !h.started.IsZero() {
		text += "\n" + tgui.Esc("Uptime: "+time.Since(h.started).Truncate(time.Second).String()).String()
	}
	return text
}

// sendReport is the scheduled report job. It goes to the first owner's chat.
func (h *commands) sendReport(ctx context.Context) error {
	text := h.summary(ctx, "msgwatch report")
	st := h.engine.Stats()
	h.log.Info("stats report", logx.String("stats", st.String()))

	to := h.config().SelfChatID()
	if to == 0 {
		return nil
	}
	_, err := h.send.SendText(ctx, transport.ChatTarget{ChatID: to}, text, htmlNoPreview)
	return err
}
