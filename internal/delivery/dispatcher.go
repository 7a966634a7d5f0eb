// Package delivery sends rendered notifications through an ordered chain of
// channels and reports whether any of them succeeded.
package delivery

import (
	"context"
	"fmt"
	"os"

	"msgwatch/internal/snapshot"
	"msgwatch/internal/transport"
	"msgwatch/pkg/logx"
	"msgwatch/pkg/tgui"
)

// Source is the part of the source transport used for self-delivery and for
// resolving attachment references to bytes.
type Source interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	SendMedia(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error)
	Download(ctx context.Context, fileID, localPath string) error
}

// Channel is the secondary notification channel (the Bot API client).
type Channel interface {
	Configured() bool
	SendMessage(ctx context.Context, text string) error
	SendFile(ctx context.Context, kind snapshot.Kind, path, caption string) error
}

type Config struct {
	// SelfChatID is the operator's private chat on the source transport. 0 disables self-delivery.
	SelfChatID int64
	// PreferSelf makes self-delivery the primary channel.
	PreferSelf bool
	// TempDir holds downloaded attachments while they are re-uploaded. "" means os.TempDir().
	TempDir string
}

// Path names the step that delivered a notification.
type Path string

const (
	PathNone      Path = ""
	PathSelfMedia Path = "self_media"
	PathBotMedia  Path = "bot_media"
	PathSelfText  Path = "self_text"
	PathBotText   Path = "bot_text"
)

type Result struct {
	Delivered bool
	Path      Path
}

type attempt struct {
	path Path
	run  func(ctx context.Context, text string, att snapshot.Attachment) bool
}

// Dispatcher is stateless apart from its collaborators and safe for concurrent use.
type Dispatcher struct {
	src Source
	bot Channel
	cfg Config
	log logx.Logger

	chain []attempt
}

func New(src Source, bot Channel, cfg Config, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{src: src, bot: bot, cfg: cfg, log: log}
	d.chain = []attempt{
		{PathSelfMedia, d.selfMedia},
		{PathBotMedia, d.botMedia},
		{PathSelfText, d.selfText},
		{PathBotText, d.botText},
	}
	return d
}

// SelfAvailable reports whether the source transport can be used for delivery.
func (d *Dispatcher) SelfAvailable() bool { return d.src != nil && d.cfg.SelfChatID != 0 }

func (d *Dispatcher) botAvailable() bool { return d.bot != nil && d.bot.Configured() }

// selfPrimary reports whether text-only delivery goes through the source transport.
func (d *Dispatcher) selfPrimary() bool {
	return d.SelfAvailable() && (d.cfg.PreferSelf || !d.botAvailable())
}

// Dispatch tries every step in order and stops at the first success. It never
// returns an error; failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, att snapshot.Attachment) Result {
	for _, a := range d.chain {
		if d.try(ctx, a, text, att) {
			return Result{Delivered: true, Path: a.path}
		}
	}
	d.log.Warn("notification not delivered",
		logx.String("kind", att.Kind.String()),
		logx.Bool("self", d.SelfAvailable()),
		logx.Bool("bot", d.botAvailable()),
	)
	return Result{}
}

func (d *Dispatcher) try(ctx context.Context, a attempt, text string, att snapshot.Attachment) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("delivery step panic", logx.String("path", string(a.path)), logx.Any("panic", r))
			ok = false
		}
	}()
	return a.run(ctx, text, att)
}

func (d *Dispatcher) selfMedia(ctx context.Context, text string, att snapshot.Attachment) bool {
	if !att.Kind.Deliverable() || !d.cfg.PreferSelf || !d.SelfAvailable() {
		return false
	}
	to := transport.ChatTarget{ChatID: d.cfg.SelfChatID}
	opt := &transport.SendOptions{ParseMode: tgui.ParseModeHTML}
	media := transport.MediaRef{FileID: att.Ref, Kind: att.Kind.String()}

	caption := text
	if !att.Kind.Captioned() {
		caption = ""
	}
	if _, err := d.src.SendMedia(ctx, to, media, caption, opt); err != nil {
		d.log.Debug("self media failed", logx.String("kind", att.Kind.String()), logx.Err(err))
		return false
	}
	if caption == "" && text != "" {
		opt.DisablePreview = true
		if _, err := d.src.SendText(ctx, to, text, opt); err != nil {
			// Without the text the media alone says nothing; let later steps retry.
			d.log.Debug("self media text failed", logx.Err(err))
			return false
		}
	}
	return true
}

func (d *Dispatcher) botMedia(ctx context.Context, text string, att snapshot.Attachment) bool {
	if !att.Kind.Deliverable() || d.src == nil || !d.botAvailable() {
		return false
	}
	path, cleanup, err := d.download(ctx, att)
	defer cleanup()
	if err != nil {
		d.log.Debug("attachment download failed", logx.String("kind", att.Kind.String()), logx.Err(err))
		return false
	}
	if err := d.bot.SendFile(ctx, att.Kind, path, text); err != nil {
		d.log.Debug("bot media failed", logx.String("kind", att.Kind.String()), logx.Err(err))
		return false
	}
	return true
}

// download fetches att into a fresh temp file. cleanup is always non-nil and
// removes the file.
func (d *Dispatcher) download(ctx context.Context, att snapshot.Attachment) (string, func(), error) {
	f, err := os.CreateTemp(d.cfg.TempDir, "msgwatch-*"+att.Kind.Ext())
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			d.log.Warn("temp file not removed", logx.String("path", path), logx.Err(err))
		}
	}
	if err := f.Close(); err != nil {
		return path, cleanup, err
	}
	if err := d.src.Download(ctx, att.Ref, path); err != nil {
		return path, cleanup, err
	}
	return path, cleanup, nil
}

func (d *Dispatcher) selfText(ctx context.Context, text string, _ snapshot.Attachment) bool {
	if !d.selfPrimary() {
		return false
	}
	to := transport.ChatTarget{ChatID: d.cfg.SelfChatID}
	opt := &transport.SendOptions{ParseMode: tgui.ParseModeHTML, DisablePreview: true}
	if _, err := d.src.SendText(ctx, to, text, opt); err != nil {
		d.log.Debug("self text failed", logx.Err(err))
		return false
	}
	return true
}

// botText is the primary text channel when self-delivery is not preferred,
// and the fallback when self text failed.
func (d *Dispatcher) botText(ctx context.Context, text string, _ snapshot.Attachment) bool {
	if !d.botAvailable() {
		return false
	}
	if err := d.bot.SendMessage(ctx, text); err != nil {
		d.log.Debug("bot text failed", logx.Err(err))
		return false
	}
	return true
}
