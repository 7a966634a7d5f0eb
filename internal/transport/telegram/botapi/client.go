// Package botapi is the secondary notification channel: a second bot, driven
// through telebot without a poller, that sends text and uploads local files to
// one configured chat.
package botapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"msgwatch/internal/snapshot"
	"msgwatch/internal/transport/telegram"
	"msgwatch/pkg/logx"
)

var ErrNotConfigured = errors.New("bot api channel not configured")

type Config struct {
	Token  string
	ChatID string
	// BaseURL overrides the Bot API endpoint; empty means telebot's default.
	BaseURL    string
	Timeout    time.Duration
	RatePerSec int
}

// chatRecipient addresses the configured chat as written: a numeric id or an
// @channel username.
type chatRecipient string

func (r chatRecipient) Recipient() string { return string(r) }

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	bot     *tele.Bot
	to      chatRecipient
	limiter *rate.Limiter
	log     logx.Logger
}

// New builds the client. With an empty token or chat id it returns a client
// that reports !Configured.
func New(cfg Config, log logx.Logger) (*Client, error) {
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		cfg:     cfg,
		to:      chatRecipient(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}
	if cfg.Token == "" || cfg.ChatID == "" {
		return c, nil
	}

	// Offline skips getMe. The bot is never started, so nothing polls.
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.BaseURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("botapi: %w", redact(err, cfg.Token))
	}
	c.bot = b
	return c, nil
}

// Configured reports whether both the token and the target chat are set.
func (c *Client) Configured() bool {
	return c != nil && c.bot != nil
}

func (c *Client) options() *tele.SendOptions {
	return &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
}

// SendMessage sends HTML text with link previews disabled.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	return c.send(ctx, "sendMessage", text)
}

// SendFile uploads the file at path as kind. Kinds without captions get the
// text as a separate message once the upload succeeded.
func (c *Client) SendFile(ctx context.Context, kind snapshot.Kind, path, caption string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if !kind.Deliverable() {
		return fmt.Errorf("botapi: unsupported media kind %q", kind)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("botapi: upload: %w", err)
	}
	what, err := telegram.Sendable(kind, tele.FromDisk(path), caption)
	if err != nil {
		return err
	}
	if err := c.send(ctx, kind.Method(), what); err != nil {
		return err
	}

	if !kind.Captioned() && caption != "" {
		if err := c.send(ctx, "sendMessage", caption); err != nil {
			// The media itself arrived.
			c.log.Warn("caption follow-up failed", logx.String("kind", kind.String()), logx.Err(err))
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method string, what interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.bot.Send(c.to, what, c.options()); err != nil {
		// Transport errors embed the request URL, which carries the token.
		return fmt.Errorf("telegram %s: %w", method, redact(err, c.cfg.Token))
	}
	return nil
}

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, token, "<redacted>"))
}
