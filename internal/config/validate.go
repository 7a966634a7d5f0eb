package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrNoToken = errors.New("telegram.token is required")

// Validate checks structural constraints. Schedule syntax is checked by the
// report package.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, ErrNoToken)
	}
	if c.Telegram.UpdateBuffer < 0 {
		errs = append(errs, errors.New("telegram.update_buffer must be >= 0"))
	}
	if g := strings.TrimSpace(c.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: %w", err))
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Cache.MaxPerScope < 0 {
		errs = append(errs, errors.New("cache.max_per_scope must be >= 0"))
	}
	if _, err := ParseDurationField("delivery.timeout", c.Delivery.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.Delivery.RatePerSec < 0 {
		errs = append(errs, errors.New("delivery.rate_per_sec must be >= 0"))
	}
	if c.PreferSelf() && c.SelfChatID() == 0 {
		errs = append(errs, errors.New("no delivery target: set telegram.owner_user_ids or delivery.bot_token + delivery.chat_id"))
	}
	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, errors.New("storage.path is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		if s.Retention < 0 {
			errs = append(errs, errors.New("storage.retention must be >= 0"))
		}
	}
	if r := c.Report; r != nil && r.Enabled && strings.TrimSpace(r.Cron) == "" {
		errs = append(errs, errors.New("report.cron is required when report is enabled"))
	}
	return errors.Join(errs...)
}
