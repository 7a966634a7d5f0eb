package config

import "strings"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Cache    CacheConfig    `json:"cache"`
	Delivery DeliveryConfig `json:"delivery"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Report   *ReportConfig  `json:"report,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserIDs are the operator accounts. The first one receives
	// self-delivered notifications and the scheduled report; messages sent by
	// any of them count as outgoing.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// UpdateBuffer is the capacity of the channel between the adapter and the engine.
	UpdateBuffer int `json:"update_buffer,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// CacheConfig sizes the in-memory snapshot cache. 0 means the default (1000).
type CacheConfig struct {
	MaxPerScope int `json:"max_per_scope"`
}

// DeliveryConfig configures the secondary Bot API channel.
//
// When both bot_token and chat_id are set the secondary channel is primary;
// otherwise notifications go to the first owner's private chat with the bot.
type DeliveryConfig struct {
	BotToken   string `json:"bot_token,omitempty"`
	ChatID     string `json:"chat_id,omitempty"`
	APIBase    string `json:"api_base,omitempty"`
	Timeout    string `json:"timeout,omitempty"` // Go duration string, default 30s
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	TempDir    string `json:"temp_dir,omitempty"`
}

// StorageConfig controls the delivery journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/journal.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   int    `json:"retention,omitempty"`
}

// ReportConfig schedules the periodic stats report.
type ReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Cron     string `json:"cron"`               // standard 5-field spec or descriptor like "@daily"
	Timezone string `json:"timezone,omitempty"` // IANA name, default local
}

// PreferSelf reports whether self-delivery is the primary channel, i.e. the
// secondary channel has no credentials.
func (c *Config) PreferSelf() bool {
	return strings.TrimSpace(c.Delivery.BotToken) == "" || strings.TrimSpace(c.Delivery.ChatID) == ""
}

// SelfChatID is the private chat used for self-delivery (0 when no owner is set).
func (c *Config) SelfChatID() int64 {
	if len(c.Telegram.OwnerUserIDs) == 0 {
		return 0
	}
	return c.Telegram.OwnerUserIDs[0]
}

// IsOwner reports whether id is one of the configured owners.
func (c *Config) IsOwner(id int64) bool {
	for _, o := range c.Telegram.OwnerUserIDs {
		if o == id {
			return true
		}
	}
	return false
}
