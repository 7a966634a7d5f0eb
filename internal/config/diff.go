package config

import (
	"reflect"
	"sort"
	"strings"

	"msgwatch/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// attrs for logging. Tokens and chat ids are reported only as "set".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		ot.UpdateBuffer != nt.UpdateBuffer {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Cache != newCfg.Cache {
		changed = append(changed, "cache")
		attrs = append(attrs, logx.Int("cache.max_per_scope", newCfg.Cache.MaxPerScope))
	}

	od, nd := oldCfg.Delivery, newCfg.Delivery
	if od != nd {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.bot_token_set", strings.TrimSpace(nd.BotToken) != ""),
			logx.Bool("delivery.chat_id_set", strings.TrimSpace(nd.ChatID) != ""),
			logx.Bool("delivery.prefer_self", newCfg.PreferSelf()),
			logx.String("delivery.timeout", strings.TrimSpace(nd.Timeout)),
			logx.Int("delivery.rate_per_sec", nd.RatePerSec),
		)
	}

	var oldS, newS StorageConfig
	if oldCfg.Storage != nil {
		oldS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newS = *newCfg.Storage
	}
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
			logx.Int("storage.retention", newS.Retention),
		)
	}

	var oldR, newR ReportConfig
	if oldCfg.Report != nil {
		oldR = *oldCfg.Report
	}
	if newCfg.Report != nil {
		newR = *newCfg.Report
	}
	if oldR != newR {
		changed = append(changed, "report")
		attrs = append(attrs,
			logx.Bool("report.enabled", newR.Enabled),
			logx.String("report.cron", newR.Cron),
			logx.String("report.timezone", newR.Timezone),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed settings that only take effect after a restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		out = append(out, "telegram.token")
	}
	if oldCfg.Telegram.UpdateBuffer != newCfg.Telegram.UpdateBuffer {
		out = append(out, "telegram.update_buffer")
	}
	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram.poll_timeout")
	}
	// The first owner is the self-delivery target.
	if oldCfg.SelfChatID() != newCfg.SelfChatID() {
		out = append(out, "telegram.owner_user_ids[0]")
	}
	if oldCfg.Delivery != newCfg.Delivery {
		out = append(out, "delivery")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		out = append(out, "storage")
	}
	return out
}
