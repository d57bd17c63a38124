package config

import (
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// safe structured attrs for logging (never includes the bot token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if (strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") ||
		oldCfg.Telegram.OperatorChatID != newCfg.Telegram.OperatorChatID ||
		oldCfg.Telegram.FloodRetries != newCfg.Telegram.FloodRetries {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.operator_chat_set", newCfg.Telegram.OperatorChatID != 0),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.Int("scheduler.queue_size", newCfg.Scheduler.QueueSize),
			logx.String("scheduler.default_timeout", strings.TrimSpace(newCfg.Scheduler.DefaultTimeout)),
		)
	}

	if oldCfg.Jobs != newCfg.Jobs {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Bool("jobs.backup_enabled", newCfg.Jobs.Backup.Enabled),
			logx.String("jobs.backup_interval", strings.TrimSpace(newCfg.Jobs.Backup.Interval)),
			logx.Bool("jobs.digest_enabled", newCfg.Jobs.Digest.Enabled),
			logx.Bool("jobs.stats_enabled", newCfg.Jobs.Stats.Enabled),
			logx.String("jobs.recovery_delay", strings.TrimSpace(newCfg.Jobs.Recovery.Delay)),
			logx.Bool("jobs.retention_enabled", newCfg.Jobs.Retention.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
