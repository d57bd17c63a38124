package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Scheduler controls the one-shot trigger service executing reminder
	// and maintenance jobs.
	Scheduler SchedulerConfig `json:"scheduler"`

	Jobs JobsConfig `json:"jobs"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OperatorChatID receives job summaries and mirrored warnings.
	OperatorChatID int64 `json:"operator_chat_id"`
	FloodRetries   int   `json:"flood_retries,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors log lines at or above min_level into the operator chat.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the sqlite persistence layer.
//
// Example:
//
//	"storage": { "path": "./remindbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the trigger/executor service.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
	// DefaultTimeout bounds a single job execution. "0s" disables it.
	DefaultTimeout string `json:"default_timeout,omitempty"`
}

// JobsConfig controls the built-in maintenance jobs.
type JobsConfig struct {
	Backup    BackupJobConfig    `json:"backup"`
	Digest    DigestJobConfig    `json:"digest"`
	Stats     StatsJobConfig     `json:"stats"`
	Recovery  RecoveryConfig     `json:"recovery"`
	Retention RetentionJobConfig `json:"retention"`
}

type BackupJobConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
	// Interval between backups, Go duration string. Default "24h".
	Interval string `json:"interval,omitempty"`
}

type DigestJobConfig struct {
	Enabled bool `json:"enabled"`
}

type StatsJobConfig struct {
	Enabled bool `json:"enabled"`
}

// RecoveryConfig controls the post-start reschedule pass.
type RecoveryConfig struct {
	// Delay after startup before recovery fires. Default "10s".
	Delay string `json:"delay,omitempty"`
}

// RetentionJobConfig controls the completed-reminder sweep.
type RetentionJobConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a cron expression. Default "0 30 3 * * *" (daily at 03:30).
	Spec string `json:"spec,omitempty"`
	// MaxAge keeps completed reminders younger than this. Default "720h".
	MaxAge string `json:"max_age,omitempty"`
}
