package jobs

import "time"

// Settings exposes the feature toggles internal jobs consult at run
// time. The concrete implementation sits on top of the live config so
// toggles apply without a restart.
type Settings interface {
	DigestEnabled() bool
	StatsEnabled() bool
	BackupEnabled() bool
	BackupInterval() time.Duration
	BackupDir() string
}
