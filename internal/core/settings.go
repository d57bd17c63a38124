package core

import (
	"sync"
	"time"

	"remindbot/internal/config"
)

const settingsCacheTTL = 30 * time.Second

// Settings adapts the live config into the toggle surface the internal
// jobs consult. Parsed values are cached briefly so hot paths don't
// re-parse duration strings on every fire.
type Settings struct {
	cfgm *config.ConfigManager

	mu      sync.Mutex
	cached  settingsSnapshot
	expires time.Time
}

type settingsSnapshot struct {
	digestEnabled  bool
	statsEnabled   bool
	backupEnabled  bool
	backupInterval time.Duration
	backupDir      string
}

func NewSettings(cfgm *config.ConfigManager) *Settings {
	return &Settings{cfgm: cfgm}
}

func (s *Settings) snapshot() settingsSnapshot {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.expires) {
		return s.cached
	}

	cfg := s.cfgm.Get()
	snap := settingsSnapshot{
		backupInterval: 24 * time.Hour,
		backupDir:      "./backups",
	}
	if cfg != nil {
		snap.digestEnabled = cfg.Jobs.Digest.Enabled
		snap.statsEnabled = cfg.Jobs.Stats.Enabled
		snap.backupEnabled = cfg.Jobs.Backup.Enabled
		if d, err := config.ParseDurationOrDefault("jobs.backup.interval", cfg.Jobs.Backup.Interval, 24*time.Hour); err == nil && d > 0 {
			snap.backupInterval = d
		}
		if cfg.Jobs.Backup.Dir != "" {
			snap.backupDir = cfg.Jobs.Backup.Dir
		}
	}
	s.cached = snap
	s.expires = now.Add(settingsCacheTTL)
	return snap
}

// Invalidate drops the cache; called on config reload.
func (s *Settings) Invalidate() {
	s.mu.Lock()
	s.expires = time.Time{}
	s.mu.Unlock()
}

func (s *Settings) DigestEnabled() bool           { return s.snapshot().digestEnabled }
func (s *Settings) StatsEnabled() bool            { return s.snapshot().statsEnabled }
func (s *Settings) BackupEnabled() bool           { return s.snapshot().backupEnabled }
func (s *Settings) BackupInterval() time.Duration { return s.snapshot().backupInterval }
func (s *Settings) BackupDir() string             { return s.snapshot().backupDir }
