package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/remind"
	"remindbot/internal/services/notify"
	"remindbot/internal/services/scheduler"
	"remindbot/pkg/logx"
)

// Backup snapshots every reminder to a timestamped JSON file and chains
// the next run. Restore feeds such a file back through the store.
type Backup struct {
	store    remind.Store
	recovery *Recovery
	notify   *notify.Service
	log      logx.Logger
	now      func() time.Time
}

func NewBackup(store remind.Store, recovery *Recovery, notifier *notify.Service, log logx.Logger) *Backup {
	return &Backup{store: store, recovery: recovery, notify: notifier, log: log, now: time.Now}
}

// WithClock overrides the clock; tests only.
func (b *Backup) WithClock(now func() time.Time) *Backup {
	b.now = now
	return b
}

// Snapshot writes all reminders, active and completed, to a new file
// under dir and returns its path.
func (b *Backup) Snapshot(ctx context.Context, dir string) (string, int, error) {
	all, err := b.store.All(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("jobs: backup: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("jobs: backup dir: %w", err)
	}

	name := fmt.Sprintf("reminders-%s.json", b.now().UTC().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	buf, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("jobs: backup encode: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return "", 0, fmt.Errorf("jobs: backup write: %w", err)
	}

	b.log.Info("backup written", logx.String("path", path), logx.Int("reminders", len(all)))
	return path, len(all), nil
}

// Restore loads a snapshot file, upserts every reminder it contains and
// then runs the reminder recovery pass so fire jobs match the restored
// state.
func (b *Backup) Restore(ctx context.Context, path string) (int, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("jobs: restore read: %w", err)
	}
	var rs []remind.Reminder
	if err := json.Unmarshal(buf, &rs); err != nil {
		return 0, fmt.Errorf("jobs: restore decode: %w", err)
	}

	restored := 0
	for i := range rs {
		rs[i].Normalize()
		if err := b.store.Upsert(ctx, &rs[i]); err != nil {
			b.log.Warn("restore upsert failed", logx.String("reminder", rs[i].ID), logx.Err(err))
			continue
		}
		restored++
	}

	if _, _, _, err := b.recovery.RecoverReminders(ctx); err != nil {
		return restored, err
	}
	b.log.Info("restore finished", logx.String("path", path), logx.Int("restored", restored))
	return restored, nil
}

// NewBackupProcessor builds the locked backup-job processor. Disabled
// backups still advance the chain so a later enable picks up without a
// restart.
func NewBackupProcessor(backup *Backup, locks *LockManager, lastRun LastRunStore, settings Settings, notifier *notify.Service, log logx.Logger) scheduler.Processor {
	return func(ctx context.Context, payload map[string]string) error {
		ok, err := locks.ShouldExecute(ctx, JobBackup, payload[PayloadTriggerID])
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if settings.BackupEnabled() {
			path, count, err := backup.Snapshot(ctx, settings.BackupDir())
			if err != nil {
				notifier.Operator(ctx, notify.PriorityHigh, "Backup failed: "+err.Error())
				return err
			}
			notifier.Operator(ctx, notify.PriorityInfo, fmt.Sprintf(
				"Backup done: %d reminder(s) written to %s.", count, path))
		} else {
			log.Debug("backup disabled; skipping snapshot")
		}

		now := backup.now().UTC()
		if err := locks.Acquire(ctx, JobBackup, uuid.NewString(), now.Add(settings.BackupInterval())); err != nil {
			return err
		}
		return lastRun.Set(ctx, JobBackup, now)
	}
}
