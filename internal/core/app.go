// Package core assembles the reminder engine: config, logging, storage,
// the trigger scheduler, the telegram adapter, and the built-in
// maintenance jobs. cmd/bot owns nothing but flags and signals.
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/jobs"
	"remindbot/internal/remind"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/services/notify"
	"remindbot/internal/services/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	db      *storage.DB
	adapter *telegram.Adapter

	sched    *scheduler.Service
	notif    *notify.Service
	settings *Settings

	store     remind.Store
	reminders *remind.Service

	recovery *jobs.Recovery
	backup   *jobs.Backup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		FloodRetries: cfg.Telegram.FloodRetries,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with chat logging off, point the sink at the operator
	// chat, then apply the final config. Avoids a false warning from
	// Apply() when chat logging is enabled before a target exists.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    false,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	logSvc.SetChatTarget(cfg.Telegram.OperatorChatID)
	finalLogCfg := baseLogCfg
	finalLogCfg.Chat.Enabled = cfg.Logging.Chat.Enabled
	logSvc.Apply(finalLogCfg)

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	defaultTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		DefaultTimeout: defaultTimeout,
	}, log.With(logx.String("comp", "scheduler")))

	notif := notify.New(ad, log.With(logx.String("comp", "notify")))
	notif.SetOperator(transport.ChatTarget{ChatID: cfg.Telegram.OperatorChatID})

	store := remind.NewStore(db)
	reminders := remind.NewService(store, sched, log.With(logx.String("comp", "remind")))

	settings := NewSettings(cfgm)
	locks := jobs.NewLockManager(jobs.NewLockStore(db), sched, log.With(logx.String("comp", "jobs")))
	lastRun := jobs.NewLastRunStore(db)

	recovery := jobs.NewRecovery(reminders, store, sched, locks, lastRun, notif,
		log.With(logx.String("comp", "recovery"))).WithSettings(settings)
	backup := jobs.NewBackup(store, recovery, notif, log.With(logx.String("comp", "backup")))
	planner := jobs.NewDigestPlanner(store, sched, log.With(logx.String("comp", "digest")))
	stats := jobs.NewStats(store, log.With(logx.String("comp", "stats")))

	jobLog := log.With(logx.String("comp", "jobs"))
	regs := map[string]scheduler.Processor{
		remind.FireJobID: jobs.NewFireProcessor(reminders, ad, jobLog),
		// Old builds persisted fires under the deprecated class; route
		// them through the same processor instead of dropping them.
		remind.LegacyFireJobID: jobs.NewFireProcessor(reminders, ad, jobLog),
		jobs.JobBackup:         jobs.NewBackupProcessor(backup, locks, lastRun, settings, notif, jobLog),
		jobs.JobDigestCalc:     jobs.NewDigestCalcProcessor(planner, locks, lastRun, settings, jobLog),
		jobs.JobDigest:         jobs.NewDigestProcessor(store, ad, jobLog),
		jobs.JobStats:          jobs.NewStatsProcessor(stats, locks, lastRun, settings, notif, jobLog),
		jobs.JobRestart:        jobs.NewRestartProcessor(recovery, jobLog),
	}
	for id, proc := range regs {
		if err := sched.Register(id, proc); err != nil {
			return nil, fmt.Errorf("core: register %s: %w", id, err)
		}
	}

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		db:        db,
		adapter:   ad,
		sched:     sched,
		notif:     notif,
		settings:  settings,
		store:     store,
		reminders: reminders,
		recovery:  recovery,
		backup:    backup,
	}, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())

	cfg := a.cfgm.Get()

	if cfg.Jobs.Retention.Enabled {
		spec := cfg.Jobs.Retention.Spec
		if spec == "" {
			spec = "0 30 3 * * *"
		}
		maxAge, err := config.ParseDurationOrDefault("jobs.retention.max_age", cfg.Jobs.Retention.MaxAge, 720*time.Hour)
		if err != nil {
			return err
		}
		sweep := jobs.NewRetentionSweep(a.store, maxAge, a.log.With(logx.String("comp", "retention")))
		if err := a.sched.AddCron("retention.sweep", spec, 0, sweep); err != nil {
			return err
		}
	}

	// Recovery runs once, shortly after start, so the adapter and
	// scheduler are warm before fires re-arm.
	delay, err := config.ParseDurationOrDefault("jobs.recovery.delay", cfg.Jobs.Recovery.Delay, 10*time.Second)
	if err != nil {
		return err
	}
	if _, err := a.sched.Schedule(jobs.JobRestart, time.Now().UTC().Add(delay), nil); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts; only the newest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	// The fsnotify watcher can die when the config file's directory is
	// replaced (editors, deploys). Restart it with backoff instead of
	// taking the process down.
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	// Chat log target first so Apply() doesn't warn on an enabled sink
	// without a destination.
	a.logs.SetChatTarget(newCfg.Telegram.OperatorChatID)
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    newCfg.Logging.Chat.Enabled,
			MinLevel:   newCfg.Logging.Chat.MinLevel,
			RatePerSec: newCfg.Logging.Chat.RatePerSec,
		},
	})

	a.notif.SetOperator(transport.ChatTarget{ChatID: newCfg.Telegram.OperatorChatID})
	a.settings.Invalidate()

	if timeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", newCfg.Scheduler.DefaultTimeout, 30*time.Second); err == nil {
		a.sched.Apply(scheduler.Config{
			Workers:        newCfg.Scheduler.Workers,
			QueueSize:      newCfg.Scheduler.QueueSize,
			DefaultTimeout: timeout,
		})
	} else {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	a.sched.Stop(stopCtx)
	_ = a.adapter.Stop(stopCtx)

	err := a.sup.Wait(stopCtx)
	active, started := a.sup.Counters()
	a.log.Info("stopped",
		logx.Int64("goroutines_active", active),
		logx.Int64("goroutines_started", int64(started)))
	_ = a.logs.Close()
	_ = a.db.Close()
	return err
}

func validateConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must be >= 0")
	}
	if cfg.Scheduler.QueueSize < 0 {
		return fmt.Errorf("scheduler.queue_size must be >= 0")
	}
	if _, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("jobs.backup.interval", cfg.Jobs.Backup.Interval); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("jobs.recovery.delay", cfg.Jobs.Recovery.Delay); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("jobs.retention.max_age", cfg.Jobs.Retention.MaxAge); err != nil {
		return err
	}
	return nil
}
