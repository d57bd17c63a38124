package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		procs:  map[string]Processor{},
		timers: map[string]*time.Timer{},
		once:   map[string]*onceDef{},
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	// Worker pool resizing requires a stop/start cycle.
}

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it (prevents double worker pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := s.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	// Fresh queue per run so a stop/start toggle never replays stale tasks.
	s.queue = make(chan task, queueSize)

	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(time.UTC))
	for i := range s.cronDefs {
		s.addCronLocked(&s.cronDefs[i])
	}

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.Stack(logx.StackTrace(3, 16)))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.rebuildTimersLocked()
	s.log.Info("scheduler started",
		logx.Int("workers", workers),
		logx.Int("crons", len(s.cronDefs)),
		logx.Int("pending_fires", len(s.once)))
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	// prevent new cron enqueues quickly
	s.c = nil
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	// stop runtime timers; keep definitions so fires resume on next Start()
	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	// finalize cleanup in background so Stop() can return on timeout.
	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

func (s *Service) addCronLocked(d *cronDef) {
	if s.c == nil {
		return
	}
	eid, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(task{
			handle:  d.name,
			jobID:   d.name,
			timeout: d.timeout,
			run: func(ctx context.Context, _ map[string]string) error {
				return d.job(ctx)
			},
		})
	})
	if err != nil {
		s.log.Error("cron register failed",
			logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = eid
	s.log.Debug("cron registered",
		logx.String("name", d.name), logx.String("spec", d.spec), logx.Duration("timeout", d.timeout))
}

// rebuildTimersLocked recreates runtime timers from persisted one-shot
// definitions. Call with s.mu held.
func (s *Service) rebuildTimersLocked() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	for handle, def := range s.once {
		s.armTimerLocked(handle, def)
	}
}
