package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"remindbot/pkg/logx"
)

// Register installs the processor for a job id. Registering the same id
// again replaces the processor; fires scheduled earlier pick up the new one.
func (s *Service) Register(jobID string, p Processor) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("job id required")
	}
	if strings.Contains(jobID, ":") {
		return fmt.Errorf("job id %q must not contain ':'", jobID)
	}
	if p == nil {
		return errors.New("processor required")
	}
	s.mu.Lock()
	s.procs[jobID] = p
	s.mu.Unlock()
	return nil
}

// Schedule registers a one-shot fire of jobID at the given instant and
// returns its handle. Instants in the past fire immediately. The payload
// is retained as-is; callers must not mutate it afterwards.
func (s *Service) Schedule(jobID string, at time.Time, payload map[string]string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", errors.New("job id required")
	}
	if at.IsZero() {
		return "", errors.New("fire instant required")
	}

	handle := jobID + ":" + uuid.NewString()
	def := &onceDef{jobID: jobID, at: at.UTC(), payload: payload, ver: 1}

	s.mu.Lock()
	started := s.stopCh != nil
	s.mu.Unlock()

	s.tmu.Lock()
	s.once[handle] = def
	if started {
		s.armTimerLocked(handle, def)
	}
	s.tmu.Unlock()

	s.log.Debug("fire scheduled",
		logx.String("job", jobID),
		logx.String("handle", handle),
		logx.Time("at", def.at))
	return handle, nil
}

// Cancel drops the one-shot behind a handle. Returns false when the
// handle is unknown, already fired, or already cancelled.
func (s *Service) Cancel(handle string) bool {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return false
	}
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return s.cancelHandleLocked(handle)
}

// CancelJob drops every pending one-shot of a job id and reports how
// many were removed.
func (s *Service) CancelJob(jobID string) int {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return 0
	}
	s.tmu.Lock()
	defer s.tmu.Unlock()
	n := 0
	for handle, def := range s.once {
		if def.jobID == jobID && s.cancelHandleLocked(handle) {
			n++
		}
	}
	if n > 0 {
		s.log.Debug("job fires cancelled", logx.String("job", jobID), logx.Int("count", n))
	}
	return n
}

// Pending reports how many one-shots of a job id are still armed.
func (s *Service) Pending(jobID string) int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	n := 0
	for _, def := range s.once {
		if def.jobID == jobID {
			n++
		}
	}
	return n
}

// AddCron upserts a recurring maintenance job by name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("cron spec %q: %w", spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCronLocked(name)
	d := cronDef{name: name, spec: spec, timeout: s.resolveTimeout(timeout), job: job}
	s.cronDefs = append(s.cronDefs, d)
	s.addCronLocked(&s.cronDefs[len(s.cronDefs)-1])
	return nil
}

// RemoveCron unschedules a recurring job by name.
func (s *Service) RemoveCron(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeCronLocked(name)
}

// cancelHandleLocked stops and forgets one handle. Call with s.tmu held.
func (s *Service) cancelHandleLocked(handle string) bool {
	def, ok := s.once[handle]
	if !ok {
		return false
	}
	def.ver++ // stale timer callbacks see the bump and bail
	if t, ok := s.timers[handle]; ok {
		_ = t.Stop()
		delete(s.timers, handle)
	}
	delete(s.once, handle)
	return true
}

// armTimerLocked creates the runtime timer for a definition.
// Call with s.tmu held.
func (s *Service) armTimerLocked(handle string, def *onceDef) {
	delay := time.Until(def.at)
	if delay < 0 {
		delay = 0
	}
	ver := def.ver
	s.timers[handle] = time.AfterFunc(delay, func() {
		s.tmu.Lock()
		cur, ok := s.once[handle]
		if !ok || cur.ver != ver {
			// replaced or cancelled since this timer was armed
			s.tmu.Unlock()
			return
		}
		delete(s.timers, handle)
		delete(s.once, handle)
		s.tmu.Unlock()

		s.mu.Lock()
		proc := s.procs[cur.jobID]
		timeout := s.cfg.DefaultTimeout
		s.mu.Unlock()
		if proc == nil {
			s.log.Warn("fire due but no processor registered",
				logx.String("job", cur.jobID), logx.String("handle", handle))
			return
		}
		s.enqueue(task{
			handle:  handle,
			jobID:   cur.jobID,
			payload: cur.payload,
			timeout: timeout,
			run:     proc,
		})
	})
}

func (s *Service) removeCronLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.cronDefs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.cronDefs[n] = d
		n++
	}
	s.cronDefs = s.cronDefs[:n]
	return removed
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}
