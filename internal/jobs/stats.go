package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/remind"
	"remindbot/internal/services/notify"
	"remindbot/internal/services/scheduler"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Stats computes usage counters and reports them to the operator chat.
type Stats struct {
	store remind.Store
	log   logx.Logger
	now   func() time.Time
}

func NewStats(store remind.Store, log logx.Logger) *Stats {
	return &Stats{store: store, log: log, now: time.Now}
}

// WithClock overrides the clock; tests only.
func (s *Stats) WithClock(now func() time.Time) *Stats {
	s.now = now
	return s
}

type StatsReport struct {
	Active    int
	Completed int
	Recurring int
	Owners    int
}

func (s *Stats) Collect(ctx context.Context) (StatsReport, error) {
	var rep StatsReport

	all, err := s.store.All(ctx)
	if err != nil {
		return rep, fmt.Errorf("jobs: stats: %w", err)
	}
	owners := map[int64]struct{}{}
	for _, r := range all {
		switch r.Status {
		case remind.StatusActive:
			rep.Active++
		case remind.StatusCompleted:
			rep.Completed++
		}
		if r.Recurring() {
			rep.Recurring++
		}
		owners[r.CreatedBy] = struct{}{}
	}
	rep.Owners = len(owners)
	return rep, nil
}

func (r StatsReport) String() string {
	return fmt.Sprintf("Stats: %d active, %d completed, %d recurring, %d distinct owner(s).",
		r.Active, r.Completed, r.Recurring, r.Owners)
}

// recentNotices is how many past notifications the stats report recaps.
const recentNotices = 5

// statsText renders the operator report, recapping recent notifications
// so the stats chat message doubles as a what-happened digest.
func statsText(rep StatsReport, recent []transport.Notification) string {
	if len(recent) == 0 {
		return rep.String()
	}
	var b strings.Builder
	b.WriteString(rep.String())
	b.WriteString("\nRecent notices:")
	for _, noti := range recent {
		b.WriteString("\n• ")
		b.WriteString(noti.Text)
	}
	return b.String()
}

// NewStatsProcessor builds the locked stats-job processor.
func NewStatsProcessor(stats *Stats, locks *LockManager, lastRun LastRunStore, settings Settings, notifier *notify.Service, log logx.Logger) scheduler.Processor {
	return func(ctx context.Context, payload map[string]string) error {
		ok, err := locks.ShouldExecute(ctx, JobStats, payload[PayloadTriggerID])
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if settings.StatsEnabled() {
			rep, err := stats.Collect(ctx)
			if err != nil {
				return err
			}
			log.Info("stats collected",
				logx.Int("active", rep.Active),
				logx.Int("completed", rep.Completed),
				logx.Int("recurring", rep.Recurring),
				logx.Int("owners", rep.Owners))
			notifier.Operator(ctx, notify.PriorityInfo, statsText(rep, notifier.Recent(recentNotices)))
		} else {
			log.Debug("stats disabled; skipping collection")
		}

		now := stats.now().UTC()
		if err := locks.Acquire(ctx, JobStats, uuid.NewString(), now.Add(StatsInterval)); err != nil {
			return err
		}
		return lastRun.Set(ctx, JobStats, now)
	}
}
