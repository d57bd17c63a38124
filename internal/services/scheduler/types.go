package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration // 0 disables the per-run timeout
}

// Processor executes one fire of a job id. The payload is the one the
// fire was scheduled with; processors must tolerate re-delivery.
type Processor func(ctx context.Context, payload map[string]string) error

type task struct {
	handle  string
	jobID   string
	payload map[string]string
	timeout time.Duration
	run     Processor
}

// onceDef is the persistent definition behind a scheduled one-shot.
// Timers are runtime-only; definitions survive Stop/Start.
type onceDef struct {
	jobID   string
	at      time.Time
	payload map[string]string
	ver     uint64
}

type cronDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	procs map[string]Processor

	parser   cron.Parser
	c        *cron.Cron
	cronDefs []cronDef

	queue  chan task
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; closed when
	// workers fully exit.
	stopDone chan struct{}

	// one-shot fires, keyed by handle
	tmu    sync.Mutex
	timers map[string]*time.Timer
	once   map[string]*onceDef

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}
