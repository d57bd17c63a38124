// Package scheduler provides the in-process trigger service driving
// reminder fires and maintenance jobs.
//
// # Overview
//
// Processors are registered once under a stable job id (e.g.
// "reminders-job"). Callers then schedule one-shot fires of a job id at
// an absolute instant; each fire carries a small string payload and is
// identified by an opaque handle ("<job id>:<uuid>"). A fire whose
// instant is already past runs immediately, which restart recovery
// relies on.
//
// Handles can be cancelled individually (Cancel) or per job id
// (CancelJob). Both are best-effort: a fire that already started is not
// interrupted.
//
// Recurring maintenance work uses cron specs (AddCron), 5-field or
// 6-field with optional seconds, plus "@every"-style descriptors.
//
// # Concurrency
//
// Due fires are queued to a fixed worker pool; the queue drops on
// overflow rather than blocking timer callbacks. A per-run timeout is
// applied when configured.
//
// # Lifecycle
//
// The Service can be started and stopped at runtime. Scheduling while
// stopped is supported: definitions are stored and their timers are
// rebuilt on the next start.
package scheduler
