// Package jobs implements the bot's internal job processors: reminder
// fires, the daily digest pipeline, backups, stats, restart recovery,
// and the fencing-token locking that keeps the locked jobs from running
// twice after crashes or overlapping restarts.
package jobs

import "time"

// Internal job ids. The locked set (backup, digest calculation, stats)
// chains itself via the lock manager; the rest are one-shot or fired by
// other jobs.
const (
	JobBackup     = "backup-job"
	JobDigestCalc = "daily-reminder-calculation-job"
	JobDigest     = "daily-reminder-job"
	JobStats      = "stats-job"
	JobRestart    = "jobs-restart-job"
)

// PayloadTriggerID keys the fencing token inside a locked job's payload.
const PayloadTriggerID = "triggerId"

// PayloadUserID keys the recipient inside a digest fire payload.
const PayloadUserID = "userId"

const (
	// LockStaleAfter is the self-healing window: a lock older than this
	// no longer blocks execution, whatever its trigger id says.
	LockStaleAfter = 24 * time.Hour

	DigestCalcInterval = 24 * time.Hour
	StatsInterval      = 48 * time.Hour

	// Grace delays applied when restart recovery re-triggers a lapsed job.
	BackupGrace     = 10 * time.Second
	DigestCalcGrace = 20 * time.Second
	StatsGrace      = 30 * time.Second
)
