package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxAge is the retention window of execution records (one week).
const DefaultMaxAge = 604800 * time.Second

// RetentionJob deletes finished execution records older than MaxAge.
// Running instances are never touched.
type RetentionJob struct {
	Log          ExecutionLog
	MaxAge       time.Duration   // zero = DefaultMaxAge
	Clock        clockwork.Clock // nil = real clock
	Logger       *slog.Logger
	Metrics      *Metrics
	ScheduleExpr string // empty = default "0 0 0 * * mon"
}

// Compile-time interface check.
var _ Job = (*RetentionJob)(nil)

// Name implements Job.
func (j *RetentionJob) Name() string { return "delete_old_job_executions" }

// Schedule implements Job.
func (j *RetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 0 0 * * mon"
}

// Run deletes records started before now - MaxAge.
func (j *RetentionJob) Run(ctx context.Context) error {
	maxAge := j.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	clock := j.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cutoff := clock.Now().Add(-maxAge)
	n, err := j.Log.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cron: pruning executions before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	j.Metrics.observePruned(n)
	if n > 0 {
		logger.Info("cron: pruned old job executions", "count", n, "cutoff", cutoff)
	}
	return nil
}
