package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRetentionJob_Defaults(t *testing.T) {
	t.Parallel()

	j := &RetentionJob{}
	if j.Name() != "delete_old_job_executions" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "0 0 0 * * mon" {
		t.Errorf("schedule = %q", j.Schedule())
	}
	j.ScheduleExpr = "@daily"
	if j.Schedule() != "@daily" {
		t.Errorf("schedule override = %q", j.Schedule())
	}
}

func TestRetentionJob_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	done := func(at time.Time) *time.Time { return &at }

	_ = store.Insert(ctx, Record{ID: "stale", JobID: "j", StartedAt: t0.Add(-8 * 24 * time.Hour), FinishedAt: done(t0.Add(-8 * 24 * time.Hour)), Outcome: OutcomeSuccess})
	_ = store.Insert(ctx, Record{ID: "recent", JobID: "j", StartedAt: t0.Add(-6 * 24 * time.Hour), FinishedAt: done(t0.Add(-6 * 24 * time.Hour)), Outcome: OutcomeFailure})
	_ = store.Insert(ctx, Record{ID: "running", JobID: "j", StartedAt: t0.Add(-30 * 24 * time.Hour)})

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	j := &RetentionJob{
		Log:     store,
		Clock:   clockwork.NewFakeClockAt(t0),
		Logger:  discardLogger(),
		Metrics: metrics,
	}

	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	assertIDs(t, store.Records(), "recent", "running")

	// A second run with nothing to delete is a no-op.
	if err := j.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	assertIDs(t, store.Records(), "recent", "running")

	if got := testutil.ToFloat64(metrics.pruned); got != 1 {
		t.Errorf("pruned counter = %v, want 1", got)
	}
}

func TestRetentionJob_CustomMaxAge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	at := t0.Add(-2 * time.Hour)
	_ = store.Insert(ctx, Record{ID: "two-hours", JobID: "j", StartedAt: at, FinishedAt: &at, Outcome: OutcomeSuccess})

	j := &RetentionJob{Log: store, MaxAge: time.Hour, Clock: clockwork.NewFakeClockAt(t0), Logger: discardLogger()}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	assertIDs(t, store.Records())
}

type failingLog struct{ ExecutionLog }

func (failingLog) DeleteFinishedBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRetentionJob_StoreError(t *testing.T) {
	t.Parallel()

	j := &RetentionJob{Log: failingLog{}, Clock: clockwork.NewFakeClockAt(t0), Logger: discardLogger()}
	err := j.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}

func assertIDs(t *testing.T, recs []Record, want ...string) {
	t.Helper()
	if len(recs) != len(want) {
		t.Fatalf("records = %+v, want IDs %v", recs, want)
	}
	for i, r := range recs {
		if r.ID != want[i] {
			t.Errorf("record %d = %q, want %q", i, r.ID, want[i])
		}
	}
}
