package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/newspaper/mailing/internal/cron"
	"github.com/newspaper/mailing/internal/cron/crontest"
	"github.com/newspaper/mailing/modules/store/sqlite"
)

func newScheduler(store *sqlite.Store, clock clockwork.Clock) *cron.Scheduler {
	return cron.NewScheduler(cron.Options{
		Store:        store,
		Log:          store,
		Clock:        clock,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		MisfireGrace: cron.DefaultMisfireGrace,
	})
}

// runLoop starts s.Run in the background. The returned func stops it and
// reports the loop's error.
func runLoop(t *testing.T, s *cron.Scheduler) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop")
			return nil
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func history(t *testing.T, s *sqlite.Store, jobID string) []cron.Record {
	t.Helper()
	recs, err := s.History(context.Background(), jobID, 100)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return recs
}

func countOutcome(recs []cron.Record, o cron.Outcome) int {
	n := 0
	for _, r := range recs {
		if r.FinishedAt != nil && r.Outcome == o {
			n++
		}
	}
	return n
}

// A job registered by one process and resumed by the next fires exactly once
// at its persisted time.
func TestScheduler_RestartDurability(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "durable.db")
	clock := clockwork.NewFakeClockAt(t0)

	first, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s1 := newScheduler(first, clock)
	if err := s1.RegisterJob(ctx, &crontest.MockJob{NameVal: "tick", ScheduleVal: "*/10 * * * * *"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = first.Close()

	// The first process dies before the fire time; a new one takes over.
	clock.Advance(5 * time.Second)
	second := openStore(t, path)
	job := &crontest.MockJob{NameVal: "tick", ScheduleVal: "*/10 * * * * *"}
	s2 := newScheduler(second, clock)
	if err := s2.RegisterJob(ctx, job); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	states := s2.States()
	if len(states) != 1 || !states[0].NextFire.Equal(t0.Add(10*time.Second)) {
		t.Fatalf("resumed states = %+v", states)
	}

	stop := runLoop(t, s2)
	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)
	waitFor(t, "execution to finish", func() bool {
		return countOutcome(history(t, second, "tick"), cron.OutcomeSuccess) == 1
	})
	if err := stop(); err != nil {
		t.Fatalf("run returned %v", err)
	}

	if got := job.CallCount(); got != 1 {
		t.Errorf("job ran %d times, want exactly 1", got)
	}
	if got := len(history(t, second, "tick")); got != 1 {
		t.Errorf("history has %d records, want 1", got)
	}
	persisted, err := second.Get(ctx, "tick")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !persisted.NextFire.Equal(t0.Add(20 * time.Second)) {
		t.Errorf("persisted next fire = %s, want %s", persisted.NextFire, t0.Add(20*time.Second))
	}
}

// Ticks that arrive while the previous run is still busy are recorded as
// skipped and never start a second instance.
func TestScheduler_OverlapRecordedInStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	clock := clockwork.NewFakeClockAt(t0)
	gate := crontest.NewGate()
	job := &crontest.MockJob{NameVal: "slow", ScheduleVal: "*/10 * * * * *", RunFunc: gate.Wait}

	s := newScheduler(store, clock)
	if err := s.RegisterJob(ctx, job); err != nil {
		t.Fatalf("register: %v", err)
	}
	stop := runLoop(t, s)

	clock.BlockUntil(1)
	clock.Advance(10 * time.Second)
	select {
	case <-gate.Entered:
	case <-time.After(5 * time.Second):
		t.Fatal("job body never started")
	}

	for skipped := 1; skipped <= 2; skipped++ {
		clock.BlockUntil(1)
		clock.Advance(10 * time.Second)
		waitFor(t, "skipped tick", func() bool {
			return countOutcome(history(t, store, "slow"), cron.OutcomeSkippedOverlap) == skipped
		})
	}

	gate.Release()
	waitFor(t, "slow run to finish", func() bool {
		return countOutcome(history(t, store, "slow"), cron.OutcomeSuccess) == 1
	})
	if err := stop(); err != nil {
		t.Fatalf("run returned %v", err)
	}

	if got := job.CallCount(); got != 1 {
		t.Errorf("job ran %d times, want 1", got)
	}
	if got := job.PeakConcurrency(); got != 1 {
		t.Errorf("peak concurrency = %d, want 1", got)
	}
	recs := history(t, store, "slow")
	if pairs := crontest.OverlappingRuns(recs); len(pairs) != 0 {
		t.Errorf("overlapping runs: %+v", pairs)
	}
	for _, r := range recs {
		if r.Outcome == cron.OutcomeSkippedOverlap && !r.FinishedAt.Equal(r.StartedAt) {
			t.Errorf("skipped record must be closed at its start time: %+v", r)
		}
	}
}
