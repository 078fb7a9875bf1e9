// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/newspaper/mailing/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	active   int
	peak     int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job. It counts calls and tracks how many instances run
// at the same time.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.active++
	m.peak = max(m.peak, m.active)
	m.lastCall = time.Now()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// PeakConcurrency returns the highest number of simultaneous Run calls seen.
func (m *MockJob) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// Gate blocks job bodies until released. Entered receives one value per
// body that reached the gate.
type Gate struct {
	Entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{
		Entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

// Wait is a RunFunc that blocks until Release or ctx cancellation.
func (g *Gate) Wait(ctx context.Context) error {
	g.Entered <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release opens the gate for every current and future caller.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// OverlappingRuns returns pairs of finished records of the same job whose
// [StartedAt, FinishedAt) intervals intersect. Skipped ticks are ignored.
func OverlappingRuns(records []cron.Record) [][2]cron.Record {
	var out [][2]cron.Record
	for i, a := range records {
		for _, b := range records[i+1:] {
			if a.JobID != b.JobID || a.FinishedAt == nil || b.FinishedAt == nil {
				continue
			}
			if a.Outcome == cron.OutcomeSkippedOverlap || b.Outcome == cron.OutcomeSkippedOverlap {
				continue
			}
			if a.StartedAt.Before(*b.FinishedAt) && b.StartedAt.Before(*a.FinishedAt) {
				out = append(out, [2]cron.Record{a, b})
			}
		}
	}
	return out
}
