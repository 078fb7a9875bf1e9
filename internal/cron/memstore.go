package cron

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ JobStore     = (*MemoryStore)(nil)
	_ ExecutionLog = (*MemoryStore)(nil)
)

// MemoryStore is an in-process JobStore and ExecutionLog. Its contents last
// as long as the value, which makes it suitable for tests and for running
// without a database file. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]State
	records []Record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]State),
		now:  time.Now,
	}
}

// Register implements JobStore.
func (m *MemoryStore) Register(_ context.Context, def Definition, nextFire time.Time) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[def.ID]; exists && !def.ReplaceExisting {
		return State{}, fmt.Errorf("%w: %s", ErrJobExists, def.ID)
	}
	st := State{
		JobID:     def.ID,
		Trigger:   def.Trigger,
		NextFire:  nextFire,
		UpdatedAt: m.now(),
	}
	m.jobs[def.ID] = st
	return st, nil
}

// Get implements JobStore.
func (m *MemoryStore) Get(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.jobs[id]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return st, nil
}

// SetNextFire implements JobStore.
func (m *MemoryStore) SetNextFire(_ context.Context, id string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	st.NextFire = next
	st.UpdatedAt = m.now()
	m.jobs[id] = st
	return nil
}

// List implements JobStore.
func (m *MemoryStore) List(_ context.Context) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]State, 0, len(m.jobs))
	for _, st := range m.jobs {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b State) int { return cmp.Compare(a.JobID, b.JobID) })
	return out, nil
}

// Remove implements JobStore.
func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

// Insert implements ExecutionLog.
func (m *MemoryStore) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, cloneRecord(rec))
	return nil
}

// Finish implements ExecutionLog.
func (m *MemoryStore) Finish(_ context.Context, id string, finishedAt time.Time, outcome Outcome, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		r := &m.records[i]
		if r.ID != id || !r.InFlight() {
			continue
		}
		at := finishedAt
		r.FinishedAt = &at
		r.Outcome = outcome
		r.Error = errMsg
		return nil
	}
	return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
}

// History implements ExecutionLog.
func (m *MemoryStore) History(_ context.Context, jobID string, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, r := range m.records {
		if r.JobID == jobID {
			out = append(out, cloneRecord(r))
		}
	}
	slices.SortStableFunc(out, func(a, b Record) int { return b.StartedAt.Compare(a.StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteFinishedBefore implements ExecutionLog.
func (m *MemoryStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	kept := m.records[:0]
	for _, r := range m.records {
		if !r.InFlight() && r.StartedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

// CloseAbandoned implements ExecutionLog.
func (m *MemoryStore) CloseAbandoned(_ context.Context, before, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closed int64
	for i := range m.records {
		r := &m.records[i]
		if r.InFlight() && r.StartedAt.Before(before) {
			finished := at
			r.FinishedAt = &finished
			r.Outcome = OutcomeFailure
			r.Error = "abandoned"
			closed++
		}
	}
	return closed, nil
}

// Records returns a copy of every stored record in insertion order.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, len(m.records))
	for i, r := range m.records {
		out[i] = cloneRecord(r)
	}
	return out
}

func cloneRecord(r Record) Record {
	if r.FinishedAt != nil {
		at := *r.FinishedAt
		r.FinishedAt = &at
	}
	return r
}
