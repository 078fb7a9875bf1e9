package cron

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMisfireGrace is the usual tolerance for a late persisted fire time.
const DefaultMisfireGrace = time.Second

const (
	// idleWait is how long the loop sleeps when no job is scheduled.
	idleWait = time.Hour

	tracerName = "github.com/newspaper/mailing/internal/cron"
)

// Options configures a Scheduler. Zero values select in-memory storage, the
// real clock, UTC and slog.Default().
type Options struct {
	Store  JobStore
	Log    ExecutionLog
	Clock  clockwork.Clock
	Logger *slog.Logger

	// Location is the timezone triggers are evaluated in.
	Location *time.Location

	Metrics *Metrics
	Tracer  trace.Tracer

	// MisfireGrace is how late a persisted fire time may be at startup and
	// still run. Older fire times are skipped. Zero skips any fire time
	// already in the past.
	MisfireGrace time.Duration

	// ShutdownTimeout bounds how long shutdown waits for running jobs before
	// cancelling their context. Zero waits indefinitely.
	ShutdownTimeout time.Duration
}

type entry struct {
	def     Definition
	job     Job
	trigger Trigger
	next    time.Time // zero when the trigger is exhausted
	running int
}

// Scheduler dispatches registered jobs when their trigger fires. A single
// control loop decides what runs; job bodies run on their own goroutines.
// All state changes are serialised by one mutex.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry

	store           JobStore
	log             ExecutionLog
	clock           clockwork.Clock
	loc             *time.Location
	logger          *slog.Logger
	metrics         *Metrics
	tracer          trace.Tracer
	misfireGrace    time.Duration
	shutdownTimeout time.Duration
	createdAt       time.Time

	events *hub
	wake   chan struct{}
	inner  sync.WaitGroup

	// jobCtx is handed to job bodies. It outlives the loop's context and is
	// cancelled only when shutdown times out.
	jobCtx    context.Context
	jobCancel context.CancelFunc

	looping  bool
	stopping bool

	// Start/Stop bookkeeping.
	cancel context.CancelFunc
	done   chan error
}

// NewScheduler creates a scheduler. Jobs are registered with Register or
// RegisterJob, before or after the loop starts.
func NewScheduler(opts Options) *Scheduler {
	if opts.Store == nil || opts.Log == nil {
		mem := NewMemoryStore()
		if opts.Store == nil {
			opts.Store = mem
		}
		if opts.Log == nil {
			opts.Log = mem
		}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	jobCtx, jobCancel := context.WithCancel(context.Background())
	return &Scheduler{
		entries:         make(map[string]*entry),
		store:           opts.Store,
		log:             opts.Log,
		clock:           opts.Clock,
		loc:             opts.Location,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
		misfireGrace:    max(opts.MisfireGrace, 0),
		shutdownTimeout: opts.ShutdownTimeout,
		createdAt:       opts.Clock.Now(),
		events:          newHub(),
		wake:            make(chan struct{}, 1),
		jobCtx:          jobCtx,
		jobCancel:       jobCancel,
	}
}

// RegisterJob registers j with DefinitionFor(j).
func (s *Scheduler) RegisterJob(ctx context.Context, j Job) error {
	return s.Register(ctx, DefinitionFor(j), j)
}

// Register adds or replaces a job. The trigger is parsed immediately, so a
// malformed expression fails here. If the store already holds the job with
// the same trigger, its persisted fire time is resumed: a fire time still in
// the future (or within the misfire grace) is kept, an older one is skipped.
func (s *Scheduler) Register(ctx context.Context, def Definition, j Job) error {
	def = def.withDefaults()
	if def.ID == "" {
		return errors.New("cron: job ID must not be empty")
	}
	if j == nil {
		return fmt.Errorf("cron: job %q has no body", def.ID)
	}

	trig, err := ParseTrigger(def.Trigger, s.loc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, dup := s.entries[def.ID]
	if dup && !def.ReplaceExisting {
		return fmt.Errorf("%w: %s", ErrJobExists, def.ID)
	}

	now := s.clock.Now()
	next, err := s.resumeLocked(ctx, def, trig, now)
	if err != nil {
		return err
	}

	if _, err := s.store.Register(ctx, def, next); err != nil {
		return fmt.Errorf("cron: registering job %q: %w", def.ID, err)
	}

	e := &entry{def: def, job: j, trigger: trig, next: next}
	if dup {
		e.running = prev.running
	}
	s.entries[def.ID] = e
	s.metrics.setNextFire(def.ID, next)
	s.logger.Info("cron: job registered",
		"job", def.ID,
		"trigger", def.Trigger,
		"next", next,
	)
	s.poke()
	return nil
}

// resumeLocked picks the first fire time for a newly registered job.
func (s *Scheduler) resumeLocked(ctx context.Context, def Definition, trig Trigger, now time.Time) (time.Time, error) {
	prev, err := s.store.Get(ctx, def.ID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		return trig.Next(now)
	case err != nil:
		return time.Time{}, fmt.Errorf("cron: loading job %q: %w", def.ID, err)
	}

	if prev.Trigger != def.Trigger || prev.NextFire.IsZero() {
		return trig.Next(now)
	}
	if !prev.NextFire.Before(now.Add(-s.misfireGrace)) {
		return prev.NextFire, nil
	}

	s.logger.Warn("cron: missed fire time skipped",
		"job", def.ID,
		"missed", prev.NextFire,
	)
	s.metrics.observeMisfire(def.ID)
	return trig.Next(now)
}

// Run executes the control loop until ctx is cancelled, then waits for
// running jobs (bounded by ShutdownTimeout), persists the schedule and
// returns. A nil error means a clean shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.looping || s.stopping {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.looping = true
	jobs := len(s.entries)
	s.mu.Unlock()

	if n, err := s.log.CloseAbandoned(ctx, s.createdAt, s.clock.Now()); err != nil {
		s.metrics.persistError()
		s.logger.Error("cron: closing abandoned executions failed", "error", err)
	} else if n > 0 {
		s.logger.Warn("cron: closed executions abandoned by a previous process", "count", n)
	}

	s.logger.Info("cron: scheduler started", "jobs", jobs, "timezone", s.loc.String())

	for {
		s.dispatchDue(ctx)

		timer := s.clock.NewTimer(s.untilNext())
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.shutdown()
		case <-timer.Chan():
		case <-s.wake:
			timer.Stop()
		}
	}
}

// Start runs the loop in the background. Stop ends it.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	done := s.done
	s.mu.Unlock()

	go func() { done <- s.Run(ctx) }()
	return nil
}

// Stop cancels the loop started by Start and waits for it to return, or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow dispatches a job immediately, outside its schedule. The overlap
// guard still applies: if the job is at MaxInstances a skipped-overlap record
// is returned.
func (s *Scheduler) RunNow(ctx context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return Record{}, ErrStopping
	}
	e, ok := s.entries[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return s.fireLocked(ctx, e, s.clock.Now()), nil
}

// States returns the in-memory scheduling state of every job, ordered by ID.
func (s *Scheduler) States() []State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]State, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, State{
			JobID:    id,
			Trigger:  e.def.Trigger,
			NextFire: e.next,
			Running:  e.running,
		})
	}
	slices.SortFunc(out, func(a, b State) int { return cmp.Compare(a.JobID, b.JobID) })
	return out
}

// History returns the most recent executions of a job, newest first.
func (s *Scheduler) History(ctx context.Context, id string, limit int) ([]Record, error) {
	return s.log.History(ctx, id, limit)
}

// Subscribe returns a channel of execution events and a function that
// unsubscribes. The channel is closed on unsubscribe or scheduler shutdown.
func (s *Scheduler) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

// Running reports whether the control loop is active and not shutting down.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.looping && !s.stopping
}

// dispatchDue fires every job whose next fire time has passed, ordered by
// fire time then ID, and advances each to its next fire time after now.
// Fire times missed while a job was due but not yet evaluated collapse into
// this single dispatch.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return
	}

	var due []*entry
	for _, e := range s.entries {
		if !e.next.IsZero() && !e.next.After(now) {
			due = append(due, e)
		}
	}
	slices.SortFunc(due, func(a, b *entry) int {
		if c := a.next.Compare(b.next); c != 0 {
			return c
		}
		return cmp.Compare(a.def.ID, b.def.ID)
	})

	for _, e := range due {
		s.fireLocked(ctx, e, now)

		next, err := e.trigger.Next(now)
		if err != nil {
			s.logger.Error("cron: trigger exhausted, job disabled", "job", e.def.ID, "error", err)
			next = time.Time{}
		}
		e.next = next
		s.persistNextLocked(ctx, e)
	}
}

// fireLocked starts one instance of e, or records a skipped-overlap tick
// when e is already at MaxInstances.
func (s *Scheduler) fireLocked(ctx context.Context, e *entry, now time.Time) Record {
	id := e.def.ID

	if e.running >= e.def.MaxInstances {
		finished := now
		rec := Record{
			ID:         uuid.NewString(),
			JobID:      id,
			StartedAt:  now,
			FinishedAt: &finished,
			Outcome:    OutcomeSkippedOverlap,
		}
		if err := s.log.Insert(ctx, rec); err != nil {
			s.metrics.persistError()
			s.logger.Error("cron: recording skipped tick failed", "job", id, "error", err)
		}
		s.logger.Info("cron: job still running, skipping tick", "job", id, "running", e.running)
		s.metrics.observeSkip(id)
		s.events.publish(Event{Type: EventSkipped, Record: rec})
		return rec
	}

	rec := Record{
		ID:        uuid.NewString(),
		JobID:     id,
		StartedAt: now,
	}
	if err := s.log.Insert(ctx, rec); err != nil {
		s.metrics.persistError()
		s.logger.Error("cron: recording execution start failed", "job", id, "error", err)
	}

	e.running++
	s.metrics.observeStart(id)
	s.events.publish(Event{Type: EventStarted, Record: rec})
	s.logger.Debug("cron: job started", "job", id, "execution", rec.ID)

	s.inner.Add(1)
	go s.execute(e.job, rec)
	return rec
}

// execute runs a job body and records its outcome. Errors and panics stop
// here; they never reach the loop.
func (s *Scheduler) execute(j Job, rec Record) {
	defer s.inner.Done()

	ctx, span := s.tracer.Start(s.jobCtx, "cron.execute "+rec.JobID,
		trace.WithAttributes(
			attribute.String("cron.job", rec.JobID),
			attribute.String("cron.execution", rec.ID),
		),
	)
	defer span.End()

	err := runBody(ctx, j)

	finished := s.clock.Now()
	if finished.Before(rec.StartedAt) {
		finished = rec.StartedAt
	}

	outcome := OutcomeSuccess
	var msg string
	if err != nil {
		outcome = OutcomeFailure
		msg = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)

		attrs := []any{"job", rec.JobID, "execution", rec.ID, "error", err}
		var pe *PanicError
		if errors.As(err, &pe) {
			attrs = append(attrs, "stack", string(pe.Stack))
		}
		s.logger.Error("cron: job failed", attrs...)
	} else {
		s.logger.Debug("cron: job completed", "job", rec.JobID, "execution", rec.ID)
	}

	rec.FinishedAt = &finished
	rec.Outcome = outcome
	rec.Error = msg
	s.finish(rec, finished.Sub(rec.StartedAt))
}

func runBody(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return j.Run(ctx)
}

func (s *Scheduler) finish(rec Record, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Use a fresh context: the loop's context may already be cancelled.
	ctx := context.Background()
	if err := s.log.Finish(ctx, rec.ID, *rec.FinishedAt, rec.Outcome, rec.Error); err != nil {
		s.metrics.persistError()
		s.logger.Error("cron: recording execution outcome failed", "job", rec.JobID, "error", err)
	}

	if e, ok := s.entries[rec.JobID]; ok {
		e.running--
		s.persistNextLocked(ctx, e)
	}
	s.metrics.observeFinish(rec.JobID, rec.Outcome, took)
	s.events.publish(Event{Type: EventFinished, Record: rec})
}

// persistNextLocked writes e.next to the store. Failures are logged; the
// in-memory schedule stays authoritative until the next successful write.
func (s *Scheduler) persistNextLocked(ctx context.Context, e *entry) {
	s.metrics.setNextFire(e.def.ID, e.next)
	if err := s.store.SetNextFire(ctx, e.def.ID, e.next); err != nil {
		s.metrics.persistError()
		s.logger.Error("cron: persisting next fire time failed",
			"job", e.def.ID,
			"next", e.next,
			"error", err,
		)
	}
}

// untilNext returns how long the loop may sleep.
func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	for _, e := range s.entries {
		if e.next.IsZero() {
			continue
		}
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	if earliest.IsZero() {
		return idleWait
	}
	return max(earliest.Sub(s.clock.Now()), 0)
}

// poke wakes the loop so it re-evaluates the schedule.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// shutdown stops dispatching, drains running jobs and persists state.
func (s *Scheduler) shutdown() error {
	s.mu.Lock()
	s.stopping = true
	s.looping = false
	running := 0
	for _, e := range s.entries {
		running += e.running
	}
	s.mu.Unlock()

	s.logger.Info("cron: scheduler stopping", "running", running)

	drained := make(chan struct{})
	go func() {
		s.inner.Wait()
		close(drained)
	}()

	var err error
	if s.shutdownTimeout > 0 {
		timer := s.clock.NewTimer(s.shutdownTimeout)
		select {
		case <-drained:
			timer.Stop()
		case <-timer.Chan():
			err = ErrShutdownTimeout
			s.logger.Warn("cron: shutdown timeout reached, cancelling running jobs",
				"timeout", s.shutdownTimeout,
			)
		}
	} else {
		<-drained
	}
	s.jobCancel()

	s.mu.Lock()
	ctx := context.Background()
	for _, e := range s.entries {
		s.persistNextLocked(ctx, e)
	}
	s.mu.Unlock()

	s.events.close()
	s.logger.Info("cron: scheduler stopped")
	return err
}
