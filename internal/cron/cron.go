// Package cron provides a persistent single-process job scheduler. Job
// definitions and next fire times survive restarts through a JobStore, every
// run is recorded in an ExecutionLog, and a job never overlaps with itself
// beyond its MaxInstances limit.
package cron

import (
	"context"
	"time"
)

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used as the job ID).
	Name() string

	// Schedule returns the default trigger expression, e.g. "0 0 0 * * mon".
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// cancellation; the context is only cancelled when shutdown times out.
	Run(ctx context.Context) error
}

// Definition describes a registered job.
type Definition struct {
	ID string

	// Trigger is a cron expression with an optional seconds field, or a
	// descriptor such as "@weekly" or "@every 10s".
	Trigger string

	// MaxInstances bounds concurrently running instances. Defaults to 1.
	MaxInstances int

	// ReplaceExisting overwrites a previously registered job with the same ID
	// instead of failing with ErrJobExists.
	ReplaceExisting bool
}

// DefinitionFor builds the default definition for a job: single instance,
// replace on re-registration.
func DefinitionFor(j Job) Definition {
	return Definition{
		ID:              j.Name(),
		Trigger:         j.Schedule(),
		MaxInstances:    1,
		ReplaceExisting: true,
	}
}

func (d Definition) withDefaults() Definition {
	if d.MaxInstances <= 0 {
		d.MaxInstances = 1
	}
	return d
}

// State is the scheduling state of a job. Running is tracked in memory only.
type State struct {
	JobID     string    `json:"job_id"`
	Trigger   string    `json:"trigger"`
	NextFire  time.Time `json:"next_fire"`
	Running   int       `json:"running"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outcome is the result of an execution. It is empty while the run is in flight.
type Outcome string

// Execution outcomes.
const (
	OutcomeSuccess        Outcome = "success"
	OutcomeFailure        Outcome = "failure"
	OutcomeSkippedOverlap Outcome = "skipped-overlap"
)

// Record is one entry of the execution log.
type Record struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcome    Outcome    `json:"outcome,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// InFlight reports whether the execution has not finished yet.
func (r Record) InFlight() bool {
	return r.FinishedAt == nil
}

// JobStore persists registered jobs and their next fire time.
type JobStore interface {
	// Register stores def with the given next fire time. If a job with the
	// same ID exists it is overwritten when def.ReplaceExisting is set,
	// otherwise ErrJobExists is returned.
	Register(ctx context.Context, def Definition, nextFire time.Time) (State, error)

	// Get returns the persisted state, or ErrJobNotFound.
	Get(ctx context.Context, id string) (State, error)

	// SetNextFire updates the next fire time, or returns ErrJobNotFound.
	SetNextFire(ctx context.Context, id string, next time.Time) error

	// List returns all persisted jobs ordered by ID.
	List(ctx context.Context) ([]State, error)

	// Remove deletes the job. Removing an unknown job is not an error.
	Remove(ctx context.Context, id string) error
}

// ExecutionLog persists execution records.
type ExecutionLog interface {
	// Insert stores a new record.
	Insert(ctx context.Context, rec Record) error

	// Finish completes an in-flight record, or returns ErrExecutionNotFound.
	Finish(ctx context.Context, id string, finishedAt time.Time, outcome Outcome, errMsg string) error

	// History returns the records of a job, newest first. limit <= 0 means
	// no limit.
	History(ctx context.Context, jobID string, limit int) ([]Record, error)

	// DeleteFinishedBefore removes finished records started before cutoff
	// and returns how many were deleted. In-flight records are never deleted.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// CloseAbandoned marks in-flight records started before `before` as
	// failed at `at`. Used on startup to close runs of a crashed process.
	CloseAbandoned(ctx context.Context, before, at time.Time) (int64, error)
}
