package cron

import (
	"errors"
	"fmt"
)

// Sentinel errors for scheduler and store operations.
var (
	ErrJobNotFound       = errors.New("cron: job not found")
	ErrJobExists         = errors.New("cron: job already registered")
	ErrExecutionNotFound = errors.New("cron: execution not found or already finished")
	ErrAlreadyStarted    = errors.New("cron: scheduler already started")
	ErrStopping          = errors.New("cron: scheduler is stopping")
	ErrShutdownTimeout   = errors.New("cron: shutdown timed out waiting for running jobs")
)

// errNoMatch is wrapped by TriggerError when a trigger never fires.
var errNoMatch = errors.New("no matching time within search horizon")

// TriggerError reports a malformed or unsatisfiable trigger expression.
type TriggerError struct {
	Spec string
	Err  error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("cron: invalid trigger %q: %v", e.Spec, e.Err)
}

func (e *TriggerError) Unwrap() error { return e.Err }

// PanicError wraps a panic recovered from a job body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("cron: job panicked: %v", e.Value)
}
