// Package core runs the process components: it starts them in order and
// stops them in reverse.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// App manages the lifecycle of a set of components.
type App struct {
	components      []componentInstance
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

type componentInstance struct {
	id        string
	component any
	started   bool
}

// NewApp creates an App. shutdownTimeout bounds Stop; zero means no bound.
func NewApp(logger *slog.Logger, shutdownTimeout time.Duration) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		logger:          logger.With("component", "core"),
		shutdownTimeout: shutdownTimeout,
	}
}

// Add appends a component. It is started after every component added before
// it and stopped before them. Components that implement neither Starter nor
// Stopper are ignored.
func (a *App) Add(id string, component any) {
	a.components = append(a.components, componentInstance{id: id, component: component})
}

// Start starts all components in order. A component without Start counts
// as started so that its Stop still runs. If any Start() fails,
// already-started components are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.components {
		ci := &a.components[i]
		if s, ok := ci.component.(Starter); ok {
			a.logger.Info("starting component", "id", ci.id)
			if err := s.Start(); err != nil {
				a.logger.Error("component start failed", "id", ci.id, "error", err)
				_ = a.stopComponents(i - 1)
				return fmt.Errorf("starting component %s: %w", ci.id, err)
			}
		}
		ci.started = true
	}
	a.logger.Info("all components started")
	return nil
}

// Stop stops all started components in reverse order. Every component is
// stopped even if an earlier one fails; the errors are joined.
func (a *App) Stop() error {
	return a.stopComponents(len(a.components) - 1)
}

func (a *App) stopComponents(fromIndex int) error {
	ctx := context.Background()
	if a.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.shutdownTimeout)
		defer cancel()
	}

	var errs []error
	for i := fromIndex; i >= 0; i-- {
		ci := &a.components[i]
		if !ci.started {
			continue
		}
		if s, ok := ci.component.(Stopper); ok {
			a.logger.Info("stopping component", "id", ci.id)
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("component stop error", "id", ci.id, "error", err)
				errs = append(errs, fmt.Errorf("stopping component %s: %w", ci.id, err))
			}
		}
		ci.started = false
	}
	return errors.Join(errs...)
}

// Run starts all components and blocks until ctx is done, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown requested", "cause", context.Cause(ctx))

	err := a.Stop()
	a.logger.Info("shutdown complete")
	return err
}
