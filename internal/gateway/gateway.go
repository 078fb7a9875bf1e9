// Package gateway serves the operator HTTP surface of the scheduler: health,
// Prometheus metrics, the job API and a live stream of execution events.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/newspaper/mailing/internal/cron"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Scheduler is the part of *cron.Scheduler the gateway exposes.
type Scheduler interface {
	States() []cron.State
	History(ctx context.Context, id string, limit int) ([]cron.Record, error)
	RunNow(ctx context.Context, id string) (cron.Record, error)
	Subscribe(buffer int) (<-chan cron.Event, func())
	Running() bool
}

// Compile-time interface check.
var _ Scheduler = (*cron.Scheduler)(nil)

// Options carries the gateway's collaborators. Gatherer may be nil, in which
// case /metrics is not mounted.
type Options struct {
	Scheduler Scheduler
	Gatherer  prometheus.Gatherer
	Metrics   *Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Gateway is the HTTP server. It is a leaf component: nothing depends on it.
type Gateway struct {
	config    Config
	sched     Scheduler
	gatherer  prometheus.Gatherer
	metrics   *Metrics
	clock     clockwork.Clock
	logger    *slog.Logger
	limiter   *rate.Limiter
	startedAt time.Time

	handlerOnce sync.Once
	handler     http.Handler

	// streams is cancelled on Stop to end hijacked websocket connections,
	// which http.Server.Shutdown does not track.
	streams      context.Context
	cancelStream context.CancelFunc

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New creates a gateway. cfg should already have Defaults applied.
func New(cfg Config, opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	g := &Gateway{
		config:    cfg,
		sched:     opts.Scheduler,
		gatherer:  opts.Gatherer,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		logger:    opts.Logger,
		startedAt: opts.Clock.Now(),
	}
	g.streams, g.cancelStream = context.WithCancel(context.Background())
	if cfg.AuthRate > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.AuthRate), cfg.AuthBurst)
	}
	return g
}

// Handler returns the routed HTTP handler. It is built once.
func (g *Gateway) Handler() http.Handler {
	g.handlerOnce.Do(func() { g.handler = g.buildRouter() })
	return g.handler
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server != nil {
		return errors.New("gateway: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadTimeout:       g.config.ReadTimeout,
		ReadHeaderTimeout: g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}
	g.addr = ln.Addr()
	server := g.server

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started, or nil.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop gracefully shuts the server down within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.cancelStream()

	g.mu.Lock()
	server := g.server
	g.mu.Unlock()
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return server.Shutdown(shutdownCtx)
}
