package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/newspaper/mailing/internal/config"
	"github.com/newspaper/mailing/internal/core"
	"github.com/newspaper/mailing/internal/cron"
	"github.com/newspaper/mailing/internal/digest"
	"github.com/newspaper/mailing/internal/gateway"
	"github.com/newspaper/mailing/internal/telemetry"
	contentsqlite "github.com/newspaper/mailing/modules/content/sqlite"
	"github.com/newspaper/mailing/modules/mail"
	storesqlite "github.com/newspaper/mailing/modules/store/sqlite"
)

// shutdownMargin is added to the scheduler's bound to leave room for the
// gateway and the stores to close.
const shutdownMargin = 5 * time.Second

// runtime is the wired process: the component lifecycle plus handles the
// tests inspect.
type runtime struct {
	app      *core.App
	sched    *cron.Scheduler
	gateway  *gateway.Gateway
	registry *prometheus.Registry
}

// build opens every resource named by cfg and registers the jobs. Resources
// opened before a failure are released. Start order: telemetry, job store,
// content source, scheduler, gateway.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rt *runtime, err error) {
	var cleanup []core.Stopper
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i].Stop(context.Background())
		}
	}()

	shutdown := *cfg.Scheduler.ShutdownTimeout
	appTimeout := time.Duration(0)
	if shutdown > 0 {
		appTimeout = shutdown + cfg.Gateway.ShutdownTimeout + shutdownMargin
	}
	application := core.NewApp(logger, appTimeout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	tracingStop := core.StopFunc(shutdownTracing)
	cleanup = append(cleanup, tracingStop)
	application.Add("telemetry", tracingStop)

	jobs, execs, storeStop, err := openJobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if storeStop != nil {
		cleanup = append(cleanup, storeStop)
		application.Add("store", storeStop)
	}

	cronMetrics := cron.NewMetrics(reg)
	sched := cron.NewScheduler(cron.Options{
		Store:           jobs,
		Log:             execs,
		Logger:          logger,
		Location:        cfg.Location(),
		Metrics:         cronMetrics,
		MisfireGrace:    *cfg.Scheduler.MisfireGrace,
		ShutdownTimeout: shutdown,
	})

	if cfg.Jobs.Digest.IsEnabled() {
		source, err := contentsqlite.Open(ctx, cfg.Content)
		if err != nil {
			return nil, err
		}
		cleanup = append(cleanup, source)
		application.Add("content", source)

		job, err := newDigestJob(cfg, source, logger, reg)
		if err != nil {
			return nil, err
		}
		if err := sched.RegisterJob(ctx, job); err != nil {
			return nil, fmt.Errorf("registering %s: %w", job.Name(), err)
		}
	}

	if cfg.Jobs.Retention.IsEnabled() {
		job := &cron.RetentionJob{
			Log:          execs,
			MaxAge:       cfg.Jobs.Retention.MaxAgeDuration(),
			Logger:       logger,
			Metrics:      cronMetrics,
			ScheduleExpr: cfg.Jobs.Retention.Schedule,
		}
		if err := sched.RegisterJob(ctx, job); err != nil {
			return nil, fmt.Errorf("registering %s: %w", job.Name(), err)
		}
	}

	application.Add("scheduler", sched)

	rt = &runtime{app: application, sched: sched, registry: reg}
	if cfg.Gateway.Enabled {
		rt.gateway = gateway.New(cfg.Gateway, gateway.Options{
			Scheduler: sched,
			Gatherer:  reg,
			Metrics:   gateway.NewMetrics(reg),
			Logger:    logger,
		})
		application.Add("gateway", rt.gateway)
	}

	return rt, nil
}

// openJobStore returns the job store and execution log selected by
// store.driver, and the stopper that closes them, if any.
func openJobStore(ctx context.Context, cfg *config.Config) (cron.JobStore, cron.ExecutionLog, core.Stopper, error) {
	if cfg.Store.Driver == config.StoreMemory {
		mem := cron.NewMemoryStore()
		return mem, mem, nil, nil
	}
	store, err := storesqlite.Open(ctx, cfg.Store.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, store, store, nil
}

func newDigestJob(cfg *config.Config, source *contentsqlite.Source, logger *slog.Logger, reg prometheus.Registerer) (*digest.Job, error) {
	mailer, err := mail.New(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}
	d := cfg.Jobs.Digest
	return digest.New(digest.Config{
		Schedule:    d.Schedule,
		Lookback:    d.Lookback,
		Concurrency: d.Concurrency,
		SiteURL:     d.SiteURL,
		Subject:     d.Subject,
		Location:    cfg.Location(),
	}, digest.Deps{
		Source:      source,
		Subscribers: source,
		Mailer:      mailer,
		Logger:      logger,
		Metrics:     digest.NewMetrics(reg),
	})
}
