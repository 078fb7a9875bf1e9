package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/newspaper/mailing/internal/cron"
)

// JobName is the scheduler ID of the digest job.
const JobName = "weekly_digest"

const (
	defaultSchedule    = "0 0 0 * * mon"
	defaultLookback    = 7 * 24 * time.Hour
	defaultConcurrency = 2
)

// Config controls a digest run.
type Config struct {
	Schedule    string        // default "0 0 0 * * mon"
	Lookback    time.Duration // default 7 days
	Concurrency int           // parallel category sends, default 2
	SiteURL     string
	Subject     string // text/template, default DefaultSubject
	Location    *time.Location
}

// Deps are the collaborators of a digest Job. Source, Subscribers and Mailer
// are required.
type Deps struct {
	Source      ContentSource
	Subscribers SubscriberResolver
	Mailer      Mailer
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Metrics     *Metrics
	Tracer      trace.Tracer
}

// Job collects the content of the lookback window and sends one message per
// category to its subscribers.
type Job struct {
	cfg         Config
	source      ContentSource
	subscribers SubscriberResolver
	mailer      Mailer
	renderer    *Renderer
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

// Compile-time interface check.
var _ cron.Job = (*Job)(nil)

// New validates cfg and builds a Job.
func New(cfg Config, deps Deps) (*Job, error) {
	if deps.Source == nil || deps.Subscribers == nil || deps.Mailer == nil {
		return nil, errors.New("digest: content source, subscriber resolver and mailer are required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/newspaper/mailing/internal/digest")
	}

	r, err := NewRenderer(cfg.Subject, cfg.SiteURL, cfg.Location)
	if err != nil {
		return nil, err
	}
	return &Job{
		cfg:         cfg,
		source:      deps.Source,
		subscribers: deps.Subscribers,
		mailer:      deps.Mailer,
		renderer:    r,
		clock:       deps.Clock,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
	}, nil
}

// Name implements cron.Job.
func (j *Job) Name() string { return JobName }

// Schedule implements cron.Job.
func (j *Job) Schedule() string { return j.cfg.Schedule }

// Run implements cron.Job. Categories are sent independently: one failing
// category does not stop the others, and every failure is reported in a
// *SendError.
func (j *Job) Run(ctx context.Context) error {
	end := j.clock.Now()
	start := end.Add(-j.cfg.Lookback)

	items, err := j.source.ListCreatedBetween(ctx, start, end)
	if err != nil {
		return fmt.Errorf("digest: listing content: %w", err)
	}
	j.metrics.setItems(len(items))

	batch := BuildBatch(items)
	if len(batch) == 0 {
		j.logger.Info("digest: nothing published in window", "start", start, "end", end)
		return nil
	}

	failures := make([]error, len(batch))
	g := new(errgroup.Group)
	g.SetLimit(j.cfg.Concurrency)
	for i, grp := range batch {
		g.Go(func() error {
			failures[i] = j.sendGroup(ctx, grp, start, end)
			return nil
		})
	}
	_ = g.Wait()

	var sendErr SendError
	sendErr.Total = len(batch)
	for i, err := range failures {
		if err != nil {
			sendErr.Failures = append(sendErr.Failures, CategoryFailure{Category: batch[i].Category, Err: err})
		}
	}

	j.logger.Info("digest: run complete",
		"items", len(items),
		"categories", len(batch),
		"failed", len(sendErr.Failures),
	)
	if len(sendErr.Failures) > 0 {
		return &sendErr
	}
	return nil
}

// sendGroup delivers the digest of one category.
func (j *Job) sendGroup(ctx context.Context, g Group, start, end time.Time) (err error) {
	ctx, span := j.tracer.Start(ctx, "digest.send",
		trace.WithAttributes(
			attribute.Int64("digest.category.id", g.Category.ID),
			attribute.String("digest.category.name", g.Category.Name),
			attribute.Int("digest.items", len(g.Items)),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			j.metrics.observe("failed", 0)
			j.logger.Error("digest: category failed", "category", g.Category.Name, "error", err)
		}
		span.End()
	}()

	addrs, err := j.subscribers.SubscribersOf(ctx, g.Category)
	if err != nil {
		return fmt.Errorf("resolving subscribers: %w", err)
	}
	to := Recipients(addrs)
	if len(to) == 0 {
		j.metrics.observe("skipped", 0)
		j.logger.Debug("digest: category has no subscribers", "category", g.Category.Name)
		return nil
	}
	span.SetAttributes(attribute.Int("digest.recipients", len(to)))

	subject, html, err := j.renderer.Render(g, start, end)
	if err != nil {
		return err
	}
	if err := j.mailer.Send(ctx, Message{Subject: subject, HTML: html, To: to}); err != nil {
		return fmt.Errorf("sending: %w", err)
	}

	j.metrics.observe("sent", len(to))
	j.logger.Info("digest: category sent",
		"category", g.Category.Name,
		"items", len(g.Items),
		"recipients", len(to),
	)
	return nil
}
