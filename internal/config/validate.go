package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/newspaper/mailing/internal/cron"
	"github.com/newspaper/mailing/internal/digest"
)

// Validate checks the validity of a Config with defaults applied. All
// problems are reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: invalid timezone %q: %w", cfg.Timezone, err))
		} else {
			loc = l
		}
	}

	if err := cfg.Log.Validate(); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateStore(cfg.Store)...)
	errs = append(errs, validateScheduler(cfg.Scheduler)...)
	errs = append(errs, validateDigest(cfg, loc)...)
	errs = append(errs, validateRetention(cfg.Jobs.Retention, loc)...)

	if err := cfg.Gateway.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateStore(s StoreConfig) []error {
	switch s.Driver {
	case StoreMemory:
		return nil
	case StoreSQLite, "":
		if err := s.Config.Validate(); err != nil {
			return []error{err}
		}
		return nil
	default:
		return []error{fmt.Errorf("config: unknown store driver %q (want sqlite or memory)", s.Driver)}
	}
}

func validateScheduler(s SchedulerConfig) []error {
	var errs []error
	if s.MisfireGrace != nil && *s.MisfireGrace < 0 {
		errs = append(errs, fmt.Errorf("config: scheduler.misfire_grace must not be negative, got %s", *s.MisfireGrace))
	}
	if s.ShutdownTimeout != nil && *s.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: scheduler.shutdown_timeout must not be negative, got %s", *s.ShutdownTimeout))
	}
	return errs
}

// validateDigest checks the digest job and, when it is enabled, the content
// source and mail transport it depends on.
func validateDigest(cfg *Config, loc *time.Location) []error {
	d := cfg.Jobs.Digest
	if !d.IsEnabled() {
		return nil
	}

	var errs []error
	if _, err := cron.ParseTrigger(d.Schedule, loc); err != nil {
		errs = append(errs, fmt.Errorf("config: jobs.digest.schedule: %w", err))
	}
	if d.Lookback < 0 {
		errs = append(errs, fmt.Errorf("config: jobs.digest.lookback must not be negative, got %s", d.Lookback))
	}
	if d.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("config: jobs.digest.concurrency must not be negative, got %d", d.Concurrency))
	}
	if d.SiteURL != "" {
		if u, err := url.Parse(d.SiteURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: jobs.digest.site_url %q must be an absolute URL", d.SiteURL))
		}
	}
	if _, err := digest.NewRenderer(d.Subject, d.SiteURL, loc); err != nil {
		errs = append(errs, fmt.Errorf("config: jobs.digest.subject: %w", err))
	}

	if err := cfg.Content.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Mail.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func validateRetention(r RetentionConfig, loc *time.Location) []error {
	if !r.IsEnabled() {
		return nil
	}
	var errs []error
	if _, err := cron.ParseTrigger(r.Schedule, loc); err != nil {
		errs = append(errs, fmt.Errorf("config: jobs.retention.schedule: %w", err))
	}
	if r.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("config: jobs.retention.max_age must not be negative, got %d", r.MaxAge))
	}
	return errs
}
