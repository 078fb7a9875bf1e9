// Package config handles YAML configuration loading, environment variable
// expansion, defaults and validation for mailing.
package config

import (
	"time"

	"github.com/newspaper/mailing/internal/gateway"
	"github.com/newspaper/mailing/internal/logging"
	"github.com/newspaper/mailing/internal/telemetry"
	contentsqlite "github.com/newspaper/mailing/modules/content/sqlite"
	"github.com/newspaper/mailing/modules/mail"
	storesqlite "github.com/newspaper/mailing/modules/store/sqlite"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Timezone is the IANA zone triggers are evaluated in. Defaults to UTC.
	Timezone string `yaml:"timezone"`

	// DataDir holds the scheduler database. Defaults to $XDG_DATA_HOME/mailing.
	DataDir string `yaml:"data_dir"`

	Log       logging.Config       `yaml:"log"`
	Store     StoreConfig          `yaml:"store"`
	Scheduler SchedulerConfig      `yaml:"scheduler"`
	Jobs      JobsConfig           `yaml:"jobs"`
	Content   contentsqlite.Config `yaml:"content"`
	Mail      mail.Config          `yaml:"mail"`
	Gateway   gateway.Config       `yaml:"gateway"`
	Telemetry telemetry.Config     `yaml:"telemetry"`

	location *time.Location
}

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// StoreConfig selects where job state and execution records live.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "memory". The memory store loses
	// everything on restart.
	Driver string `yaml:"driver"`

	storesqlite.Config `yaml:",inline"`
}

// SchedulerConfig tunes the scheduler core.
type SchedulerConfig struct {
	// MisfireGrace is how late a persisted fire time may be at startup and
	// still run. Unset means 1s; an explicit 0 skips every missed fire.
	MisfireGrace *time.Duration `yaml:"misfire_grace"`

	// ShutdownTimeout bounds the wait for running jobs on shutdown. Unset
	// means 30s; an explicit 0 waits indefinitely.
	ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`
}

// JobsConfig configures the built-in jobs.
type JobsConfig struct {
	Digest    DigestConfig    `yaml:"digest"`
	Retention RetentionConfig `yaml:"retention"`
}

// DigestConfig configures the weekly digest job.
type DigestConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	Schedule    string        `yaml:"schedule"`
	Lookback    time.Duration `yaml:"lookback"`
	Concurrency int           `yaml:"concurrency"`
	SiteURL     string        `yaml:"site_url"`
	Subject     string        `yaml:"subject"`
}

// RetentionConfig configures the execution record retention job.
type RetentionConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Schedule string `yaml:"schedule"`

	// MaxAge is the record age in seconds beyond which finished records are
	// deleted.
	MaxAge int `yaml:"max_age"`
}

// IsEnabled reports whether the digest job should be registered. Unset
// means enabled.
func (d DigestConfig) IsEnabled() bool { return d.Enabled == nil || *d.Enabled }

// IsEnabled reports whether the retention job should be registered. Unset
// means enabled.
func (r RetentionConfig) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// MaxAgeDuration returns MaxAge as a duration.
func (r RetentionConfig) MaxAgeDuration() time.Duration {
	return time.Duration(r.MaxAge) * time.Second
}

// Location returns the resolved scheduler timezone. It is UTC until
// Defaults has loaded Timezone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
