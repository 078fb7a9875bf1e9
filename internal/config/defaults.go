package config

import (
	"time"

	"github.com/newspaper/mailing/internal/cron"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultSiteURL         = "http://localhost:8000"
)

// Default returns a complete configuration with every default applied. It is
// the starting point of `config init`.
func Default() *Config {
	cfg := &Config{Version: "1", Timezone: "UTC"}
	cfg.Content.Path = "site.db"
	cfg.Mail.Host = "localhost"
	cfg.Mail.From = "noreply@example.com"
	cfg.Defaults("")
	// Resolved against data_dir at startup.
	cfg.Store.Path = ""
	return cfg
}

// Defaults fills unset fields. dataDir is used when DataDir is empty. An
// unknown Timezone leaves the location at UTC; Validate reports it.
func (c *Config) Defaults(dataDir string) {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.DataDir == "" {
		c.DataDir = dataDir
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		c.location = loc
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreSQLite
	}
	if c.Store.Driver == StoreSQLite {
		c.Store.Config.Defaults(c.DataDir)
	}

	if c.Scheduler.MisfireGrace == nil {
		g := cron.DefaultMisfireGrace
		c.Scheduler.MisfireGrace = &g
	}
	if c.Scheduler.ShutdownTimeout == nil {
		d := defaultShutdownTimeout
		c.Scheduler.ShutdownTimeout = &d
	}

	d := &c.Jobs.Digest
	if d.Schedule == "" {
		d.Schedule = "0 0 0 * * mon"
	}
	if d.Lookback <= 0 {
		d.Lookback = 7 * 24 * time.Hour
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 2
	}
	if d.SiteURL == "" {
		d.SiteURL = defaultSiteURL
	}

	r := &c.Jobs.Retention
	if r.Schedule == "" {
		r.Schedule = "0 0 0 * * mon"
	}
	if r.MaxAge <= 0 {
		r.MaxAge = int(cron.DefaultMaxAge / time.Second)
	}

	if c.Content.Timezone == "" {
		c.Content.Timezone = c.Timezone
	}
	c.Content.Defaults()
	c.Mail.Defaults()
	c.Gateway.Defaults()
}
