package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes Validate.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{Version: "1", Timezone: "UTC"}
	cfg.Content.Path = "site.db"
	cfg.Mail.Host = "smtp.example.com"
	cfg.Mail.From = "news@example.com"
	cfg.Defaults(t.TempDir())
	return cfg
}

func boolPtr(b bool) *bool { return &b }

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}

func TestValidate_MissingVersion(t *testing.T) {
	cfg := validConfig(t)
	cfg.Version = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing version")
	}
	if !strings.Contains(err.Error(), "version") {
		t.Errorf("error should mention version: %v", err)
	}
}

func TestValidate_UnsupportedVersion(t *testing.T) {
	cfg := validConfig(t)
	cfg.Version = "99"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "99") {
		t.Fatalf("expected unsupported version error, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "level"},
		{"store driver", func(c *Config) { c.Store.Driver = "postgres" }, "store driver"},
		{"misfire grace", func(c *Config) {
			g := -time.Second
			c.Scheduler.MisfireGrace = &g
		}, "misfire_grace"},
		{"shutdown timeout", func(c *Config) {
			d := -time.Second
			c.Scheduler.ShutdownTimeout = &d
		}, "shutdown_timeout"},
		{"digest schedule", func(c *Config) { c.Jobs.Digest.Schedule = "every monday" }, "jobs.digest.schedule"},
		{"digest site url", func(c *Config) { c.Jobs.Digest.SiteURL = "localhost" }, "site_url"},
		{"digest subject", func(c *Config) { c.Jobs.Digest.Subject = "{{.Category" }, "jobs.digest.subject"},
		{"retention schedule", func(c *Config) { c.Jobs.Retention.Schedule = "61 * * * * *" }, "jobs.retention.schedule"},
		{"mail from", func(c *Config) { c.Mail.From = "not an address" }, "from"},
		{"content path", func(c *Config) { c.Content.Path = "" }, "content: path"},
		{"gateway bind", func(c *Config) {
			c.Gateway.Enabled = true
			c.Gateway.Bind = "nowhere"
		}, "bind"},
		{"telemetry ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "sample_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_DisabledDigestSkipsDependencies(t *testing.T) {
	cfg := validConfig(t)
	cfg.Jobs.Digest.Enabled = boolPtr(false)
	cfg.Jobs.Digest.Schedule = "garbage"
	cfg.Content.Path = ""
	cfg.Mail.From = ""

	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled digest should not be validated: %v", err)
	}
}

func TestValidate_MemoryStore(t *testing.T) {
	cfg := validConfig(t)
	cfg.Store.Driver = StoreMemory
	cfg.Store.BusyTimeout = -1

	if err := Validate(cfg); err != nil {
		t.Fatalf("memory store ignores sqlite settings: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Version = ""
	cfg.Jobs.Digest.Schedule = "bad"
	cfg.Log.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"version", "jobs.digest.schedule", "format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestValidate_PlaceholderCadenceAccepted(t *testing.T) {
	cfg := validConfig(t)
	cfg.Jobs.Digest.Schedule = "*/10 * * * * *"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
