package sqlite

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	defaultTablePrefix = "news_"
	defaultUserTable   = "auth_user"
	defaultBusyTimeout = 5000
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config locates the site database and its tables.
type Config struct {
	// Path is the site's SQLite database file.
	Path string `yaml:"path"`

	// TablePrefix is prepended to post, category, postcategory and
	// category_subscribers. Defaults to "news_".
	TablePrefix string `yaml:"table_prefix"`

	// UserTable holds subscriber email addresses. Defaults to "auth_user".
	UserTable string `yaml:"user_table"`

	// BusyTimeout is the milliseconds to wait on a lock held by the site.
	BusyTimeout int `yaml:"busy_timeout"`

	// Timezone names the zone of the naive timestamps stored by the site.
	// Sites that store UTC leave it empty.
	Timezone string `yaml:"timezone"`

	// Location overrides Timezone when set programmatically.
	Location *time.Location `yaml:"-"`
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.TablePrefix == "" {
		c.TablePrefix = defaultTablePrefix
	}
	if c.UserTable == "" {
		c.UserTable = defaultUserTable
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
		if c.Timezone != "" {
			if loc, err := time.LoadLocation(c.Timezone); err == nil {
				c.Location = loc
			}
		}
	}
}

// Validate reports configuration errors. Table names are spliced into SQL,
// so they must be plain identifiers.
func (c *Config) Validate() error {
	var errs []error
	if c.Path == "" {
		errs = append(errs, errors.New("content: path is required"))
	}
	if c.TablePrefix != "" && !identRe.MatchString(c.TablePrefix) {
		errs = append(errs, fmt.Errorf("content: invalid table_prefix %q", c.TablePrefix))
	}
	if c.UserTable != "" && !identRe.MatchString(c.UserTable) {
		errs = append(errs, fmt.Errorf("content: invalid user_table %q", c.UserTable))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("content: invalid timezone %q: %w", c.Timezone, err))
		}
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("content: busy_timeout must be non-negative, got %d", c.BusyTimeout))
	}
	return errors.Join(errs...)
}
