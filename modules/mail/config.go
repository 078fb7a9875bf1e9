package mail

import (
	"errors"
	"fmt"
	"net/mail"
	"time"
)

// Transport drivers.
const (
	DriverSMTP = "smtp"
	DriverLog  = "log"
)

const (
	defaultPort          = 25
	defaultTimeout       = 30 * time.Second
	defaultMaxRecipients = 50
)

// Config holds the outgoing mail configuration.
type Config struct {
	// Driver selects the transport: "smtp" (default) or "log".
	Driver string `yaml:"driver"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// From is the sender address. It is also the visible To address;
	// subscribers are addressed in Bcc.
	From string `yaml:"from"`

	// TLS is "opportunistic" (default), "mandatory" or "none".
	TLS string `yaml:"tls"`

	// Rate is the maximum number of messages per second. Zero is unlimited.
	Rate float64 `yaml:"rate"`

	// MaxRecipients caps the Bcc list of one message; larger lists are
	// split. Defaults to 50.
	MaxRecipients int `yaml:"max_recipients"`

	Timeout time.Duration `yaml:"timeout"`
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.Driver == "" {
		c.Driver = DriverSMTP
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.TLS == "" {
		c.TLS = "opportunistic"
	}
	if c.MaxRecipients <= 0 {
		c.MaxRecipients = defaultMaxRecipients
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverSMTP, "":
		if c.Host == "" {
			errs = append(errs, errors.New("mail: host is required for the smtp driver"))
		}
		if c.Port < 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("mail: invalid port %d", c.Port))
		}
		switch c.TLS {
		case "", "opportunistic", "mandatory", "none":
		default:
			errs = append(errs, fmt.Errorf("mail: tls must be opportunistic, mandatory or none, got %q", c.TLS))
		}
	case DriverLog:
	default:
		errs = append(errs, fmt.Errorf("mail: unknown driver %q", c.Driver))
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		errs = append(errs, fmt.Errorf("mail: invalid from address %q: %w", c.From, err))
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("mail: rate must be non-negative, got %v", c.Rate))
	}
	return errors.Join(errs...)
}
