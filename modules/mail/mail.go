// Package mail provides the digest's mail transports: SMTP via go-mail, and
// a log-only transport for development.
package mail

import (
	"fmt"
	"log/slog"

	"github.com/newspaper/mailing/internal/digest"
)

// New returns the transport selected by cfg.Driver.
func New(cfg Config, logger *slog.Logger) (digest.Mailer, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverLog:
		return NewLog(logger), nil
	case DriverSMTP:
		return NewSMTP(cfg, logger)
	default:
		return nil, fmt.Errorf("mail: unknown driver %q", cfg.Driver)
	}
}
