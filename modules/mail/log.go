package mail

import (
	"context"
	"log/slog"

	"github.com/newspaper/mailing/internal/digest"
)

// LogMailer writes messages to the log instead of sending them. It is meant
// for development against a copy of the site database.
type LogMailer struct {
	logger *slog.Logger
}

// Compile-time interface check.
var _ digest.Mailer = (*LogMailer)(nil)

// NewLog creates a LogMailer.
func NewLog(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send implements digest.Mailer.
func (m *LogMailer) Send(_ context.Context, msg digest.Message) error {
	m.logger.Info("mail: message (log driver)",
		"subject", msg.Subject,
		"recipients", msg.To,
		"bytes", len(msg.HTML),
	)
	return nil
}
