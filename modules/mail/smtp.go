package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	"github.com/newspaper/mailing/internal/digest"
)

// Compile-time interface check.
var _ digest.Mailer = (*SMTPMailer)(nil)

// sender is the part of *gomail.Client the mailer uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPMailer delivers digest messages over SMTP. Every recipient is put in
// Bcc so subscribers do not see each other.
type SMTPMailer struct {
	client        sender
	from          string
	maxRecipients int
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// NewSMTP creates an SMTP mailer from cfg.
func NewSMTP(cfg Config, logger *slog.Logger) (*SMTPMailer, error) {
	cfg.Defaults()

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: create smtp client: %w", err)
	}
	return newSMTPMailer(client, cfg, logger), nil
}

func newSMTPMailer(client sender, cfg Config, logger *slog.Logger) *SMTPMailer {
	cfg.Defaults()
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	return &SMTPMailer{
		client:        client,
		from:          cfg.From,
		maxRecipients: cfg.MaxRecipients,
		limiter:       rate.NewLimiter(limit, 1),
		logger:        logger,
	}
}

func tlsPolicy(s string) gomail.TLSPolicy {
	switch s {
	case "mandatory":
		return gomail.TLSMandatory
	case "none":
		return gomail.NoTLS
	default:
		return gomail.TLSOpportunistic
	}
}

// Send implements digest.Mailer. Recipient lists longer than MaxRecipients
// go out as several identical messages.
func (m *SMTPMailer) Send(ctx context.Context, msg digest.Message) error {
	if len(msg.To) == 0 {
		return errors.New("mail: message has no recipients")
	}

	for chunk := range chunks(msg.To, m.maxRecipients) {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("mail: rate limiter: %w", err)
		}

		gm, err := m.build(msg.Subject, msg.HTML, chunk)
		if err != nil {
			return err
		}
		if err := m.client.DialAndSendWithContext(ctx, gm); err != nil {
			return fmt.Errorf("mail: send %q: %w", msg.Subject, err)
		}
		m.logger.Debug("mail: message sent", "subject", msg.Subject, "recipients", len(chunk))
	}
	return nil
}

func (m *SMTPMailer) build(subject, html string, bcc []string) (*gomail.Msg, error) {
	gm := gomail.NewMsg()
	if err := gm.From(m.from); err != nil {
		return nil, fmt.Errorf("mail: from address: %w", err)
	}
	if err := gm.To(m.from); err != nil {
		return nil, fmt.Errorf("mail: to address: %w", err)
	}
	if err := gm.Bcc(bcc...); err != nil {
		return nil, fmt.Errorf("mail: recipient address: %w", err)
	}
	gm.Subject(subject)
	gm.SetBodyString(gomail.TypeTextHTML, html)
	return gm, nil
}

// chunks yields consecutive slices of s with at most n elements.
func chunks(s []string, n int) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {
		for len(s) > 0 {
			end := min(n, len(s))
			if !yield(s[:end]) {
				return
			}
			s = s[end:]
		}
	}
}
