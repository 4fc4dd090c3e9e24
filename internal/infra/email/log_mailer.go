package email

import (
	"context"

	"github.com/rs/zerolog"

	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/infra/logging"
)

var _ adapter.Mailer = (*LogMailer)(nil)

// LogMailer only logs outgoing mail. Used when Postmark is not configured.
type LogMailer struct {
	log *zerolog.Logger
	dev bool
}

func NewLogMailer(logger *zerolog.Logger, dev bool) *LogMailer {
	return &LogMailer{log: logger, dev: dev}
}

func (m *LogMailer) Send(ctx context.Context, msg adapter.Email) error {
	l := logging.With(ctx, m.log)
	l.Info().
		Str("to", logging.Redact(msg.To, m.dev)).
		Str("subject", msg.Subject).
		Str("tag", msg.Tag).
		Int("bytes", len(msg.HTMLBody)).
		Msg("email not sent: no mail provider configured")
	return nil
}
