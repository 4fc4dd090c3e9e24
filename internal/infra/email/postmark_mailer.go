package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/mrz1836/postmark"

	"finkargo-billing/internal/config"
	"finkargo-billing/internal/domain/ports/adapter"
)

var ErrSendFailed = errors.New("failed to send email")

var _ adapter.Mailer = (*PostmarkMailer)(nil)

type PostmarkMailer struct {
	client  *postmark.Client
	from    string
	replyTo string
}

// NewPostmarkMailer requires both Postmark tokens and a valid sender address.
func NewPostmarkMailer(cfg config.EmailConfig) (*PostmarkMailer, error) {
	if cfg.PostmarkServerToken == "" || cfg.PostmarkAccountToken == "" {
		return nil, errors.New("postmark server and account tokens are required")
	}
	if _, err := mail.ParseAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("invalid sender email: %w", err)
	}
	replyTo := cfg.SupportEmail
	if replyTo == "" {
		replyTo = cfg.SenderEmail
	}
	return &PostmarkMailer{
		client:  postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:    cfg.SenderEmail,
		replyTo: replyTo,
	}, nil
}

func (m *PostmarkMailer) Send(ctx context.Context, msg adapter.Email) error {
	if msg.To == "" || msg.Subject == "" {
		return fmt.Errorf("%w: recipient and subject are required", ErrSendFailed)
	}
	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:       m.from,
		ReplyTo:    m.replyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTMLBody,
		TrackOpens: true,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
