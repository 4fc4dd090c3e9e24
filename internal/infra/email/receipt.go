package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/infra/adapters/payment"
	"finkargo-billing/internal/infra/i18n"
	"finkargo-billing/internal/infra/logging"
	"finkargo-billing/internal/infra/metrics"
)

const receiptTag = "payment-receipt"

var receiptTmpl = template.Must(template.New("receipt").Funcs(template.FuncMap{"t": func(k string) string { return k }}).Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>{{t "receipt_title"}}</h2>
  <p>{{t "receipt_intro"}}</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td><b>{{t "receipt_reference"}}</b></td><td>{{.Reference}}</td></tr>
    <tr><td><b>{{t "receipt_plan"}}</b></td><td>{{.Plan}}</td></tr>
    <tr><td><b>{{t "receipt_amount"}}</b></td><td>{{.Amount}}</td></tr>
    <tr><td><b>{{t "receipt_paid_at"}}</b></td><td>{{.PaidAt}}</td></tr>
    {{- if .PeriodEnd}}
    <tr><td><b>{{t "receipt_period_end"}}</b></td><td>{{.PeriodEnd}}</td></tr>
    {{- end}}
    {{- if .Method}}
    <tr><td><b>{{t "receipt_method"}}</b></td><td>{{.Method}}</td></tr>
    {{- end}}
  </table>
  {{- if .Support}}
  <p>{{t "receipt_support"}} <a href="mailto:{{.Support}}">{{.Support}}</a>.</p>
  {{- end}}
</body>
</html>`))

type receiptData struct {
	Lang      string
	Reference string
	Plan      string
	Amount    string
	PaidAt    string
	PeriodEnd string
	Method    string
	Support   string
}

var _ adapter.ReceiptSender = (*ReceiptService)(nil)

// ReceiptService renders the payment receipt and hands it to a Mailer.
type ReceiptService struct {
	mailer  adapter.Mailer
	tr      *i18n.Translator
	support string
	log     *zerolog.Logger
	dev     bool
}

// NewReceiptService uses the default language when tr is nil.
func NewReceiptService(mailer adapter.Mailer, tr *i18n.Translator, supportEmail string, logger *zerolog.Logger, dev bool) *ReceiptService {
	if tr == nil {
		tr = i18n.MustDefault()
	}
	return &ReceiptService{mailer: mailer, tr: tr, support: supportEmail, log: logger, dev: dev}
}

func (r *ReceiptService) SendReceipt(ctx context.Context, p *model.Payment, s *model.Subscription) error {
	if p == nil {
		return errors.New("receipt: nil payment")
	}
	log := logging.With(ctx, r.log)
	if strings.TrimSpace(p.CustomerEmail) == "" {
		log.Warn().Str("reference", p.Reference).Msg("receipt skipped: payment has no email")
		metrics.IncReceiptEmail("skipped")
		return nil
	}

	body, err := RenderReceipt(r.tr, p, s, r.support)
	if err != nil {
		metrics.IncReceiptEmail("error")
		return err
	}
	msg := adapter.Email{
		To:       p.CustomerEmail,
		Subject:  r.tr.T("receipt_subject", p.Reference),
		HTMLBody: body,
		Tag:      receiptTag,
	}
	if err := r.mailer.Send(ctx, msg); err != nil {
		metrics.IncReceiptEmail("error")
		log.Error().Err(err).Str("to", logging.Redact(p.CustomerEmail, r.dev)).Msg("receipt email failed")
		return err
	}
	metrics.IncReceiptEmail("sent")
	log.Info().Str("reference", p.Reference).Msg("receipt email sent")
	return nil
}

// RenderReceipt builds the receipt HTML in tr's language. s may be nil.
func RenderReceipt(tr *i18n.Translator, p *model.Payment, s *model.Subscription, support string) (string, error) {
	paid := p.UpdatedAt
	if p.PaidAt != nil {
		paid = *p.PaidAt
	}
	data := receiptData{
		Lang:      tr.Lang(),
		Reference: p.Reference,
		Plan:      planLabel(tr, p.PlanType, p.BillingCycle),
		Amount:    payment.FormatAmount(p.Amount, p.Currency),
		PaidAt:    formatDate(paid),
		Support:   support,
	}
	if s != nil && !s.CurrentPeriodEnd.IsZero() {
		data.PeriodEnd = formatDate(s.CurrentPeriodEnd)
	}
	if p.PaymentMethod != nil {
		data.Method = *p.PaymentMethod
	}

	tmpl, err := receiptTmpl.Clone()
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	tmpl.Funcs(template.FuncMap{"t": func(k string) string { return tr.T(k) }})

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return buf.String(), nil
}

func planLabel(tr *i18n.Translator, plan model.PlanType, cycle model.BillingCycle) string {
	if plan.IsTier() && cycle == model.BillingYearly {
		return string(plan) + " " + tr.T("plan_yearly_suffix")
	}
	return string(plan)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
