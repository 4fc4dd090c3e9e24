// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"finkargo-billing/internal/domain"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/domain/ports/repository"
	"finkargo-billing/internal/infra/logging"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// CreatePayment stores a PENDING payment for a company.
	CreatePayment(ctx context.Context, in NewPaymentInput) (*model.Payment, error)
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	// GetPaymentByReference returns the payment with its company and subscription.
	// domain.ErrNotFound when absent.
	GetPaymentByReference(ctx context.Context, reference string) (*PaymentDetails, error)
	UpdatePaymentByReference(ctx context.Context, reference string, patch model.PaymentPatch) (*model.Payment, error)
	// CompletePayment marks the payment COMPLETED and creates or renews the company
	// subscription in one transaction. Already completed payments are left untouched.
	CompletePayment(ctx context.Context, reference, providerPaymentID string) (*Completion, error)
	// CompletePaymentWith is CompletePayment carrying the provider details of the approval.
	CompletePaymentWith(ctx context.Context, reference string, in CompletionInput) (*Completion, error)
}

// CompletionInput is what the approving provider event adds to the payment row.
type CompletionInput struct {
	ProviderPaymentID string
	PaymentMethod     string
	Metadata          map[string]any
}

type NewPaymentInput struct {
	CompanyID     string
	Reference     string
	Amount        int64
	Currency      string
	Provider      model.PaymentProvider
	PlanType      model.PlanType
	BillingCycle  model.BillingCycle
	CustomerEmail string
	Description   string
	Metadata      map[string]any
}

type PaymentDetails struct {
	Payment      *model.Payment
	Company      *model.Company
	Subscription *model.Subscription // nil until the payment completes
}

// Completion is the result of CompletePayment.
type Completion struct {
	Payment      *model.Payment
	Subscription *model.Subscription
	// AlreadyCompleted is set when the payment was COMPLETED before this call.
	AlreadyCompleted bool
	// Renewal is set when an existing subscription was overwritten.
	Renewal bool
}

type paymentUC struct {
	payments  repository.PaymentRepository
	subs      repository.SubscriptionRepository
	companies repository.CompanyRepository
	tm        repository.TransactionManager
	receipts  adapter.ReceiptSender

	log *zerolog.Logger
	now func() time.Time
}

// NewPaymentUseCase wires the payment use case. receipts may be nil.
func NewPaymentUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	companies repository.CompanyRepository,
	tm repository.TransactionManager,
	receipts adapter.ReceiptSender,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		payments:  payments,
		subs:      subs,
		companies: companies,
		tm:        tm,
		receipts:  receipts,
		log:       logger,
		now:       time.Now,
	}
}

func (u *paymentUC) CreatePayment(ctx context.Context, in NewPaymentInput) (*model.Payment, error) {
	p, err := model.NewPayment(uuid.NewString(), in.CompanyID, in.Reference, in.Amount, in.Currency,
		in.Provider, in.PlanType, in.BillingCycle, in.CustomerEmail, in.Description)
	if err != nil {
		return nil, err
	}
	for k, v := range in.Metadata {
		p.Metadata[k] = v
	}
	if err := u.payments.Insert(ctx, repository.NoTX, p); err != nil {
		return nil, fmt.Errorf("create payment %s: %w", in.Reference, err)
	}
	return p, nil
}

func (u *paymentUC) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return u.payments.FindByID(ctx, repository.NoTX, id)
}

func (u *paymentUC) GetPaymentByReference(ctx context.Context, reference string) (*PaymentDetails, error) {
	p, err := u.payments.FindByReference(ctx, repository.NoTX, reference)
	if err != nil {
		return nil, err
	}
	out := &PaymentDetails{Payment: p}
	if out.Company, err = u.companies.FindByID(ctx, repository.NoTX, p.CompanyID); err != nil {
		return nil, err
	}
	if p.SubscriptionID != nil {
		s, err := u.subs.FindByID(ctx, repository.NoTX, *p.SubscriptionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		out.Subscription = s
	}
	return out, nil
}

func (u *paymentUC) UpdatePaymentByReference(ctx context.Context, reference string, patch model.PaymentPatch) (*model.Payment, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.payments.UpdateByReference(ctx, repository.NoTX, reference, patch)
}

func (u *paymentUC) CompletePayment(ctx context.Context, reference, providerPaymentID string) (*Completion, error) {
	return u.CompletePaymentWith(ctx, reference, CompletionInput{ProviderPaymentID: providerPaymentID})
}

func (u *paymentUC) CompletePaymentWith(ctx context.Context, reference string, in CompletionInput) (*Completion, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "PaymentUC.CompletePayment")()

	var res *Completion
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		res = nil
		p, err := u.payments.FindByReference(ctx, tx, reference)
		if err != nil {
			return err
		}

		if p.Status == model.PaymentStatusCompleted {
			res = &Completion{Payment: p, AlreadyCompleted: true}
			if p.SubscriptionID != nil {
				s, err := u.subs.FindByID(ctx, tx, *p.SubscriptionID)
				if err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				res.Subscription = s
			}
			return nil
		}
		if !p.Status.CanTransitionTo(model.PaymentStatusCompleted) {
			return fmt.Errorf("%w: payment %s is %s", domain.ErrPaymentTerminal, reference, p.Status)
		}

		now := u.now()
		completed := model.PaymentStatusCompleted
		patch := model.PaymentPatch{Status: &completed, PaidAt: &now, Metadata: in.Metadata}
		if in.ProviderPaymentID != "" {
			patch.ProviderPaymentID = &in.ProviderPaymentID
		}
		if in.PaymentMethod != "" {
			patch.PaymentMethod = &in.PaymentMethod
		}
		if p, err = u.payments.UpdateByReference(ctx, tx, reference, patch); err != nil {
			return err
		}

		terms, err := model.TermsFor(p.PlanType, p.BillingCycle)
		if err != nil {
			return err
		}

		// lock the company so concurrent completions serialize on the subscription
		company, err := u.companies.FindByID(ctx, tx, p.CompanyID)
		if err != nil {
			return err
		}

		renewal := false
		sub, err := u.subs.FindByCompany(ctx, tx, company.ID)
		switch {
		case err == nil:
			if err := sub.Renew(terms, now); err != nil {
				return err
			}
			if err := u.subs.Update(ctx, tx, sub); err != nil {
				return err
			}
			renewal = true
		case errors.Is(err, domain.ErrNotFound):
			if sub, err = model.NewSubscription(uuid.NewString(), company.ID, terms, now); err != nil {
				return err
			}
			if err := u.subs.Insert(ctx, tx, sub); err != nil {
				return err
			}
		default:
			return err
		}
		if company.SubscriptionID == nil || *company.SubscriptionID != sub.ID {
			if err := u.companies.SetSubscription(ctx, tx, company.ID, sub.ID); err != nil {
				return err
			}
		}

		if err := u.payments.LinkSubscription(ctx, tx, p.ID, sub.ID); err != nil {
			return err
		}
		p.SubscriptionID = &sub.ID

		res = &Completion{Payment: p, Subscription: sub, Renewal: renewal}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("reference", reference).Msg("complete payment failed")
		return nil, err
	}

	if res.AlreadyCompleted {
		log.Info().Str("reference", reference).Msg("payment already completed; skipping")
		return res, nil
	}

	log.Info().
		Str("reference", reference).
		Str("subscription_id", res.Subscription.ID).
		Str("plan", string(res.Subscription.Plan)).
		Time("period_end", res.Subscription.CurrentPeriodEnd).
		Bool("renewal", res.Renewal).
		Msg("payment completed")

	if u.receipts != nil {
		if err := u.receipts.SendReceipt(ctx, res.Payment, res.Subscription); err != nil {
			log.Warn().Err(err).Str("reference", reference).Msg("receipt not queued")
		}
	}
	return res, nil
}
