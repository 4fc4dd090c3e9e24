package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"finkargo-billing/internal/usecase"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server exposes the webhook, checkout and payment endpoints.
type Server struct {
	checkoutUC usecase.CheckoutUseCase
	webhookUC  usecase.WebhookUseCase
	paymentUC  usecase.PaymentUseCase
	subUC      usecase.SubscriptionUseCase
	sessions   *SessionManager

	log            *zerolog.Logger
	requestTimeout time.Duration
	checks         map[string]HealthCheck
}

type Options struct {
	RequestTimeout time.Duration
	HealthChecks   map[string]HealthCheck
}

func NewServer(
	checkoutUC usecase.CheckoutUseCase,
	webhookUC usecase.WebhookUseCase,
	paymentUC usecase.PaymentUseCase,
	subUC usecase.SubscriptionUseCase,
	sessions *SessionManager,
	logger *zerolog.Logger,
	opts Options,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Server{
		checkoutUC:     checkoutUC,
		webhookUC:      webhookUC,
		paymentUC:      paymentUC,
		subUC:          subUC,
		sessions:       sessions,
		log:            logger,
		requestTimeout: opts.RequestTimeout,
		checks:         opts.HealthChecks,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.requestTimeout))

		// providers authenticate with signatures, not sessions
		r.Post("/api/webhooks/wompi", s.handleWompiWebhook)
		r.Post("/api/webhooks/stripe", s.handleStripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(s.sessions, s.log))
			r.Post("/api/wompi/create-link", s.handleWompiCheckout)
			r.Post("/api/stripe/create-checkout-session", s.handleStripeCheckout)
			r.Get("/api/payments/{id}", s.handleGetPayment)
			r.Get("/api/subscription", s.handleGetSubscription)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	out := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.Warn().Err(err).Str("check", name).Msg("health check failed")
			out[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		out[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": out})
}
