package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"finkargo-billing/internal/config"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	payAdapters "finkargo-billing/internal/infra/adapters/payment"
	"finkargo-billing/internal/infra/api"
	pg "finkargo-billing/internal/infra/db/postgres"
	"finkargo-billing/internal/infra/email"
	"finkargo-billing/internal/infra/i18n"
	"finkargo-billing/internal/infra/logging"
	"finkargo-billing/internal/infra/metrics"
	red "finkargo-billing/internal/infra/redis"
	"finkargo-billing/internal/infra/sched"
	"finkargo-billing/internal/infra/worker"
	"finkargo-billing/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (verbose logs, unredacted PII)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if cfg.Database.MigrateOnStart {
		if err := pg.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis (optional) ----
	var (
		limiter     adapter.RateLimiter
		deduper     adapter.EventDeduper
		redisClient *red.Client
	)
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
		deduper = red.NewEventDeduper(redisClient)
	} else {
		logger.Warn().Msg("redis.url not set; checkout rate limiting and webhook dedupe disabled")
	}

	// ---- Repositories ----
	payRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	companyRepo := pg.NewCompanyRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Gateways ----
	gateways, providers := buildGateways(cfg, logger)

	// ---- Receipts ----
	var mailer adapter.Mailer
	if cfg.Email.PostmarkServerToken != "" {
		pm, err := email.NewPostmarkMailer(cfg.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("postmark")
		}
		mailer = pm
	} else {
		logger.Warn().Msg("email.postmark_server_token not set; receipts are only logged")
		mailer = email.NewLogMailer(logger, cfg.Runtime.Dev)
	}
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Email.Locale)
	if err != nil {
		logger.Fatal().Err(err).Msg("receipt locale")
	}
	jobs := worker.NewPool(cfg.Worker.PoolSize, 30*time.Second, logger)
	// background context so queued receipts still go out after a shutdown signal
	jobs.Start(context.Background())
	receipts := worker.NewQueuedReceipts(jobs, email.NewReceiptService(mailer, tr, cfg.Email.SupportEmail, logger, cfg.Runtime.Dev))

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(payRepo, subRepo, companyRepo, txManager, receipts, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, txManager, logger)
	checkoutUC := usecase.NewCheckoutUseCase(providers, payRepo, subRepo, paymentUC, limiter, usecase.CheckoutPolicy{
		DuplicateWindow: cfg.Payment.DuplicateWindow,
		RenewalWindow:   cfg.Payment.RenewalWindow,
		RateLimit:       cfg.Payment.CheckoutRateLimit,
	}, logger)
	webhookUC := usecase.NewWebhookUseCase(gateways, payRepo, paymentUC, deduper, cfg.Redis.TTL, logger)

	// ---- HTTP ----
	checks := map[string]api.HealthCheck{
		"postgres": func(ctx context.Context) error { return pingPool(ctx, pool) },
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}
	srv := api.NewServer(checkoutUC, webhookUC, paymentUC, subUC, api.NewSessionManager(cfg.Auth), logger, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		HealthChecks:   checks,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Background workers ----
	var wg sync.WaitGroup
	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, subUC, logger)
	reconciler := sched.NewPaymentReconciler(payRepo, gateways, webhookUC,
		cfg.Payment.ReconcileInterval, cfg.Payment.StaleAfter, cfg.Payment.AbandonAfter, logger)
	wg.Add(2)
	go func() { defer wg.Done(); _ = expiry.Run(ctx) }()
	go func() { defer wg.Done(); _ = reconciler.Run(ctx) }()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	jobs.Stop()
	logger.Info().Msg("bye")
}

// buildGateways returns the webhook gateways and the checkout configuration per provider.
func buildGateways(cfg *config.Config, logger *zerolog.Logger) (map[model.PaymentProvider]adapter.PaymentGateway, map[model.PaymentProvider]usecase.CheckoutProvider) {
	gateways := map[model.PaymentProvider]adapter.PaymentGateway{}
	providers := map[model.PaymentProvider]usecase.CheckoutProvider{}

	wc := cfg.Payment.Wompi
	var wompi adapter.PaymentGateway
	if cfg.Payment.Simulation {
		logger.Warn().Msg("payment.simulation enabled; Wompi checkouts complete locally")
		wompi = payAdapters.NewSimulationGateway(wc.EventsSecret, wc.RedirectURL)
	} else {
		gw, err := payAdapters.NewWompiGateway(wc)
		if err != nil {
			logger.Fatal().Err(err).Msg("wompi gateway")
		}
		wompi = gw
	}
	gateways[model.ProviderWompi] = wompi
	providers[model.ProviderWompi] = usecase.CheckoutProvider{
		Gateway:     wompi,
		Prices:      priceTable(model.DefaultWompiPrices, wc.Prices),
		Currency:    wc.Currency,
		RedirectURL: wc.RedirectURL,
	}

	if cfg.StripeEnabled() {
		sc := cfg.Payment.Stripe
		gw, err := payAdapters.NewStripeGateway(sc)
		if err != nil {
			logger.Fatal().Err(err).Msg("stripe gateway")
		}
		gateways[model.ProviderStripe] = gw
		providers[model.ProviderStripe] = usecase.CheckoutProvider{
			Gateway:     gw,
			Prices:      priceTable(model.DefaultStripePrices, sc.Prices),
			Currency:    sc.Currency,
			RedirectURL: sc.SuccessURL,
			CancelURL:   sc.CancelURL,
		}
	} else {
		logger.Info().Msg("stripe not configured; /api/stripe endpoints disabled")
	}
	return gateways, providers
}

// priceTable overlays configured prices (keyed by plan name, any case) on defaults.
func priceTable(defaults model.PriceTable, overrides map[string]int64) model.PriceTable {
	out := make(model.PriceTable, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			out[model.PlanType(strings.ToUpper(strings.TrimSpace(k)))] = v
		}
	}
	return out
}

func pingPool(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Conn().Ping(ctx)
}
