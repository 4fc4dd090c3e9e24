// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	PublicBaseURL  string        `yaml:"public_base_url" env:"PUBLIC_BASE_URL"` // used to build redirect URLs
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"` // trace|debug|info|warn|error
	Format   string `yaml:"format"`                // json|console
	Sampling bool   `yaml:"sampling"`              // enable sampling in prod
}

type DatabaseConfig struct {
	URL            string `yaml:"url" env:"DATABASE_URL"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // webhook dedupe window
}

type AuthConfig struct {
	SessionSecret string        `yaml:"session_secret" env:"SESSION_SECRET"`
	CookieName    string        `yaml:"cookie_name"`
	CookieDomain  string        `yaml:"cookie_domain"`
	SecureCookie  bool          `yaml:"secure_cookie"`
	TTL           time.Duration `yaml:"ttl"`
}

type WompiConfig struct {
	PublicKey       string           `yaml:"public_key" env:"WOMPI_PUBLIC_KEY"`
	PrivateKey      string           `yaml:"private_key" env:"WOMPI_PRIVATE_KEY"`
	EventsSecret    string           `yaml:"events_secret" env:"WOMPI_EVENTS_SECRET"`
	IntegritySecret string           `yaml:"integrity_secret" env:"WOMPI_INTEGRITY_SECRET"`
	Sandbox         bool             `yaml:"sandbox"`
	APIBaseURL      string           `yaml:"api_base_url"`
	CheckoutURL     string           `yaml:"checkout_url"`
	RedirectURL     string           `yaml:"redirect_url"`
	Currency        string           `yaml:"currency"`
	Prices          map[string]int64 `yaml:"prices"` // plan -> cents
}

type StripeConfig struct {
	SecretKey     string           `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret string           `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	SuccessURL    string           `yaml:"success_url"`
	CancelURL     string           `yaml:"cancel_url"`
	Currency      string           `yaml:"currency"`
	Prices        map[string]int64 `yaml:"prices"` // plan -> cents
}

type PaymentConfig struct {
	// Simulation replaces the Wompi gateway with a local fake that completes
	// payments immediately. Never enable it in production.
	Simulation        bool          `yaml:"simulation" env:"PAYMENT_SIMULATION"`
	DuplicateWindow   time.Duration `yaml:"duplicate_window"`
	RenewalWindow     time.Duration `yaml:"renewal_window"`
	CheckoutRateLimit int           `yaml:"checkout_rate_limit"` // per company per minute
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	AbandonAfter      time.Duration `yaml:"abandon_after"`

	Wompi  WompiConfig  `yaml:"wompi"`
	Stripe StripeConfig `yaml:"stripe"`
}

type EmailConfig struct {
	PostmarkServerToken  string `yaml:"postmark_server_token" env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `yaml:"postmark_account_token" env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `yaml:"sender_email"`
	SupportEmail         string `yaml:"support_email"`
	Locale               string `yaml:"locale"` // receipt language: es|en
}

type SchedulerConfig struct {
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

type WorkerConfig struct {
	PoolSize int `yaml:"pool_size"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Payment   PaymentConfig   `yaml:"payment"`
	Email     EmailConfig     `yaml:"email"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Worker    WorkerConfig    `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, overlays secrets from the
// environment and applies defaults. In dev mode a local .env is loaded first.
func LoadConfig(path string, dev bool) (*Config, error) {
	if dev {
		_ = godotenv.Load()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes raw YAML, overlays the environment, applies defaults and validates.
func Parse(raw []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "finkargo_session"
	}
	if cfg.Auth.TTL <= 0 {
		cfg.Auth.TTL = 12 * time.Hour
	}

	p := &cfg.Payment
	if p.DuplicateWindow <= 0 {
		p.DuplicateWindow = 2 * time.Minute
	}
	if p.RenewalWindow <= 0 {
		p.RenewalWindow = 30 * 24 * time.Hour
	}
	if p.CheckoutRateLimit <= 0 {
		p.CheckoutRateLimit = 10
	}
	if p.ReconcileInterval <= 0 {
		p.ReconcileInterval = 5 * time.Minute
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = 15 * time.Minute
	}
	if p.AbandonAfter <= 0 {
		p.AbandonAfter = 24 * time.Hour
	}
	if p.Wompi.Currency == "" {
		p.Wompi.Currency = "COP"
	}
	if p.Wompi.APIBaseURL == "" {
		p.Wompi.APIBaseURL = "https://production.wompi.co/v1"
		if p.Wompi.Sandbox {
			p.Wompi.APIBaseURL = "https://sandbox.wompi.co/v1"
		}
	}
	if p.Wompi.CheckoutURL == "" {
		p.Wompi.CheckoutURL = "https://checkout.wompi.co/p/"
	}
	if p.Stripe.Currency == "" {
		p.Stripe.Currency = "MXN"
	}
	base := strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	if p.Wompi.RedirectURL == "" && base != "" {
		p.Wompi.RedirectURL = base + "/dashboard/billing/result"
	}
	if p.Stripe.SuccessURL == "" && base != "" {
		p.Stripe.SuccessURL = base + "/dashboard/billing/result?session_id={CHECKOUT_SESSION_ID}"
	}
	if p.Stripe.CancelURL == "" && base != "" {
		p.Stripe.CancelURL = base + "/dashboard/billing"
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = time.Hour
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Email.Locale == "" {
		cfg.Email.Locale = "es"
	}
}

func (cfg *Config) validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Auth.SessionSecret == "" {
		return errors.New("auth.session_secret is required")
	}
	if !cfg.Payment.Simulation {
		w := cfg.Payment.Wompi
		if w.PublicKey == "" {
			return errors.New("payment.wompi.public_key is required")
		}
		if w.EventsSecret == "" {
			return errors.New("payment.wompi.events_secret is required")
		}
		if w.IntegritySecret == "" {
			return errors.New("payment.wompi.integrity_secret is required")
		}
	}
	if cfg.Payment.Stripe.SecretKey != "" && cfg.Payment.Stripe.WebhookSecret == "" {
		return errors.New("payment.stripe.webhook_secret is required")
	}
	return nil
}

// StripeEnabled reports whether the Stripe checkout is configured.
func (cfg *Config) StripeEnabled() bool {
	return cfg.Payment.Stripe.SecretKey != ""
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
