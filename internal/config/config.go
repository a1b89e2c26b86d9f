package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	RateLimit          string

	SessionStore string
	SessionTTL   time.Duration
	Currency     string
	TaxRate      decimal.Decimal

	PaymentProvider       string
	StripeSecretKey       string
	PaymentCaptureTimeout time.Duration

	CatalogProvider string
	CatalogBaseURL  string
	CatalogCategory string
	CatalogCacheTTL time.Duration
	CatalogTimeout  time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	EventsBackend string
	KafkaBrokers  []string
	KafkaTopic    string

	PublicBaseURL string
	TermsURL      string
	PrivacyURL    string
	MerchantName  string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	taxRate, err := decimal.NewFromString(valueOrDefault(k.String("PRICING_TAX_RATE"), "0.10"))
	if err != nil {
		return nil, fmt.Errorf("PRICING_TAX_RATE: %w", err)
	}
	publicBase := strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:8080"), "/")

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RateLimit:          valueOrDefault(k.String("RATE_LIMIT"), "100-M"),

		SessionStore: strings.ToLower(valueOrDefault(k.String("SESSION_STORE"), "memory")),
		SessionTTL:   parseDuration(k.String("SESSION_TTL"), "24h"),
		Currency:     strings.ToLower(valueOrDefault(k.String("CURRENCY_CODE"), "usd")),
		TaxRate:      taxRate,

		PaymentProvider:       strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "sandbox")),
		StripeSecretKey:       k.String("STRIPE_SECRET_KEY"),
		PaymentCaptureTimeout: parseDuration(k.String("PAYMENT_CAPTURE_TIMEOUT"), "15s"),

		CatalogProvider: strings.ToLower(valueOrDefault(k.String("CATALOG_PROVIDER"), "static")),
		CatalogBaseURL:  valueOrDefault(k.String("CATALOG_BASE_URL"), "https://fakestoreapi.com"),
		CatalogCategory: k.String("CATALOG_CATEGORY"),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogTimeout:  parseDuration(k.String("CATALOG_TIMEOUT"), "5s"),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),

		EventsBackend: strings.ToLower(valueOrDefault(k.String("EVENTS_BACKEND"), "none")),
		KafkaBrokers:  splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaTopic:    valueOrDefault(k.String("KAFKA_TOPIC"), "checkout-events"),

		PublicBaseURL: publicBase,
		TermsURL:      valueOrDefault(k.String("TERMS_URL"), publicBase+"/terms"),
		PrivacyURL:    valueOrDefault(k.String("PRIVACY_URL"), publicBase+"/privacy"),
		MerchantName:  valueOrDefault(k.String("MERCHANT_NAME"), "Demo Merchant"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when SESSION_STORE=redis")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when SESSION_STORE=postgres")
		}
	default:
		return fmt.Errorf("SESSION_STORE %q is not one of memory, redis, postgres", c.SessionStore)
	}
	switch c.PaymentProvider {
	case "sandbox":
	case "stripe":
		if c.StripeSecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER %q is not one of sandbox, stripe", c.PaymentProvider)
	}
	switch c.CatalogProvider {
	case "static", "fakestore":
	default:
		return fmt.Errorf("CATALOG_PROVIDER %q is not one of static, fakestore", c.CatalogProvider)
	}
	switch c.EventsBackend {
	case "none":
	case "asynq":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when EVENTS_BACKEND=asynq")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when EVENTS_BACKEND=kafka")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND %q is not one of none, asynq, kafka", c.EventsBackend)
	}
	if c.TaxRate.IsNegative() {
		return errors.New("PRICING_TAX_RATE must not be negative")
	}
	// The session lock is held across the whole capture.
	if c.LockTTL <= c.CheckoutCaptureTimeout() {
		return fmt.Errorf("LOCK_TTL %s must exceed PAYMENT_CAPTURE_TIMEOUT plus %s (%s)", c.LockTTL, captureGrace, c.CheckoutCaptureTimeout())
	}
	return nil
}

// captureGrace lets the payment service's own timeout fire before the
// checkout bound does.
const captureGrace = 5 * time.Second

// CheckoutCaptureTimeout bounds a capture as seen by the checkout service.
func (c *Config) CheckoutCaptureTimeout() time.Duration {
	return c.PaymentCaptureTimeout + captureGrace
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
