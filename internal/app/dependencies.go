package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/acp-checkout/internal/catalog"
	"github.com/noah-isme/acp-checkout/internal/checkout"
	"github.com/noah-isme/acp-checkout/internal/config"
	"github.com/noah-isme/acp-checkout/internal/events"
	"github.com/noah-isme/acp-checkout/internal/health"
	"github.com/noah-isme/acp-checkout/internal/lock"
	"github.com/noah-isme/acp-checkout/internal/obs"
	"github.com/noah-isme/acp-checkout/internal/payment"
	"github.com/noah-isme/acp-checkout/internal/pricing"
	"github.com/noah-isme/acp-checkout/internal/ratelimit"
	"github.com/noah-isme/acp-checkout/internal/repo"
	"github.com/noah-isme/acp-checkout/internal/resilience"
)

const keyPrefix = "acp:"

// Dependencies holds the process-wide collaborators built from configuration.
type Dependencies struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Validator *validator.Validate
	Limiter   *limiter.Limiter

	Sessions checkout.Store
	Catalog  catalog.Source
	Payments payment.Capturer
	Locker   lock.Locker
	Events   *events.Bus
	Probes   []health.Probe

	closers []func() error
}

// Options tweak how dependencies are built.
type Options struct {
	// Redis overrides the client built from REDIS_URL.
	Redis *redis.Client
	// MetricsEnabled turns on redis client metrics.
	MetricsEnabled bool
}

// NewDependencies connects to every backend cfg names. Close releases them.
func NewDependencies(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Validator: validator.New(validator.WithRequiredStructEnabled()),
	}
	if err := d.build(ctx, opts); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dependencies) build(ctx context.Context, opts Options) error {
	cfg := d.Config

	if err := d.connectRedis(ctx, opts); err != nil {
		return err
	}

	switch cfg.SessionStore {
	case "postgres":
		if err := d.connectPostgres(ctx); err != nil {
			return err
		}
		d.Sessions = repo.PostgresSessions{DB: d.DB}
	case "redis":
		d.Sessions = repo.RedisSessions{Client: d.Redis, Prefix: keyPrefix, TTL: cfg.SessionTTL}
	default:
		d.Sessions = repo.NewMemorySessions()
	}

	if d.Redis != nil {
		d.Locker = lock.Redis{Client: d.Redis, Prefix: keyPrefix, RetryBackoff: cfg.LockRetryBackoff}
	} else {
		d.Locker = &lock.Local{}
	}

	d.Catalog = d.newCatalog()

	payments, err := d.newPayments()
	if err != nil {
		return err
	}
	d.Payments = payments

	bus, err := d.newBus()
	if err != nil {
		return err
	}
	d.Events = bus

	limit, err := ratelimit.New(cfg.RateLimit, d.Redis, keyPrefix+"ratelimit")
	if err != nil {
		return fmt.Errorf("RATE_LIMIT: %w", err)
	}
	d.Limiter = limit
	return nil
}

func (d *Dependencies) connectRedis(ctx context.Context, opts Options) error {
	client := opts.Redis
	if client == nil {
		if d.Config.RedisURL == "" {
			return nil
		}
		redisOpts, err := redis.ParseURL(d.Config.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(redisOpts)
		d.closers = append(d.closers, client.Close)
	}
	if err := redisotel.InstrumentTracing(client); err != nil {
		d.Logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if opts.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			d.Logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	d.Redis = client
	d.Probes = append(d.Probes, health.Probe{Name: "redis", Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}})
	return nil
}

func (d *Dependencies) connectPostgres(ctx context.Context) error {
	if err := repo.Migrate(d.Config.DatabaseURL); err != nil {
		return err
	}
	poolConfig, err := pgxpool.ParseConfig(d.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "acp-checkout"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	d.closers = append(d.closers, func() error { pool.Close(); return nil })
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	d.DB = pool
	d.Probes = append(d.Probes, health.Probe{Name: "postgres", Check: pool.Ping})
	return nil
}

func (d *Dependencies) newCatalog() catalog.Source {
	cfg := d.Config
	static := catalog.NewStatic(catalog.DefaultProducts())
	if cfg.CatalogProvider != "fakestore" {
		return static
	}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "catalog", Logger: d.Logger})
	return &catalog.FakeStore{
		BaseURL:  cfg.CatalogBaseURL,
		Category: cfg.CatalogCategory,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			MaxAttempts: 3,
			BaseBackoff: 100 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     cfg.CatalogTimeout,
		},
		Cache:    catalog.NewCache(d.Redis, keyPrefix+"catalog:", cfg.CatalogCacheTTL),
		TTL:      cfg.CatalogCacheTTL,
		Fallback: static,
		Logger:   d.Logger,
	}
}

func (d *Dependencies) newPayments() (payment.Capturer, error) {
	cfg := d.Config
	var provider payment.Capturer
	switch cfg.PaymentProvider {
	case "stripe":
		provider = payment.Stripe{SecretKey: cfg.StripeSecretKey}
	case "sandbox":
		provider = payment.NewSandbox()
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
	return &payment.Service{
		Provider:     provider,
		ProviderName: cfg.PaymentProvider,
		Timeout:      cfg.PaymentCaptureTimeout,
		Breaker:      payment.NewBreaker(d.Logger),
		Logger:       d.Logger,
	}, nil
}

func (d *Dependencies) newBus() (*events.Bus, error) {
	cfg := d.Config
	bus := &events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: d.Logger}}}
	switch cfg.EventsBackend {
	case "asynq":
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse asynq redis uri: %w", err)
		}
		client := asynq.NewClient(redisOpt)
		d.closers = append(d.closers, client.Close)
		bus.Publishers = append(bus.Publishers, events.AsynqPublisher{Client: client})
	case "kafka":
		writer := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		d.closers = append(d.closers, writer.Close)
		bus.Publishers = append(bus.Publishers, events.KafkaPublisher{Writer: writer})
	}
	return bus, nil
}

// CheckoutService assembles the session state machine.
func (d *Dependencies) CheckoutService() *checkout.Service {
	cfg := d.Config
	return &checkout.Service{
		Store:          d.Sessions,
		Catalog:        d.Catalog,
		Payments:       d.Payments,
		Pricing:        pricing.NewCalculator(cfg.TaxRate),
		Validator:      d.Validator,
		IDs:            checkout.UUIDGenerator{},
		Events:         d.Events,
		Logger:         d.Logger,
		Locker:         d.Locker,
		LockTTL:        cfg.LockTTL,
		CaptureTimeout: cfg.CheckoutCaptureTimeout(),
		Currency:       cfg.Currency,
		Links: []checkout.Link{
			{Type: "terms_of_use", URL: cfg.TermsURL},
			{Type: "privacy_policy", URL: cfg.PrivacyURL},
		},
	}
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
