// Package app wires the storefront's infrastructure and HTTP surface.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/db"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/resilience"
)

const migrationLockTTL = 2 * time.Minute

// Infra holds process-wide clients. Tasks is nil unless receipts are enabled.
type Infra struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	Tasks *asynq.Client
}

// OpenInfra connects to Postgres and Redis, applying migrations when configured.
func OpenInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger, appName string) (*Infra, error) {
	rdb, err := NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		locker := lock.Locker{Client: rdb}
		err := locker.WithLock(ctx, "migrations", migrationLockTTL, func(context.Context) error {
			return db.Migrate(cfg.DatabaseURL)
		})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		logger.Info().Msg("database migrations applied")
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL, appName)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	infra := &Infra{DB: pool, Redis: rdb}
	if cfg.ReceiptsEnabled {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			infra.Close(logger)
			return nil, fmt.Errorf("parse redis uri for tasks: %w", err)
		}
		infra.Tasks = asynq.NewClient(opt)
	}
	return infra, nil
}

// Close releases every client, logging failures.
func (i *Infra) Close(logger zerolog.Logger) {
	if i == nil {
		return
	}
	if i.Tasks != nil {
		if err := i.Tasks.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// NewRedis parses the URL, instruments the client and checks connectivity.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewPaymentProvider returns the Stripe provider behind a circuit breaker, or a
// sandbox provider when no secret key is configured.
func NewPaymentProvider(cfg *config.Config, logger zerolog.Logger) (payment.Provider, error) {
	if cfg.StripeSecretKey == "" {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, using sandbox payment provider")
		return &payment.Sandbox{BaseURL: "http://localhost" + cfg.HTTPAddr() + "/sandbox"}, nil
	}
	breaker := resilience.NewBreaker(resilience.Options{
		MinRequests:  cfg.CircuitMinRequests,
		FailureRatio: cfg.CircuitFailureRatio,
		OpenFor:      cfg.CircuitOpenFor,
		Target:       "stripe",
		Logger:       logger,
	})
	client := &http.Client{
		Timeout: cfg.PaymentTimeout,
		Transport: otelhttp.NewTransport(&resilience.Transport{
			Base:    http.DefaultTransport,
			Breaker: breaker,
		}),
	}
	stripe, err := payment.NewStripe(payment.StripeConfig{
		SecretKey:  cfg.StripeSecretKey,
		APIURL:     cfg.StripeAPIURL,
		HTTPClient: client,
		Logger:     logger.With().Str("component", "stripe").Logger(),
	})
	if err != nil {
		return nil, err
	}
	return stripe, nil
}
