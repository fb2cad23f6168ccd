package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/storefront/internal/app"
	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/notify"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/resilience"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	namespace := cfg.Obs.MetricsNamespace
	obs.MustRegisterDomainMetrics(namespace, nil)
	resilience.RegisterMetrics(namespace, nil)
	httpMetrics := obs.NewHTTPMetrics(namespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Obs.TracingEnabled,
		ServiceName:   cfg.Obs.ServiceName,
		Endpoint:      cfg.Obs.OTLPEndpoint,
		Exporter:      cfg.Obs.TracingExporter,
		SamplingRatio: cfg.Obs.SamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		cfg.Obs.TracingEnabled = false
	}
	defer func() {
		if shutdownTracer == nil {
			return
		}
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	infra, err := app.OpenInfra(startCtx, cfg, logger, "storefront-api")
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise infrastructure")
	}
	defer infra.Close(logger)

	provider, err := app.NewPaymentProvider(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment provider")
	}

	products := &catalog.Repository{Q: infra.DB}
	lookup := catalog.CachedLookup{
		Source: products,
		Cache:  catalog.NewCache(infra.Redis, cfg.CatalogCacheTTL),
		Logger: logger,
	}

	var receipts checkout.ReceiptQueue
	if infra.Tasks != nil {
		receipts = notify.Enqueuer{Client: infra.Tasks, Queue: notify.QueueReceipts, MaxRetry: 5}
	}

	server, err := app.NewServer(app.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Redis:    infra.Redis,
		Products: products,
		Lookup:   lookup,
		Users:    &auth.PGStore{Q: infra.DB},
		Provider: provider,
		Receipts: receipts,
		Probes: []health.Probe{
			{Name: "db", Check: infra.DB.Ping},
			{Name: "redis", Timeout: 300 * time.Millisecond, Check: func(ctx context.Context) error {
				return infra.Redis.Ping(ctx).Err()
			}},
		},
		Metrics: httpMetrics,
		Tracing: cfg.Obs.TracingEnabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise http server")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           server.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		server.Health.Drain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}
