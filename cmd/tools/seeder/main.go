package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/storefront/internal/app"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/db"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "seeder").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL, "storefront-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise database")
	}
	defer pool.Close()

	rdb, err := app.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise redis")
	}
	defer func() { _ = rdb.Close() }()

	repo := &catalog.Repository{Q: pool}
	err = lock.Locker{Client: rdb}.WithLock(ctx, "seed-products", time.Minute, func(ctx context.Context) error {
		ids, err := catalog.Seed(ctx, repo, catalog.DemoCatalog)
		if err != nil {
			return err
		}
		for name, id := range ids {
			logger.Info().Int64("product_id", id).Str("name", name).Msg("product seeded")
		}
		return nil
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed products")
	}
	// Cached entries may hold old prices.
	if err := catalog.NewCache(rdb, cfg.CatalogCacheTTL).Invalidate(ctx); err != nil {
		logger.Warn().Err(err).Msg("invalidate catalog cache")
	}
	logger.Info().Int("count", len(catalog.DemoCatalog)).Msg("seeding completed")
}
