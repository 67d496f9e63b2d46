package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"innsync/internal/api"
	"innsync/internal/cache"
	"innsync/internal/config"
	"innsync/internal/database"
	"innsync/internal/export"
	"innsync/internal/fetcher"
	"innsync/internal/logging"
	"innsync/internal/metrics"
	"innsync/internal/provider"
	"innsync/internal/query"
	"innsync/internal/registry"
	"innsync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "syncd").Logger()

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := cache.NewRedisClient(cfg.Redis)
	defer func() { _ = cache.Close(redisClient) }()
	if err := cache.Ping(ctx, redisClient); err != nil {
		logger.Error().Err(err).Msg("Redis unavailable")
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, baseLogger)
	if err != nil {
		logger.Error().Err(err).Msg("database initialization failed")
		return err
	}
	defer db.Close()

	prov := provider.NewInnkeeper(cfg.Provider, baseLogger)
	providers := provider.NewRegistry()
	providers.Register(prov.Name(), prov)

	store := cache.NewStore(redisClient)
	refreshRegistry := registry.NewRefreshKeyRegistry(redisClient, baseLogger)
	reservationQueue := registry.NewReservationQueue(redisClient, baseLogger)
	blockFetcher := fetcher.New(prov, baseLogger)

	syncWorker := worker.New(
		refreshRegistry, reservationQueue, blockFetcher, store, db,
		prov, cfg.Destinations, cfg.Sync, baseLogger,
	)
	go syncWorker.Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Ops.Enabled {
		reporter := export.NewSyncReporter(refreshRegistry, cfg.Destinations, cfg.Sync.HorizonMonths, cfg.Exports.Path, baseLogger)
		opsServer := api.NewHTTPServer(
			cfg.Ops,
			syncWorker,
			query.NewAvailabilityQueryEngine(store, cfg.Destinations, cfg.Query, baseLogger),
			query.NewPackageQueryEngine(store, cfg.Destinations, cfg.Query, baseLogger),
			reporter,
			baseLogger,
		)
		go func() {
			if err := opsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("ops server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = opsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().
		Str("environment", cfg.App.Environment).
		Int("destinations", len(cfg.Destinations)).
		Msg("syncd started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	return nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("error creating database directory")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("error creating export directory")
		return err
	}
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
