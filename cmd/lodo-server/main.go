// Package main is the entrypoint for the LODO directory server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lodomap/lodo/internal/activity"
	"github.com/lodomap/lodo/internal/api"
	"github.com/lodomap/lodo/internal/api/handlers"
	"github.com/lodomap/lodo/internal/api/middleware"
	"github.com/lodomap/lodo/internal/auth"
	"github.com/lodomap/lodo/internal/config"
	"github.com/lodomap/lodo/internal/db"
	"github.com/lodomap/lodo/internal/directory"
	"github.com/lodomap/lodo/internal/geocoding"
	"github.com/lodomap/lodo/internal/jobs"
	"github.com/lodomap/lodo/internal/metrics"
	"github.com/lodomap/lodo/internal/storage"
	"github.com/lodomap/lodo/internal/taxonomy"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	logger := newLogger(cfg)
	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting LODO server")

	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Database
	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	store := db.NewStore(database, logger)

	if err := taxonomy.Seed(ctx, store, logger); err != nil {
		logger.Error().Err(err).Msg("Failed to seed taxonomy catalogue")
		return 1
	}

	// Redis (optional): shared token store and rate limiting
	var (
		redisClient *goredis.Client
		tokens      auth.TokenStore
		redisPinger handlers.Pinger
		rateLimiter gin.HandlerFunc
	)
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid REDIS_URL")
			return 1
		}
		redisClient = goredis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error().Err(err).Msg("Failed to connect to Redis")
			return 1
		}

		tokens = auth.NewRedisTokenStore(redisClient, logger)
		redisPinger = handlers.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})

		rateLimiter, err = middleware.NewRedisRateLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitPeriod)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize rate limiter")
			return 1
		}
		logger.Info().Msg("Redis connected")
	} else {
		tokens = auth.NewMemoryTokenStore()
		rateLimiter, err = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize rate limiter")
			return 1
		}
		logger.Info().Msg("Redis not configured, using in-process token store")
	}

	// Directory service and activity feed
	service := directory.NewService(store, logger)
	feed := activity.NewFeed(logger)
	service.SetBroadcaster(feed)

	// Geocoding
	var geocoder *geocoding.Client
	geocodeCache, err := geocoding.OpenCache(cfg.GeocodeCachePath)
	if err != nil {
		logger.Warn().Err(err).Msg("Geocode cache unavailable, continuing without it")
		geocodeCache = nil
	} else {
		defer geocodeCache.Close()
	}
	geocoder = geocoding.NewClient(cfg.NominatimURL, geocodeCache, logger)

	// Logo storage (optional)
	var logos handlers.LogoStorage
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3LogoStore(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize logo storage")
			return 1
		}
		logos = s3Store
	}

	// Metrics
	collector := metrics.NewCollector(store, logger)
	registry := metrics.NewRegistry(collector)

	// Handlers and router
	authenticator := middleware.NewAuthenticator(cfg.AdminToken, tokens, store, logger)

	var handlerGeocoder handlers.Geocoder
	if geocoder != nil {
		handlerGeocoder = geocoder
	}

	routerCfg := api.Config{
		AllowedOrigins:    cfg.CORSOrigins,
		Environment:       cfg.Environment,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitPeriod:   cfg.RateLimitPeriod,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
	}

	router := api.NewRouter(routerCfg, api.Handlers{
		Organizations: handlers.NewOrganizationsHandler(service, handlerGeocoder, logos, store, logger),
		Public:        handlers.NewPublicHandler(service, logger),
		Taxonomies:    handlers.NewTaxonomiesHandler(store, service, logger),
		Auth:          handlers.NewAuthHandler(store, tokens, logger),
		Health:        handlers.NewHealthHandler(Version, database, redisPinger, cfg.HealthSystemInfo, logger),
		Version:       handlers.NewVersionHandler(Version, Commit, BuildDate),
	}, authenticator, rateLimiter, feed, registry, logger)

	// Background geocode backfill
	if cfg.GeocodeBackfill {
		backfill := jobs.NewGeocodeBackfill(store, service, geocoder, logger)
		if err := backfill.Start(cfg.GeocodeCron); err != nil {
			logger.Error().Err(err).Msg("Failed to start geocode backfill")
		} else {
			defer backfill.Stop()
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}

func newLogger(cfg config.ServerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.LogFormat == "console" || cfg.Environment != config.EnvProduction {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
