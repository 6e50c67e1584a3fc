package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/folio-cms/media/internal/config"
	"github.com/folio-cms/media/internal/content"
	httphandler "github.com/folio-cms/media/internal/http"
	"github.com/folio-cms/media/internal/imageproc"
	"github.com/folio-cms/media/internal/imageproc/vips"
	"github.com/folio-cms/media/internal/media"
	"github.com/folio-cms/media/internal/resolver"
	"github.com/folio-cms/media/internal/storage"
	"github.com/folio-cms/media/internal/util"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsProduction() {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func main() {
	ctx := context.Background()

	cfg := config.Load()
	logger := newLogger(cfg)
	logger.Info().Str("env", cfg.Environment).Str("storage", cfg.StorageDriver).Msg("starting portfolio media server")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.AdminAPIToken == "" {
		logger.Warn().Msg("ADMIN_API_TOKEN is not set; admin routes are open in development and closed in production")
	}

	var client *storage.Client
	var err error
	switch cfg.StorageDriver {
	case config.DriverLocal:
		client, err = storage.NewLocalClient(cfg.LocalStorageDir, cfg.R2)
	default:
		client, err = storage.NewR2Client(ctx, cfg.R2)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage client")
	}
	logger.Info().
		Str("bucket", client.Bucket).
		Bool("production", client.Production).
		Bool("platform", client.Platform).
		Msg("storage client ready")

	urls := storage.NewURLManager(cfg.R2)
	if len(urls.Bases()) == 0 {
		logger.Warn().Msg("no public base configured; uploads will not return URLs")
	}
	store := storage.NewService(client, urls, logger)

	var cache resolver.Cache = resolver.NewMemoryCache(cfg.ResolveCacheTTL)
	if cfg.RedisURL != "" {
		redisCache, err := resolver.NewRedisCache(ctx, cfg.RedisURL, cfg.ResolveCacheTTL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-memory resolve cache")
		} else {
			defer redisCache.Close()
			cache = redisCache
			logger.Info().Msg("using redis resolve cache")
		}
	}
	prober := resolver.NewProber(urls, logger,
		resolver.WithTimeout(cfg.ProbeTimeout),
		resolver.WithCache(cache),
	)

	var processor imageproc.Processor
	switch cfg.ImageProcessor {
	case "vips":
		processor = vips.NewProcessor(cfg.ImageMaxDimension, cfg.JPEGQuality, logger)
	case "none":
	default:
		processor = imageproc.NewSimpleProcessor()
	}

	mediaService := media.NewService(store, processor, util.NewHTTPFetcher(), logger, media.WithResolveCache(cache))
	mediaHandler := media.NewHandler(mediaService, prober, logger)
	normalizer := content.NewNormalizer(urls, mediaService, logger)

	server := httphandler.NewServer(cfg, logger, urls, mediaHandler, normalizer)

	httpServer := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        server.Routes(),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   90 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}
