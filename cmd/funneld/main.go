package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/funnelsight/tracker/internal/config"
	"github.com/funnelsight/tracker/internal/enrich"
	"github.com/funnelsight/tracker/internal/pipeline"
	"github.com/funnelsight/tracker/internal/server"
	"github.com/funnelsight/tracker/internal/sources"
	"github.com/funnelsight/tracker/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/funneld.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log.Info().Msg("Starting FunnelSight tracker...")

	ctx := context.Background()

	pg, err := store.NewPostgres(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema")
	}
	log.Info().Msg("Postgres ready")

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis client initialized")
	}

	enricher := enrich.New(cfg.GeoIP.DatabasePath)
	defer enricher.Close()

	pipe := pipeline.New(pg, enricher, cfg.Session.InactivityGap(), log.Logger)

	adapters := sources.NewRegistry(sources.Secrets{
		StripeSigningSecret: cfg.Providers.StripeSigningSecret,
		TypeformSecret:      cfg.Providers.TypeformSecret,
		CalendlySecret:      cfg.Providers.CalendlySecret,
		HubSpotToken:        cfg.Providers.HubSpotToken,
		ZapierSecret:        cfg.Providers.ZapierSecret,
	})

	srv := server.New(
		pipe,
		adapters,
		server.NewOrgResolver(pg, rdb),
		server.NewRateLimiter(rdb, cfg.RateLimit.RequestsPerSecond),
		log.Logger,
	)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: srv.Router(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	if err := httpServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	log.Info().Msg("Server stopped")
}
