package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"cinemarathon/api"
	"cinemarathon/config"
	"cinemarathon/handlers"
	"cinemarathon/internal/database"
	"cinemarathon/internal/events"
	"cinemarathon/internal/logging"
	"cinemarathon/services/catalog"
	"cinemarathon/services/marathons"
	"cinemarathon/services/tokens"
	"cinemarathon/services/users"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	configPath := flag.String("config", config.DefaultPath(), "settings file (.json, .yaml or .yml)")
	flag.Parse()

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(*configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		base := logging.Base()
		base.Fatal().Err(err).Str("path", *configPath).Msg("failed to load settings")
	}

	logger := logging.Configure(logging.Config{
		Level:      settings.Log.Level,
		Console:    settings.Log.Console,
		File:       settings.Log.File,
		MaxSize:    settings.Log.MaxSize,
		MaxBackups: settings.Log.MaxBackups,
		MaxAge:     settings.Log.MaxAge,
		Compress:   settings.Log.Compress,
	})
	defer logging.Close()

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, settings.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", settings.Database.Driver).Msg("failed to open database")
	}
	defer db.Close()

	issuer, err := tokens.NewService(settings.Auth.JWTSecret, settings.TokenTTL())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token service")
	}

	tmdb := catalog.NewClient(settings.Catalog.APIKey,
		catalog.WithLanguage(settings.Catalog.Language),
		catalog.WithRateLimit(rate.Limit(settings.Catalog.RequestsPerSecond), 10),
	)
	if !tmdb.Configured() {
		logger.Warn().Msgf("no movie database API key configured; set %s or catalog.apiKey", config.EnvTMDBAPIKey)
	}
	cache := newCatalogCache(settings, logger)
	defer cache.Close()
	genres, details, queries := settings.CacheTTLs()
	catalogSvc := catalog.NewService(tmdb, cache, catalog.TTLs{Genres: genres, Details: details, Queries: queries})

	saved := marathons.NewService(db)
	hub := events.NewHub(saved)

	r := mux.NewRouter()
	api.Register(r, api.Handlers{
		Auth:      handlers.NewAuthHandler(users.NewService(db), issuer),
		Marathons: handlers.NewMarathonsHandler(saved, hub),
		Catalog:   handlers.NewCatalogHandler(catalogSvc),
		Events:    handlers.NewEventsHandler(hub),
	}, issuer, db, api.Options{AuthRateLimit: settings.Limits.AuthPerMinute, AuthRateWindow: time.Minute})

	if err := cfgManager.Watch(ctx, func(next config.Settings) {
		if next.Catalog.APIKey == settings.Catalog.APIKey {
			return
		}
		settings.Catalog.APIKey = next.Catalog.APIKey
		tmdb.SetAPIKey(next.Catalog.APIKey)
		catalogSvc.Purge(ctx)
		logger.Info().Bool("configured", tmdb.Configured()).Msg("movie database API key updated")
	}); err != nil {
		logger.Warn().Err(err).Msg("settings watcher disabled")
	}

	addr := settings.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Instrument(r, "cinemarathon"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Str("config", cfgManager.Path()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, cleaning up")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// websocket connections are hijacked and not tracked by Shutdown
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
}

func newCatalogCache(settings config.Settings, logger zerolog.Logger) catalog.Cache {
	switch settings.Cache.Backend {
	case "redis":
		cache, err := catalog.NewRedisCache(catalog.RedisConfig{
			Addr:     settings.Cache.RedisAddr,
			Password: settings.Cache.RedisPassword,
			DB:       settings.Cache.RedisDB,
		}, logging.WithComponent("catalog-cache"))
		if err == nil {
			return cache
		}
		logger.Warn().Err(err).Msg("redis cache unavailable, falling back to memory")
		return catalog.NewMemoryCache(time.Minute)
	case "none":
		return catalog.NewNoOpCache()
	default:
		return catalog.NewMemoryCache(time.Minute)
	}
}
