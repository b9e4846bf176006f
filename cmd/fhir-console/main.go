package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vincemic/ai-fhir-pit/internal/config"
	"github.com/vincemic/ai-fhir-pit/internal/console"
	"github.com/vincemic/ai-fhir-pit/internal/mapping"
	"github.com/vincemic/ai-fhir-pit/internal/platform/auth"
	"github.com/vincemic/ai-fhir-pit/internal/platform/db"
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhirclient"
	"github.com/vincemic/ai-fhir-pit/internal/platform/middleware"
	"github.com/vincemic/ai-fhir-pit/internal/settings"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "fhir-console",
		Short:        "FHIR server console API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// app is everything the commands share: the settings manager and the
// console service on top of it.
type app struct {
	cfg     *config.Config
	store   settings.Store
	pinger  db.Pinger
	manager *settings.Manager
	service *console.Service
	close   func()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	store, pinger, closeStore, err := openSettingsStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	manager := settings.NewManager(store, cfg.DefaultServer(), logger)
	client := fhirclient.New(console.ClientConfig(manager), fhirclient.WithLogger(logger))
	service := console.NewService(manager, client, mapping.New(),
		console.WithBatchSize(cfg.SyntheticBatch),
		console.WithLogger(logger),
	)
	return &app{
		cfg:     cfg,
		store:   store,
		pinger:  pinger,
		manager: manager,
		service: service,
		close:   closeStore,
	}, nil
}

// openSettingsStore opens the backend named by SETTINGS_STORE. The returned
// Pinger is nil unless the store is backed by PostgreSQL.
func openSettingsStore(ctx context.Context, cfg *config.Config) (settings.Store, db.Pinger, func(), error) {
	switch cfg.SettingsStore {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, nil, err
		}
		store := settings.NewPGStoreFromPool(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return store, pool, pool.Close, nil
	case config.StoreRedis:
		client, err := settings.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return settings.NewRedisStore(client, ""), nil, func() { _ = client.Close() }, nil
	case config.StoreFile:
		return settings.NewFileStore(cfg.SettingsFile), nil, func() {}, nil
	default:
		return settings.NewMemoryStore(), nil, func() {}, nil
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the console API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.SettingsStore).Msg("failed to open settings store")
	}
	defer a.close()
	logger.Info().Str("store", cfg.SettingsStore).Str("fhir_server", a.manager.Current(ctx).ServerURL).Msg("settings loaded")

	e := newEcho(cfg, a, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the HTTP server. Logger runs outside Recovery so a
// recovered panic is still logged with its final status.
func newEcho(cfg *config.Config, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = console.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", "10M", "/api/v1/fhirpath"))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeout)*time.Second, "/api/v1/synthetic"))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	e.Use(middleware.RateLimit(rl))
	e.Use(middleware.Audit(logger, nil))

	e.GET("/health", console.Health)
	if a.pinger != nil {
		e.GET("/health/db", db.HealthHandler(a.pinger))
	}

	console.NewHandler(a.service).RegisterRoutes(e.Group("/api/v1"))
	return e
}

// loadApp is the common prelude of the one-shot commands.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, zerolog.Nop())
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	return a, nil
}
