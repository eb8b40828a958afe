package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storefront/internal/app"
	"storefront/internal/http/handlers"
	httpapi "storefront/internal/http/httpapi"
	"storefront/internal/infra"
	"storefront/internal/infra/geoip"
	"storefront/internal/infra/redislimit"
	"storefront/internal/middleware"
	"storefront/internal/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		db, err := infra.OpenSQLDB(ctx, cfg.DatabaseURL, cfg.DBConnectTries, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrations: open database failed")
		}
		if err := migrations.Up(ctx, db); err != nil {
			logger.Fatal().Err(err).Msg("migrations: up failed")
		}
		_ = db.Close()
		logger.Info().Msg("migrations applied")
	}

	dbpool, err := infra.NewDBPool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, infra.Component(logger, "sql"))
	components, err := app.Build(ctx, cfg, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generation service")
	}

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()
	var countryLookup middleware.CountryLookup
	if resolver != nil {
		countryLookup = resolver.Lookup
	}

	var limiter middleware.Limiter
	if cfg.RedisURL != "" && cfg.RateLimitPerMin > 0 {
		rl, err := redislimit.New(cfg.RedisURL, cfg.RateLimitPerMin, time.Minute)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		defer rl.Close()
		if err := rl.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, rate limiter fails open until it recovers")
		}
		limiter = rl
	}

	handlerApp := handlers.NewApp(components.Service, &logger, dbpool.Ping)
	router := httpapi.NewRouter(handlerApp, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Limiter:         limiter,
		SecureCookies:   cfg.SessionCookieSecure,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   countryLookup,
		StaticDir:       components.Store.BasePath(),
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)
	server.OnListening(func(addr string) {
		logger.Info().Str("mode", string(components.Service.Mode())).Str("addr", addr).Msg("API listening")
	})
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	// Detached direct executions finish writing their jobs before exit.
	components.Service.Wait()
	logger.Info().Msg("server stopped")
}
