package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/sellerforge/listing-checker/internal/api"
	"github.com/sellerforge/listing-checker/internal/batch"
	"github.com/sellerforge/listing-checker/internal/browser"
	"github.com/sellerforge/listing-checker/internal/config"
	"github.com/sellerforge/listing-checker/internal/fetch"
	"github.com/sellerforge/listing-checker/internal/fxrate"
	"github.com/sellerforge/listing-checker/internal/ratelimit"
	"github.com/sellerforge/listing-checker/internal/store"
)

func main() {
	// Missing .env is fine, env vars still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional; without it FX rates are fetched uncached.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, fx cache disabled", "error", err)
			redisClient = nil
		}
	}

	// Postgres archive is optional too.
	var archive api.Archive
	if cfg.Database.URL != "" {
		st, err := store.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		if err := st.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		archive = st
	}

	fxClient := fxrate.NewClient(redisClient, logger)
	fxHolder := &fxrate.Holder{}
	refreshRates := func() {
		rctx, rcancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer rcancel()
		rates, err := fxClient.Fetch(rctx)
		if err != nil {
			logger.Error("failed to refresh exchange rates", "error", err)
			return
		}
		fxHolder.Set(rates)
		logger.Info("exchange rates refreshed",
			"usd_jpy", rates.USDJPY, "cad_jpy", rates.CADJPY, "mxn_jpy", rates.MXNJPY)
	}
	refreshRates()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 30m", refreshRates); err != nil {
		logger.Error("failed to schedule rate refresh", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	factory := func(headless bool) (fetch.Fetcher, error) {
		opts := &browser.Options{
			Headless:             headless,
			ProfileDir:           cfg.Browser.ProfileDir,
			NavTimeout:           cfg.Browser.NavTimeout,
			UserAgent:            cfg.Browser.UserAgent,
			Locale:               cfg.Browser.Locale,
			TimezoneID:           cfg.Browser.TimezoneID,
			ViewportWidth:        cfg.Browser.ViewportWidth,
			ViewportHeight:       cfg.Browser.ViewportHeight,
			BlockedResourceTypes: browser.DefaultOptions().BlockedResourceTypes,
		}
		b, err := browser.New(opts)
		if err != nil {
			return nil, err
		}
		return fetch.NewSession(b, logger), nil
	}

	worker := fetch.NewWorker(factory, cfg.Browser.Headless, logger)
	worker.Start()
	defer worker.Stop()

	controller := batch.New(worker, logger,
		batch.WithFetchTimeout(cfg.Fetch.HardTimeout),
		batch.WithRateLimiter(ratelimit.NewSimpleRateLimiter(cfg.Fetch.PaceMinDelay, cfg.Fetch.PaceMaxDelay)),
	)

	handlers := api.NewHandlers(cfg, worker, controller, fxHolder, archive, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	handlers.Routes(r)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
