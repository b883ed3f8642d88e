// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/vespa-academy/homepage-backend/internal/bulkupdate"
	"github.com/vespa-academy/homepage-backend/internal/bus"
	"github.com/vespa-academy/homepage-backend/internal/consent"
	"github.com/vespa-academy/homepage-backend/internal/httpapi"
	"github.com/vespa-academy/homepage-backend/internal/jobstore"
	"github.com/vespa-academy/homepage-backend/internal/knack"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger(getenv("LOG_FORMAT", "text"))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("server starting",
		"port", cfg.Port,
		"knack_api_url", cfg.KnackAPIURL,
		"batch_size", cfg.BatchSize,
		"batch_delay", cfg.BatchDelay,
		"page_size", cfg.PageSize,
		"job_ttl", cfg.JobTTL,
	)
	if cfg.KnackAppID == "" || cfg.KnackAPIKey == "" {
		logger.Warn("no server-side Knack credentials configured; bulk updates require caller-supplied headers and consent submissions will fail")
	}

	var store jobstore.Store
	if cfg.RedisAddr != "" {
		db := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := db.Ping().Err(); err != nil {
			fatal(logger, "connect to redis", err, "addr", cfg.RedisAddr)
		}
		store = jobstore.NewRedisStore(db, cfg.JobTTL)
		logger.Info("using redis job store", "addr", cfg.RedisAddr)
	} else {
		store = jobstore.NewMemoryStore(cfg.JobTTL)
		logger.Warn("no redis configured, using in-memory job store; jobs will not survive a restart")
	}

	var events *bus.Publisher
	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		defer nc.Close()
		events = bus.NewPublisher(nc, cfg.EventSubject, logger)
		logger.Info("publishing lifecycle events", "nats_url", cfg.NATSURL, "subject", cfg.EventSubject)
	}

	client := knack.NewClient(cfg.KnackAPIURL)
	creds := knack.Credentials{ApplicationID: cfg.KnackAppID, APIKey: cfg.KnackAPIKey}

	orchestrator := bulkupdate.New(client, store, events, bulkupdate.Config{
		Object:            cfg.StudentObject,
		TargetFilterField: cfg.TargetFilterField,
		BatchSize:         cfg.BatchSize,
		PageSize:          cfg.PageSize,
		BatchDelay:        cfg.BatchDelay,
		SanitizeErrors:    cfg.SanitizeErrors,
	}, logger)

	consentSvc := consent.New(client, consent.Config{
		Object:         cfg.ConsentObject,
		EmailField:     cfg.ConsentEmailField,
		AllowedDomains: cfg.ConsentDomains,
		Password:       cfg.ConsentPassword,
		RedirectURL:    cfg.ConsentRedirectURL,
		Credentials:    creds,
	}, logger)

	handler := httpapi.NewHandler(orchestrator, store, consentSvc, creds, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.NewRouter(handler, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "serve", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func newLogger(format string) *slog.Logger {
	if format == "pretty" {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
