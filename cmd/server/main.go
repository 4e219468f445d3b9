package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oranofz/taskmanagement/internal/authapp"
	"github.com/oranofz/taskmanagement/internal/cache"
	"github.com/oranofz/taskmanagement/internal/config"
	"github.com/oranofz/taskmanagement/internal/db"
	"github.com/oranofz/taskmanagement/internal/events"
	"github.com/oranofz/taskmanagement/internal/httpapi"
	"github.com/oranofz/taskmanagement/internal/mediator"
	"github.com/oranofz/taskmanagement/internal/password"
	"github.com/oranofz/taskmanagement/internal/repo"
	"github.com/oranofz/taskmanagement/internal/taskapp"
	"github.com/oranofz/taskmanagement/internal/tenant"
	"github.com/oranofz/taskmanagement/internal/tokens"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "taskmanagement").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	c := cache.New(rdb, cfg.CacheTimeout)

	keyPair, err := tokens.LoadKeyPair(cfg.RSAPrivateKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RSA signing key")
	}
	keySet := tokens.NewKeySet(keyPair)

	repos := repo.New(pool)
	tokenSvc := tokens.NewService(keySet, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, repos.RefreshToken)
	tenantResolver := tenant.New(repos.Tenant, c, cfg.TenantApexHost)

	oracle := password.NewBreachOracle(cfg.BreachOracleURL, cfg.BreachOracleTimeout, cfg.BreachOracleFailOpen)
	passwordPolicy := &password.Policy{Oracle: oracle}

	authHandlers := &authapp.Handlers{
		Users:       repos.User,
		Policy:      passwordPolicy,
		Tokens:      tokenSvc,
		RefreshRepo: repos.RefreshToken,
		Outbox:      repos.Outbox,
	}

	bus := events.NewBus()
	bus.Subscribe(repos.AuditLog.Subscriber())
	outboxWorker := events.NewWorker(repos.Outbox, bus, cfg.OutboxPollInterval)

	med := mediator.New(repos.BeginTx, repos.FlushOutbox)
	taskHandlers := &taskapp.Handlers{Tasks: repos.Task, Comments: repos.Comment, Audit: repos.AuditLog}
	taskapp.Register(med, taskHandlers)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		outboxWorker.Run(workerCtx)
		close(workerDone)
	}()

	srv := httpapi.NewServer(outboxWorker.DeadLetterCount)
	srv.Repos = repos
	srv.Cache = c
	srv.Mediator = med
	srv.TenantResolver = tenantResolver
	srv.Tokens = tokenSvc
	srv.PasswordPolicy = passwordPolicy
	srv.Auth = authHandlers
	srv.RateLimit = httpapi.RateLimitConfig{
		WindowSeconds: cfg.RateLimitWindowSeconds,
		MaxRequests:   cfg.RateLimitMaxRequests,
	}
	srv.CORSOrigins = cfg.CORSOrigins
	srv.MFAIssuer = "TaskManagement"

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	cancelWorker()
	<-workerDone

	log.Info().Msg("server stopped")
}
