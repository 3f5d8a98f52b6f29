package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/api"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/clock"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/config"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/director"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/events"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/handlers"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/keypool"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/llm"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/store"
)

func main() {
	envFiles := pflag.StringSlice("env-file", nil, "env files to load before reading the environment")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	pflag.Parse()

	cfg, err := config.Load(*envFiles...)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger := openLedger(ctx, cfg, logger)
	defer ledger.Close()

	// Redis is optional in development: it carries the activity log,
	// shared key cooldowns, cross-instance events and the rate limiter.
	var (
		redisStore  *store.RedisStore
		redisClient *redis.Client
		activity    store.ActivityLog = store.NewMemoryActivityLog(1000)
		history     handlers.History
		redisPinger handlers.Pinger
	)
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		redisClient = redisStore.Client()
		activity, history, redisPinger = redisStore, redisStore, redisStore
		logger.Info().Msg("connected to Redis")
	}

	creds := keypool.NewCredentials(cfg.OpenAIKeys)
	var keys keypool.Pool
	if redisClient != nil {
		keys, err = keypool.NewRedisPool(redisClient, creds)
	} else {
		keys, err = keypool.NewMemoryPool(clock.Real(), creds)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("no completion credentials (set OPENAI_API_KEYS)")
	}

	hub := events.NewHub(logger)
	publishers := events.Multi{hub}
	var remote *events.RedisPublisher
	if redisClient != nil {
		remote = events.NewRedisPublisher(redisClient, cfg.EventsChannel)
		publishers = append(publishers, remote)
	}

	d, err := director.New(cfg.Director, director.Deps{
		Provider: llm.NewOpenAIProvider(llm.OpenAIConfig{BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel}),
		Keys:     keys,
		Ledger:   ledger,
		Activity: activity,
		Events:   publishers,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("director init failed")
	}
	defer d.Close()

	if cfg.AgentsFile != "" {
		agents, err := store.LoadRoster(cfg.AgentsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load agent roster")
		}
		created, err := store.SeedAgents(ctx, ledger, agents)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to seed agents")
		}
		logger.Info().Int("agents", len(agents)).Int("created", created).Msg("agent roster loaded")
	}

	go d.RunWatchdog(ctx, 0)
	if remote != nil {
		go func() {
			if err := remote.Subscribe(ctx, d.HandleRemoteEvent); err != nil {
				logger.Error().Err(err).Msg("event subscription ended")
			}
		}()
	}

	h := handlers.NewHandler(d, ledger, history, redisPinger)
	router := api.NewRouter(logger, h, api.Options{
		ControlTokenHash: cfg.ControlTokenHash,
		Redis:            redisClient,
		Events:           hub,
	})
	if cfg.ControlTokenHash == "" {
		logger.Warn().Msg("CONTROL_TOKEN_HASH not set, control routes are open")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Int("credentials", len(creds)).
			Msg("starting cafe director")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")
	cancel()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server stopped")
}

// openLedger picks PostgreSQL, then SQLite, then memory.
func openLedger(ctx context.Context, cfg *config.Config, logger zerolog.Logger) store.LedgerStore {
	switch {
	case cfg.DatabaseURL != "":
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pg

	case cfg.SQLitePath != "":
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite ledger")
		return lite
	}

	logger.Warn().Msg("no ledger database configured, balances live in memory")
	return store.NewMemoryStore()
}
