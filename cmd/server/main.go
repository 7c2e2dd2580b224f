package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenggwsx/roomcast/internal/auth"
	"github.com/fenggwsx/roomcast/internal/chat"
	"github.com/fenggwsx/roomcast/internal/config"
	"github.com/fenggwsx/roomcast/internal/gateway"
	"github.com/fenggwsx/roomcast/internal/httpapi"
	"github.com/fenggwsx/roomcast/internal/storage"
	"github.com/fenggwsx/roomcast/internal/storage/redisstore"
	"github.com/fenggwsx/roomcast/internal/storage/sqlite"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.NewStore(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("sqlite ready")

	pingers := map[string]httpapi.Pinger{"sqlite": store}
	var messages storage.MessageStore = store
	if cfg.MessageBackend == config.BackendRedis {
		redisStore, err := redisstore.NewMessageStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		messages = redisStore
		pingers["redis"] = redisStore
		logger.Info().Msg("connected to Redis")
	}

	registry := chat.NewRegistry()
	engine := chat.NewEngine(registry, messages, logger)
	gw := gateway.New(engine, logger, gateway.Options{
		SendBuffer:    cfg.SendBuffer,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		MaxFrameBytes: cfg.MaxFrameBytes,
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:        logger,
		Accounts:      auth.NewService(cfg.JWT, store),
		Authenticator: auth.NewJWTAuthenticator(cfg.JWT),
		Rooms:         store,
		Messages:      messages,
		Registry:      registry,
		HistoryLimit:  cfg.HistoryLimit,
		Gateway:       gw,
		Pingers:       pingers,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.Env).Str("backend", cfg.MessageBackend).Msg("starting RoomCast server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.TCPAddr != "" {
		go func() {
			if err := gw.ListenTCP(ctx, cfg.TCPAddr); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("listener failed")
	}

	logger.Info().Msg("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("connections still open at shutdown")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.ServerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
