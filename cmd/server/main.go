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

	"github.com/RichardoC/orion/internal/api"
	"github.com/RichardoC/orion/internal/auth"
	"github.com/RichardoC/orion/internal/config"
	"github.com/RichardoC/orion/internal/db"
	"github.com/RichardoC/orion/internal/extract"
	"github.com/RichardoC/orion/internal/llm"
	"github.com/RichardoC/orion/internal/relay"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to an optional YAML config file")
	flag.Parse()

	envFile, envErr := config.LoadDotenv(".env", "../.env")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Invalid log config", zap.Error(err))
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Warn("Failed to load .env file", zap.String("path", envFile), zap.Error(envErr))
	} else if envFile != "" {
		logger.Info("Loaded .env file", zap.String("path", envFile))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Errors("problems", multierr.Errors(err)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize storage",
			zap.Error(err),
			zap.String("driver", cfg.Database.Driver))
	}
	logger.Info("Storage ready", zap.String("driver", cfg.Database.Driver))

	provider, err := llm.New(cfg.LLM)
	if err != nil {
		logger.Fatal("Failed to initialize LLM provider", zap.Error(err))
	}

	chatRelay := relay.New(store, provider, logger, relay.ConfigOptions(cfg, logger)...)

	authService := auth.NewService(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	extractor := extract.New(cfg.Upload.MaxBytes, cfg.Upload.MaxChars, cfg.Upload.MaxPDFPages)

	handler := api.NewHandler(store, authService, chatRelay, extractor, logger)
	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: handler.Routes(api.RouterOptions{
			CORSOrigins: cfg.Server.CORSOrigins,
			RateLimit:   cfg.Server.RateLimit,
			StaticDir:   cfg.Server.StaticDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = multierr.Combine(server.Shutdown(shutdownCtx), store.Close())
	if err != nil {
		logger.Error("Unclean shutdown", zap.Error(err))
	}
}
