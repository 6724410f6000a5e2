// exilebridge - AI-enhanced price-check bridge for Path of Exile 2.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"github.com/jeranaias/exilebridge/internal/chat"
	"github.com/jeranaias/exilebridge/internal/config"
	"github.com/jeranaias/exilebridge/internal/pricecheck"
	"github.com/jeranaias/exilebridge/internal/ratelimit"
	"github.com/jeranaias/exilebridge/internal/server"
	"github.com/jeranaias/exilebridge/internal/trade"
)

// shutdownGrace bounds how long in-flight requests get on shutdown.
const shutdownGrace = 10 * time.Second

func main() {
	// A missing .env is fine, env vars may come from the environment itself.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "exilebridge: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exilebridge: logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("STARTUP_FAILED", zap.Error(err))
	}
}

// loadConfig loads configuration from the default path and the environment.
func loadConfig() (*config.Config, error) {
	path, err := config.ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "json"
	return zcfg.Build()
}

// run wires the clients, orchestrator, and server, then blocks until a
// shutdown signal arrives.
func run(cfg *config.Config, logger *zap.Logger) error {
	tradeClient := trade.NewClientWithConfig(&trade.ClientConfig{
		BaseURL: cfg.Trade.BaseURL,
		Timeout: cfg.TradeTimeout(),
		MaxRPS:  cfg.Trade.MaxRPS,
		Burst:   cfg.Trade.Burst,
	})

	chatClient := chat.NewClientWithConfig(&chat.ClientConfig{
		BaseURL: cfg.Chat.BaseURL,
		Model:   cfg.Chat.Model,
		Timeout: cfg.ProxyTimeout(),
	})

	checker := pricecheck.NewChecker(tradeClient, chatClient, pricecheck.Options{
		DefaultLeague:  cfg.Trade.DefaultLeague,
		TradeTimeout:   cfg.TradeTimeout(),
		InsightTimeout: cfg.InsightTimeout(),
	}, logger)

	limiter := ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimitWindow())

	srv := server.NewServer(cfg.Server.Port, logger).
		WithChecker(checker).
		WithChatClient(chatClient).
		WithLimiter(limiter).
		WithProxyTimeout(cfg.ProxyTimeout())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("SIGNAL_RECEIVED", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("SERVER_STOPPED")
	return nil
}
