package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dimitrije/weavemock/internal/config"
	"github.com/dimitrije/weavemock/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		log.Fatalf("Invalid port %q: %v", cfg.Port, err)
	}

	srv := server.New(cfg.APIVersion, nil, logger)
	if err := srv.Start(port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	logger.Info("sync server listening", "base_uri", srv.BaseURI(), "api_version", cfg.APIVersion)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
