package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedbackhub/internal/app"
	"feedbackhub/internal/config"
	"feedbackhub/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logg := logger.New(cfg.Server.Env)

	a, err := app.New(cfg, logg)
	if err != nil {
		logg.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		logg.Error("failed to start", "error", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		logg.Info("shutdown signal received")
	case err := <-a.Errors():
		if err != nil {
			logg.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
}
