package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"streamhub/pkg/api"
	"streamhub/pkg/env"
	"streamhub/pkg/initialization"
	"streamhub/pkg/logger"
)

var Version = "v0.1.0"

func main() {
	// Load environment variables for logger and bootstrap
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	// Initialize Logger early so bootstrap can use it
	logger.Init(env.LogLevel())
	defer logger.Close()

	logger.Info("Starting streamhub", "version", Version)

	comp, err := initialization.Bootstrap()
	if err != nil {
		initialization.WaitForInputAndExit(err)
	}
	cfg := comp.Config

	apiServer := api.NewServer(cfg, comp.Engine, comp.Metrics)
	defer apiServer.Close()

	// Pick up manifest changes made while we were down.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout())
		defer cancel()
		if failed := comp.Engine.RefreshAddons(ctx); len(failed) > 0 {
			logger.Warn("Some addons could not be refreshed", "failed", len(failed))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AddonPort),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			initialization.WaitForInputAndExit(fmt.Errorf("Server failed: %v", err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "err", err)
	}
}
