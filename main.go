package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sshgateway/pkg/config"
)

// main boots the gateway as a headless service: load configuration, wire
// every component, serve HTTP until interrupted, then drain in-flight
// sessions before exiting.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if _, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("failed to ensure default config; falling back to defaults", "error", err)
	}

	rt, err := config.LoadRuntime()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded", "configFile", rt.ConfigFile, "host", rt.Host, "port", rt.Port)

	server, err := NewServer(rt, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	server.Wait()
}
