// Package main provides the entry point for the network agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/adaptivenet/internal/app"
	"github.com/devrev/adaptivenet/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render configuration: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("starting network agent",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("backend_transport", cfg.Probe.BackendTransport),
		zap.String("history_backend", cfg.Probe.HistoryBackend),
		zap.String("sync_queue_backend", cfg.SyncQueue.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("agent stopped with error", zap.Error(err))
	}

	logger.Info("initiating graceful shutdown")
	if err := a.Close(); err != nil {
		logger.Error("failed to release resources", zap.Error(err))
	}
	logger.Info("network agent shutdown complete")
}

// initLogger builds the zap logger from config.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
