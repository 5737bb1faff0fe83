// Package main is the entry point for the todo list API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/todolist-api/internal/config"
	"github.com/vyrodovalexey/todolist-api/internal/events"
	"github.com/vyrodovalexey/todolist-api/internal/handler"
	"github.com/vyrodovalexey/todolist-api/internal/model"
	"github.com/vyrodovalexey/todolist-api/internal/server"
	"github.com/vyrodovalexey/todolist-api/internal/store"
)

const appName = "todolist-api"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Todo list REST API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (.toml, .yaml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, handler.Version)
		},
	})

	return cmd
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config) error {
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Strings("cors_allowed_origins", cfg.CORSAllowedOrigins),
		zap.Bool("nats_enabled", cfg.NATSURL != ""),
	)

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	hub := events.NewHub(logger)
	defer hub.Close()

	publisher, closePublisher, err := buildPublisher(cfg, hub, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	srv := server.New(cfg, logger, backend, hub, publisher)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// openBackend opens the store selected by cfg.StoreDriver.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Backend[model.TodoItem], error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		backend, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return backend, nil
	case config.StoreDriverMemory, "":
		logger.Info("using in-memory store")
		return store.NewMemoryBackend[model.TodoItem](), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStoreDriver, cfg.StoreDriver)
	}
}

// buildPublisher combines the hub with NATS publishing when configured.
// The returned func releases the NATS connection.
func buildPublisher(cfg *config.Config, hub *events.Hub, logger *zap.Logger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return hub, func() {}, nil
	}

	natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	logger.Info("publishing todo events to NATS",
		zap.String("url", cfg.NATSURL),
		zap.String("subject", cfg.NATSSubject),
	)

	closeFn := func() {
		if err := natsPublisher.Close(); err != nil {
			logger.Warn("failed to drain NATS connection", zap.Error(err))
		}
	}

	return events.NewMulti(hub, natsPublisher), closeFn, nil
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}
