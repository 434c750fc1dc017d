package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	api "github.com/netlens/netlens/cmd/api"
	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/tracing"
)

func main() {
	var (
		configFile string
		logLevel   string
	)

	flagset := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagset.StringVar(&logLevel, "log-level", "info", "Log level. Supported values: debug, info, warn, error.")
	api.RegisterFlags(flagset, &configFile)
	if err := flagset.Parse(os.Args[1:]); err != nil {
		slog.Error("unable to parse flags", "err", err)
		os.Exit(1)
	}

	setupLogger(logLevel)

	if configFile != "" {
		if err := config.LoadConfig(configFile); err != nil {
			slog.Error("unable to load config file", "err", err)
			os.Exit(1)
		}
	}

	if err := config.ApplyMemoryLimit(); err != nil {
		slog.Warn("unable to set memory limit", "err", err)
	}

	if config.DefaultConfig.IsTracingEnabled() {
		tp, err := tracing.WithTracing(context.Background(), slog.Default())
		if err != nil {
			slog.Error("unable to set up tracing", "err", err)
			os.Exit(1)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("error shutting down tracer provider", "err", err)
			}
		}()
	}

	if err := api.Run(); err != nil {
		slog.Error("netlens exited with error", "err", err)
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
