package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sqlassist/sqlassist/internal/cli/sqlassistctl"
	"github.com/sqlassist/sqlassist/internal/config"
	"github.com/sqlassist/sqlassist/internal/observability"
	"github.com/sqlassist/sqlassist/internal/speech"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("SQLASSIST_CLI_TIMEOUT")), 2*time.Minute)

	cfg, err := config.LoadFromEnv("sqlassistctl")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	captureCfg := speech.DefaultCaptureConfig()
	captureCfg.Timeout = cfg.Speech.CaptureTimeout
	captureCfg.SampleRate = cfg.Speech.SampleRate
	cfg.Observability.LogJSON = false
	cfg.Observability.LogLevel = slog.LevelWarn
	logger := observability.NewLogger(cfg, os.Stderr)

	options := sqlassistctl.Options{
		BaseURL:  envOr("SQLASSIST_API_URL", "http://localhost:8080"),
		Timeout:  timeout,
		Capturer: speech.NewMicrophone(captureCfg, logger),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := sqlassistctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid duration %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
