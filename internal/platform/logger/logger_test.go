// Package logger_test contains tests for the logger package
package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/auspexhq/insight-api/internal/config"
	"github.com/auspexhq/insight-api/internal/platform/logger"
)

func TestSetupParsesLogLevel(t *testing.T) {
	cases := []struct {
		name        string
		level       string
		wantEnabled slog.Level
		wantQuiet   slog.Level
	}{
		{"debug", "debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"info", "info", slog.LevelInfo, slog.LevelDebug},
		{"warn", "WARN", slog.LevelWarn, slog.LevelInfo},
		{"error", "Error", slog.LevelError, slog.LevelWarn},
		{"invalid falls back to info", "noisy", slog.LevelInfo, slog.LevelDebug},
	}

	original := slog.Default()
	defer slog.SetDefault(original)

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			log, err := logger.Setup(config.ServerConfig{LogLevel: c.level})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if log == nil {
				t.Fatal("Expected a configured logger")
			}

			ctx := context.Background()
			if !log.Handler().Enabled(ctx, c.wantEnabled) {
				t.Errorf("Expected level %v to be enabled", c.wantEnabled)
			}
			if log.Handler().Enabled(ctx, c.wantQuiet) {
				t.Errorf("Expected level %v to be disabled", c.wantQuiet)
			}
		})
	}
}

func TestSetupInstallsDefaultLogger(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	log, err := logger.Setup(config.ServerConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if slog.Default() != log {
		t.Error("Expected Setup to install the logger as the default")
	}
}
