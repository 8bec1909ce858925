// Package config reads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config holds every setting the binaries read.
type Config struct {
	Table            string
	PaymentsTable    string
	DLQURL           string
	MetricsNamespace string
	Region           string
	DynamoDBEndpoint string
	RunLocal         bool
	Backend          string
	LogLevel         slog.Level
	HTTPAddr         string
}

// Load reads the environment. With RUN_LOCAL=true a .env file in the working
// directory is loaded first; variables already set win over it.
func Load() (Config, error) {
	if os.Getenv("RUN_LOCAL") == "true" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := Config{
		Table:            os.Getenv("DYNAMODB_TABLE"),
		PaymentsTable:    os.Getenv("DYNAMODB_TABLE_PAYMENTS"),
		DLQURL:           os.Getenv("DLQ_URL"),
		MetricsNamespace: getenv("METRICS_NAMESPACE", "Marketplace"),
		Region:           getenv("AWS_REGION", "us-east-1"),
		DynamoDBEndpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		RunLocal:         os.Getenv("RUN_LOCAL") == "true",
		Backend:          strings.ToLower(getenv("STORE_BACKEND", BackendDynamoDB)),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "INFO"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	switch cfg.Backend {
	case BackendMemory:
		if cfg.Table == "" {
			cfg.Table = "marketplace"
		}
		if cfg.PaymentsTable == "" {
			cfg.PaymentsTable = "marketplace-payments"
		}
	case BackendDynamoDB:
		if cfg.Table == "" {
			return Config{}, errors.New("DYNAMODB_TABLE is required")
		}
		if cfg.PaymentsTable == "" {
			return Config{}, errors.New("DYNAMODB_TABLE_PAYMENTS is required")
		}
	default:
		return Config{}, fmt.Errorf("STORE_BACKEND %q: want %s or %s", cfg.Backend, BackendDynamoDB, BackendMemory)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewLogger returns the JSON logger every binary writes with.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}
