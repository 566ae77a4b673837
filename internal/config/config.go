// Package config resolves runtime settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr       string
	BackendURL       string
	CredentialDB     string
	CredentialHeader string
	BackendTimeout   time.Duration
	LogLevel         string
	OTelLogs         bool
	OTelLogLevel     string
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":8081",
		BackendURL:       "http://localhost:8080",
		CredentialDB:     defaultDBPath(),
		CredentialHeader: "X-API-Key",
		BackendTimeout:   10 * time.Second,
		LogLevel:         "info",
	}
}

// Load reads .env when present, then overlays the process environment on
// DefaultConfig. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the shape of os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("BACKEND_URL", &cfg.BackendURL)
	str("CREDENTIAL_DB", &cfg.CredentialDB)
	str("CREDENTIAL_HEADER", &cfg.CredentialHeader)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("OTEL_LOGS_LEVEL", &cfg.OTelLogLevel)

	if v, ok := lookup("BACKEND_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("BACKEND_TIMEOUT %q: must be a positive duration", v)
		}
		cfg.BackendTimeout = d
	}

	if v, ok := lookup("OTEL_LOGS_ENABLED"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("OTEL_LOGS_ENABLED %q: %w", v, err)
		}
		cfg.OTelLogs = b
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from .env when present.
// Existing process environment variables are not overridden.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("load .env: %w", err)
}

func defaultDBPath() string {
	if stateDir := os.Getenv("XDG_STATE_HOME"); stateDir != "" {
		return filepath.Join(stateDir, "lazycarbs", "credentials.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "lazycarbs.db"
	}
	return filepath.Join(home, ".local", "state", "lazycarbs", "credentials.db")
}
