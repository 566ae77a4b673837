package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
	if !strings.HasSuffix(cfg.CredentialDB, "credentials.db") && cfg.CredentialDB != "lazycarbs.db" {
		t.Fatalf("unexpected default credential db %q", cfg.CredentialDB)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"LISTEN_ADDR":       "127.0.0.1:9000",
		"BACKEND_URL":       "https://carbs.example",
		"CREDENTIAL_DB":     "/tmp/creds.db",
		"CREDENTIAL_HEADER": "X-Token",
		"BACKEND_TIMEOUT":   "3s",
		"LOG_LEVEL":         "debug",
		"OTEL_LOGS_ENABLED": "true",
		"OTEL_LOGS_LEVEL":   "warn",
		"BLANK_IS_IGNORED":  "",
	}))
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	want := Config{
		ListenAddr:       "127.0.0.1:9000",
		BackendURL:       "https://carbs.example",
		CredentialDB:     "/tmp/creds.db",
		CredentialHeader: "X-Token",
		BackendTimeout:   3 * time.Second,
		LogLevel:         "debug",
		OTelLogs:         true,
		OTelLogLevel:     "warn",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestFromEnvBlankValuesKeepDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{"BACKEND_URL": "  ", "BACKEND_TIMEOUT": ""}))
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.BackendURL != "http://localhost:8080" || cfg.BackendTimeout != 10*time.Second {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "timeout not a duration", env: map[string]string{"BACKEND_TIMEOUT": "soon"}},
		{name: "timeout negative", env: map[string]string{"BACKEND_TIMEOUT": "-1s"}},
		{name: "logs flag", env: map[string]string{"OTEL_LOGS_ENABLED": "maybe"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromEnv(lookupFrom(tc.env)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
