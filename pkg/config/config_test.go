package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/duckstack/duckstack/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Fetch.Timeout)
	}
	if !cfg.Cache.Enabled {
		t.Error("expected cache enabled by default")
	}
	if !strings.HasSuffix(cfg.DBPath, filepath.Join("duckstack", "duckstack.db")) {
		t.Errorf("unexpected default db path %s", cfg.DBPath)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_WEATHER_KEY", "k-123")

	path := writeConfig(t, `
listen: ":9090"
db_path: "test.db"
fetch:
  timeout: 5s
  user_agent: "duckstack/test"
query:
  max_rows: 50
cache:
  enabled: false
audit:
  retention_days: 7
sources:
  - name: weather
    endpoint_url: https://api.example.com/v1/forecast
    query_params:
      units: metric
    api_key_override: ${TEST_WEATHER_KEY}
    api_key_param: appid
    response_path: data.items
    ttl_seconds: 300
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.MaxBodyBytes != 64<<20 {
		t.Errorf("expected default body limit to survive, got %d", cfg.Fetch.MaxBodyBytes)
	}
	if cfg.Query.MaxRows != 50 {
		t.Errorf("expected 50 max rows, got %d", cfg.Query.MaxRows)
	}
	if cfg.Cache.Enabled {
		t.Error("expected cache disabled")
	}
	if cfg.AuditDBPath() != "test.db" {
		t.Errorf("expected audit to share test.db, got %s", cfg.AuditDBPath())
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(cfg.Sources))
	}
	src := cfg.Sources[0]
	if src.APIKeyOverride != "k-123" {
		t.Errorf("expected expanded key, got %q", src.APIKeyOverride)
	}
	if src.QueryParams["units"] != "metric" || src.TTLSeconds != 300 || src.ResponsePath != "data.items" {
		t.Errorf("unexpected source %+v", src)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "listen: [unclosed"},
		{"zero timeout", "fetch:\n  timeout: 0s\n"},
		{"negative ttl", "sources:\n  - name: a\n    endpoint_url: https://x.test\n    ttl_seconds: -1\n"},
		{"bad url", "sources:\n  - name: a\n    endpoint_url: ftp://x.test\n"},
		{"duplicate", "sources:\n  - name: a\n    endpoint_url: https://x.test\n  - name: a\n    endpoint_url: https://y.test\n"},
		{"bad format", "logging:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadInvalidSourceIsConfigError(t *testing.T) {
	path := writeConfig(t, "sources:\n  - name: a\n    endpoint_url: https://x.test\n    ttl_seconds: -5\n")
	_, err := Load(path)
	var ce *models.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ce.Source != "a" {
		t.Errorf("expected source a, got %q", ce.Source)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected defaults, got listen %s", cfg.Listen)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	log.Info().Msg("dropped")
	log.Warn().Str("source", "weather").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["message"] != "kept" || rec["source"] != "weather" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewLoggerBadLevel(t *testing.T) {
	log := newLogger(LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", log.GetLevel())
	}
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "listen: \":8080\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zerolog.Nop(), func(c *Config) {
			// A write can be observed half-done; wait for the full content.
			if c.Listen != ":9191" {
				return
			}
			select {
			case changed <- c:
			default:
			}
		})
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	var got *Config
	for got == nil {
		select {
		case got = <-changed:
		case <-tick.C:
			if err := os.WriteFile(path, []byte("listen: \":9191\"\n"), 0644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
	if got.Listen != ":9191" {
		t.Errorf("expected reloaded listen :9191, got %s", got.Listen)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
