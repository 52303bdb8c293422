package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"jwt_secret": "0123456789abcdef0123"},
		"storage": {"postgres": {"url": "postgres://u:p@localhost:5432/lifeos?sslmode=disable"}}
	}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Mode != "inline" {
		t.Fatalf("expected inline mode, got %q", cfg.Pipeline.Mode)
	}
	if cfg.Pipeline.CacheMaxAge != 60*time.Minute {
		t.Fatalf("expected 60m cache window, got %s", cfg.Pipeline.CacheMaxAge)
	}
	if cfg.Pipeline.MaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.Pipeline.MaxRetries)
	}
	if cfg.Inference.Models.Enrichment != "gemini-2.0-flash" {
		t.Fatalf("expected enrichment model to inherit perception model, got %q", cfg.Inference.Models.Enrichment)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"jwt_secret": "0123456789abcdef0123"},
		"storage": {"postgres": {"url": "postgres://u:p@localhost:5432/lifeos"}}
	}`)
	t.Setenv("LIFEOS_PIPELINE_MODE", "queue")
	t.Setenv("LIFEOS_INFERENCE_PROVIDER", "OpenAI")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Mode != "queue" {
		t.Fatalf("expected env override to queue, got %q", cfg.Pipeline.Mode)
	}
	if cfg.Inference.Provider != "openai" {
		t.Fatalf("expected provider normalized to openai, got %q", cfg.Inference.Provider)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"short secret":           `{"server": {"jwt_secret": "x"}, "storage": {"postgres": {"url": "postgres://x"}}}`,
		"bad mode":               `{"server": {"jwt_secret": "0123456789abcdef0123"}, "pipeline": {"mode": "batch"}, "storage": {"postgres": {"url": "postgres://x"}}}`,
		"bad provider":           `{"server": {"jwt_secret": "0123456789abcdef0123"}, "inference": {"provider": "local"}, "storage": {"postgres": {"url": "postgres://x"}}}`,
		"queue without postgres": `{"server": {"jwt_secret": "0123456789abcdef0123"}, "pipeline": {"mode": "queue"}}`,
		"postgres host only":     `{"server": {"jwt_secret": "0123456789abcdef0123"}, "storage": {"postgres": {"host": "db"}}}`,
		"webhook url":            `{"server": {"jwt_secret": "0123456789abcdef0123"}, "storage": {"postgres": {"url": "postgres://x"}}, "executors": {"actions": {"create_task": {"kind": "webhook"}}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "lifeos"}
	want := "postgres://u:p@db:5432/lifeos?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("dsn mismatch: got %q want %q", got, want)
	}
	p.URL = "postgres://override"
	if got := p.DSN(); got != "postgres://override" {
		t.Fatalf("expected url to win, got %q", got)
	}
}

func TestLoadConfigWithoutPostgres(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"server": {"jwt_secret": "0123456789abcdef0123"}}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Postgres.Configured() {
		t.Fatalf("expected postgres to be unconfigured")
	}
}
