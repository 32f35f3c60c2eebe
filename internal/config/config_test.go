package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("listen = %s", cfg.Listen)
	}
	d := cfg.Delivery
	if d.Workers != 4 || d.TimeoutSec != 5 || d.MaxRetries != 5 || d.RetryBaseMs != 1000 {
		t.Fatalf("delivery defaults wrong: %+v", d)
	}
	if d.EventMaxAge() != 0 {
		t.Fatal("expiry should be disabled by default")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: ":9090"
databaseUrl: "postgres://localhost/hooks"
delivery:
  workers: 8
  maxRetries: 2
  eventMaxAgeSec: 3600
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.DatabaseURL != "postgres://localhost/hooks" {
		t.Fatalf("top-level fields wrong: %+v", cfg)
	}
	if cfg.Delivery.Workers != 8 || cfg.Delivery.MaxRetries != 2 {
		t.Fatalf("delivery section wrong: %+v", cfg.Delivery)
	}
	if cfg.Delivery.EventMaxAge() != time.Hour {
		t.Fatalf("eventMaxAge = %v", cfg.Delivery.EventMaxAge())
	}
	// fields absent from the file keep their defaults
	if cfg.Delivery.TimeoutSec != 5 {
		t.Fatalf("timeoutSec should default, got %d", cfg.Delivery.TimeoutSec)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("listen = %s", cfg.Listen)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed yaml must error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("DATABASE_URL", "postgres://db")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("WEBHOOK_WORKERS", "16")
	t.Setenv("WEBHOOK_MAX_RETRIES", "1")
	t.Setenv("WEBHOOK_RATE_LIMIT", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":7777" || cfg.DatabaseURL != "postgres://db" || cfg.RedisURL != "redis://cache:6379" {
		t.Fatalf("env overrides wrong: %+v", cfg)
	}
	if cfg.Delivery.Workers != 16 || cfg.Delivery.MaxRetries != 1 || cfg.Delivery.RateLimit != 2.5 {
		t.Fatalf("delivery env overrides wrong: %+v", cfg.Delivery)
	}
}

func TestInvalidEnvIgnored(t *testing.T) {
	t.Setenv("WEBHOOK_WORKERS", "not-a-number")
	t.Setenv("WEBHOOK_MAX_RETRIES", "-3")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Delivery.Workers != 4 || cfg.Delivery.MaxRetries != 5 {
		t.Fatalf("invalid env values must be ignored: %+v", cfg.Delivery)
	}
}

func TestWorkersFloor(t *testing.T) {
	t.Setenv("WEBHOOK_WORKERS", "0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Delivery.Workers != 1 {
		t.Fatalf("workers should floor at 1, got %d", cfg.Delivery.Workers)
	}
}
