// Package config loads the service configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Delivery holds the worker-pool and per-endpoint defaults. Endpoint records
// may override timeout/retry settings individually at registration time.
type Delivery struct {
	Workers        int     `yaml:"workers"`
	TimeoutSec     int     `yaml:"timeoutSec"`
	MaxRetries     int     `yaml:"maxRetries"`
	RetryBaseMs    int     `yaml:"retryBaseMs"`
	RateLimit      float64 `yaml:"rateLimit"`
	EventMaxAgeSec int     `yaml:"eventMaxAgeSec"`
}

// EventMaxAge returns how old an undelivered event may get before it is
// marked expired instead of attempted. Zero disables expiry.
func (d Delivery) EventMaxAge() time.Duration {
	return time.Duration(d.EventMaxAgeSec) * time.Second
}

type Config struct {
	Listen      string   `yaml:"listen"`
	DatabaseURL string   `yaml:"databaseUrl"`
	RedisURL    string   `yaml:"redisUrl"`
	Delivery    Delivery `yaml:"delivery"`
}

// Load reads path (if non-empty and present), then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen: ":8080",
		Delivery: Delivery{
			Workers:     4,
			TimeoutSec:  5,
			MaxRetries:  5,
			RetryBaseMs: 1000,
		},
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(cfg)
	if cfg.Delivery.Workers < 1 {
		cfg.Delivery.Workers = 1
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Listen = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	envInt("WEBHOOK_WORKERS", &cfg.Delivery.Workers)
	envInt("WEBHOOK_TIMEOUT_SEC", &cfg.Delivery.TimeoutSec)
	envInt("WEBHOOK_MAX_RETRIES", &cfg.Delivery.MaxRetries)
	envInt("WEBHOOK_RETRY_BASE_MS", &cfg.Delivery.RetryBaseMs)
	envInt("WEBHOOK_EVENT_MAX_AGE_SEC", &cfg.Delivery.EventMaxAgeSec)
	if v := os.Getenv("WEBHOOK_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Delivery.RateLimit = f
		}
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}
