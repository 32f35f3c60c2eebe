package api

import (
	"context"
	"fmt"
	"log/slog"

	"hookrelay/internal/config"
	"hookrelay/internal/logger"
	"hookrelay/internal/registry"
	"hookrelay/internal/store"
	"hookrelay/internal/transform"
	"hookrelay/internal/webhooks"
)

type Server struct {
	Store      store.Store
	Registry   *registry.Registry
	Dispatcher *webhooks.Dispatcher
	Broker     EventBroker

	cfg *config.Config
	log *slog.Logger
}

// NewServer wires the pipeline: store (memory when no DATABASE_URL), broker
// (Redis when REDIS_URL is set), endpoint registry, transformer pipeline and
// dispatcher. Registry load failure is fatal: a pipeline with no endpoints
// silently loses every delivery, which is worse than refusing to start.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	var s store.Store
	if cfg.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		s = pg
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		broker = rb
	} else {
		broker = NewBroker()
	}

	reg := registry.New(s, cfg.Delivery)
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}

	pipeline := transform.NewPipeline()
	transform.RegisterDefaults(pipeline)

	return &Server{
		Store:      s,
		Registry:   reg,
		Dispatcher: webhooks.NewDispatcher(s, reg, pipeline, broker, cfg.Delivery),
		Broker:     broker,
		cfg:        cfg,
		log:        logger.New("api"),
	}, nil
}
