// Package registry keeps the live view of registered webhook endpoints.
//
// The durable store is the source of truth; the registry caches every
// endpoint in memory behind a read-write lock because lookups happen on every
// emission and every worker attempt, while administrative writes are rare.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"hookrelay/internal/config"
	"hookrelay/internal/model"
	"hookrelay/internal/store"
)

// ErrInvalid is returned for registration/update payloads that fail validation.
var ErrInvalid = errors.New("invalid endpoint")

type Registry struct {
	store    store.Store
	defaults config.Delivery

	mu        sync.RWMutex
	endpoints map[string]model.Endpoint
	limiters  map[string]*rate.Limiter
}

func New(s store.Store, defaults config.Delivery) *Registry {
	return &Registry{
		store:     s,
		defaults:  defaults,
		endpoints: map[string]model.Endpoint{},
		limiters:  map[string]*rate.Limiter{},
	}
}

// Load repopulates the cache from the durable store. A failure here means no
// endpoint would ever receive anything, so callers must treat it as fatal.
func (r *Registry) Load(ctx context.Context) error {
	eps, err := r.store.ListEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("load endpoints: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = make(map[string]model.Endpoint, len(eps))
	r.limiters = map[string]*rate.Limiter{}
	for _, ep := range eps {
		r.endpoints[ep.ID] = ep
		r.setLimiterLocked(ep)
	}
	return nil
}

// Register validates and persists a new endpoint, then adds it to the cache.
func (r *Registry) Register(ctx context.Context, req model.EndpointRequest) (model.Endpoint, error) {
	if req.URL == "" {
		return model.Endpoint{}, fmt.Errorf("%w: url is required", ErrInvalid)
	}
	if req.Secret == "" {
		return model.Endpoint{}, fmt.Errorf("%w: secret is required", ErrInvalid)
	}
	if len(req.Events) == 0 {
		return model.Endpoint{}, fmt.Errorf("%w: at least one event subscription is required", ErrInvalid)
	}
	ep := model.Endpoint{
		ID:          uuid.New().String(),
		URL:         req.URL,
		Secret:      req.Secret,
		Events:      req.Events,
		Active:      true,
		Headers:     req.Headers,
		TimeoutSec:  req.TimeoutSec,
		MaxRetries:  req.MaxRetries,
		RetryBaseMs: req.RetryBaseMs,
		RateLimit:   req.RateLimit,
		CreatedAt:   time.Now().UTC(),
	}
	r.applyDefaults(&ep)
	if err := r.store.CreateEndpoint(ctx, ep); err != nil {
		return model.Endpoint{}, fmt.Errorf("persist endpoint: %w", err)
	}
	r.mu.Lock()
	r.endpoints[ep.ID] = ep
	r.setLimiterLocked(ep)
	r.mu.Unlock()
	return ep, nil
}

func (r *Registry) applyDefaults(ep *model.Endpoint) {
	if ep.TimeoutSec <= 0 {
		ep.TimeoutSec = r.defaults.TimeoutSec
	}
	if ep.MaxRetries <= 0 {
		ep.MaxRetries = r.defaults.MaxRetries
	}
	if ep.RetryBaseMs <= 0 {
		ep.RetryBaseMs = r.defaults.RetryBaseMs
	}
	if ep.RateLimit <= 0 {
		ep.RateLimit = r.defaults.RateLimit
	}
}

// Get returns the cached endpoint.
func (r *Registry) Get(id string) (model.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[id]
	if !ok {
		return model.Endpoint{}, store.ErrNotFound
	}
	return ep, nil
}

// Update applies a partial patch to an endpoint, persisting first. The write
// lock is held across the whole read-modify-persist sequence so concurrent
// patches to the same endpoint never lose each other's fields.
func (r *Registry) Update(ctx context.Context, id string, patch model.EndpointPatch) (model.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[id]
	if !ok {
		return model.Endpoint{}, store.ErrNotFound
	}
	if patch.URL != nil {
		if *patch.URL == "" {
			return model.Endpoint{}, fmt.Errorf("%w: url cannot be empty", ErrInvalid)
		}
		ep.URL = *patch.URL
	}
	if patch.Secret != nil {
		if *patch.Secret == "" {
			return model.Endpoint{}, fmt.Errorf("%w: secret cannot be empty", ErrInvalid)
		}
		ep.Secret = *patch.Secret
	}
	if patch.Events != nil {
		if len(patch.Events) == 0 {
			return model.Endpoint{}, fmt.Errorf("%w: at least one event subscription is required", ErrInvalid)
		}
		ep.Events = patch.Events
	}
	if patch.Active != nil {
		ep.Active = *patch.Active
	}
	if patch.Headers != nil {
		ep.Headers = patch.Headers
	}
	if patch.TimeoutSec != nil {
		ep.TimeoutSec = *patch.TimeoutSec
	}
	if patch.MaxRetries != nil {
		ep.MaxRetries = *patch.MaxRetries
	}
	if patch.RetryBaseMs != nil {
		ep.RetryBaseMs = *patch.RetryBaseMs
	}
	if patch.RateLimit != nil {
		ep.RateLimit = *patch.RateLimit
	}
	r.applyDefaults(&ep)
	if err := r.store.UpdateEndpoint(ctx, ep); err != nil {
		return model.Endpoint{}, err
	}
	r.endpoints[id] = ep
	r.setLimiterLocked(ep)
	return ep, nil
}

// Deactivate marks an endpoint inactive; already-enqueued events for it will
// fail fast at the worker.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	inactive := false
	_, err := r.Update(ctx, id, model.EndpointPatch{Active: &inactive})
	return err
}

// Delete removes an endpoint from the store and the cache. In-flight events
// referencing it terminate with an "endpoint unavailable" failure.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteEndpoint(ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.endpoints, id)
	delete(r.limiters, id)
	r.mu.Unlock()
	return nil
}

// List returns all cached endpoints.
func (r *Registry) List() []model.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	return out
}

// ResolveSubscribers returns every active endpoint subscribed to eventType,
// directly or via the wildcard tag.
func (r *Registry) ResolveSubscribers(eventType string) []model.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.Endpoint{}
	for _, ep := range r.endpoints {
		if ep.Active && ep.SubscribesTo(eventType) {
			out = append(out, ep)
		}
	}
	return out
}

// Limiter returns the outbound rate limiter for an endpoint, or nil when the
// endpoint is unlimited.
func (r *Registry) Limiter(id string) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[id]
}

func (r *Registry) setLimiterLocked(ep model.Endpoint) {
	if ep.RateLimit > 0 {
		r.limiters[ep.ID] = rate.NewLimiter(rate.Limit(ep.RateLimit), 1)
	} else {
		delete(r.limiters, ep.ID)
	}
}
