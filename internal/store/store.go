package store

import (
	"context"
	"errors"
	"time"

	"hookrelay/internal/model"
)

// Store is the durable record store for endpoints and events. Both tables are
// keyed by id; events are additionally queryable by endpoint and status for
// statistics and recovery. Implementations must be safe for concurrent use by
// all delivery workers.
type Store interface {
	// Endpoints
	CreateEndpoint(ctx context.Context, ep model.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (model.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep model.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	ListEndpoints(ctx context.Context) ([]model.Endpoint, error)

	// Events
	InsertEvent(ctx context.Context, evt model.Event) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	MarkEventDelivered(ctx context.Context, id string, attempts, responseCode, latencyMs int) error
	MarkEventRetrying(ctx context.Context, id string, attempts int, nextAt time.Time, lastError string, responseCode, latencyMs int) error
	MarkEventFailed(ctx context.Context, id string, attempts int, lastError string, responseCode, latencyMs int) error
	MarkEventExpired(ctx context.Context, id string) error

	// Recovery & statistics
	RequeueEvent(ctx context.Context, id string) (model.Event, error)
	ListFailed(ctx context.Context, endpointID string, since time.Time) ([]model.Event, error)
	ListEvents(ctx context.Context, endpointID string, status model.EventStatus, limit int) ([]model.Event, error)
	ListRecoverable(ctx context.Context) ([]model.Event, error)
	EndpointStats(ctx context.Context, endpointID string, since time.Time) (model.EndpointStats, error)
}

var ErrNotFound = errors.New("not found")

// ErrNotRequeueable is returned when requeue targets an event that is not in
// a failed or expired state.
var ErrNotRequeueable = errors.New("event is not failed or expired")
