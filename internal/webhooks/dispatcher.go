// Package webhooks implements the event-delivery pipeline: fan-out emission,
// signing, the in-memory delivery queue, the worker pool and retry backoff.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/config"
	"hookrelay/internal/logger"
	"hookrelay/internal/metrics"
	"hookrelay/internal/model"
	"hookrelay/internal/registry"
	"hookrelay/internal/store"
	"hookrelay/internal/transform"
)

// ErrStopped is returned by Emit once shutdown has begun.
var ErrStopped = errors.New("dispatcher stopped")

// StatusUpdate is a delivery state transition, published for live streaming.
type StatusUpdate struct {
	EventID    string            `json:"eventId"`
	EndpointID string            `json:"endpointId"`
	EventType  string            `json:"eventType"`
	Status     model.EventStatus `json:"status"`
	Attempts   int               `json:"attempts"`
	Error      string            `json:"error,omitempty"`
	At         time.Time         `json:"at"`
}

// StatusSink receives every delivery state transition. Implementations must
// not block; the in-memory and Redis brokers both drop on slow consumers.
type StatusSink interface {
	PublishStatus(endpointID string, update StatusUpdate)
}

// Dispatcher owns the queue, the retry scheduler and the worker pool, and is
// the single emission entry point for business code.
type Dispatcher struct {
	store    store.Store
	registry *registry.Registry
	pipeline *transform.Pipeline
	sink     StatusSink
	cfg      config.Delivery
	http     *http.Client
	log      *slog.Logger

	queue     *Queue
	scheduler *Scheduler
	wg        sync.WaitGroup
	accepting atomic.Bool

	// stopCtx is cancelled by Stop so workers parked on a rate-limit
	// reservation do not outlive shutdown.
	stopCtx context.Context
	stopFn  context.CancelFunc
}

func NewDispatcher(s store.Store, reg *registry.Registry, p *transform.Pipeline, sink StatusSink, cfg config.Delivery) *Dispatcher {
	d := &Dispatcher{
		store:    s,
		registry: reg,
		pipeline: p,
		sink:     sink,
		cfg:      cfg,
		// Per-attempt timeouts come from the endpoint via request contexts,
		// so the client itself carries none.
		http: &http.Client{},
		log:  logger.New("dispatcher"),
	}
	d.queue = NewQueue()
	d.scheduler = NewScheduler(d.reenqueue)
	d.stopCtx, d.stopFn = context.WithCancel(context.Background())
	return d
}

// Start launches the workers and the retry loop, then re-enqueues events the
// previous process left pending or retrying.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.accepting.Store(true)
	d.scheduler.Start()
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	if err := d.recover(ctx); err != nil {
		return fmt.Errorf("recover persisted events: %w", err)
	}
	return nil
}

func (d *Dispatcher) recover(ctx context.Context) error {
	events, err := d.store.ListRecoverable(ctx)
	if err != nil {
		return err
	}
	maxAge := d.cfg.EventMaxAge()
	for _, evt := range events {
		if maxAge > 0 && time.Since(evt.CreatedAt) > maxAge {
			if err := d.store.MarkEventExpired(ctx, evt.ID); err != nil {
				d.log.Error("expire during recovery", "eventId", evt.ID, "error", err)
			}
			d.publish(evt, model.StatusExpired, evt.Attempts, "event exceeded max age")
			continue
		}
		if wait := time.Until(evt.ScheduledAt); wait > 0 {
			d.scheduler.Schedule(evt, wait)
		} else {
			d.queue.Enqueue(evt)
		}
	}
	if len(events) > 0 {
		d.log.Info("recovered undelivered events", "count", len(events))
	}
	return nil
}

// Emit fans an event out to every active subscribed endpoint: per endpoint it
// copies the payload, runs the transformer pipeline, signs the canonical
// serialization, persists the event and enqueues it. The returned ids are for
// traceability only; callers never block on delivery. Emission performs no
// network I/O.
func (d *Dispatcher) Emit(ctx context.Context, eventType string, payload map[string]any) ([]string, error) {
	if !d.accepting.Load() {
		return nil, ErrStopped
	}
	if payload == nil {
		// Emitting without a payload is legal; transformers need a map to write into.
		payload = map[string]any{}
	}
	subs := d.registry.ResolveSubscribers(eventType)
	ids := []string{}
	if len(subs) == 0 {
		return ids, nil
	}
	for _, ep := range subs {
		transformed, err := d.pipeline.Process(eventType, transform.CloneMap(payload))
		if err != nil {
			// A broken transformer skips this endpoint only.
			d.log.Error("transform failed", "eventType", eventType, "endpointId", ep.ID, "error", err)
			metrics.TransformerFailures.WithLabelValues(transformerName(err)).Inc()
			continue
		}
		body, err := CanonicalJSON(transformed)
		if err != nil {
			d.log.Error("serialize payload", "eventType", eventType, "endpointId", ep.ID, "error", err)
			continue
		}
		now := time.Now().UTC()
		evt := model.Event{
			ID:          uuid.New().String(),
			EndpointID:  ep.ID,
			Type:        eventType,
			Payload:     body,
			Signature:   SignHMAC(ep.Secret, body),
			Status:      model.StatusPending,
			CreatedAt:   now,
			ScheduledAt: now,
		}
		// Durability before the first attempt: if the store is down the
		// caller must hear about it rather than lose the event silently.
		if err := d.store.InsertEvent(ctx, evt); err != nil {
			return ids, fmt.Errorf("persist event: %w", err)
		}
		metrics.EventsEmitted.WithLabelValues(eventType).Inc()
		d.queue.Enqueue(evt)
		ids = append(ids, evt.ID)
	}
	return ids, nil
}

// Requeue resets a failed or expired event to pending and enqueues it again.
func (d *Dispatcher) Requeue(ctx context.Context, eventID string) error {
	evt, err := d.store.RequeueEvent(ctx, eventID)
	if err != nil {
		return err
	}
	d.queue.Enqueue(evt)
	return nil
}

// RequeueAllFailed resets every failed event (optionally scoped to one
// endpoint and a time window) and returns how many were re-enqueued.
func (d *Dispatcher) RequeueAllFailed(ctx context.Context, endpointID string, since time.Time) (int, error) {
	failed, err := d.store.ListFailed(ctx, endpointID, since)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, evt := range failed {
		if err := d.Requeue(ctx, evt.ID); err != nil {
			d.log.Error("requeue failed event", "eventId", evt.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// Stop shuts the pipeline down: new emissions are rejected, pending retry
// timers are cancelled (their events stay recoverable in the store), workers
// finish their current in-flight attempt without dequeuing more, and Stop
// waits for them unless ctx expires first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.accepting.Store(false)
	d.scheduler.Stop()
	d.queue.Close()
	d.stopFn()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reenqueue is the scheduler's callback; after shutdown the enqueue is a
// no-op and the event remains recoverable from the store.
func (d *Dispatcher) reenqueue(evt model.Event) {
	if !d.queue.Enqueue(evt) {
		d.log.Warn("retry dropped during shutdown, recoverable from store", "eventId", evt.ID)
	}
}

func transformerName(err error) string {
	var terr *transform.Error
	if errors.As(err, &terr) {
		return terr.Transformer
	}
	return "unknown"
}

func (d *Dispatcher) publish(evt model.Event, status model.EventStatus, attempts int, errMsg string) {
	if d.sink == nil {
		return
	}
	d.sink.PublishStatus(evt.EndpointID, StatusUpdate{
		EventID:    evt.ID,
		EndpointID: evt.EndpointID,
		EventType:  evt.Type,
		Status:     status,
		Attempts:   attempts,
		Error:      errMsg,
		At:         time.Now().UTC(),
	})
}
