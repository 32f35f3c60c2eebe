package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"hookrelay/internal/metrics"
	"hookrelay/internal/model"
)

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for evt := range d.queue.Dequeue() {
		d.process(evt)
	}
}

// process runs one delivery attempt and the resulting state transition.
// Retries are re-enqueued, never attempted concurrently with themselves, so
// an event's attempts happen strictly in increasing order.
func (d *Dispatcher) process(evt model.Event) {
	ctx := context.Background()

	if maxAge := d.cfg.EventMaxAge(); maxAge > 0 && time.Since(evt.CreatedAt) > maxAge {
		d.persist(evt.ID, func() error { return d.store.MarkEventExpired(ctx, evt.ID) })
		d.publish(evt, model.StatusExpired, evt.Attempts, "event exceeded max age")
		metrics.Deliveries.WithLabelValues(evt.Type, string(model.StatusExpired)).Inc()
		return
	}

	ep, err := d.registry.Get(evt.EndpointID)
	if err != nil || !ep.Active {
		// Deleted or deactivated mid-flight: strand the event, keep the audit trail.
		d.persist(evt.ID, func() error {
			return d.store.MarkEventFailed(ctx, evt.ID, evt.Attempts, "endpoint unavailable", 0, 0)
		})
		d.publish(evt, model.StatusFailed, evt.Attempts, "endpoint unavailable")
		metrics.Deliveries.WithLabelValues(evt.Type, string(model.StatusFailed)).Inc()
		return
	}

	if lim := d.registry.Limiter(ep.ID); lim != nil {
		// Cancelled on shutdown; the event stays pending in the store and is
		// re-enqueued by startup recovery.
		if err := lim.Wait(d.stopCtx); err != nil {
			return
		}
	}

	evt.Attempts++
	res := d.attempt(ctx, ep, evt)
	latencyMs := int(res.Elapsed.Milliseconds())
	metrics.DeliveryLatency.WithLabelValues(evt.Type, outcome(res)).Observe(float64(latencyMs))

	if res.Success {
		d.persist(evt.ID, func() error {
			return d.store.MarkEventDelivered(ctx, evt.ID, evt.Attempts, res.StatusCode, latencyMs)
		})
		d.publish(evt, model.StatusDelivered, evt.Attempts, "")
		metrics.Deliveries.WithLabelValues(evt.Type, string(model.StatusDelivered)).Inc()
		return
	}

	if evt.Attempts >= ep.MaxRetries+1 {
		d.persist(evt.ID, func() error {
			return d.store.MarkEventFailed(ctx, evt.ID, evt.Attempts, res.Err, res.StatusCode, latencyMs)
		})
		d.publish(evt, model.StatusFailed, evt.Attempts, res.Err)
		metrics.Deliveries.WithLabelValues(evt.Type, string(model.StatusFailed)).Inc()
		return
	}

	delay := backoff(ep.RetryBase(), evt.Attempts)
	nextAt := time.Now().UTC().Add(delay)
	d.persist(evt.ID, func() error {
		return d.store.MarkEventRetrying(ctx, evt.ID, evt.Attempts, nextAt, res.Err, res.StatusCode, latencyMs)
	})
	evt.Status = model.StatusRetrying
	evt.ScheduledAt = nextAt
	evt.LastError = res.Err
	d.publish(evt, model.StatusRetrying, evt.Attempts, res.Err)
	metrics.Deliveries.WithLabelValues(evt.Type, string(model.StatusRetrying)).Inc()
	d.scheduler.Schedule(evt, delay)
}

// attempt performs the HTTP POST for one event. Success is any 2xx response.
func (d *Dispatcher) attempt(ctx context.Context, ep model.Endpoint, evt model.Event) model.AttemptResult {
	reqCtx, cancel := context.WithTimeout(ctx, ep.Timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.URL, bytes.NewReader(evt.Payload))
	if err != nil {
		return model.AttemptResult{Err: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+evt.Signature)
	req.Header.Set("X-Webhook-Event-Type", evt.Type)
	req.Header.Set("X-Webhook-Event-ID", evt.ID)
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return model.AttemptResult{Err: err.Error(), Elapsed: elapsed}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return model.AttemptResult{Success: true, StatusCode: resp.StatusCode, Elapsed: elapsed}
	}
	return model.AttemptResult{
		StatusCode: resp.StatusCode,
		Err:        fmt.Sprintf("unexpected status %d", resp.StatusCode),
		Elapsed:    elapsed,
	}
}

// persist retries a status write a few times so a transient store outage does
// not lose the delivery decision the worker already made.
func (d *Dispatcher) persist(eventID string, fn func() error) {
	var err error
	for i := 0; i < 3; i++ {
		if err = fn(); err == nil {
			return
		}
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	d.log.Error("persist delivery status", "eventId", eventID, "error", err)
}

// backoff is base * 2^(attempts-1), capped at an hour.
func backoff(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	shift := attempts - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 10 {
		shift = 10
	}
	delay := base * time.Duration(1<<shift)
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

func outcome(res model.AttemptResult) string {
	if res.Success {
		return "success"
	}
	return "error"
}
