package model

import (
	"encoding/json"
	"time"
)

// WildcardEvent subscribes an endpoint to every event type.
const WildcardEvent = "all"

// EventStatus is the delivery state of a single webhook event.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusRetrying  EventStatus = "retrying"
	StatusDelivered EventStatus = "delivered"
	StatusFailed    EventStatus = "failed"
	StatusExpired   EventStatus = "expired"
)

// Terminal reports whether no further automatic transition occurs.
func (s EventStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusExpired
}

// Endpoint is a registered webhook receiver.
// Secret is never serialized in API responses; it is only read by the signer.
type Endpoint struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Secret      string            `json:"-"`
	Events      []string          `json:"events"`
	Active      bool              `json:"active"`
	Headers     map[string]string `json:"headers,omitempty"`
	TimeoutSec  int               `json:"timeoutSec"`
	MaxRetries  int               `json:"maxRetries"`
	RetryBaseMs int               `json:"retryBaseMs"`
	RateLimit   float64           `json:"rateLimit,omitempty"` // deliveries/sec, 0 = unlimited
	CreatedAt   time.Time         `json:"createdAt"`
}

// SubscribesTo reports whether the endpoint receives the given event type,
// either directly or via the wildcard tag.
func (e Endpoint) SubscribesTo(eventType string) bool {
	for _, ev := range e.Events {
		if ev == eventType || ev == WildcardEvent {
			return true
		}
	}
	return false
}

// Timeout returns the per-delivery HTTP timeout.
func (e Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

// RetryBase returns the first backoff delay.
func (e Endpoint) RetryBase() time.Duration {
	return time.Duration(e.RetryBaseMs) * time.Millisecond
}

// EndpointRequest is the registration payload.
type EndpointRequest struct {
	URL         string            `json:"url"`
	Secret      string            `json:"secret"`
	Events      []string          `json:"events"`
	Headers     map[string]string `json:"headers,omitempty"`
	TimeoutSec  int               `json:"timeoutSec,omitempty"`
	MaxRetries  int               `json:"maxRetries,omitempty"`
	RetryBaseMs int               `json:"retryBaseMs,omitempty"`
	RateLimit   float64           `json:"rateLimit,omitempty"`
}

// EndpointPatch carries partial updates; nil fields are left unchanged.
type EndpointPatch struct {
	URL         *string           `json:"url,omitempty"`
	Secret      *string           `json:"secret,omitempty"`
	Events      []string          `json:"events,omitempty"`
	Active      *bool             `json:"active,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	TimeoutSec  *int              `json:"timeoutSec,omitempty"`
	MaxRetries  *int              `json:"maxRetries,omitempty"`
	RetryBaseMs *int              `json:"retryBaseMs,omitempty"`
	RateLimit   *float64          `json:"rateLimit,omitempty"`
}

// Event is one delivery of one emission to one endpoint. Payload holds the
// exact serialized bytes that are signed and transmitted; it never changes
// after the event is first persisted, so retries reuse the same signature.
type Event struct {
	ID           string          `json:"id"`
	EndpointID   string          `json:"endpointId"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Signature    string          `json:"signature"`
	Status       EventStatus     `json:"status"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"createdAt"`
	ScheduledAt  time.Time       `json:"scheduledAt"`
	DeliveredAt  *time.Time      `json:"deliveredAt,omitempty"`
	LastError    string          `json:"lastError,omitempty"`
	ResponseCode int             `json:"responseCode,omitempty"`
	LatencyMs    int             `json:"latencyMs,omitempty"`
}

// AttemptResult is the outcome of a single HTTP delivery attempt. It is
// consumed immediately by the worker and never persisted on its own.
type AttemptResult struct {
	Success    bool
	StatusCode int
	Err        string
	Elapsed    time.Duration
}

// EndpointStats aggregates persisted events for one endpoint.
type EndpointStats struct {
	Total       int                 `json:"total"`
	ByStatus    map[EventStatus]int `json:"byStatus"`
	SuccessRate float64             `json:"successRate"`
	AvgAttempts float64             `json:"avgAttempts"`
}
