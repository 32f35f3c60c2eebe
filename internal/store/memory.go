package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"hookrelay/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set, and by
// tests. A single mutex is enough here: every operation is a short map
// access, and per-event updates never contend across events anyway.
type Memory struct {
	mu         sync.Mutex
	endpoints  map[string]model.Endpoint
	events     map[string]*model.Event
	byEndpoint map[string][]string // endpoint id -> event ids, insertion order
	order      []string            // all event ids, insertion order
}

func NewMemory() *Memory {
	return &Memory{
		endpoints:  map[string]model.Endpoint{},
		events:     map[string]*model.Event{},
		byEndpoint: map[string][]string{},
	}
}

func (m *Memory) CreateEndpoint(ctx context.Context, ep model.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[ep.ID] = ep
	return nil
}

func (m *Memory) GetEndpoint(ctx context.Context, id string) (model.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[id]
	if !ok {
		return model.Endpoint{}, ErrNotFound
	}
	return ep, nil
}

func (m *Memory) UpdateEndpoint(ctx context.Context, ep model.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[ep.ID]; !ok {
		return ErrNotFound
	}
	m.endpoints[ep.ID] = ep
	return nil
}

func (m *Memory) DeleteEndpoint(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[id]; !ok {
		return ErrNotFound
	}
	delete(m.endpoints, id)
	return nil
}

func (m *Memory) ListEndpoints(ctx context.Context) ([]model.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) InsertEvent(ctx context.Context, evt model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := evt
	m.events[evt.ID] = &cp
	m.byEndpoint[evt.EndpointID] = append(m.byEndpoint[evt.EndpointID], evt.ID)
	m.order = append(m.order, evt.ID)
	return nil
}

func (m *Memory) GetEvent(ctx context.Context, id string) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return *evt, nil
}

func (m *Memory) MarkEventDelivered(ctx context.Context, id string, attempts, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	evt.Status = model.StatusDelivered
	evt.Attempts = attempts
	evt.DeliveredAt = &now
	evt.ResponseCode = responseCode
	evt.LatencyMs = latencyMs
	evt.LastError = ""
	return nil
}

func (m *Memory) MarkEventRetrying(ctx context.Context, id string, attempts int, nextAt time.Time, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	evt.Status = model.StatusRetrying
	evt.Attempts = attempts
	evt.ScheduledAt = nextAt
	evt.LastError = lastError
	evt.ResponseCode = responseCode
	evt.LatencyMs = latencyMs
	return nil
}

func (m *Memory) MarkEventFailed(ctx context.Context, id string, attempts int, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	evt.Status = model.StatusFailed
	evt.Attempts = attempts
	evt.LastError = lastError
	evt.ResponseCode = responseCode
	evt.LatencyMs = latencyMs
	return nil
}

func (m *Memory) MarkEventExpired(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	evt.Status = model.StatusExpired
	return nil
}

func (m *Memory) RequeueEvent(ctx context.Context, id string) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	if evt.Status != model.StatusFailed && evt.Status != model.StatusExpired {
		return model.Event{}, ErrNotRequeueable
	}
	evt.Status = model.StatusPending
	evt.Attempts = 0
	evt.LastError = ""
	evt.ScheduledAt = time.Now().UTC()
	return *evt, nil
}

func (m *Memory) ListFailed(ctx context.Context, endpointID string, since time.Time) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Event{}
	for _, id := range m.eventIDs(endpointID) {
		evt := m.events[id]
		if evt == nil || evt.Status != model.StatusFailed {
			continue
		}
		if !since.IsZero() && evt.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *evt)
	}
	return out, nil
}

func (m *Memory) ListEvents(ctx context.Context, endpointID string, status model.EventStatus, limit int) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Event{}
	for _, id := range m.eventIDs(endpointID) {
		evt := m.events[id]
		if evt == nil {
			continue
		}
		if status != "" && evt.Status != status {
			continue
		}
		out = append(out, *evt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ListRecoverable(ctx context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Event{}
	for _, id := range m.order {
		evt := m.events[id]
		if evt == nil {
			continue
		}
		if evt.Status == model.StatusPending || evt.Status == model.StatusRetrying {
			out = append(out, *evt)
		}
	}
	return out, nil
}

func (m *Memory) EndpointStats(ctx context.Context, endpointID string, since time.Time) (model.EndpointStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := model.EndpointStats{ByStatus: map[model.EventStatus]int{}}
	attempts := 0
	for _, id := range m.byEndpoint[endpointID] {
		evt := m.events[id]
		if evt == nil {
			continue
		}
		if !since.IsZero() && evt.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByStatus[evt.Status]++
		attempts += evt.Attempts
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.ByStatus[model.StatusDelivered]) / float64(stats.Total)
		stats.AvgAttempts = float64(attempts) / float64(stats.Total)
	}
	return stats, nil
}

// eventIDs returns event ids in insertion order, optionally scoped to one endpoint.
func (m *Memory) eventIDs(endpointID string) []string {
	if endpointID != "" {
		return m.byEndpoint[endpointID]
	}
	return m.order
}
