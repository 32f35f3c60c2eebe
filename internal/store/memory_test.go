package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"hookrelay/internal/model"
)

func seedEvent(t *testing.T, m *Memory, id, endpointID string, status model.EventStatus, createdAt time.Time) {
	t.Helper()
	evt := model.Event{
		ID:          id,
		EndpointID:  endpointID,
		Type:        "x",
		Payload:     []byte(`{}`),
		Status:      model.StatusPending,
		CreatedAt:   createdAt,
		ScheduledAt: createdAt,
	}
	if err := m.InsertEvent(context.Background(), evt); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	ctx := context.Background()
	switch status {
	case model.StatusDelivered:
		if err := m.MarkEventDelivered(ctx, id, 1, 200, 5); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
	case model.StatusRetrying:
		if err := m.MarkEventRetrying(ctx, id, 1, createdAt.Add(time.Minute), "unexpected status 500", 500, 5); err != nil {
			t.Fatalf("mark retrying: %v", err)
		}
	case model.StatusFailed:
		if err := m.MarkEventFailed(ctx, id, 3, "unexpected status 500", 500, 5); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	case model.StatusExpired:
		if err := m.MarkEventExpired(ctx, id); err != nil {
			t.Fatalf("mark expired: %v", err)
		}
	}
}

func TestEndpointCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ep := model.Endpoint{ID: "e1", URL: "https://a", Secret: "s", Events: []string{"x"}, Active: true, CreatedAt: time.Now().UTC()}
	if err := m.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := m.GetEndpoint(ctx, "e1")
	if err != nil || got.URL != "https://a" {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	ep.URL = "https://b"
	if err := m.UpdateEndpoint(ctx, ep); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = m.GetEndpoint(ctx, "e1")
	if got.URL != "https://b" {
		t.Fatalf("update not applied: %s", got.URL)
	}

	if err := m.DeleteEndpoint(ctx, "e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetEndpoint(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := m.UpdateEndpoint(ctx, ep); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: want ErrNotFound, got %v", err)
	}
	if err := m.DeleteEndpoint(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing: want ErrNotFound, got %v", err)
	}
}

func TestListEndpointsOrderedByCreation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()
	for i, id := range []string{"c", "a", "b"} {
		ep := model.Endpoint{ID: id, URL: "https://" + id, Secret: "s", Events: []string{"x"}, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := m.CreateEndpoint(ctx, ep); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	eps, err := m.ListEndpoints(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(eps) != 3 || eps[0].ID != "c" || eps[1].ID != "a" || eps[2].ID != "b" {
		t.Fatalf("wrong order: %+v", eps)
	}
}

func TestEventLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedEvent(t, m, "ev1", "e1", model.StatusPending, now)

	next := now.Add(time.Second)
	if err := m.MarkEventRetrying(ctx, "ev1", 1, next, "unexpected status 502", 502, 12); err != nil {
		t.Fatalf("retrying: %v", err)
	}
	evt, _ := m.GetEvent(ctx, "ev1")
	if evt.Status != model.StatusRetrying || evt.Attempts != 1 || !evt.ScheduledAt.Equal(next) {
		t.Fatalf("retrying not recorded: %+v", evt)
	}
	if evt.LastError != "unexpected status 502" || evt.ResponseCode != 502 || evt.LatencyMs != 12 {
		t.Fatalf("attempt outcome not recorded: %+v", evt)
	}

	if err := m.MarkEventDelivered(ctx, "ev1", 2, 200, 8); err != nil {
		t.Fatalf("delivered: %v", err)
	}
	evt, _ = m.GetEvent(ctx, "ev1")
	if evt.Status != model.StatusDelivered || evt.Attempts != 2 || evt.DeliveredAt == nil {
		t.Fatalf("delivery not recorded: %+v", evt)
	}
	if evt.LastError != "" {
		t.Fatal("lastError must clear on delivery")
	}

	if err := m.MarkEventDelivered(ctx, "missing", 1, 200, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRequeueOnlyTerminalFailures(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedEvent(t, m, "pend", "e1", model.StatusPending, now)
	seedEvent(t, m, "deli", "e1", model.StatusDelivered, now)
	seedEvent(t, m, "fail", "e1", model.StatusFailed, now)
	seedEvent(t, m, "expi", "e1", model.StatusExpired, now)

	for _, id := range []string{"pend", "deli"} {
		if _, err := m.RequeueEvent(ctx, id); !errors.Is(err, ErrNotRequeueable) {
			t.Errorf("%s: want ErrNotRequeueable, got %v", id, err)
		}
	}
	for _, id := range []string{"fail", "expi"} {
		evt, err := m.RequeueEvent(ctx, id)
		if err != nil {
			t.Fatalf("%s: requeue: %v", id, err)
		}
		if evt.Status != model.StatusPending || evt.Attempts != 0 || evt.LastError != "" {
			t.Fatalf("%s: requeue must reset state: %+v", id, evt)
		}
	}
	if _, err := m.RequeueEvent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListFailedFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)
	now := time.Now().UTC()
	seedEvent(t, m, "f-old", "e1", model.StatusFailed, old)
	seedEvent(t, m, "f-new", "e1", model.StatusFailed, now)
	seedEvent(t, m, "f-other", "e2", model.StatusFailed, now)
	seedEvent(t, m, "ok", "e1", model.StatusDelivered, now)

	all, err := m.ListFailed(ctx, "", time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("want all 3 failures, got %d", len(all))
	}

	scoped, _ := m.ListFailed(ctx, "e1", time.Time{})
	if len(scoped) != 2 {
		t.Fatalf("want 2 failures for e1, got %d", len(scoped))
	}

	recent, _ := m.ListFailed(ctx, "e1", now.Add(-time.Minute))
	if len(recent) != 1 || recent[0].ID != "f-new" {
		t.Fatalf("since filter wrong: %+v", recent)
	}
}

func TestListEventsFilterAndLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedEvent(t, m, "a", "e1", model.StatusDelivered, now)
	seedEvent(t, m, "b", "e1", model.StatusFailed, now)
	seedEvent(t, m, "c", "e2", model.StatusDelivered, now)

	all, _ := m.ListEvents(ctx, "", "", 0)
	if len(all) != 3 {
		t.Fatalf("want 3, got %d", len(all))
	}
	delivered, _ := m.ListEvents(ctx, "", model.StatusDelivered, 0)
	if len(delivered) != 2 {
		t.Fatalf("want 2 delivered, got %d", len(delivered))
	}
	limited, _ := m.ListEvents(ctx, "", "", 1)
	if len(limited) != 1 || limited[0].ID != "a" {
		t.Fatalf("limit wrong: %+v", limited)
	}
	scoped, _ := m.ListEvents(ctx, "e2", "", 0)
	if len(scoped) != 1 || scoped[0].ID != "c" {
		t.Fatalf("endpoint scope wrong: %+v", scoped)
	}
}

func TestListRecoverable(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedEvent(t, m, "p", "e1", model.StatusPending, now)
	seedEvent(t, m, "r", "e1", model.StatusRetrying, now)
	seedEvent(t, m, "d", "e1", model.StatusDelivered, now)
	seedEvent(t, m, "f", "e1", model.StatusFailed, now)
	seedEvent(t, m, "x", "e1", model.StatusExpired, now)

	got, err := m.ListRecoverable(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "p" || got[1].ID != "r" {
		t.Fatalf("recoverable = %+v, want pending+retrying in order", got)
	}
}

func TestEndpointStats(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedEvent(t, m, "s1", "e1", model.StatusDelivered, now) // 1 attempt
	seedEvent(t, m, "s2", "e1", model.StatusDelivered, now) // 1 attempt
	seedEvent(t, m, "s3", "e1", model.StatusFailed, now)    // 3 attempts
	seedEvent(t, m, "s4", "e2", model.StatusFailed, now)

	stats, err := m.EndpointStats(ctx, "e1", time.Time{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("want 3 events, got %d", stats.Total)
	}
	if stats.ByStatus[model.StatusDelivered] != 2 || stats.ByStatus[model.StatusFailed] != 1 {
		t.Fatalf("byStatus wrong: %+v", stats.ByStatus)
	}
	if stats.SuccessRate < 0.66 || stats.SuccessRate > 0.67 {
		t.Fatalf("successRate = %f, want 2/3", stats.SuccessRate)
	}
	want := (1.0 + 1.0 + 3.0) / 3.0
	if stats.AvgAttempts != want {
		t.Fatalf("avgAttempts = %f, want %f", stats.AvgAttempts, want)
	}

	empty, _ := m.EndpointStats(ctx, "nobody", time.Time{})
	if empty.Total != 0 || empty.SuccessRate != 0 {
		t.Fatalf("empty stats wrong: %+v", empty)
	}
}
