package api

import (
	"testing"
	"time"

	"hookrelay/internal/model"
	"hookrelay/internal/webhooks"
)

func update(eventID, endpointID string) webhooks.StatusUpdate {
	return webhooks.StatusUpdate{
		EventID:    eventID,
		EndpointID: endpointID,
		EventType:  "x",
		Status:     model.StatusDelivered,
		Attempts:   1,
		At:         time.Now().UTC(),
	}
}

func recv(t *testing.T, ch chan webhooks.StatusUpdate) webhooks.StatusUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return webhooks.StatusUpdate{}
	}
}

func TestBrokerRoutesByEndpoint(t *testing.T) {
	b := NewBroker()
	chA := b.Subscribe("ep-a")
	chB := b.Subscribe("ep-b")
	defer b.Unsubscribe("ep-a", chA)
	defer b.Unsubscribe("ep-b", chB)

	b.PublishStatus("ep-a", update("ev1", "ep-a"))

	if got := recv(t, chA); got.EventID != "ev1" {
		t.Fatalf("wrong update: %+v", got)
	}
	select {
	case u := <-chB:
		t.Fatalf("ep-b must not see ep-a updates: %+v", u)
	default:
	}
}

func TestBrokerWildcardSeesEverything(t *testing.T) {
	b := NewBroker()
	all := b.Subscribe(SubscribeAll)
	defer b.Unsubscribe(SubscribeAll, all)

	b.PublishStatus("ep-a", update("ev1", "ep-a"))
	b.PublishStatus("ep-b", update("ev2", "ep-b"))

	first := recv(t, all)
	second := recv(t, all)
	if first.EventID != "ev1" || second.EventID != "ev2" {
		t.Fatalf("wildcard missed updates: %v %v", first, second)
	}
}

func TestBrokerSlowSubscriberNeverBlocks(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("ep-a")
	defer b.Unsubscribe("ep-a", ch)

	done := make(chan struct{})
	go func() {
		// far more than the channel buffer, with nobody reading
		for i := 0; i < 100; i++ {
			b.PublishStatus("ep-a", update("ev", "ep-a"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("ep-a")
	b.Unsubscribe("ep-a", ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// publishing after unsubscribe must not panic
	b.PublishStatus("ep-a", update("ev", "ep-a"))
}
