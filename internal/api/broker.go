package api

import (
	"sync"

	"hookrelay/internal/webhooks"
)

// SubscribeAll is the broker key that receives every endpoint's transitions.
const SubscribeAll = "*"

// EventBroker fans delivery status transitions out to live subscribers.
type EventBroker interface {
	Subscribe(endpointID string) chan webhooks.StatusUpdate
	Unsubscribe(endpointID string, ch chan webhooks.StatusUpdate)
	PublishStatus(endpointID string, update webhooks.StatusUpdate)
}

// Broker is the in-memory EventBroker used when no REDIS_URL is set.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan webhooks.StatusUpdate]struct{} // endpoint id (or "*") -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan webhooks.StatusUpdate]struct{}{}}
}

func (b *Broker) Subscribe(endpointID string) chan webhooks.StatusUpdate {
	ch := make(chan webhooks.StatusUpdate, 8)
	b.mu.Lock()
	if b.subs[endpointID] == nil {
		b.subs[endpointID] = map[chan webhooks.StatusUpdate]struct{}{}
	}
	b.subs[endpointID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(endpointID string, ch chan webhooks.StatusUpdate) {
	b.mu.Lock()
	if m := b.subs[endpointID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, endpointID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// PublishStatus never blocks; slow subscribers miss updates.
func (b *Broker) PublishStatus(endpointID string, update webhooks.StatusUpdate) {
	b.mu.Lock()
	for _, key := range []string{endpointID, SubscribeAll} {
		for ch := range b.subs[key] {
			select {
			case ch <- update:
			default:
			}
		}
	}
	b.mu.Unlock()
}
