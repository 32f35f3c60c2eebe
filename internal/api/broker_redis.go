package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"hookrelay/internal/webhooks"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so status streams
// work across multiple API replicas.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan webhooks.StatusUpdate]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{
		rdb:  redis.NewClient(opt),
		subs: map[chan webhooks.StatusUpdate]*redis.PubSub{},
	}, nil
}

func (b *RedisBroker) Subscribe(endpointID string) chan webhooks.StatusUpdate {
	ch := make(chan webhooks.StatusUpdate, 16)
	ctx := context.Background()
	var ps *redis.PubSub
	if endpointID == SubscribeAll {
		ps = b.rdb.PSubscribe(ctx, b.chanName("*"))
	} else {
		ps = b.rdb.Subscribe(ctx, b.chanName(endpointID))
	}
	// first Receive confirms the subscription before we hand the channel out
	_, _ = ps.Receive(ctx)

	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var update webhooks.StatusUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err == nil {
				select {
				case ch <- update:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying Redis subscription; the reader goroutine
// then drains out and closes ch.
func (b *RedisBroker) Unsubscribe(endpointID string, ch chan webhooks.StatusUpdate) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) PublishStatus(endpointID string, update webhooks.StatusUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(update)
	_ = b.rdb.Publish(ctx, b.chanName(endpointID), data).Err()
}

func (b *RedisBroker) chanName(endpointID string) string {
	return "webhook.status." + endpointID
}
