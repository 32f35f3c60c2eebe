package webhooks

import (
	"sync"

	"hookrelay/internal/metrics"
	"hookrelay/internal/model"
)

// Queue is the unbounded FIFO hand-off between emission and the worker pool.
// Producers are the emitter and the retry scheduler; consumers are the
// workers. Close stops delivery immediately: events still buffered are
// discarded from memory but remain persisted as pending/retrying, so startup
// recovery re-enqueues them.
type Queue struct {
	mu     sync.RWMutex
	closed bool
	in     chan model.Event
	out    chan model.Event
}

func NewQueue() *Queue {
	q := &Queue{
		in:  make(chan model.Event),
		out: make(chan model.Event),
	}
	go q.pump()
	return q
}

// Enqueue pushes an event; it reports false after Close.
func (q *Queue) Enqueue(evt model.Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	q.in <- evt
	return true
}

// Dequeue is the consumer side; it is closed once the queue shuts down.
func (q *Queue) Dequeue() <-chan model.Event {
	return q.out
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.in)
}

// pump moves events from in to out through an unbounded buffer so producers
// never block on consumers.
func (q *Queue) pump() {
	defer close(q.out)
	var buf []model.Event
	for {
		if len(buf) == 0 {
			evt, ok := <-q.in
			if !ok {
				metrics.QueueDepth.Set(0)
				return
			}
			buf = append(buf, evt)
			metrics.QueueDepth.Set(float64(len(buf)))
		}
		select {
		case evt, ok := <-q.in:
			if !ok {
				metrics.QueueDepth.Set(0)
				return
			}
			buf = append(buf, evt)
		case q.out <- buf[0]:
			buf = buf[1:]
		}
		metrics.QueueDepth.Set(float64(len(buf)))
	}
}
