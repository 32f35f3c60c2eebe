package webhooks

import (
	"container/heap"
	"sync"
	"time"

	"hookrelay/internal/metrics"
	"hookrelay/internal/model"
)

// Scheduler re-enqueues events after their backoff delay. A single loop over
// a min-heap serves every pending retry, so sustained outages never
// accumulate one sleeping goroutine per retry.
type Scheduler struct {
	emit func(model.Event)

	mu      sync.Mutex
	pending retryHeap
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

func NewScheduler(emit func(model.Event)) *Scheduler {
	return &Scheduler{
		emit: emit,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.loop()
}

// Schedule re-enqueues evt after delay. It never blocks the calling worker.
func (s *Scheduler) Schedule(evt model.Event, delay time.Duration) {
	s.mu.Lock()
	heap.Push(&s.pending, retryEntry{at: time.Now().Add(delay), evt: evt})
	metrics.RetriesScheduled.Set(float64(s.pending.Len()))
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop cancels all pending timers and waits for the loop to exit. The events
// they would have re-enqueued stay persisted as retrying with a scheduledAt,
// which startup recovery re-enqueues.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		var due []model.Event
		s.mu.Lock()
		now := time.Now()
		for s.pending.Len() > 0 && !s.pending[0].at.After(now) {
			due = append(due, heap.Pop(&s.pending).(retryEntry).evt)
		}
		wait := time.Hour
		if s.pending.Len() > 0 {
			wait = time.Until(s.pending[0].at)
		}
		metrics.RetriesScheduled.Set(float64(s.pending.Len()))
		s.mu.Unlock()

		for _, evt := range due {
			s.emit(evt)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

type retryEntry struct {
	at  time.Time
	evt model.Event
}

type retryHeap []retryEntry

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h retryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)        { *h = append(*h, x.(retryEntry)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
