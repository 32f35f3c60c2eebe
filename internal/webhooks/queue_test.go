package webhooks

import (
	"strconv"
	"testing"
	"time"

	"hookrelay/internal/model"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	defer q.Close()
	for i := 0; i < 100; i++ {
		if !q.Enqueue(model.Event{ID: itoa(i)}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	for i := 0; i < 100; i++ {
		select {
		case evt := <-q.Dequeue():
			if evt.ID != itoa(i) {
				t.Fatalf("out of order: want %s got %s", itoa(i), evt.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestQueueProducersNeverBlock(t *testing.T) {
	q := NewQueue()
	defer q.Close()
	done := make(chan struct{})
	go func() {
		// nobody consumes; all sends must still return
		for i := 0; i < 10000; i++ {
			q.Enqueue(model.Event{ID: itoa(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked on unbounded queue")
	}
}

func TestQueueCloseRejectsAndClosesOut(t *testing.T) {
	q := NewQueue()
	q.Close()
	if q.Enqueue(model.Event{ID: "x"}) {
		t.Fatal("enqueue accepted after close")
	}
	select {
	case _, ok := <-q.Dequeue():
		if ok {
			t.Fatal("expected closed out channel")
		}
	case <-time.After(time.Second):
		t.Fatal("out channel not closed")
	}
	// double close must not panic
	q.Close()
}

func itoa(i int) string { return strconv.Itoa(i) }
