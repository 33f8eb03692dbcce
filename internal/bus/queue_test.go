package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"main/internal/event"
)

func TestQueuePublishAndConsume(t *testing.T) {
	q := NewQueue(4)
	done := make(chan event.Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, func(e event.Event) { done <- e })

	if err := q.TryPublish(event.New("u1", event.TypeLoginSuccess)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case e := <-done:
		if e.UserID != "u1" || e.Type != event.TypeLoginSuccess {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never consumed")
	}
}

func TestQueueFullDropsInsteadOfBlocking(t *testing.T) {
	q := NewQueue(1)

	if err := q.TryPublish(event.New("u1", event.TypeError)); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := q.TryPublish(event.New("u1", event.TypeError)); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueClosedRejectsPublish(t *testing.T) {
	q := NewQueue(1)
	q.Close()
	q.Close() // idempotent

	if err := q.TryPublish(event.New("u1", event.TypeError)); err != ErrQueueClosed {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueueCloseDuringConcurrentPublish(t *testing.T) {
	q := NewQueue(16)
	go q.Run(context.Background(), func(event.Event) {})

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 500; j++ {
				if err := q.TryPublish(event.New("u1", event.TypeError)); err == ErrQueueClosed {
					return
				}
			}
		}()
	}

	close(start)
	q.Close()
	wg.Wait()

	if err := q.TryPublish(event.New("u1", event.TypeError)); err != ErrQueueClosed {
		t.Fatalf("expected ErrQueueClosed after close, got %v", err)
	}
}

func TestQueueRunDrainsThenStopsOnClose(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 3; i++ {
		if err := q.TryPublish(event.New("u1", event.TypeSignalReceived)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	q.Close()

	seen := 0
	q.Run(context.Background(), func(event.Event) { seen++ })
	if seen != 3 {
		t.Fatalf("drained %d events, want 3", seen)
	}
}
