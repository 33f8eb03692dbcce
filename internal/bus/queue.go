package bus

import (
	"context"
	"errors"
	"sync"

	"main/internal/event"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded, non-blocking outbound event queue.
// The session core publishes into it and never blocks on slow consumers.
type Queue struct {
	ch chan event.Event

	mu     sync.RWMutex
	closed bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan event.Event, capacity)}
}

// TryPublish enqueues an event without blocking. The read lock is held
// across the send so Close cannot close the channel mid-publish.
func (q *Queue) TryPublish(e event.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new events. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(event.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
