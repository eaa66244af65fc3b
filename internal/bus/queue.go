package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"main/internal/schema"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded event queue between the stream consumer and the
// reconciliation step. Single consumer; publishing never blocks.
type Queue struct {
	ch     chan schema.Event
	closed uint32

	// OnDrop is called for every event TryPublish rejects. Set before
	// publishing starts; typically a metrics counter.
	OnDrop func()
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan schema.Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e schema.Event) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		if q.OnDrop != nil {
			q.OnDrop()
		}
		return ErrQueueFull
	}
}

// Publish enqueues an event, blocking until space is available or the
// context is done. Used for order/fill events that must not be dropped.
func (q *Queue) Publish(ctx context.Context, e schema.Event) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(schema.Event)) {
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

// Drain consumes remaining events without waiting, for shutdown grace.
func (q *Queue) Drain(handler func(schema.Event)) {
	for {
		select {
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		default:
			return
		}
	}
}
