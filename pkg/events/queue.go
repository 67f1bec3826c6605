package events

import (
	"context"
	"errors"
	"sync"

	"github.com/cuemby/warren-agent/pkg/metrics"
)

// ErrQueueClosed is returned by Push after Close, and by Pop once a closed queue is empty
var ErrQueueClosed = errors.New("action queue closed")

// Queue is the process-wide action queue. It is safe for any number of
// producers and consumers. Events pushed by one goroutine are popped in the
// order they were pushed; there is no ordering across producers.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	closed bool

	// ready holds a token while items may be available
	ready chan struct{}
}

// NewQueue creates an empty unbounded queue
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Push appends an event without blocking
func (q *Queue) Push(event Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, event)
	q.mu.Unlock()

	metrics.QueueEventsTotal.WithLabelValues(string(event.Type)).Inc()
	q.signal()
	return nil
}

// Pop removes the oldest event, blocking until one is available, the
// context is done, or the queue is closed and drained.
func (q *Queue) Pop(ctx context.Context) (Event, error) {
	for {
		if event, ok, err := q.tryPop(); ok || err != nil {
			return event, err
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// TryPop removes the oldest event if there is one
func (q *Queue) TryPop() (Event, bool) {
	event, ok, _ := q.tryPop()
	return event, ok
}

func (q *Queue) tryPop() (Event, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			// Pass the wakeup on to the next blocked consumer
			q.signal()
			return Event{}, false, ErrQueueClosed
		}
		return Event{}, false, nil
	}

	event := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]

	// Wake the next consumer if more remain
	if len(q.items) > 0 {
		q.signal()
	}
	return event, true, nil
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Len returns the number of queued events
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes. Queued events can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}
