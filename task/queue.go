package task

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded FIFO of events. Push never blocks; Poll blocks up
// to a timeout.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends an event.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Poll removes and returns the oldest event, waiting up to timeout for one
// to arrive. ok is false on timeout or when ctx is done.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (e Event, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if e, ok := q.pop(); ok {
			return e, true
		}
		select {
		case <-q.notify:
		case <-timer.C:
			return q.pop()
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Event{}, false
	}
	e := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	return e, true
}
