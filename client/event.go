package client

import (
	"time"

	"github.com/spetersoncode/longform"
)

// EventType identifies the kind of event occurring during client operations.
type EventType string

const (
	// EventRequestStart fires before an API request begins.
	EventRequestStart EventType = "request_start"

	// EventRequestComplete fires after an API request completes successfully.
	EventRequestComplete EventType = "request_complete"

	// EventRequestError fires when an API request fails.
	EventRequestError EventType = "request_error"

	// EventRetry fires before a provider sleeps between attempts.
	EventRetry EventType = "retry"
)

// Event represents an observable occurrence during client operations.
type Event struct {
	Type EventType

	// Operation is "chat", "chat_stream" or "image".
	Operation string

	Provider longform.Provider
	Model    string

	// Duration is the elapsed time for finished requests.
	Duration time.Duration

	// Usage is set on completed chat requests.
	Usage *longform.Usage

	Error error

	// Attempt is the 1-indexed attempt that failed, for EventRetry.
	Attempt int
	// Delay is the backoff before the next attempt, for EventRetry.
	Delay time.Duration

	Timestamp time.Time
}

// emit sends an event with timestamp to the channel without blocking.
func emit(ch chan<- Event, event Event) {
	if ch == nil {
		return
	}
	event.Timestamp = time.Now()
	select {
	case ch <- event:
	default:
	}
}
