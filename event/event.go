// Package event defines the events a workflow run streams to its caller.
//
// The set is small on purpose: run lifecycle, step lifecycle, the two
// routing decisions and loop iterations. Consumers such as the HTTP server
// forward them verbatim as server-sent events.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spetersoncode/longform/state"
)

// Type identifies the kind of event.
type Type string

// Run lifecycle events
const (
	// RunStart fires once before the first step.
	RunStart Type = "run_start"

	// RunEnd fires once when the terminal node is reached. State carries the
	// final document.
	RunEnd Type = "run_end"

	// RunError fires when the run aborts on an engine-fatal error, a
	// cancelled context or an exhausted step budget.
	RunError Type = "run_error"
)

// Step lifecycle events
const (
	StepStart Type = "step_start"
	StepEnd   Type = "step_end"

	// StepSkipped fires for every step visited after the state carries an
	// error marker.
	StepSkipped Type = "step_skipped"
)

// Branching events
const (
	// RouteSelected fires after each routing decision. RouteName holds the
	// chosen route.
	RouteSelected Type = "route_selected"

	// LoopIteration fires when a loop body is entered. Iteration is the
	// 1-indexed round being started.
	LoopIteration Type = "loop_iteration"
)

// DefaultBuffer is the capacity used by NewChannel.
const DefaultBuffer = 64

// Event represents an observable occurrence during a workflow run.
type Event struct {
	Type Type

	// RunID identifies the run the event belongs to.
	RunID string

	// StepName identifies the step for step and routing events.
	StepName string

	// RouteName identifies the selected route for RouteSelected events.
	RouteName string

	// Iteration is the loop round for LoopIteration events.
	Iteration int

	// Error contains the error for RunError events and, for StepEnd, the
	// content failure the step reported.
	Error error

	// Message carries additional context such as the termination reason.
	Message string

	// State is a snapshot of the document. Set on RunEnd only.
	State *state.State

	Timestamp time.Time
}

type wireEvent struct {
	Type      Type         `json:"type"`
	RunID     string       `json:"run_id,omitempty"`
	StepName  string       `json:"step,omitempty"`
	RouteName string       `json:"route,omitempty"`
	Iteration int          `json:"iteration,omitempty"`
	Error     string       `json:"error,omitempty"`
	Message   string       `json:"message,omitempty"`
	State     *state.State `json:"state,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// MarshalJSON renders the event with the error flattened to its message.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:      e.Type,
		RunID:     e.RunID,
		StepName:  e.StepName,
		RouteName: e.RouteName,
		Iteration: e.Iteration,
		Message:   e.Message,
		State:     e.State,
		Timestamp: e.Timestamp,
	}
	if e.Error != nil {
		w.Error = e.Error.Error()
	}
	return json.Marshal(w)
}

// Emit sends an event with a timestamp to the channel without blocking.
// The event is dropped if the channel is full.
func Emit(ch chan<- Event, e Event) {
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}

// Send stamps and delivers an event, blocking until the consumer takes it or
// ctx is done. It reports whether the event was delivered.
func Send(ctx context.Context, ch chan<- Event, e Event) bool {
	e.Timestamp = time.Now()
	select {
	case ch <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// NewChannel creates a buffered event channel with standard capacity.
func NewChannel() chan Event {
	return make(chan Event, DefaultBuffer)
}

// Collect drains ch into a slice. Intended for tests and batch callers.
func Collect(ch <-chan Event) []Event {
	var out []Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

// Types returns the event types in order.
func Types(events []Event) []Type {
	out := make([]Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
