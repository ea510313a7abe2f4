package workflow

import "github.com/spetersoncode/longform/state"

// TerminationReason indicates why the run stopped.
type TerminationReason string

const (
	// TerminationComplete indicates the terminal node was reached. The state
	// may still carry a content failure marker.
	TerminationComplete TerminationReason = "complete"

	// TerminationTimeout indicates the context deadline was exceeded.
	TerminationTimeout TerminationReason = "timeout"

	// TerminationCancelled indicates context cancellation.
	TerminationCancelled TerminationReason = "cancelled"

	// TerminationError indicates an engine-fatal error.
	TerminationError TerminationReason = "error"
)

// Result is the outcome of a run.
type Result struct {
	RunID string

	// State is the document after the last executed step.
	State *state.State

	// Trace lists the executed and skipped steps in order.
	Trace []string

	Termination TerminationReason

	// Error is the error that stopped the run, nil on completion.
	Error error
}
