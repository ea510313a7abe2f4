package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrStepBudgetExceeded indicates the run executed more steps than the
	// topology allows for the configured loop caps.
	ErrStepBudgetExceeded = errors.New("workflow: step budget exceeded")

	// ErrLoopCapReached indicates a loop body was entered with its counter
	// already at the cap.
	ErrLoopCapReached = errors.New("workflow: loop cap reached")

	// ErrMissingStep indicates a node was left nil when building the graph.
	ErrMissingStep = errors.New("workflow: missing step")

	// ErrNilState indicates Run was called without a state.
	ErrNilState = errors.New("workflow: nil state")
)

// StepError wraps errors from step execution.
type StepError struct {
	StepName string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow: step %q failed: %v", e.StepName, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
