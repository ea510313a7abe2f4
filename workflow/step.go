package workflow

import (
	"context"

	"github.com/spetersoncode/longform/state"
)

// Step is one node of the graph.
type Step interface {
	// Name returns the node name used in events, logs and checkpoints.
	Name() string

	// Run mutates s in place and reports how it went.
	Run(ctx context.Context, s *state.State) Outcome
}

// Outcome is the result of running a step. The zero value means Continue.
type Outcome struct {
	// Err is the failure, nil on success.
	Err error

	// Fatal marks Err as engine-fatal: the run stops instead of skipping
	// the remaining steps.
	Fatal bool
}

// Continue reports success.
func Continue() Outcome { return Outcome{} }

// Fail reports a content or precondition failure. A nil err is treated as
// success.
func Fail(err error) Outcome { return Outcome{Err: err} }

// Fatal reports a violated invariant.
func Fatal(err error) Outcome { return Outcome{Err: err, Fatal: true} }

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Err == nil }

// StepFunc is a function signature for simple step implementations.
type StepFunc func(ctx context.Context, s *state.State) Outcome

// FuncStep wraps a function as a Step.
type FuncStep struct {
	name string
	fn   StepFunc
}

// NewFuncStep creates a step from a function.
func NewFuncStep(name string, fn StepFunc) *FuncStep {
	return &FuncStep{name: name, fn: fn}
}

// Name returns the step name.
func (f *FuncStep) Name() string { return f.name }

// Run calls the function.
func (f *FuncStep) Run(ctx context.Context, s *state.State) Outcome {
	return f.fn(ctx, s)
}

// named renames a step so graph events use the node name regardless of how
// the collaborator names itself.
type named struct {
	name string
	Step
}

func (n named) Name() string { return n.name }
