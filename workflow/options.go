package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/spetersoncode/longform/state"
)

// Checkpointer persists a snapshot after each step.
// store.Checkpointer[*state.State] satisfies it.
type Checkpointer interface {
	SaveStep(ctx context.Context, runID, step string, snapshot *state.State) error
}

// Options contains configuration for a run.
type Options struct {
	// RunID keys checkpoints and events. Defaults to RunIDForTopic.
	RunID string

	Policy Policy

	// Checkpointer receives a snapshot after every step. Nil disables
	// checkpointing.
	Checkpointer Checkpointer

	// StepTimeout bounds each step. Zero means no per-step deadline.
	StepTimeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for run configuration.
type Option func(*Options)

// WithRunID sets the run id.
func WithRunID(id string) Option {
	return func(o *Options) {
		o.RunID = id
	}
}

// WithPolicy sets the loop caps.
func WithPolicy(p Policy) Option {
	return func(o *Options) {
		o.Policy = p
	}
}

// WithCheckpointer sets where snapshots are saved.
func WithCheckpointer(c Checkpointer) Option {
	return func(o *Options) {
		o.Checkpointer = c
	}
}

// WithStepTimeout sets the timeout for each step.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.StepTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// ApplyOptions applies functional options with defaults.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		Policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// RunIDForTopic derives the default run id from a topic. Runs for the same
// topic share an id; callers needing isolation pass WithRunID.
func RunIDForTopic(topic string) string {
	return "blog_" + topic
}
