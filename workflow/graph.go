package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spetersoncode/longform/event"
	"github.com/spetersoncode/longform/state"
)

// Node names.
const (
	NodeResearch = "research"
	NodePlan     = "plan"
	NodeWrite    = "write"
	NodeQuestion = "question"
	NodeDeepen   = "deepen"
	NodeCode     = "code"
	NodeImage    = "image"
	NodeReview   = "review"
	NodeRevise   = "revise"
	NodeAssemble = "assemble"
)

// acyclicPath is the route taken when neither loop is entered.
var acyclicPath = []string{
	NodeResearch, NodePlan, NodeWrite, NodeQuestion,
	NodeCode, NodeImage, NodeReview, NodeAssemble,
}

// Nodes are the collaborators plugged into the graph. Every field is
// required. The loop bodies are built from Enhancer.
type Nodes struct {
	Research Step
	Plan     Step
	Write    Step
	Question Step
	Code     Step
	Image    Step
	Review   Step
	Assemble Step

	Enhancer Enhancer
}

// Graph is the fixed blog generation graph. It holds no per-run state and
// may run several documents concurrently.
type Graph struct {
	steps    map[string]Step
	enhancer Enhancer
	opts     []Option
}

// New builds the graph. opts become the defaults for every run.
func New(nodes Nodes, opts ...Option) (*Graph, error) {
	given := map[string]Step{
		NodeResearch: nodes.Research,
		NodePlan:     nodes.Plan,
		NodeWrite:    nodes.Write,
		NodeQuestion: nodes.Question,
		NodeCode:     nodes.Code,
		NodeImage:    nodes.Image,
		NodeReview:   nodes.Review,
		NodeAssemble: nodes.Assemble,
	}

	steps := make(map[string]Step, len(given)+2)
	for _, name := range acyclicPath {
		if given[name] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingStep, name)
		}
		steps[name] = named{name: name, Step: given[name]}
	}
	if nodes.Enhancer == nil {
		return nil, fmt.Errorf("%w: enhancer", ErrMissingStep)
	}

	return &Graph{
		steps:    steps,
		enhancer: nodes.Enhancer,
		opts:     append([]Option(nil), opts...),
	}, nil
}

// Run executes the graph on s and returns when the terminal node is reached
// or the run aborts. A content failure recorded on the state is not an
// error: the run completes and the marker is left on Result.State.
// Returned errors are a *StepError for engine-fatal outcomes,
// ErrStepBudgetExceeded, or the context's error.
func (g *Graph) Run(ctx context.Context, s *state.State, opts ...Option) (*Result, error) {
	if s == nil {
		return nil, ErrNilState
	}
	return g.execute(ctx, s, g.options(opts), func(event.Event) {})
}

// RunStream executes the graph in a goroutine and streams its events. The
// channel is closed once the run ends.
func (g *Graph) RunStream(ctx context.Context, s *state.State, opts ...Option) <-chan event.Event {
	ch := event.NewChannel()

	go func() {
		defer close(ch)

		emit := func(e event.Event) {
			if !event.Send(ctx, ch, e) {
				event.Emit(ch, e)
			}
		}
		if s == nil {
			emit(event.Event{Type: event.RunError, Error: ErrNilState, Message: string(TerminationError)})
			return
		}
		_, _ = g.execute(ctx, s, g.options(opts), emit)
	}()

	return ch
}

func (g *Graph) options(extra []Option) *Options {
	all := make([]Option, 0, len(g.opts)+len(extra))
	all = append(all, g.opts...)
	all = append(all, extra...)
	return ApplyOptions(all...)
}

func (g *Graph) execute(ctx context.Context, s *state.State, o *Options, emit func(event.Event)) (*Result, error) {
	runID := o.RunID
	if runID == "" {
		runID = RunIDForTopic(s.Topic)
	}
	logger := o.Logger.With("run_id", runID)
	res := &Result{RunID: runID, State: s}

	loops := NewLoopController(g.enhancer, o.Policy, logger)
	steps := make(map[string]Step, len(g.steps)+2)
	for name, step := range g.steps {
		steps[name] = step
	}
	steps[NodeDeepen] = loops.Deepen()
	steps[NodeRevise] = loops.Revise()

	send := func(e event.Event) {
		e.RunID = runID
		emit(e)
	}
	abort := func(reason TerminationReason, err error) (*Result, error) {
		res.Termination = reason
		res.Error = err
		logger.Error("run aborted", "termination", reason, "error", err)
		send(event.Event{Type: event.RunError, Error: err, Message: string(reason)})
		return res, err
	}

	send(event.Event{Type: event.RunStart, Message: s.Topic})
	logger.Info("run started", "topic", s.Topic, "budget", o.Policy.StepBudget())

	budget := o.Policy.StepBudget()
	for node := NodeResearch; node != ""; {
		if err := ctx.Err(); err != nil {
			return abort(terminationFor(err), err)
		}
		if len(res.Trace) >= budget {
			return abort(TerminationError, fmt.Errorf("%w: %d steps at %q", ErrStepBudgetExceeded, budget, node))
		}
		res.Trace = append(res.Trace, node)

		if err := visit(ctx, steps[node], s, o, logger, send); err != nil {
			return abort(TerminationError, err)
		}

		if o.Checkpointer != nil {
			// Save even when ctx was cancelled during the step so the
			// snapshot matches what the caller gets back.
			if err := o.Checkpointer.SaveStep(context.WithoutCancel(ctx), runID, node, s); err != nil {
				return abort(TerminationError, &StepError{StepName: node, Err: fmt.Errorf("checkpoint: %w", err)})
			}
		}

		node = g.next(node, s, o.Policy, send)
	}

	res.Termination = TerminationComplete
	logger.Info("run finished", "steps", len(res.Trace), "failed", s.Failed())
	send(event.Event{Type: event.RunEnd, Message: string(TerminationComplete), State: s.Clone()})
	return res, nil
}

// visit runs one node, or skips it when the state already carries an error
// marker. Only engine-fatal outcomes are returned.
func visit(ctx context.Context, step Step, s *state.State, o *Options, logger *slog.Logger, send func(event.Event)) error {
	node := step.Name()
	if s.Failed() {
		logger.Debug("step skipped", "step", node, "reason", s.Err)
		send(event.Event{Type: event.StepSkipped, StepName: node, Message: s.Err})
		return nil
	}

	switch node {
	case NodeDeepen:
		send(event.Event{Type: event.LoopIteration, StepName: node, Iteration: s.QuestioningCount + 1})
	case NodeRevise:
		send(event.Event{Type: event.LoopIteration, StepName: node, Iteration: s.RevisionCount + 1})
	}

	send(event.Event{Type: event.StepStart, StepName: node})
	out := runStep(ctx, step, s, o.StepTimeout)

	if out.Fatal {
		return &StepError{StepName: node, Err: out.Err}
	}
	if out.Err != nil {
		logger.Warn("step failed, skipping remaining steps", "step", node, "error", out.Err)
		s.Fail(fmt.Sprintf("%s: %v", node, out.Err))
	}
	send(event.Event{Type: event.StepEnd, StepName: node, Error: out.Err})
	return nil
}

func runStep(ctx context.Context, step Step, s *state.State, timeout time.Duration) (out Outcome) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			out = Fatal(fmt.Errorf("panic: %v", r))
		}
	}()
	return step.Run(ctx, s)
}

// next returns the node after from, or "" at the terminal node. Once the
// state is marked failed both branch points take the forward edge.
func (g *Graph) next(from string, s *state.State, p Policy, send func(event.Event)) string {
	route := func(r Route) string {
		send(event.Event{Type: event.RouteSelected, StepName: from, RouteName: string(r)})
		return string(r)
	}

	switch from {
	case NodeResearch:
		return NodePlan
	case NodePlan:
		return NodeWrite
	case NodeWrite:
		return NodeQuestion
	case NodeQuestion:
		if s.Failed() {
			return route(RouteCode)
		}
		return route(DepthDecision(s, p))
	case NodeDeepen:
		return NodeQuestion
	case NodeCode:
		return NodeImage
	case NodeImage:
		return NodeReview
	case NodeReview:
		if s.Failed() {
			return route(RouteAssemble)
		}
		return route(ReviewDecision(s, p))
	case NodeRevise:
		return NodeReview
	default:
		return ""
	}
}

func terminationFor(err error) TerminationReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return TerminationTimeout
	}
	return TerminationCancelled
}
