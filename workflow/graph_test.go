package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/spetersoncode/longform/event"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDoc wires the graph to deterministic collaborators.
type fakeDoc struct {
	mu    sync.Mutex
	calls []string

	// detailedFrom is the questioner round (0-indexed) from which every
	// section is reported detailed. -1 means never.
	detailedFrom int
	// approveFrom is the review round from which the document is approved.
	approveFrom int

	questionRounds int
	reviewRounds   int
	enhanced       int

	failAt  string
	fatalAt string
}

func newFakeDoc() *fakeDoc {
	return &fakeDoc{}
}

func (f *fakeDoc) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeDoc) step(name string, fn func(s *state.State)) Step {
	return NewFuncStep("fake-"+name, func(ctx context.Context, s *state.State) Outcome {
		f.record(name)
		if f.fatalAt == name {
			return Fatal(errors.New("invariant broken"))
		}
		if f.failAt == name {
			return Fail(fmt.Errorf("%s produced nothing", name))
		}
		if fn != nil {
			fn(s)
		}
		return Continue()
	})
}

func (f *fakeDoc) Enhance(ctx context.Context, title, original string, points []state.VaguePoint) (string, error) {
	f.enhanced++
	if len(points) == 0 {
		return original, nil
	}
	return original + " +", nil
}

func (f *fakeDoc) nodes() Nodes {
	return Nodes{
		Research: f.step(NodeResearch, func(s *state.State) { s.AddKeyConcept("cache") }),
		Plan: f.step(NodePlan, func(s *state.State) {
			s.Outline = &state.Outline{Title: "T", Sections: []state.SectionOutline{{ID: "s1"}, {ID: "s2"}}}
		}),
		Write: f.step(NodeWrite, func(s *state.State) {
			s.Sections = []state.Section{{ID: "s1", Title: "One", Content: "a"}, {ID: "s2", Title: "Two", Content: "b"}}
		}),
		Question: f.step(NodeQuestion, func(s *state.State) {
			detailed := f.detailedFrom >= 0 && f.questionRounds >= f.detailedFrom
			f.questionRounds++
			s.QuestionResults = []state.QuestionResult{
				{SectionID: "s1", DetailedEnough: true},
				{SectionID: "s2", DetailedEnough: detailed, VaguePoints: []state.VaguePoint{{Issue: "thin"}}},
			}
		}),
		Code: f.step(NodeCode, func(s *state.State) {
			_ = s.AddCodeBlock(state.CodeBlock{ID: "code_1", SectionID: "s1"})
		}),
		Image: f.step(NodeImage, func(s *state.State) {
			_ = s.AddImage(state.Image{ID: "img_1", SectionID: "s2", RenderMethod: state.RenderDiagram})
		}),
		Review: f.step(NodeReview, func(s *state.State) {
			approved := f.approveFrom >= 0 && f.reviewRounds >= f.approveFrom
			f.reviewRounds++
			s.Review = &state.ReviewResult{
				Score:    60,
				Approved: approved,
				Issues:   []state.ReviewIssue{{SectionID: "s1", Description: "unclear", Suggestion: "add example"}},
			}
		}),
		Assemble: f.step(NodeAssemble, func(s *state.State) { s.FinalMarkdown = "# T\n" }),
		Enhancer: f,
	}
}

func newGraph(t *testing.T, f *fakeDoc, opts ...Option) *Graph {
	t.Helper()
	g, err := New(f.nodes(), opts...)
	require.NoError(t, err)
	return g
}

func TestGraph_StraightThrough(t *testing.T) {
	f := newFakeDoc()
	g := newGraph(t, f)

	result, err := g.Run(context.Background(), state.New(state.Input{Topic: "Redis"}))
	require.NoError(t, err)

	assert.Equal(t, TerminationComplete, result.Termination)
	assert.Equal(t, "blog_Redis", result.RunID)
	assert.Equal(t, acyclicPath, result.Trace)
	assert.Equal(t, "# T\n", result.State.FinalMarkdown)
	assert.Zero(t, result.State.QuestioningCount)
	assert.Zero(t, result.State.RevisionCount)
	assert.NoError(t, result.State.ValidateReferences())
}

func TestGraph_QuestioningCapScenario(t *testing.T) {
	f := newFakeDoc()
	f.detailedFrom = 2
	g := newGraph(t, f, WithPolicy(Policy{MaxQuestioningRounds: 2, MaxRevisionRounds: 3}))

	result, err := g.Run(context.Background(), state.New(state.Input{Topic: "Redis"}))
	require.NoError(t, err)

	assert.Equal(t, 2, result.State.QuestioningCount)
	assert.Equal(t, []string{
		NodeResearch, NodePlan, NodeWrite,
		NodeQuestion, NodeDeepen, NodeQuestion, NodeDeepen, NodeQuestion,
		NodeCode, NodeImage, NodeReview, NodeAssemble,
	}, result.Trace)

	// Only the vague section was enhanced, once per round.
	s2, _ := result.State.SectionByID("s2")
	s1, _ := result.State.SectionByID("s1")
	assert.Equal(t, "b + +", s2.Content)
	assert.Equal(t, "a", s1.Content)
}

func TestGraph_NeverSatisfiedTerminates(t *testing.T) {
	for _, p := range []Policy{
		{MaxQuestioningRounds: 0, MaxRevisionRounds: 0},
		{MaxQuestioningRounds: 1, MaxRevisionRounds: 1},
		DefaultPolicy(),
		{MaxQuestioningRounds: 5, MaxRevisionRounds: 4},
	} {
		t.Run(fmt.Sprintf("q%d_r%d", p.MaxQuestioningRounds, p.MaxRevisionRounds), func(t *testing.T) {
			f := newFakeDoc()
			f.detailedFrom = -1
			f.approveFrom = -1
			g := newGraph(t, f, WithPolicy(p))

			result, err := g.Run(context.Background(), state.New(state.Input{Topic: "x"}))
			require.NoError(t, err)

			assert.Equal(t, TerminationComplete, result.Termination)
			assert.Equal(t, p.MaxQuestioningRounds, result.State.QuestioningCount)
			assert.Equal(t, p.MaxRevisionRounds, result.State.RevisionCount)
			assert.Len(t, result.Trace, p.StepBudget())
			assert.Equal(t, NodeAssemble, result.Trace[len(result.Trace)-1])
		})
	}
}

func TestGraph_ReviseLoopReframesIssues(t *testing.T) {
	f := newFakeDoc()
	f.approveFrom = 1
	g := newGraph(t, f)

	result, err := g.Run(context.Background(), state.New(state.Input{Topic: "x"}))
	require.NoError(t, err)

	assert.Equal(t, 1, result.State.RevisionCount)
	s1, _ := result.State.SectionByID("s1")
	assert.Equal(t, "a +", s1.Content)
}

func TestGraph_ContentFailureIsInert(t *testing.T) {
	f := newFakeDoc()
	f.failAt = NodeWrite
	f.detailedFrom = -1
	f.approveFrom = -1
	g := newGraph(t, f)

	s := state.New(state.Input{Topic: "x"})
	events := event.Collect(g.RunStream(context.Background(), s))

	assert.Equal(t, []string{NodeResearch, NodePlan, NodeWrite}, f.calls)
	assert.Contains(t, s.Err, "write produced nothing")
	assert.Zero(t, s.QuestioningCount)
	assert.Zero(t, s.RevisionCount)

	var skipped []string
	for _, e := range events {
		if e.Type == event.StepSkipped {
			skipped = append(skipped, e.StepName)
		}
	}
	assert.Equal(t, []string{NodeQuestion, NodeCode, NodeImage, NodeReview, NodeAssemble}, skipped)

	last := events[len(events)-1]
	assert.Equal(t, event.RunEnd, last.Type)
	require.NotNil(t, last.State)
	assert.Equal(t, s.Err, last.State.Err)
}

func TestGraph_FatalAborts(t *testing.T) {
	f := newFakeDoc()
	f.fatalAt = NodeCode
	g := newGraph(t, f)

	result, err := g.Run(context.Background(), state.New(state.Input{Topic: "x"}))

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, NodeCode, stepErr.StepName)
	assert.Equal(t, TerminationError, result.Termination)
	assert.NotContains(t, f.calls, NodeImage)
}

func TestGraph_PanicIsFatal(t *testing.T) {
	f := newFakeDoc()
	nodes := f.nodes()
	nodes.Image = NewFuncStep("boom", func(ctx context.Context, s *state.State) Outcome {
		panic("nil map")
	})
	g, err := New(nodes)
	require.NoError(t, err)

	_, err = g.Run(context.Background(), state.New(state.Input{Topic: "x"}))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, NodeImage, stepErr.StepName)
	assert.Contains(t, err.Error(), "panic: nil map")
}

func TestGraph_Cancellation(t *testing.T) {
	f := newFakeDoc()
	ctx, cancel := context.WithCancel(context.Background())
	nodes := f.nodes()
	nodes.Plan = NewFuncStep("plan", func(context.Context, *state.State) Outcome {
		cancel()
		return Continue()
	})
	g, err := New(nodes)
	require.NoError(t, err)

	result, err := g.Run(ctx, state.New(state.Input{Topic: "x"}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, TerminationCancelled, result.Termination)
	assert.Equal(t, []string{NodeResearch, NodePlan}, result.Trace)
}

func TestGraph_Checkpoints(t *testing.T) {
	f := newFakeDoc()
	f.detailedFrom = 1
	cp := store.NewCheckpointer[*state.State](nil)
	g := newGraph(t, f, WithCheckpointer(cp), WithRunID("run-1"))

	result, err := g.Run(context.Background(), state.New(state.Input{Topic: "x"}))
	require.NoError(t, err)

	env, ok, err := cp.LoadCheckpoint(context.Background(), "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, NodeAssemble, env.Step)
	assert.Equal(t, len(result.Trace), env.Sequence)
	assert.Equal(t, result.State, env.State)
}

type failingCheckpointer struct{}

func (failingCheckpointer) SaveStep(context.Context, string, string, *state.State) error {
	return errors.New("disk full")
}

func TestGraph_CheckpointFailureIsFatal(t *testing.T) {
	g := newGraph(t, newFakeDoc(), WithCheckpointer(failingCheckpointer{}))

	result, err := g.Run(context.Background(), state.New(state.Input{Topic: "x"}))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, NodeResearch, stepErr.StepName)
	assert.Equal(t, TerminationError, result.Termination)
}

func TestGraph_RunStreamEvents(t *testing.T) {
	f := newFakeDoc()
	f.detailedFrom = 1
	f.approveFrom = 0
	g := newGraph(t, f)

	events := event.Collect(g.RunStream(context.Background(), state.New(state.Input{Topic: "x"})))
	require.NotEmpty(t, events)

	assert.Equal(t, event.RunStart, events[0].Type)
	assert.Equal(t, event.RunEnd, events[len(events)-1].Type)

	var routes []string
	var loops []int
	for _, e := range events {
		assert.Equal(t, "blog_x", e.RunID)
		switch e.Type {
		case event.RouteSelected:
			routes = append(routes, e.RouteName)
		case event.LoopIteration:
			loops = append(loops, e.Iteration)
		}
	}
	assert.Equal(t, []string{"deepen", "code", "assemble"}, routes)
	assert.Equal(t, []int{1}, loops)
}

func TestGraph_RunStreamNilState(t *testing.T) {
	g := newGraph(t, newFakeDoc())
	events := event.Collect(g.RunStream(context.Background(), nil))
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Error, ErrNilState)
}

func TestNew_MissingStep(t *testing.T) {
	nodes := newFakeDoc().nodes()
	nodes.Review = nil
	_, err := New(nodes)
	assert.ErrorIs(t, err, ErrMissingStep)

	nodes = newFakeDoc().nodes()
	nodes.Enhancer = nil
	_, err = New(nodes)
	assert.ErrorIs(t, err, ErrMissingStep)
}

func TestRun_NilState(t *testing.T) {
	g := newGraph(t, newFakeDoc())
	_, err := g.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilState)
}
