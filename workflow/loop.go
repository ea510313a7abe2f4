package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spetersoncode/longform/state"
)

// ReviseSuggestion is the suggestion attached to review issues when they are
// handed to the enhancer.
const ReviseSuggestion = "revise per review suggestion"

// Enhancer rewrites a section to address a list of vague points.
// Called with no points it must return original unchanged.
type Enhancer interface {
	Enhance(ctx context.Context, title, original string, points []state.VaguePoint) (string, error)
}

// EnhancerFunc adapts a function to Enhancer.
type EnhancerFunc func(ctx context.Context, title, original string, points []state.VaguePoint) (string, error)

// Enhance calls f.
func (f EnhancerFunc) Enhance(ctx context.Context, title, original string, points []state.VaguePoint) (string, error) {
	return f(ctx, title, original, points)
}

// LoopController owns the two loop bodies and their counters.
type LoopController struct {
	enhancer Enhancer
	policy   Policy
	logger   *slog.Logger
}

// NewLoopController creates a controller. A nil logger means slog.Default().
func NewLoopController(enhancer Enhancer, policy Policy, logger *slog.Logger) *LoopController {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoopController{enhancer: enhancer, policy: policy, logger: logger}
}

// Deepen returns the body of the questioning loop.
func (c *LoopController) Deepen() Step {
	return NewFuncStep(string(RouteDeepen), c.deepen)
}

// Revise returns the body of the review loop.
func (c *LoopController) Revise() Step {
	return NewFuncStep(string(RouteRevise), c.revise)
}

func (c *LoopController) deepen(ctx context.Context, s *state.State) Outcome {
	if s.QuestioningCount >= c.policy.MaxQuestioningRounds {
		return Fatal(fmt.Errorf("%w: questioning %d/%d", ErrLoopCapReached, s.QuestioningCount, c.policy.MaxQuestioningRounds))
	}
	// The round counts even if every enhancement below fails.
	s.QuestioningCount++

	for _, qr := range s.QuestionResults {
		if qr.DetailedEnough {
			continue
		}
		c.enhance(ctx, s, qr.SectionID, qr.VaguePoints, "deepen")
	}
	return Continue()
}

func (c *LoopController) revise(ctx context.Context, s *state.State) Outcome {
	if s.RevisionCount >= c.policy.MaxRevisionRounds {
		return Fatal(fmt.Errorf("%w: revision %d/%d", ErrLoopCapReached, s.RevisionCount, c.policy.MaxRevisionRounds))
	}
	s.RevisionCount++

	if s.Review == nil {
		return Continue()
	}
	for _, issue := range s.Review.Issues {
		sec, ok := s.SectionByID(issue.SectionID)
		if !ok {
			c.logger.Warn("review issue for unknown section", "section_id", issue.SectionID)
			continue
		}
		point := state.VaguePoint{
			Location:   sec.Title,
			Issue:      issue.Description,
			Question:   issue.Suggestion,
			Suggestion: ReviseSuggestion,
		}
		c.enhance(ctx, s, issue.SectionID, []state.VaguePoint{point}, "revise")
	}
	return Continue()
}

func (c *LoopController) enhance(ctx context.Context, s *state.State, sectionID string, points []state.VaguePoint, loop string) {
	sec, ok := s.SectionByID(sectionID)
	if !ok {
		return
	}
	revised, err := c.enhancer.Enhance(ctx, sec.Title, sec.Content, points)
	if err != nil {
		c.logger.Warn("section enhancement failed",
			"loop", loop,
			"section_id", sectionID,
			"error", err,
		)
		return
	}
	sec.Content = revised
}
