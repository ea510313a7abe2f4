package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/workflow"
)

const (
	fallbackReviewScore = 80
	documentSeparator   = "\n\n---\n\n"
)

// Reviewer scores the whole document and lists issues for the revise loop.
type Reviewer struct {
	chat longform.ChatProvider
	cfg  config
}

// NewReviewer creates a Reviewer.
func NewReviewer(chat longform.ChatProvider, opts ...Option) *Reviewer {
	return &Reviewer{chat: chat, cfg: newConfig(opts)}
}

func (r *Reviewer) Name() string { return workflow.NodeReview }

type reviewVerdict struct {
	Score    *int                `json:"score"`
	Approved *bool               `json:"approved"`
	Summary  string              `json:"summary"`
	Issues   []state.ReviewIssue `json:"issues"`
}

// Document renders sections the way the reviewer reads them.
func Document(sections []state.Section) string {
	parts := make([]string, 0, len(sections))
	for _, sec := range sections {
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", sec.Title, sec.Content))
	}
	return strings.Join(parts, documentSeparator)
}

func (r *Reviewer) Run(ctx context.Context, s *state.State) workflow.Outcome {
	s.Review = r.review(ctx, s)

	logger := r.cfg.logger.With("step", r.Name())
	logger.Info("review complete", "score", s.Review.Score, "approved", s.Review.Approved, "issues", len(s.Review.Issues), "round", s.RevisionCount)
	for _, issue := range s.Review.Issues {
		logger.Debug("review issue", "section", issue.SectionID, "severity", issue.Severity, "description", issue.Description)
	}
	return workflow.Continue()
}

// review returns the verdict. When the model cannot be asked or its answer
// cannot be read the document is approved with the fallback score.
func (r *Reviewer) review(ctx context.Context, s *state.State) *state.ReviewResult {
	fallback := &state.ReviewResult{Score: fallbackReviewScore, Approved: true, Summary: "review unavailable", Issues: []state.ReviewIssue{}}

	ids := make([]string, 0, len(s.Sections))
	for _, sec := range s.Sections {
		ids = append(ids, sec.ID)
	}
	data := map[string]any{
		"Title":      s.Topic,
		"CoreValue":  "",
		"Document":   Document(s.Sections),
		"SectionIDs": ids,
	}
	if s.Outline != nil {
		data["Title"] = s.Outline.Title
		data["CoreValue"] = s.Outline.CoreValue
	}

	prompt, err := render("reviewer", data)
	if err != nil {
		return fallback
	}

	var v reviewVerdict
	if err := completeJSON(ctx, r.chat, r.cfg, prompt, &v); err != nil {
		r.cfg.logger.Warn("review failed, approving by default", "error", err)
		return fallback
	}

	result := &state.ReviewResult{
		Score:    fallbackReviewScore,
		Approved: true,
		Summary:  v.Summary,
		Issues:   v.Issues,
	}
	if v.Score != nil {
		result.Score = *v.Score
	}
	if v.Approved != nil {
		result.Approved = *v.Approved
	}
	if result.Issues == nil {
		result.Issues = []state.ReviewIssue{}
	}
	return result
}
