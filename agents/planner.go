package agents

import (
	"context"
	"fmt"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/workflow"
)

// Planner turns the research into an outline.
type Planner struct {
	chat longform.ChatProvider
	cfg  config
}

// NewPlanner creates a Planner.
func NewPlanner(chat longform.ChatProvider, opts ...Option) *Planner {
	return &Planner{chat: chat, cfg: newConfig(opts)}
}

func (p *Planner) Name() string { return workflow.NodePlan }

func sectionHint(l state.Length) string {
	switch l {
	case state.LengthShort:
		return "3-4"
	case state.LengthLong:
		return "7-9"
	default:
		return "5-6"
	}
}

func (p *Planner) Run(ctx context.Context, s *state.State) workflow.Outcome {
	prompt, err := render("planner", map[string]any{
		"Topic":          s.Topic,
		"ArticleType":    s.ArticleType,
		"Audience":       s.Audience,
		"Length":         s.Length,
		"SectionHint":    sectionHint(s.Length),
		"KeyConcepts":    s.KeyConcepts,
		"Background":     s.Background,
		"SourceMaterial": s.SourceMaterial,
	})
	if err != nil {
		return workflow.Fatal(err)
	}

	var outline state.Outline
	if err := completeJSON(ctx, p.chat, p.cfg, prompt, &outline); err != nil {
		return workflow.Fail(fmt.Errorf("%w: %v", ErrNoOutline, err))
	}
	if len(outline.Sections) == 0 {
		return workflow.Fail(fmt.Errorf("%w: outline has no sections", ErrNoOutline))
	}

	seen := make(map[string]bool, len(outline.Sections))
	for i := range outline.Sections {
		sec := &outline.Sections[i]
		if sec.ID == "" || seen[sec.ID] {
			sec.ID = fmt.Sprintf("section_%d", i+1)
		}
		seen[sec.ID] = true
	}

	s.Outline = &outline
	p.cfg.logger.Info("outline planned", "step", p.Name(), "title", outline.Title, "sections", len(outline.Sections))
	return workflow.Continue()
}
