package agents

import (
	"context"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/workflow"
)

// fallbackDepthScore is recorded when a section cannot be judged.
const fallbackDepthScore = 80

// Questioner judges each section's depth and records vague points for the
// deepen loop.
type Questioner struct {
	chat longform.ChatProvider
	cfg  config
}

// NewQuestioner creates a Questioner.
func NewQuestioner(chat longform.ChatProvider, opts ...Option) *Questioner {
	return &Questioner{chat: chat, cfg: newConfig(opts)}
}

func (q *Questioner) Name() string { return workflow.NodeQuestion }

type depthVerdict struct {
	IsDetailed  *bool              `json:"is_detailed_enough"`
	Detailed    *bool              `json:"detailed_enough"`
	DepthScore  *int               `json:"depth_score"`
	VaguePoints []state.VaguePoint `json:"vague_points"`
}

func (q *Questioner) Run(ctx context.Context, s *state.State) workflow.Outcome {
	results := make([]state.QuestionResult, 0, len(s.Sections))
	for _, sec := range s.Sections {
		results = append(results, q.judge(ctx, s.Audience, sec))
	}
	s.QuestionResults = results

	vague := 0
	for _, r := range results {
		if !r.DetailedEnough {
			vague++
		}
	}
	q.cfg.logger.Info("depth check complete", "step", q.Name(), "sections", len(results), "vague", vague, "round", s.QuestioningCount)
	return workflow.Continue()
}

// judge asks for a verdict on one section. A section that cannot be judged
// counts as detailed enough.
func (q *Questioner) judge(ctx context.Context, audience state.Audience, sec state.Section) state.QuestionResult {
	detailed := state.QuestionResult{SectionID: sec.ID, DetailedEnough: true, DepthScore: fallbackDepthScore}

	prompt, err := render("questioner", map[string]any{
		"Audience": audience,
		"Title":    sec.Title,
		"Content":  sec.Content,
	})
	if err != nil {
		return detailed
	}

	var v depthVerdict
	if err := completeJSON(ctx, q.chat, q.cfg, prompt, &v); err != nil {
		q.cfg.logger.Warn("depth check failed, treating section as detailed", "section", sec.ID, "error", err)
		return detailed
	}

	result := state.QuestionResult{
		SectionID:      sec.ID,
		DetailedEnough: true,
		DepthScore:     fallbackDepthScore,
		VaguePoints:    v.VaguePoints,
	}
	switch {
	case v.IsDetailed != nil:
		result.DetailedEnough = *v.IsDetailed
	case v.Detailed != nil:
		result.DetailedEnough = *v.Detailed
	}
	if v.DepthScore != nil {
		result.DepthScore = *v.DepthScore
	}
	return result
}
