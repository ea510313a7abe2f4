package agents

import (
	"context"
	"fmt"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/workflow"
)

// Writer writes section prose and, as a workflow.Enhancer, rewrites
// sections for the deepen and revise loops.
type Writer struct {
	chat longform.ChatProvider
	cfg  config
}

// NewWriter creates a Writer.
func NewWriter(chat longform.ChatProvider, opts ...Option) *Writer {
	return &Writer{chat: chat, cfg: newConfig(opts)}
}

func (w *Writer) Name() string { return workflow.NodeWrite }

func (w *Writer) Run(ctx context.Context, s *state.State) workflow.Outcome {
	if s.Outline == nil {
		return workflow.Fail(ErrNoOutline)
	}
	plan := s.Outline.Sections

	sections := make([]state.Section, 0, len(plan))
	for i, so := range plan {
		var prev, next string
		if i > 0 {
			prev = fmt.Sprintf("%q covered %s", plan[i-1].Title, plan[i-1].KeyConcept)
		}
		if i < len(plan)-1 {
			next = fmt.Sprintf("%q will introduce %s", plan[i+1].Title, plan[i+1].KeyConcept)
		}

		content, err := w.write(ctx, so, prev, next, s.Background)
		if err != nil {
			s.Sections = sections
			return workflow.Fail(fmt.Errorf("write section %q: %w", so.Title, err))
		}
		sections = append(sections, state.Section{
			ID:       so.ID,
			Title:    so.Title,
			Content:  content,
			ImageIDs: []string{},
			CodeIDs:  []string{},
		})
		w.cfg.logger.Info("section written", "step", w.Name(), "section", so.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(plan)))
	}

	s.Sections = sections
	return workflow.Continue()
}

func (w *Writer) write(ctx context.Context, so state.SectionOutline, prev, next, background string) (string, error) {
	prompt, err := render("writer", map[string]any{
		"Section":    so,
		"Previous":   prev,
		"Next":       next,
		"Background": background,
	})
	if err != nil {
		return "", err
	}
	return complete(ctx, w.chat, w.cfg, prompt)
}

// Enhance rewrites original to address points. With no points the original
// is returned unchanged without calling the model. On error the original
// is returned along with the error.
func (w *Writer) Enhance(ctx context.Context, title, original string, points []state.VaguePoint) (string, error) {
	if len(points) == 0 {
		return original, nil
	}

	prompt, err := render("writer_enhance", map[string]any{
		"Title":    title,
		"Original": original,
		"Points":   points,
	})
	if err != nil {
		return original, err
	}

	revised, err := complete(ctx, w.chat, w.cfg, prompt)
	if err != nil {
		return original, err
	}
	w.cfg.logger.Debug("section enhanced", "section", title, "points", len(points), "delta", len(revised)-len(original))
	return revised, nil
}

var _ workflow.Enhancer = (*Writer)(nil)
