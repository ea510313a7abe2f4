package agents

import (
	"context"
	"fmt"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/workflow"
)

// Coder generates a code example for every [CODE: id - description]
// placeholder in the sections.
type Coder struct {
	chat longform.ChatProvider
	cfg  config
}

// NewCoder creates a Coder. Examples are written in python unless
// WithLanguage says otherwise.
func NewCoder(chat longform.ChatProvider, opts ...Option) *Coder {
	return &Coder{chat: chat, cfg: newConfig(opts)}
}

func (c *Coder) Name() string { return workflow.NodeCode }

type codeExample struct {
	Code        string `json:"code"`
	CodeBlock   string `json:"code_block"`
	Output      string `json:"output"`
	OutputBlock string `json:"output_block"`
	Explanation string `json:"explanation"`
	Language    string `json:"language"`
}

func (c *Coder) Run(ctx context.Context, s *state.State) workflow.Outcome {
	generated := 0
	for i := range s.Sections {
		sec := s.Sections[i]
		for _, p := range findPlaceholders(codePlaceholder, sec.Content) {
			cb, err := c.generate(ctx, sec, p)
			if err != nil {
				c.cfg.logger.Warn("code generation failed", "section", sec.ID, "code_id", p.Key, "error", err)
				continue
			}
			cb.ID = codeBlockID(s, sec.ID, p.Key)
			if err := s.AddCodeBlock(cb); err != nil {
				return workflow.Fatal(err)
			}
			generated++
		}
	}

	c.cfg.logger.Info("code examples generated", "step", c.Name(), "count", generated)
	return workflow.Continue()
}

func (c *Coder) generate(ctx context.Context, sec state.Section, p placeholder) (state.CodeBlock, error) {
	prompt, err := render("coder", map[string]any{
		"Language":    c.cfg.language,
		"Description": p.Description,
		"Context":     fmt.Sprintf("Section: %s\n\n%s", sec.Title, p.surrounding(sec.Content)),
	})
	if err != nil {
		return state.CodeBlock{}, err
	}

	var ex codeExample
	if err := completeJSON(ctx, c.chat, c.cfg, prompt, &ex); err != nil {
		return state.CodeBlock{}, err
	}

	cb := state.CodeBlock{
		SectionID:   sec.ID,
		Code:        firstNonEmpty(ex.Code, ex.CodeBlock),
		Output:      firstNonEmpty(ex.Output, ex.OutputBlock),
		Explanation: ex.Explanation,
		Language:    firstNonEmpty(ex.Language, c.cfg.language),
		Placeholder: p.Text,
	}
	if cb.Code == "" {
		return state.CodeBlock{}, fmt.Errorf("empty code for %s", p.Key)
	}
	cb.Code = stripFence(cb.Code)
	return cb, nil
}

// codeBlockID scopes a placeholder key to its section. Writers prompt each
// section on its own, so the same key shows up in several sections and can
// repeat within one.
func codeBlockID(s *state.State, sectionID, key string) string {
	id := sectionID + "_" + key
	for n := 2; ; n++ {
		if _, taken := s.CodeBlocks[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s_%s_%d", sectionID, key, n)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
