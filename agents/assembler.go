package agents

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/workflow"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Assembler renders the final article: header, sections with placeholders
// replaced by code and images, and the conclusion. The markdown is
// normalized with FormatMarkdown and converted to HTML.
type Assembler struct {
	cfg      config
	markdown goldmark.Markdown
}

// NewAssembler creates an Assembler. With WithOutputDir the article is also
// written to disk.
func NewAssembler(opts ...Option) *Assembler {
	return &Assembler{
		cfg:      newConfig(opts),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (a *Assembler) Name() string { return workflow.NodeAssemble }

func (a *Assembler) Run(ctx context.Context, s *state.State) workflow.Outcome {
	if s.Outline == nil {
		return workflow.Fail(ErrNoOutline)
	}
	if err := s.ValidateReferences(); err != nil {
		return workflow.Fail(err)
	}

	s.FinalMarkdown = FormatMarkdown(Compose(s))

	var buf bytes.Buffer
	if err := a.markdown.Convert([]byte(s.FinalMarkdown), &buf); err != nil {
		return workflow.Fail(fmt.Errorf("render html: %w", err))
	}
	s.FinalHTML = buf.String()

	if a.cfg.outputDir != "" {
		if err := a.write(s); err != nil {
			return workflow.Fail(err)
		}
	}

	a.cfg.logger.Info("article assembled", "step", a.Name(), "bytes", len(s.FinalMarkdown), "output_dir", s.OutputDir)
	return workflow.Continue()
}

// Compose builds the article markdown from the state. It does not format.
func Compose(s *state.State) string {
	var b strings.Builder
	o := s.Outline

	fmt.Fprintf(&b, "# %s\n\n", o.Title)
	if o.Subtitle != "" {
		fmt.Fprintf(&b, "> %s\n\n", o.Subtitle)
	}
	if o.ReadingTime > 0 {
		fmt.Fprintf(&b, "*Reading time: %d minutes*\n\n", o.ReadingTime)
	}
	if o.Introduction != "" {
		fmt.Fprintf(&b, "%s\n\n", o.Introduction)
	}
	if o.CoreValue != "" {
		fmt.Fprintf(&b, "**What you will learn:** %s\n\n", o.CoreValue)
	}

	for _, sec := range s.Sections {
		b.WriteString("---\n\n")
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		b.WriteString(renderSection(s, sec))
		b.WriteString("\n\n")
	}

	if len(o.SummaryPoints) > 0 || o.NextSteps != "" {
		b.WriteString("---\n\n## Summary\n\n")
		for _, p := range o.SummaryPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		if o.NextSteps != "" {
			fmt.Fprintf(&b, "\n%s\n", o.NextSteps)
		}
	}

	if len(s.ReferenceLinks) > 0 {
		b.WriteString("\n## References\n\n")
		for _, link := range s.ReferenceLinks {
			fmt.Fprintf(&b, "- <%s>\n", link)
		}
	}
	return b.String()
}

// renderSection substitutes placeholders. Code placeholders without a
// generated block and image placeholders without an image are dropped.
// Outline images are appended after the prose.
func renderSection(s *state.State, sec state.Section) string {
	// Blocks queue up by the placeholder text they replace, in the order the
	// section lists them. Blocks without one are matched by id.
	blocks := map[string][]state.CodeBlock{}
	for _, id := range sec.CodeIDs {
		cb, ok := s.CodeBlocks[id]
		if !ok || cb.SectionID != sec.ID {
			continue
		}
		key := cb.Placeholder
		if key == "" {
			key = cb.ID
		}
		blocks[key] = append(blocks[key], cb)
	}
	content := codePlaceholder.ReplaceAllStringFunc(sec.Content, func(m string) string {
		for _, key := range []string{m, codePlaceholder.FindStringSubmatch(m)[1]} {
			if q := blocks[key]; len(q) > 0 {
				blocks[key] = q[1:]
				return renderCode(q[0])
			}
		}
		return ""
	})

	var appended []string
	for _, id := range sec.ImageIDs {
		img, ok := s.Images[id]
		if !ok {
			continue
		}
		if img.Placeholder != "" && strings.Contains(content, img.Placeholder) {
			content = strings.Replace(content, img.Placeholder, renderImage(img), 1)
			continue
		}
		appended = append(appended, renderImage(img))
	}
	content = imagePlaceholder.ReplaceAllString(content, "")

	parts := append([]string{strings.TrimSpace(content)}, appended...)
	return strings.Join(parts, "\n\n")
}

func renderCode(cb state.CodeBlock) string {
	var b strings.Builder
	fmt.Fprintf(&b, "```%s\n%s\n```", cb.Language, strings.TrimRight(cb.Code, "\n"))
	if cb.Output != "" {
		fmt.Fprintf(&b, "\n\nOutput:\n\n```\n%s\n```", strings.TrimRight(cb.Output, "\n"))
	}
	if cb.Explanation != "" {
		fmt.Fprintf(&b, "\n\n%s", cb.Explanation)
	}
	return b.String()
}

func renderImage(img state.Image) string {
	var body string
	switch {
	case img.RenderedPath != "":
		body = fmt.Sprintf("![%s](%s)", img.Caption, img.RenderedPath)
	case img.RenderMethod == state.RenderDiagram:
		body = fmt.Sprintf("```mermaid\n%s\n```", img.Content)
	case img.RenderMethod == state.RenderChart:
		body = fmt.Sprintf("```python\n%s\n```", img.Content)
	default:
		body = fmt.Sprintf("> Illustration: %s", img.Content)
	}
	if img.Caption != "" && img.RenderedPath == "" {
		body += fmt.Sprintf("\n\n*%s*", img.Caption)
	}
	return body
}

// Slug turns a title into a file name.
func Slug(title string) string {
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	if slug == "" {
		return "article"
	}
	return slug
}

func (a *Assembler) write(s *state.State) error {
	if err := os.MkdirAll(a.cfg.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := Slug(s.Outline.Title)
	if name == "article" {
		name = Slug(s.Topic)
	}
	for ext, body := range map[string]string{".md": s.FinalMarkdown, ".html": s.FinalHTML} {
		if err := writeFileAtomic(filepath.Join(a.cfg.outputDir, name+ext), []byte(body)); err != nil {
			return err
		}
	}
	s.OutputDir = a.cfg.outputDir
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
