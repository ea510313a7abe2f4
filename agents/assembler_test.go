package agents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spetersoncode/longform/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assembledState(t *testing.T) *state.State {
	t.Helper()
	s := writtenState()
	s.ReferenceLinks = []string{"https://redis.io/docs/eviction"}
	require.NoError(t, s.AddCodeBlock(state.CodeBlock{
		ID:          "lru_config",
		SectionID:   "s2",
		Code:        "CONFIG SET maxmemory-policy allkeys-lru\n",
		Output:      "OK",
		Explanation: "Sets the policy.",
		Language:    "bash",
	}))
	require.NoError(t, s.AddImage(state.Image{
		ID: "img_1", SectionID: "s1", RenderMethod: state.RenderDiagram,
		Content: "graph LR; app-->cache", Caption: "Read path",
	}))
	require.NoError(t, s.AddImage(state.Image{
		ID: "img_2", SectionID: "s2", RenderMethod: state.RenderChart,
		Content: "plt.plot(x)", Caption: "Evictions",
		Placeholder: "[IMAGE: flowchart - eviction decision]",
	}))
	return s
}

func TestCompose(t *testing.T) {
	md := Compose(assembledState(t))

	assert.True(t, strings.HasPrefix(md, "# Caching with Redis\n\n> From TTLs to eviction\n\nCaches fail in interesting ways.\n\n**What you will learn:** Pick an eviction policy with confidence.\n\n"))
	assert.Contains(t, md, "## Why cache\n\nCaching cuts latency.\n\n```mermaid\ngraph LR; app-->cache\n```\n\n*Read path*")
	assert.Contains(t, md, "## Eviction\n\nUse LRU.\n\n```bash\nCONFIG SET maxmemory-policy allkeys-lru\n```\n\nOutput:\n\n```\nOK\n```\n\nSets the policy.\n\n```python\nplt.plot(x)\n```\n\n*Evictions*")
	assert.Contains(t, md, "## Summary\n\n- Set TTLs\n- Measure hit rate\n\nTry it on staging.\n")
	assert.Contains(t, md, "## References\n\n- <https://redis.io/docs/eviction>\n")
	assert.NotContains(t, md, "[CODE:")
	assert.NotContains(t, md, "[IMAGE:")
	assert.NotContains(t, md, "Reading time", "zero reading time is omitted")

	assert.Less(t, strings.Index(md, "## Why cache"), strings.Index(md, "## Eviction"))
	assert.Less(t, strings.Index(md, "## Eviction"), strings.Index(md, "## Summary"))
}

func TestRenderSectionDropsUnfilledPlaceholders(t *testing.T) {
	s := writtenState()
	s.Sections[0].Content = "Before [CODE: missing - nothing] after. [IMAGE: sketch - none]"
	s.CodeBlocks["other"] = state.CodeBlock{ID: "other", SectionID: "s1", Code: "x"}
	s.Sections[1].Content = "[CODE: other - belongs to s1]"

	assert.Equal(t, "Before  after.", renderSection(s, s.Sections[0]))
	assert.Empty(t, renderSection(s, s.Sections[1]))
}

func TestRenderImage(t *testing.T) {
	tests := []struct {
		name string
		img  state.Image
		want string
	}{
		{"rendered file", state.Image{RenderMethod: state.RenderAIImage, Caption: "Desk", RenderedPath: "./images/img_1.png"}, "![Desk](./images/img_1.png)"},
		{"unrendered prompt", state.Image{RenderMethod: state.RenderAIImage, Content: "a desk"}, "> Illustration: a desk"},
		{"diagram", state.Image{RenderMethod: state.RenderDiagram, Content: "graph TD"}, "```mermaid\ngraph TD\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderImage(tt.img))
		})
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "caching-with-redis-a-guide", Slug("Caching with Redis: A Guide!"))
	assert.Equal(t, "article", Slug("!!!"))
	assert.Equal(t, "article", Slug(""))
	assert.LessOrEqual(t, len(Slug(strings.Repeat("word ", 40))), 80)
}

func TestAssembler(t *testing.T) {
	dir := t.TempDir()
	s := assembledState(t)

	out := NewAssembler(WithOutputDir(dir)).Run(context.Background(), s)
	require.True(t, out.OK(), "%v", out.Err)

	assert.True(t, strings.HasSuffix(s.FinalMarkdown, "\n"))
	assert.Contains(t, s.FinalHTML, "<h1>Caching with Redis</h1>")
	assert.Contains(t, s.FinalHTML, `<code class="language-bash">`)
	assert.Equal(t, dir, s.OutputDir)

	md, err := os.ReadFile(filepath.Join(dir, "caching-with-redis.md"))
	require.NoError(t, err)
	assert.Equal(t, s.FinalMarkdown, string(md))

	html, err := os.ReadFile(filepath.Join(dir, "caching-with-redis.html"))
	require.NoError(t, err)
	assert.Equal(t, s.FinalHTML, string(html))
}

func TestAssemblerWithoutOutputDir(t *testing.T) {
	s := assembledState(t)
	require.True(t, NewAssembler().Run(context.Background(), s).OK())
	assert.NotEmpty(t, s.FinalMarkdown)
	assert.Empty(t, s.OutputDir)
}

func TestAssemblerFailures(t *testing.T) {
	t.Run("missing outline", func(t *testing.T) {
		s := writtenState()
		s.Outline = nil
		out := NewAssembler().Run(context.Background(), s)
		assert.ErrorIs(t, out.Err, ErrNoOutline)
		assert.False(t, out.Fatal)
	})

	t.Run("dangling reference", func(t *testing.T) {
		s := writtenState()
		s.Images["img_9"] = state.Image{ID: "img_9", SectionID: "gone"}
		out := NewAssembler().Run(context.Background(), s)
		assert.ErrorIs(t, out.Err, state.ErrDanglingReference)
		assert.Empty(t, s.FinalMarkdown)
	})
}
