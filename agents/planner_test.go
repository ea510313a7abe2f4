package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/spetersoncode/longform/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanner(t *testing.T) {
	chat := newFakeChat().on(markPlan, "```json\n"+`{
		"title": "Caching with Redis",
		"reading_time": 9,
		"sections": [
			{"id": "intro", "title": "Why cache", "content_outline": ["latency"], "image_type": "none"},
			{"title": "Eviction", "code_blocks": 2},
			{"id": "intro", "title": "Duplicate id"}
		],
		"conclusion_summary_points": ["measure"]
	}`+"\n```")

	s := state.New(state.Input{Topic: "Redis caching", ArticleType: state.ArticleTutorial, Length: state.LengthLong})
	s.KeyConcepts = []string{"TTL", "LRU"}
	out := NewPlanner(chat).Run(context.Background(), s)
	require.True(t, out.OK())

	require.NotNil(t, s.Outline)
	assert.Equal(t, "Caching with Redis", s.Outline.Title)
	require.Len(t, s.Outline.Sections, 3)
	assert.Equal(t, "intro", s.Outline.Sections[0].ID)
	assert.Equal(t, "section_2", s.Outline.Sections[1].ID)
	assert.Equal(t, "section_3", s.Outline.Sections[2].ID)
	assert.Equal(t, 2, s.Outline.Sections[1].CodeBlocks)

	prompt := chat.lastPrompt(markPlan)
	assert.Contains(t, prompt, "tutorial")
	assert.Contains(t, prompt, "7-9")
	assert.Contains(t, prompt, "TTL, LRU")
	assert.True(t, chat.opts[0].JSON)
}

func TestPlannerFailures(t *testing.T) {
	tests := []struct {
		name string
		chat *fakeChat
	}{
		{"unparseable", newFakeChat().on(markPlan, "an outline, in prose")},
		{"no sections", newFakeChat().on(markPlan, `{"title":"T","sections":[]}`)},
		{"chat error", newFakeChat().fail(markPlan, errors.New("boom"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := state.New(state.Input{Topic: "x"})
			out := NewPlanner(tt.chat).Run(context.Background(), s)

			assert.False(t, out.Fatal)
			assert.ErrorIs(t, out.Err, ErrNoOutline)
			assert.Nil(t, s.Outline)
		})
	}
}
