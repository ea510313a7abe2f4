package agents

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/state"
)

// fakeChat answers prompts by the first route whose marker the prompt
// contains. Unrouted prompts fail.
type fakeChat struct {
	mu      sync.Mutex
	routes  []route
	prompts []string
	opts    []*longform.Options
}

type route struct {
	marker string
	reply  func(prompt string) (string, error)
}

func newFakeChat() *fakeChat { return &fakeChat{} }

func (f *fakeChat) on(marker string, reply string) *fakeChat {
	return f.onFunc(marker, func(string) (string, error) { return reply, nil })
}

func (f *fakeChat) fail(marker string, err error) *fakeChat {
	return f.onFunc(marker, func(string) (string, error) { return "", err })
}

func (f *fakeChat) onFunc(marker string, reply func(prompt string) (string, error)) *fakeChat {
	f.routes = append(f.routes, route{marker: marker, reply: reply})
	return f
}

func (f *fakeChat) Chat(ctx context.Context, messages []longform.Message, opts ...longform.Option) (*longform.Response, error) {
	prompt := messages[len(messages)-1].Content

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, longform.ApplyOptions(opts...))
	routes := f.routes
	f.mu.Unlock()

	for _, r := range routes {
		if strings.Contains(prompt, r.marker) {
			text, err := r.reply(prompt)
			if err != nil {
				return nil, err
			}
			return &longform.Response{Content: text}, nil
		}
	}
	return nil, errors.New("fake: no route for prompt")
}

func (f *fakeChat) ChatStream(ctx context.Context, messages []longform.Message, opts ...longform.Option) (<-chan longform.StreamEvent, error) {
	resp, err := f.Chat(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	ch := make(chan longform.StreamEvent, 2)
	ch <- longform.StreamEvent{Delta: resp.Content}
	ch <- longform.StreamEvent{Done: true, Response: resp}
	close(ch)
	return ch, nil
}

func (f *fakeChat) calls(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

func (f *fakeChat) lastPrompt(marker string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.prompts) - 1; i >= 0; i-- {
		if strings.Contains(f.prompts[i], marker) {
			return f.prompts[i]
		}
	}
	return ""
}

// Prompt markers, one per template.
const (
	markResearch = "Summarize the research material"
	markPlan     = "Plan a "
	markWrite    = "Write the section"
	markEnhance  = "Revise the following section"
	markQuestion = "Act as a demanding"
	markCode     = "Write a complete, runnable"
	markArtist   = "illustration:"
	markReview   = "Review this draft"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]state.SearchResult
	errs    map[string]error
	queries []string
	limits  []int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]state.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, limit)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

type fakeImages struct {
	resp *longform.ImageResponse
	err  error
	n    int
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string, opts ...longform.ImageOption) (*longform.ImageResponse, error) {
	f.n++
	return f.resp, f.err
}

func outlineState() *state.State {
	s := state.New(state.Input{Topic: "Redis caching", Audience: state.AudienceIntermediate})
	s.Outline = &state.Outline{
		Title:         "Caching with Redis",
		Subtitle:      "From TTLs to eviction",
		Introduction:  "Caches fail in interesting ways.",
		CoreValue:     "Pick an eviction policy with confidence.",
		SummaryPoints: []string{"Set TTLs", "Measure hit rate"},
		NextSteps:     "Try it on staging.",
		Sections: []state.SectionOutline{
			{ID: "s1", Title: "Why cache", KeyConcept: "latency", ImageType: "architecture", ImageDescription: "app, cache, db"},
			{ID: "s2", Title: "Eviction", KeyConcept: "LRU", ImageType: "none", CodeBlocks: 1},
		},
	}
	return s
}

func writtenState() *state.State {
	s := outlineState()
	s.Sections = []state.Section{
		{ID: "s1", Title: "Why cache", Content: "Caching cuts latency.", ImageIDs: []string{}, CodeIDs: []string{}},
		{ID: "s2", Title: "Eviction", Content: "Use LRU.\n\n[CODE: lru_config - configure maxmemory policy]\n\n[IMAGE: flowchart - eviction decision]", ImageIDs: []string{}, CodeIDs: []string{}},
	}
	return s
}
