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
	defaultMaxResults = 10
	fallbackExcerpt   = 200
	summaryResults    = 10
)

// Researcher gathers background material: web search when a searcher is
// configured, then an LLM summary of results and source material.
type Researcher struct {
	chat longform.ChatProvider
	cfg  config
}

// NewResearcher creates a Researcher. Without WithSearcher it works from
// the source material alone.
func NewResearcher(chat longform.ChatProvider, opts ...Option) *Researcher {
	return &Researcher{chat: chat, cfg: newConfig(opts)}
}

func (r *Researcher) Name() string { return workflow.NodeResearch }

// Queries returns the search queries used for a topic.
func Queries(topic string) []string {
	return []string{
		topic + " tutorial",
		topic + " best practices",
		topic + " how it works",
	}
}

func (r *Researcher) Run(ctx context.Context, s *state.State) workflow.Outcome {
	logger := r.cfg.logger.With("step", r.Name(), "topic", s.Topic)

	results := r.search(ctx, s.Topic)
	s.AddSearchResults(results...)
	logger.Info("search finished", "results", len(s.SearchResults))

	if len(s.SearchResults) == 0 && s.SourceMaterial == "" {
		s.Background = fmt.Sprintf("Background on %s is introduced in the sections that follow.", s.Topic)
		return workflow.Continue()
	}

	if err := r.summarize(ctx, s); err != nil {
		if ctx.Err() != nil {
			return workflow.Fail(ctx.Err())
		}
		logger.Warn("summary failed, using excerpts", "error", err)
		fallbackSummary(s)
	}
	logger.Info("research complete", "key_concepts", len(s.KeyConcepts), "references", len(s.ReferenceLinks))
	return workflow.Continue()
}

// search runs every query, skipping the ones that fail, and returns at
// most maxResults unique results.
func (r *Researcher) search(ctx context.Context, topic string) []state.SearchResult {
	if r.cfg.searcher == nil {
		r.cfg.logger.Debug("no searcher configured, skipping web search")
		return nil
	}

	queries := Queries(topic)
	perQuery := max(r.cfg.maxResults/len(queries), 1)

	var all []state.SearchResult
	for _, q := range queries {
		results, err := r.cfg.searcher.Search(ctx, q, perQuery)
		if err != nil {
			r.cfg.logger.Warn("search query failed", "query", q, "error", err)
			continue
		}
		all = append(all, results...)
	}

	unique := state.DedupByURL(all)
	if len(unique) > r.cfg.maxResults {
		unique = unique[:r.cfg.maxResults]
	}
	return unique
}

type researchSummary struct {
	Background  string     `json:"background_knowledge"`
	KeyConcepts stringList `json:"key_concepts"`
	References  stringList `json:"top_references"`
}

func (r *Researcher) summarize(ctx context.Context, s *state.State) error {
	results := s.SearchResults
	if len(results) > summaryResults {
		results = results[:summaryResults]
	}
	prompt, err := render("researcher", map[string]any{
		"Topic":          s.Topic,
		"Audience":       s.Audience,
		"SourceMaterial": s.SourceMaterial,
		"Results":        results,
	})
	if err != nil {
		return err
	}

	var out researchSummary
	if err := completeJSON(ctx, r.chat, r.cfg, prompt, &out); err != nil {
		return err
	}

	s.Background = strings.TrimSpace(out.Background)
	for _, c := range out.KeyConcepts {
		s.AddKeyConcept(c)
	}
	s.ReferenceLinks = append(s.ReferenceLinks, out.References...)
	return nil
}

// fallbackSummary builds background from the first results when the model
// summary is unavailable.
func fallbackSummary(s *state.State) {
	var parts []string
	for i, res := range s.SearchResults {
		if i == 3 {
			break
		}
		parts = append(parts, truncate(res.Content, fallbackExcerpt))
	}
	if len(parts) == 0 && s.SourceMaterial != "" {
		parts = append(parts, truncate(s.SourceMaterial, fallbackExcerpt*5))
	}
	s.Background = strings.Join(parts, "\n")

	for i, res := range s.SearchResults {
		if i == 5 {
			break
		}
		if res.URL != "" {
			s.ReferenceLinks = append(s.ReferenceLinks, res.URL)
		}
	}
}
