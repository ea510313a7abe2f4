// Package state defines the document record threaded through every step of
// a blog generation run.
//
// A State is owned by exactly one run at a time. Steps mutate it in place; the
// checkpointer stores deep copies taken with [State.Clone]. Which step may
// write which field is documented on the field itself.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SchemaVersion is stamped on every new State and bumped when the layout
// changes incompatibly.
const SchemaVersion = 1

// ErrDanglingReference is returned by ValidateReferences.
var ErrDanglingReference = errors.New("state: dangling section reference")

// ErrDuplicateID is returned when a code block id is reused across sections.
var ErrDuplicateID = errors.New("state: duplicate id")

// State is the shared, typed record for one generation run.
type State struct {
	Version int `json:"version"`

	// Inputs. Set by New, read-only afterwards.
	Topic          string      `json:"topic"`
	ArticleType    ArticleType `json:"article_type"`
	Audience       Audience    `json:"target_audience"`
	Length         Length      `json:"target_length"`
	SourceMaterial string      `json:"source_material,omitempty"`

	// Research output.
	SearchResults  []SearchResult `json:"search_results"`
	Background     string         `json:"background_knowledge,omitempty"`
	KeyConcepts    []string       `json:"key_concepts"`
	ReferenceLinks []string       `json:"reference_links"`

	// Planner output.
	Outline *Outline `json:"outline,omitempty"`

	// Writer output; enhanced in place by the deepen and revise loops.
	Sections []Section `json:"sections"`

	// Coder output.
	CodeBlocks map[string]CodeBlock `json:"code_blocks"`

	// Artist output.
	Images map[string]Image `json:"images"`

	// Questioner output.
	QuestionResults  []QuestionResult `json:"question_results"`
	QuestioningCount int              `json:"questioning_count"`

	// Reviewer output.
	Review        *ReviewResult `json:"review,omitempty"`
	RevisionCount int           `json:"revision_count"`

	// Assembler output.
	FinalMarkdown string `json:"final_markdown,omitempty"`
	FinalHTML     string `json:"final_html,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`

	// Err is the inert failure marker. Once set, remaining steps are skipped.
	Err string `json:"error,omitempty"`
}

// Input holds the caller-supplied fields of a new State.
type Input struct {
	Topic          string
	ArticleType    ArticleType
	Audience       Audience
	Length         Length
	SourceMaterial string
}

// New creates an initial State. Empty enum fields take their defaults
// (tutorial, intermediate, medium).
func New(in Input) *State {
	s := &State{
		Version:        SchemaVersion,
		Topic:          strings.TrimSpace(in.Topic),
		ArticleType:    in.ArticleType,
		Audience:       in.Audience,
		Length:         in.Length,
		SourceMaterial: in.SourceMaterial,
		SearchResults:  []SearchResult{},
		KeyConcepts:    []string{},
		ReferenceLinks: []string{},
		Sections:       []Section{},
		CodeBlocks:     map[string]CodeBlock{},
		Images:         map[string]Image{},
	}
	if s.ArticleType == "" {
		s.ArticleType = ArticleTutorial
	}
	if s.Audience == "" {
		s.Audience = AudienceIntermediate
	}
	if s.Length == "" {
		s.Length = LengthMedium
	}
	return s
}

// Fail sets the error marker. The first failure wins.
func (s *State) Fail(msg string) {
	if s.Err == "" {
		s.Err = msg
	}
}

// Failed reports whether the error marker is set.
func (s *State) Failed() bool { return s.Err != "" }

// AllSectionsDetailed reports whether every question result is detailed
// enough. It is vacuously true when there are no results.
func (s *State) AllSectionsDetailed() bool {
	for _, r := range s.QuestionResults {
		if !r.DetailedEnough {
			return false
		}
	}
	return true
}

// Approved reports whether the latest review approved the document.
// No review counts as not approved.
func (s *State) Approved() bool {
	return s.Review != nil && s.Review.Approved
}

// SectionByID returns a pointer into Sections so callers can edit in place.
func (s *State) SectionByID(id string) (*Section, bool) {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			return &s.Sections[i], true
		}
	}
	return nil, false
}

// AddKeyConcept appends a concept unless it is already present.
func (s *State) AddKeyConcept(concept string) {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return
	}
	for _, c := range s.KeyConcepts {
		if strings.EqualFold(c, concept) {
			return
		}
	}
	s.KeyConcepts = append(s.KeyConcepts, concept)
}

// AddSearchResults appends results, skipping any whose URL is already known.
func (s *State) AddSearchResults(results ...SearchResult) {
	s.SearchResults = DedupByURL(append(s.SearchResults, results...))
}

// AddCodeBlock records a code block and links it from its section. An id
// already held by another section's block is rejected.
func (s *State) AddCodeBlock(cb CodeBlock) error {
	sec, ok := s.SectionByID(cb.SectionID)
	if !ok {
		return fmt.Errorf("%w: code block %q -> section %q", ErrDanglingReference, cb.ID, cb.SectionID)
	}
	if prev, ok := s.CodeBlocks[cb.ID]; ok && prev.SectionID != cb.SectionID {
		return fmt.Errorf("%w: code block %q already belongs to section %q", ErrDuplicateID, cb.ID, prev.SectionID)
	}
	if s.CodeBlocks == nil {
		s.CodeBlocks = map[string]CodeBlock{}
	}
	s.CodeBlocks[cb.ID] = cb
	sec.CodeIDs = appendUnique(sec.CodeIDs, cb.ID)
	return nil
}

// AddImage records an image and links it from its section.
func (s *State) AddImage(img Image) error {
	sec, ok := s.SectionByID(img.SectionID)
	if !ok {
		return fmt.Errorf("%w: image %q -> section %q", ErrDanglingReference, img.ID, img.SectionID)
	}
	if s.Images == nil {
		s.Images = map[string]Image{}
	}
	s.Images[img.ID] = img
	sec.ImageIDs = appendUnique(sec.ImageIDs, img.ID)
	return nil
}

// ValidateReferences checks that every image and code block points at an
// existing section and that every id a section lists exists and belongs to
// that section.
func (s *State) ValidateReferences() error {
	ids := make(map[string]bool, len(s.Sections))
	for _, sec := range s.Sections {
		ids[sec.ID] = true
	}
	for id, img := range s.Images {
		if !ids[img.SectionID] {
			return fmt.Errorf("%w: image %q -> section %q", ErrDanglingReference, id, img.SectionID)
		}
	}
	for id, cb := range s.CodeBlocks {
		if !ids[cb.SectionID] {
			return fmt.Errorf("%w: code block %q -> section %q", ErrDanglingReference, id, cb.SectionID)
		}
	}
	for _, sec := range s.Sections {
		for _, id := range sec.ImageIDs {
			img, ok := s.Images[id]
			if !ok {
				return fmt.Errorf("%w: section %q lists unknown image %q", ErrDanglingReference, sec.ID, id)
			}
			if img.SectionID != sec.ID {
				return fmt.Errorf("%w: section %q lists image %q owned by section %q", ErrDanglingReference, sec.ID, id, img.SectionID)
			}
		}
		for _, id := range sec.CodeIDs {
			cb, ok := s.CodeBlocks[id]
			if !ok {
				return fmt.Errorf("%w: section %q lists unknown code block %q", ErrDanglingReference, sec.ID, id)
			}
			if cb.SectionID != sec.ID {
				return fmt.Errorf("%w: section %q lists code block %q owned by section %q", ErrDanglingReference, sec.ID, id, cb.SectionID)
			}
		}
	}
	return nil
}

// Clone returns a deep copy. It round-trips through JSON, which is also the
// checkpoint encoding, so a clone and a reloaded checkpoint compare equal.
func (s *State) Clone() *State {
	data, err := json.Marshal(s)
	if err != nil {
		// Every field is plain data; marshal cannot fail.
		panic(fmt.Sprintf("state: clone: %v", err))
	}
	var out State
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("state: clone: %v", err))
	}
	return &out
}

// DedupByURL keeps the first result for each URL, preserving order.
// Results without a URL are kept.
func DedupByURL(results []SearchResult) []SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
		}
		out = append(out, r)
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
