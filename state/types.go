package state

import "fmt"

// ArticleType selects the narrative structure of the article.
type ArticleType string

const (
	ArticleProblemSolution ArticleType = "problem-solution"
	ArticleTutorial        ArticleType = "tutorial"
	ArticleComparison      ArticleType = "comparison"
)

// Audience is the reader level the article targets.
type Audience string

const (
	AudienceBeginner     Audience = "beginner"
	AudienceIntermediate Audience = "intermediate"
	AudienceAdvanced     Audience = "advanced"
)

// Length is the target article length.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// RenderMethod says how an image's Content should be turned into a picture.
type RenderMethod string

const (
	// RenderDiagram content is mermaid source.
	RenderDiagram RenderMethod = "diagram"
	// RenderAIImage content is a prompt for an image model.
	RenderAIImage RenderMethod = "ai-image"
	// RenderChart content is plotting code.
	RenderChart RenderMethod = "chart"
)

// ParseRenderMethod normalizes the spellings models tend to produce.
// Unknown values fall back to RenderDiagram.
func ParseRenderMethod(s string) RenderMethod {
	switch s {
	case "ai-image", "ai_image", "image":
		return RenderAIImage
	case "chart", "matplotlib":
		return RenderChart
	default:
		return RenderDiagram
	}
}

// ParseArticleType validates an article type, defaulting empty input to tutorial.
func ParseArticleType(s string) (ArticleType, error) {
	switch t := ArticleType(s); t {
	case "":
		return ArticleTutorial, nil
	case ArticleProblemSolution, ArticleTutorial, ArticleComparison:
		return t, nil
	default:
		return "", fmt.Errorf("state: unknown article type %q", s)
	}
}

// ParseAudience validates an audience, defaulting empty input to intermediate.
func ParseAudience(s string) (Audience, error) {
	switch a := Audience(s); a {
	case "":
		return AudienceIntermediate, nil
	case AudienceBeginner, AudienceIntermediate, AudienceAdvanced:
		return a, nil
	default:
		return "", fmt.Errorf("state: unknown audience %q", s)
	}
}

// ParseLength validates a length, defaulting empty input to medium.
func ParseLength(s string) (Length, error) {
	switch l := Length(s); l {
	case "":
		return LengthMedium, nil
	case LengthShort, LengthMedium, LengthLong:
		return l, nil
	default:
		return "", fmt.Errorf("state: unknown length %q", s)
	}
}

// SearchResult is one web search hit gathered during research.
type SearchResult struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	Source      string  `json:"source,omitempty"`
	PublishDate string  `json:"publish_date,omitempty"`
	Relevance   float64 `json:"relevance,omitempty"`
}

// Outline is the planned structure of the article.
type Outline struct {
	Title         string           `json:"title"`
	Subtitle      string           `json:"subtitle"`
	ReadingTime   int              `json:"reading_time"`
	Introduction  string           `json:"introduction"`
	CoreValue     string           `json:"core_value"`
	Sections      []SectionOutline `json:"sections"`
	SummaryPoints []string         `json:"conclusion_summary_points"`
	NextSteps     string           `json:"conclusion_next_steps"`
}

// SectionOutline is the plan for a single section.
type SectionOutline struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	KeyConcept       string   `json:"key_concept"`
	ContentOutline   []string `json:"content_outline"`
	ImageType        string   `json:"image_type"`
	ImageDescription string   `json:"image_description"`
	CodeBlocks       int      `json:"code_blocks"`
	KeyQuote         string   `json:"key_quote"`
}

// WantsImage reports whether the outline asks for an image in this section.
func (s SectionOutline) WantsImage() bool {
	return s.ImageType != "" && s.ImageType != "none"
}

// Section is the written prose for one outline section.
type Section struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	ImageIDs []string `json:"image_ids"`
	CodeIDs  []string `json:"code_ids"`
}

// CodeBlock is a generated code example referenced from a section.
type CodeBlock struct {
	ID          string `json:"id"`
	SectionID   string `json:"section_id"`
	Code        string `json:"code"`
	Output      string `json:"output"`
	Explanation string `json:"explanation"`
	Language    string `json:"language"`
	// Placeholder is the [CODE: ...] text this block replaces.
	Placeholder string `json:"placeholder,omitempty"`
}

// Image is a generated illustration referenced from a section.
type Image struct {
	ID           string       `json:"id"`
	SectionID    string       `json:"section_id"`
	RenderMethod RenderMethod `json:"render_method"`
	Content      string       `json:"content"`
	Caption      string       `json:"caption"`
	RenderedPath string       `json:"rendered_path,omitempty"`
	// Placeholder is the [IMAGE: ...] text this image replaces. Empty for
	// images planned in the outline, which are appended to their section.
	Placeholder string `json:"placeholder,omitempty"`
}

// VaguePoint describes an under-specified passage that should be expanded.
type VaguePoint struct {
	Location   string `json:"location"`
	Issue      string `json:"issue"`
	Question   string `json:"question"`
	Suggestion string `json:"suggestion"`
}

// QuestionResult is the depth verdict for one section.
type QuestionResult struct {
	SectionID      string       `json:"section_id"`
	DetailedEnough bool         `json:"is_detailed_enough"`
	VaguePoints    []VaguePoint `json:"vague_points"`
	DepthScore     int          `json:"depth_score"`
}

// ReviewIssue is one problem found during review.
type ReviewIssue struct {
	SectionID   string `json:"section_id"`
	Type        string `json:"issue_type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// ReviewResult is the reviewer's verdict on the whole document.
type ReviewResult struct {
	Score    int           `json:"score"`
	Approved bool          `json:"approved"`
	Summary  string        `json:"summary,omitempty"`
	Issues   []ReviewIssue `json:"issues"`
}
