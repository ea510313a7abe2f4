// Package pipeline turns a technical article into a paged, illustrated
// explainer and reports every stage through a task.Manager.
//
// Stages run in order: analyze, metaphor, outline (streamed), content and
// image. Progress, partial results and the final outputs are delivered as
// task events, so callers normally Start a pipeline and Listen on the task.
package pipeline

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"text/template"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/agents"
	"github.com/spetersoncode/longform/task"
)

// Stage names, matching the task manager's default weights.
const (
	StageAnalyze  = "analyze"
	StageMetaphor = "metaphor"
	StageOutline  = "outline"
	StageContent  = "content"
	StageImage    = "image"
	StageUnknown  = "unknown"
)

// imageEvery selects which pages get an illustration: 0, 5, 10, ...
const imageEvery = 5

const imageStylePrefix = "Children's storybook illustration, soft colours, friendly characters, landscape. "

// Defaults for empty request fields.
const (
	DefaultAudience  = "non-technical readers"
	DefaultStyle     = "cute cartoon"
	DefaultPageCount = 8
	MaxPageCount     = 30
)

var (
	// ErrNoOutline is reported when the outline cannot be generated or parsed.
	ErrNoOutline = errors.New("pipeline: outline generation failed")
	// ErrNoPages is reported when the outline has no pages.
	ErrNoPages = errors.New("pipeline: outline has no pages")
	// ErrNoContent is returned by Request.Validate for empty content.
	ErrNoContent = errors.New("pipeline: content is required")

	errCancelled = errors.New("pipeline: task cancelled")
)

//go:embed prompts/outline.tmpl
var promptFS embed.FS

var outlinePrompt = template.Must(template.ParseFS(promptFS, "prompts/outline.tmpl"))

// Request is the input of one transformation.
type Request struct {
	Content        string `json:"content"`
	Title          string `json:"title,omitempty"`
	Audience       string `json:"target_audience,omitempty"`
	Style          string `json:"style,omitempty"`
	PageCount      int    `json:"page_count,omitempty"`
	GenerateImages bool   `json:"generate_images,omitempty"`
}

// Validate rejects requests that cannot produce an explainer.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return longform.NewUserInputError("content is required", http.StatusBadRequest, ErrNoContent)
	}
	if r.PageCount > MaxPageCount {
		return longform.NewUserInputError(fmt.Sprintf("page_count must be at most %d", MaxPageCount), http.StatusBadRequest, nil)
	}
	return nil
}

func (r Request) withDefaults() Request {
	if r.Audience == "" {
		r.Audience = DefaultAudience
	}
	if r.Style == "" {
		r.Style = DefaultStyle
	}
	if r.PageCount <= 0 {
		r.PageCount = DefaultPageCount
	}
	return r
}

// Page is one page of the explainer.
type Page struct {
	PageNumber       int               `json:"page_number"`
	Title            string            `json:"title"`
	Content          string            `json:"content"`
	Metaphor         string            `json:"metaphor"`
	TechPoint        string            `json:"tech_point"`
	RealWorldExample string            `json:"real_world_example"`
	ImageDescription string            `json:"image_description"`
	KeyTakeaway      string            `json:"key_takeaway"`
	Mapping          map[string]string `json:"mapping,omitempty"`
	ImageURL         string            `json:"image_url,omitempty"`
}

// Storybook is the generated outline and pages.
type Storybook struct {
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	CoreMetaphor string `json:"core_metaphor"`
	Pages        []Page `json:"pages"`
}

// Service runs transformations.
type Service struct {
	chat     longform.ChatProvider
	images   longform.ImageProvider
	tasks    *task.Manager
	library  []Metaphor
	chatOpts []longform.Option
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithImageProvider enables the image stage.
func WithImageProvider(p longform.ImageProvider) Option {
	return func(s *Service) {
		s.images = p
	}
}

// WithLibrary replaces the metaphor library.
func WithLibrary(lib []Metaphor) Option {
	return func(s *Service) {
		s.library = lib
	}
}

// WithChatOptions adds options to the outline request.
func WithChatOptions(opts ...longform.Option) Option {
	return func(s *Service) {
		s.chatOpts = append(s.chatOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a Service reporting to tasks.
func New(chat longform.ChatProvider, tasks *task.Manager, opts ...Option) *Service {
	s := &Service{
		chat:    chat,
		tasks:   tasks,
		library: DefaultLibrary,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the pipeline for task id in a new goroutine and returns
// immediately. The run is detached from ctx's cancellation; use
// task.Manager.Cancel to stop it.
func (s *Service) Start(ctx context.Context, id string, req Request) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		_, _ = s.Run(ctx, id, req)
	}()
}

// Run executes the pipeline synchronously. Every outcome, including
// failure, is also reported on the task. The finished task is scheduled for
// cleanup.
func (s *Service) Run(ctx context.Context, id string, req Request) (book *Storybook, err error) {
	logger := s.logger.With("task_id", id)
	defer s.tasks.Cleanup(id)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: panic: %v", r)
			logger.Error("pipeline panicked", "error", err)
			s.tasks.SendError(id, StageUnknown, err.Error(), false)
		}
	}()

	if err := s.tasks.SetRunning(id); err != nil {
		return nil, err
	}

	book, err = s.run(ctx, id, req.withDefaults(), logger)
	switch {
	case err == nil:
		return book, nil
	case errors.Is(err, errCancelled):
		logger.Info("pipeline cancelled")
	case errors.Is(err, ErrNoOutline), errors.Is(err, ErrNoPages):
		logger.Warn("outline failed", "error", err)
		s.tasks.SendError(id, StageOutline, err.Error(), false)
	default:
		logger.Error("pipeline failed", "error", err)
		s.tasks.SendError(id, StageUnknown, err.Error(), false)
	}
	return nil, err
}

func (s *Service) run(ctx context.Context, id string, req Request, logger *slog.Logger) (*Storybook, error) {
	tm := s.tasks

	tm.SendProgress(id, StageAnalyze, 10, "Analyzing the technical content")
	concepts := ExtractConcepts(s.library, req.Content)
	tm.SendProgress(id, StageAnalyze, 100, fmt.Sprintf("Found %d technical concepts", len(concepts)))
	tm.SendResult(id, StageAnalyze, "concepts", map[string]any{"concepts": concepts})
	if err := s.checkpoint(ctx, id); err != nil {
		return nil, err
	}

	tm.SendProgress(id, StageMetaphor, 10, "Looking for everyday metaphors")
	metaphors := FindMetaphors(s.library, concepts)
	names := make([]string, 0, len(metaphors))
	for _, m := range metaphors {
		names = append(names, m.String())
	}
	tm.SendProgress(id, StageMetaphor, 100, fmt.Sprintf("Found %d metaphors", len(metaphors)))
	tm.SendResult(id, StageMetaphor, "metaphors", map[string]any{"metaphors": names})
	if err := s.checkpoint(ctx, id); err != nil {
		return nil, err
	}

	tm.SendProgress(id, StageOutline, 10, "Drafting the outline")
	book, err := s.outline(ctx, id, req, metaphors)
	if err != nil {
		return nil, err
	}
	tm.SendProgress(id, StageOutline, 100, "Outline ready")
	tm.SendResult(id, StageOutline, "outline_complete", map[string]any{
		"title":      book.Title,
		"page_count": len(book.Pages),
	})
	if err := s.checkpoint(ctx, id); err != nil {
		return nil, err
	}

	if err := s.content(ctx, id, book); err != nil {
		return nil, err
	}

	if s.images != nil && req.GenerateImages {
		if err := s.illustrate(ctx, id, book, logger); err != nil {
			return nil, err
		}
	}

	tm.SendComplete(id, map[string]any{
		"title":           book.Title,
		"subtitle":        book.Subtitle,
		"core_metaphor":   book.CoreMetaphor,
		"total_pages":     len(book.Pages),
		"pages":           book.Pages,
		"style":           req.Style,
		"target_audience": req.Audience,
	})
	logger.Info("pipeline complete", "pages", len(book.Pages))
	return book, nil
}

// checkpoint stops the run between stages once the task is cancelled or
// ctx is done.
func (s *Service) checkpoint(ctx context.Context, id string) error {
	if s.tasks.Cancelled(id) {
		return errCancelled
	}
	return ctx.Err()
}

func (s *Service) outline(ctx context.Context, id string, req Request, metaphors []Metaphor) (*Storybook, error) {
	var prompt bytes.Buffer
	err := outlinePrompt.Execute(&prompt, map[string]any{
		"Content":   req.Content,
		"Title":     req.Title,
		"Audience":  req.Audience,
		"Style":     req.Style,
		"PageCount": req.PageCount,
		"Metaphors": metaphors,
	})
	if err != nil {
		return nil, err
	}

	opts := append([]longform.Option{longform.WithTemperature(0.7)}, s.chatOpts...)
	stream, err := s.chat.ChatStream(ctx, []longform.Message{
		longform.SystemMessage("You explain technology through everyday metaphors without sacrificing accuracy."),
		longform.UserMessage(prompt.String()),
	}, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := longform.CollectStream(stream, func(delta, accumulated string) {
		s.tasks.SendStream(id, StageOutline, delta, accumulated)
	})
	if err != nil {
		return nil, err
	}

	var book Storybook
	raw, err := agents.ExtractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoOutline, err)
	}
	if err := json.Unmarshal([]byte(raw), &book); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoOutline, err)
	}
	if len(book.Pages) == 0 {
		return nil, ErrNoPages
	}
	for i := range book.Pages {
		if book.Pages[i].PageNumber == 0 {
			book.Pages[i].PageNumber = i + 1
		}
	}
	return &book, nil
}

func (s *Service) content(ctx context.Context, id string, book *Storybook) error {
	total := len(book.Pages)
	s.tasks.SendProgress(id, StageContent, 10, fmt.Sprintf("Writing %d pages", total))
	for i, page := range book.Pages {
		if err := s.checkpoint(ctx, id); err != nil {
			return err
		}
		s.tasks.SendProgress(id, StageContent, 10+(i+1)*80/total,
			fmt.Sprintf("Page %d: %s", page.PageNumber, truncate(page.Title, 20)),
			task.KV("current", i+1), task.KV("total", total))
		s.tasks.SendResult(id, StageContent, "page_content", page)
	}
	s.tasks.SendProgress(id, StageContent, 100, fmt.Sprintf("%d pages written", total))
	return s.checkpoint(ctx, id)
}

// illustrate draws every imageEvery-th page. A failed image is a
// recoverable error and the page is left without one.
func (s *Service) illustrate(ctx context.Context, id string, book *Storybook, logger *slog.Logger) error {
	var targets []int
	for i := 0; i < len(book.Pages); i += imageEvery {
		targets = append(targets, i)
	}
	total := len(targets)
	s.tasks.SendProgress(id, StageImage, 10, fmt.Sprintf("Drawing %d illustrations", total))

	for n, i := range targets {
		if err := s.checkpoint(ctx, id); err != nil {
			return err
		}
		page := &book.Pages[i]
		if page.ImageDescription == "" {
			continue
		}
		s.tasks.SendProgress(id, StageImage, 10+(n+1)*80/total,
			fmt.Sprintf("Drawing page %d (%d/%d)", page.PageNumber, n+1, total),
			task.KV("current", n+1), task.KV("total", total))

		url, err := s.draw(ctx, page.ImageDescription)
		if err != nil {
			logger.Warn("page illustration failed", "page", page.PageNumber, "error", err)
			s.tasks.SendError(id, StageImage, fmt.Sprintf("illustration for page %d failed", page.PageNumber), true)
			continue
		}
		page.ImageURL = url
		s.tasks.SendResult(id, StageImage, "page_image", map[string]any{
			"page_number": page.PageNumber,
			"image_url":   url,
		})
	}
	s.tasks.SendProgress(id, StageImage, 100, fmt.Sprintf("%d illustrations drawn", total))
	return nil
}

func (s *Service) draw(ctx context.Context, description string) (string, error) {
	resp, err := s.images.GenerateImage(ctx, imageStylePrefix+description,
		longform.WithImageSize(longform.ImageSize1792x1024))
	if err != nil {
		return "", err
	}
	img, ok := resp.First()
	switch {
	case !ok:
		return "", errors.New("no image returned")
	case img.URL != "":
		return img.URL, nil
	case img.Base64 != "":
		return "data:image/png;base64," + img.Base64, nil
	default:
		return "", errors.New("image has neither url nor data")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
