package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/agents"
	"github.com/spetersoncode/longform/event"
	"github.com/spetersoncode/longform/search"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/store"
	"github.com/spetersoncode/longform/workflow"
)

// ErrNoTopic is returned for a request without a topic.
var ErrNoTopic = errors.New("generator: topic is required")

// Request describes one article to generate.
type Request struct {
	Topic          string `json:"topic"`
	ArticleType    string `json:"article_type,omitempty"`
	Audience       string `json:"target_audience,omitempty"`
	Length         string `json:"target_length,omitempty"`
	SourceMaterial string `json:"source_material,omitempty"`

	// SourceURL is fetched and converted to markdown. The page is appended
	// to SourceMaterial.
	SourceURL string `json:"source_url,omitempty"`
}

// Input validates the request and converts it to the initial state input.
func (r Request) Input() (state.Input, error) {
	in := state.Input{Topic: strings.TrimSpace(r.Topic), SourceMaterial: r.SourceMaterial}
	if in.Topic == "" {
		return in, longform.NewUserInputError("topic is required", http.StatusBadRequest, ErrNoTopic)
	}

	var err error
	if in.ArticleType, err = state.ParseArticleType(r.ArticleType); err != nil {
		return in, longform.NewUserInputError(err.Error(), http.StatusBadRequest, err)
	}
	if in.Audience, err = state.ParseAudience(r.Audience); err != nil {
		return in, longform.NewUserInputError(err.Error(), http.StatusBadRequest, err)
	}
	if in.Length, err = state.ParseLength(r.Length); err != nil {
		return in, longform.NewUserInputError(err.Error(), http.StatusBadRequest, err)
	}
	return in, nil
}

// Output summarizes a finished run.
type Output struct {
	RunID       string                     `json:"run_id"`
	Success     bool                       `json:"success"`
	Error       string                     `json:"error,omitempty"`
	Termination workflow.TerminationReason `json:"termination"`
	Title       string                     `json:"title,omitempty"`
	Markdown    string                     `json:"markdown"`
	HTML        string                     `json:"html,omitempty"`
	OutputDir   string                     `json:"output_dir,omitempty"`
	Sections    int                        `json:"sections_count"`
	Images      int                        `json:"images_count"`
	CodeBlocks  int                        `json:"code_blocks_count"`
	ReviewScore int                        `json:"review_score"`
	Questioning int                        `json:"questioning_count"`
	Revisions   int                        `json:"revision_count"`
	Steps       []string                   `json:"steps"`
	Usage       longform.Usage             `json:"usage"`
	ChatCalls   int                        `json:"chat_calls"`
	Duration    time.Duration              `json:"duration"`

	State *state.State `json:"-"`
}

// Generator runs the blog workflow.
type Generator struct {
	chat         longform.ChatProvider
	searcher     search.Searcher
	ingester     *search.Ingester
	images       longform.ImageProvider
	checkpointer *store.Checkpointer[*state.State]
	policy       workflow.Policy
	stepTimeout  time.Duration
	imageDir     string
	outputDir    string
	language     string
	maxResults   int
	chatOpts     []longform.Option
	uniqueRunIDs bool
	// memoryOnly is set when the checkpointer is the in-memory default.
	memoryOnly bool
	logger     *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithSearcher enables web research.
func WithSearcher(s search.Searcher) Option {
	return func(g *Generator) {
		g.searcher = s
	}
}

// WithIngester sets how Request.SourceURL is fetched. A default Ingester
// is used otherwise.
func WithIngester(i *search.Ingester) Option {
	return func(g *Generator) {
		g.ingester = i
	}
}

// WithImageProvider enables rendering of ai-image illustrations.
func WithImageProvider(p longform.ImageProvider) Option {
	return func(g *Generator) {
		g.images = p
	}
}

// WithCheckpointer saves a snapshot after every step. Runs are checkpointed
// in memory by default; a checkpointer set here keeps every run it saves.
func WithCheckpointer(c *store.Checkpointer[*state.State]) Option {
	return func(g *Generator) {
		g.checkpointer = c
	}
}

// WithPolicy sets the loop caps.
func WithPolicy(p workflow.Policy) Option {
	return func(g *Generator) {
		g.policy = p
	}
}

// WithStepTimeout bounds every step.
func WithStepTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.stepTimeout = d
	}
}

// WithOutputDir writes finished articles to dir. Images delivered as
// base64 go to dir/images.
func WithOutputDir(dir string) Option {
	return func(g *Generator) {
		g.outputDir = dir
	}
}

// WithImageDir overrides where base64 images are written.
func WithImageDir(dir string) Option {
	return func(g *Generator) {
		g.imageDir = dir
	}
}

// WithLanguage sets the language of generated code examples.
func WithLanguage(lang string) Option {
	return func(g *Generator) {
		g.language = lang
	}
}

// WithMaxResults caps the search results kept during research.
func WithMaxResults(n int) Option {
	return func(g *Generator) {
		g.maxResults = n
	}
}

// WithChatOptions adds options to every chat request.
func WithChatOptions(opts ...longform.Option) Option {
	return func(g *Generator) {
		g.chatOpts = append(g.chatOpts, opts...)
	}
}

// WithUniqueRunIDs gives every run a random id instead of one derived from
// the topic, so concurrent runs on the same topic keep separate checkpoints.
// Nobody can look such a run up afterwards, so on the default in-memory
// checkpointer its snapshot is dropped once the run ends. Checkpoints saved
// through WithCheckpointer are kept.
func WithUniqueRunIDs() Option {
	return func(g *Generator) {
		g.uniqueRunIDs = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// New creates a Generator over chat.
func New(chat longform.ChatProvider, opts ...Option) (*Generator, error) {
	if chat == nil {
		return nil, errors.New("generator: chat provider is required")
	}
	g := &Generator{
		chat:   chat,
		policy: workflow.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.checkpointer == nil {
		g.checkpointer = store.NewCheckpointer[*state.State](nil)
		g.memoryOnly = true
	}
	if g.ingester == nil {
		g.ingester = search.NewIngester()
	}
	if g.imageDir == "" && g.outputDir != "" {
		g.imageDir = filepath.Join(g.outputDir, "images")
	}
	return g, nil
}

// Checkpoints returns the checkpointer runs are saved to.
func (g *Generator) Checkpoints() *store.Checkpointer[*state.State] {
	return g.checkpointer
}

// run is one prepared execution.
type run struct {
	id    string
	state *state.State
	graph *workflow.Graph
	meter *meter
	start time.Time
}

func (g *Generator) prepare(ctx context.Context, req Request) (*run, error) {
	in, err := req.Input()
	if err != nil {
		return nil, err
	}
	if req.SourceURL != "" {
		page, err := g.ingester.Ingest(ctx, req.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("ingest source: %w", err)
		}
		in.SourceMaterial = joinSource(in.SourceMaterial, page)
	}

	id := workflow.RunIDForTopic(in.Topic)
	if g.uniqueRunIDs {
		id = "blog_" + uuid.NewString()
	}

	m := newMeter(g.chat)
	graph, err := workflow.New(g.nodes(m, id),
		workflow.WithRunID(id),
		workflow.WithPolicy(g.policy),
		workflow.WithCheckpointer(g.checkpointer),
		workflow.WithStepTimeout(g.stepTimeout),
		workflow.WithLogger(g.logger),
	)
	if err != nil {
		return nil, err
	}
	return &run{id: id, state: state.New(in), graph: graph, meter: m, start: time.Now()}, nil
}

func (g *Generator) nodes(chat longform.ChatProvider, runID string) workflow.Nodes {
	opts := []agents.Option{
		agents.WithLogger(g.logger.With("run_id", runID)),
		agents.WithChatOptions(g.chatOpts...),
	}
	if g.language != "" {
		opts = append(opts, agents.WithLanguage(g.language))
	}
	if g.searcher != nil {
		opts = append(opts, agents.WithSearcher(g.searcher))
	}
	if g.maxResults > 0 {
		opts = append(opts, agents.WithMaxResults(g.maxResults))
	}
	if g.images != nil {
		opts = append(opts, agents.WithImageProvider(g.images), agents.WithImageDir(g.imageDir))
	}
	if g.outputDir != "" {
		opts = append(opts, agents.WithOutputDir(g.outputDir))
	}

	writer := agents.NewWriter(chat, opts...)
	return workflow.Nodes{
		Research: agents.NewResearcher(chat, opts...),
		Plan:     agents.NewPlanner(chat, opts...),
		Write:    writer,
		Question: agents.NewQuestioner(chat, opts...),
		Code:     agents.NewCoder(chat, opts...),
		Image:    agents.NewArtist(chat, opts...),
		Review:   agents.NewReviewer(chat, opts...),
		Assemble: agents.NewAssembler(opts...),
		Enhancer: writer,
	}
}

// Generate runs the workflow to completion. A content failure is reported
// in Output.Error with a nil error; the error return is for invalid
// requests, engine failures and cancellation.
func (g *Generator) Generate(ctx context.Context, req Request) (*Output, error) {
	r, err := g.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	g.logger.Info("generating article", "run_id", r.id, "topic", r.state.Topic,
		"type", r.state.ArticleType, "audience", r.state.Audience, "length", r.state.Length)

	defer g.discard(r.id)

	res, err := r.graph.Run(ctx, r.state)
	if err != nil {
		return nil, err
	}
	out := r.output(res.State, res.Termination)
	out.Steps = res.Trace
	return out, nil
}

// GenerateStream runs the workflow in the background and streams its
// events. The last event is RunEnd or RunError. Request errors are
// returned before anything starts.
func (g *Generator) GenerateStream(ctx context.Context, req Request) (string, <-chan event.Event, error) {
	r, err := g.prepare(ctx, req)
	if err != nil {
		return "", nil, err
	}
	events := r.graph.RunStream(ctx, r.state)
	if !g.discards() {
		return r.id, events, nil
	}

	out := event.NewChannel()
	go func() {
		defer close(out)
		defer g.discard(r.id)
		for e := range events {
			if !event.Send(ctx, out, e) {
				event.Emit(out, e)
			}
		}
	}()
	return r.id, out, nil
}

func (g *Generator) discards() bool {
	return g.uniqueRunIDs && g.memoryOnly
}

// discard drops the in-memory checkpoint of a finished unique-id run.
func (g *Generator) discard(runID string) {
	if !g.discards() {
		return
	}
	if err := g.checkpointer.Delete(context.Background(), runID); err != nil {
		g.logger.Warn("dropping checkpoint failed", "run_id", runID, "error", err)
	}
}

// Summarize builds an Output from a final state, for callers that consume
// the event stream and receive the state on RunEnd.
func Summarize(runID string, s *state.State) *Output {
	return (&run{id: runID}).output(s, workflow.TerminationComplete)
}

func (r *run) output(s *state.State, term workflow.TerminationReason) *Output {
	out := &Output{
		RunID:       r.id,
		Success:     !s.Failed() && s.FinalMarkdown != "",
		Error:       s.Err,
		Termination: term,
		Markdown:    s.FinalMarkdown,
		HTML:        s.FinalHTML,
		OutputDir:   s.OutputDir,
		Sections:    len(s.Sections),
		Images:      len(s.Images),
		CodeBlocks:  len(s.CodeBlocks),
		Questioning: s.QuestioningCount,
		Revisions:   s.RevisionCount,
		State:       s,
	}
	if s.Outline != nil {
		out.Title = s.Outline.Title
	}
	if s.Review != nil {
		out.ReviewScore = s.Review.Score
	}
	if r.meter != nil {
		out.Usage, out.ChatCalls = r.meter.Snapshot()
	}
	if !r.start.IsZero() {
		out.Duration = time.Since(r.start)
	}
	return out
}

func joinSource(material string, page *search.Page) string {
	body := page.Markdown
	if page.Title != "" {
		body = "# " + page.Title + "\n\nSource: " + page.URL + "\n\n" + body
	}
	if material == "" {
		return body
	}
	return material + "\n\n" + body
}
