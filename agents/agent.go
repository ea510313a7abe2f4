package agents

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/search"
)

// ErrNoOutline is recorded when the planner produces nothing usable or a
// later step finds the outline missing.
var ErrNoOutline = errors.New("agents: no outline")

const systemPrompt = "You are a senior technical writer producing long-form engineering articles. " +
	"Be accurate and concrete, and follow the requested output format exactly."

// config is shared by every agent; options that do not apply to an agent
// are ignored.
type config struct {
	logger     *slog.Logger
	chatOpts   []longform.Option
	searcher   search.Searcher
	images     longform.ImageProvider
	imageDir   string
	outputDir  string
	language   string
	maxResults int
}

// Option configures an agent.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithChatOptions adds options to every chat request the agent makes.
func WithChatOptions(opts ...longform.Option) Option {
	return func(c *config) {
		c.chatOpts = append(c.chatOpts, opts...)
	}
}

// WithSearcher gives the Researcher a web search backend.
func WithSearcher(s search.Searcher) Option {
	return func(c *config) {
		c.searcher = s
	}
}

// WithMaxResults caps the number of search results the Researcher keeps.
func WithMaxResults(n int) Option {
	return func(c *config) {
		c.maxResults = n
	}
}

// WithImageProvider lets the Artist render ai-image illustrations.
func WithImageProvider(p longform.ImageProvider) Option {
	return func(c *config) {
		c.images = p
	}
}

// WithImageDir sets where the Artist writes rendered images that arrive as
// base64 data.
func WithImageDir(dir string) Option {
	return func(c *config) {
		c.imageDir = dir
	}
}

// WithOutputDir makes the Assembler write the article to dir.
func WithOutputDir(dir string) Option {
	return func(c *config) {
		c.outputDir = dir
	}
}

// WithLanguage sets the programming language the Coder writes examples in.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

func newConfig(opts []Option) config {
	c := config{
		logger:     slog.Default(),
		language:   "python",
		maxResults: defaultMaxResults,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// complete sends a single prompt and returns the trimmed reply.
func complete(ctx context.Context, chat longform.ChatProvider, cfg config, prompt string, extra ...longform.Option) (string, error) {
	opts := append(append([]longform.Option{}, cfg.chatOpts...), extra...)
	resp, err := chat.Chat(ctx, []longform.Message{
		longform.SystemMessage(systemPrompt),
		longform.UserMessage(prompt),
	}, opts...)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", longform.ErrEmptyResponse
	}
	return content, nil
}

// completeJSON sends a prompt in JSON mode and decodes the reply into v.
func completeJSON(ctx context.Context, chat longform.ChatProvider, cfg config, prompt string, v any) error {
	text, err := complete(ctx, chat, cfg, prompt, longform.WithJSON())
	if err != nil {
		return err
	}
	return DecodeJSON(text, v)
}
