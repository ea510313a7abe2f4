package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/provider/anthropic"
	"github.com/spetersoncode/longform/provider/google"
	"github.com/spetersoncode/longform/provider/openai"
	"github.com/spetersoncode/longform/retry"
)

// APIKeys holds API keys for different providers.
// Only configure keys for providers you intend to use.
type APIKeys struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// Key returns the key configured for p.
func (k APIKeys) Key(p longform.Provider) string {
	switch p {
	case longform.ProviderAnthropic:
		return k.Anthropic
	case longform.ProviderOpenAI:
		return k.OpenAI
	case longform.ProviderGoogle:
		return k.Google
	}
	return ""
}

// Config holds configuration for creating a Client.
type Config struct {
	// Provider serves chat requests. Required.
	Provider longform.Provider

	// ChatModel overrides the provider's default chat model.
	ChatModel string

	// ImageProvider serves image generation. Empty disables images.
	ImageProvider longform.Provider

	// ImageModel overrides the image provider's default model.
	ImageModel string

	APIKeys APIKeys

	// BaseURL points the chat provider at a compatible endpoint.
	BaseURL string

	// Retry configures backoff for transient errors inside every provider.
	// If nil, retry.DefaultConfig is used.
	Retry *retry.Config

	// Events is an optional channel for receiving client operation events.
	// Events are sent non-blocking; if the channel is full, events are dropped.
	Events chan<- Event
}

// ErrFeatureNotSupported is returned when a provider lacks a capability.
type ErrFeatureNotSupported struct {
	Provider longform.Provider
	Feature  string
}

func (e *ErrFeatureNotSupported) Error() string {
	return fmt.Sprintf("%s provider does not support %s", e.Provider, e.Feature)
}

// ErrMissingAPIKey is returned when a provider is selected but no API key
// is configured for it.
type ErrMissingAPIKey struct {
	Provider longform.Provider
	Feature  string
}

func (e *ErrMissingAPIKey) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("no API key configured for %s (required for %s)", e.Provider, e.Feature)
	}
	return fmt.Sprintf("no API key configured for %s", e.Provider)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDefaultTemperature sets the default temperature for chat requests.
// Per-request options override this default.
func WithDefaultTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.defaultChatOpts = append(c.defaultChatOpts, longform.WithTemperature(t))
	}
}

// WithDefaultMaxTokens sets the default max tokens for chat requests.
// Per-request options override this default.
func WithDefaultMaxTokens(n int) ClientOption {
	return func(c *Client) {
		c.defaultChatOpts = append(c.defaultChatOpts, longform.WithMaxTokens(n))
	}
}

// backends lets tests replace the SDK clients.
type backends struct {
	chat  func(ctx context.Context) (longform.ChatProvider, error)
	image func(ctx context.Context) (longform.ImageProvider, error)
}

// Client routes chat to one provider and image generation to another.
// Provider clients are lazily initialized when first needed.
type Client struct {
	cfg             Config
	retry           retry.Config
	events          chan<- Event
	defaultChatOpts []longform.Option
	backends        backends

	mu              sync.RWMutex
	anthropicClient *anthropic.Client
	openaiClient    *openai.Client
	googleClient    *google.Client
	googleInitErr   error
}

// New validates cfg and creates a Client. No provider is contacted until
// the first request.
func New(cfg Config, opts ...ClientOption) (*Client, error) {
	if _, err := longform.ParseProvider(string(cfg.Provider)); err != nil {
		return nil, err
	}
	if cfg.APIKeys.Key(cfg.Provider) == "" {
		return nil, &ErrMissingAPIKey{Provider: cfg.Provider, Feature: "chat"}
	}
	if cfg.ImageProvider != "" {
		if _, err := longform.ParseProvider(string(cfg.ImageProvider)); err != nil {
			return nil, err
		}
		if !cfg.ImageProvider.SupportsImages() {
			return nil, &ErrFeatureNotSupported{Provider: cfg.ImageProvider, Feature: "image"}
		}
		if cfg.APIKeys.Key(cfg.ImageProvider) == "" {
			return nil, &ErrMissingAPIKey{Provider: cfg.ImageProvider, Feature: "image"}
		}
	}

	r := retry.DefaultConfig()
	if cfg.Retry != nil {
		r = *cfg.Retry
	}
	c := &Client{cfg: cfg, events: cfg.Events}
	c.retry = c.observeRetries(r)
	c.backends = backends{chat: c.chatBackend, image: c.imageBackend}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Provider returns the chat provider.
func (c *Client) Provider() longform.Provider {
	return c.cfg.Provider
}

// ChatModel returns the model chat requests run on when no per-request
// model is given.
func (c *Client) ChatModel() string {
	if c.cfg.ChatModel != "" {
		return c.cfg.ChatModel
	}
	switch c.cfg.Provider {
	case longform.ProviderAnthropic:
		return string(anthropic.DefaultChatModel)
	case longform.ProviderOpenAI:
		return string(openai.DefaultChatModel)
	case longform.ProviderGoogle:
		return string(google.DefaultChatModel)
	}
	return ""
}

// ImageModel returns the model images are generated with, or "" when no
// image provider is configured.
func (c *Client) ImageModel() string {
	if c.cfg.ImageModel != "" || c.cfg.ImageProvider == "" {
		return c.cfg.ImageModel
	}
	if c.cfg.ImageProvider == longform.ProviderGoogle {
		return string(google.DefaultImageModel)
	}
	return string(openai.DefaultImageModel)
}

// Images returns the image backend, or nil when none is configured.
func (c *Client) Images() longform.ImageProvider {
	if c.cfg.ImageProvider == "" {
		return nil
	}
	return c
}

// observeRetries chains a retry event onto any OnRetry already set.
func (c *Client) observeRetries(r retry.Config) retry.Config {
	if c.events == nil {
		return r
	}
	prev := r.OnRetry
	r.OnRetry = func(attempt int, err error, delay time.Duration) {
		emit(c.events, Event{Type: EventRetry, Attempt: attempt, Error: err, Delay: delay})
		if prev != nil {
			prev(attempt, err, delay)
		}
	}
	return r
}

func (c *Client) getAnthropicClient() *anthropic.Client {
	c.mu.RLock()
	if c.anthropicClient != nil {
		defer c.mu.RUnlock()
		return c.anthropicClient
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.anthropicClient != nil {
		return c.anthropicClient
	}

	opts := []anthropic.ClientOption{anthropic.WithRetry(c.retry)}
	if c.cfg.ChatModel != "" {
		opts = append(opts, anthropic.WithModel(anthropic.ChatModel(c.cfg.ChatModel)))
	}
	if c.cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(c.cfg.BaseURL))
	}
	c.anthropicClient = anthropic.New(c.cfg.APIKeys.Anthropic, opts...)
	return c.anthropicClient
}

func (c *Client) getOpenAIClient() *openai.Client {
	c.mu.RLock()
	if c.openaiClient != nil {
		defer c.mu.RUnlock()
		return c.openaiClient
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openaiClient != nil {
		return c.openaiClient
	}

	opts := []openai.ClientOption{openai.WithRetry(c.retry)}
	if c.cfg.Provider == longform.ProviderOpenAI {
		if c.cfg.ChatModel != "" {
			opts = append(opts, openai.WithModel(openai.ChatModel(c.cfg.ChatModel)))
		}
		if c.cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.cfg.BaseURL))
		}
	}
	if c.cfg.ImageProvider == longform.ProviderOpenAI && c.cfg.ImageModel != "" {
		opts = append(opts, openai.WithImageModel(openai.ImageModel(c.cfg.ImageModel)))
	}
	c.openaiClient = openai.New(c.cfg.APIKeys.OpenAI, opts...)
	return c.openaiClient
}

// getGoogleClient returns the Google client, initializing it if needed.
// An initialization failure is remembered and returned on every later call.
func (c *Client) getGoogleClient(ctx context.Context) (*google.Client, error) {
	c.mu.RLock()
	if c.googleClient != nil || c.googleInitErr != nil {
		defer c.mu.RUnlock()
		return c.googleClient, c.googleInitErr
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.googleClient != nil || c.googleInitErr != nil {
		return c.googleClient, c.googleInitErr
	}

	opts := []google.ClientOption{google.WithRetry(c.retry)}
	if c.cfg.Provider == longform.ProviderGoogle {
		if c.cfg.ChatModel != "" {
			opts = append(opts, google.WithModel(google.ChatModel(c.cfg.ChatModel)))
		}
		if c.cfg.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(c.cfg.BaseURL))
		}
	}
	if c.cfg.ImageProvider == longform.ProviderGoogle && c.cfg.ImageModel != "" {
		opts = append(opts, google.WithImageModel(google.ImageModel(c.cfg.ImageModel)))
	}
	client, err := google.New(ctx, c.cfg.APIKeys.Google, opts...)
	if err != nil {
		c.googleInitErr = fmt.Errorf("failed to initialize Google client: %w", err)
		return nil, c.googleInitErr
	}
	c.googleClient = client
	return c.googleClient, nil
}

func (c *Client) chatBackend(ctx context.Context) (longform.ChatProvider, error) {
	switch c.cfg.Provider {
	case longform.ProviderAnthropic:
		return c.getAnthropicClient(), nil
	case longform.ProviderOpenAI:
		return c.getOpenAIClient(), nil
	case longform.ProviderGoogle:
		return c.getGoogleClient(ctx)
	}
	return nil, fmt.Errorf("unsupported provider: %s", c.cfg.Provider)
}

func (c *Client) imageBackend(ctx context.Context) (longform.ImageProvider, error) {
	switch c.cfg.ImageProvider {
	case longform.ProviderOpenAI:
		return c.getOpenAIClient(), nil
	case longform.ProviderGoogle:
		return c.getGoogleClient(ctx)
	case "":
		return nil, &ErrFeatureNotSupported{Provider: c.cfg.Provider, Feature: "image"}
	}
	return nil, &ErrFeatureNotSupported{Provider: c.cfg.ImageProvider, Feature: "image"}
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []longform.Message, opts ...longform.Option) (*longform.Response, error) {
	opts = append(append([]longform.Option{}, c.defaultChatOpts...), opts...)
	model := longform.ApplyOptions(opts...).Model
	if model == "" {
		model = c.ChatModel()
	}

	backend, err := c.backends.chat(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	emit(c.events, Event{Type: EventRequestStart, Operation: "chat", Provider: c.cfg.Provider, Model: model})

	resp, err := backend.Chat(ctx, messages, opts...)
	if err != nil {
		emit(c.events, Event{Type: EventRequestError, Operation: "chat", Provider: c.cfg.Provider, Model: model,
			Duration: time.Since(start), Error: err})
		return nil, err
	}
	emit(c.events, Event{Type: EventRequestComplete, Operation: "chat", Provider: c.cfg.Provider, Model: model,
		Duration: time.Since(start), Usage: &resp.Usage})
	return resp, nil
}

// ChatStream sends a conversation and returns a channel of streaming events.
// The request_complete event fires when the stream ends.
func (c *Client) ChatStream(ctx context.Context, messages []longform.Message, opts ...longform.Option) (<-chan longform.StreamEvent, error) {
	opts = append(append([]longform.Option{}, c.defaultChatOpts...), opts...)
	model := longform.ApplyOptions(opts...).Model
	if model == "" {
		model = c.ChatModel()
	}

	backend, err := c.backends.chat(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	emit(c.events, Event{Type: EventRequestStart, Operation: "chat_stream", Provider: c.cfg.Provider, Model: model})

	stream, err := backend.ChatStream(ctx, messages, opts...)
	if err != nil {
		emit(c.events, Event{Type: EventRequestError, Operation: "chat_stream", Provider: c.cfg.Provider, Model: model,
			Duration: time.Since(start), Error: err})
		return nil, err
	}
	if c.events == nil {
		return stream, nil
	}

	out := make(chan longform.StreamEvent)
	go func() {
		defer close(out)
		for ev := range stream {
			switch {
			case ev.Err != nil:
				emit(c.events, Event{Type: EventRequestError, Operation: "chat_stream", Provider: c.cfg.Provider, Model: model,
					Duration: time.Since(start), Error: ev.Err})
			case ev.Done:
				e := Event{Type: EventRequestComplete, Operation: "chat_stream", Provider: c.cfg.Provider, Model: model,
					Duration: time.Since(start)}
				if ev.Response != nil {
					e.Usage = &ev.Response.Usage
				}
				emit(c.events, e)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// GenerateImage creates an image on the image provider.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts ...longform.ImageOption) (*longform.ImageResponse, error) {
	backend, err := c.backends.image(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	model := c.ImageModel()
	emit(c.events, Event{Type: EventRequestStart, Operation: "image", Provider: c.cfg.ImageProvider, Model: model})

	resp, err := backend.GenerateImage(ctx, prompt, opts...)
	if err != nil {
		emit(c.events, Event{Type: EventRequestError, Operation: "image", Provider: c.cfg.ImageProvider, Model: model,
			Duration: time.Since(start), Error: err})
		return nil, err
	}
	emit(c.events, Event{Type: EventRequestComplete, Operation: "image", Provider: c.cfg.ImageProvider, Model: model,
		Duration: time.Since(start)})
	return resp, nil
}
