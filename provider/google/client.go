package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/retry"
	"google.golang.org/genai"
)

// BlockedError is returned when Gemini refuses a prompt.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("google: prompt blocked: %s", e.Reason)
}

// Client wraps the Google GenAI SDK to implement longform.ChatProvider and
// longform.ImageProvider.
type Client struct {
	client     *genai.Client
	model      ChatModel
	imageModel ImageModel
	retry      retry.Config
	baseURL    string
}

// ClientOption configures the Google client.
type ClientOption func(*Client)

// WithModel sets the default model for requests.
func WithModel(model ChatModel) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithImageModel sets the default image model.
func WithImageModel(model ImageModel) ClientOption {
	return func(c *Client) {
		c.imageModel = model
	}
}

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithRetry sets the retry policy for API calls.
func WithRetry(cfg retry.Config) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// New creates a new Google GenAI client with the given API key.
func New(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		model:      DefaultChatModel,
		imageModel: DefaultImageModel,
		retry:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions.BaseURL = c.baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	c.client = client
	return c, nil
}

func (c *Client) buildRequest(messages []longform.Message, opts []longform.Option) (string, []*genai.Content, *genai.GenerateContentConfig) {
	options := longform.ApplyOptions(opts...)
	model := c.model.String()
	if options.Model != "" {
		model = options.Model
	}

	contents, system := convertMessages(messages)
	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(options.MaxTokens)
	}
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		config.Temperature = &temp
	}
	if options.JSON {
		config.ResponseMIMEType = "application/json"
	}
	return model, contents, config
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []longform.Message, opts ...longform.Option) (*longform.Response, error) {
	model, contents, config := c.buildRequest(messages, opts)

	return retry.Do(ctx, c.retry, func() (*longform.Response, error) {
		resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			return nil, wrapError(err)
		}
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)}
		}
		if len(resp.Candidates) == 0 {
			return nil, longform.ErrEmptyResponse
		}

		out := &longform.Response{
			Content:      candidateText(resp.Candidates[0]),
			FinishReason: string(resp.Candidates[0].FinishReason),
		}
		if resp.UsageMetadata != nil {
			out.Usage = longform.Usage{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}
		return out, nil
	})
}

// ChatStream sends a conversation and returns a channel of streaming events.
func (c *Client) ChatStream(ctx context.Context, messages []longform.Message, opts ...longform.Option) (<-chan longform.StreamEvent, error) {
	model, contents, config := c.buildRequest(messages, opts)
	ch := make(chan longform.StreamEvent)

	go func() {
		defer close(ch)

		send := func(ev longform.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var sb strings.Builder
		final := &longform.Response{}
		chunks := 0

		for resp, err := range c.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				send(longform.StreamEvent{Err: wrapError(err)})
				return
			}
			chunks++
			if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
				send(longform.StreamEvent{Err: &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)}})
				return
			}

			if len(resp.Candidates) > 0 {
				if text := candidateText(resp.Candidates[0]); text != "" {
					sb.WriteString(text)
					if !send(longform.StreamEvent{Delta: text}) {
						return
					}
				}
				if reason := resp.Candidates[0].FinishReason; reason != "" {
					final.FinishReason = string(reason)
				}
			}
			if resp.UsageMetadata != nil {
				final.Usage = longform.Usage{
					InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				}
			}
		}

		if chunks == 0 {
			send(longform.StreamEvent{Err: longform.ErrEmptyResponse})
			return
		}
		final.Content = sb.String()
		send(longform.StreamEvent{Done: true, Response: final})
	}()

	return ch, nil
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// convertMessages maps the conversation onto Gemini contents. System
// messages are joined into a single system instruction.
func convertMessages(messages []longform.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system []*genai.Part

	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case longform.RoleSystem:
			system = append(system, &genai.Part{Text: msg.Content})
		case longform.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}

	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: system}
}

// wrapError categorizes a GenAI error by status code. genai.APIError does
// not expose headers, so no Retry-After hint is available.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return longform.NewStatusError("google: "+apiErr.Status, apiErr.Code, err)
}

var (
	_ longform.ChatProvider  = (*Client)(nil)
	_ longform.ImageProvider = (*Client)(nil)
)
