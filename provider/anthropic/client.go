package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/retry"
)

// defaultMaxTokens is sent when the caller does not set a limit; the API
// requires one.
const defaultMaxTokens = 4096

const jsonInstruction = "Respond with a single valid JSON object and nothing else. Do not wrap it in markdown fences."

// Client wraps the Anthropic SDK to implement longform.ChatProvider.
type Client struct {
	client  *anthropic.Client
	model   ChatModel
	retry   retry.Config
	reqOpts []option.RequestOption
}

// ClientOption configures the Anthropic client.
type ClientOption func(*Client)

// WithModel sets the default model for requests.
func WithModel(model ChatModel) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.reqOpts = append(c.reqOpts, option.WithBaseURL(url))
	}
}

// WithRetry sets the retry policy for API calls.
func WithRetry(cfg retry.Config) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// New creates a new Anthropic client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		model: DefaultChatModel,
		retry: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, c.reqOpts...)
	client := anthropic.NewClient(reqOpts...)
	c.client = &client
	return c
}

func (c *Client) buildParams(messages []longform.Message, opts []longform.Option) anthropic.MessageNewParams {
	options := longform.ApplyOptions(opts...)
	model := c.model.String()
	if options.Model != "" {
		model = options.Model
	}

	maxTokens := int64(defaultMaxTokens)
	if options.MaxTokens > 0 {
		maxTokens = int64(options.MaxTokens)
	}

	msgs, system := convertMessages(messages)
	if options.JSON {
		system = append(system, anthropic.TextBlockParam{Text: jsonInstruction})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(*options.Temperature)
	}
	return params
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []longform.Message, opts ...longform.Option) (*longform.Response, error) {
	params := c.buildParams(messages, opts)

	return retry.Do(ctx, c.retry, func() (*longform.Response, error) {
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, wrapError(err)
		}
		return toResponse(resp), nil
	})
}

// ChatStream sends a conversation and returns a channel of streaming events.
func (c *Client) ChatStream(ctx context.Context, messages []longform.Message, opts ...longform.Option) (<-chan longform.StreamEvent, error) {
	params := c.buildParams(messages, opts)

	stream := c.client.Messages.NewStreaming(ctx, params)
	ch := make(chan longform.StreamEvent)

	go func() {
		defer close(ch)
		defer stream.Close()

		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				ch <- longform.StreamEvent{Err: err}
				return
			}

			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta()
			if text := delta.Delta.AsTextDelta(); text.Type == "text_delta" && text.Text != "" {
				select {
				case ch <- longform.StreamEvent{Delta: text.Text}:
				case <-ctx.Done():
					return
				}
			}
		}

		final := longform.StreamEvent{Done: true, Response: toResponse(&acc)}
		if err := stream.Err(); err != nil {
			final = longform.StreamEvent{Err: wrapError(err)}
		}
		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

func toResponse(msg *anthropic.Message) *longform.Response {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &longform.Response{
		Content:      sb.String(),
		FinishReason: string(msg.StopReason),
		Usage: longform.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

// convertMessages splits system messages out of the conversation. Empty
// messages are dropped because the API rejects empty text blocks.
func convertMessages(messages []longform.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var result []anthropic.MessageParam
	var system []anthropic.TextBlockParam

	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case longform.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case longform.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return result, system
}

// wrapError categorizes an Anthropic SDK error by status code. Overloaded
// (529) falls in the 5xx range and is treated as transient.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	code := apiErr.StatusCode
	return longform.NewStatusError("anthropic: "+statusText(code), code, err)
}

func statusText(code int) string {
	if code == 529 {
		return "Overloaded"
	}
	return http.StatusText(code)
}

var _ longform.ChatProvider = (*Client)(nil)
