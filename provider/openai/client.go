package openai

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/retry"
)

// Client wraps the OpenAI SDK to implement longform.ChatProvider and
// longform.ImageProvider.
type Client struct {
	client     *openai.Client
	model      ChatModel
	imageModel ImageModel
	retry      retry.Config
	reqOpts    []option.RequestOption
}

// ClientOption configures the OpenAI client.
type ClientOption func(*Client)

// WithModel sets the default chat model.
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

// WithBaseURL points the client at an OpenAI-compatible endpoint.
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

// New creates a new OpenAI client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		model:      DefaultChatModel,
		imageModel: DefaultImageModel,
		retry:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, c.reqOpts...)
	client := openai.NewClient(reqOpts...)
	c.client = &client
	return c
}

func (c *Client) buildParams(messages []longform.Message, opts []longform.Option) openai.ChatCompletionNewParams {
	options := longform.ApplyOptions(opts...)
	model := c.model.String()
	if options.Model != "" {
		model = options.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convertMessages(messages),
	}
	if options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(options.MaxTokens))
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(*options.Temperature)
	}
	if options.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}
	return params
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []longform.Message, opts ...longform.Option) (*longform.Response, error) {
	params := c.buildParams(messages, opts)

	return retry.Do(ctx, c.retry, func() (*longform.Response, error) {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, wrapError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, longform.ErrEmptyResponse
		}

		return &longform.Response{
			Content:      resp.Choices[0].Message.Content,
			FinishReason: string(resp.Choices[0].FinishReason),
			Usage: longform.Usage{
				InputTokens:  int(resp.Usage.PromptTokens),
				OutputTokens: int(resp.Usage.CompletionTokens),
			},
		}, nil
	})
}

// ChatStream sends a conversation and returns a channel of streaming events.
// The last event has Done set and carries the accumulated response.
func (c *Client) ChatStream(ctx context.Context, messages []longform.Message, opts ...longform.Option) (<-chan longform.StreamEvent, error) {
	params := c.buildParams(messages, opts)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan longform.StreamEvent)

	go func() {
		defer close(ch)
		defer stream.Close()

		var acc openai.ChatCompletionAccumulator
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				select {
				case ch <- longform.StreamEvent{Delta: chunk.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}

		final := longform.StreamEvent{Done: true}
		switch {
		case stream.Err() != nil:
			final = longform.StreamEvent{Err: wrapError(stream.Err())}
		case len(acc.Choices) == 0:
			final = longform.StreamEvent{Err: longform.ErrEmptyResponse}
		default:
			final.Response = &longform.Response{
				Content:      acc.Choices[0].Message.Content,
				FinishReason: string(acc.Choices[0].FinishReason),
				Usage: longform.Usage{
					InputTokens:  int(acc.Usage.PromptTokens),
					OutputTokens: int(acc.Usage.CompletionTokens),
				},
			}
		}

		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

func convertMessages(messages []longform.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case longform.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case longform.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

var (
	_ longform.ChatProvider  = (*Client)(nil)
	_ longform.ImageProvider = (*Client)(nil)
)
