package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{"id":"x","object":"chat.completion","created":0,"model":"gpt-4o",
"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, Multiplier: 1}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]ClientOption{WithBaseURL(srv.URL + "/"), WithRetry(fastRetry(1))}, opts...)
	return New("test-key", opts...)
}

func TestChat(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody)
	})

	resp, err := client.Chat(context.Background(), []longform.Message{
		longform.SystemMessage("be brief"),
		longform.UserMessage("hello"),
	}, longform.WithMaxTokens(100), longform.WithTemperature(0.2), longform.WithJSON())
	require.NoError(t, err)

	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, longform.Usage{InputTokens: 3, OutputTokens: 2}, resp.Usage)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.EqualValues(t, 100, got["max_tokens"])
	assert.InDelta(t, 0.2, got["temperature"], 1e-9)
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestChatModelOverride(t *testing.T) {
	var model string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		model, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody)
	}, WithModel(GPT4oMini))

	_, err := client.Chat(context.Background(), []longform.Message{longform.UserMessage("x")})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model)

	_, err = client.Chat(context.Background(), []longform.Message{longform.UserMessage("x")}, longform.WithModel("o4-mini"))
	require.NoError(t, err)
	assert.Equal(t, "o4-mini", model)
}

func TestChatErrors(t *testing.T) {
	t.Run("bad request is user input and not retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
		}, WithRetry(fastRetry(3)))

		_, err := client.Chat(context.Background(), []longform.Message{longform.UserMessage("x")})
		require.Error(t, err)
		assert.True(t, longform.IsUserInput(err))
		assert.Equal(t, http.StatusBadRequest, longform.StatusCodeOf(err))
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("unavailable is retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"error":{"message":"busy"}}`)
				return
			}
			fmt.Fprint(w, completionBody)
		}, WithRetry(fastRetry(3)))

		resp, err := client.Chat(context.Background(), []longform.Message{longform.UserMessage("x")})
		require.NoError(t, err)
		assert.Equal(t, "hi", resp.Content)
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("no choices", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":0,"model":"gpt-4o","choices":[]}`)
		})

		_, err := client.Chat(context.Background(), []longform.Message{longform.UserMessage("x")})
		assert.ErrorIs(t, err, longform.ErrEmptyResponse)
	})
}

func TestChatStream(t *testing.T) {
	chunks := []string{
		`{"id":"x","object":"chat.completion.chunk","created":0,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"x","object":"chat.completion.chunk","created":0,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"x","object":"chat.completion.chunk","created":0,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"x","object":"chat.completion.chunk","created":0,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`,
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := client.ChatStream(context.Background(), []longform.Message{longform.UserMessage("x")})
	require.NoError(t, err)

	var deltas []string
	resp, err := longform.CollectStream(stream, func(delta, _ string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, longform.Usage{InputTokens: 4, OutputTokens: 2}, resp.Usage)
}

func TestGenerateImage(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":0,"data":[{"url":"https://img/1.png","revised_prompt":"a cat, watercolor"}]}`)
	})

	resp, err := client.GenerateImage(context.Background(), "a cat", longform.WithImageSize(longform.ImageSize1792x1024))
	require.NoError(t, err)

	img, ok := resp.First()
	require.True(t, ok)
	assert.Equal(t, "https://img/1.png", img.URL)
	assert.Equal(t, "a cat, watercolor", img.RevisedPrompt)
	assert.Equal(t, "dall-e-3", got["model"])
	assert.Equal(t, "1792x1024", got["size"])
	assert.Equal(t, "url", got["response_format"])
	assert.EqualValues(t, 1, got["n"])
}

func TestParseRetryAfter(t *testing.T) {
	assert.Zero(t, parseRetryAfter(nil))

	resp := &http.Response{Header: http.Header{}}
	assert.Zero(t, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", "soon")
	assert.Zero(t, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	assert.Greater(t, parseRetryAfter(resp), 50*time.Minute)
}

func TestWrapErrorPassesThroughNonAPIErrors(t *testing.T) {
	assert.NoError(t, wrapError(nil))
	err := fmt.Errorf("dial tcp: refused")
	assert.Equal(t, err, wrapError(err))
}
