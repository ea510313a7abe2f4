package anthropic

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

const messageBody = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
"content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","stop_sequence":null,
"usage":{"input_tokens":3,"output_tokens":2}}`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]ClientOption{WithBaseURL(srv.URL), WithRetry(retry.Disabled())}, opts...)
	return New("test-key", opts...)
}

func TestChat(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, messageBody)
	})

	resp, err := client.Chat(context.Background(), []longform.Message{
		longform.SystemMessage("be brief"),
		longform.UserMessage("hello"),
		{Role: longform.RoleAssistant},
	}, longform.WithJSON())
	require.NoError(t, err)

	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, longform.Usage{InputTokens: 3, OutputTokens: 2}, resp.Usage)

	assert.Equal(t, "claude-sonnet-4-5", got["model"])
	assert.EqualValues(t, defaultMaxTokens, got["max_tokens"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 1, "empty messages are dropped")
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])

	system := got["system"].([]any)
	require.Len(t, system, 2)
	assert.Equal(t, "be brief", system[0].(map[string]any)["text"])
	assert.Equal(t, jsonInstruction, system[1].(map[string]any)["text"])
}

func TestChatRetriesOverloaded(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(529)
			fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			return
		}
		fmt.Fprint(w, messageBody)
	}, WithRetry(retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 1}))

	resp, err := client.Chat(context.Background(), []longform.Message{longform.UserMessage("x")})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.EqualValues(t, 2, calls.Load())
}

func TestChatPermanentError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`)
	})

	_, err := client.Chat(context.Background(), []longform.Message{longform.UserMessage("x")})
	require.Error(t, err)
	assert.True(t, longform.IsPermanent(err))
	assert.Equal(t, http.StatusUnauthorized, longform.StatusCodeOf(err))
}

func TestChatStream(t *testing.T) {
	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"stop_reason":null,"usage":{"input_tokens":5,"output_tokens":0}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
		}
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
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.InputTokens)
	assert.Equal(t, 2, resp.Usage.OutputTokens)
}

func TestConvertMessages(t *testing.T) {
	msgs, system := convertMessages([]longform.Message{
		longform.SystemMessage(""),
		longform.SystemMessage("rules"),
		longform.UserMessage("q"),
		{Role: longform.RoleAssistant, Content: "a"},
	})
	require.Len(t, system, 1)
	assert.Equal(t, "rules", system[0].Text)
	require.Len(t, msgs, 2)
}
