package longform

import (
	"context"
	"strings"
)

// ChatProvider defines the interface for AI chat providers.
type ChatProvider interface {
	// Chat sends a conversation and returns a complete response.
	Chat(ctx context.Context, messages []Message, opts ...Option) (*Response, error)

	// ChatStream sends a conversation and returns a channel of streaming events.
	// The channel is closed when the stream is complete or an error occurs.
	// Callers should check StreamEvent.Err for any errors.
	ChatStream(ctx context.Context, messages []Message, opts ...Option) (<-chan StreamEvent, error)
}

// DeltaFunc receives each streamed chunk along with everything received so far.
type DeltaFunc func(delta, accumulated string)

// CollectStream drains a stream, calling onDelta for every chunk, and returns
// the final response. If the stream ends without a final event the accumulated
// text is returned as the response content.
func CollectStream(stream <-chan StreamEvent, onDelta DeltaFunc) (*Response, error) {
	var sb strings.Builder
	var final *Response
	for ev := range stream {
		if ev.Err != nil {
			return nil, ev.Err
		}
		if ev.Delta != "" {
			sb.WriteString(ev.Delta)
			if onDelta != nil {
				onDelta(ev.Delta, sb.String())
			}
		}
		if ev.Done && ev.Response != nil {
			final = ev.Response
		}
	}
	if final == nil {
		final = &Response{Content: sb.String()}
	}
	return final, nil
}
