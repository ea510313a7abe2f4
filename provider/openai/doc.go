// Package openai implements longform.ChatProvider and longform.ImageProvider
// on top of the official OpenAI Go SDK.
//
// Requests are retried with the retry package when the API reports a
// transient failure (429, 5xx, network timeouts). The SDK's own retries are
// switched off so backoff happens in one place.
//
// # Basic Usage
//
//	client := openai.New(os.Getenv("OPENAI_API_KEY"))
//
//	resp, err := client.Chat(ctx, []longform.Message{
//	    longform.SystemMessage("You are a technical writer."),
//	    longform.UserMessage("Explain Redis eviction policies."),
//	})
//
// Any OpenAI-compatible endpoint works through WithBaseURL.
package openai
