// Package anthropic implements longform.ChatProvider for Claude models
// through the official Anthropic Go SDK.
//
// System messages are lifted into the request's system prompt. The Messages
// API has no JSON response mode, so longform.WithJSON appends an instruction
// to the system prompt instead.
package anthropic
