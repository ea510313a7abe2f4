// Package model prices the chat and image models longform can run on.
//
// Prices are list prices in USD and only feed cost estimates in logs,
// metrics and CLI summaries; they are never used for billing.
//
//	cost, ok := model.ChatCost("claude-sonnet-4-5", resp.Usage)
package model
