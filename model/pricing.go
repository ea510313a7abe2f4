package model

import (
	"strings"

	"github.com/spetersoncode/longform"
)

// ChatPricing contains pricing per million tokens (USD) for chat models.
type ChatPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
	// InputPerMillionLong and OutputPerMillionLong apply once a prompt exceeds
	// LongContextThreshold input tokens (Google only).
	InputPerMillionLong  float64
	OutputPerMillionLong float64
}

// LongContextThreshold is the prompt size where long context pricing starts.
const LongContextThreshold = 200_000

// HasLongContextPricing returns true if the model has tiered pricing for long context.
func (p ChatPricing) HasLongContextPricing() bool {
	return p.InputPerMillionLong > 0 || p.OutputPerMillionLong > 0
}

// Cost returns the USD cost of usage at these prices.
func (p ChatPricing) Cost(usage longform.Usage) float64 {
	in, out := p.InputPerMillion, p.OutputPerMillion
	if p.HasLongContextPricing() && usage.InputTokens > LongContextThreshold {
		in, out = p.InputPerMillionLong, p.OutputPerMillionLong
	}
	return float64(usage.InputTokens)/1_000_000*in + float64(usage.OutputTokens)/1_000_000*out
}

// ImagePricing is a flat per-image price (USD) at the quality longform requests.
type ImagePricing struct {
	PerImage float64
}

var chatPricing = map[string]ChatPricing{
	"claude-opus-4-5":   {InputPerMillion: 5.00, OutputPerMillion: 25.00},
	"claude-sonnet-4-5": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},

	"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":     {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"o4-mini":     {InputPerMillion: 1.10, OutputPerMillion: 4.40},

	"gemini-2.5-pro":        {InputPerMillion: 1.25, OutputPerMillion: 10.00, InputPerMillionLong: 2.50, OutputPerMillionLong: 15.00},
	"gemini-2.5-flash":      {InputPerMillion: 0.30, OutputPerMillion: 2.50},
	"gemini-2.5-flash-lite": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
}

var imagePricing = map[string]ImagePricing{
	"dall-e-3":                {PerImage: 0.04},
	"gpt-image-1":             {PerImage: 0.042},
	"imagen-3.0-generate-002": {PerImage: 0.03},
}

// LookupChat returns the pricing for a chat model id. Dated snapshots such
// as "claude-sonnet-4-5-20250929" resolve to their alias.
func LookupChat(id string) (ChatPricing, bool) {
	if p, ok := chatPricing[id]; ok {
		return p, true
	}
	if alias, ok := trimSnapshot(id); ok {
		p, ok := chatPricing[alias]
		return p, ok
	}
	return ChatPricing{}, false
}

// LookupImage returns the pricing for an image model id.
func LookupImage(id string) (ImagePricing, bool) {
	p, ok := imagePricing[id]
	return p, ok
}

// ChatCost estimates the cost of usage on model id. It reports false for
// unknown models.
func ChatCost(id string, usage longform.Usage) (float64, bool) {
	p, ok := LookupChat(id)
	if !ok {
		return 0, false
	}
	return p.Cost(usage), true
}

// trimSnapshot strips a trailing -YYYYMMDD or -YYYY-MM-DD date.
func trimSnapshot(id string) (string, bool) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 {
		return "", false
	}
	if tail := id[i+1:]; len(tail) == 8 && isDigits(tail) {
		return id[:i], true
	}
	// gpt-4o-2024-08-06
	if len(id) > 11 && id[len(id)-11] == '-' {
		date := id[len(id)-10:]
		if isDigits(date[:4]) && date[4] == '-' && isDigits(date[5:7]) && date[7] == '-' && isDigits(date[8:]) {
			return id[:len(id)-11], true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
