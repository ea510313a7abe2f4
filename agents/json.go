package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a model reply contains no JSON object.
var ErrNoJSON = errors.New("agents: no JSON object in response")

// ExtractJSON pulls a JSON document out of a model reply. It tries, in
// order: a ```json fence, any ``` fence, the whole reply, and the first
// balanced {...} object.
func ExtractJSON(text string) (string, error) {
	candidates := make([]string, 0, 3)
	if _, after, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		candidates = append(candidates, strings.TrimSpace(body))
	} else if _, after, ok := strings.Cut(text, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		candidates = append(candidates, strings.TrimSpace(body))
	}
	candidates = append(candidates, strings.TrimSpace(text))

	for _, c := range candidates {
		if c != "" && json.Valid([]byte(c)) {
			return c, nil
		}
	}
	if obj, ok := firstObject(text); ok {
		return obj, nil
	}
	return "", ErrNoJSON
}

// DecodeJSON extracts JSON from a model reply and unmarshals it into v.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("agents: decode JSON: %w", err)
	}
	return nil
}

// firstObject returns the first balanced {...} that is valid JSON.
func firstObject(text string) (string, bool) {
	for start := 0; ; start++ {
		i := strings.IndexByte(text[start:], '{')
		if i < 0 {
			return "", false
		}
		start += i
		if end := balancedEnd(text, start); end > 0 {
			if obj := text[start:end]; json.Valid([]byte(obj)) {
				return obj, true
			}
		}
	}
}

// balancedEnd returns the index just past the brace closing the one at
// start, skipping braces inside string literals, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// stringList decodes either ["a", "b"] or [{"name": "a"}, {"url": "b"}]
// into a flat list of strings. Models return both shapes.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		for _, key := range []string{"name", "url", "title", "concept"} {
			if v, ok := obj[key].(string); ok && v != "" {
				out = append(out, v)
				break
			}
		}
	}
	*l = out
	return nil
}
