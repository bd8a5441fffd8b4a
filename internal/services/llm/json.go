package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeJSON decodes a model's JSON answer into target. Models wrap JSON in
// code fences or chatty prose often enough that the bare object is tried
// after the verbatim text fails.
func DecodeJSON(content string, target any) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(text), target)
	if err == nil {
		return nil
	}
	inner := extractJSON(text)
	if inner == "" || inner == text {
		return fmt.Errorf("%w (payload: %s)", err, snippet(text))
	}
	if err := json.Unmarshal([]byte(inner), target); err != nil {
		return fmt.Errorf("%w (extracted payload: %s)", err, snippet(inner))
	}
	return nil
}

// extractJSON strips a ```json fence, then narrows to the outermost object
// or array.
func extractJSON(text string) string {
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		rest = strings.TrimLeft(rest, " \t\r\n")
		if len(rest) >= 4 && strings.EqualFold(rest[:4], "json") {
			rest = rest[4:]
		}
		if end := strings.LastIndex(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}
	if text == "" || text[0] == '{' || text[0] == '[' {
		return text
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(text[start : end+1])
		}
	}
	return text
}

// snippet collapses whitespace and shortens text for error messages.
func snippet(text string) string {
	clean := strings.Join(strings.Fields(text), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > 160 {
		return string(runes[:160]) + "..."
	}
	return clean
}
