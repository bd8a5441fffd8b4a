package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"narrator/internal/services/llm"
)

// summaryKeys are the fields a summary must carry, in rendering order.
var summaryKeys = []string{"title", "summary", "topics", "key_takeaways", "notable_quotes", "speakers", "conversation_flow"}

// Summary is the structured description of a finished transcript.
type Summary map[string]any

// jsonCompleter is implemented by clients that can force JSON output.
type jsonCompleter interface {
	CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// ExtractSummary asks the model for a Summary of transcriptText.
func ExtractSummary(ctx context.Context, client llm.Completer, transcriptText, model string, maxTokens int, temperature float64) (Summary, error) {
	var (
		raw string
		err error
	)
	if jc, ok := client.(jsonCompleter); ok {
		raw, err = jc.CompleteJSON(ctx, model, summarySystemPrompt, transcriptText, maxTokens, temperature)
	} else {
		raw, err = client.Complete(ctx, []llm.Message{llm.System(summarySystemPrompt), llm.User(transcriptText)},
			model, maxTokens, temperature)
	}
	if err != nil {
		return nil, err
	}
	var summary Summary
	if err := llm.DecodeJSON(raw, &summary); err != nil {
		return nil, fmt.Errorf("invalid json from model: %w", err)
	}
	var missing []string
	for _, key := range summaryKeys {
		if _, ok := summary[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("model response missing keys: %s", strings.Join(missing, ", "))
	}
	return summary, nil
}

var titleCaser = cases.Title(language.English)

// Markdown renders the summary as a markdown document.
func (s Summary) Markdown() string {
	var b strings.Builder
	title := strings.TrimSpace(scalar(s["title"]))
	if title == "" {
		title = "Summary"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if text := strings.TrimSpace(scalar(s["summary"])); text != "" {
		fmt.Fprintf(&b, "%s\n\n", text)
	}
	for _, key := range summaryKeys[2:] {
		items, ok := s[key].([]any)
		if !ok || len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", titleCaser.String(strings.ReplaceAll(key, "_", " ")))
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", renderItem(item))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderItem(item any) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return scalar(item)
	}
	if quote, ok := obj["quote"]; ok {
		if speaker := scalar(obj["speaker"]); speaker != "" {
			return fmt.Sprintf("%q (%s)", scalar(quote), speaker)
		}
		return fmt.Sprintf("%q", scalar(quote))
	}
	for _, pair := range [][2]string{{"name", "role"}, {"section", "description"}} {
		if head, ok := obj[pair[0]]; ok {
			if tail := scalar(obj[pair[1]]); tail != "" {
				return fmt.Sprintf("**%s**: %s", scalar(head), tail)
			}
			return fmt.Sprintf("**%s**", scalar(head))
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + scalar(obj[k])
	}
	return strings.Join(parts, ", ")
}

func scalar(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(data)
	}
}
