package workflow

import "strings"

type hintRule struct {
	patterns []string
	hint     string
}

var hintRules = []hintRule{
	{
		patterns: []string{"connection refused", "no such host", "dial tcp", "connection reset", "unreachable", "i/o timeout"},
		hint:     "Cannot reach the model server. Check that it is running and that llm.base_url is correct.",
	},
	{
		patterns: []string{"429", "rate limit", "too many requests", "quota"},
		hint:     "The provider is rate limiting requests. Wait a minute and retry, or lower engine.clean_workers.",
	},
	{
		patterns: []string{"model not found", "no such model", "unknown model", "model_not_found", "does not exist", "pull the model"},
		hint:     "The configured model is not available. Pull it or fix the model name in the config.",
	},
	{
		patterns: []string{"out of memory", "oomkilled", "oom-kill", "cuda error", "insufficient memory", "memory allocation"},
		hint:     "The model ran out of memory. Try a smaller model or a shorter document.",
	},
	{
		patterns: []string{"could not parse", "failed to parse", "speaker-dialogue pairs", "invalid json", "missing keys"},
		hint:     "The model did not return structured output. A larger or instruction-tuned model usually fixes this.",
	},
	{
		patterns: []string{"no space left", "disk space", "disk full"},
		hint:     "The disk is full. Free some space in the workspace directory and retry.",
	},
}

// Hint maps an error message to advisory text. It returns "" when no known
// pattern matches.
func Hint(message string) string {
	lower := strings.ToLower(message)
	if lower == "" {
		return ""
	}
	for _, rule := range hintRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(lower, pattern) {
				return rule.hint
			}
		}
	}
	return ""
}
