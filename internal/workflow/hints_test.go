package workflow_test

import (
	"strings"
	"testing"

	"narrator/internal/workflow"
)

func TestHint(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Post \"http://localhost:11434/v1/chat/completions\": dial tcp 127.0.0.1:11434: connect: connection refused", "Cannot reach"},
		{"llm complete: status 429: Too Many Requests", "rate limiting"},
		{"model \"llama9\" not found, try pulling it first: model not found", "not available"},
		{"CUDA error: out of memory", "ran out of memory"},
		{"Could not parse transcript into speaker-dialogue pairs", "structured output"},
		{"write step1/extracted_text.txt: no space left on device", "disk is full"},
		{"something unexpected", ""},
		{"", ""},
	}
	for _, tc := range tests {
		got := workflow.Hint(tc.message)
		if tc.want == "" {
			if got != "" {
				t.Fatalf("Hint(%q) = %q, want empty", tc.message, got)
			}
			continue
		}
		if !strings.Contains(got, tc.want) {
			t.Fatalf("Hint(%q) = %q, want it to mention %q", tc.message, got, tc.want)
		}
	}
}
