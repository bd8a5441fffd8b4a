package overlap_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"narrator/internal/logging"
	"narrator/internal/overlap"
	"narrator/internal/services/llm"
	"narrator/internal/transcript"
)

type call struct {
	messages    []llm.Message
	temperature float64
}

type scriptedCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []call
}

func (s *scriptedCompleter) Complete(_ context.Context, messages []llm.Message, _ string, _ int, temperature float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.calls)
	s.calls = append(s.calls, call{messages: messages, temperature: temperature})
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx >= len(s.responses) {
		return "", errors.New("unexpected call")
	}
	return s.responses[idx], nil
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestWindowsOverlapAndStayWordAligned(t *testing.T) {
	text := words(50) // 249 chars
	windows := overlap.Windows(text, 100, 10)
	if len(windows) < 3 {
		t.Fatalf("expected at least 3 windows, got %d", len(windows))
	}
	for i, w := range windows {
		if len([]rune(w.Text)) > 100 {
			t.Fatalf("window %d too long: %d", i, len(w.Text))
		}
		if strings.HasPrefix(w.Text, " ") || strings.HasPrefix(w.Text, "ord") {
			t.Fatalf("window %d starts mid-word: %q", i, w.Text[:10])
		}
		if w.Text != text[w.Start:w.End] {
			t.Fatalf("window %d offsets do not match text", i)
		}
		if i > 0 && w.Start >= windows[i-1].End {
			t.Fatalf("window %d does not overlap its predecessor: start %d, previous end %d", i, w.Start, windows[i-1].End)
		}
	}
	if last := windows[len(windows)-1]; last.End != len(text) {
		t.Fatalf("last window should reach end of text, ends at %d", last.End)
	}
}

func TestWindowsWithoutOverlapPartitionText(t *testing.T) {
	text := "alpha beta gamma delta"
	windows := overlap.Windows(text, 11, 0)
	var rebuilt []string
	for _, w := range windows {
		rebuilt = append(rebuilt, strings.Fields(w.Text)...)
	}
	if strings.Join(rebuilt, " ") != text {
		t.Fatalf("unexpected reassembly %q", rebuilt)
	}
}

func TestGenerateShortInputUsesSingleCompletion(t *testing.T) {
	fake := &scriptedCompleter{responses: []string{`[('Speaker 1', 'Hi'), ('Speaker 2', 'Hello')]`}}
	engine := overlap.New(fake, overlap.Heuristics{}, logging.NewNop())

	turns, err := engine.Generate(context.Background(), overlap.Request{Text: "short input", SystemPrompt: "sys", WindowSize: 8000})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(turns) != 2 || len(fake.calls) != 1 {
		t.Fatalf("expected 2 turns from one call, got %d turns and %d calls", len(turns), len(fake.calls))
	}
	if got := fake.calls[0].messages[1].Content; got != "short input" {
		t.Fatalf("expected raw text as user message, got %q", got)
	}
}

func TestGenerateWindowsPromptsMergesAndFiltersGoodbyes(t *testing.T) {
	text := words(40) // 199 chars, windows of 100 chars
	fake := &scriptedCompleter{responses: []string{
		`[('Speaker 1', 'Opening'), ('Speaker 2', 'Great point. Goodbye everyone!')]`,
		`[('Speaker 2', 'Repeated overlap'), ('Speaker 1', 'New material'), ('Speaker 2', 'Maybe more')]`,
		`[('Speaker 1', 'Repeated again'), ('Speaker 2', 'Thanks for listening, goodbye!')]`,
	}}
	engine := overlap.New(fake, overlap.Heuristics{}, logging.NewNop())

	turns, err := engine.Generate(context.Background(), overlap.Request{
		Text:           text,
		SystemPrompt:   "sys",
		WindowSize:     100,
		OverlapPercent: 10,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	windows := overlap.Windows(text, 100, 10)
	if len(fake.calls) != len(windows) || len(windows) != 3 {
		t.Fatalf("expected one call per window (3), got %d calls for %d windows", len(fake.calls), len(windows))
	}

	want := []transcript.Turn{
		{Speaker: "Speaker 1", Text: "Opening"},
		{Speaker: "Speaker 2", Text: "Great point. let's continue our discussion."},
		{Speaker: "Speaker 1", Text: "New material"},
		{Speaker: "Speaker 2", Text: "Maybe more"},
		{Speaker: "Speaker 2", Text: "Thanks for listening, goodbye!"},
	}
	if len(turns) != len(want) {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Fatalf("turn %d: got %+v want %+v", i, turns[i], want[i])
		}
	}

	first := fake.calls[0].messages
	if !strings.Contains(first[0].Content, "DO NOT include any goodbyes") {
		t.Fatalf("middle window system prompt should forbid sign-offs: %q", first[0].Content)
	}
	if strings.Contains(first[1].Content, "continuation of a previous transcript") {
		t.Fatalf("first window should not carry continuation context")
	}
	second := fake.calls[1].messages[1].Content
	if !strings.Contains(second, "continuation of a previous transcript") ||
		!strings.Contains(second, "('Speaker 1', 'Opening')") ||
		!strings.Contains(second, "DO NOT conclude the conversation") {
		t.Fatalf("second window prompt missing context: %q", second)
	}
	last := fake.calls[2].messages
	if strings.Contains(last[0].Content, "DO NOT include any goodbyes") || !strings.Contains(last[1].Content, "final part of the conversation") {
		t.Fatalf("final window should allow a conclusion: %+v", last)
	}
}

func TestGenerateRepairsUnparseableWindow(t *testing.T) {
	fake := &scriptedCompleter{responses: []string{
		"???",
		`[('Speaker 1', 'Fixed'), ('Speaker 2', 'Yes')]`,
	}}
	engine := overlap.New(fake, overlap.Heuristics{}, logging.NewNop())
	turns, err := engine.Generate(context.Background(), overlap.Request{Text: "tiny", WindowSize: 100})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(turns) != 2 || turns[0].Text != "Fixed" {
		t.Fatalf("unexpected turns %+v", turns)
	}
	repair := fake.calls[1]
	if repair.temperature != 0.3 || !strings.HasSuffix(repair.messages[0].Content, "Return ONLY the Python list, nothing else.") {
		t.Fatalf("unexpected repair call %+v", repair)
	}
	if repair.messages[1].Content != "???" {
		t.Fatalf("repair should resend the raw answer, got %q", repair.messages[1].Content)
	}
}

func TestGenerateWindowRepairUsesWindowPrompt(t *testing.T) {
	fake := &scriptedCompleter{responses: []string{
		"???",
		`[('Speaker 1', 'Fixed'), ('Speaker 2', 'Yes')]`,
		`[('Speaker 1', 'Second'), ('Speaker 2', 'Window')]`,
		`[('Speaker 1', 'Third'), ('Speaker 2', 'Window')]`,
	}}
	engine := overlap.New(fake, overlap.Heuristics{}, logging.NewNop())
	_, err := engine.Generate(context.Background(), overlap.Request{Text: words(40), WindowSize: 100, OverlapPercent: 10})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(fake.calls) != 4 {
		t.Fatalf("expected three windows plus one repair, got %d calls", len(fake.calls))
	}
	prompt := fake.calls[1].messages[0].Content
	if !strings.HasSuffix(prompt, "Return ONLY the Python list.") || strings.Contains(prompt, "nothing else") {
		t.Fatalf("unexpected window repair prompt %q", prompt)
	}
}

func TestGenerateFallsBackToMonologueWhenRepairFails(t *testing.T) {
	fake := &scriptedCompleter{
		responses: []string{"{Some rambling text here}", ""},
		errs:      []error{nil, errors.New("model offline")},
	}
	engine := overlap.New(fake, overlap.Heuristics{}, logging.NewNop())
	turns, err := engine.Generate(context.Background(), overlap.Request{Text: "tiny", WindowSize: 100})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(turns) != 1 || turns[0].Speaker != "Speaker 1" || turns[0].Text != "Some rambling text here" {
		t.Fatalf("unexpected monologue %+v", turns)
	}
}

func TestGenerateReportsExhaustedStrategies(t *testing.T) {
	fake := &scriptedCompleter{responses: []string{"[()]", "[]"}}
	engine := overlap.New(fake, overlap.Heuristics{}, logging.NewNop())
	_, err := engine.Generate(context.Background(), overlap.Request{Text: "tiny", WindowSize: 100})
	var genErr *overlap.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	for _, fragment := range []string{"strict literal", "quoted tuples", "labeled dialogue", "JSON array", "monologue"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err.Error())
		}
	}
}

func TestGenerateWindowFailureNamesWindow(t *testing.T) {
	text := words(40)
	fake := &scriptedCompleter{
		responses: []string{`[('Speaker 1', 'One'), ('Speaker 2', 'Two')]`},
		errs:      []error{nil, errors.New("connection refused")},
	}
	engine := overlap.New(fake, overlap.Heuristics{}, logging.NewNop())
	_, err := engine.Generate(context.Background(), overlap.Request{Text: text, WindowSize: 100, OverlapPercent: 10})
	var genErr *overlap.GenerationError
	if !errors.As(err, &genErr) || genErr.Window != 2 {
		t.Fatalf("expected failure on window 2, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected cause in message, got %q", err.Error())
	}
}

func TestSkipCount(t *testing.T) {
	h := overlap.DefaultHeuristics()
	cases := map[int]int{0: 1, 3: 1, 9: 1, 10: 1, 20: 2, 45: 2}
	for turns, want := range cases {
		if got := h.SkipCount(turns); got != want {
			t.Fatalf("SkipCount(%d) = %d, want %d", turns, got, want)
		}
	}
	custom := overlap.Heuristics{MaxSkip: 5, SkipDivisor: 2}
	if got := custom.SkipCount(8); got != 4 {
		t.Fatalf("custom SkipCount(8) = %d, want 4", got)
	}
}

func TestCustomGoodbyePhrases(t *testing.T) {
	text := words(40)
	fake := &scriptedCompleter{responses: []string{
		`[('Speaker 1', 'We will adjourn now'), ('Speaker 2', 'Maybe later')]`,
		`[('Speaker 1', 'skip'), ('Speaker 2', 'Cheers')]`,
		`[('Speaker 1', 'skip'), ('Speaker 2', 'End')]`,
	}}
	engine := overlap.New(fake, overlap.Heuristics{GoodbyePhrases: []string{"adjourn"}, ContinuationPhrase: "onward."}, logging.NewNop())
	turns, err := engine.Generate(context.Background(), overlap.Request{Text: text, WindowSize: 100, OverlapPercent: 10})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if turns[0].Text != "We will onward." || turns[1].Text != "Maybe later" {
		t.Fatalf("unexpected filtered turns %+v", turns)
	}
}
