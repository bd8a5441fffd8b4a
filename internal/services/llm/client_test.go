package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"narrator/internal/services"
)

func writeContent(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientCompleteSendsMessages(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeContent(t, w, "Speaker 1: hello")
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL, Model: "default-model"})
	text, err := client.Complete(context.Background(), []Message{System("sys"), User("hi")}, "override", 512, 0.7)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "Speaker 1: hello" {
		t.Fatalf("unexpected content %q", text)
	}
	if got.Model != "override" || got.MaxTokens != 512 || got.Temperature != 0.7 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if got.ResponseFormat != nil {
		t.Fatalf("expected no response format, got %v", got.ResponseFormat)
	}
}

func TestClientCompleteFallsBackToConfiguredModel(t *testing.T) {
	var model string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		model = req.Model
		writeContent(t, w, "ok")
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "default-model"})
	if _, err := client.Complete(context.Background(), []Message{User("hi")}, "", 0, 1); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if model != "default-model" {
		t.Fatalf("expected configured model, got %q", model)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeContent(t, w, "```json\n{\"ok\":true}\n```")
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientPermanentFailure(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"}, WithSleeper(func(time.Duration) {}))
	err := client.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected health check to fail")
	}
	var permanent *PermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected PermanentError, got %T: %v", err, err)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestClientToolCallArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"content": "",
						"tool_calls": []any{
							map[string]any{
								"type": "function",
								"id":   "call_1",
								"function": map[string]any{
									"name":      "summary",
									"arguments": `{"title":"Demo"}`,
								},
							},
						},
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "demo"})
	content, err := client.CompleteJSON(context.Background(), "", "system", "user", 100, 0.4)
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	var parsed struct {
		Title string `json:"title"`
	}
	if err := DecodeJSON(content, &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Title != "Demo" {
		t.Fatalf("unexpected title %q", parsed.Title)
	}
}

func TestClientDeltaAndLegacyText(t *testing.T) {
	bodies := []string{
		`{"choices":[{"delta":{"content":"from delta"}}]}`,
		`{"choices":[{"text":"from text"}]}`,
	}
	want := []string{"from delta", "from text"}
	for i, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}))
		client := NewClient(Config{BaseURL: server.URL, Model: "demo"})
		got, err := client.Complete(context.Background(), []Message{User("x")}, "", 0, 0)
		server.Close()
		if err != nil {
			t.Fatalf("case %d: Complete returned error: %v", i, err)
		}
		if got != want[i] {
			t.Fatalf("case %d: expected %q, got %q", i, want[i], got)
		}
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		writeContent(t, w, "done")
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	text, err := client.Complete(context.Background(), []Message{User("hi")}, "", 0, 1)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "done" {
		t.Fatalf("unexpected content %q", text)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = "third time"
		}
		writeContent(t, w, content)
	}))
	defer server.Close()

	client := NewClient(
		Config{BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	text, err := client.Complete(context.Background(), []Message{User("hi")}, "", 0, 1)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "third time" {
		t.Fatalf("unexpected content %q", text)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestClientTransientAfterAttemptsExhausted(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(
		Config{BaseURL: server.URL, Model: "demo"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(3),
	)
	_, err := client.Complete(context.Background(), []Message{User("hi")}, "", 0, 1)
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %T: %v", err, err)
	}
	if transient.Attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got %d (calls=%d)", transient.Attempts, calls)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status in message, got %q", err.Error())
	}
}

func TestClientSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload speechPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		if payload.Voice != "alloy" || payload.Input != "Hello" || payload.ResponseFormat != "mp3" {
			t.Errorf("unexpected payload %+v", payload)
		}
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "tts-1"})
	audio, err := client.Synthesize(context.Background(), SpeechRequest{Voice: "alloy", Input: " Hello ", Format: "mp3"})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(audio) != "ID3audio" {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestDecodeJSONSanitizesProse(t *testing.T) {
	var parsed map[string]any
	if err := DecodeJSON("Here you go:\n{\"title\":\"x\"}\nthanks", &parsed); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if parsed["title"] != "x" {
		t.Fatalf("unexpected payload %v", parsed)
	}
	if err := DecodeJSON("   ", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
