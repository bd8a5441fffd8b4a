package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"narrator/internal/services/llm"
)

// ChatRequest is what the fake endpoint decoded from a completion call.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// FakeLLM is an OpenAI-compatible endpoint backed by a reply function.
type FakeLLM struct {
	Server *httptest.Server

	mu       sync.Mutex
	reply    func(ChatRequest) (string, int)
	requests []ChatRequest
	speech   int
}

// NewFakeLLM starts a server answering /chat/completions with reply, which
// returns the content and an HTTP status (0 means 200). /audio/speech returns
// the input text as the audio bytes and /models answers 200.
func NewFakeLLM(t testing.TB, reply func(ChatRequest) (string, int)) *FakeLLM {
	t.Helper()

	f := &FakeLLM{reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", f.handleChat)
	mux.HandleFunc("/audio/speech", f.handleSpeech)
	mux.HandleFunc("/models", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL to configure clients with.
func (f *FakeLLM) URL() string { return f.Server.URL }

// Requests returns a copy of every completion request received.
func (f *FakeLLM) Requests() []ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatRequest(nil), f.requests...)
}

// SpeechCalls counts /audio/speech requests.
func (f *FakeLLM) SpeechCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speech
}

func (f *FakeLLM) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	content, status := f.reply(req)
	if status != 0 && status != http.StatusOK {
		http.Error(w, content, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func (f *FakeLLM) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.speech++
	f.mu.Unlock()
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write([]byte(req.Input + "|"))
}
