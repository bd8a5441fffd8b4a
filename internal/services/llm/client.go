package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "http://localhost:11434/v1"
	defaultHTTPTimeout = 10 * time.Minute
)

// Config captures the runtime settings required to talk to the model endpoint.
// BaseURL is the API root; chat and speech paths are joined onto it.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Message is one entry of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system-role message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user-role message.
func User(content string) Message { return Message{Role: "user", Content: content} }

// Completer is the model contract consumed by the pipeline.
type Completer interface {
	Complete(ctx context.Context, messages []Message, model string, maxTokens int, temperature float64) (string, error)
}

// Client talks to an OpenAI-compatible endpoint for chat completions and
// speech synthesis.
type Client struct {
	cfg   Config
	http  *http.Client
	retry retryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts caps how many times a call is tried.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = attempts }
}

// WithRetryBackoff sets the first backoff delay and the ceiling.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.base = baseDelay
		c.retry.ceiling = maxDelay
	}
}

// WithSleeper replaces the backoff sleep, for tests.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.retry.sleeper = sleeper }
}

// NewClient constructs a model client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = Config{
		APIKey:         strings.TrimSpace(cfg.APIKey),
		BaseURL:        strings.TrimSpace(cfg.BaseURL),
		Model:          strings.TrimSpace(cfg.Model),
		Referer:        strings.TrimSpace(cfg.Referer),
		Title:          strings.TrimSpace(cfg.Title),
		TimeoutSeconds: cfg.TimeoutSeconds,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: timeout},
		retry: defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Complete sends the ordered messages and returns the assistant text. An empty
// model falls back to the configured default.
func (c *Client) Complete(ctx context.Context, messages []Message, model string, maxTokens int, temperature float64) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("llm complete: messages required")
	}
	req := chatRequest{
		Model:       c.model(model),
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.Model == "" {
		return "", errors.New("llm complete: model required")
	}
	return c.chat(ctx, "llm complete", req)
}

// CompleteJSON asks for a JSON object answer to a system/user prompt pair and
// returns the raw payload. Use DecodeJSON to read it.
func (c *Client) CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return "", errors.New("llm complete json: system and user prompts required")
	}
	return c.chat(ctx, "llm complete json", chatRequest{
		Model:          c.model(model),
		Messages:       []Message{System(systemPrompt), User(userPrompt)},
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: jsonObjectFormat,
	})
}

// HealthCheck verifies that the endpoint answers and the model can follow a
// trivial JSON instruction.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.chat(ctx, "llm health", chatRequest{
		Model:          c.cfg.Model,
		Messages:       []Message{System("You must respond with JSON only."), User(`Respond with {"ok":true}`)},
		MaxTokens:      16,
		ResponseFormat: jsonObjectFormat,
	})
	if err != nil {
		return err
	}
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(content, &reply); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !reply.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

func (c *Client) model(override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	return c.cfg.Model
}

var jsonObjectFormat = map[string]string{"type": "json_object"}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// chatChoice accepts the shapes servers actually return: message, a streaming
// delta even when stream=false, legacy text, or tool call arguments.
type chatChoice struct {
	Message      chatMessage `json:"message"`
	Delta        chatMessage `json:"delta"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Content   string `json:"content"`
	Refusal   string `json:"refusal"`
	ToolCalls []struct {
		Function struct {
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

func (m chatMessage) arguments() string {
	for _, call := range m.ToolCalls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

func (ch chatChoice) content() string {
	for _, candidate := range []string{ch.Message.Content, ch.Delta.Content, ch.Text, ch.Message.arguments(), ch.Delta.arguments()} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (c *Client) chat(ctx context.Context, op string, req chatRequest) (string, error) {
	var content string
	err := c.retry.do(ctx, op, func() error {
		body, err := c.post(ctx, "chat/completions", req)
		if err != nil {
			return err
		}
		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: api error: %s", op, strings.TrimSpace(resp.Error.Message))
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%s: empty choices", op)
		}
		empty := &emptyContentError{Op: op, Snippet: snippet(string(body))}
		for _, choice := range resp.Choices {
			if text := choice.content(); text != "" {
				content = text
				return nil
			}
			if empty.FinishReason == "" {
				empty.FinishReason = strings.TrimSpace(choice.FinishReason)
			}
			if empty.Refusal == "" {
				empty.Refusal = strings.TrimSpace(choice.Message.Refusal + choice.Delta.Refusal)
			}
		}
		return empty
	})
	return content, err
}

// post sends a JSON body to path under the base URL and returns the raw
// response body. Non-2xx responses become *httpStatusError.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("llm request: build url: %w", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	// OpenRouter attribution headers
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request: %s (timeout %s): %w", path, c.http.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm request: read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return body, nil
}
