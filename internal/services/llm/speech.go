package llm

import (
	"context"
	"errors"
	"strings"
)

// SpeechRequest describes one utterance to synthesize.
type SpeechRequest struct {
	Model  string
	Voice  string
	Input  string
	Format string
}

type speechPayload struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Synthesize renders req.Input to audio through the /audio/speech endpoint and
// returns the encoded bytes.
func (c *Client) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return nil, errors.New("llm speech: input required")
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		return nil, errors.New("llm speech: voice required")
	}
	payload := speechPayload{
		Model:          c.model(req.Model),
		Voice:          voice,
		Input:          input,
		ResponseFormat: strings.TrimSpace(req.Format),
	}
	var audio []byte
	err := c.retry.do(ctx, "llm speech", func() error {
		body, err := c.post(ctx, "audio/speech", payload)
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return &emptyContentError{Op: "llm speech", Snippet: "<empty>"}
		}
		audio = body
		return nil
	})
	return audio, err
}
