package overlap

import (
	"fmt"
	"strings"

	"narrator/internal/transcript"
)

// GenerationError reports a transcript that could not be produced. Window is
// the 1-based window number, or 0 for a single-shot request.
type GenerationError struct {
	Window  int
	Windows int
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		if e.Window > 0 {
			return fmt.Sprintf("failed to generate transcript window %d/%d: %v", e.Window, e.Windows, e.Err)
		}
		return fmt.Sprintf("failed to generate transcript: %v", e.Err)
	}
	tried := strategyList()
	if e.Window > 0 {
		return fmt.Sprintf("Failed to parse chunk %d after all strategies (%s, repair request)", e.Window, tried)
	}
	return "Could not parse transcript into speaker-dialogue pairs after all strategies (" + tried +
		", repair request). The model may be too small for structured output, try a larger model."
}

func (e *GenerationError) Unwrap() error { return e.Err }

func strategyList() string {
	names := make([]string, len(transcript.Strategies))
	for i, s := range transcript.Strategies {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
