package loaders

import (
	"fmt"

	"narrator/internal/services"
)

// ExtractionError reports a source that could not be turned into text.
type ExtractionError struct {
	Source string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Source, e.Reason)
}

// Unwrap exposes the cause and classifies the failure as a validation error,
// since retrying the same source cannot help.
func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrValidation}
	}
	return []error{services.ErrValidation, e.Err}
}

func extractionError(source, reason string, err error) error {
	return &ExtractionError{Source: source, Reason: reason, Err: err}
}
