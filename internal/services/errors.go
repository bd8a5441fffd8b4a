package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Wrap prefixes err with "step: operation: message" and tags it with marker
// for errors.Is. A nil marker means ErrTransient.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(fields ...string) string {
	var parts []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Kind names the marker err carries, for API responses and run logs.
func Kind(err error) string {
	for _, m := range []struct {
		marker error
		name   string
	}{
		{ErrValidation, "validation"},
		{ErrConfiguration, "configuration"},
		{ErrNotFound, "not_found"},
		{ErrExternalTool, "external_tool"},
		{ErrTransient, "transient"},
	} {
		if errors.Is(err, m.marker) {
			return m.name
		}
	}
	return "internal"
}
