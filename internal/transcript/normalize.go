package transcript

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	punctuationFolder = strings.NewReplacer(
		"‘", "'",
		"’", "'",
		"“", `"`,
		"”", `"`,
		"…", "...",
	)
	openingFence = regexp.MustCompile("(?m)^```(?:python)?\\s*\\n?")
	closingFence = regexp.MustCompile("(?m)\\n?```\\s*$")
)

// Normalize prepares raw model output for parsing. It is idempotent.
func Normalize(raw string) string {
	cleaned := norm.NFC.String(raw)
	cleaned = punctuationFolder.Replace(cleaned)
	cleaned = openingFence.ReplaceAllString(cleaned, "")
	cleaned = closingFence.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}
