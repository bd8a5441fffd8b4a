package workflow

import (
	"path/filepath"
	"strings"
)

// Output files relative to the workspace directory.
const (
	ExtractedTextFile   = "step1/extracted_text.txt"
	CleanTextFile       = "step1/clean_extracted_text.txt"
	ScriptFile          = "step2/data.txt"
	TranscriptFile      = "step3/podcast_ready_data.txt"
	ReadableFile        = "step3/podcast_ready_data_readable.txt"
	SummaryJSONFile     = "step5/summary.json"
	SummaryMarkdownFile = "step5/summary.md"
)

// AudioFile is the step 4 output for format.
func AudioFile(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "mp3"
	}
	return "step4/podcast." + format
}

// OutputPath resolves a relative output name inside a workspace directory.
// It returns "" when name escapes dir.
func OutputPath(dir, name string) string {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.Join(dir, clean)
}
