package workflow

import (
	"fmt"
	"slices"
	"strings"

	"narrator/internal/jobs"
	"narrator/internal/language"
	"narrator/internal/services"
)

// Step labels shown while each step runs.
const (
	LabelExtract   = "Extracting text from document..."
	LabelScript    = "Generating transcript..."
	LabelTTSPrep   = "Optimizing for text-to-speech..."
	LabelAudio     = "Generating audio..."
	LabelArtifacts = "Generating infographic..."
)

// Formats lists the supported script formats.
var Formats = []string{
	"podcast", "interview", "panel-discussion", "debate", "summary", "narration",
	"storytelling", "explainer", "lecture", "tutorial", "q-and-a", "news-report",
	"executive-brief", "meeting", "analysis",
}

// Lengths lists the supported script lengths.
var Lengths = []string{"short", "medium", "long", "very-long"}

// Styles lists the supported script styles.
var Styles = []string{"normal", "friendly", "professional", "academic", "casual", "technical", "gen-z", "funny"}

// Options describes one generation run.
type Options struct {
	Source      string `json:"source"`
	Format      string `json:"format,omitempty"`
	Length      string `json:"length,omitempty"`
	Style       string `json:"style,omitempty"`
	Language    string `json:"language,omitempty"`
	Preference  string `json:"preference,omitempty"`
	Audio       bool   `json:"audio"`
	Artifacts   bool   `json:"artifacts"`
	HostVoice   string `json:"host_voice,omitempty"`
	CohostVoice string `json:"cohost_voice,omitempty"`
}

// Normalize fills defaults and validates the choices.
func (o Options) Normalize() (Options, error) {
	o.Source = strings.TrimSpace(o.Source)
	o.Format = defaultLower(o.Format, "podcast")
	o.Length = defaultLower(o.Length, "medium")
	o.Style = defaultLower(o.Style, "normal")
	o.Language = language.Canonical(o.Language)
	o.Preference = strings.TrimSpace(o.Preference)
	o.HostVoice = strings.TrimSpace(o.HostVoice)
	o.CohostVoice = strings.TrimSpace(o.CohostVoice)

	var problems []string
	if o.Source == "" {
		problems = append(problems, "source required")
	}
	if !slices.Contains(Formats, o.Format) {
		problems = append(problems, fmt.Sprintf("unknown format %q", o.Format))
	}
	if !slices.Contains(Lengths, o.Length) {
		problems = append(problems, fmt.Sprintf("unknown length %q", o.Length))
	}
	if !slices.Contains(Styles, o.Style) {
		problems = append(problems, fmt.Sprintf("unknown style %q", o.Style))
	}
	if len(problems) > 0 {
		return o, services.Wrap(services.ErrValidation, "workflow", "options", strings.Join(problems, "; "), nil)
	}
	return o, nil
}

// Labels returns the step labels of a run in order.
func (o Options) Labels() []string {
	labels := []string{LabelExtract, LabelScript, LabelTTSPrep}
	if o.Audio {
		labels = append(labels, LabelAudio)
	}
	if o.Artifacts {
		labels = append(labels, LabelArtifacts)
	}
	return labels
}

// Plan is the job shape for o: three fixed steps plus one per optional output.
func (o Options) Plan() jobs.Plan {
	labels := o.Labels()
	return jobs.Plan{TotalSteps: len(labels), FirstLabel: labels[0]}
}

func defaultLower(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
