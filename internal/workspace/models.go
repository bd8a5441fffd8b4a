package workspace

import (
	"math"
	"time"
)

// SourceKind distinguishes uploaded files from remote references.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
)

// Source is one input attached to a workspace. Ref is an absolute path for
// files and the URL otherwise.
type Source struct {
	ID      int64      `json:"id"`
	Kind    SourceKind `json:"kind"`
	Ref     string     `json:"ref"`
	AddedAt time.Time  `json:"added_at"`
}

// Settings are the generation choices remembered per workspace.
type Settings struct {
	Format     string `json:"format,omitempty"`
	Length     string `json:"length,omitempty"`
	Style      string `json:"style,omitempty"`
	Language   string `json:"language,omitempty"`
	Preference string `json:"preference,omitempty"`
}

// Workspace is a document project.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Settings  Settings  `json:"settings"`
	Sources   []Source  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// History entry statuses.
const (
	HistorySuccess   = "success"
	HistoryFailed    = "failed"
	HistoryCancelled = "cancelled"
)

// HistoryEntry records one generation run.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Format    string    `json:"format"`
	Length    string    `json:"length"`
	Style     string    `json:"style"`
	Language  string    `json:"language"`
	DurationS float64   `json:"duration_s"`
	StepTimes []float64 `json:"step_times,omitempty"`
	Status    string    `json:"status"`
	Outputs   []string  `json:"outputs"`
	Error     string    `json:"error,omitempty"`
}

// RoundDuration converts d to seconds rounded to one decimal place.
func RoundDuration(d time.Duration) float64 {
	return math.Round(d.Seconds()*10) / 10
}
