package transcript

import (
	"regexp"
	"strings"
)

// DefaultSpeaker is used when a label carries no number.
const DefaultSpeaker = "Speaker 1"

// Turn is one (speaker, utterance) pair.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

var speakerNumber = regexp.MustCompile(`\d+`)

// NormalizeSpeaker maps labels such as "speaker2", "SPEAKER 2" or "Speaker_2"
// to "Speaker 2". Labels without digits become DefaultSpeaker.
func NormalizeSpeaker(label string) string {
	if n := speakerNumber.FindString(label); n != "" {
		return "Speaker " + n
	}
	return DefaultSpeaker
}

// SpeakerIndex returns the 1-based speaker number of a canonical label.
func SpeakerIndex(label string) int {
	n := speakerNumber.FindString(label)
	if n == "" {
		return 1
	}
	idx := 0
	for _, r := range n {
		idx = idx*10 + int(r-'0')
		if idx > 1_000_000 {
			return 1
		}
	}
	if idx == 0 {
		return 1
	}
	return idx
}

// FormatReadable renders turns one per line as "Speaker N: text".
func FormatReadable(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.Speaker + ": " + t.Text
	}
	return strings.Join(lines, "\n")
}
