package overlap

import (
	"regexp"
	"strings"
)

// Default stitching heuristics. They were tuned against small local models and
// may need retuning per model, so every value can be overridden.
const (
	DefaultContinuationPhrase = "let's continue our discussion."
	DefaultMaxSkip            = 2
	DefaultSkipDivisor        = 10
	DefaultMinMonologueChars  = 20
	DefaultContextTurns       = 3
)

// DefaultGoodbyePhrases lists the sign-off vocabulary suppressed in non-final
// windows, in match priority order.
var DefaultGoodbyePhrases = []string{
	"goodbye",
	"bye",
	"farewell",
	"until next time",
	"see you",
	"thanks for listening",
	"that's all",
	"wrapping up",
	"concluding",
	"end of",
	"final thoughts",
}

// Heuristics configures goodbye suppression, overlap trimming and the forced
// monologue fallback. Zero values fall back to the defaults above.
type Heuristics struct {
	GoodbyePhrases     []string
	ContinuationPhrase string
	MaxSkip            int
	SkipDivisor        int
	MinMonologueChars  int
	ContextTurns       int
}

// DefaultHeuristics returns the stock heuristics.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		GoodbyePhrases:     append([]string(nil), DefaultGoodbyePhrases...),
		ContinuationPhrase: DefaultContinuationPhrase,
		MaxSkip:            DefaultMaxSkip,
		SkipDivisor:        DefaultSkipDivisor,
		MinMonologueChars:  DefaultMinMonologueChars,
		ContextTurns:       DefaultContextTurns,
	}
}

func (h Heuristics) withDefaults() Heuristics {
	def := DefaultHeuristics()
	if len(h.GoodbyePhrases) == 0 {
		h.GoodbyePhrases = def.GoodbyePhrases
	}
	if strings.TrimSpace(h.ContinuationPhrase) == "" {
		h.ContinuationPhrase = def.ContinuationPhrase
	}
	if h.MaxSkip <= 0 {
		h.MaxSkip = def.MaxSkip
	}
	if h.SkipDivisor <= 0 {
		h.SkipDivisor = def.SkipDivisor
	}
	if h.MinMonologueChars <= 0 {
		h.MinMonologueChars = def.MinMonologueChars
	}
	if h.ContextTurns <= 0 {
		h.ContextTurns = def.ContextTurns
	}
	return h
}

// SkipCount is the number of leading turns dropped from a continuation window
// to discard the duplicated overlap region.
func (h Heuristics) SkipCount(turns int) int {
	h = h.withDefaults()
	return min(h.MaxSkip, max(1, turns/h.SkipDivisor))
}

type goodbyeFilter struct {
	patterns     []*regexp.Regexp
	continuation string
}

func newGoodbyeFilter(h Heuristics) goodbyeFilter {
	f := goodbyeFilter{continuation: h.ContinuationPhrase}
	for _, phrase := range h.GoodbyePhrases {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		f.patterns = append(f.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(phrase)+`\b`))
	}
	return f
}

// apply cuts text at the first listed phrase it contains and appends the
// continuation phrase. Phrases match whole words only, so "bye" does not
// fire inside "maybe".
func (f goodbyeFilter) apply(text string) (string, bool) {
	for _, pattern := range f.patterns {
		loc := pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		return text[:loc[0]] + f.continuation, true
	}
	return text, false
}
