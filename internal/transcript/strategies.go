package transcript

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	doubleQuotedTuple = regexp.MustCompile(`(?is)\(\s*"(Speaker\s*\d+)"\s*,\s*"((?:[^"\\]|\\.)*)"\s*\)`)
	singleQuotedTuple = regexp.MustCompile(`(?is)\(\s*'(Speaker\s*\d+)'\s*,\s*'((?:[^'\\]|\\.)*)'\s*\)`)
	mixedQuotedTuple  = regexp.MustCompile(`(?is)\(\s*['"](Speaker\s*\d+)['"]\s*,\s*['"](.+?)['"]\s*\)`)
	speakerLabel      = regexp.MustCompile(`(?i)(?:^|\n)\s*\*{0,2}(Speaker\s*\d+)\*{0,2}\s*[:：\-–—]\s*`)
	jsonArraySpan     = regexp.MustCompile(`\[[\s\S]*\]`)
	bracketNoise      = regexp.MustCompile(`[\[\]()]`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
)

// monologueMinChars is the length a de-bracketed blob must exceed before the
// cascade accepts it as a monologue.
const monologueMinChars = 30

// ParseLiteral is strategy 1: the whole text must be a non-empty list of
// two-string pairs.
func ParseLiteral(raw string) []Turn {
	pairs, err := parseLiteral(Normalize(raw))
	if err != nil || len(pairs) == 0 {
		return nil
	}
	turns := make([]Turn, len(pairs))
	for i, pair := range pairs {
		turns[i] = Turn{Speaker: NormalizeSpeaker(pair[0]), Text: pair[1]}
	}
	return turns
}

// ParseQuotedTuples is strategy 2. Double-quoted, single-quoted and mixed
// fragments are tried in that order; a variant needs at least two matches.
func ParseQuotedTuples(raw string) []Turn {
	text := Normalize(raw)
	variants := []struct {
		pattern *regexp.Regexp
		unquote func(string) string
	}{
		{doubleQuotedTuple, func(s string) string { return strings.ReplaceAll(s, `\"`, `"`) }},
		{singleQuotedTuple, func(s string) string { return strings.ReplaceAll(s, `\'`, `'`) }},
		{mixedQuotedTuple, func(s string) string { return s }},
	}
	for _, variant := range variants {
		matches := variant.pattern.FindAllStringSubmatch(text, -1)
		if len(matches) < 2 {
			continue
		}
		turns := make([]Turn, 0, len(matches))
		for _, m := range matches {
			turns = append(turns, Turn{
				Speaker: NormalizeSpeaker(m[1]),
				Text:    strings.TrimSpace(variant.unquote(m[2])),
			})
		}
		return turns
	}
	return nil
}

// ParseLabeled is strategy 3: "Speaker N: text" lines. Text runs until the
// next label; whitespace inside a turn collapses to single spaces and empty
// turns are dropped.
func ParseLabeled(raw string) []Turn {
	text := Normalize(raw)
	locs := speakerLabel.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	var turns []Turn
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := collapseSpace(text[loc[1]:end])
		if body == "" {
			continue
		}
		turns = append(turns, Turn{Speaker: NormalizeSpeaker(text[loc[2]:loc[3]]), Text: body})
	}
	return turns
}

var (
	speakerKeys = []string{"speaker", "Speaker"}
	textKeys    = []string{"text", "dialogue", "content", "line"}
)

// ParseJSON is strategy 4: the widest [...] span decoded as a JSON array of
// objects with speaker/text aliases or of two-element arrays.
func ParseJSON(raw string) []Turn {
	span := jsonArraySpan.FindString(Normalize(raw))
	if span == "" {
		return nil
	}
	var items []any
	if err := json.Unmarshal([]byte(span), &items); err != nil {
		return nil
	}
	var turns []Turn
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any:
			speaker := DefaultSpeaker
			if value, ok := firstKey(v, speakerKeys); ok {
				speaker = scalarString(value)
			}
			value, ok := firstKey(v, textKeys)
			if !ok {
				continue
			}
			if text := scalarString(value); text != "" {
				turns = append(turns, Turn{Speaker: NormalizeSpeaker(speaker), Text: text})
			}
		case []any:
			if len(v) < 2 {
				continue
			}
			turns = append(turns, Turn{Speaker: NormalizeSpeaker(scalarString(v[0])), Text: scalarString(v[1])})
		}
	}
	return turns
}

// ParseMonologue is strategy 5: bracket noise stripped, whitespace collapsed,
// attributed to DefaultSpeaker when longer than minChars.
func ParseMonologue(raw string, minChars int) []Turn {
	mono := Monologue(Normalize(raw), false)
	if len([]rune(mono)) <= minChars {
		return nil
	}
	return []Turn{{Speaker: DefaultSpeaker, Text: mono}}
}

// Monologue strips brackets and parentheses (and braces when withBraces is
// set) and collapses whitespace.
func Monologue(text string, withBraces bool) string {
	text = bracketNoise.ReplaceAllString(text, " ")
	if withBraces {
		text = strings.NewReplacer("{", " ", "}", " ").Replace(text)
	}
	return collapseSpace(text)
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func firstKey(m map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if value, ok := m[key]; ok {
			return value, true
		}
	}
	return nil, false
}

func scalarString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprint(value)
	}
}
