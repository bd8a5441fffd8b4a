// Package chunker splits text into word-aligned pieces bounded by a target
// character size.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TextWindow is a slice of the source text. Offsets are byte positions into the
// original string and always fall on word boundaries.
type TextWindow struct {
	Start int
	End   int
	Text  string
}

// Chunk greedily packs the words of text into chunks of at most size
// characters, counting one separator per word. A word longer than size is
// emitted on its own rather than split. Words are joined by single spaces, so
// strings.Join(Chunk(t, n), " ") equals strings.Join(strings.Fields(t), " ").
func Chunk(text string, size int) []string {
	windows := Windows(text, size)
	if len(windows) == 0 {
		return nil
	}
	chunks := make([]string, len(windows))
	for i, w := range windows {
		chunks[i] = w.Text
	}
	return chunks
}

// Windows is Chunk with source offsets attached to every chunk.
func Windows(text string, size int) []TextWindow {
	if size <= 0 {
		size = 1
	}
	spans := wordSpans(text)
	if len(spans) == 0 {
		return nil
	}

	var (
		windows []TextWindow
		words   []string
		start   int
		end     int
		length  int
	)
	flush := func() {
		windows = append(windows, TextWindow{Start: start, End: end, Text: strings.Join(words, " ")})
		words = words[:0]
		length = 0
	}
	for _, span := range spans {
		word := text[span[0]:span[1]]
		wordLength := utf8.RuneCountInString(word) + 1
		if length+wordLength > size && len(words) > 0 {
			flush()
		}
		if len(words) == 0 {
			start = span[0]
		}
		words = append(words, word)
		end = span[1]
		length += wordLength
	}
	if len(words) > 0 {
		flush()
	}
	return windows
}

// wordSpans returns [start, end) byte offsets of every whitespace-delimited word.
func wordSpans(text string) [][2]int {
	var spans [][2]int
	inWord := false
	begin := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				spans = append(spans, [2]int{begin, i})
				inWord = false
			}
			continue
		}
		if !inWord {
			begin = i
			inWord = true
		}
	}
	if inWord {
		spans = append(spans, [2]int{begin, len(text)})
	}
	return spans
}
