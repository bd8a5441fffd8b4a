package overlap

import (
	"unicode"
	"unicode/utf8"

	"narrator/internal/chunker"
)

// Windows splits text into windows of at most size characters. Each window
// after the first starts overlapPercent of size characters before the end of
// its predecessor. Window edges are pulled back to whitespace so no word is
// cut, unless a single word fills the whole window.
func Windows(text string, size, overlapPercent int) []chunker.TextWindow {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 1
	}
	overlapPercent = min(max(overlapPercent, 0), 99)
	overlap := size * overlapPercent / 100

	// offsets[i] is the byte offset of rune i; offsets[n] == len(text).
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	n := len(offsets)
	offsets = append(offsets, len(text))
	runes := []rune(text)

	var windows []chunker.TextWindow
	start := 0
	for start < n {
		end := min(start+size, n)
		if end < n {
			end = backToSpace(runes, start, end)
		}
		windows = append(windows, chunker.TextWindow{
			Start: offsets[start],
			End:   offsets[end],
			Text:  text[offsets[start]:offsets[end]],
		})
		if end >= n {
			break
		}
		next := forwardToWord(runes, end-overlap)
		if next <= start || next >= n {
			next = forwardToWord(runes, end)
		}
		start = next
	}
	return windows
}

// backToSpace moves end left onto a whitespace rune when it would split a
// word. It keeps end when the window holds a single word.
func backToSpace(runes []rune, start, end int) int {
	if unicode.IsSpace(runes[end]) || unicode.IsSpace(runes[end-1]) {
		return end
	}
	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

// forwardToWord moves pos right to the start of a word.
func forwardToWord(runes []rune, pos int) int {
	if pos <= 0 {
		return 0
	}
	for pos < len(runes) && !unicode.IsSpace(runes[pos]) && !unicode.IsSpace(runes[pos-1]) {
		pos++
	}
	for pos < len(runes) && unicode.IsSpace(runes[pos]) {
		pos++
	}
	return pos
}
