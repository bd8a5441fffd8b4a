package loaders

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns data as UTF-8. Invalid UTF-8 is read as Windows-1252,
// which also covers Latin-1 text.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return norm.NFC.String(string(data))
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		decoded, _ = charmap.ISO8859_1.NewDecoder().Bytes(data)
	}
	return norm.NFC.String(string(decoded))
}

// truncateRunes cuts s to at most n runes. n <= 0 disables the cap.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// joinCapped joins non-empty parts with newlines, stopping once maxChars runes
// have been collected.
func joinCapped(parts []string, maxChars int) string {
	var b strings.Builder
	total := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
			total++
		}
		b.WriteString(part)
		total += utf8.RuneCountInString(part)
		if maxChars > 0 && total >= maxChars {
			break
		}
	}
	return truncateRunes(b.String(), maxChars)
}
