package transcript

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// The literal grammar accepted by strategy 1:
//
//	list   = "[" [ pair { "," pair } [ "," ] ] "]"
//	pair   = "(" string "," string [ "," ] ")" | "[" string "," string [ "," ] "]"
//	string = strlit { strlit }            (adjacent literals concatenate)
//	strlit = [ "r" | "u" ] ( '...' | "..." | '''...''' | """...""" )
//
// Whitespace and # comments may appear between tokens.

type literalParser struct {
	src string
	pos int
}

var errNotLiteral = errors.New("not a list-of-pairs literal")

func parseLiteral(text string) ([][2]string, error) {
	p := &literalParser{src: text}
	p.skipSpace()
	if !p.consume('[') {
		return nil, p.fail("expected '['")
	}
	var pairs [][2]string
	for {
		p.skipSpace()
		if p.consume(']') {
			break
		}
		if len(pairs) > 0 {
			if !p.consume(',') {
				return nil, p.fail("expected ',' between items")
			}
			p.skipSpace()
			if p.consume(']') {
				break
			}
		}
		pair, err := p.pair()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.fail("trailing content")
	}
	return pairs, nil
}

func (p *literalParser) pair() ([2]string, error) {
	var pair [2]string
	var closer byte
	switch {
	case p.consume('('):
		closer = ')'
	case p.consume('['):
		closer = ']'
	default:
		return pair, p.fail("expected '(' or '['")
	}
	for i := range pair {
		p.skipSpace()
		if i == 1 {
			if !p.consume(',') {
				return pair, p.fail("expected ',' inside pair")
			}
			p.skipSpace()
		}
		value, err := p.str()
		if err != nil {
			return pair, err
		}
		pair[i] = value
	}
	p.skipSpace()
	if p.consume(',') {
		p.skipSpace()
	}
	if !p.consume(closer) {
		return pair, p.fail(fmt.Sprintf("expected %q closing a two-element pair", closer))
	}
	return pair, nil
}

// str reads one or more adjacent string literals.
func (p *literalParser) str() (string, error) {
	var b strings.Builder
	count := 0
	for {
		save := p.pos
		if count > 0 {
			p.skipSpace()
		}
		if !p.atStringStart() {
			p.pos = save
			break
		}
		if err := p.strlit(&b); err != nil {
			return "", err
		}
		count++
	}
	if count == 0 {
		return "", p.fail("expected string")
	}
	return b.String(), nil
}

func (p *literalParser) atStringStart() bool {
	i := p.pos
	if i < len(p.src) && strings.IndexByte("rRuU", p.src[i]) >= 0 {
		i++
	}
	return i < len(p.src) && (p.src[i] == '\'' || p.src[i] == '"')
}

func (p *literalParser) strlit(b *strings.Builder) error {
	raw := false
	if c := p.src[p.pos]; c == 'r' || c == 'R' {
		raw = true
		p.pos++
	} else if c == 'u' || c == 'U' {
		p.pos++
	}
	quote := p.src[p.pos]
	delim := string(quote)
	if strings.HasPrefix(p.src[p.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	p.pos += len(delim)
	triple := len(delim) == 3

	for {
		if p.pos >= len(p.src) {
			return p.fail("unterminated string")
		}
		if strings.HasPrefix(p.src[p.pos:], delim) {
			p.pos += len(delim)
			return nil
		}
		c := p.src[p.pos]
		switch {
		case c == '\n' && !triple:
			return p.fail("newline in single-quoted string")
		case c == '\\' && raw:
			if p.pos+1 >= len(p.src) {
				return p.fail("unterminated string")
			}
			b.WriteString(p.src[p.pos : p.pos+2])
			p.pos += 2
		case c == '\\':
			if err := p.escape(b); err != nil {
				return err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
}

func (p *literalParser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.fail("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\n':
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'v':
		b.WriteByte('\v')
	case '0', '1', '2', '3', '4', '5', '6', '7':
		start := p.pos - 1
		for p.pos < len(p.src) && p.pos-start < 3 && p.src[p.pos] >= '0' && p.src[p.pos] <= '7' {
			p.pos++
		}
		v, _ := strconv.ParseUint(p.src[start:p.pos], 8, 32)
		b.WriteRune(rune(v))
	case 'x':
		return p.hexEscape(b, 2)
	case 'u':
		return p.hexEscape(b, 4)
	case 'U':
		return p.hexEscape(b, 8)
	default:
		// unknown escapes keep their backslash
		b.WriteByte('\\')
		p.pos--
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		b.WriteRune(r)
		p.pos += size
	}
	return nil
}

func (p *literalParser) hexEscape(b *strings.Builder, digits int) error {
	if p.pos+digits > len(p.src) {
		return p.fail("truncated hex escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil || v > utf8.MaxRune {
		return p.fail("invalid hex escape")
	}
	p.pos += digits
	b.WriteRune(rune(v))
	return nil
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		case '#':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *literalParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *literalParser) fail(reason string) error {
	return fmt.Errorf("%w: %s at offset %d", errNotLiteral, reason, p.pos)
}

// FormatLiteral renders turns as a bracketed list of quoted pairs, the same
// shape the strict strategy reads back.
func FormatLiteral(turns []Turn) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, t := range turns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(quoteLiteral(t.Speaker))
		b.WriteString(", ")
		b.WriteString(quoteLiteral(t.Text))
		b.WriteByte(')')
	}
	b.WriteByte(']')
	return b.String()
}

// unstable reports whether Normalize could rewrite r, either through
// punctuation folding or NFC composition with its neighbour.
func unstable(r rune) bool {
	switch r {
	case '\u2018', '\u2019', '\u201c', '\u201d', '\u2026':
		return true
	}
	if r == utf8.RuneError {
		return false
	}
	s := string(r)
	return !norm.NFC.IsNormalString(s) || !norm.NFC.PropertiesString(s).BoundaryBefore()
}

// quoteLiteral prefers single quotes and switches to double quotes when that
// avoids escaping.
func quoteLiteral(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(quote):
			b.WriteByte('\\')
			b.WriteByte(quote)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		case unstable(r) && r > 0xffff:
			fmt.Fprintf(&b, `\U%08x`, r)
		case unstable(r):
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}
