// Package transcript turns free-form model output into an ordered dialogue.
//
// Parse runs a fixed cascade of strategies over one blob of text, stopping at
// the first that yields a valid result:
//
//  1. strict list-of-pairs literal, read by a hand-written tokenizer
//  2. quoted ("Speaker N", "text") tuple fragments (double, single, mixed quotes)
//  3. "Speaker N:" labelled lines, tolerating bold markup and dashes
//  4. an embedded JSON array of objects or pairs
//  5. a single-speaker monologue of the de-bracketed text
//
// Before any strategy the text is NFC-normalized, smart quotes and ellipses
// are folded to ASCII, and markdown code fences are removed. Speaker labels
// are canonicalized to "Speaker N" using the first number they contain.
//
// FormatLiteral and FormatReadable serialize a dialogue; FormatLiteral output
// always parses back to the same turns through strategy 1.
package transcript
