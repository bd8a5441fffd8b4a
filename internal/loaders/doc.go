// Package loaders extracts plain text from the documents a workspace is fed.
//
// Extract dispatches on the source: http(s) URLs are fetched and stripped of
// markup, and local files are read according to their extension (.txt, .md,
// .html, .docx, .pptx, .pdf). PDF extraction shells out to pdftotext from
// poppler-utils. Output is capped at maxChars runes. Every failure is an
// *ExtractionError.
package loaders
