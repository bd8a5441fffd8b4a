package loaders_test

import (
	"archive/zip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"narrator/internal/loaders"
	"narrator/internal/services"
)

func writeZip(t *testing.T, path string, parts map[string]string) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer file.Close()
	w := zip.NewWriter(file)
	for name, body := range parts {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}

func TestExtractPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("\xEF\xBB\xBF  Hello world.\nSecond line.  \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	text, err := loaders.New().Extract(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "Hello world.\nSecond line." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractLatin1Fallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.txt")
	if err := os.WriteFile(path, []byte("caf\xe9 cr\xe8me"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	text, err := loaders.New().Extract(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "café crème" {
		t.Fatalf("unexpected decode %q", text)
	}
}

func TestExtractCapsRunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.md")
	if err := os.WriteFile(path, []byte(strings.Repeat("é", 50)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	text, err := loaders.New().Extract(context.Background(), path, 10)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != strings.Repeat("é", 10) {
		t.Fatalf("expected 10 runes, got %q", text)
	}
}

func TestExtractDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.docx")
	writeZip(t, path, map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>paragraph.</w:t></w:r></w:p>
</w:body>
</w:document>`,
	})
	text, err := loaders.New().Extract(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "First paragraph.\nSecond paragraph." {
		t.Fatalf("unexpected docx text %q", text)
	}
}

func TestExtractPptxOrdersSlidesNumerically(t *testing.T) {
	slide := func(body string) string {
		return `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + body + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	path := filepath.Join(t.TempDir(), "deck.pptx")
	writeZip(t, path, map[string]string{
		"ppt/slides/slide10.xml": slide("Ten"),
		"ppt/slides/slide2.xml":  slide("Two"),
		"ppt/slides/slide1.xml":  slide(" One "),
	})
	text, err := loaders.New().Extract(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "One\nTwo\nTen" {
		t.Fatalf("unexpected slide order %q", text)
	}
}

func TestExtractHTMLFileDropsChrome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	page := `<html><head><style>body{}</style><script>var x=1;</script></head>
<body><header>Site title</header><nav>Home | About</nav>
<article><h1>Tides</h1><p>The moon   pulls the sea.</p></article>
<footer>Copyright</footer></body></html>`
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	text, err := loaders.New().Extract(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "Tides\nThe moon pulls the sea." {
		t.Fatalf("unexpected html text %q", text)
	}
}

func TestExtractURL(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><nav>menu</nav><p>Article body.</p></body></html>`))
	}))
	defer server.Close()

	text, err := loaders.New(loaders.WithHTTPClient(server.Client())).Extract(context.Background(), server.URL+"/post", 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "Article body." {
		t.Fatalf("unexpected url text %q", text)
	}
	if !strings.HasPrefix(gotAgent, "narrator/") {
		t.Fatalf("expected narrator user agent, got %q", gotAgent)
	}
}

func TestExtractURLHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := loaders.New().Extract(context.Background(), server.URL, 0)
	var extractErr *loaders.ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestExtractPDFUsesConfiguredTool(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "fake-pdftotext")
	script := "#!/bin/sh\nprintf 'Page one\\fPage two'\n"
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	pdf := filepath.Join(dir, "paper.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	text, err := loaders.New(loaders.WithPDFTool(tool)).Extract(context.Background(), pdf, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "Page one\nPage two" {
		t.Fatalf("unexpected pdf text %q", text)
	}
}

func TestExtractErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	unsupported := filepath.Join(dir, "data.xlsx")
	if err := os.WriteFile(unsupported, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"missing", filepath.Join(dir, "nope.txt"), "file not found"},
		{"unsupported", unsupported, "unsupported file type .xlsx"},
		{"empty", empty, "no text extracted"},
		{"blank", "  ", "no source given"},
		{"directory", dir, "is a directory"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loaders.New().Extract(context.Background(), tc.source, 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation classification, got %v", err)
			}
		})
	}
}

func TestIsURL(t *testing.T) {
	for source, want := range map[string]bool{
		"https://example.com": true,
		"HTTP://example.com":  true,
		"/tmp/file.txt":       false,
		"ftp://example.com":   false,
	} {
		if got := loaders.IsURL(source); got != want {
			t.Fatalf("IsURL(%q) = %v, want %v", source, got, want)
		}
	}
}
