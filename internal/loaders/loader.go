package loaders

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"narrator/internal/logging"
)

const (
	defaultUserAgent = "narrator/1.0 (document narration)"
	defaultPDFTool   = "pdftotext"
	defaultTimeout   = 30 * time.Second
)

// Loader turns documents and web pages into plain text.
type Loader struct {
	httpClient *http.Client
	pdftotext  string
	userAgent  string
	logger     *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the client used for URL sources.
func WithHTTPClient(client *http.Client) Option {
	return func(l *Loader) {
		if client != nil {
			l.httpClient = client
		}
	}
}

// WithPDFTool sets the pdftotext binary name or path.
func WithPDFTool(command string) Option {
	return func(l *Loader) {
		if command = strings.TrimSpace(command); command != "" {
			l.pdftotext = command
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New constructs a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		httpClient: &http.Client{Timeout: defaultTimeout},
		pdftotext:  defaultPDFTool,
		userAgent:  defaultUserAgent,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SupportedExtensions lists the local file types Extract understands.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown", ".html", ".htm", ".docx", ".pptx", ".pdf"}
}

// IsURL reports whether source should be fetched over HTTP.
func IsURL(source string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Extract returns the text of source capped at maxChars runes (0 disables the
// cap). An empty result is an error.
func (l *Loader) Extract(ctx context.Context, source string, maxChars int) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", extractionError(source, "no source given", nil)
	}

	var (
		text string
		err  error
		kind string
	)
	if IsURL(source) {
		kind = "url"
		text, err = l.fetchURL(ctx, source)
		if err != nil {
			return "", extractionError(source, "fetch failed", err)
		}
	} else {
		kind = strings.ToLower(filepath.Ext(source))
		text, err = l.readFile(ctx, source, kind, maxChars)
		if err != nil {
			return "", err
		}
	}

	text = truncateRunes(strings.TrimSpace(text), maxChars)
	if text == "" {
		return "", extractionError(source, "no text extracted from document", nil)
	}
	l.logger.Debug("document extracted",
		logging.String(logging.FieldEventType, "document_extracted"),
		logging.String("source", source),
		logging.String("kind", kind),
		logging.Int("chars", len([]rune(text))),
	)
	return text, nil
}

func (l *Loader) readFile(ctx context.Context, path, ext string, maxChars int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", extractionError(path, "file not found", nil)
		}
		return "", extractionError(path, "stat failed", err)
	}
	if info.IsDir() {
		return "", extractionError(path, "is a directory", nil)
	}

	switch ext {
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", extractionError(path, "read failed", err)
		}
		return decodeText(data), nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", extractionError(path, "read failed", err)
		}
		text, err := htmlText(strings.NewReader(decodeText(data)))
		if err != nil {
			return "", extractionError(path, "html parse failed", err)
		}
		return text, nil
	case ".docx":
		paragraphs, err := docxParagraphs(path)
		if err != nil {
			return "", extractionError(path, "docx read failed", err)
		}
		return joinCapped(paragraphs, maxChars), nil
	case ".pptx":
		paragraphs, err := pptxParagraphs(path)
		if err != nil {
			return "", extractionError(path, "pptx read failed", err)
		}
		return joinCapped(paragraphs, maxChars), nil
	case ".pdf":
		text, err := l.pdfText(ctx, path)
		if err != nil {
			return "", extractionError(path, "pdf conversion failed", err)
		}
		return text, nil
	default:
		return "", extractionError(path, "unsupported file type "+quoteExt(ext), nil)
	}
}

func quoteExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}
