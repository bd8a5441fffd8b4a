package loaders

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// pdfText runs pdftotext and returns its UTF-8 output with form feeds
// (page breaks) turned into newlines.
func (l *Loader) pdfText(ctx context.Context, path string) (string, error) {
	binary, err := exec.LookPath(l.pdftotext)
	if err != nil {
		return "", fmt.Errorf("%s not found (install poppler-utils): %w", l.pdftotext, err)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "-enc", "UTF-8", "-nopgbrk", path, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("%s: %w: %s", l.pdftotext, err, detail)
		}
		return "", fmt.Errorf("%s: %w", l.pdftotext, err)
	}
	return strings.ReplaceAll(stdout.String(), "\f", "\n"), nil
}
