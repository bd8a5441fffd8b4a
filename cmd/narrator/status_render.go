package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"narrator/internal/jobs"
	"narrator/internal/poller"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// statusStyles gives each kind its tag and colour.
var statusStyles = map[statusKind]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// renderStatusLine formats "  Label:               [OK] message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	status := "[" + style.tag + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
	return paint(line, style.color, colorize)
}

func paint(text, color string, colorize bool) string {
	if !colorize || color == "" {
		return text
	}
	return color + text + ansiReset
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	return []string{paint(line, ansiBlue, colorize), paint(strings.Repeat("-", len(line)), ansiBlue, colorize)}
}

// jobStatusKind maps a job status to the palette used for status lines.
func jobStatusKind(status jobs.Status) statusKind {
	switch status {
	case jobs.StatusCompleted:
		return statusOK
	case jobs.StatusCancelled, jobs.StatusInterrupted:
		return statusWarn
	case jobs.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

// renderProgressLine formats one poll result, e.g.
// "[2/3] Generating transcript...  ETA: ~40s  (12.3s)".
func renderProgressLine(update poller.Update, colorize bool) string {
	parts := []string{update.Progress}
	if update.ETA != "" {
		parts = append(parts, update.ETA)
	}
	line := strings.Join(parts, "  ")
	if update.Elapsed > 0 {
		line += fmt.Sprintf("  (%.1fs)", update.Elapsed)
	}
	return paint(line, statusStyles[jobStatusKind(update.Snapshot.Status)].color, colorize)
}

// progressPrinter writes a line whenever the progress text changes.
type progressPrinter struct {
	out      io.Writer
	colorize bool
	last     string
}

func (p *progressPrinter) print(update poller.Update) {
	if update.Progress == p.last {
		return
	}
	p.last = update.Progress
	fmt.Fprintln(p.out, renderProgressLine(update, p.colorize))
}

// shouldColorize is true only for a terminal; pipes and buffers stay plain.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
