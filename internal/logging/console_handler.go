package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// prettyHandler writes a header line per record and then one indented line
// per attribute:
//
//	2025-01-02 15:04:05 INFO [worker] Workspace nb1 (Generating transcript...) – step completed
//	    - current_step: 2
//
// component, workspace_id and step never appear as detail lines.
type prettyHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Leveler
	addSource bool
	preset    []field
	prefix    string
}

type field struct {
	key   string
	value slog.Value
}

func newPrettyHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &prettyHandler{mu: new(sync.Mutex), out: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = append([]field(nil), h.preset...)
	for _, attr := range attrs {
		next.preset = appendField(next.preset, h.prefix, attr)
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})
	fields = lastValueWins(fields)

	var component, workspace, step string
	var b strings.Builder
	details := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = render(f.value)
		case FieldWorkspaceID:
			workspace = render(f.value)
		case FieldStep:
			step = render(f.value)
		default:
			details = append(details, f)
		}
	}

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	b.WriteString(when.Local().Format(consoleTimeLayout))
	b.WriteString(" " + levelLabel(record.Level))
	if component != "" {
		b.WriteString(" [" + component + "]")
	}
	if subject := subjectOf(workspace, step); subject != "" {
		b.WriteString(" " + subject)
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}
	b.WriteString(" – " + message)
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')
	for _, f := range details {
		b.WriteString("    - " + f.key + ": " + render(f.value) + "\n")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func subjectOf(workspace, step string) string {
	workspace = strings.TrimSpace(workspace)
	step = strings.TrimSpace(step)
	if workspace == "" {
		return step
	}
	if step == "" {
		return "Workspace " + workspace
	}
	return "Workspace " + workspace + " (" + step + ")"
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, prefix string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return append(dst, field{key: prefix + attr.Key, value: value})
	}
	inner := prefix
	if attr.Key != "" {
		inner += attr.Key + "."
	}
	for _, member := range value.Group() {
		dst = appendField(dst, inner, member)
	}
	return dst
}

// lastValueWins drops repeated keys, keeping the first position and the
// latest value.
func lastValueWins(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func render(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
