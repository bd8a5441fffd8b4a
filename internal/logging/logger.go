package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Options describes logger construction parameters. Paths may be files or the
// names stdout and stderr; both lists are merged and deduplicated.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

// New builds the process logger. Debug level or Development adds source
// locations.
func New(opts Options) (*slog.Logger, error) {
	level := ParseLevel(opts.Level)
	paths := slices.Concat(opts.OutputPaths, opts.ErrorOutputPaths)
	if len(paths) == 0 {
		paths = []string{"stdout", "stderr"}
	}
	out, err := openSinks(paths)
	if err != nil {
		return nil, err
	}
	handler, err := NewHandler(out, opts.Format, level, opts.Development || level <= slog.LevelDebug)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewHandler builds a console or json handler writing to w.
func NewHandler(w io.Writer, format string, level slog.Leveler, addSource bool) (slog.Handler, error) {
	if level == nil {
		level = slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return newPrettyHandler(w, level, addSource), nil
	case "json":
		return newJSONHandler(w, level, addSource), nil
	}
	return nil, fmt.Errorf("log format: unsupported value %q", format)
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func openSinks(paths []string) (io.Writer, error) {
	var writers []io.Writer
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		w, err := openSink(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openSink(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log dir for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
