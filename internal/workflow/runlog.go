package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"narrator/internal/jobs"
	"narrator/internal/logging"
)

// RunLogDir is the workspace subdirectory holding per-run log files.
const RunLogDir = "logs"

// runLog tees a worker's records into the Job's log text and a per-run file
// under the workspace.
type runLog struct {
	logger *slog.Logger
	file   *os.File
}

func openRunLog(base *slog.Logger, job *jobs.Job, format, level string) (*runLog, error) {
	lvl := logging.ParseLevel(level)
	capture, err := logging.NewHandler(jobLogWriter{job: job}, "console", lvl, false)
	if err != nil {
		return nil, err
	}
	handlers := []slog.Handler{capture}

	rl := &runLog{}
	if dir := job.WorkDir(); dir != "" {
		path := filepath.Join(dir, RunLogDir, runLogName(job, time.Now()))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure run log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open run log: %w", err)
		}
		if strings.TrimSpace(format) == "" {
			format = "json"
		}
		fileHandler, err := logging.NewHandler(file, format, lvl, false)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		rl.file = file
		handlers = append(handlers, fileHandler)
	}
	rl.logger = logging.TeeLogger(base, handlers...)
	return rl, nil
}

func (r *runLog) Close() {
	if r != nil && r.file != nil {
		_ = r.file.Close()
	}
}

func runLogName(job *jobs.Job, now time.Time) string {
	id := job.ID()
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("run-%s-%s.log", now.UTC().Format("20060102T150405"), id)
}

// jobLogWriter appends each formatted record to the Job's log text.
type jobLogWriter struct {
	job *jobs.Job
}

func (w jobLogWriter) Write(p []byte) (int, error) {
	if line := strings.TrimRight(string(p), "\n"); line != "" {
		w.job.AppendLog(line)
	}
	return len(p), nil
}
