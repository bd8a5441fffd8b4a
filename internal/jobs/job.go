package jobs

import (
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"narrator/internal/logging"
)

// MaxErrorChars bounds the error text stored on a Job.
const MaxErrorChars = 500

// Progress holds the mutable fields of a Job. Update hands a copy to the
// caller's mutation and commits it under the Job lock.
type Progress struct {
	Status      Status
	CurrentStep int
	TotalSteps  int
	StepLabel   string
	StepTimes   []float64
	Error       string
	FailedStep  *int
	LogText     string
}

// Snapshot is a point-in-time copy of a Job. It shares no memory with the Job.
type Snapshot struct {
	ID              string    `json:"id"`
	WorkspaceID     string    `json:"workspace_id"`
	Status          Status    `json:"status"`
	CurrentStep     int       `json:"current_step"`
	TotalSteps      int       `json:"total_steps"`
	StepLabel       string    `json:"step_label"`
	StepTimes       []float64 `json:"step_times"`
	Error           string    `json:"error,omitempty"`
	FailedStep      *int      `json:"failed_step,omitempty"`
	LogText         string    `json:"log_text,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CancelRequested bool      `json:"cancel_requested"`
}

// Terminal reports whether the snapshot is in a final state.
func (s Snapshot) Terminal() bool { return s.Status.Terminal() }

// Elapsed is the wall time since the run started.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// Job is one pipeline run for one workspace.
type Job struct {
	id          string
	workspaceID string
	workDir     string
	startedAt   time.Time
	logger      *slog.Logger
	done        chan struct{}
	removed     bool // guarded by Registry.mu

	mu              sync.Mutex
	progress        Progress
	cancelRequested bool
}

func newJob(id, workspaceID, workDir string, plan Plan, logger *slog.Logger) *Job {
	return &Job{
		id:          id,
		workspaceID: workspaceID,
		workDir:     workDir,
		startedAt:   time.Now(),
		logger:      logger,
		done:        make(chan struct{}),
		progress: Progress{
			Status:      StatusRunning,
			CurrentStep: 1,
			TotalSteps:  plan.TotalSteps,
			StepLabel:   plan.FirstLabel,
			StepTimes:   []float64{},
		},
	}
}

// ID returns the run identifier.
func (j *Job) ID() string { return j.id }

// WorkspaceID returns the owning workspace.
func (j *Job) WorkspaceID() string { return j.workspaceID }

// WorkDir returns the directory holding the run's outputs and state file.
func (j *Job) WorkDir() string { return j.workDir }

// Done is closed when the worker goroutine has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// Snapshot returns a copy of the current state taken under the Job lock.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() Snapshot {
	p := j.progress
	return Snapshot{
		ID:              j.id,
		WorkspaceID:     j.workspaceID,
		Status:          p.Status,
		CurrentStep:     p.CurrentStep,
		TotalSteps:      p.TotalSteps,
		StepLabel:       p.StepLabel,
		StepTimes:       slices.Clone(p.StepTimes),
		Error:           p.Error,
		FailedStep:      cloneInt(p.FailedStep),
		LogText:         p.LogText,
		StartedAt:       j.startedAt,
		CancelRequested: j.cancelRequested,
	}
}

// CancelRequested reports whether a cancellation was requested. Workers poll
// it between steps.
func (j *Job) CancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// Update applies mutate to a copy of the progress fields, commits it and
// persists the state file, all under the Job lock. On a terminal Job only
// LogText changes are kept and nothing is written. It reports whether
// progress fields changed.
func (j *Job) Update(mutate func(*Progress)) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	next := j.progress
	next.StepTimes = slices.Clone(j.progress.StepTimes)
	next.FailedStep = cloneInt(j.progress.FailedStep)
	mutate(&next)

	if j.progress.Status.Terminal() {
		j.progress.LogText = next.LogText
		return false
	}
	next.Error = truncate(next.Error, MaxErrorChars)
	j.progress = next
	j.persistLocked()
	return true
}

// Advance records the duration of the step just finished and moves to the
// next one.
func (j *Job) Advance(elapsed float64, nextLabel string) bool {
	return j.Update(func(p *Progress) {
		p.StepTimes = append(p.StepTimes, elapsed)
		p.CurrentStep++
		p.StepLabel = nextLabel
	})
}

// Finish records the duration of the last step and marks the run completed.
// CurrentStep moves one past TotalSteps so StepTimes stays one shorter than
// CurrentStep.
func (j *Job) Finish(elapsed float64) bool {
	return j.Update(func(p *Progress) {
		p.StepTimes = append(p.StepTimes, elapsed)
		p.CurrentStep++
		p.Status = StatusCompleted
	})
}

// Fail marks the run failed at step.
func (j *Job) Fail(step int, err error) bool {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return j.Update(func(p *Progress) {
		p.Status = StatusFailed
		p.Error = msg
		p.FailedStep = &step
	})
}

// AppendLog adds one line to the run's log text.
func (j *Job) AppendLog(line string) {
	j.Update(func(p *Progress) {
		p.LogText += line + "\n"
	})
}

func (j *Job) requestCancel() bool {
	j.mu.Lock()
	j.cancelRequested = true
	j.mu.Unlock()
	return j.Update(func(p *Progress) {
		p.Status = StatusCancelled
	})
}

func (j *Job) persistLocked() {
	if j.workDir == "" {
		return
	}
	p := j.progress
	state := PersistedState{
		Status:      p.Status,
		CurrentStep: p.CurrentStep,
		TotalSteps:  p.TotalSteps,
		StepLabel:   p.StepLabel,
		StepTimes:   p.StepTimes,
		Error:       p.Error,
		FailedStep:  p.FailedStep,
		GenStart:    float64(j.startedAt.UnixNano()) / 1e9,
		NotebookID:  j.workspaceID,
	}
	if err := writeState(j.workDir, state); err != nil {
		j.logger.Warn("persist job state failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_state_persist_failed"),
			logging.String(logging.FieldErrorHint, "check workspace directory permissions and free space"),
			logging.String(logging.FieldImpact, "crash recovery will not see the latest progress"),
		)
	}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
