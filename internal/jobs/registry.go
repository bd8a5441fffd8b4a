package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"narrator/internal/logging"
	"narrator/internal/services"
)

// ErrAlreadyRunning is returned by Start when the workspace has a live Job.
var ErrAlreadyRunning = errors.New("job already running for workspace")

// WorkerFunc runs the pipeline for job. A returned error or a panic fails the
// Job at its current step.
type WorkerFunc func(ctx context.Context, job *Job) error

// Plan is the shape of a run known before the worker starts.
type Plan struct {
	TotalSteps int
	FirstLabel string
}

// Registry holds at most one Job per workspace id.
type Registry struct {
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	onTerminal []func(Snapshot)

	mu   sync.Mutex
	jobs map[string]*Job
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTerminalHook registers fn to receive the final snapshot of every Job
// once its worker has returned.
func WithTerminalHook(fn func(Snapshot)) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.onTerminal = append(r.onTerminal, fn)
		}
	}
}

// NewRegistry constructs an empty Registry. Workers run under a context that
// Shutdown cancels.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		logger: logging.NewComponentLogger(logger, "jobs"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates a Job for workspaceID and runs fn on its own goroutine.
// Callers are expected to check IsRunning first. A Job is never replaced
// while its worker goroutine is still alive, even after a cancellation.
func (r *Registry) Start(workspaceID, workDir string, plan Plan, fn WorkerFunc) (*Job, error) {
	if workspaceID == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "start", "workspace id required", nil)
	}
	if fn == nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "start", "worker required", nil)
	}

	r.mu.Lock()
	if existing, ok := r.jobs[workspaceID]; ok && existing.busy() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, workspaceID)
	}
	if err := r.ctx.Err(); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry shut down: %w", err)
	}
	logger := r.logger.With(logging.String(logging.FieldWorkspaceID, workspaceID))
	job := newJob(uuid.NewString(), workspaceID, workDir, plan, logger)
	r.jobs[workspaceID] = job
	r.wg.Add(1)
	r.mu.Unlock()

	job.Update(func(*Progress) {})
	logger.Info("job started",
		logging.Event("job_start"),
		logging.String("job_id", job.id),
		logging.Int("total_steps", plan.TotalSteps),
	)

	go r.run(job, fn)
	return job, nil
}

func (r *Registry) run(job *Job, fn WorkerFunc) {
	defer r.wg.Done()
	defer close(job.done)

	ctx := services.WithWorkspaceID(r.ctx, job.workspaceID)
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("worker panic: %v", rec)
			}
		}()
		return fn(ctx, job)
	}()

	if err != nil {
		step := job.Snapshot().CurrentStep
		if job.Fail(step, err) {
			logging.ErrorWithContext(job.logger, "job failed", "job_failed",
				logging.Int("failed_step", step),
				logging.Error(err),
			)
		}
	} else if job.Update(func(p *Progress) {
		if p.Status == StatusRunning {
			p.Status = StatusCompleted
		}
	}) {
		job.logger.Debug("worker returned without finishing; marked completed")
	}

	r.mu.Lock()
	if r.jobs[job.workspaceID] == job && job.removed {
		delete(r.jobs, job.workspaceID)
	}
	r.mu.Unlock()

	final := job.Snapshot()
	for _, hook := range r.onTerminal {
		hook(final)
	}
}

// Get returns the Job for workspaceID, or nil.
func (r *Registry) Get(workspaceID string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[workspaceID]
	if !ok || job.removed {
		return nil
	}
	return job
}

// IsRunning reports whether workspaceID has a Job whose status is running
// and whose worker has not returned.
func (r *Registry) IsRunning(workspaceID string) bool {
	job := r.Get(workspaceID)
	return job != nil && job.live()
}

// Cancel requests cooperative cancellation. The Job reads as cancelled
// immediately; its worker stops at the next step boundary. It reports
// whether a Job was found.
func (r *Registry) Cancel(workspaceID string) bool {
	job := r.Get(workspaceID)
	if job == nil {
		return false
	}
	if job.requestCancel() {
		job.logger.Info("job cancelled",
			logging.Event("job_cancelled"),
			logging.Int("current_step", job.Snapshot().CurrentStep),
		)
	}
	return true
}

// Remove drops the Job for workspaceID once it is no longer running. A
// cancelled Job whose worker is still finishing its step disappears from Get
// at once but keeps blocking Start until the worker returns.
func (r *Registry) Remove(workspaceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[workspaceID]
	if !ok || job.removed || job.live() {
		return false
	}
	if job.busy() {
		job.removed = true
		return true
	}
	delete(r.jobs, workspaceID)
	return true
}

// List returns snapshots of every tracked Job.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if !job.removed {
			jobs = append(jobs, job)
		}
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.Snapshot())
	}
	return out
}

// LoadStale is LoadStaleState for a workspace without a live Job.
func (r *Registry) LoadStale(workspaceID, workDir string) (*PersistedState, error) {
	if r.IsRunning(workspaceID) {
		return nil, nil
	}
	return LoadStaleState(workDir)
}

// Shutdown cancels the worker context and waits for workers to return or ctx
// to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// busy reports whether the worker goroutine has not returned yet.
func (j *Job) busy() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// live reports whether the Job is running and its worker has not returned.
func (j *Job) live() bool {
	return j.busy() && j.Snapshot().Status == StatusRunning
}
