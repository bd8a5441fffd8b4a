package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"narrator/internal/jobs"
	"narrator/internal/logging"
	"narrator/internal/services"
)

// DefaultInterval is the sleep between snapshot reads.
const DefaultInterval = 1500 * time.Millisecond

// ErrNoJob is returned by Attach when nothing is tracked for the workspace.
var ErrNoJob = errors.New("no job for workspace")

// Poller starts or attaches to Jobs and reports their progress.
type Poller struct {
	registry *jobs.Registry
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Poller over registry.
func New(registry *jobs.Registry, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		registry: registry,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "poller"),
		now:      time.Now,
	}
}

// StartOrAttach returns the running Job for workspaceID, or starts fn as a
// new one. attached reports which happened.
func (p *Poller) StartOrAttach(ctx context.Context, workspaceID, workDir string, plan jobs.Plan, fn jobs.WorkerFunc) (job *jobs.Job, attached bool, err error) {
	logger := logging.WithContext(services.WithWorkspaceID(ctx, workspaceID), p.logger)
	if p.registry.IsRunning(workspaceID) {
		if job := p.registry.Get(workspaceID); job != nil {
			logger.Info("attached to running job", logging.Event("job_attach"), logging.String("job_id", job.ID()))
			return job, true, nil
		}
	}
	job, err = p.registry.Start(workspaceID, workDir, plan, fn)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		// lost a race with a concurrent start
		if existing := p.registry.Get(workspaceID); existing != nil && existing.Snapshot().Status == jobs.StatusRunning {
			return existing, true, nil
		}
		// a cancelled worker is still finishing its step
		return nil, false, fmt.Errorf("previous run is still stopping: %w", err)
	}
	if err != nil {
		return nil, false, err
	}
	return job, false, nil
}

// Poll takes one snapshot of the Job tracked for workspaceID. A terminal Job
// is removed from the registry as it is reported. ok is false when nothing is
// tracked.
func (p *Poller) Poll(workspaceID string) (update Update, ok bool) {
	job := p.registry.Get(workspaceID)
	if job == nil {
		return Update{}, false
	}
	return p.poll(job), true
}

func (p *Poller) poll(job *jobs.Job) Update {
	update := Describe(job.Snapshot(), p.now())
	if update.Final {
		p.registry.Remove(job.WorkspaceID())
	}
	return update
}

// Run starts or attaches, then polls until the Job is terminal, calling emit
// with every Update. The final Update is also returned and the Job is
// removed from the registry. If ctx ends first, Run detaches and leaves the
// Job running so a later call can reattach.
func (p *Poller) Run(ctx context.Context, workspaceID, workDir string, plan jobs.Plan, fn jobs.WorkerFunc, emit func(Update)) (Update, error) {
	job, _, err := p.StartOrAttach(ctx, workspaceID, workDir, plan, fn)
	if err != nil {
		return Update{}, err
	}
	return p.watch(ctx, job, emit)
}

// Attach polls an existing Job without starting one.
func (p *Poller) Attach(ctx context.Context, workspaceID string, emit func(Update)) (Update, error) {
	job := p.registry.Get(workspaceID)
	if job == nil {
		return Update{}, fmt.Errorf("%w: %s", ErrNoJob, workspaceID)
	}
	return p.watch(ctx, job, emit)
}

func (p *Poller) watch(ctx context.Context, job *jobs.Job, emit func(Update)) (Update, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		update := p.poll(job)
		if emit != nil {
			emit(update)
		}
		if update.Final {
			return update, nil
		}
		select {
		case <-ctx.Done():
			return update, ctx.Err()
		case <-job.Done():
		case <-ticker.C:
		}
	}
}
