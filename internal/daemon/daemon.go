package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"narrator/internal/api"
	"narrator/internal/config"
	"narrator/internal/jobs"
	"narrator/internal/loaders"
	"narrator/internal/logging"
	"narrator/internal/notifications"
	"narrator/internal/poller"
	"narrator/internal/services"
	"narrator/internal/workflow"
	"narrator/internal/workspace"
)

// ErrJobRunning is returned for changes refused while a workspace has a live
// job.
var ErrJobRunning = errors.New("workspace has a running job")

// Dependencies are the collaborators the daemon coordinates.
type Dependencies struct {
	Store    *workspace.Store
	Registry *jobs.Registry
	Poller   *poller.Poller
	Worker   *workflow.Worker
	Notifier notifications.Service
}

// Daemon coordinates the job engine and the HTTP API, and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *workspace.Store
	registry *jobs.Registry
	poller   *poller.Poller
	worker   *workflow.Worker
	notifier notifications.Service
	api      *apiServer
	started  time.Time

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StorePath    string
	LockFilePath string
	Jobs         []jobs.Snapshot
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Registry == nil || deps.Worker == nil {
		return nil, errors.New("daemon requires config, store, registry, and worker")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Poller == nil {
		deps.Poller = poller.New(deps.Registry, cfg.PollInterval(), logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "narratord.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    deps.Store,
		registry: deps.Registry,
		poller:   deps.Poller,
		worker:   deps.Worker,
		notifier: deps.Notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and starts the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another narrator daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.started = time.Now()
	d.running.Store(true)
	d.logger.Info("narrator daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops the API server and releases the daemon lock. Running jobs are
// left to the registry's owner to shut down.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("narrator daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listen address, or "" when the API is disabled.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StorePath:    d.cfg.StorePath(),
		LockFilePath: d.lockPath,
		Jobs:         d.registry.List(),
	}
}

// Uptime reports how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	if !d.running.Load() {
		return 0
	}
	return time.Since(d.started)
}

// Generate starts a run for workspaceID, or attaches to the live one. Empty
// choices fall back to the workspace settings, and an empty source to the
// most recently added one. A source not yet attached is added first.
func (d *Daemon) Generate(ctx context.Context, workspaceID string, opts workflow.Options) (poller.Update, bool, error) {
	if job := d.registry.Get(workspaceID); job != nil && d.registry.IsRunning(workspaceID) {
		return poller.Describe(job.Snapshot(), time.Now()), true, nil
	}

	ws, err := d.store.Get(ctx, workspaceID)
	if err != nil {
		return poller.Update{}, false, err
	}
	opts, err = d.resolveSource(ctx, ws, applySettings(opts, ws.Settings))
	if err != nil {
		return poller.Update{}, false, err
	}
	opts, err = opts.Normalize()
	if err != nil {
		return poller.Update{}, false, err
	}
	settings := workspace.Settings{
		Format:     opts.Format,
		Length:     opts.Length,
		Style:      opts.Style,
		Language:   opts.Language,
		Preference: opts.Preference,
	}
	if settings != ws.Settings {
		if err := d.store.SaveSettings(ctx, ws.ID, settings); err != nil {
			d.logger.Warn("failed to remember workspace settings", logging.Workspace(ws.ID), logging.Error(err))
		}
	}

	job, attached, err := d.poller.StartOrAttach(ctx, ws.ID, d.store.Dir(ws.ID), opts.Plan(), d.worker.Func(opts))
	if err != nil {
		return poller.Update{}, false, err
	}
	if !attached {
		d.logger.Info("generation started",
			logging.Workspace(ws.ID),
			logging.String("format", opts.Format),
			logging.String("source", opts.Source),
			logging.Int("total_steps", opts.Plan().TotalSteps),
		)
	}
	return poller.Describe(job.Snapshot(), time.Now()), attached, nil
}

// Poll reports a workspace's job. A terminal Job is returned once and then
// dropped from the registry; afterwards the persisted state is reported.
func (d *Daemon) Poll(ctx context.Context, workspaceID string) (api.JobResponse, error) {
	if _, err := d.store.Get(ctx, workspaceID); err != nil {
		return api.JobResponse{}, err
	}
	if update, ok := d.poller.Poll(workspaceID); ok {
		return api.JobResponse{Active: &update}, nil
	}

	dir := d.store.Dir(workspaceID)
	stale, err := d.registry.LoadStale(workspaceID, dir)
	if err != nil {
		d.logger.Warn("failed to inspect job state", logging.Workspace(workspaceID), logging.Error(err))
	}
	if stale != nil {
		return api.JobResponse{Last: stale, Interrupted: true}, nil
	}
	last, err := jobs.ReadState(dir)
	if err != nil {
		return api.JobResponse{}, err
	}
	return api.JobResponse{Last: last}, nil
}

// Cancel requests cancellation of a workspace's job.
func (d *Daemon) Cancel(workspaceID string) bool {
	return d.registry.Cancel(workspaceID)
}

// DeleteWorkspace removes a workspace unless a job is running for it.
func (d *Daemon) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if d.registry.IsRunning(workspaceID) {
		return ErrJobRunning
	}
	if err := d.store.Delete(ctx, workspaceID); err != nil {
		return err
	}
	d.registry.Remove(workspaceID)
	d.logger.Info("workspace deleted", logging.Workspace(workspaceID))
	return nil
}

// AddSource attaches ref to a workspace. Local paths are made absolute and
// must point at a supported file.
func (d *Daemon) AddSource(ctx context.Context, workspaceID, ref string) (workspace.Source, error) {
	kind, ref, err := classifySource(ref)
	if err != nil {
		return workspace.Source{}, err
	}
	return d.store.AddSource(ctx, workspaceID, kind, ref)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) resolveSource(ctx context.Context, ws *workspace.Workspace, opts workflow.Options) (workflow.Options, error) {
	if strings.TrimSpace(opts.Source) == "" {
		if len(ws.Sources) == 0 {
			return opts, services.Wrap(services.ErrValidation, "daemon", "generate", "workspace has no sources", nil)
		}
		opts.Source = ws.Sources[len(ws.Sources)-1].Ref
		return opts, nil
	}
	kind, ref, err := classifySource(opts.Source)
	if err != nil {
		return opts, err
	}
	opts.Source = ref
	for _, src := range ws.Sources {
		if src.Ref == ref {
			return opts, nil
		}
	}
	if _, err := d.store.AddSource(ctx, ws.ID, kind, ref); err != nil {
		return opts, err
	}
	return opts, nil
}

func applySettings(opts workflow.Options, settings workspace.Settings) workflow.Options {
	if strings.TrimSpace(opts.Format) == "" {
		opts.Format = settings.Format
	}
	if strings.TrimSpace(opts.Length) == "" {
		opts.Length = settings.Length
	}
	if strings.TrimSpace(opts.Style) == "" {
		opts.Style = settings.Style
	}
	if strings.TrimSpace(opts.Language) == "" {
		opts.Language = settings.Language
	}
	if strings.TrimSpace(opts.Preference) == "" {
		opts.Preference = settings.Preference
	}
	return opts
}

func classifySource(ref string) (workspace.SourceKind, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", services.Wrap(services.ErrValidation, "daemon", "source", "reference required", nil)
	}
	if loaders.IsURL(ref) {
		return workspace.SourceURL, ref, nil
	}
	absPath, err := filepath.Abs(ref)
	if err != nil {
		return "", "", fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, "daemon", "source", "stat source file", err)
	}
	if info.IsDir() {
		return "", "", services.Wrap(services.ErrValidation, "daemon", "source", fmt.Sprintf("source path %q is a directory", absPath), nil)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	for _, supported := range loaders.SupportedExtensions() {
		if ext == supported {
			return workspace.SourceFile, absPath, nil
		}
	}
	return "", "", services.Wrap(services.ErrValidation, "daemon", "source", fmt.Sprintf("unsupported file extension %q", ext), nil)
}
