package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"narrator/internal/config"
	"narrator/internal/daemon"
	"narrator/internal/events"
	"narrator/internal/jobs"
	"narrator/internal/loaders"
	"narrator/internal/logging"
	"narrator/internal/notifications"
	"narrator/internal/poller"
	"narrator/internal/preflight"
	"narrator/internal/services/llm"
	"narrator/internal/workflow"
	"narrator/internal/workspace"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// shutdownGrace bounds how long running jobs get to reach a step boundary.
const shutdownGrace = 30 * time.Second

// Run starts the narrator daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("narratord-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update narratord.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, "narratord.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(cfg, logger)
	if err != nil {
		logger.Error("build daemon runtime", logging.Error(err))
		return err
	}
	defer rt.Close()
	cleanupLogs(signalCtx, logger, cfg, rt.Store, logPath)

	if err := rt.Daemon.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check paths.api_bind and that no other narratord is running"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("narrator daemon shutting down")
	rt.Shutdown(shutdownGrace)
	return nil
}

// Runtime is a wired daemon and the resources it owns. The CLI builds one
// in-process when no narratord is reachable.
type Runtime struct {
	Daemon   *daemon.Daemon
	Registry *jobs.Registry
	Poller   *poller.Poller
	Store    *workspace.Store

	logger  *slog.Logger
	closers []func()
}

// Build opens the store and wires the registry, worker and daemon for cfg.
// Notification and NATS hooks are attached when configured.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	store, err := workspace.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open workspace store: %w", err)
	}
	rt := &Runtime{Store: store, logger: logger}

	hooks := []jobs.RegistryOption{
		jobs.WithTerminalHook(notifications.Hook(notifications.NewService(cfg), workspaceNamer(store), logger)),
	}
	if url := strings.TrimSpace(cfg.Events.NATSURL); url != "" {
		publisher, err := events.Connect(url, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			logging.WarnWithContext(logger, "nats unavailable; lifecycle events disabled", "nats_connect_failed",
				logging.String("url", url),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.nats_url"),
				logging.String(logging.FieldImpact, "job lifecycle events will not be published"),
			)
		} else {
			rt.closers = append(rt.closers, publisher.Close)
			hooks = append(hooks, jobs.WithTerminalHook(publisher.Hook()))
		}
	}
	rt.Registry = jobs.NewRegistry(logger, hooks...)

	chat := llm.NewClient(llm.Config(cfg.GetLLM()))
	speech := llm.NewClient(llm.Config(cfg.AudioLLM()))
	worker := workflow.NewWorker(cfg, workflow.Dependencies{
		Loader:  loaders.New(loaders.WithLogger(logger)),
		Client:  chat,
		Speech:  speech,
		History: store,
	}, logger)

	rt.Poller = poller.New(rt.Registry, cfg.PollInterval(), logger)
	rt.Daemon, err = daemon.New(cfg, daemon.Dependencies{
		Store:    store,
		Registry: rt.Registry,
		Poller:   rt.Poller,
		Worker:   worker,
	}, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return rt, nil
}

// Shutdown cancels running jobs and waits up to grace for their workers to
// reach a step boundary.
func (rt *Runtime) Shutdown(grace time.Duration) {
	for _, snap := range rt.Registry.List() {
		if snap.Status == jobs.StatusRunning {
			rt.Registry.Cancel(snap.WorkspaceID)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := rt.Registry.Shutdown(ctx); err != nil {
		rt.logger.Warn("jobs still running at shutdown", logging.Error(err))
	}
}

// Close stops the daemon and releases the store and event connections.
func (rt *Runtime) Close() {
	if rt.Daemon != nil {
		_ = rt.Daemon.Close()
	} else if rt.Store != nil {
		_ = rt.Store.Close()
	}
	for _, closeFn := range rt.closers {
		closeFn()
	}
}

// workspaceNamer resolves workspace ids to display names for notifications.
func workspaceNamer(store *workspace.Store) func(string) string {
	return func(id string) string {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ws, err := store.Get(ctx, id)
		if err != nil {
			return ""
		}
		return ws.Name
	}
}

func cleanupLogs(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *workspace.Store, current string) {
	targets := []logging.RetentionTarget{
		{Dir: cfg.Paths.LogDir, Pattern: "narratord-*.log", Exclude: []string{current}},
	}
	list, err := store.List(ctx)
	if err != nil {
		logger.Warn("list workspaces for log cleanup", logging.Error(err))
	}
	for _, ws := range list {
		targets = append(targets, logging.RetentionTarget{
			Dir:     filepath.Join(store.Dir(ws.ID), workflow.RunLogDir),
			Pattern: "run-*.log",
		})
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, targets...)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "narratord.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("llm_base_url", cfg.LLM.BaseURL),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("api_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("nats_enabled", strings.TrimSpace(cfg.Events.NATSURL) != ""),
	}
	for _, result := range preflight.RunAll(ctx, cfg, false) {
		attrs = append(attrs, logging.Bool(result.Name, result.Passed))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
