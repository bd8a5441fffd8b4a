package poller_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"narrator/internal/jobs"
	"narrator/internal/logging"
	"narrator/internal/poller"
)

func newRegistry(t *testing.T) *jobs.Registry {
	t.Helper()
	registry := jobs.NewRegistry(logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})
	return registry
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		name string
		snap jobs.Snapshot
		want string
	}{
		{"no steps yet", jobs.Snapshot{CurrentStep: 1, TotalSteps: 3}, "ETA: estimating..."},
		{"seconds", jobs.Snapshot{CurrentStep: 2, TotalSteps: 3, StepTimes: []float64{12.5}}, "ETA: ~12s"},
		{"minutes", jobs.Snapshot{CurrentStep: 3, TotalSteps: 5, StepTimes: []float64{60, 125}}, "ETA: ~3m 5s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := poller.FormatETA(tc.snap); got != tc.want {
				t.Fatalf("FormatETA = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDescribeFailureCarriesHint(t *testing.T) {
	step := 2
	u := poller.Describe(jobs.Snapshot{
		Status:     jobs.StatusFailed,
		Error:      "dial tcp 127.0.0.1:11434: connect: connection refused",
		FailedStep: &step,
	}, time.Now())
	if !u.Final || u.Failure == nil {
		t.Fatalf("expected final failure update, got %+v", u)
	}
	if u.Failure.Step != 2 || u.Failure.Hint == "" {
		t.Fatalf("unexpected failure %+v", u.Failure)
	}
	if !strings.HasPrefix(u.Progress, "Step 2 failed: dial tcp") {
		t.Fatalf("unexpected progress %q", u.Progress)
	}
}

func TestDescribeRunning(t *testing.T) {
	u := poller.Describe(jobs.Snapshot{Status: jobs.StatusRunning, CurrentStep: 2, TotalSteps: 4, StepLabel: "Generating transcript..."}, time.Now())
	if u.Final || u.Progress != "[2/4] Generating transcript..." || u.ETA != "ETA: estimating..." {
		t.Fatalf("unexpected update %+v", u)
	}
}

func TestRunPollsUntilTerminalAndRemoves(t *testing.T) {
	registry := newRegistry(t)
	p := poller.New(registry, 5*time.Millisecond, nil)
	release := make(chan struct{})

	worker := func(_ context.Context, job *jobs.Job) error {
		<-release
		job.Advance(0.01, "second")
		job.Finish(0.01)
		return nil
	}

	var (
		mu      sync.Mutex
		updates []poller.Update
	)
	emit := func(u poller.Update) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
		if len(updates) == 2 {
			close(release)
		}
	}

	final, err := p.Run(context.Background(), "nb1", t.TempDir(), jobs.Plan{TotalSteps: 2, FirstLabel: "first"}, worker, emit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Snapshot.Status != jobs.StatusCompleted || !final.Final {
		t.Fatalf("unexpected final update %+v", final)
	}
	mu.Lock()
	first := updates[0]
	mu.Unlock()
	if first.Snapshot.Status != jobs.StatusRunning || first.Snapshot.CurrentStep >= first.Snapshot.TotalSteps {
		t.Fatalf("expected mid-run progress first, got %+v", first.Snapshot)
	}
	if registry.Get("nb1") != nil {
		t.Fatal("expected job removed after terminal snapshot")
	}
}

func TestRunAttachesToRunningJob(t *testing.T) {
	registry := newRegistry(t)
	p := poller.New(registry, 5*time.Millisecond, nil)
	release := make(chan struct{})
	var starts int
	var mu sync.Mutex
	worker := func(context.Context, *jobs.Job) error {
		mu.Lock()
		starts++
		mu.Unlock()
		<-release
		return nil
	}
	plan := jobs.Plan{TotalSteps: 1, FirstLabel: "only"}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := p.Run(ctx, "nb1", t.TempDir(), plan, worker, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected detach on deadline, got %v", err)
	}
	if !registry.IsRunning("nb1") {
		t.Fatal("detaching must leave the job running")
	}

	job, attached, err := p.StartOrAttach(context.Background(), "nb1", t.TempDir(), plan, worker)
	if err != nil || !attached {
		t.Fatalf("expected attach, got attached=%v err=%v", attached, err)
	}
	close(release)
	<-job.Done()

	final, err := p.Attach(context.Background(), "nb1", nil)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if final.Snapshot.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Snapshot.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if starts != 1 {
		t.Fatalf("expected a single worker, got %d", starts)
	}
}

func TestCancelStopsLabelUpdates(t *testing.T) {
	registry := newRegistry(t)
	p := poller.New(registry, 5*time.Millisecond, nil)
	cancelled := make(chan struct{})

	worker := func(_ context.Context, job *jobs.Job) error {
		<-cancelled
		job.Advance(1, "should not appear")
		return nil
	}
	job, _, err := p.StartOrAttach(context.Background(), "nb1", t.TempDir(), jobs.Plan{TotalSteps: 3, FirstLabel: "first"}, worker)
	if err != nil {
		t.Fatalf("StartOrAttach: %v", err)
	}
	registry.Cancel("nb1")
	if got := job.Snapshot().Status; got != jobs.StatusCancelled {
		t.Fatalf("expected cancelled immediately, got %s", got)
	}
	close(cancelled)
	<-job.Done()

	final, err := p.Attach(context.Background(), "nb1", nil)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if final.Snapshot.Status != jobs.StatusCancelled || final.Snapshot.StepLabel != "first" {
		t.Fatalf("label changed after cancel: %+v", final.Snapshot)
	}
}

func TestAttachWithoutJob(t *testing.T) {
	p := poller.New(newRegistry(t), 0, nil)
	if _, err := p.Attach(context.Background(), "missing", nil); !errors.Is(err, poller.ErrNoJob) {
		t.Fatalf("expected ErrNoJob, got %v", err)
	}
}

func TestPollReportsTerminalJobOnce(t *testing.T) {
	registry := newRegistry(t)
	p := poller.New(registry, 0, nil)
	job, err := registry.Start("nb1", t.TempDir(), jobs.Plan{TotalSteps: 1, FirstLabel: "only"}, func(_ context.Context, job *jobs.Job) error {
		job.Finish(0.01)
		return nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-job.Done()

	update, ok := p.Poll("nb1")
	if !ok || !update.Final || update.Snapshot.Status != jobs.StatusCompleted {
		t.Fatalf("expected final completed update, got ok=%v %+v", ok, update)
	}
	if _, ok := p.Poll("nb1"); ok {
		t.Fatal("terminal job should be dropped after it is reported")
	}
}

func TestStartOrAttachRefusesStoppingJob(t *testing.T) {
	registry := newRegistry(t)
	p := poller.New(registry, 0, nil)
	release := make(chan struct{})
	worker := func(context.Context, *jobs.Job) error {
		<-release
		return nil
	}
	plan := jobs.Plan{TotalSteps: 2, FirstLabel: "first"}

	job, _, err := p.StartOrAttach(context.Background(), "nb1", t.TempDir(), plan, worker)
	if err != nil {
		t.Fatalf("StartOrAttach: %v", err)
	}
	registry.Cancel("nb1")

	got, attached, err := p.StartOrAttach(context.Background(), "nb1", t.TempDir(), plan, worker)
	if !errors.Is(err, jobs.ErrAlreadyRunning) || attached || got != nil {
		t.Fatalf("expected ErrAlreadyRunning while stopping, got job=%v attached=%v err=%v", got, attached, err)
	}

	close(release)
	<-job.Done()
	next, attached, err := p.StartOrAttach(context.Background(), "nb1", t.TempDir(), plan, worker)
	if err != nil || attached || next == job {
		t.Fatalf("expected a fresh run once stopped, got attached=%v err=%v", attached, err)
	}
	<-next.Done()
}
