package daemon

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"narrator/internal/api"
	"narrator/internal/jobs"
	"narrator/internal/logging"
	"narrator/internal/services"
	"narrator/internal/services/llm"
	"narrator/internal/testsupport"
	"narrator/internal/workflow"
	"narrator/internal/workspace"
)

func routeReply(req testsupport.ChatRequest) (string, int) {
	first := req.Messages[0].Content
	switch {
	case strings.HasPrefix(first, "You are a meticulous text pre-processor"):
		return "Clean text.", 0
	case strings.HasPrefix(first, "You are an award-winning scriptwriter"):
		return "Speaker 1: Welcome to the show.\nSpeaker 2: Glad to be here.", 0
	case strings.HasPrefix(first, "You are an international oscar-winning"):
		return `[("Speaker 1", "Welcome to the show."), ("Speaker 2", "Glad to be here.")]`, 0
	}
	return "unexpected prompt", http.StatusBadRequest
}

// gateLoader blocks extraction until release is closed.
type gateLoader struct {
	release chan struct{}
}

func (g gateLoader) Extract(ctx context.Context, _ string, _ int) (string, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "Raw document text.", nil
}

type apiHarness struct {
	daemon *Daemon
	base   string
	client *api.Client
	store  *workspace.Store
	gate   chan struct{}
	docDir string
}

func newAPIHarness(t *testing.T, token string) *apiHarness {
	t.Helper()
	fake := testsupport.NewFakeLLM(t, routeReply)
	cfg := testsupport.NewConfig(t, testsupport.WithLLMEndpoint(fake.URL()))
	cfg.Paths.APIToken = token
	store := testsupport.MustOpenStore(t, cfg)
	registry := jobs.NewRegistry(logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})
	client := llm.NewClient(llm.Config{BaseURL: fake.URL(), Model: "test-model", TimeoutSeconds: 5}, llm.WithRetryMaxAttempts(1))
	gate := make(chan struct{})
	worker := workflow.NewWorker(cfg, workflow.Dependencies{
		Loader:  gateLoader{release: gate},
		Client:  client,
		Speech:  client,
		History: store,
	}, logging.NewNop())
	d, err := New(cfg, Dependencies{Store: store, Registry: registry, Worker: worker}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(d.api.routes())
	t.Cleanup(srv.Close)
	return &apiHarness{
		daemon: d,
		base:   srv.URL,
		client: api.NewClient(srv.URL, token),
		store:  store,
		gate:   gate,
		docDir: testsupport.BaseDir(cfg),
	}
}

func (h *apiHarness) waitFinal(t *testing.T, id string) api.JobResponse {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := h.client.Job(context.Background(), id)
		if err != nil {
			t.Fatalf("Job: %v", err)
		}
		if resp.Active != nil && resp.Active.Final {
			return *resp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return api.JobResponse{}
}

func TestAPIGenerateLifecycle(t *testing.T) {
	h := newAPIHarness(t, "")
	ctx := context.Background()
	doc := testsupport.WriteText(t, filepath.Join(h.docDir, "docs", "my_notes.txt"), "Raw document text.")

	ws, err := h.client.CreateWorkspace(ctx, api.CreateWorkspaceRequest{Source: doc})
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if ws.Name != "my notes" || len(ws.Sources) != 1 || ws.Sources[0].Kind != workspace.SourceFile {
		t.Fatalf("unexpected workspace %+v", ws)
	}

	started, err := h.client.Generate(ctx, ws.ID, api.GenerateRequest{Style: "casual"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if started.Attached || started.Update.Progress != "[1/3] "+workflow.LabelExtract {
		t.Fatalf("unexpected start %+v", started)
	}

	again, err := h.client.Generate(ctx, ws.ID, api.GenerateRequest{})
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !again.Attached || again.Update.Snapshot.ID != started.Update.Snapshot.ID {
		t.Fatalf("expected to attach to the running job, got %+v", again)
	}

	if jobs := h.daemon.Status().Jobs; len(jobs) != 1 || jobs[0].WorkspaceID != ws.ID {
		t.Fatalf("expected one tracked job, got %+v", jobs)
	}
	health, err := h.client.Health(ctx)
	if err != nil || health.RunningJobs != 1 || health.Status != "ok" {
		t.Fatalf("unexpected health %+v (%v)", health, err)
	}

	if err := h.client.DeleteWorkspace(ctx, ws.ID); !errors.Is(err, api.ErrConflict) {
		t.Fatalf("expected conflict deleting a busy workspace, got %v", err)
	}

	close(h.gate)
	final := h.waitFinal(t, ws.ID)
	if final.Active.Snapshot.Status != jobs.StatusCompleted || final.Active.Progress != "Done" {
		t.Fatalf("unexpected final update %+v", final.Active)
	}

	after, err := h.client.Job(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Job after final: %v", err)
	}
	if after.Active != nil || after.Last == nil || after.Last.Status != jobs.StatusCompleted || after.Interrupted {
		t.Fatalf("expected persisted completed state, got %+v", after)
	}

	var buf bytes.Buffer
	if err := h.client.Download(ctx, ws.ID, workflow.TranscriptFile, &buf); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !strings.Contains(buf.String(), "Speaker 1") {
		t.Fatalf("unexpected transcript %q", buf.String())
	}
	if err := h.client.Download(ctx, ws.ID, "step9/missing.txt", &buf); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing file, got %v", err)
	}

	var history *api.HistoryResponse
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		history, err = h.client.History(ctx, ws.ID)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history.Entries) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(history.Entries) != 1 || history.Entries[0].Status != workspace.HistorySuccess || history.Entries[0].Style != "casual" {
		t.Fatalf("unexpected history %+v", history)
	}

	remembered, err := h.client.Workspace(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Workspace: %v", err)
	}
	if remembered.Settings.Style != "casual" || remembered.Settings.Format != "podcast" || remembered.Running {
		t.Fatalf("expected settings to be remembered, got %+v", remembered)
	}

	if err := h.client.DeleteWorkspace(ctx, ws.ID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	if _, err := h.client.Workspace(ctx, ws.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected deleted workspace to be gone, got %v", err)
	}
}

func TestAPICancelStopsAtStepBoundary(t *testing.T) {
	h := newAPIHarness(t, "")
	ctx := context.Background()
	doc := testsupport.WriteText(t, filepath.Join(h.docDir, "doc.md"), "# Title")
	ws, err := h.client.CreateWorkspace(ctx, api.CreateWorkspaceRequest{Name: "Cancel me", Source: doc})
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if _, err := h.client.Generate(ctx, ws.ID, api.GenerateRequest{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	resp, err := h.client.Cancel(ctx, ws.ID)
	if err != nil || !resp.Cancelled {
		t.Fatalf("Cancel: %+v, %v", resp, err)
	}
	var statusErr *api.StatusError
	if _, err := h.client.Generate(ctx, ws.ID, api.GenerateRequest{}); !errors.As(err, &statusErr) || statusErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while the cancelled run is stopping, got %v", err)
	}
	close(h.gate)
	final := h.waitFinal(t, ws.ID)
	if final.Active.Snapshot.Status != jobs.StatusCancelled || final.Active.Progress != "Cancelled" {
		t.Fatalf("unexpected final update %+v", final.Active)
	}

	none, err := h.client.Cancel(ctx, ws.ID)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if none.Cancelled {
		t.Fatal("expected nothing to cancel once the job is gone")
	}
}

func TestAPIReportsInterruptedRunOnce(t *testing.T) {
	h := newAPIHarness(t, "")
	ctx := context.Background()
	ws := testsupport.NewWorkspace(t, h.store, "Crashed")
	state := `{"status":"running","current_step":2,"total_steps":3,"step_label":"` + workflow.LabelScript + `","step_times":[1.5]}`
	testsupport.WriteText(t, jobs.StatePath(h.store.Dir(ws.ID)), state)

	first, err := h.client.Job(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if !first.Interrupted || first.Last == nil || first.Last.Status != jobs.StatusInterrupted || first.Last.CurrentStep != 2 {
		t.Fatalf("expected interrupted state, got %+v", first)
	}
	second, err := h.client.Job(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if second.Interrupted || second.Last == nil || second.Last.Status != jobs.StatusInterrupted {
		t.Fatalf("expected the interruption to be reported once, got %+v", second)
	}
}

func TestAPIValidationErrors(t *testing.T) {
	h := newAPIHarness(t, "")
	ctx := context.Background()
	ws := testsupport.NewWorkspace(t, h.store, "Empty")

	if _, err := h.client.Generate(ctx, ws.ID, api.GenerateRequest{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without sources, got %v", err)
	}
	doc := testsupport.WriteText(t, filepath.Join(h.docDir, "doc.txt"), "text")
	if _, err := h.client.Generate(ctx, ws.ID, api.GenerateRequest{Source: doc, Format: "opera"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown format, got %v", err)
	}
	if _, err := h.client.AddSource(ctx, ws.ID, filepath.Join(h.docDir, "image.png")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing file, got %v", err)
	}
	if _, err := h.client.Generate(ctx, "nope", api.GenerateRequest{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown workspace, got %v", err)
	}
	if err := h.client.Download(ctx, ws.ID, "../../etc/passwd", &bytes.Buffer{}); err == nil {
		t.Fatal("expected path escape to be refused")
	}
}

func TestAPISourcesAndRename(t *testing.T) {
	h := newAPIHarness(t, "")
	ctx := context.Background()
	ws := testsupport.NewWorkspace(t, h.store, "Draft")

	src, err := h.client.AddSource(ctx, ws.ID, "https://example.com/article")
	if err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if src.Source.Kind != workspace.SourceURL {
		t.Fatalf("expected url source, got %+v", src.Source)
	}
	name := "Final"
	updated, err := h.client.UpdateWorkspace(ctx, ws.ID, api.UpdateWorkspaceRequest{Name: &name})
	if err != nil {
		t.Fatalf("UpdateWorkspace: %v", err)
	}
	if updated.Name != "Final" || len(updated.Sources) != 1 {
		t.Fatalf("unexpected workspace %+v", updated)
	}
	if err := h.client.RemoveSource(ctx, ws.ID, src.Source.ID); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}
	list, err := h.client.Workspaces(ctx)
	if err != nil {
		t.Fatalf("Workspaces: %v", err)
	}
	if len(list.Workspaces) != 1 || list.Workspaces[0].Name != "Final" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	h := newAPIHarness(t, "secret")
	ctx := context.Background()

	if _, err := h.client.Workspaces(ctx); err != nil {
		t.Fatalf("authorized request failed: %v", err)
	}
	var statusErr *api.StatusError
	anon := api.NewClient(strings.TrimPrefix(h.base, "http://"), "wrong")
	if _, err := anon.Workspaces(ctx); !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if _, err := anon.Health(ctx); err != nil {
		t.Fatalf("health should not require a token: %v", err)
	}
}

func TestAPIEchoesRequestID(t *testing.T) {
	h := newAPIHarness(t, "")

	req, err := http.NewRequest(http.MethodGet, h.base+"/api/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	resp, err = http.Get(h.base + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}
