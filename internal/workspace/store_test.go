package workspace_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"narrator/internal/services"
	"narrator/internal/testsupport"
	"narrator/internal/workspace"
)

func TestCreateGetAndSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ws := testsupport.NewWorkspace(t, store, "  Tide tables ")
	if ws.ID == "" || ws.Name != "Tide tables" {
		t.Fatalf("unexpected workspace %#v", ws)
	}
	if info, err := os.Stat(store.Dir(ws.ID)); err != nil || !info.IsDir() {
		t.Fatalf("expected workspace directory, stat err=%v", err)
	}

	if _, err := store.AddSource(ctx, ws.ID, workspace.SourceFile, "/tmp/tides.pdf"); err != nil {
		t.Fatalf("AddSource file: %v", err)
	}
	if _, err := store.AddSource(ctx, ws.ID, workspace.SourceURL, "https://example.com/moon"); err != nil {
		t.Fatalf("AddSource url: %v", err)
	}
	if _, err := store.AddSource(ctx, ws.ID, "ftp", "x"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}

	got, err := store.Get(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Sources) != 2 || got.Sources[0].Kind != workspace.SourceFile || got.Sources[1].Ref != "https://example.com/moon" {
		t.Fatalf("unexpected sources %#v", got.Sources)
	}

	if err := store.RemoveSource(ctx, ws.ID, got.Sources[0].ID); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}
	sources, err := store.Sources(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected one source left, got %d", len(sources))
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Rename(context.Background(), "nope", "x"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Rename, got %v", err)
	}
}

func TestCreateRequiresName(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.Create(context.Background(), "   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRenameSettingsAndList(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	first := testsupport.NewWorkspace(t, store, "first")
	second := testsupport.NewWorkspace(t, store, "second")

	if err := store.Rename(ctx, first.ID, "renamed"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	settings := workspace.Settings{Format: "interview", Length: "short", Style: "casual", Language: "French"}
	if err := store.SaveSettings(ctx, first.ID, settings); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 workspaces, got %d", len(list))
	}
	if list[0].ID != first.ID || list[0].Name != "renamed" || list[0].Settings != settings {
		t.Fatalf("expected most recently updated first with settings, got %#v", list[0])
	}
	if list[1].ID != second.ID {
		t.Fatalf("unexpected order %#v", list)
	}
}

func TestDeleteRemovesDirectoryAndHistory(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	ws := testsupport.NewWorkspace(t, store, "doomed")
	if err := store.AddHistory(ctx, ws.ID, workspace.HistoryEntry{Status: workspace.HistorySuccess}); err != nil {
		t.Fatalf("AddHistory: %v", err)
	}

	if err := store.Delete(ctx, ws.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(store.Dir(ws.ID)); !os.IsNotExist(err) {
		t.Fatalf("expected directory removed, stat err=%v", err)
	}
	history, err := store.History(ctx, ws.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected history cascade, got %d entries", len(history))
	}
}

func TestHistoryNewestFirstAndCapped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.HistoryLimit = 3
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	ws := testsupport.NewWorkspace(t, store, "busy")

	for i := 0; i < 5; i++ {
		entry := workspace.HistoryEntry{
			Format:    fmt.Sprintf("run-%d", i),
			Status:    workspace.HistoryFailed,
			DurationS: float64(i),
			StepTimes: []float64{1.5},
			Error:     "boom",
		}
		if err := store.AddHistory(ctx, ws.ID, entry); err != nil {
			t.Fatalf("AddHistory %d: %v", i, err)
		}
	}

	history, err := store.History(ctx, ws.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(history))
	}
	for i, want := range []string{"run-4", "run-3", "run-2"} {
		if history[i].Format != want {
			t.Fatalf("entry %d: got %q want %q", i, history[i].Format, want)
		}
	}
	if history[0].Outputs == nil || history[0].Timestamp.IsZero() {
		t.Fatalf("expected defaults filled in, got %#v", history[0])
	}
}

func TestAddHistoryUnknownWorkspace(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	err := store.AddHistory(context.Background(), "ghost", workspace.HistoryEntry{Status: workspace.HistorySuccess})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoundDuration(t *testing.T) {
	if got := workspace.RoundDuration(12345 * time.Millisecond); got != 12.3 {
		t.Fatalf("expected 12.3, got %v", got)
	}
}
