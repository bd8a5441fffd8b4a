package main

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"narrator/internal/api"
	"narrator/internal/jobs"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "test-model")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
}

var workspaceLine = regexp.MustCompile(`Workspace (.+) \(([0-9a-f-]+)\)`)

func TestRunGeneratesTranscript(t *testing.T) {
	env := setupCLITestEnv(t)
	doc := filepath.Join(env.docDir, "team_notes.txt")
	if err := os.WriteFile(doc, []byte("Quarterly planning notes for the platform team."), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	out, _, err := runCLI(t, []string{"run", doc, "--style", "casual"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Done")
	requireContains(t, out, "step3/podcast_ready_data.txt")
	match := workspaceLine.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("no workspace line in %q", out)
	}
	if match[1] != "team notes" {
		t.Fatalf("expected workspace named after the file, got %q", match[1])
	}
	id := match[2]

	out, _, err = runCLI(t, []string{"download", id, "step3/podcast_ready_data_readable.txt"}, env.configPath)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	requireContains(t, out, "Speaker 1: Welcome to the show.")
	requireContains(t, out, "Speaker 2: Glad to be here.")

	out, _, err = runCLI(t, []string{"history", id}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "success")
	requireContains(t, out, "casual")

	out, _, err = runCLI(t, []string{"workspace", "show", id}, env.configPath)
	if err != nil {
		t.Fatalf("workspace show: %v", err)
	}
	requireContains(t, out, "casual")
	requireContains(t, out, doc)

	out, _, err = runCLI(t, []string{"status", id}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Done")
}

func TestRunRequiresSource(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "source is required") {
		t.Fatalf("expected missing source error, got %v", err)
	}
}

func TestWorkspaceCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"workspace", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "No workspaces")

	out, _, err = runCLI(t, []string{"workspace", "create", "Research"}, env.configPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	requireContains(t, out, "Created workspace Research")
	id := strings.TrimSuffix(strings.TrimSpace(out[strings.LastIndex(out, "(")+1:]), ")")

	if _, _, err := runCLI(t, []string{"workspace", "rename", id, "Deep Research"}, env.configPath); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, _, err := runCLI(t, []string{"workspace", "settings", id, "--format", "debate"}, env.configPath); err != nil {
		t.Fatalf("settings: %v", err)
	}

	out, _, err = runCLI(t, []string{"workspace", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "Deep Research")
	requireContains(t, out, "debate")

	if _, _, err := runCLI(t, []string{"workspace", "add-source", id, filepath.Join(env.docDir, "missing.txt")}, env.configPath); err == nil {
		t.Fatal("expected a missing file to be rejected")
	}

	if _, _, err := runCLI(t, []string{"workspace", "delete", id}, env.configPath); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := runCLI(t, []string{"workspace", "show", id}, env.configPath); err == nil {
		t.Fatal("expected a deleted workspace to be gone")
	}
}

func TestParseCommandReadsStdin(t *testing.T) {
	input := "Speaker 1: Hello there.\nSpeaker 2: Hi!"
	out, stderr, err := runCLIWithInput(t, []string{"parse"}, "", strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	requireContains(t, stderr, "Parsed 2 turns")
	requireContains(t, out, "Speaker 1: Hello there.")

	out, _, err = runCLIWithInput(t, []string{"parse", "--literal"}, "", strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse --literal: %v", err)
	}
	requireContains(t, out, `('Speaker 1', 'Hello there.')`)

	if _, _, err := runCLIWithInput(t, []string{"parse"}, "", strings.NewReader("   ")); err == nil {
		t.Fatal("expected empty input to fail")
	}
}

func TestChunkCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	input := strings.Repeat("word ", 10)
	out, _, err := runCLIWithInput(t, []string{"chunk", "--size", "15"}, env.configPath, strings.NewReader(input))
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	requireContains(t, out, "--- chunk 1")
	requireContains(t, out, "--- chunk 4")
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
}

func TestJobUpdateFallsBackToPersistedState(t *testing.T) {
	failed := 2
	update, ok := jobUpdate(&api.JobResponse{Last: &jobs.PersistedState{
		Status:      jobs.StatusFailed,
		CurrentStep: 2,
		TotalSteps:  3,
		Error:       "model returned 401",
		FailedStep:  &failed,
	}})
	if !ok || !update.Final {
		t.Fatalf("expected a final update, got %+v", update)
	}
	if update.Failure == nil || update.Failure.Step != 2 {
		t.Fatalf("expected failure at step 2, got %+v", update.Failure)
	}
	if _, ok := jobUpdate(&api.JobResponse{}); ok {
		t.Fatal("expected no update without a job")
	}
}

func TestRenderJobsTable(t *testing.T) {
	now := time.Now()
	table := renderJobsTable([]jobs.Snapshot{{
		WorkspaceID: "ws-1",
		Status:      jobs.StatusRunning,
		CurrentStep: 1,
		TotalSteps:  3,
		StepLabel:   "Extracting text from document...",
		StartedAt:   now.Add(-2 * time.Second),
	}}, now)
	requireContains(t, table, "ws-1")
	requireContains(t, table, "[1/3] Extracting text from document...")
	requireContains(t, table, "2.0s")
}

func TestDaemonStopWhenNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"daemon", "stop"}, env.configPath)
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
