package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"narrator/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	baseDir    string
	docDir     string
	fake       *testsupport.FakeLLM
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("NARRATOR_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	fake := testsupport.NewFakeLLM(t, scriptedReply)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, base, fake.URL())

	docDir := filepath.Join(base, "docs")
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		t.Fatalf("mkdir docs: %v", err)
	}
	return &cliTestEnv{
		configPath: configPath,
		baseDir:    base,
		docDir:     docDir,
		fake:       fake,
	}
}

// scriptedReply answers each pipeline prompt with a fixed two-speaker dialogue.
func scriptedReply(req testsupport.ChatRequest) (string, int) {
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

func writeTestConfig(t *testing.T, path, base, llmURL string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
workspace_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[llm]
base_url = %q
model = "test-model"
timeout_seconds = 5

[engine]
poll_interval_ms = 10
min_free_disk_mb = 1
`, filepath.Join(base, "workspaces"), filepath.Join(base, "logs"), llmURL)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, configPath, nil)
}

func runCLIWithInput(t *testing.T, args []string, configPath string, stdin io.Reader) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	flags := []string{"--local"}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
