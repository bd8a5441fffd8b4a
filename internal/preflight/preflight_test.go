package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"narrator/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestEnsureDiskSpace(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureDiskSpace(dir, 1); err != nil {
		t.Fatalf("expected temp dir to have 1 MB free: %v", err)
	}
	err := EnsureDiskSpace(dir, 1<<50)
	var low *LowDiskError
	if !errors.As(err, &low) {
		t.Fatalf("expected LowDiskError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Low disk space: ") || !strings.HasSuffix(err.Error(), "MB recommended.") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := EnsureDiskSpace(filepath.Join(dir, "missing"), 500); err != nil {
		t.Fatalf("uninspectable path should pass, got %v", err)
	}
}

func TestCheckDiskSpace(t *testing.T) {
	if result := CheckDiskSpace("disk", t.TempDir(), 1); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result := CheckDiskSpace("disk", t.TempDir(), 1<<50); result.Passed {
		t.Fatal("expected failure for absurd floor")
	}
}

func TestCheckBinary(t *testing.T) {
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "pdftotext"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)
	if result := CheckBinary("pdftotext", "pdftotext", "PDF text extraction", true); !result.Passed {
		t.Fatalf("expected stub to be found: %s", result.Detail)
	}
	result := CheckBinary("missing", "clearly-not-present-binary", "nothing", true)
	if result.Passed || !result.Optional {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(Failed([]Result{result})) != 0 {
		t.Fatal("optional failures should not be reported as failed")
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "Model endpoint", config.LLMConfig{BaseURL: srv.URL, Model: "test"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "Model endpoint", config.LLMConfig{BaseURL: srv.URL, Model: "test"})
	if result.Passed {
		t.Fatal("expected failure for server error")
	}
}

func TestCheckLLM_MissingModel(t *testing.T) {
	if result := CheckLLM(context.Background(), "Model endpoint", config.LLMConfig{BaseURL: "http://localhost"}); result.Passed {
		t.Fatal("expected failure for missing model")
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	if result := CheckEndpoint(context.Background(), "Speech endpoint", srv.URL); !result.Passed {
		t.Fatalf("any HTTP answer should pass, got %s", result.Detail)
	}
	if result := CheckEndpoint(context.Background(), "Speech endpoint", ""); result.Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestRunAllSkipsModelWhenAsked(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkspaceDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Engine.MinFreeDiskMB = 1
	results := RunAll(context.Background(), &cfg, false)
	for _, r := range results {
		if r.Name == "Model endpoint" {
			t.Fatal("model check should be skipped")
		}
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}
