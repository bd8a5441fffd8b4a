package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"narrator/internal/config"
	"narrator/internal/services/llm"
)

// CheckLLM verifies that the model endpoint answers a tiny JSON completion.
// It uses a 30-second timeout and a single attempt (no retries). Local
// endpoints need no API key.
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if strings.TrimSpace(cfg.Model) == "" {
		return Result{Name: name, Detail: "model not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (%s)", cfg.BaseURL, cfg.Model)}
}

// CheckEndpoint verifies that an HTTP endpoint accepts connections. Any HTTP
// status counts as reachable.
func CheckEndpoint(ctx context.Context, name, baseURL string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("bad url (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (%d)", base, resp.StatusCode)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeDiskMB returns the space available to unprivileged users on the
// filesystem holding path, in MiB.
func FreeDiskMB(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize) / (1024 * 1024), nil
}

// LowDiskError reports a filesystem below the free-space floor.
type LowDiskError struct {
	FreeMB int64
	MinMB  int64
}

func (e *LowDiskError) Error() string {
	return fmt.Sprintf("Low disk space: %d MB free. At least %d MB recommended.", e.FreeMB, e.MinMB)
}

// EnsureDiskSpace returns a *LowDiskError when path has less than minMB free.
// A filesystem that cannot be inspected passes.
func EnsureDiskSpace(path string, minMB int64) error {
	if minMB <= 0 {
		return nil
	}
	free, err := FreeDiskMB(path)
	if err != nil {
		return nil
	}
	if free < minMB {
		return &LowDiskError{FreeMB: free, MinMB: minMB}
	}
	return nil
}

// CheckDiskSpace is EnsureDiskSpace as a Result.
func CheckDiskSpace(name, path string, minMB int64) Result {
	free, err := FreeDiskMB(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if minMB > 0 && free < minMB {
		return Result{Name: name, Detail: (&LowDiskError{FreeMB: free, MinMB: minMB}).Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d MB free", free)}
}

// CheckBinary reports whether command is on PATH.
func CheckBinary(name, command, description string, optional bool) Result {
	if _, err := exec.LookPath(command); err != nil {
		return Result{Name: name, Optional: optional, Detail: fmt.Sprintf("binary %q not found (%s)", command, description)}
	}
	return Result{Name: name, Optional: optional, Passed: true, Detail: description}
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (model endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (model endpoint unreachable)"
	}
	return err.Error()
}
