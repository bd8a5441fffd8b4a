package preflight

import (
	"context"

	"narrator/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// RunAll executes every preflight check for cfg. The model endpoint check is
// skipped when checkLLM is false, since it issues a real completion.
func RunAll(ctx context.Context, cfg *config.Config, checkLLM bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Workspace directory", cfg.Paths.WorkspaceDir),
		CheckDiskSpace("Free disk space", cfg.Paths.WorkspaceDir, int64(cfg.Engine.MinFreeDiskMB)),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckBinary("pdftotext", "pdftotext", "PDF text extraction", true))

	if checkLLM {
		results = append(results, CheckLLM(ctx, "Model endpoint", cfg.GetLLM()))
		if audio := cfg.AudioLLM(); audio.BaseURL != cfg.GetLLM().BaseURL {
			results = append(results, CheckEndpoint(ctx, "Speech endpoint", audio.BaseURL))
		}
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
