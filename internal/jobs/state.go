package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"narrator/internal/fileutil"
)

// StateFileName is the per-workspace mirror of the durable job fields.
const StateFileName = "pipeline_state.json"

// PersistedState is the on-disk form of a Job.
type PersistedState struct {
	Status      Status    `json:"status"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	StepLabel   string    `json:"step_label"`
	StepTimes   []float64 `json:"step_times"`
	Error       string    `json:"error"`
	FailedStep  *int      `json:"failed_step"`
	GenStart    float64   `json:"gen_start"`
	NotebookID  string    `json:"notebook_id"`
}

// StatePath returns the state file location inside workDir.
func StatePath(workDir string) string {
	return filepath.Join(workDir, StateFileName)
}

// ReadState decodes the state file in workDir. A missing file yields nil.
func ReadState(workDir string) (*PersistedState, error) {
	data, err := os.ReadFile(StatePath(workDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read job state: %w", err)
	}
	var state PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode job state: %w", err)
	}
	return &state, nil
}

func writeState(workDir string, state PersistedState) error {
	return fileutil.WriteJSONAtomic(StatePath(workDir), state)
}

// LoadStaleState detects a run that died with the process. When the state
// file in workDir still says running, it is rewritten as interrupted and the
// rewritten state is returned. Every other case returns nil, so the signal
// fires once per crash. Callers must not use it for a workspace that has a
// live Job; Registry.LoadStale guards that.
func LoadStaleState(workDir string) (*PersistedState, error) {
	state, err := ReadState(workDir)
	if err != nil || state == nil {
		return nil, err
	}
	if state.Status != StatusRunning {
		return nil, nil
	}
	state.Status = StatusInterrupted
	if err := writeState(workDir, *state); err != nil {
		return state, fmt.Errorf("mark job state interrupted: %w", err)
	}
	return state, nil
}
