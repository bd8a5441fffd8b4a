package api

import (
	"narrator/internal/jobs"
	"narrator/internal/poller"
	"narrator/internal/preflight"
	"narrator/internal/workflow"
	"narrator/internal/workspace"
)

// GenerateRequest starts or attaches to a run. An empty Source uses the
// workspace's most recent source; empty choices use the workspace settings.
type GenerateRequest = workflow.Options

// GenerateResponse reports the run after the start-or-attach decision.
type GenerateResponse struct {
	Attached bool          `json:"attached"`
	Update   poller.Update `json:"update"`
}

// JobResponse is one poll of a workspace's job. Active is set while a Job is
// tracked. Otherwise Last holds the persisted state of the previous run, with
// Interrupted set the first time a crashed run is seen.
type JobResponse struct {
	Active      *poller.Update       `json:"active,omitempty"`
	Last        *jobs.PersistedState `json:"last,omitempty"`
	Interrupted bool                 `json:"interrupted"`
}

// CancelResponse reports whether a Job was found to cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// HistoryResponse lists runs newest first.
type HistoryResponse struct {
	Entries []workspace.HistoryEntry `json:"entries"`
}

// WorkspaceListResponse lists workspaces, most recently updated first.
type WorkspaceListResponse struct {
	Workspaces []workspace.Workspace `json:"workspaces"`
}

// CreateWorkspaceRequest creates a workspace, optionally with a first source.
type CreateWorkspaceRequest struct {
	Name     string              `json:"name"`
	Source   string              `json:"source,omitempty"`
	Settings *workspace.Settings `json:"settings,omitempty"`
}

// UpdateWorkspaceRequest renames a workspace or replaces its settings.
type UpdateWorkspaceRequest struct {
	Name     *string             `json:"name,omitempty"`
	Settings *workspace.Settings `json:"settings,omitempty"`
}

// AddSourceRequest attaches a file path or URL.
type AddSourceRequest struct {
	Ref string `json:"ref"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status      string  `json:"status"`
	Version     string  `json:"version"`
	RunningJobs int     `json:"running_jobs"`
	UptimeS     float64 `json:"uptime_s"`
}

// StatusResponse summarises the daemon.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StorePath    string             `json:"store_path"`
	LockFilePath string             `json:"lock_file_path"`
	Jobs         []jobs.Snapshot    `json:"jobs"`
	Checks       []preflight.Result `json:"checks,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// WorkspaceResponse is a workspace with its sources and whether a job is live.
type WorkspaceResponse struct {
	workspace.Workspace
	Running bool `json:"running"`
}

// SourceResponse is an attached source.
type SourceResponse struct {
	Source workspace.Source `json:"source"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
