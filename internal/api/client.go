package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"narrator/internal/services"
)

// ErrConflict marks a request refused because the workspace has a live job.
var ErrConflict = errors.New("conflict")

// StatusError is a non-2xx daemon response.
type StatusError struct {
	Code    int
	Message string
	Kind    string
	Hint    string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Unwrap maps status codes to the shared error markers.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusConflict:
		return ErrConflict
	}
	switch e.Kind {
	case "configuration":
		return services.ErrConfiguration
	case "external_tool":
		return services.ErrExternalTool
	case "transient":
		return services.ErrTransient
	}
	return nil
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon bound at addr. addr may be a bare
// host:port or a full URL.
func NewClient(addr, token string) *Client {
	base := strings.TrimSpace(addr)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Health reports daemon liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (*NotificationResponse, error) {
	var resp NotificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Generate starts a run for a workspace, or attaches to the one in progress.
func (c *Client) Generate(ctx context.Context, workspaceID string, req GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.do(ctx, http.MethodPost, workspacePath(workspaceID, "generate"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Job polls the job of a workspace.
func (c *Client) Job(ctx context.Context, workspaceID string) (*JobResponse, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodGet, workspacePath(workspaceID, "job"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel requests cancellation of a workspace's job.
func (c *Client) Cancel(ctx context.Context, workspaceID string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.do(ctx, http.MethodPost, workspacePath(workspaceID, "cancel"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists a workspace's runs.
func (c *Client) History(ctx context.Context, workspaceID string) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.do(ctx, http.MethodGet, workspacePath(workspaceID, "history"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Workspaces lists every workspace.
func (c *Client) Workspaces(ctx context.Context) (*WorkspaceListResponse, error) {
	var resp WorkspaceListResponse
	if err := c.do(ctx, http.MethodGet, "/api/workspaces", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateWorkspace creates a workspace.
func (c *Client) CreateWorkspace(ctx context.Context, req CreateWorkspaceRequest) (*WorkspaceResponse, error) {
	var resp WorkspaceResponse
	if err := c.do(ctx, http.MethodPost, "/api/workspaces", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Workspace fetches one workspace with its sources.
func (c *Client) Workspace(ctx context.Context, workspaceID string) (*WorkspaceResponse, error) {
	var resp WorkspaceResponse
	if err := c.do(ctx, http.MethodGet, workspacePath(workspaceID, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateWorkspace renames a workspace or replaces its settings.
func (c *Client) UpdateWorkspace(ctx context.Context, workspaceID string, req UpdateWorkspaceRequest) (*WorkspaceResponse, error) {
	var resp WorkspaceResponse
	if err := c.do(ctx, http.MethodPatch, workspacePath(workspaceID, ""), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteWorkspace removes a workspace and its files.
func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	return c.do(ctx, http.MethodDelete, workspacePath(workspaceID, ""), nil, nil)
}

// AddSource attaches a file path or URL to a workspace.
func (c *Client) AddSource(ctx context.Context, workspaceID, ref string) (*SourceResponse, error) {
	var resp SourceResponse
	if err := c.do(ctx, http.MethodPost, workspacePath(workspaceID, "sources"), AddSourceRequest{Ref: ref}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveSource detaches a source.
func (c *Client) RemoveSource(ctx context.Context, workspaceID string, sourceID int64) error {
	return c.do(ctx, http.MethodDelete, workspacePath(workspaceID, fmt.Sprintf("sources/%d", sourceID)), nil, nil)
}

// Download streams a step output into w.
func (c *Client) Download(ctx context.Context, workspaceID, file string, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, workspacePath(workspaceID, "files/"+strings.TrimLeft(file, "/")), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	statusErr := &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		statusErr.Message = body.Error
		statusErr.Kind = body.Kind
		statusErr.Hint = body.Hint
	}
	return statusErr
}

func workspacePath(id, suffix string) string {
	path := "/api/workspaces/" + url.PathEscape(id)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}
