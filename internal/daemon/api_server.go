package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"narrator/internal/api"
	"narrator/internal/config"
	"narrator/internal/jobs"
	"narrator/internal/logging"
	"narrator/internal/preflight"
	"narrator/internal/services"
	"narrator/internal/textutil"
	"narrator/internal/workflow"
	"narrator/internal/workspace"
)

// Version is reported by /api/health.
var Version = "dev"

const (
	maxRequestBody  = 1 << 20
	requestIDHeader = "X-Request-ID"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(s.token, fn))
	}

	// health stays open so supervisors can probe without the token
	mux.HandleFunc("GET /api/health", s.handleHealth)
	handle("GET /api/status", s.handleStatus)
	handle("POST /api/notifications/test", s.handleTestNotification)
	handle("GET /api/workspaces", s.handleListWorkspaces)
	handle("POST /api/workspaces", s.handleCreateWorkspace)
	handle("GET /api/workspaces/{id}", s.handleGetWorkspace)
	handle("PATCH /api/workspaces/{id}", s.handleUpdateWorkspace)
	handle("DELETE /api/workspaces/{id}", s.handleDeleteWorkspace)
	handle("POST /api/workspaces/{id}/sources", s.handleAddSource)
	handle("DELETE /api/workspaces/{id}/sources/{sourceID}", s.handleRemoveSource)
	handle("POST /api/workspaces/{id}/generate", s.handleGenerate)
	handle("GET /api/workspaces/{id}/job", s.handleJob)
	handle("POST /api/workspaces/{id}/cancel", s.handleCancel)
	handle("GET /api/workspaces/{id}/history", s.handleHistory)
	handle("GET /api/workspaces/{id}/files/{step}/{name}", s.handleFile)
	return s.withRequestID(mux)
}

// withRequestID tags each request with X-Request-ID, reusing the caller's
// value when it sent one, and logs the request with it.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := services.WithRequestID(r.Context(), id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.log()).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("duration_ms", int(time.Since(start).Milliseconds())),
		)
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := 0
	for _, snap := range s.daemon.registry.List() {
		if snap.Status == jobs.StatusRunning {
			running++
		}
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:      "ok",
		Version:     Version,
		RunningJobs: running,
		UptimeS:     workspace.RoundDuration(s.daemon.Uptime()),
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	resp := api.StatusResponse{
		Running:      status.Running,
		PID:          status.PID,
		StorePath:    status.StorePath,
		LockFilePath: status.LockFilePath,
		Jobs:         status.Jobs,
	}
	if r.URL.Query().Get("checks") != "" {
		resp.Checks = preflight.RunAll(r.Context(), s.daemon.cfg, false)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
}

func (s *apiServer) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.daemon.store.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []workspace.Workspace{}
	}
	s.writeJSON(w, http.StatusOK, api.WorkspaceListResponse{Workspaces: list})
}

func (s *apiServer) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req api.CreateWorkspaceRequest
	if !s.decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" && strings.TrimSpace(req.Source) != "" {
		name = textutil.WorkspaceName(req.Source)
	}
	ctx := r.Context()
	if req.Source != "" {
		// validate before creating so a bad path leaves nothing behind
		if _, _, err := classifySource(req.Source); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	ws, err := s.daemon.store.Create(ctx, name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if req.Settings != nil {
		if err := s.daemon.store.SaveSettings(ctx, ws.ID, *req.Settings); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	if req.Source != "" {
		if _, err := s.daemon.AddSource(ctx, ws.ID, req.Source); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	s.writeWorkspace(w, r, ws.ID, http.StatusCreated)
}

func (s *apiServer) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	s.writeWorkspace(w, r, r.PathValue("id"), http.StatusOK)
}

func (s *apiServer) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateWorkspaceRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if req.Name != nil {
		if err := s.daemon.store.Rename(r.Context(), id, *req.Name); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	if req.Settings != nil {
		if err := s.daemon.store.SaveSettings(r.Context(), id, *req.Settings); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	s.writeWorkspace(w, r, id, http.StatusOK)
}

func (s *apiServer) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.DeleteWorkspace(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req api.AddSourceRequest
	if !s.decode(w, r, &req) {
		return
	}
	src, err := s.daemon.AddSource(r.Context(), r.PathValue("id"), req.Ref)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SourceResponse{Source: src})
}

func (s *apiServer) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(r.PathValue("sourceID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}
	if err := s.daemon.store.RemoveSource(r.Context(), r.PathValue("id"), sourceID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}
	update, attached, err := s.daemon.Generate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	status := http.StatusAccepted
	if attached {
		status = http.StatusOK
	}
	s.writeJSON(w, status, api.GenerateResponse{Attached: attached, Update: update})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.Poll(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.CancelResponse{Cancelled: s.daemon.Cancel(r.PathValue("id"))})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.daemon.store.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []workspace.HistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: entries})
}

func (s *apiServer) handleFile(w http.ResponseWriter, r *http.Request) {
	ws, err := s.daemon.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	name := r.PathValue("name")
	target := workflow.OutputPath(s.daemon.store.Dir(ws.ID), path.Join(r.PathValue("step"), name))
	if target == "" {
		s.writeError(w, http.StatusBadRequest, "invalid file path")
		return
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", textutil.DownloadName(ws.Name, name)))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(target)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
	return false
}

func (s *apiServer) writeWorkspace(w http.ResponseWriter, r *http.Request, id string, status int) {
	ws, err := s.daemon.store.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, status, api.WorkspaceResponse{Workspace: *ws, Running: s.daemon.registry.IsRunning(ws.ID)})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ErrJobRunning), errors.Is(err, jobs.ErrAlreadyRunning):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log().Warn("api request failed", logging.Error(err))
	}
	s.writeJSON(w, status, api.ErrorResponse{
		Error: err.Error(),
		Kind:  services.Kind(err),
		Hint:  workflow.Hint(err.Error()),
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
