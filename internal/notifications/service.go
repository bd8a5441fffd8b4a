package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"narrator/internal/config"
	"narrator/internal/jobs"
	"narrator/internal/logging"
)

const userAgent = "narrator/1.0"

// Event names a notification type.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventJobCancelled Event = "job_cancelled"
	EventTest         Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.JobCompleted,
		failed:    cfg.Notifications.JobFailed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	var p payload
	name := stringValue(data, "workspace")
	if name == "" {
		name = "workspace"
	}
	switch event {
	case EventJobCompleted:
		if !n.completed {
			return nil
		}
		message := fmt.Sprintf("✅ Podcast ready: %s", name)
		if outputs := stringValue(data, "outputs"); outputs != "" {
			message += "\nOutputs: " + outputs
		}
		if duration := stringValue(data, "duration"); duration != "" {
			message += "\nTook " + duration
		}
		p = payload{
			title:   "Narrator - Ready",
			message: message,
			tags:    []string{"narrator", "job", "completed"},
		}
	case EventJobFailed:
		if !n.failed {
			return nil
		}
		message := fmt.Sprintf("❌ %s failed", name)
		if step := stringValue(data, "step"); step != "" {
			message += " at step " + step
		}
		if errText := stringValue(data, "error"); errText != "" {
			message += ": " + errText
		}
		p = payload{
			title:    "Narrator - Failed",
			message:  message,
			tags:     []string{"narrator", "job", "failed"},
			priority: "high",
		}
	case EventJobCancelled:
		// the user cancelled it themselves
		return nil
	case EventTest:
		p = payload{
			title:    "Narrator - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"narrator", "test"},
			priority: "low",
		}
	default:
		return nil
	}
	return n.send(ctx, p)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func stringValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// FromSnapshot maps a terminal snapshot to its event and payload. name is
// the workspace's display name.
func FromSnapshot(snap jobs.Snapshot, name string) (Event, Payload) {
	if strings.TrimSpace(name) == "" {
		name = snap.WorkspaceID
	}
	data := Payload{"workspace": name}
	switch snap.Status {
	case jobs.StatusCompleted:
		data["duration"] = snap.Elapsed(time.Now()).Round(time.Second).String()
		return EventJobCompleted, data
	case jobs.StatusFailed:
		if snap.FailedStep != nil {
			data["step"] = *snap.FailedStep
		}
		data["error"] = snap.Error
		return EventJobFailed, data
	default:
		return EventJobCancelled, data
	}
}

// Hook returns a terminal hook for jobs.WithTerminalHook. lookup resolves a
// workspace id to its display name and may be nil.
func Hook(svc Service, lookup func(workspaceID string) string, logger *slog.Logger) func(jobs.Snapshot) {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(snap jobs.Snapshot) {
		name := ""
		if lookup != nil {
			name = lookup(snap.WorkspaceID)
		}
		event, data := FromSnapshot(snap, name)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := svc.Publish(ctx, event, data); err != nil {
			logging.WarnWithContext(logger, "notification failed", "notification_failed",
				logging.Workspace(snap.WorkspaceID),
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "job outcome was not pushed"),
			)
		}
	}
}
