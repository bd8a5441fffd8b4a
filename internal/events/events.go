package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"narrator/internal/jobs"
	"narrator/internal/logging"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "narrator"

// EventHeader identifies one published event.
type EventHeader struct {
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	EventID    string    `json:"event_id"`
}

// JobEvent describes a job reaching a status.
type JobEvent struct {
	Header      EventHeader `json:"header"`
	WorkspaceID string      `json:"workspace_id"`
	Status      jobs.Status `json:"status"`
	CurrentStep int         `json:"current_step"`
	TotalSteps  int         `json:"total_steps"`
	StepTimes   []float64   `json:"step_times"`
	DurationS   float64     `json:"duration_s"`
	Error       string      `json:"error,omitempty"`
	FailedStep  *int        `json:"failed_step,omitempty"`
}

// NewJobEvent builds the event for snap.
func NewJobEvent(snap jobs.Snapshot, now time.Time) JobEvent {
	return JobEvent{
		Header: EventHeader{
			Timestamp:  now.UTC(),
			WorkflowID: snap.ID,
			EventID:    uuid.NewString(),
		},
		WorkspaceID: snap.WorkspaceID,
		Status:      snap.Status,
		CurrentStep: snap.CurrentStep,
		TotalSteps:  snap.TotalSteps,
		StepTimes:   snap.StepTimes,
		DurationS:   snap.Elapsed(now).Seconds(),
		Error:       snap.Error,
		FailedStep:  snap.FailedStep,
	}
}

// Subject returns "<prefix>.job.<status>".
func Subject(prefix string, status jobs.Status) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s.job.%s", prefix, status)
}

// Publisher sends JobEvents on a NATS connection.
type Publisher struct {
	conn   *nats.Conn
	owned  bool
	prefix string
	logger *slog.Logger
}

// Connect dials url and returns a Publisher that owns the connection.
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("nats url required")
	}
	conn, err := nats.Connect(url,
		nats.Name("narrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := NewPublisher(conn, prefix, logger)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. Close leaves conn open.
func NewPublisher(conn *nats.Conn, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logging.NewComponentLogger(logger, "events"),
	}
}

// PublishJob publishes snap on its status subject.
func (p *Publisher) PublishJob(snap jobs.Snapshot) error {
	if p == nil || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(NewJobEvent(snap, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	subject := Subject(p.prefix, snap.Status)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("job event published",
		logging.String("subject", subject),
		logging.Workspace(snap.WorkspaceID),
	)
	return nil
}

// Hook returns a terminal hook for jobs.WithTerminalHook. Failures are
// logged and dropped.
func (p *Publisher) Hook() func(jobs.Snapshot) {
	return func(snap jobs.Snapshot) {
		if err := p.PublishJob(snap); err != nil {
			logging.WarnWithContext(p.logger, "job event not published", "event_publish_failed",
				logging.Workspace(snap.WorkspaceID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "subscribers will miss this job outcome"),
			)
		}
	}
}

// Close flushes pending messages and closes an owned connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.FlushTimeout(2 * time.Second)
	if p.owned {
		p.conn.Close()
	}
}
