package services

import "context"

type contextKey string

const (
	workspaceIDKey contextKey = "workspace_id"
	stepKey        contextKey = "step"
	windowKey      contextKey = "window"
	requestIDKey   contextKey = "request_id"
)

// WithWorkspaceID annotates context with the workspace identifier.
func WithWorkspaceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, workspaceIDKey, id)
}

// WorkspaceIDFromContext extracts the workspace identifier if present.
func WorkspaceIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(workspaceIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStep annotates context with the pipeline step label.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the step label if present.
func StepFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stepKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithWindow annotates context with the overlap window index.
func WithWindow(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, windowKey, index)
}

// WindowFromContext returns the overlap window index if present.
func WindowFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(windowKey).(int)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
