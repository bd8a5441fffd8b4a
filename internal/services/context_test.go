package services_test

import (
	"context"
	"testing"

	"narrator/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithWorkspaceID(ctx, "nb1")
	ctx = services.WithStep(ctx, "transcript")
	ctx = services.WithWindow(ctx, 3)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.WorkspaceIDFromContext(ctx); !ok || id != "nb1" {
		t.Fatalf("unexpected workspace id: %v %v", id, ok)
	}
	if step, ok := services.StepFromContext(ctx); !ok || step != "transcript" {
		t.Fatalf("unexpected step: %v %v", step, ok)
	}
	if idx, ok := services.WindowFromContext(ctx); !ok || idx != 3 {
		t.Fatalf("unexpected window: %v %v", idx, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStep(ctx, "")
	ctx = services.WithWorkspaceID(ctx, "")
	if _, ok := services.StepFromContext(ctx); ok {
		t.Fatal("expected no step value")
	}
	if _, ok := services.WorkspaceIDFromContext(ctx); ok {
		t.Fatal("expected no workspace value")
	}
}
