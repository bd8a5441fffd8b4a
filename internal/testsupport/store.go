package testsupport

import (
	"context"
	"testing"

	"narrator/internal/config"
	"narrator/internal/workspace"
)

// MustOpenStore opens a workspace.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *workspace.Store {
	t.Helper()

	store, err := workspace.Open(cfg)
	if err != nil {
		t.Fatalf("workspace.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewWorkspace creates a workspace for tests using the provided store.
func NewWorkspace(t testing.TB, store *workspace.Store, name string) *workspace.Workspace {
	t.Helper()

	ws, err := store.Create(context.Background(), name)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return ws
}
