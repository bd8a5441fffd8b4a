package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"narrator/internal/config"
	"narrator/internal/services"
)

const defaultHistoryLimit = 20

// Store manages workspace persistence backed by SQLite.
type Store struct {
	db           *sql.DB
	path         string
	root         string
	historyLimit int
}

// Open initializes or connects to the workspace database under the configured
// workspace root.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	store, err := OpenPath(cfg.StorePath(), cfg.Paths.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	if cfg.Engine.HistoryLimit > 0 {
		store.historyLimit = cfg.Engine.HistoryLimit
	}
	return store, nil
}

// OpenPath opens the database at dbPath. Workspace directories are created
// under root.
func OpenPath(dbPath, root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	// foreign_keys is per connection, so it rides on the DSN for every pooled one.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, root: root, historyLimit: defaultHistoryLimit}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dir returns the on-disk directory of workspace id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Create inserts a new workspace and creates its directory.
func (s *Store) Create(ctx context.Context, name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "workspace", "create", "name required", nil)
	}
	id := uuid.NewString()
	if err := os.MkdirAll(s.Dir(id), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}
	now := timestamp(time.Now())
	if err := s.exec(ctx,
		`INSERT INTO workspaces (id, name, settings_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, "{}", now, now,
	); err != nil {
		return nil, fmt.Errorf("insert workspace: %w", err)
	}
	return s.Get(ctx, id)
}

// Get returns the workspace with its sources. A missing workspace is an
// ErrNotFound error.
func (s *Store) Get(ctx context.Context, id string) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, settings_json, created_at, updated_at FROM workspaces WHERE id = ?`, id)
	ws, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	sources, err := s.Sources(ctx, id)
	if err != nil {
		return nil, err
	}
	ws.Sources = sources
	return ws, nil
}

// List returns every workspace, most recently updated first. Sources are not
// loaded.
func (s *Store) List(ctx context.Context) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, settings_json, created_at, updated_at FROM workspaces ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, *ws)
	}
	return out, rows.Err()
}

// Rename changes the display name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return services.Wrap(services.ErrValidation, "workspace", "rename", "name required", nil)
	}
	return s.touch(ctx, id, `UPDATE workspaces SET name = ?, updated_at = ? WHERE id = ?`, name, timestamp(time.Now()), id)
}

// SaveSettings stores the generation choices for the next run.
func (s *Store) SaveSettings(ctx context.Context, id string, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.touch(ctx, id, `UPDATE workspaces SET settings_json = ?, updated_at = ? WHERE id = ?`, string(data), timestamp(time.Now()), id)
}

// Delete removes the workspace row and its directory.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.touch(ctx, id, `DELETE FROM workspaces WHERE id = ?`, id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(id)); err != nil {
		return fmt.Errorf("remove workspace directory: %w", err)
	}
	return nil
}

// AddSource appends a source to the workspace.
func (s *Store) AddSource(ctx context.Context, id string, kind SourceKind, ref string) (Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Source{}, services.Wrap(services.ErrValidation, "workspace", "add source", "reference required", nil)
	}
	if kind != SourceFile && kind != SourceURL {
		return Source{}, services.Wrap(services.ErrValidation, "workspace", "add source", fmt.Sprintf("unknown kind %q", kind), nil)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return Source{}, err
	}
	now := time.Now().UTC()
	var sourceID int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO sources (workspace_id, kind, ref, added_at) VALUES (?, ?, ?, ?)`,
			id, string(kind), ref, timestamp(now))
		if err != nil {
			return err
		}
		sourceID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Source{}, fmt.Errorf("insert source: %w", err)
	}
	_ = s.exec(ctx, `UPDATE workspaces SET updated_at = ? WHERE id = ?`, timestamp(now), id)
	return Source{ID: sourceID, Kind: kind, Ref: ref, AddedAt: now}, nil
}

// RemoveSource deletes one source.
func (s *Store) RemoveSource(ctx context.Context, id string, sourceID int64) error {
	return s.touch(ctx, id, `DELETE FROM sources WHERE workspace_id = ? AND id = ?`, id, sourceID)
}

// Sources lists a workspace's sources in insertion order.
func (s *Store) Sources(ctx context.Context, id string) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, ref, added_at FROM sources WHERE workspace_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var (
			src   Source
			kind  string
			added string
		)
		if err := rows.Scan(&src.ID, &kind, &src.Ref, &added); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.Kind = SourceKind(kind)
		src.AddedAt = parseTime(added)
		out = append(out, src)
	}
	return out, rows.Err()
}

// AddHistory records a run and trims the workspace's history to the limit.
func (s *Store) AddHistory(ctx context.Context, id string, entry HistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Outputs == nil {
		entry.Outputs = []string{}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE workspaces SET updated_at = ? WHERE id = ?`, timestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touch workspace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (workspace_id, entry_json, created_at) VALUES (?, ?, ?)`,
		id, string(data), timestamp(entry.Timestamp)); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE workspace_id = ? AND id NOT IN (
            SELECT id FROM history WHERE workspace_id = ? ORDER BY id DESC LIMIT ?
        )`, id, id, s.historyLimit); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// History returns the workspace's runs, newest first.
func (s *Store) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_json FROM history WHERE workspace_id = ? ORDER BY id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) touch(ctx context.Context, id, query string, args ...any) error {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}
	if affected == 0 {
		return notFound(id)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func scanWorkspace(scanner interface{ Scan(dest ...any) error }) (*Workspace, error) {
	var (
		ws       Workspace
		settings sql.NullString
		created  string
		updated  string
	)
	if err := scanner.Scan(&ws.ID, &ws.Name, &settings, &created, &updated); err != nil {
		return nil, err
	}
	if settings.Valid && settings.String != "" {
		if err := json.Unmarshal([]byte(settings.String), &ws.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	ws.CreatedAt = parseTime(created)
	ws.UpdatedAt = parseTime(updated)
	return &ws, nil
}

func notFound(id string) error {
	return services.Wrap(services.ErrNotFound, "workspace", "lookup", fmt.Sprintf("workspace %s not found", id), nil)
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
