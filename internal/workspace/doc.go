// Package workspace persists workspaces and their generation history in a
// SQLite database.
//
// A workspace is one document project. It owns a directory under the
// configured workspace root (holding step outputs and the job state file), an
// ordered list of sources, and a history of generation runs kept newest first
// and capped at the configured limit. The database lives alongside the
// workspace directories so a workspace root can be moved as a unit.
package workspace
