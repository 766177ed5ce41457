// Package catalog tracks per-file indexing state so incremental runs can
// skip files whose content has not changed since they were last stored.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no cgo

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// FileState is one catalog row: the fingerprint a file had when it was
// last indexed.
type FileState struct {
	Project   string
	Path      string
	Hash      string
	SizeBytes int64
	ModTime   time.Time
	Chunks    int
	IndexedAt time.Time
}

// Catalog persists file states in a SQLite database. One catalog serves
// every project; rows are keyed by (project, path).
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog at path. An empty path keeps the
// catalog in memory.
func Open(path string) (*Catalog, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, catalogErr("creating catalog directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, catalogErr("opening catalog database", err)
	}

	// Single writer; modernc.org/sqlite serializes writes anyway and one
	// connection avoids table-lock contention between workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, catalogErr("configuring catalog database", err)
		}
	}

	c := &Catalog{db: db, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS file_state (
		project    TEXT NOT NULL,
		path       TEXT NOT NULL,
		hash       TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		mtime_unix INTEGER NOT NULL,
		chunks     INTEGER NOT NULL,
		indexed_at INTEGER NOT NULL,
		PRIMARY KEY (project, path)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return catalogErr("initializing catalog schema", err)
	}
	return nil
}

// Lookup returns the recorded state for a file, with found=false when the
// file was never indexed.
func (c *Catalog) Lookup(ctx context.Context, project, path string) (FileState, bool, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT hash, size_bytes, mtime_unix, chunks, indexed_at
		FROM file_state WHERE project = ? AND path = ?`, project, path)

	state := FileState{Project: project, Path: path}
	var mtime, indexedAt int64
	err := row.Scan(&state.Hash, &state.SizeBytes, &mtime, &state.Chunks, &indexedAt)
	if err == sql.ErrNoRows {
		return FileState{}, false, nil
	}
	if err != nil {
		return FileState{}, false, catalogErr("reading file state", err)
	}
	state.ModTime = time.Unix(mtime, 0)
	state.IndexedAt = time.Unix(indexedAt, 0)
	return state, true, nil
}

// Record stores the state, replacing any previous row for the same file.
func (c *Catalog) Record(ctx context.Context, state FileState) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO file_state
			(project, path, hash, size_bytes, mtime_unix, chunks, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		state.Project, state.Path, state.Hash, state.SizeBytes,
		state.ModTime.Unix(), state.Chunks, state.IndexedAt.Unix())
	if err != nil {
		return catalogErr(fmt.Sprintf("recording state for %s", state.Path), err)
	}
	return nil
}

// List returns every recorded state of a project, ordered by path.
// Reconciliation walks this to find files that no longer exist.
func (c *Catalog) List(ctx context.Context, project string) ([]FileState, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT path, hash, size_bytes, mtime_unix, chunks, indexed_at
		FROM file_state WHERE project = ? ORDER BY path`, project)
	if err != nil {
		return nil, catalogErr("listing file states", err)
	}
	defer func() { _ = rows.Close() }()

	var states []FileState
	for rows.Next() {
		state := FileState{Project: project}
		var mtime, indexedAt int64
		if err := rows.Scan(&state.Path, &state.Hash, &state.SizeBytes,
			&mtime, &state.Chunks, &indexedAt); err != nil {
			return nil, catalogErr("scanning file state", err)
		}
		state.ModTime = time.Unix(mtime, 0)
		state.IndexedAt = time.Unix(indexedAt, 0)
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogErr("listing file states", err)
	}
	return states, nil
}

// Forget drops the row for one file. Forgetting an unknown file is a
// no-op.
func (c *Catalog) Forget(ctx context.Context, project, path string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM file_state WHERE project = ? AND path = ?`, project, path)
	if err != nil {
		return catalogErr(fmt.Sprintf("forgetting %s", path), err)
	}
	return nil
}

// ForgetProject drops every row of a project, used when a collection is
// recreated from scratch.
func (c *Catalog) ForgetProject(ctx context.Context, project string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM file_state WHERE project = ?`, project)
	if err != nil {
		return catalogErr(fmt.Sprintf("forgetting project %s", project), err)
	}
	return nil
}

// Count returns the number of tracked files in a project.
func (c *Catalog) Count(ctx context.Context, project string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_state WHERE project = ?`, project).Scan(&n)
	if err != nil {
		return 0, catalogErr("counting file states", err)
	}
	return n, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	if err := c.db.Close(); err != nil {
		return catalogErr("closing catalog", err)
	}
	return nil
}

func catalogErr(message string, cause error) error {
	return synerrors.New(synerrors.ErrCodeCatalogFailed, message, cause)
}
