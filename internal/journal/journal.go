package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"olsync/internal/config"
)

// Status represents the lifecycle of a source within one run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusFetching   Status = "fetching"
	StatusConverting Status = "converting"
	StatusPublishing Status = "publishing"
	StatusPublished  Status = "published"
	StatusUpToDate   Status = "up_to_date"
	StatusFailed     Status = "failed"
)

// SourceRun is one source's record within a run.
type SourceRun struct {
	ID           int64
	RunID        string
	Source       string
	Category     string
	Status       Status
	Signature    string
	Rows         int64
	Skipped      int64
	Segments     int
	FailureStage string
	ErrorMessage string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// schemaVersion is bumped when the table layout changes. The journal is
// disposable, so a mismatch just asks the user to delete the file.
const schemaVersion = 1

// ErrSchemaMismatch indicates the journal was written by an incompatible version.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

const schemaSQL = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE source_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    source TEXT NOT NULL,
    category TEXT NOT NULL,
    status TEXT NOT NULL,
    signature TEXT NOT NULL DEFAULT '',
    rows INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    segments INTEGER NOT NULL DEFAULT 0,
    failure_stage TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX idx_source_runs_run ON source_runs(run_id);
CREATE INDEX idx_source_runs_source ON source_runs(source, id);
`

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the journal database under the log directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "journal.db"))
}

// OpenPath opens the journal at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
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

// Path returns the journal database location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: journal has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	delay := busyRetryInitialBackoff
	var (
		res     sql.Result
		lastErr error
	)
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		res, lastErr = s.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return res, nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return nil, lastErr
}

// Begin records that a source is starting within the given run.
func (s *Store) Begin(ctx context.Context, runID, source, category string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.execWithRetry(ctx,
		`INSERT INTO source_runs (run_id, source, category, status, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, source, category, string(StatusPending), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("record source run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read source run id: %w", err)
	}
	return id, nil
}

// SetStatus advances the run's lifecycle status.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	_, err := s.execWithRetry(ctx,
		"UPDATE source_runs SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// MarkPublished records a successful publish with its row accounting.
func (s *Store) MarkPublished(ctx context.Context, id int64, signature string, rows, skipped int64, segments int) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE source_runs
		 SET status = ?, signature = ?, rows = ?, skipped = ?, segments = ?, updated_at = ?
		 WHERE id = ?`,
		string(StatusPublished), signature, rows, skipped, segments,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// MarkUpToDate records that the remote signature matched the manifest.
func (s *Store) MarkUpToDate(ctx context.Context, id int64, signature string) error {
	_, err := s.execWithRetry(ctx,
		"UPDATE source_runs SET status = ?, signature = ?, updated_at = ? WHERE id = ?",
		string(StatusUpToDate), signature, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("mark up to date: %w", err)
	}
	return nil
}

// MarkFailed records the stage and message of a source failure.
func (s *Store) MarkFailed(ctx context.Context, id int64, stage, message string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE source_runs
		 SET status = ?, failure_stage = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`,
		string(StatusFailed), stage, message, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Recent returns the newest run records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]SourceRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source, category, status, signature, rows, skipped,
		        segments, failure_stage, error_message, started_at, updated_at
		 FROM source_runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// LatestPerSource returns the most recent record for each source, ordered by
// source name.
func (s *Store) LatestPerSource(ctx context.Context) ([]SourceRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source, category, status, signature, rows, skipped,
		        segments, failure_stage, error_message, started_at, updated_at
		 FROM source_runs
		 WHERE id IN (SELECT MAX(id) FROM source_runs GROUP BY source)
		 ORDER BY source`,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]SourceRun, error) {
	var runs []SourceRun
	for rows.Next() {
		var (
			run                  SourceRun
			status               string
			startedAt, updatedAt string
		)
		if err := rows.Scan(&run.ID, &run.RunID, &run.Source, &run.Category, &status,
			&run.Signature, &run.Rows, &run.Skipped, &run.Segments,
			&run.FailureStage, &run.ErrorMessage, &startedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan source run: %w", err)
		}
		run.Status = Status(status)
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source runs: %w", err)
	}
	return runs, nil
}
