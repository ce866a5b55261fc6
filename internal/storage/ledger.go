package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rohankatakam/repograph/internal/errors"
)

// ErrNotFound is returned when a run id is unknown
var ErrNotFound = stderrors.New("not found")

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusNoop      = "noop"
	StatusFailed    = "failed"
)

// Run is one row of ingestion_runs
type Run struct {
	ID         string     `db:"id" json:"id"`
	RepoURL    string     `db:"repo_url" json:"repo_url"`
	Mode       string     `db:"mode" json:"mode"`
	Status     string     `db:"status" json:"status"`
	Message    string     `db:"message" json:"message"`
	Nodes      int        `db:"nodes" json:"nodes"`
	Edges      int        `db:"edges" json:"edges"`
	BugLinks   int        `db:"bug_links" json:"bug_links"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Error      string     `db:"error" json:"error,omitempty"`
}

// Outcome is what FinishRun records about a completed run
type Outcome struct {
	Mode     string
	Status   string
	Message  string
	Nodes    int
	Edges    int
	BugLinks int
	Err      error
}

// SkippedItem is one row of skipped_items
type SkippedItem struct {
	RunID     string    `db:"run_id" json:"run_id"`
	Kind      string    `db:"kind" json:"kind"`
	CommitSHA string    `db:"commit_sha" json:"commit_sha"`
	Path      string    `db:"path" json:"path"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Ledger records ingestion runs and the work each run skipped
type Ledger struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
}

// Open connects to the ledger database and creates its tables. driver is
// one of sqlite3, postgres or pgx.
func Open(ctx context.Context, driver, dsn string) (*Ledger, error) {
	switch driver {
	case "sqlite3":
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, errors.StorageErrorf(err, "create ledger directory")
			}
		}
	case "postgres", "pgx":
	default:
		return nil, errors.ConfigErrorf("unsupported ledger driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.StorageErrorf(err, "connect to %s ledger", driver)
	}

	if driver == "sqlite3" {
		// One writer; skips arrive from concurrent blame workers
		db.SetMaxOpenConns(1)
		db.Exec("PRAGMA journal_mode = WAL")
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	l := &Ledger{
		db:     db,
		driver: driver,
		logger: slog.Default().With("component", "storage"),
	}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, errors.StorageErrorf(err, "init ledger schema")
	}
	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	ts := "DATETIME"
	if l.driver != "sqlite3" {
		ts = "TIMESTAMPTZ"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ingestion_runs (
			id TEXT PRIMARY KEY,
			repo_url TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			nodes INTEGER NOT NULL DEFAULT 0,
			edges INTEGER NOT NULL DEFAULT 0,
			bug_links INTEGER NOT NULL DEFAULT 0,
			started_at ` + ts + ` NOT NULL,
			finished_at ` + ts + `,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingestion_runs_started ON ingestion_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS skipped_items (
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			commit_sha TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL,
			PRIMARY KEY (run_id, kind, commit_sha, path)
		)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a running row and returns its id
func (l *Ledger) StartRun(ctx context.Context, repoURL string) (string, error) {
	id := uuid.NewString()
	query := l.db.Rebind(`INSERT INTO ingestion_runs (id, repo_url, status, started_at) VALUES (?, ?, ?, ?)`)
	if _, err := l.db.ExecContext(ctx, query, id, repoURL, StatusRunning, time.Now().UTC()); err != nil {
		return "", errors.StorageErrorf(err, "start run")
	}
	l.logger.Debug("run started", "run_id", id, "repo_url", repoURL)
	return id, nil
}

// FinishRun records the outcome of a run
func (l *Ledger) FinishRun(ctx context.Context, id string, out Outcome) error {
	status := out.Status
	errText := ""
	if out.Err != nil {
		errText = out.Err.Error()
		if status == "" {
			status = StatusFailed
		}
	}
	if status == "" {
		status = StatusSucceeded
	}

	query := l.db.Rebind(`UPDATE ingestion_runs
		SET mode = ?, status = ?, message = ?, nodes = ?, edges = ?, bug_links = ?, finished_at = ?, error = ?
		WHERE id = ?`)
	res, err := l.db.ExecContext(ctx, query, out.Mode, status, out.Message, out.Nodes, out.Edges, out.BugLinks, time.Now().UTC(), errText, id)
	if err != nil {
		return errors.StorageErrorf(err, "finish run %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun returns one run by id
func (l *Ledger) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := l.db.GetContext(ctx, &run, l.db.Rebind(`SELECT * FROM ingestion_runs WHERE id = ?`), id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.StorageErrorf(err, "get run %s", id)
	}
	return &run, nil
}

// RecentRuns returns the newest runs first
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []Run{}
	query := l.db.Rebind(`SELECT * FROM ingestion_runs ORDER BY started_at DESC LIMIT ?`)
	if err := l.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, errors.StorageErrorf(err, "list runs")
	}
	return runs, nil
}

// RecordSkip stores one skipped item. Recording the same item twice in a
// run is a no-op.
func (l *Ledger) RecordSkip(ctx context.Context, item SkippedItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	query := l.db.Rebind(`INSERT INTO skipped_items (run_id, kind, commit_sha, path, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, kind, commit_sha, path) DO NOTHING`)
	if _, err := l.db.ExecContext(ctx, query, item.RunID, item.Kind, item.CommitSHA, item.Path, item.Reason, item.CreatedAt); err != nil {
		return errors.StorageErrorf(err, "record skipped %s", item.Kind)
	}

	sha := item.CommitSHA
	if len(sha) > 8 {
		sha = sha[:8]
	}
	l.logger.Warn("item skipped", "run_id", item.RunID, "kind", item.Kind, "commit_sha", sha, "path", item.Path, "reason", item.Reason)
	return nil
}

// Skips returns the items skipped by one run
func (l *Ledger) Skips(ctx context.Context, runID string) ([]SkippedItem, error) {
	items := []SkippedItem{}
	query := l.db.Rebind(`SELECT * FROM skipped_items WHERE run_id = ? ORDER BY created_at, kind, commit_sha, path`)
	if err := l.db.SelectContext(ctx, &items, query, runID); err != nil {
		return nil, errors.StorageErrorf(err, "list skipped items")
	}
	return items, nil
}
