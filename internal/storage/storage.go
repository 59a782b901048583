// Package storage persists analyzed rotation runs in SQLite.
//
// A run is stored as one row in runs plus one row per group in run_groups. The
// rotation distribution grid, when present, is kept as a JSON blob on the run row.
// The store keeps at most maxRuns runs; RotateRuns drops the oldest beyond that.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/rewired-gh/dmgvar/internal/models"
)

var (
	// ErrRunNotFound is returned when no stored run matches.
	ErrRunNotFound = errors.New("run not found")
	// ErrDuplicateRun is returned when saving a run whose ID is already stored.
	ErrDuplicateRun = errors.New("run already exists")
)

//go:embed schema.sql
var schema string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Storage is a SQLite run store.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// New opens (creating if needed) the database at dbPath and applies the schema.
// maxRuns <= 0 keeps every run.
func New(dbPath string, maxRuns int) (*Storage, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("storage path is required")
	}
	if dbPath != MemoryPath {
		dbPath = filepath.Clean(dbPath)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection: an in-memory database is private to its connection and
	// the pragmas below are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %q: %w", pragma, err)
		}
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &Storage{db: db, maxRuns: maxRuns}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores a run and its groups in one transaction.
func (s *Storage) SaveRun(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	var grid []byte
	if run.Grid != nil {
		var err error
		if grid, err = json.Marshal(run.Grid); err != nil {
			return fmt.Errorf("marshal grid: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, label, elapsed, mean, variance, skewness, grid, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label, run.Elapsed,
		run.Total.Mean, run.Total.Variance, run.Total.Skewness,
		grid, toMillis(run.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
		}
		return fmt.Errorf("insert run: %w", err)
	}

	for i, g := range run.Groups {
		actions, err := json.Marshal(g.Actions)
		if err != nil {
			return fmt.Errorf("marshal actions of %s: %w", g.Name, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_groups (run_id, position, name, actions, mean, variance, skewness, p05, p50, p95)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, g.Name, string(actions),
			g.Moments.Mean, g.Moments.Variance, g.Moments.Skewness,
			g.P05, g.P50, g.P95,
		)
		if err != nil {
			return fmt.Errorf("insert group %s: %w", g.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `id, label, elapsed, mean, variance, skewness, grid, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		run       models.Run
		grid      []byte
		createdAt int64
	)
	if err := row.Scan(&run.ID, &run.Label, &run.Elapsed,
		&run.Total.Mean, &run.Total.Variance, &run.Total.Skewness,
		&grid, &createdAt); err != nil {
		return nil, err
	}
	run.CreatedAt = fromMillis(createdAt)
	if len(grid) > 0 {
		run.Grid = &models.GridRecord{}
		if err := json.Unmarshal(grid, run.Grid); err != nil {
			return nil, fmt.Errorf("unmarshal grid of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// GetRun returns a run with its groups. ref is a run ID, or a label, in which
// case the most recent run with that label is returned.
func (s *Storage) GetRun(ctx context.Context, ref string) (*models.Run, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrRunNotFound)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs
		  WHERE id = ? OR label = ?
		  ORDER BY id = ? DESC, created_at DESC, rowid DESC
		  LIMIT 1`,
		ref, ref, ref,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, ref)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	if run.Groups, err = s.groups(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// LatestRun returns the most recently saved run.
func (s *Storage) LatestRun(ctx context.Context) (*models.Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return s.GetRun(ctx, runs[0].ID)
}

func (s *Storage) groups(ctx context.Context, runID string) ([]models.GroupRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, actions, mean, variance, skewness, p05, p50, p95
		   FROM run_groups
		  WHERE run_id = ?
		  ORDER BY position ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.GroupRecord
	for rows.Next() {
		var (
			g       models.GroupRecord
			actions string
		)
		if err := rows.Scan(&g.Name, &actions,
			&g.Moments.Mean, &g.Moments.Variance, &g.Moments.Skewness,
			&g.P05, &g.P50, &g.P95); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if err := json.Unmarshal([]byte(actions), &g.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions of %s: %w", g.Name, err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// ListRuns returns up to limit runs, newest first, without their groups.
// limit <= 0 returns every run.
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and its groups.
func (s *Storage) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_groups WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("delete groups: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}

// RotateRuns removes the oldest runs beyond the configured maximum and returns
// how many were removed.
func (s *Storage) RotateRuns(ctx context.Context) (int, error) {
	if s.maxRuns <= 0 {
		return 0, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?`,
		s.maxRuns,
	)
	if err != nil {
		return 0, fmt.Errorf("find old runs: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan run id: %w", err)
		}
		stale = append(stale, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("find old runs: %w", err)
	}

	for _, id := range stale {
		if err := s.DeleteRun(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
