package session

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

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

//go:embed migrations/002_add_findings.sql
var migrationV2 string

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB // Write connection
	readDB *sql.DB // Read-only connection

	maxRetries    int
	baseRetryWait time.Duration
}

// SQLiteStoreOption configures the store.
type SQLiteStoreOption func(*SQLiteStore)

// WithRetries sets how often a busy write is retried.
func WithRetries(n int, baseWait time.Duration) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		s.maxRetries = n
		s.baseRetryWait = baseWait
	}
}

// NewSQLiteStore opens or creates the database and applies migrations.
func NewSQLiteStore(dbPath string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		dbPath:        dbPath,
		maxRetries:    5,
		baseRetryWait: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, core.ErrStorage(core.CodeMigrationFailed, "running migrations").WithCause(err)
	}

	// Opened after migrating so the file and schema exist for mode=ro.
	readDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&mode=ro&_pragma=busy_timeout(1000)")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(2)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	for i, migration := range []string{migrationV1, migrationV2} {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", version, err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// splitStatements splits a script on semicolons and drops comment lines.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}

// SaveRun inserts or replaces a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		return core.ErrValidation(core.CodeInvalidConfig, "run record has no id")
	}
	findings := rec.Findings
	if findings == nil {
		findings = map[string]int{}
	}
	findingsJSON, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encoding findings: %w", err)
	}

	return s.retryWrite(ctx, "save run", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO runs (
				id, scenario, tier, offload_enabled, status, processed, total,
				input_tokens, output_tokens, peak_mem_bytes, peak_swap_bytes,
				swap_delta_bytes, reason, started_at, elapsed_ms, findings
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Scenario, rec.Tier, rec.OffloadEnabled, string(rec.Status),
			rec.Processed, rec.Total, rec.InputTokens, rec.OutputTokens,
			int64(rec.PeakMemBytes), int64(rec.PeakSwapBytes), rec.SwapDeltaBytes,
			rec.Reason, rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.Elapsed.Milliseconds(),
			string(findingsJSON),
		)
		return err
	})
}

const runColumns = `id, scenario, tier, offload_enabled, status, processed, total,
	input_tokens, output_tokens, peak_mem_bytes, peak_swap_bytes,
	swap_delta_bytes, reason, started_at, elapsed_ms, findings`

// GetRun loads one run.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.readDB.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return &rec, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Totals sums tokens over every stored run.
func (s *SQLiteStore) Totals(ctx context.Context) (TokenTotals, error) {
	var t TokenTotals
	err := s.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0) FROM runs",
	).Scan(&t.Runs, &t.InputTokens, &t.OutputTokens)
	if err != nil {
		return TokenTotals{}, fmt.Errorf("summing tokens: %w", err)
	}
	return t, nil
}

// Close closes both connections.
func (s *SQLiteStore) Close() error {
	return errors.Join(s.readDB.Close(), s.db.Close())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (RunRecord, error) {
	var (
		rec               RunRecord
		status, started   string
		findings          string
		peakMem, peakSwap int64
		elapsedMS         int64
	)
	if err := r.Scan(
		&rec.ID, &rec.Scenario, &rec.Tier, &rec.OffloadEnabled, &status,
		&rec.Processed, &rec.Total, &rec.InputTokens, &rec.OutputTokens,
		&peakMem, &peakSwap, &rec.SwapDeltaBytes, &rec.Reason, &started, &elapsedMS,
		&findings,
	); err != nil {
		return RunRecord{}, err
	}
	rec.Status = core.RunStatus(status)
	rec.PeakMemBytes = uint64(peakMem)
	rec.PeakSwapBytes = uint64(peakSwap)
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	ts, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parsing started_at: %w", err)
	}
	rec.StartedAt = ts
	if err := json.Unmarshal([]byte(findings), &rec.Findings); err != nil {
		return RunRecord{}, fmt.Errorf("decoding findings: %w", err)
	}
	return rec, nil
}

// retryWrite retries fn with exponential backoff while SQLite reports busy.
func (s *SQLiteStore) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return fmt.Errorf("%s: %w", operation, err)
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.baseRetryWait * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, s.maxRetries, lastErr)
}

func isSQLiteBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
