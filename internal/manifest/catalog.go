package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned when no run matches a lookup.
var ErrRunNotFound = errors.New("manifest: run not found")

// Catalog records generation runs and aggregations.
type Catalog interface {
	// BeginRun records a new run in the running state.
	BeginRun(ctx context.Context, run *RunRecord) error

	// RegisterArchives records the archives written by a run in one transaction.
	RegisterArchives(ctx context.Context, runID string, archives []*ArchiveRecord) error

	// CompleteRun moves a run to its final status. runErr is stored for failed runs.
	CompleteRun(ctx context.Context, runID, status string, runErr error) error

	// GetRun retrieves a single run by ID.
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// LatestRun returns the most recent completed run for a data directory.
	LatestRun(ctx context.Context, dataDir string) (*RunRecord, error)

	// ListArchives returns a run's archives in index order.
	ListArchives(ctx context.Context, runID string) ([]*ArchiveRecord, error)

	// RecordAggregation records a completed aggregation.
	RecordAggregation(ctx context.Context, agg *AggregationRecord) error

	// Close closes the catalog database connection.
	Close() error
}

// RunRecord represents a generation run in the manifest.
type RunRecord struct {
	RunID             string
	DataDir           string
	Seed              int64
	ArchiveCount      int
	RecordsPerArchive int
	IdentifierLength  int
	ObjectNameLength  int
	Width             int
	Status            string
	Error             *string
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// ArchiveRecord represents one written archive.
type ArchiveRecord struct {
	Index      int
	Name       string
	EntryCount int
	SizeBytes  int64
	FirstID    string
	LastID     string
	CreatedAt  time.Time
}

// AggregationRecord represents a completed aggregation.
type AggregationRecord struct {
	AggregationID string
	InputDir      string
	OutputDir     string
	ArchiveCount  int
	EntryCount    int
	SkippedCount  int
	LevelRows     int
	ChildRows     int
	CreatedAt     time.Time
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serializes writes
}

// NewCatalog opens (creating if needed) the catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{
		db:     db,
		dbPath: dbPath,
	}

	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun records a new run in the running state.
func (c *SQLiteCatalog) BeginRun(ctx context.Context, run *RunRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.Status = StatusRunning

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, data_dir, seed, archive_count, records_per_archive,
			identifier_length, object_name_length, width, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.DataDir, run.Seed, run.ArchiveCount, run.RecordsPerArchive,
		run.IdentifierLength, run.ObjectNameLength, run.Width, run.Status, run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to insert run %s: %w", run.RunID, err)
	}
	return nil
}

// RegisterArchives records the archives written by a run in one transaction.
func (c *SQLiteCatalog) RegisterArchives(ctx context.Context, runID string, archives []*ArchiveRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO archives (
			run_id, archive_index, archive_name, entry_count, size_bytes,
			first_id, last_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("manifest: failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, a := range archives {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		_, err := stmt.ExecContext(ctx,
			runID, a.Index, a.Name, a.EntryCount, a.SizeBytes,
			nullString(a.FirstID), nullString(a.LastID), a.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("manifest: failed to insert archive %s: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: failed to commit archives: %w", err)
	}
	return nil
}

// CompleteRun moves a run to its final status.
func (c *SQLiteCatalog) CompleteRun(ctx context.Context, runID, status string, runErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := c.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE run_id = ?",
		status, errText, time.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("manifest: failed to complete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const selectRunColumns = `
	SELECT run_id, data_dir, seed, archive_count, records_per_archive,
		identifier_length, object_name_length, width, status, error,
		created_at, completed_at
	FROM runs`

// GetRun retrieves a single run by ID.
func (c *SQLiteCatalog) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := c.db.QueryRowContext(ctx, selectRunColumns+" WHERE run_id = ?", runID)
	return scanRun(row, runID)
}

// LatestRun returns the most recent completed run for a data directory.
func (c *SQLiteCatalog) LatestRun(ctx context.Context, dataDir string) (*RunRecord, error) {
	row := c.db.QueryRowContext(ctx,
		selectRunColumns+" WHERE data_dir = ? AND status = ? ORDER BY created_at DESC LIMIT 1",
		dataDir, StatusCompleted)
	return scanRun(row, dataDir)
}

func scanRun(row *sql.Row, key string) (*RunRecord, error) {
	var r RunRecord
	var errText sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&r.RunID, &r.DataDir, &r.Seed, &r.ArchiveCount, &r.RecordsPerArchive,
		&r.IdentifierLength, &r.ObjectNameLength, &r.Width, &r.Status, &errText,
		&createdAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, key)
		}
		return nil, fmt.Errorf("manifest: failed to scan run: %w", err)
	}

	r.CreatedAt = time.Unix(0, createdAt)
	if errText.Valid {
		r.Error = &errText.String
	}
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		r.CompletedAt = &t
	}
	return &r, nil
}

// ListArchives returns a run's archives in index order.
func (c *SQLiteCatalog) ListArchives(ctx context.Context, runID string) ([]*ArchiveRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT archive_index, archive_name, entry_count, size_bytes,
			first_id, last_id, created_at
		FROM archives WHERE run_id = ? ORDER BY archive_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query archives: %w", err)
	}
	defer rows.Close()

	var archives []*ArchiveRecord
	for rows.Next() {
		var a ArchiveRecord
		var firstID, lastID sql.NullString
		var createdAt int64
		if err := rows.Scan(&a.Index, &a.Name, &a.EntryCount, &a.SizeBytes, &firstID, &lastID, &createdAt); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan archive: %w", err)
		}
		a.FirstID = firstID.String
		a.LastID = lastID.String
		a.CreatedAt = time.Unix(0, createdAt)
		archives = append(archives, &a)
	}
	return archives, rows.Err()
}

// RecordAggregation records a completed aggregation.
func (c *SQLiteCatalog) RecordAggregation(ctx context.Context, agg *AggregationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if agg.CreatedAt.IsZero() {
		agg.CreatedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO aggregations (
			aggregation_id, input_dir, output_dir, archive_count, entry_count,
			skipped_count, level_rows, child_rows, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agg.AggregationID, agg.InputDir, agg.OutputDir, agg.ArchiveCount, agg.EntryCount,
		agg.SkippedCount, agg.LevelRows, agg.ChildRows, agg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to insert aggregation %s: %w", agg.AggregationID, err)
	}
	return nil
}

// CountAggregations returns the number of aggregations recorded for an input directory.
func (c *SQLiteCatalog) CountAggregations(ctx context.Context, inputDir string) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM aggregations WHERE input_dir = ?", inputDir,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to count aggregations: %w", err)
	}
	return count, nil
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
