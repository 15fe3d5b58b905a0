// Package manifest provides the run manifest: a SQLite catalog of generation
// runs, the archives they wrote, and the aggregations computed over them.
package manifest

// CreateRunsTableSQL creates the generation runs table.
// One row per Stage 1 run; status moves from running to completed or failed.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    data_dir TEXT NOT NULL,
    seed INTEGER NOT NULL,
    archive_count INTEGER NOT NULL,
    records_per_archive INTEGER NOT NULL,
    identifier_length INTEGER NOT NULL,
    object_name_length INTEGER NOT NULL,
    width INTEGER NOT NULL,
    status TEXT NOT NULL,
    error TEXT,
    created_at INTEGER NOT NULL,
    completed_at INTEGER
)`

// CreateArchivesTableSQL creates the archives table.
// first_id and last_id bound the contiguous slice of the id pool an archive holds.
const CreateArchivesTableSQL = `
CREATE TABLE IF NOT EXISTS archives (
    run_id TEXT NOT NULL,
    archive_index INTEGER NOT NULL,
    archive_name TEXT NOT NULL,
    entry_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    first_id TEXT,
    last_id TEXT,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, archive_index),
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
)`

// CreateAggregationsTableSQL creates the aggregations table.
// One row per successful Stage 2 run.
const CreateAggregationsTableSQL = `
CREATE TABLE IF NOT EXISTS aggregations (
    aggregation_id TEXT PRIMARY KEY,
    input_dir TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    archive_count INTEGER NOT NULL,
    entry_count INTEGER NOT NULL,
    skipped_count INTEGER NOT NULL,
    level_rows INTEGER NOT NULL,
    child_rows INTEGER NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateIndexesSQL creates indexes for the common lookups.
var CreateIndexesSQL = []string{
	// Latest run per data directory
	`CREATE INDEX IF NOT EXISTS idx_runs_dir_created ON runs(data_dir, created_at)`,

	// Latest aggregation per input directory
	`CREATE INDEX IF NOT EXISTS idx_aggregations_dir_created ON aggregations(input_dir, created_at)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the manifest.
func AllSchemaSQL() []string {
	statements := []string{
		CreateRunsTableSQL,
		CreateArchivesTableSQL,
		CreateAggregationsTableSQL,
	}
	statements = append(statements, CreateIndexesSQL...)
	return statements
}
