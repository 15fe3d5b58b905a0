// Package aggregate implements Stage 2: it extracts rows from every archive
// in a directory in parallel and writes the two output tables.
package aggregate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zipcorpus/zipcorpus/internal/archive"
	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
	"github.com/zipcorpus/zipcorpus/internal/extract"
	"github.com/zipcorpus/zipcorpus/internal/logging"
	"github.com/zipcorpus/zipcorpus/internal/manifest"
	"github.com/zipcorpus/zipcorpus/internal/observability"
	"github.com/zipcorpus/zipcorpus/internal/storage"
	"github.com/zipcorpus/zipcorpus/internal/workerpool"
)

// Output table names and header lines.
const (
	LevelTable  = "1.csv"
	ChildTable  = "2.csv"
	LevelHeader = "id, level\n"
	ChildHeader = "id, object_name\n"
)

// Orchestrator runs aggregation.
type Orchestrator struct {
	extractor *extract.Extractor
	workers   int
	outputDir string
	compress  bool
	catalog   manifest.Catalog
	publisher *storage.Publisher
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the worker pool size (<= 0 means one per CPU).
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithOutputDir writes the tables to dir instead of the input directory.
func WithOutputDir(dir string) Option {
	return func(o *Orchestrator) { o.outputDir = dir }
}

// WithCompression keeps each archive's rows snappy-compressed until reassembly.
func WithCompression(enabled bool) Option {
	return func(o *Orchestrator) { o.compress = enabled }
}

// WithCatalog records every successful aggregation in catalog.
func WithCatalog(catalog manifest.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = catalog }
}

// WithPublisher uploads the tables after they are written.
func WithPublisher(p *storage.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an aggregation orchestrator.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger)
	o.extractor = extract.NewExtractor(o.logger)
	return o
}

// Report describes a completed aggregation.
type Report struct {
	RunID      string
	Archives   []string
	LevelTable string
	ChildTable string
	Stats      observability.Snapshot
	Published  *storage.PublishResult
}

// slot holds one archive's rows, snappy-encoded when compression is on.
type slot struct {
	levels   []byte
	children []byte
}

// Aggregate extracts every archive in dir and writes 1.csv and 2.csv.
//
// Rows are concatenated in listing order regardless of which task finishes
// first. If any archive cannot be read the run fails and neither table is
// touched. Each table is written to a temporary file and renamed into place.
func (o *Orchestrator) Aggregate(ctx context.Context, dir string) (*Report, error) {
	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))
	stats := observability.NewRunStats()

	names, err := archive.List(dir)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	outDir := o.outputDir
	if outDir == "" {
		outDir = dir
	}

	logger.Info("aggregating archives", zap.String("dir", dir), zap.Int("archives", len(names)))

	slots, err := workerpool.Run(ctx, o.workers, len(names), func(ctx context.Context, i int) (slot, error) {
		path := filepath.Join(dir, names[i])
		result, err := o.extractor.Extract(path)
		if err != nil {
			stats.RecordFailure()
			logger.Error("archive extraction failed", zap.String("archive", path), apperrors.LogField(err))
			return slot{}, err
		}

		if info, err := os.Stat(path); err == nil {
			stats.RecordArchive(info.Size())
		}
		stats.RecordEntries(result.Entries, result.Skipped, result.Entries-result.Skipped, result.Children)

		if o.compress {
			return slot{
				levels:   snappy.Encode(nil, []byte(result.LevelRows)),
				children: snappy.Encode(nil, []byte(result.ChildRows)),
			}, nil
		}
		return slot{levels: []byte(result.LevelRows), children: []byte(result.ChildRows)}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	levels, children, err := o.reassemble(slots)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      runID,
		Archives:   names,
		LevelTable: filepath.Join(outDir, LevelTable),
		ChildTable: filepath.Join(outDir, ChildTable),
	}
	if err := writeTables([]table{
		{path: report.LevelTable, data: levels},
		{path: report.ChildTable, data: children},
	}); err != nil {
		return nil, err
	}
	report.Stats = stats.Snapshot()

	if o.catalog != nil {
		err := o.catalog.RecordAggregation(ctx, &manifest.AggregationRecord{
			AggregationID: runID,
			InputDir:      dir,
			OutputDir:     outDir,
			ArchiveCount:  len(names),
			EntryCount:    int(report.Stats.Entries),
			SkippedCount:  int(report.Stats.SkippedEntries),
			LevelRows:     int(report.Stats.LevelRows),
			ChildRows:     int(report.Stats.ChildRows),
		})
		if err != nil {
			return nil, apperrors.NewStorageError(apperrors.CodeManifestFailed, "record aggregation", err)
		}
	}

	if o.publisher != nil {
		published, err := o.publisher.Publish(ctx, []string{report.LevelTable, report.ChildTable})
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		report.Published = published
	}

	logger.Info("aggregation complete",
		zap.String("level_table", report.LevelTable),
		zap.String("child_table", report.ChildTable),
		report.Stats.Field())
	return report, nil
}

// reassemble concatenates the slots in submission order behind the headers.
func (o *Orchestrator) reassemble(slots []slot) ([]byte, []byte, error) {
	var levels, children bytes.Buffer
	levels.WriteString(LevelHeader)
	children.WriteString(ChildHeader)

	for i, s := range slots {
		l, c := s.levels, s.children
		if o.compress {
			var err error
			if l, err = snappy.Decode(nil, s.levels); err != nil {
				return nil, nil, apperrors.NewInternalError(fmt.Sprintf("decode level rows of task %d", i), err)
			}
			if c, err = snappy.Decode(nil, s.children); err != nil {
				return nil, nil, apperrors.NewInternalError(fmt.Sprintf("decode child rows of task %d", i), err)
			}
		}
		levels.Write(l)
		children.Write(c)
	}
	return levels.Bytes(), children.Bytes(), nil
}

type table struct {
	path string
	data []byte
}

// writeTables stages every table in a temporary file beside its target and
// renames them into place only once all were written. Existing targets are
// preserved beside their staged file first; if a rename fails, the targets
// already replaced are rolled back, so either every table is new or none is.
func writeTables(tables []table) error {
	staged := make([]string, 0, len(tables))
	for _, t := range tables {
		if err := stage(t, &staged); err != nil {
			removeFiles(staged)
			return tableError(t.path, err)
		}
	}

	backups := make([]string, len(tables))
	for i, t := range tables {
		b, err := preserve(t.path, staged[i]+".prev")
		if err != nil {
			removeFiles(staged)
			removeFiles(backups)
			return tableError(t.path, err)
		}
		backups[i] = b
	}

	for i, t := range tables {
		if err := os.Rename(staged[i], t.path); err != nil {
			rollback(tables[:i], backups[:i])
			removeFiles(staged[i:])
			removeFiles(backups[i:])
			return tableError(t.path, err)
		}
	}
	removeFiles(backups)
	return nil
}

// preserve keeps the current content of a regular file at path under
// backup and returns backup. It returns "" when there is nothing to keep.
func preserve(path, backup string) (string, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}

	if err := os.Link(path, backup); err == nil {
		return backup, nil
	}
	// no hard links on this filesystem
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(backup, data, info.Mode().Perm()); err != nil {
		os.Remove(backup)
		return "", err
	}
	return backup, nil
}

// rollback returns each replaced table to its previous state.
func rollback(tables []table, backups []string) {
	for i, t := range tables {
		if backups[i] == "" {
			os.Remove(t.path)
			continue
		}
		os.Rename(backups[i], t.path)
	}
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}

func stage(t table, staged *[]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(t.path), "."+filepath.Base(t.path)+".*")
	if err != nil {
		return err
	}
	*staged = append(*staged, tmp.Name())

	if _, err := tmp.Write(t.data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	return tmp.Close()
}

func tableError(path string, err error) error {
	return apperrors.NewStorageError(apperrors.CodeTableWriteFailed, fmt.Sprintf("write %s", path), err)
}
