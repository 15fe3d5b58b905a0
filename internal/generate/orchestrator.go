// Package generate implements Stage 1: it draws a pool of unique identifiers,
// partitions it across archives and writes the archives in parallel.
package generate

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zipcorpus/zipcorpus/internal/archive"
	"github.com/zipcorpus/zipcorpus/internal/config"
	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
	"github.com/zipcorpus/zipcorpus/internal/logging"
	"github.com/zipcorpus/zipcorpus/internal/manifest"
	"github.com/zipcorpus/zipcorpus/internal/observability"
	"github.com/zipcorpus/zipcorpus/internal/record"
	"github.com/zipcorpus/zipcorpus/internal/storage"
	"github.com/zipcorpus/zipcorpus/internal/workerpool"
	"github.com/zipcorpus/zipcorpus/pkg/token"
)

// Orchestrator runs generation.
type Orchestrator struct {
	cfg       config.GenerateConfig
	workers   int
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

// WithCatalog records every run and its archives in catalog.
func WithCatalog(catalog manifest.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = catalog }
}

// WithPublisher uploads the written archives after a successful run.
func WithPublisher(p *storage.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates a generation orchestrator.
func NewOrchestrator(cfg config.GenerateConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

// Report describes a completed generation run.
type Report struct {
	RunID     string
	Width     int
	Records   int
	Archives  []*archive.Info
	Stats     observability.Snapshot
	Published *storage.PublishResult
}

// Generate writes archiveCount archives of recordsPerArchive records each
// into dir. Either count being zero writes nothing.
//
// The identifier pool is drawn and partitioned before any archive is
// written, so pool exhaustion leaves dir untouched. Archive i is written by
// its own task with a generator seeded DeriveSeed(seed, i); the output is
// the same for a given seed whatever the worker count. Every task runs to
// completion before the lowest-indexed failure is returned.
func (o *Orchestrator) Generate(ctx context.Context, dir string, archiveCount, recordsPerArchive int) (*Report, error) {
	if archiveCount < 0 || recordsPerArchive < 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidConfig,
			fmt.Sprintf("archive count and records per archive must be >= 0, got %d x %d", archiveCount, recordsPerArchive))
	}

	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))
	stats := observability.NewRunStats()

	report := &Report{
		RunID: runID,
		Width: archive.Width(archiveCount, recordsPerArchive),
	}
	if archiveCount == 0 || recordsPerArchive == 0 {
		logger.Info("nothing to generate",
			zap.Int("archive_count", archiveCount),
			zap.Int("records_per_archive", recordsPerArchive))
		report.Stats = stats.Snapshot()
		return report, nil
	}

	if archiveCount > math.MaxInt/recordsPerArchive {
		return nil, apperrors.NewPoolExhaustedError(fmt.Sprintf(
			"%d archives x %d records overflows the identifier pool size", archiveCount, recordsPerArchive))
	}

	ids, err := record.BuildPool(token.New(o.cfg.Seed), record.PoolConfig{
		Size:              archiveCount * recordsPerArchive,
		IDLength:          o.cfg.IdentifierLength,
		MaxDuplicateDraws: o.cfg.MaxDuplicateDraws,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	groups, err := record.Partition(ids, archiveCount, recordsPerArchive)
	if err != nil {
		return nil, apperrors.NewInternalError("partition identifier pool", err)
	}
	report.Records = len(ids)

	if err := o.beginRun(ctx, runID, dir, archiveCount, recordsPerArchive, report.Width); err != nil {
		return nil, err
	}

	logger.Info("generating archives",
		zap.String("dir", dir),
		zap.Int("archive_count", archiveCount),
		zap.Int("records_per_archive", recordsPerArchive),
		zap.Int("width", report.Width))

	infos, err := workerpool.Run(ctx, o.workers, archiveCount, func(ctx context.Context, i int) (*archive.Info, error) {
		index := i + 1
		synth := record.NewSynthesizer(token.New(token.DeriveSeed(o.cfg.Seed, index)), o.cfg.ObjectNameLength)
		path := filepath.Join(dir, archive.ArchiveName(index, report.Width))

		info, err := archive.WriteArchive(path, groups[i], report.Width, synth)
		if err != nil {
			stats.RecordFailure()
			logger.Error("archive write failed", zap.String("archive", path), apperrors.LogField(err))
			return nil, err
		}
		stats.RecordArchive(info.SizeBytes)
		stats.RecordEntries(info.Entries, 0, 0, 0)
		return info, nil
	})
	report.Stats = stats.Snapshot()
	if err != nil {
		o.completeRun(ctx, logger, runID, manifest.StatusFailed, err)
		return nil, fmt.Errorf("generate: %w", err)
	}
	report.Archives = infos

	if err := o.registerArchives(ctx, runID, infos); err != nil {
		o.completeRun(ctx, logger, runID, manifest.StatusFailed, err)
		return nil, err
	}
	o.completeRun(ctx, logger, runID, manifest.StatusCompleted, nil)

	if o.publisher != nil {
		paths := make([]string, len(infos))
		for i, info := range infos {
			paths[i] = info.Path
		}
		published, err := o.publisher.Publish(ctx, paths)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		report.Published = published
	}

	logger.Info("generation complete", report.Stats.Field())
	return report, nil
}

func (o *Orchestrator) beginRun(ctx context.Context, runID, dir string, archiveCount, recordsPerArchive, width int) error {
	if o.catalog == nil {
		return nil
	}
	err := o.catalog.BeginRun(ctx, &manifest.RunRecord{
		RunID:             runID,
		DataDir:           dir,
		Seed:              o.cfg.Seed,
		ArchiveCount:      archiveCount,
		RecordsPerArchive: recordsPerArchive,
		IdentifierLength:  o.cfg.IdentifierLength,
		ObjectNameLength:  o.cfg.ObjectNameLength,
		Width:             width,
	})
	if err != nil {
		return apperrors.NewStorageError(apperrors.CodeManifestFailed, "record run", err)
	}
	return nil
}

func (o *Orchestrator) registerArchives(ctx context.Context, runID string, infos []*archive.Info) error {
	if o.catalog == nil {
		return nil
	}
	records := make([]*manifest.ArchiveRecord, len(infos))
	for i, info := range infos {
		records[i] = &manifest.ArchiveRecord{
			Index:      i + 1,
			Name:       info.Name,
			EntryCount: info.Entries,
			SizeBytes:  info.SizeBytes,
			FirstID:    info.FirstID,
			LastID:     info.LastID,
		}
	}
	if err := o.catalog.RegisterArchives(ctx, runID, records); err != nil {
		return apperrors.NewStorageError(apperrors.CodeManifestFailed, "record archives", err)
	}
	return nil
}

// completeRun is best-effort; the run outcome is already decided.
func (o *Orchestrator) completeRun(ctx context.Context, logger *zap.Logger, runID, status string, runErr error) {
	if o.catalog == nil {
		return
	}
	if err := o.catalog.CompleteRun(ctx, runID, status, runErr); err != nil {
		logger.Warn("failed to record run status", zap.String("status", status), zap.Error(err))
	}
}
