// Package observability provides run statistics for pipeline stages.
package observability

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RunStats counts pipeline work across concurrently running tasks.
// All methods are safe for concurrent use.
type RunStats struct {
	mu       sync.Mutex
	started  time.Time
	archives int64
	failed   int64
	entries  int64
	skipped  int64
	levels   int64
	children int64
	bytes    int64
}

// Snapshot is a point-in-time copy of RunStats.
type Snapshot struct {
	Archives       int64
	FailedArchives int64
	Entries        int64
	SkippedEntries int64
	LevelRows      int64
	ChildRows      int64
	Bytes          int64
	Elapsed        time.Duration
}

// NewRunStats creates a tracker whose elapsed time starts now.
func NewRunStats() *RunStats {
	return &RunStats{started: time.Now()}
}

// RecordArchive records one processed archive and its size in bytes.
func (s *RunStats) RecordArchive(sizeBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives++
	s.bytes += sizeBytes
}

// RecordFailure records one archive whose task failed.
func (s *RunStats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

// RecordEntries records processed entries and the rows they produced.
// skipped entries produced no rows.
func (s *RunStats) RecordEntries(entries, skipped, levelRows, childRows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries += int64(entries)
	s.skipped += int64(skipped)
	s.levels += int64(levelRows)
	s.children += int64(childRows)
}

// Snapshot returns the current counters.
func (s *RunStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Archives:       s.archives,
		FailedArchives: s.failed,
		Entries:        s.entries,
		SkippedEntries: s.skipped,
		LevelRows:      s.levels,
		ChildRows:      s.children,
		Bytes:          s.bytes,
		Elapsed:        time.Since(s.started),
	}
}

// MarshalLogObject lets a Snapshot be logged with zap.Object.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("archives", s.Archives)
	enc.AddInt64("failed_archives", s.FailedArchives)
	enc.AddInt64("entries", s.Entries)
	enc.AddInt64("skipped_entries", s.SkippedEntries)
	enc.AddInt64("level_rows", s.LevelRows)
	enc.AddInt64("child_rows", s.ChildRows)
	enc.AddInt64("bytes", s.Bytes)
	enc.AddDuration("elapsed", s.Elapsed)
	return nil
}

// Field returns the snapshot as a zap field named "stats".
func (s Snapshot) Field() zap.Field {
	return zap.Object("stats", s)
}
