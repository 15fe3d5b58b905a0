package manifest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	catalog, err := NewCatalog(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })
	return catalog
}

func testRun(id, dir string) *RunRecord {
	return &RunRecord{
		RunID:             id,
		DataDir:           dir,
		Seed:              42,
		ArchiveCount:      2,
		RecordsPerArchive: 3,
		IdentifierLength:  16,
		ObjectNameLength:  16,
		Width:             1,
	}
}

func TestCatalog_RunLifecycle(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	run := testRun("run-001", "/data")
	if err := catalog.BeginRun(ctx, run); err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}

	got, err := catalog.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != StatusRunning || got.CompletedAt != nil {
		t.Errorf("new run should be running, got %+v", got)
	}
	if got.Seed != 42 || got.ArchiveCount != 2 || got.RecordsPerArchive != 3 || got.Width != 1 {
		t.Errorf("run fields mismatch: %+v", got)
	}

	archives := []*ArchiveRecord{
		{Index: 1, Name: "1.zip", EntryCount: 3, SizeBytes: 512, FirstID: "a", LastID: "c"},
		{Index: 2, Name: "2.zip", EntryCount: 3, SizeBytes: 640, FirstID: "d", LastID: "f"},
	}
	if err := catalog.RegisterArchives(ctx, "run-001", archives); err != nil {
		t.Fatalf("failed to register archives: %v", err)
	}
	if err := catalog.CompleteRun(ctx, "run-001", StatusCompleted, nil); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	got, err = catalog.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil || got.Error != nil {
		t.Errorf("run should be completed, got %+v", got)
	}

	listed, err := catalog.ListArchives(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to list archives: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 archives, got %d", len(listed))
	}
	if listed[0].Name != "1.zip" || listed[1].FirstID != "d" || listed[1].SizeBytes != 640 {
		t.Errorf("archive fields mismatch: %+v, %+v", listed[0], listed[1])
	}
}

func TestCatalog_FailedRun(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	if err := catalog.BeginRun(ctx, testRun("run-bad", "/data")); err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}
	if err := catalog.CompleteRun(ctx, "run-bad", StatusFailed, fmt.Errorf("disk full")); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	got, err := catalog.GetRun(ctx, "run-bad")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != StatusFailed || got.Error == nil || *got.Error != "disk full" {
		t.Errorf("failed run mismatch: %+v", got)
	}

	if _, err := catalog.LatestRun(ctx, "/data"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("failed runs should not be latest, got %v", err)
	}
}

func TestCatalog_LatestRun(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"old", "new"} {
		run := testRun(id, "/data")
		run.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := catalog.BeginRun(ctx, run); err != nil {
			t.Fatalf("failed to begin run: %v", err)
		}
		if err := catalog.CompleteRun(ctx, id, StatusCompleted, nil); err != nil {
			t.Fatalf("failed to complete run: %v", err)
		}
	}
	other := testRun("elsewhere", "/other")
	other.CreatedAt = base.Add(time.Hour)
	if err := catalog.BeginRun(ctx, other); err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}
	if err := catalog.CompleteRun(ctx, "elsewhere", StatusCompleted, nil); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	latest, err := catalog.LatestRun(ctx, "/data")
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest.RunID != "new" {
		t.Errorf("latest run = %s, want new", latest.RunID)
	}
}

func TestCatalog_NotFound(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	if _, err := catalog.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := catalog.CompleteRun(ctx, "missing", StatusCompleted, nil); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestCatalog_DuplicateArchiveRollsBack(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	if err := catalog.BeginRun(ctx, testRun("run-dup", "/data")); err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}
	archives := []*ArchiveRecord{
		{Index: 1, Name: "1.zip", EntryCount: 3},
		{Index: 1, Name: "1.zip", EntryCount: 3},
	}
	if err := catalog.RegisterArchives(ctx, "run-dup", archives); err == nil {
		t.Fatal("duplicate archive index should fail")
	}

	listed, err := catalog.ListArchives(ctx, "run-dup")
	if err != nil {
		t.Fatalf("failed to list archives: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("failed batch should leave no archives, got %d", len(listed))
	}
}

func TestCatalog_RecordAggregation(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	for _, id := range []string{"agg-1", "agg-2"} {
		err := catalog.RecordAggregation(ctx, &AggregationRecord{
			AggregationID: id,
			InputDir:      "/data",
			OutputDir:     "/data",
			ArchiveCount:  2,
			EntryCount:    6,
			LevelRows:     6,
			ChildRows:     20,
		})
		if err != nil {
			t.Fatalf("failed to record aggregation: %v", err)
		}
	}

	count, err := catalog.CountAggregations(ctx, "/data")
	if err != nil {
		t.Fatalf("CountAggregations failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 aggregations, got %d", count)
	}
}

func TestCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")
	ctx := context.Background()

	catalog, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	if err := catalog.BeginRun(ctx, testRun("persisted", "/data")); err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}
	catalog.Close()

	reopened, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("failed to reopen catalog: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetRun(ctx, "persisted"); err != nil {
		t.Errorf("run should survive reopen: %v", err)
	}
}
