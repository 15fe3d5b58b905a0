package generate

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/zipcorpus/zipcorpus/internal/archive"
	"github.com/zipcorpus/zipcorpus/internal/config"
	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
	"github.com/zipcorpus/zipcorpus/internal/extract"
	"github.com/zipcorpus/zipcorpus/internal/manifest"
	"github.com/zipcorpus/zipcorpus/internal/storage"
	"github.com/zipcorpus/zipcorpus/internal/workerpool"
)

func testConfig() config.GenerateConfig {
	return config.DefaultConfig().Generate
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// readIDs returns every id in the archives of dir.
func readIDs(t *testing.T, dir string) []string {
	t.Helper()
	var ids []string
	for _, name := range listDir(t, dir) {
		if !archive.IsArchive(name) {
			continue
		}
		err := archive.ReadEntries(filepath.Join(dir, name), func(_ string, body []byte) error {
			entry, err := extract.ParseEntry(string(body))
			if err != nil {
				return err
			}
			ids = append(ids, entry.ID)
			return nil
		})
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
	}
	return ids
}

func TestGenerate_TwoByThree(t *testing.T) {
	dir := t.TempDir()
	report, err := NewOrchestrator(testConfig()).Generate(context.Background(), dir, 2, 3)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if names := listDir(t, dir); len(names) != 2 || names[0] != "1.zip" || names[1] != "2.zip" {
		t.Fatalf("unexpected archives: %v", names)
	}
	for _, name := range []string{"1.zip", "2.zip"} {
		entries, err := archive.EntryNames(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("EntryNames(%s) failed: %v", name, err)
		}
		if len(entries) != 3 || entries[0] != "1.xml" || entries[1] != "2.xml" || entries[2] != "3.xml" {
			t.Errorf("%s entries = %v", name, entries)
		}
	}

	if report.Width != 1 || report.Records != 6 || len(report.Archives) != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Stats.Archives != 2 || report.Stats.Entries != 6 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
	if report.RunID == "" {
		t.Error("report should carry a run id")
	}
}

func TestGenerate_UniqueIdentifiers(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewOrchestrator(testConfig(), WithWorkers(3)).Generate(context.Background(), dir, 12, 25); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	ids := readIDs(t, dir)
	if len(ids) != 300 {
		t.Fatalf("expected 300 ids, got %d", len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if len(id) != 16 {
			t.Errorf("id %q has length %d", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q across archives", id)
		}
		seen[id] = true
	}
}

func TestGenerate_PaddedNames(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewOrchestrator(testConfig()).Generate(context.Background(), dir, 3, 10); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	names := listDir(t, dir)
	if len(names) != 3 || names[0] != "01.zip" || names[2] != "03.zip" {
		t.Fatalf("unexpected archives: %v", names)
	}
	entries, err := archive.EntryNames(filepath.Join(dir, "02.zip"))
	if err != nil {
		t.Fatalf("EntryNames failed: %v", err)
	}
	if entries[0] != "01.xml" || entries[9] != "10.xml" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestGenerate_DeterministicAcrossWorkerCounts(t *testing.T) {
	contents := func(workers int) map[string]string {
		dir := t.TempDir()
		_, err := NewOrchestrator(testConfig(), WithWorkers(workers)).Generate(context.Background(), dir, 4, 5)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		out := make(map[string]string)
		for _, name := range listDir(t, dir) {
			err := archive.ReadEntries(filepath.Join(dir, name), func(entry string, body []byte) error {
				out[name+"/"+entry] = string(body)
				return nil
			})
			if err != nil {
				t.Fatalf("ReadEntries failed: %v", err)
			}
		}
		return out
	}

	a, b := contents(1), contents(8)
	if len(a) != 20 || len(a) != len(b) {
		t.Fatalf("entry counts differ: %d vs %d", len(a), len(b))
	}
	for k, v := range a {
		if b[k] != v {
			t.Errorf("entry %s differs between worker counts", k)
		}
	}
}

func TestGenerate_Zero(t *testing.T) {
	dir := t.TempDir()
	for _, counts := range [][2]int{{0, 5}, {5, 0}, {0, 0}} {
		report, err := NewOrchestrator(testConfig()).Generate(context.Background(), dir, counts[0], counts[1])
		if err != nil {
			t.Fatalf("Generate(%d, %d) failed: %v", counts[0], counts[1], err)
		}
		if len(report.Archives) != 0 {
			t.Errorf("Generate(%d, %d) reported archives", counts[0], counts[1])
		}
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("expected no files, got %v", names)
	}
}

func TestGenerate_Negative(t *testing.T) {
	_, err := NewOrchestrator(testConfig()).Generate(context.Background(), t.TempDir(), -1, 3)
	if apperrors.GetCode(err) != apperrors.CodeInvalidConfig {
		t.Errorf("expected invalid config, got %v", err)
	}
}

func TestGenerate_PoolExhaustionWritesNothing(t *testing.T) {
	cfg := testConfig()
	cfg.IdentifierLength = 1

	dir := t.TempDir()
	_, err := NewOrchestrator(cfg).Generate(context.Background(), dir, 7, 10)
	if !errors.Is(err, apperrors.ErrPoolExhausted) {
		t.Fatalf("expected pool exhaustion, got %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("pool exhaustion should write nothing, got %v", names)
	}
}

func TestGenerate_PoolSizeOverflow(t *testing.T) {
	dir := t.TempDir()
	_, err := NewOrchestrator(config.DefaultConfig().Generate).Generate(context.Background(), dir, 4, math.MaxInt/2)
	if !errors.Is(err, apperrors.ErrPoolExhausted) {
		t.Fatalf("expected pool exhaustion, got %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("overflowing pool size should write nothing, got %v", names)
	}
}

func TestGenerate_WriteFailureAfterAllTasks(t *testing.T) {
	dir := t.TempDir()
	// a directory squatting on 2.zip makes that archive unwritable
	if err := os.Mkdir(filepath.Join(dir, "2.zip"), 0755); err != nil {
		t.Fatalf("failed to create blocker: %v", err)
	}

	_, err := NewOrchestrator(testConfig(), WithWorkers(1)).Generate(context.Background(), dir, 3, 2)
	if !errors.Is(err, apperrors.ErrWriteFailed) {
		t.Fatalf("expected write failure, got %v", err)
	}
	var taskErr *workerpool.TaskError
	if !errors.As(err, &taskErr) || taskErr.Index != 1 {
		t.Errorf("expected failure of task 1, got %v", err)
	}

	// the other tasks still ran
	for _, name := range []string{"1.zip", "3.zip"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s should have been written: %v", name, err)
		}
	}
}

func TestGenerate_RecordsManifest(t *testing.T) {
	catalog, err := manifest.NewCatalog(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	defer catalog.Close()

	dir := t.TempDir()
	ctx := context.Background()
	report, err := NewOrchestrator(testConfig(), WithCatalog(catalog)).Generate(ctx, dir, 2, 3)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	run, err := catalog.LatestRun(ctx, dir)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if run.RunID != report.RunID || run.Seed != 42 || run.Width != 1 {
		t.Errorf("unexpected run: %+v", run)
	}

	archives, err := catalog.ListArchives(ctx, report.RunID)
	if err != nil {
		t.Fatalf("ListArchives failed: %v", err)
	}
	if len(archives) != 2 || archives[0].Name != "1.zip" || archives[1].EntryCount != 3 {
		t.Errorf("unexpected archives: %+v", archives)
	}
	if archives[0].FirstID != report.Archives[0].FirstID {
		t.Errorf("first id mismatch: %s vs %s", archives[0].FirstID, report.Archives[0].FirstID)
	}
}

func TestGenerate_FailedRunRecorded(t *testing.T) {
	catalog, err := manifest.NewCatalog(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	defer catalog.Close()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "1.zip"), 0755); err != nil {
		t.Fatalf("failed to create blocker: %v", err)
	}
	ctx := context.Background()
	if _, err := NewOrchestrator(testConfig(), WithCatalog(catalog)).Generate(ctx, dir, 1, 1); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := catalog.LatestRun(ctx, dir); !errors.Is(err, manifest.ErrRunNotFound) {
		t.Errorf("failed run should not be the latest completed run, got %v", err)
	}
}

func TestGenerate_Publishes(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	dir := t.TempDir()
	ctx := context.Background()

	report, err := NewOrchestrator(testConfig(),
		WithPublisher(storage.NewPublisher(store, "corpus", 2, nil)),
	).Generate(ctx, dir, 3, 2)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if report.Published == nil || len(report.Published.Keys) != 3 {
		t.Fatalf("unexpected publish result: %+v", report.Published)
	}

	objects, err := store.ListObjects(ctx, "corpus")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	sort.Strings(objects)
	if len(objects) != 3 || objects[0] != "corpus/1.zip" {
		t.Errorf("unexpected objects: %v", objects)
	}
}
