// Package verify checks a directory of generated archives: naming, entry
// counts, global identifier uniqueness and agreement with the run manifest.
package verify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/zipcorpus/zipcorpus/internal/archive"
	"github.com/zipcorpus/zipcorpus/internal/bloom"
	"github.com/zipcorpus/zipcorpus/internal/extract"
	"github.com/zipcorpus/zipcorpus/internal/logging"
	"github.com/zipcorpus/zipcorpus/internal/manifest"
	"github.com/zipcorpus/zipcorpus/internal/workerpool"
	"github.com/zipcorpus/zipcorpus/pkg/types"
)

// IssueKind classifies a verification finding.
type IssueKind string

const (
	IssueArchiveName IssueKind = "archive_name"
	IssueEntryCount  IssueKind = "entry_count"
	IssueEntryName   IssueKind = "entry_name"
	IssueMalformed   IssueKind = "malformed_entry"
	IssueBounds      IssueKind = "record_bounds"
	IssueDuplicateID IssueKind = "duplicate_id"
	IssueManifest    IssueKind = "manifest_mismatch"
)

// screenFPR is the bloom pre-screen's target false positive rate.
const screenFPR = 0.001

// Issue is one verification finding.
type Issue struct {
	Kind    IssueKind
	Archive string
	Entry   string
	Detail  string
}

func (i Issue) String() string {
	loc := i.Archive
	if i.Entry != "" {
		loc += "/" + i.Entry
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", i.Kind, loc, i.Detail)
}

// Report summarizes a verification.
type Report struct {
	Archives  int
	Entries   int
	UniqueIDs int

	// Candidates is the number of identifiers the bloom pre-screen flagged
	Candidates int

	// Duplicates lists identifiers seen more than once, in first-seen order
	Duplicates []string

	// RunID is the manifest run the directory was checked against, if any
	RunID string

	Issues []Issue
}

// OK reports whether verification found no issues.
func (r *Report) OK() bool {
	return len(r.Issues) == 0
}

// Verifier checks archive directories.
type Verifier struct {
	workers int
	catalog manifest.Catalog
	logger  *zap.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithWorkers sets the worker pool size (<= 0 means one per CPU).
func WithWorkers(n int) Option {
	return func(v *Verifier) { v.workers = n }
}

// WithCatalog cross-checks directories against their latest manifest run.
func WithCatalog(catalog manifest.Catalog) Option {
	return func(v *Verifier) { v.catalog = catalog }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// NewVerifier creates a verifier.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = logging.OrNop(v.logger)
	return v
}

// scan holds what one archive contains.
type scan struct {
	entries   []string
	ids       []string
	malformed []string
	invalid   []invalidEntry
}

// invalidEntry is a parsed entry whose record breaks the synthesis bounds.
type invalidEntry struct {
	name string
	err  error
}

// Verify reads every archive in dir and reports what does not hold.
// Findings are returned in the report; an error means an archive or the
// manifest could not be read.
func (v *Verifier) Verify(ctx context.Context, dir string) (*Report, error) {
	names, err := archive.List(dir)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	scans, err := workerpool.Run(ctx, v.workers, len(names), func(ctx context.Context, i int) (scan, error) {
		return scanArchive(filepath.Join(dir, names[i]))
	})
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	report := &Report{Archives: len(names)}
	for _, s := range scans {
		report.Entries += len(s.entries)
	}

	run, err := v.latestRun(ctx, dir)
	if err != nil {
		return nil, err
	}

	perArchive := 0
	if run != nil {
		perArchive = run.RecordsPerArchive
		report.RunID = run.RunID
	} else if len(scans) > 0 {
		perArchive = len(scans[0].entries)
	}

	checkLayout(report, names, scans, perArchive)
	checkUniqueness(report, names, scans)
	if run != nil {
		if err := v.checkManifest(ctx, report, run, names, scans); err != nil {
			return nil, err
		}
	}

	v.logger.Info("verification complete",
		zap.String("dir", dir),
		zap.Int("archives", report.Archives),
		zap.Int("entries", report.Entries),
		zap.Int("unique_ids", report.UniqueIDs),
		zap.Int("issues", len(report.Issues)))
	return report, nil
}

func scanArchive(path string) (scan, error) {
	var s scan
	err := archive.ReadEntries(path, func(name string, body []byte) error {
		s.entries = append(s.entries, name)
		if !archive.IsRecordEntry(name) {
			return nil
		}
		entry, err := extract.ParseEntry(string(body))
		if err != nil {
			s.malformed = append(s.malformed, name)
			return nil
		}
		s.ids = append(s.ids, entry.ID)
		if err := checkRecord(entry); err != nil {
			s.invalid = append(s.invalid, invalidEntry{name: name, err: err})
		}
		return nil
	})
	return s, err
}

// checkRecord validates the level and child count of a parsed entry.
func checkRecord(entry *extract.Entry) error {
	level, err := strconv.Atoi(entry.Level)
	if err != nil {
		return fmt.Errorf("%w: %q", types.ErrLevelOutOfRange, entry.Level)
	}
	return types.Record{ID: entry.ID, Level: level, Children: entry.Children}.Validate()
}

// checkLayout checks archive and entry names against the padded sequence
// implied by the archive count and per-archive entry count, and reports
// entries that are malformed or out of bounds.
func checkLayout(r *Report, names []string, scans []scan, perArchive int) {
	width := archive.Width(len(names), perArchive)

	for i, name := range names {
		if want := archive.ArchiveName(i+1, width); name != want {
			r.Issues = append(r.Issues, Issue{Kind: IssueArchiveName, Archive: name,
				Detail: fmt.Sprintf("expected %s", want)})
		}

		s := scans[i]
		if len(s.entries) != perArchive {
			r.Issues = append(r.Issues, Issue{Kind: IssueEntryCount, Archive: name,
				Detail: fmt.Sprintf("%d entries, expected %d", len(s.entries), perArchive)})
		}
		for j, entry := range s.entries {
			if want := archive.EntryName(j+1, width); entry != want {
				r.Issues = append(r.Issues, Issue{Kind: IssueEntryName, Archive: name, Entry: entry,
					Detail: fmt.Sprintf("expected %s", want)})
			}
		}
		for _, entry := range s.malformed {
			r.Issues = append(r.Issues, Issue{Kind: IssueMalformed, Archive: name, Entry: entry,
				Detail: "id or level attribute missing"})
		}
		for _, entry := range s.invalid {
			r.Issues = append(r.Issues, Issue{Kind: IssueBounds, Archive: name, Entry: entry.name,
				Detail: entry.err.Error()})
		}
	}
}

// checkUniqueness screens every id through a bloom filter and confirms the
// flagged candidates exactly, so only candidates are held in a map.
func checkUniqueness(r *Report, names []string, scans []scan) {
	total := 0
	for _, s := range scans {
		total += len(s.ids)
	}

	filter := bloom.NewWithEstimates(total, screenFPR)
	candidates := make(map[string]int)
	for _, s := range scans {
		for _, id := range s.ids {
			if filter.TestAndAdd(id) {
				candidates[id] = 0
			}
		}
	}
	r.Candidates = len(candidates)

	// exact pass over candidates only
	firstSeen := make(map[string]string)
	for i, s := range scans {
		for _, id := range s.ids {
			n, ok := candidates[id]
			if !ok {
				continue
			}
			candidates[id] = n + 1
			if n == 0 {
				firstSeen[id] = names[i]
			} else if n == 1 {
				r.Duplicates = append(r.Duplicates, id)
				r.Issues = append(r.Issues, Issue{Kind: IssueDuplicateID, Archive: names[i],
					Detail: fmt.Sprintf("%s first seen in %s", id, firstSeen[id])})
			}
		}
	}

	dupes := 0
	for _, n := range candidates {
		if n > 1 {
			dupes += n - 1
		}
	}
	r.UniqueIDs = total - dupes
}

func (v *Verifier) latestRun(ctx context.Context, dir string) (*manifest.RunRecord, error) {
	if v.catalog == nil {
		return nil, nil
	}
	run, err := v.catalog.LatestRun(ctx, dir)
	if errors.Is(err, manifest.ErrRunNotFound) {
		v.logger.Info("no manifest run for directory", zap.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return run, nil
}

// checkManifest compares the directory with the archives the run recorded.
func (v *Verifier) checkManifest(ctx context.Context, r *Report, run *manifest.RunRecord, names []string, scans []scan) error {
	recorded, err := v.catalog.ListArchives(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	if len(names) != run.ArchiveCount {
		r.Issues = append(r.Issues, Issue{Kind: IssueManifest,
			Detail: fmt.Sprintf("%d archives on disk, run %s recorded %d", len(names), run.RunID, run.ArchiveCount)})
	}

	byName := make(map[string]int, len(names))
	for i, name := range names {
		byName[name] = i
	}
	for _, a := range recorded {
		i, ok := byName[a.Name]
		if !ok {
			r.Issues = append(r.Issues, Issue{Kind: IssueManifest, Archive: a.Name, Detail: "recorded but missing"})
			continue
		}
		ids := scans[i].ids
		if len(scans[i].entries) != a.EntryCount {
			r.Issues = append(r.Issues, Issue{Kind: IssueManifest, Archive: a.Name,
				Detail: fmt.Sprintf("%d entries, recorded %d", len(scans[i].entries), a.EntryCount)})
		}
		if len(ids) > 0 && (ids[0] != a.FirstID || ids[len(ids)-1] != a.LastID) {
			r.Issues = append(r.Issues, Issue{Kind: IssueManifest, Archive: a.Name,
				Detail: fmt.Sprintf("id range %s..%s, recorded %s..%s", ids[0], ids[len(ids)-1], a.FirstID, a.LastID)})
		}
	}
	return nil
}
