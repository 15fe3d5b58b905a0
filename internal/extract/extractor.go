// Package extract recovers id, level and object-name fields from record
// archives by pattern matching and renders them as table rows.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/zipcorpus/zipcorpus/internal/archive"
	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
	"github.com/zipcorpus/zipcorpus/internal/logging"
	"github.com/zipcorpus/zipcorpus/pkg/types"
)

// Matchers for the three extracted fields. Each tolerates whitespace
// between tokens and captures the single-quoted value.
var (
	idPattern     = regexp.MustCompile(`<\s*var\s+name\s*=\s*'id'\s+value\s*=\s*'([^']*)'\s*/\s*>`)
	levelPattern  = regexp.MustCompile(`<\s*var\s+name\s*=\s*'level'\s+value\s*=\s*'([^']*)'\s*/\s*>`)
	objectPattern = regexp.MustCompile(`<\s*object\s+name\s*=\s*'([^']*)'\s*/\s*>`)
)

// Entry holds the fields matched in one record entry.
type Entry struct {
	ID       string
	Level    string
	Children []string
}

// ParseEntry applies the three matchers to text. It returns a malformed
// entry error when the id or level matcher finds nothing; zero object
// matches is valid.
func ParseEntry(text string) (*Entry, error) {
	id := idPattern.FindStringSubmatch(text)
	if id == nil {
		return nil, apperrors.NewMalformedEntryError("no id attribute")
	}
	level := levelPattern.FindStringSubmatch(text)
	if level == nil {
		return nil, apperrors.NewMalformedEntryError("no level attribute")
	}

	matches := objectPattern.FindAllStringSubmatch(text, -1)
	children := make([]string, len(matches))
	for i, m := range matches {
		children[i] = m[1]
	}

	return &Entry{
		ID:       id[1],
		Level:    level[1],
		Children: children,
	}, nil
}

// Result holds the rows extracted from one archive.
type Result struct {
	// LevelRows holds one "id, level" line per valid entry
	LevelRows string

	// ChildRows holds one "id, object_name" line per object
	ChildRows string

	// Entries is the number of record entries examined
	Entries int

	// Skipped is the number of malformed entries left out of both blocks
	Skipped int

	// Children is the number of child rows
	Children int
}

// Extractor reads archives and extracts their rows.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor. A nil logger discards output.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logging.OrNop(logger)}
}

// Extract reads every record entry of the archive at path, in container
// order. Malformed entries are logged and skipped. Failing to open or read
// the archive returns a read failure.
func (e *Extractor) Extract(path string) (*Result, error) {
	var levels, children strings.Builder
	result := &Result{}

	err := archive.ReadEntries(path, func(name string, body []byte) error {
		if !archive.IsRecordEntry(name) {
			return nil
		}
		result.Entries++

		entry, err := ParseEntry(string(body))
		if err != nil {
			result.Skipped++
			e.logger.Warn("skipping malformed entry",
				zap.String("archive", path),
				zap.String("entry", name),
				apperrors.LogField(err))
			return nil
		}

		levels.WriteString(types.LevelRow{ID: entry.ID, Level: entry.Level}.String())
		levels.WriteByte('\n')
		for _, c := range entry.Children {
			children.WriteString(types.ChildRow{ID: entry.ID, Name: c}.String())
			children.WriteByte('\n')
		}
		result.Children += len(entry.Children)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	result.LevelRows = levels.String()
	result.ChildRows = children.String()

	e.logger.Debug("extracted archive",
		zap.String("archive", path),
		zap.Int("entries", result.Entries),
		zap.Int("skipped", result.Skipped),
		zap.Int("children", result.Children))

	return result, nil
}
