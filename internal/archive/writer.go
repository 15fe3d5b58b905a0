package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
)

// RecordSource renders the text of the record for an identifier.
// *record.Synthesizer implements it.
type RecordSource interface {
	Synthesize(id string) string
}

// Info describes a written archive.
type Info struct {
	Path      string
	Name      string
	Entries   int
	SizeBytes int64
	FirstID   string
	LastID    string
}

// WriteArchive creates the archive at path holding one entry per id, in
// order. Entry i is named EntryName(i+1, width) and holds src.Synthesize(id).
// A failed write may leave a truncated file at path; it is not removed.
func WriteArchive(path string, ids []string, width int, src RecordSource) (*Info, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, apperrors.NewWriteError(fmt.Sprintf("create %s", path), err)
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, newFlateWriter)

	if err := writeEntries(zw, ids, width, src); err != nil {
		zw.Close()
		f.Close()
		return nil, apperrors.NewWriteError(fmt.Sprintf("write %s", path), err)
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return nil, apperrors.NewWriteError(fmt.Sprintf("finalize %s", path), err)
	}
	if err := f.Close(); err != nil {
		return nil, apperrors.NewWriteError(fmt.Sprintf("close %s", path), err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewWriteError(fmt.Sprintf("stat %s", path), err)
	}

	info := &Info{
		Path:      path,
		Name:      filepath.Base(path),
		Entries:   len(ids),
		SizeBytes: stat.Size(),
	}
	if len(ids) > 0 {
		info.FirstID = ids[0]
		info.LastID = ids[len(ids)-1]
	}
	return info, nil
}

func writeEntries(zw *zip.Writer, ids []string, width int, src RecordSource) error {
	for i, id := range ids {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   EntryName(i+1, width),
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, src.Synthesize(id)); err != nil {
			return err
		}
	}
	return nil
}

func newFlateWriter(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.DefaultCompression)
}
