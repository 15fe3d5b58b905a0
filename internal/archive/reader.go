package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
)

// EntryFunc receives one archive entry. Returning an error stops iteration.
type EntryFunc func(name string, body []byte) error

// ReadEntries opens the archive at path and calls fn for every entry in
// container order. Failures to open the container or decode an entry are
// read failures; errors returned by fn are passed through unchanged.
func ReadEntries(path string, fn EntryFunc) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return apperrors.NewReadError(fmt.Sprintf("open %s", path), err)
	}
	defer zr.Close()

	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		body, err := readEntry(f)
		if err != nil {
			return apperrors.NewReadError(fmt.Sprintf("read %s in %s", f.Name, path), err)
		}
		if err := fn(f.Name, body); err != nil {
			return err
		}
	}
	return nil
}

// EntryNames lists the entry names of the archive at path in container order.
func EntryNames(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperrors.NewReadError(fmt.Sprintf("open %s", path), err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// List returns the names of the archive files in dir, in lexical order.
// Symlinks are followed; anything resolving to a directory is ignored, as
// are files without the archive extension. A dangling link is listed so
// that reading it fails instead of the archive going missing.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.NewReadError(fmt.Sprintf("list %s", dir), err)
	}

	var names []string
	for _, e := range entries {
		if !IsArchive(e.Name()) || e.IsDir() {
			continue
		}
		if e.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, e.Name())); err == nil && info.IsDir() {
				continue
			}
		}
		names = append(names, e.Name())
	}
	return names, nil
}
