// Package archive reads and writes record archives: zip containers holding
// one text entry per record.
package archive

import (
	"fmt"
	"strconv"
	"strings"
)

// File name suffixes for archives and the record entries inside them.
const (
	ContainerExt = ".zip"
	RecordExt    = ".xml"
)

// Width returns the zero-padding width shared by archive and entry names:
// the decimal digit count of max(archiveCount, recordsPerArchive).
func Width(archiveCount, recordsPerArchive int) int {
	m := archiveCount
	if recordsPerArchive > m {
		m = recordsPerArchive
	}
	if m < 0 {
		m = 0
	}
	return len(strconv.Itoa(m))
}

// ArchiveName returns the file name of the index-th archive (1-based).
func ArchiveName(index, width int) string {
	return fmt.Sprintf("%0*d%s", width, index, ContainerExt)
}

// EntryName returns the entry name of the index-th record (1-based).
func EntryName(index, width int) string {
	return fmt.Sprintf("%0*d%s", width, index, RecordExt)
}

// IsArchive reports whether a file name carries the archive suffix.
func IsArchive(name string) bool {
	return strings.HasSuffix(name, ContainerExt)
}

// IsRecordEntry reports whether an entry name carries the record suffix.
func IsRecordEntry(name string) bool {
	return strings.HasSuffix(name, RecordExt)
}
