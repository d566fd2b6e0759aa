// Package sst implements the on-disk sorted-string-table format: a sequence
// of ascending key/value records followed by an embedded B+-tree search
// index and a small fixed footer.
//
// Writers are push-based -- callers already hold records in sorted order,
// most often because they're draining a memtable or merging existing SSTs --
// rather than pull-based iterators, so higher layers aren't forced into a
// chain of iterator adapters just to produce one. Readers do no IO of their
// own: a Reader works directly off the byte slice handed to it by a
// filestore.View, so seeks and advances never fail -- that contract holds
// only for bytes that have already passed Validate.
package sst

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorrupt is returned by Validate when data is too short, carries the
// wrong magic header, an unrecognized footer version, or a root pointer
// that doesn't address a byte range inside data.
var ErrCorrupt = errors.New("sst: corrupt file")

const (
	// SearchTreeSize is the maximum number of children per search-tree page.
	// Kept a power of two for a balanced binary search within a page.
	SearchTreeSize = 64
	// LowerLeafSize is the number of data records a single leaf-level search
	// page covers before Seek falls back to a linear scan within it.
	LowerLeafSize = 16

	headerSize = 26
	footerSize = 6
)

var fileHeader = buildHeader()

// buildHeader constructs the 26-byte literal file header. Built
// programmatically rather than as a raw string literal so the byte count
// isn't at the mercy of miscounted escapes.
func buildHeader() []byte {
	b := []byte("clortho\ndata\nv1\n")
	for i := 0; i < 6; i++ {
		b = append(b, '\n')
	}
	return append(b, []byte("---\n")...)
}

// Info describes an SST once writing has finished: its key range and size,
// enough to populate a snapshot descriptor or drive the LSM level iterator's
// range search without opening the file.
type Info struct {
	Identifier string
	MinKey     []byte
	MaxKey     []byte
	Size       int64
}

// Validate checks that data is plausibly a complete SST file before a
// Reader is built over it: right magic header, a recognized footer
// version, and a root pointer that addresses bytes actually inside data.
// It does not walk the search tree or data section, so it cannot catch
// every form of corruption, only the ones that would otherwise turn into a
// Reader panic or an out-of-bounds slice on first use.
func Validate(data []byte) error {
	if len(data) < headerSize+footerSize {
		return fmt.Errorf("%w: file too short (%d bytes)", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:headerSize], fileHeader) {
		return fmt.Errorf("%w: bad header magic", ErrCorrupt)
	}

	n := len(data)
	footer := data[n-footerSize:]
	version := binary.BigEndian.Uint16(footer[4:6])
	if version != 1 {
		return fmt.Errorf("%w: unsupported footer version %d", ErrCorrupt, version)
	}

	rootPointer := int32(binary.BigEndian.Uint32(footer[0:4]))
	dataEnd := n - footerSize
	if rootPointer >= 0 {
		if int(rootPointer) >= dataEnd {
			return fmt.Errorf("%w: root pointer %d outside data section", ErrCorrupt, rootPointer)
		}
	} else if int(-rootPointer) > dataEnd {
		return fmt.Errorf("%w: root pointer %d outside data section", ErrCorrupt, rootPointer)
	}
	return nil
}

// commonPrefixLen returns the number of leading bytes a and b share.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
