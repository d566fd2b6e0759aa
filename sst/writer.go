package sst

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tpatterson-labs/flashtree/filestore"
	"github.com/tpatterson-labs/flashtree/varint"
)

// ErrOutOfOrder is returned by PushRecord when a key does not sort strictly
// after the previously pushed key.
var ErrOutOfOrder = errors.New("sst: records must be pushed in strictly ascending key order")

// pageData describes one search-tree child: the key range it covers and the
// pointer used to reach it. A negative pointer is the negated absolute
// offset of a data-section record; a non-negative pointer is the absolute
// offset of a search-page header byte.
type pageData struct {
	min, max []byte
	pointer  int32
}

// Writer builds a single SST file. Records must be pushed in ascending key
// order with no duplicates; the header is written eagerly on construction
// and the search tree plus footer are written on Finish.
type Writer struct {
	identifier string
	w          filestore.Writer

	dataPages   []pageData
	pageOffset  int
	currentPage pageData

	minKey, lastKey []byte
	started         bool
}

// NewWriter creates a Writer over w, eagerly writing the file header.
// identifier names the blob and is carried through to the Info returned by
// Finish so callers can register it in a snapshot without threading it
// through separately.
func NewWriter(identifier string, w filestore.Writer) (*Writer, error) {
	if _, err := w.Write(fileHeader); err != nil {
		return nil, fmt.Errorf("sst: write header: %w", err)
	}
	return &Writer{identifier: identifier, w: w}, nil
}

// Size reports the number of bytes written so far (header plus data
// section). Callers poll this to decide when to stop feeding one SST and
// start a new one.
func (sw *Writer) Size() int64 {
	return sw.w.Offset()
}

// PushRecord appends one record to the data section and returns the
// record's pointer (always negative: the negated absolute offset of its
// header byte), which upper layers may stash away to avoid a later seek.
func (sw *Writer) PushRecord(key, value []byte) (int32, error) {
	if sw.started && bytes.Compare(key, sw.lastKey) <= 0 {
		return 0, ErrOutOfOrder
	}
	sw.started = true
	if sw.minKey == nil {
		sw.minKey = append([]byte(nil), key...)
	}
	sw.lastKey = append([]byte(nil), key...)

	recordPointer := int32(-sw.Size())

	buf := varint.PutUnsigned(nil, uint32(len(key)))
	buf = varint.PutUnsigned(buf, uint32(len(value)))
	buf = append(buf, key...)
	buf = append(buf, value...)
	if _, err := sw.w.Write(buf); err != nil {
		return 0, fmt.Errorf("sst: write record: %w", err)
	}

	if sw.pageOffset == 0 {
		sw.currentPage.min = append([]byte(nil), key...)
		sw.currentPage.pointer = recordPointer
	}
	sw.currentPage.max = append([]byte(nil), key...)

	sw.pageOffset++
	if sw.pageOffset == LowerLeafSize {
		sw.pageOffset = 0
		sw.dataPages = append(sw.dataPages, sw.currentPage)
		sw.currentPage = pageData{}
	}
	return recordPointer, nil
}

// Finish writes the terminator record, the search tree, and the footer,
// flushes the underlying blob, and returns its Info.
func (sw *Writer) Finish() (Info, error) {
	if sw.pageOffset != 0 {
		sw.dataPages = append(sw.dataPages, sw.currentPage)
		sw.currentPage = pageData{}
		sw.pageOffset = 0
	}

	var rootPointer int32
	if len(sw.dataPages) == 0 {
		// Empty SST: the root pointer targets the terminator itself, the
		// only thing in the data section.
		rootPointer = int32(-sw.Size())
		if _, err := sw.w.Write([]byte{0, 0}); err != nil {
			return Info{}, fmt.Errorf("sst: write terminator: %w", err)
		}
	} else {
		if _, err := sw.w.Write([]byte{0, 0}); err != nil {
			return Info{}, fmt.Errorf("sst: write terminator: %w", err)
		}
		pages := sw.dataPages
		sw.dataPages = nil
		var err error
		rootPointer, err = writeSearchTree(pages, sw.w)
		if err != nil {
			return Info{}, err
		}
	}

	if err := sw.writeFooter(rootPointer); err != nil {
		return Info{}, err
	}

	size := sw.Size()
	if err := sw.w.FlushAndClose(); err != nil {
		return Info{}, fmt.Errorf("sst: flush: %w", err)
	}

	return Info{
		Identifier: sw.identifier,
		MinKey:     sw.minKey,
		MaxKey:     sw.lastKey,
		Size:       size,
	}, nil
}

func (sw *Writer) writeFooter(rootPointer int32) error {
	var tmp [footerSize]byte
	binary.BigEndian.PutUint32(tmp[0:4], uint32(rootPointer))
	binary.BigEndian.PutUint16(tmp[4:6], 1)
	if _, err := sw.w.Write(tmp[:]); err != nil {
		return fmt.Errorf("sst: write footer: %w", err)
	}
	return nil
}

// writeSearchTree writes one layer of search-tree pages for children,
// recursing until a single root page (or single data pointer) remains.
func writeSearchTree(children []pageData, w filestore.Writer) (int32, error) {
	if len(children) == 1 {
		return children[0].pointer, nil
	}
	if len(children) == 0 {
		panic("sst: cannot write a search tree for zero pages")
	}

	childPages := make([]pageData, 0, len(children)/SearchTreeSize+1)

	for start := 0; start < len(children); start += SearchTreeSize {
		end := start + SearchTreeSize
		if end > len(children) {
			end = len(children)
		}
		chunk := children[start:end]

		if len(chunk) == 1 {
			// A lone child in its own chunk is passed straight up unchanged;
			// no one-child page is emitted for it.
			childPages = append(childPages, chunk[0])
			continue
		}

		pivotPointers := make([]int32, 0, len(chunk)-1)
		for i := 0; i+1 < len(chunk); i++ {
			left, right := chunk[i], chunk[i+1]
			cpl := commonPrefixLen(left.max, right.min)
			pivot := right.min[:cpl+1]

			pointer := int32(w.Offset())
			buf := varint.PutUnsigned(nil, uint32(len(pivot)))
			buf = append(buf, pivot...)
			if _, err := w.Write(buf); err != nil {
				return 0, fmt.Errorf("sst: write pivot: %w", err)
			}
			pivotPointers = append(pivotPointers, pointer)
		}

		pagePointer := int32(w.Offset())
		if _, err := w.Write([]byte{byte(len(chunk))}); err != nil {
			return 0, fmt.Errorf("sst: write child count: %w", err)
		}
		var tmp [4]byte
		for _, p := range pivotPointers {
			binary.BigEndian.PutUint32(tmp[:], uint32(p))
			if _, err := w.Write(tmp[:]); err != nil {
				return 0, fmt.Errorf("sst: write pivot pointer: %w", err)
			}
		}
		for _, child := range chunk {
			binary.BigEndian.PutUint32(tmp[:], uint32(child.pointer))
			if _, err := w.Write(tmp[:]); err != nil {
				return 0, fmt.Errorf("sst: write child pointer: %w", err)
			}
		}

		childPages = append(childPages, pageData{
			min:     chunk[0].min,
			max:     chunk[len(chunk)-1].max,
			pointer: pagePointer,
		})
	}

	return writeSearchTree(childPages, w)
}
