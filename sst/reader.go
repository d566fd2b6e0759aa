package sst

import (
	"bytes"
	"encoding/binary"

	"github.com/tpatterson-labs/flashtree/varint"
)

// Reader is a cursor over an SST's bytes. It does no IO: data is expected to
// already be resident (typically a filestore.View's memory-mapped or
// in-memory bytes), so Seek, Advance, and Get can never fail. The zero value
// is not usable; construct with NewReader.
type Reader struct {
	data []byte

	// pos is the offset of the *next* record, or nil once the cursor has
	// run off the end of the data section.
	pos []byte

	key, value []byte
	hasRecord  bool
}

// NewReader wraps data, the full byte contents of one SST file, in a Reader.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Seek moves the cursor to the first record with a key greater than or
// equal to key. If no such record exists, Get returns ok=false until the
// next Seek.
func (r *Reader) Seek(key []byte) {
	n := len(r.data)
	pointer := int32(binary.BigEndian.Uint32(r.data[n-footerSize : n-footerSize+4]))
	r.pos, _ = r.walkFrom(pointer, key)
}

// Advance moves the cursor to the record immediately following the current
// one. Calling Advance when Get's ok is already false is a no-op.
func (r *Reader) Advance() {
	if r.pos == nil {
		r.key, r.value, r.hasRecord = nil, nil, false
		return
	}
	buf := r.pos
	var keyLen, valLen uint32
	keyLen, buf = varint.Unsigned(buf)
	valLen, buf = varint.Unsigned(buf)
	if keyLen == 0 && valLen == 0 {
		r.key, r.value, r.hasRecord = nil, nil, false
		r.pos = nil
		return
	}
	r.key = buf[:keyLen]
	r.value = buf[keyLen : keyLen+valLen]
	r.hasRecord = true
	r.pos = buf[keyLen+valLen:]
}

// Get returns the record at the current cursor position. ok is false once
// the cursor has run past the last record.
func (r *Reader) Get() (key, value []byte, ok bool) {
	return r.key, r.value, r.hasRecord
}

// walkFrom descends from pointer to the first record with a key >= key,
// updating the reader's current record as a side effect and returning the
// position just past it (nil if none was found).
func (r *Reader) walkFrom(from int32, key []byte) (next []byte, found bool) {
	if from < 0 {
		buf := r.data[-from:]
		for {
			var keyLen, valLen uint32
			keyLen, buf = varint.Unsigned(buf)
			valLen, buf = varint.Unsigned(buf)
			if keyLen == 0 && valLen == 0 {
				r.key, r.value, r.hasRecord = nil, nil, false
				return nil, false
			}
			k := buf[:keyLen]
			if bytes.Compare(k, key) >= 0 {
				v := buf[keyLen : keyLen+valLen]
				r.key, r.value, r.hasRecord = k, v, true
				return buf[keyLen+valLen:], true
			}
			buf = buf[keyLen+valLen:]
		}
	}

	childCount := r.data[from]
	pivotPtrBase := int(from) + 1
	childPtrBase := int(childCount-1)*4 + pivotPtrBase

	childIdx := searchChildren(childCount, func(idx uint8) int {
		pivotPtrPtr := int(idx)*4 + pivotPtrBase
		pivotPointer := binary.BigEndian.Uint32(r.data[pivotPtrPtr : pivotPtrPtr+4])
		pivotBuf := r.data[pivotPointer:]
		pivotLen, pivotBuf := varint.Unsigned(pivotBuf)
		return bytes.Compare(pivotBuf[:pivotLen], key)
	})

	childPtrPtr := int(childIdx)*4 + childPtrBase
	childPtr := int32(binary.BigEndian.Uint32(r.data[childPtrPtr : childPtrPtr+4]))
	return r.walkFrom(childPtr, key)
}

// searchChildren finds the child index a key belongs under given a
// comparator returning pivot.Compare(key) for each pivot index in
// [0, size-1). Treats a pivot equal to the search key the same as a pivot
// less than it (descend right), since a pivot is greater than every key of
// its left child and no greater than the first key of its right child.
func searchChildren(size uint8, cmp func(uint8) int) uint8 {
	left, right := uint8(0), size-1
	for right != left {
		mid := (left + right) / 2
		if cmp(mid) > 0 {
			right = mid
		} else {
			left = mid + 1
		}
	}
	return left
}
