package sst

import (
	"fmt"
	"sort"

	"github.com/tpatterson-labs/flashtree/filestore"
	"github.com/tpatterson-labs/flashtree/merge"
)

// bufferedPointer locates one pushed record inside a BufferedWriter's byte
// arena: [start, keyEnd) is the key, [keyEnd, end) is the value.
type bufferedPointer struct {
	start, keyEnd, end uint32
}

// BufferedWriter wraps Writer to accept records in any order. Records are
// buffered into an in-memory byte arena, stable-sorted by key on Finish (so
// an equal-key run retains the relative order records were pushed in), fed
// through a merge.Merger to collapse duplicates, and the survivors are
// pushed into the underlying Writer.
type BufferedWriter struct {
	inner  *Writer
	merger merge.Merger

	arena    []byte
	pointers []bufferedPointer
}

// NewBufferedWriter creates a BufferedWriter over w using merger to collapse
// duplicate keys on Finish.
func NewBufferedWriter(identifier string, w filestore.Writer, merger merge.Merger) (*BufferedWriter, error) {
	inner, err := NewWriter(identifier, w)
	if err != nil {
		return nil, err
	}
	return &BufferedWriter{inner: inner, merger: merger}, nil
}

// PushRecord buffers one record. Unlike Writer.PushRecord, no ordering is
// required between calls.
func (bw *BufferedWriter) PushRecord(key, value []byte) {
	start := uint32(len(bw.arena))
	bw.arena = append(bw.arena, key...)
	keyEnd := uint32(len(bw.arena))
	bw.arena = append(bw.arena, value...)
	end := uint32(len(bw.arena))
	bw.pointers = append(bw.pointers, bufferedPointer{start: start, keyEnd: keyEnd, end: end})
}

// Finish sorts the buffered records by key, merges equal-key runs, and
// writes the survivors out through the underlying push-based Writer.
func (bw *BufferedWriter) Finish() (Info, error) {
	arena := bw.arena
	sort.SliceStable(bw.pointers, func(i, j int) bool {
		a := arena[bw.pointers[i].start:bw.pointers[i].keyEnd]
		b := arena[bw.pointers[j].start:bw.pointers[j].keyEnd]
		return string(a) < string(b)
	})

	records := make([]merge.Record, len(bw.pointers))
	for i, p := range bw.pointers {
		records[i] = merge.Record{
			Key:   arena[p.start:p.keyEnd],
			Value: arena[p.keyEnd:p.end],
		}
	}
	bw.arena, bw.pointers = nil, nil

	survivors, err := bw.merger.Merge(records)
	if err != nil {
		return Info{}, fmt.Errorf("sst: buffered writer: %w", err)
	}
	for _, r := range survivors {
		if _, err := bw.inner.PushRecord(r.Key, r.Value); err != nil {
			return Info{}, fmt.Errorf("sst: buffered writer: %w", err)
		}
	}

	return bw.inner.Finish()
}
