package lsm

import (
	"bytes"
	"container/heap"
	"fmt"

	"github.com/tpatterson-labs/flashtree/filestore"
	"github.com/tpatterson-labs/flashtree/merge"
	"github.com/tpatterson-labs/flashtree/snapshot"
	"github.com/tpatterson-labs/flashtree/sst"
)

// heapEntry is one level's current key, tracked in the tree iterator's
// min-heap. The key is an owned copy rather than a borrow of the level
// iterator's cursor, trading a small allocation per Advance for a heap that
// never has to worry about a cursor mutating out from under it.
type heapEntry struct {
	key   []byte
	level int
}

type entryHeap []heapEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].key, h[j].key); c != 0 {
		return c < 0
	}
	// Equal keys: lower level index (fresher data) sorts first.
	return h[i].level < h[j].level
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(heapEntry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// TreeIterator k-way merges one LevelIter per LSM level into a single
// ascending-key stream, lowest level index first on ties. It is
// intentionally low level: it never interprets tombstones or collapses
// duplicates across levels -- that's the merge package's job.
type TreeIterator struct {
	levels []*LevelIter
	heap   entryHeap
}

// NewTreeIterator builds a TreeIterator with one LevelIter per level in
// table, all backed by store.
func NewTreeIterator(table snapshot.TableSnapshot, store filestore.Store) *TreeIterator {
	levels := make([]*LevelIter, len(table.Levels))
	for i, lvl := range table.Levels {
		levels[i] = NewLevelIter(lvl, store)
	}
	return &TreeIterator{levels: levels}
}

// Seek moves every level's cursor to the first record with key >= key and
// rebuilds the heap from whichever levels still have a record.
func (t *TreeIterator) Seek(key []byte) error {
	t.heap = t.heap[:0]
	for i, l := range t.levels {
		if err := l.Seek(key); err != nil {
			return err
		}
		if k, _, ok := l.Get(); ok {
			heap.Push(&t.heap, heapEntry{key: append([]byte(nil), k...), level: i})
		}
	}
	return nil
}

// Advance moves past the current record, backfilling the heap from the
// level it came from if that level still has more records.
func (t *TreeIterator) Advance() error {
	if t.heap.Len() == 0 {
		return nil
	}
	top := heap.Pop(&t.heap).(heapEntry)
	l := t.levels[top.level]
	if err := l.Advance(); err != nil {
		return err
	}
	if k, _, ok := l.Get(); ok {
		heap.Push(&t.heap, heapEntry{key: append([]byte(nil), k...), level: top.level})
	}
	return nil
}

// Get returns the record at the current cursor position.
func (t *TreeIterator) Get() (key, value []byte, ok bool) {
	if t.heap.Len() == 0 {
		return nil, nil, false
	}
	top := t.heap[0]
	return t.levels[top.level].Get()
}

// Close releases every level's open SST view.
func (t *TreeIterator) Close() {
	for _, l := range t.levels {
		l.Close()
	}
}

// Lookup performs a point read for key against the levels in it, applying
// merger to the newest-first run of matching records. When latestOnly is
// set the read stops at the first (freshest) level with a match instead of
// walking every level to assemble the full run -- valid only for mergers
// that would keep the freshest record anyway (Noop on unique keys, or any
// caller that knows deeper levels can't change the outcome).
//
// Lookup positions it using each level's bloom sidecar where available,
// skipping the SST open entirely for a level whose sidecar reports key
// definitely absent. This is only sound for an exact-key read: it leaves
// it positioned for further Lookup calls, not for a resumed range scan
// (call Seek explicitly first if you need that).
func Lookup(it *TreeIterator, key []byte, merger merge.Merger, latestOnly merge.LatestOnly) ([]byte, bool, error) {
	if err := it.seekSkippingBloomMisses(key); err != nil {
		return nil, false, err
	}
	k, v, ok := it.Get()
	if !ok || !bytes.Equal(k, key) {
		return nil, false, nil
	}
	if latestOnly {
		return append([]byte(nil), v...), true, nil
	}

	var records []merge.Record
	for {
		k, v, ok := it.Get()
		if !ok || !bytes.Equal(k, key) {
			break
		}
		records = append(records, merge.Record{
			Key:   append([]byte(nil), k...),
			Value: append([]byte(nil), v...),
		})
		if err := it.Advance(); err != nil {
			return nil, false, err
		}
	}

	merged, err := merger.Merge(records)
	if err != nil {
		return nil, false, fmt.Errorf("lsm: lookup %q: %w", key, err)
	}
	if len(merged) == 0 {
		return nil, false, nil
	}
	return merged[0].Value, true, nil
}

// seekSkippingBloomMisses is Seek's point-lookup sibling: before opening a
// level's candidate SST it consults the candidate's bloom sidecar, and
// leaves the level inactive (no heap entry) without opening anything when
// the sidecar proves key can't be there. A level whose candidate has no
// sidecar, or whose candidate doesn't cover key's range at all, falls back
// to the ordinary open-and-seek path.
func (t *TreeIterator) seekSkippingBloomMisses(key []byte) error {
	t.heap = t.heap[:0]
	for i, l := range t.levels {
		l.closeCurrent()
		desc, idx, ok := l.candidateDescriptor(key)
		if !ok {
			l.active = false
			continue
		}
		if bloomRulesOutExact(l.store, desc, key) {
			l.active = false
			continue
		}
		if err := l.openAt(idx, key); err != nil {
			return err
		}
		if k, _, ok := l.Get(); ok {
			heap.Push(&t.heap, heapEntry{key: append([]byte(nil), k...), level: i})
		}
	}
	return nil
}

// bloomRulesOutExact reports whether desc's bloom sidecar proves key is
// absent from desc. A missing or unreadable sidecar, or a key outside
// desc's covered range, never rules anything out -- it degrades to "maybe
// present", matching the never-false-negative contract a bloom filter
// gives.
func bloomRulesOutExact(store filestore.Store, desc snapshot.SstDescriptor, key []byte) bool {
	if bytes.Compare(key, desc.MinKey) < 0 || bytes.Compare(key, desc.MaxKey) > 0 {
		return false
	}
	bf, err := sst.LoadBloomSidecar(store, desc.Identifier)
	if err != nil {
		return false
	}
	return !bf.Test(key)
}
