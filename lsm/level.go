// Package lsm implements the two-layer merging iteration over an LSM tree:
// a LevelIter walks the disjoint SSTs of a single level, and a TreeIterator
// k-way merges one LevelIter per level into a single globally ordered
// stream, lowest level index winning ties.
package lsm

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/tpatterson-labs/flashtree/filestore"
	"github.com/tpatterson-labs/flashtree/snapshot"
	"github.com/tpatterson-labs/flashtree/sst"
)

// LevelIter is a cursor over one LSM level: an ordered, disjoint-range run
// of SSTs. It tracks at most one open SST at a time.
type LevelIter struct {
	level snapshot.Level
	store filestore.Store

	view   filestore.View
	reader *sst.Reader
	idx    int
	active bool
}

// NewLevelIter creates a cursor over level, opening SSTs through store as
// needed.
func NewLevelIter(level snapshot.Level, store filestore.Store) *LevelIter {
	return &LevelIter{level: level, store: store}
}

// Seek moves the cursor to the first record with a key >= key.
func (l *LevelIter) Seek(key []byte) error {
	l.closeCurrent()

	_, idx, ok := l.candidateDescriptor(key)
	if !ok {
		l.active = false
		return nil
	}
	return l.openAt(idx, key)
}

// candidateDescriptor finds the only SST that could contain key or
// anything after it.
//
// The first SST whose max key is >= key is the only candidate: ranges are
// disjoint and ascending, so this predicate is monotonic and a seek
// landing in a gap between two SSTs' ranges naturally forwards to the next
// one.
func (l *LevelIter) candidateDescriptor(key []byte) (snapshot.SstDescriptor, int, bool) {
	idx := sort.Search(len(l.level.Ssts), func(i int) bool {
		return bytes.Compare(l.level.Ssts[i].MaxKey, key) >= 0
	})
	if idx >= len(l.level.Ssts) {
		return snapshot.SstDescriptor{}, 0, false
	}
	return l.level.Ssts[idx], idx, true
}

// Advance moves to the record immediately following the current one,
// crossing into the next SST if the current one is exhausted.
func (l *LevelIter) Advance() error {
	if !l.active {
		return nil
	}
	l.reader.Advance()
	if _, _, ok := l.reader.Get(); ok {
		return nil
	}
	next := l.idx + 1
	if next >= len(l.level.Ssts) {
		l.closeCurrent()
		l.active = false
		return nil
	}
	return l.openAt(next, nil)
}

// Get returns the record at the current cursor position.
func (l *LevelIter) Get() (key, value []byte, ok bool) {
	if !l.active {
		return nil, nil, false
	}
	return l.reader.Get()
}

func (l *LevelIter) openAt(idx int, seekKey []byte) error {
	l.closeCurrent()
	desc := l.level.Ssts[idx]
	view, err := l.store.OpenForRead(desc.Identifier)
	if err != nil {
		return fmt.Errorf("lsm: open sst %q: %w", desc.Identifier, err)
	}
	if err := sst.Validate(view.Bytes()); err != nil {
		view.Close()
		return fmt.Errorf("lsm: validate sst %q: %w", desc.Identifier, err)
	}
	reader := sst.NewReader(view.Bytes())
	reader.Seek(seekKey)
	l.view, l.reader, l.idx, l.active = view, reader, idx, true
	return nil
}

func (l *LevelIter) closeCurrent() {
	if l.view != nil {
		l.view.Close()
	}
	l.view, l.reader = nil, nil
}

// Close releases any open SST view. Safe to call multiple times.
func (l *LevelIter) Close() {
	l.closeCurrent()
	l.active = false
}
