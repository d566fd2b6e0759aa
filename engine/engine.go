// Package engine wires the storage core (varint, filestore, sst, lsm,
// merge, snapshot) together with the memtable, WAL, and segment manager
// into a small top-level key-value store.
//
// Engine is deliberately thin: no write transactions, no compaction
// scheduling, no crash-recovery journal beyond a single linear WAL replay
// on open. Those are named out of the storage core's scope, and this
// package doesn't try to design them -- it exists only to give every core
// component a reachable caller.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/tpatterson-labs/flashtree/filestore"
	"github.com/tpatterson-labs/flashtree/lsm"
	"github.com/tpatterson-labs/flashtree/memtable"
	"github.com/tpatterson-labs/flashtree/merge"
	"github.com/tpatterson-labs/flashtree/segmentmanager"
	"github.com/tpatterson-labs/flashtree/snapshot"
	"github.com/tpatterson-labs/flashtree/sst"
	"github.com/tpatterson-labs/flashtree/wal"
)

// ErrNotFound is returned by Get when key has no live value: either it was
// never written, or the newest write the engine can see is a delete.
var ErrNotFound = errors.New("engine: key not found")

// defaultTable is the single table name this demo engine keeps. The core
// snapshot types support many tables; the engine only exercises one since
// multi-table routing is a caller concern, not a storage-core one.
const defaultTable = "default"

// defaultFlushThreshold is the approximate number of key+value bytes
// buffered in the memtable before Put/Delete triggers an automatic Flush.
const defaultFlushThreshold = 4 << 20

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger installs log in place of a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithFlushThreshold overrides the default 4MiB approximate memtable size
// at which Put/Delete trigger an automatic Flush.
func WithFlushThreshold(n int) Option {
	return func(e *Engine) { e.flushThreshold = n }
}

// Engine is a single-table, single-process KV store built from the storage
// core. Put/Delete append to a WAL and an in-memory memtable; Flush drains
// the memtable through a BufferedWriter into a new level-0 SST and
// publishes it into a fresh DbSnapshot; Get consults the memtable first,
// falling back to an LSM tree iterator over the published snapshot.
type Engine struct {
	log   *zap.SugaredLogger
	store filestore.Store
	wal   *wal.Writer // nil for an engine with no durability (tests only)

	flushThreshold int

	mu         sync.RWMutex
	memtable   memtable.Memtable[string, []byte]
	approxSize int

	snapMu sync.RWMutex
	snap   snapshot.DbSnapshot
}

// New builds an Engine over store, optionally durable through walWriter
// (pass nil for an in-memory-only engine, e.g. in tests). recovered seeds
// the initial memtable state, typically the result of replaying a WAL.
func New(store filestore.Store, walWriter *wal.Writer, recovered memtable.Memtable[string, []byte], opts ...Option) *Engine {
	e := &Engine{
		log:            zap.NewNop().Sugar(),
		store:          store,
		wal:            walWriter,
		flushThreshold: defaultFlushThreshold,
		memtable:       recovered,
		snap:           snapshot.DbSnapshot{Tables: map[string]snapshot.TableSnapshot{}},
	}
	if e.memtable == nil {
		e.memtable = memtable.NewSkipListMemtable[string, []byte]()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenLocal opens (creating if necessary) a durable engine rooted at
// dataDir: SSTs and their bloom sidecars live under dataDir/sst, the WAL
// lives under dataDir/wal as rotating segment files. Existing WAL segments
// are replayed into the initial memtable before new writes are accepted.
// log is used for the store and segment manager as well as the Engine
// itself (pass nil for a no-op logger); further Engine-only options are
// applied through opts. The returned close function stops the WAL writer;
// it does not delete anything under dataDir.
func OpenLocal(dataDir string, log *zap.SugaredLogger, opts ...Option) (*Engine, func() error, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	sstDir := filepath.Join(dataDir, "sst")
	if err := os.MkdirAll(sstDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("engine: create sst dir: %w", err)
	}
	store := filestore.NewLocal(sstDir, log)

	sm, err := segmentmanager.NewDisk(filepath.Join(dataDir, "wal"), segmentmanager.WithLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("engine: open wal segments: %w", err)
	}

	recovered := memtable.NewSkipListMemtable[string, []byte]()
	if err := wal.Replay(sm, log, func(entry *wal.Entry) error {
		switch entry.Op {
		case wal.OpPut:
			recovered.Put(string(entry.Key), entry.Value)
		case wal.OpDelete:
			recovered.Put(string(entry.Key), nil)
		}
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("engine: replay wal: %w", err)
	}
	log.Infow("recovered memtable from wal", "dir", dataDir)

	writer := wal.NewWriter(64, sm)
	e := New(store, writer, recovered, append([]Option{WithLogger(log)}, opts...)...)
	return e, writer.Close, nil
}

// NewInMemory builds a non-durable engine over an in-memory file store,
// for tests and short-lived uses that don't need a WAL.
func NewInMemory(opts ...Option) *Engine {
	return New(filestore.NewMemory(nil), nil, nil, opts...)
}

// Put writes key=value, durably if the engine has a WAL, and triggers a
// Flush once the memtable's approximate size crosses the flush threshold.
func (e *Engine) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if e.wal != nil {
		if err := e.wal.Write(&wal.Entry{Op: wal.OpPut, Key: key, Value: value}); err != nil {
			return fmt.Errorf("engine: wal put: %w", err)
		}
	}
	// A plain append(nil, value...) would collapse a zero-length value
	// back to nil, indistinguishable from Delete's tombstone; make+copy
	// keeps a present-but-empty value non-nil.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	shouldFlush := e.stage(key, valueCopy)
	if shouldFlush {
		return e.Flush()
	}
	return nil
}

// Delete records key as deleted. Reads for key return ErrNotFound until a
// later Put of the same key, whether or not a Flush happens in between.
func (e *Engine) Delete(key []byte) error {
	if e.wal != nil {
		if err := e.wal.Write(&wal.Entry{Op: wal.OpDelete, Key: key}); err != nil {
			return fmt.Errorf("engine: wal delete: %w", err)
		}
	}
	shouldFlush := e.stage(key, nil)
	if shouldFlush {
		return e.Flush()
	}
	return nil
}

// stage applies key/value to the memtable (a nil value is a tombstone) and
// reports whether the approximate memtable size now calls for a Flush.
func (e *Engine) stage(key, value []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memtable.Put(string(key), value)
	e.approxSize += len(key) + len(value)
	return e.approxSize >= e.flushThreshold
}

// Get returns the live value for key, checking the unflushed memtable
// first and falling back to the published snapshot's LSM tree.
func (e *Engine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	v, ok := e.memtable.Get(string(key))
	e.mu.RUnlock()
	if ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), v...), nil
	}

	e.snapMu.RLock()
	table := e.snap.Tables[defaultTable]
	e.snapMu.RUnlock()

	it := lsm.NewTreeIterator(table, e.store)
	defer it.Close()

	enc, found, err := lsm.Lookup(it, key, merge.Noop{}, merge.LatestOnly(true))
	if err != nil {
		return nil, fmt.Errorf("engine: get %q: %w", key, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	raw, tombstone := decodeValue(enc)
	if tombstone {
		return nil, ErrNotFound
	}
	return raw, nil
}

// Flush drains the current memtable into a new level-0 SST (plus bloom
// sidecar), publishes it as the freshest level of a new DbSnapshot sharing
// every other level unchanged, and starts a fresh empty memtable. A Flush
// with nothing staged is a no-op.
func (e *Engine) Flush() error {
	e.mu.Lock()
	old := e.memtable
	size := e.approxSize
	e.memtable = memtable.NewSkipListMemtable[string, []byte]()
	e.approxSize = 0
	e.mu.Unlock()

	if size == 0 {
		return nil
	}

	identifier := sst.NewIdentifier()
	w, err := e.store.OpenForWrite(identifier)
	if err != nil {
		return fmt.Errorf("engine: open sst %q: %w", identifier, err)
	}
	bw, err := sst.NewBufferedWriter(identifier, w, merge.Noop{})
	if err != nil {
		return fmt.Errorf("engine: new sst writer %q: %w", identifier, err)
	}

	keys := make([][]byte, 0, old.Len())
	for rec := range old.Iterator() {
		keys = append(keys, []byte(rec.Key))
		bw.PushRecord([]byte(rec.Key), encodeValue(rec.Value))
	}

	info, err := bw.Finish()
	if err != nil {
		return fmt.Errorf("engine: finish sst %q: %w", identifier, err)
	}

	if err := sst.WriteBloomSidecar(e.store, identifier, keys); err != nil {
		// A missing sidecar only costs a future optimization, never
		// correctness (lsm.Lookup degrades to "maybe present"), so a
		// failure here is logged, not propagated.
		e.log.Warnw("bloom sidecar write failed", "identifier", identifier, "error", err)
	}

	desc := snapshot.FromInfo(info)
	e.log.Infow("flushed memtable", "identifier", identifier, "records", len(keys), "size", info.Size)

	e.snapMu.Lock()
	table := e.snap.Tables[defaultTable]
	newLevel := snapshot.Level{Ssts: []snapshot.SstDescriptor{desc}}
	table = snapshot.TableSnapshot{Levels: append([]snapshot.Level{newLevel}, table.Levels...)}
	e.snap = e.snap.WithTable(defaultTable, table)
	e.snapMu.Unlock()

	return nil
}

// Snapshot returns the engine's currently published DbSnapshot. Callers
// that want a point-in-time read set not subject to concurrent Flushes
// should use this rather than repeated Get calls.
func (e *Engine) Snapshot() snapshot.DbSnapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// tombstoneTag and valueTag are encodeValue's leading byte: the core SST
// format doesn't interpret record values at all, so the engine needs its
// own one-byte wrapper to tell "deleted" apart from "present but
// empty" once a record has been flushed to disk and the nil/non-nil
// distinction a Go slice offers in memory no longer exists.
const (
	valueTag     byte = 0
	tombstoneTag byte = 1
)

// encodeValue wraps a memtable value (nil meaning tombstone, per stage) for
// storage in an SST record.
func encodeValue(value []byte) []byte {
	if value == nil {
		return []byte{tombstoneTag}
	}
	buf := make([]byte, 0, len(value)+1)
	buf = append(buf, valueTag)
	return append(buf, value...)
}

// decodeValue reverses encodeValue.
func decodeValue(encoded []byte) (value []byte, tombstone bool) {
	if len(encoded) == 0 || encoded[0] == tombstoneTag {
		return nil, true
	}
	return encoded[1:], false
}
