package filestore

import (
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Memory is an in-process Store backed by a map from identifier to an
// immutable byte buffer. Grounded on
// original_source/src/block/src/file_store/memory_file_store.rs: the writer
// accumulates into a growable buffer and, on close, publishes it into the
// shared map; readers get a direct reference to that same backing array so
// concurrent reads never copy.
type Memory struct {
	log *zap.SugaredLogger

	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory file store. A nil logger installs a
// no-op logger.
func NewMemory(log *zap.SugaredLogger) *Memory {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Memory{
		log:   log,
		blobs: make(map[string][]byte),
	}
}

func (m *Memory) OpenForWrite(identifier string) (Writer, error) {
	m.mu.RLock()
	_, exists := m.blobs[identifier]
	m.mu.RUnlock()
	if exists {
		return nil, ErrAlreadyExists
	}

	w := &memoryWriter{store: m, identifier: identifier}
	runtime.SetFinalizer(w, func(w *memoryWriter) {
		if !w.flushed {
			panic(ErrNotFlushed)
		}
	})
	return w, nil
}

func (m *Memory) OpenForRead(identifier string) (View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.blobs[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	return &memoryView{data: buf}, nil
}

func (m *Memory) Delete(identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[identifier]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, identifier)
	m.log.Infow("deleted blob", "identifier", identifier)
	return nil
}

type memoryWriter struct {
	store      *Memory
	identifier string
	buf        []byte
	flushed    bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *memoryWriter) Offset() int64 {
	return int64(len(w.buf))
}

func (w *memoryWriter) FlushAndClose() error {
	w.store.mu.Lock()
	w.store.blobs[w.identifier] = w.buf
	w.store.mu.Unlock()
	w.flushed = true
	runtime.SetFinalizer(w, nil)
	w.store.log.Infow("published blob", "identifier", w.identifier, "size", len(w.buf))
	return nil
}

// memoryView hands back a slice aliasing the store's backing array directly
// since Memory never mutates a published blob's bytes in place (a Delete
// just drops the map entry, it never rewrites buf) -- concurrent readers
// sharing the slice is safe.
type memoryView struct {
	data []byte
}

func (v *memoryView) Bytes() []byte { return v.data }
func (v *memoryView) Close() error  { return nil }
