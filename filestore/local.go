package filestore

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/edsrzf/mmap-go"
	"go.uber.org/zap"
)

// Local is a Store backed by files under a directory. Read views are
// memory-mapped and pooled by identifier so concurrent readers share one
// mapping. Grounded on
// original_source/src/block/src/file_store/local_file_store.rs: delete only
// removes the pool entry (so new reads fail) and defers the actual
// unmap+unlink until the mapping's last reader releases it, which is
// required on operating systems (Windows) that forbid unlinking a file with
// an open mapping.
type Local struct {
	log *zap.SugaredLogger
	dir string

	mu   sync.RWMutex
	open map[string]*mapping
}

// NewLocal creates a Local store rooted at dir. dir must already exist. A
// nil logger installs a no-op logger.
func NewLocal(dir string, log *zap.SugaredLogger) *Local {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Local{
		log:  log,
		dir:  dir,
		open: make(map[string]*mapping),
	}
}

func (s *Local) path(identifier string) string {
	return filepath.Join(s.dir, identifier)
}

func (s *Local) OpenForWrite(identifier string) (Writer, error) {
	path := s.path(identifier)
	if _, err := os.Stat(path); err == nil {
		return nil, ErrAlreadyExists
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Errorw("create blob failed", "identifier", identifier, "error", err)
		return nil, err
	}
	w := &localWriter{file: f, log: s.log, identifier: identifier}
	runtime.SetFinalizer(w, func(w *localWriter) {
		if !w.flushed {
			panic(ErrNotFlushed)
		}
	})
	return w, nil
}

func (s *Local) OpenForRead(identifier string) (View, error) {
	// Fast path: an existing mapping, taken under a read lock.
	s.mu.RLock()
	if m, ok := s.open[identifier]; ok {
		v := m.acquire()
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	// Slow path: check-then-install the mapping under the write lock.
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.open[identifier]; ok {
		return m.acquire(), nil
	}

	f, err := os.Open(s.path(identifier))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		s.log.Errorw("open blob failed", "identifier", identifier, "error", err)
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		s.log.Errorw("stat blob failed", "identifier", identifier, "error", err)
		return nil, err
	}

	var data mmap.MMap
	if info.Size() > 0 {
		data, err = mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			s.log.Errorw("mmap blob failed", "identifier", identifier, "offset", 0, "error", err)
			return nil, err
		}
	}

	m := &mapping{
		store:      s,
		identifier: identifier,
		file:       f,
		data:       data,
		refs:       0,
	}
	s.open[identifier] = m
	return m.acquire(), nil
}

func (s *Local) Delete(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.open[identifier]
	if !ok {
		// Never opened for read: nothing holds a mapping, remove directly.
		if err := os.Remove(s.path(identifier)); err != nil {
			if os.IsNotExist(err) {
				return ErrNotFound
			}
			s.log.Errorw("delete blob failed", "identifier", identifier, "error", err)
			return err
		}
		s.log.Infow("deleted blob", "identifier", identifier)
		return nil
	}
	delete(s.open, identifier)
	m.mu.Lock()
	m.deleteRequested = true
	releaseNow := m.refs == 0
	m.mu.Unlock()
	if releaseNow {
		m.unmapAndUnlink()
	}
	s.log.Infow("marked blob for deletion", "identifier", identifier)
	return nil
}

// mapping is the pooled, shared state behind every localView for a given
// identifier. refs tracks outstanding views; physical removal happens once
// refs drops to zero after a delete has been requested.
type mapping struct {
	store      *Local
	identifier string
	file       *os.File
	data       mmap.MMap

	mu              sync.Mutex
	refs            int
	deleteRequested bool
}

func (m *mapping) acquire() *localView {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()
	return &localView{mapping: m}
}

func (m *mapping) release() {
	m.mu.Lock()
	m.refs--
	shouldUnlink := m.refs == 0 && m.deleteRequested
	m.mu.Unlock()
	if shouldUnlink {
		m.unmapAndUnlink()
	}
}

func (m *mapping) unmapAndUnlink() {
	if m.data != nil {
		m.data.Unmap()
	}
	m.file.Close()
	os.Remove(m.store.path(m.identifier))
	m.store.log.Infow("reclaimed blob", "identifier", m.identifier)
}

type localView struct {
	mapping *mapping
	closed  bool
}

func (v *localView) Bytes() []byte {
	if v.mapping.data == nil {
		return nil
	}
	return v.mapping.data
}

func (v *localView) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.mapping.release()
	return nil
}

type localWriter struct {
	file       *os.File
	log        *zap.SugaredLogger
	identifier string
	written    int64
	flushed    bool
}

func (w *localWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.written += int64(n)
	if err != nil {
		w.log.Errorw("write blob failed", "identifier", w.identifier, "offset", w.written, "error", err)
	}
	return n, err
}

func (w *localWriter) Offset() int64 {
	return w.written
}

func (w *localWriter) FlushAndClose() error {
	if err := w.file.Sync(); err != nil {
		w.log.Errorw("sync blob failed", "identifier", w.identifier, "error", err)
		return err
	}
	if err := w.file.Close(); err != nil {
		w.log.Errorw("close blob failed", "identifier", w.identifier, "error", err)
		return err
	}
	w.flushed = true
	runtime.SetFinalizer(w, nil)
	return nil
}
