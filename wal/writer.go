package wal

import (
	"fmt"
	"io"
	"sync"

	"github.com/tpatterson-labs/flashtree/segmentmanager"
)

// ErrClosed is returned by Write once the Writer has been closed.
var ErrClosed = fmt.Errorf("wal: writer closed")

type writeRequest struct {
	entry *Entry
	done  chan error
}

// Writer serializes concurrent Write calls onto a single goroutine that
// appends to a segmentmanager.Manager, so segment rotation never races
// against an in-flight append.
type Writer struct {
	mu     sync.Mutex
	ch     chan *writeRequest
	done   chan struct{}
	closed bool
	sm     segmentmanager.Manager
	wg     sync.WaitGroup
}

// NewWriter starts a Writer appending through sm. buffer sizes the request
// channel; callers block on Write once it's full.
func NewWriter(buffer int, sm segmentmanager.Manager) *Writer {
	w := &Writer{
		ch:   make(chan *writeRequest, buffer),
		done: make(chan struct{}),
		sm:   sm,
	}
	go w.loop()
	return w
}

// Write appends e and blocks until it has been durably written (or the
// writer is closed first).
func (w *Writer) Write(e *Entry) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	req := &writeRequest{entry: e, done: make(chan error, 1)}
	select {
	case w.ch <- req:
		return <-req.done
	case <-w.done:
		return ErrClosed
	}
}

// Close waits for in-flight writes to finish, then stops the writer and
// closes the underlying segment manager.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()
	close(w.ch)
	<-w.done
	return w.sm.Close()
}

func (w *Writer) loop() {
	defer close(w.done)
	for req := range w.ch {
		err := w.sm.WriteActive(req.entry.EncodedSize(), req.entry.Encode)
		req.done <- err
	}
}
