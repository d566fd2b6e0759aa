// Package segmentmanager writes records into a directory of rotating,
// sequentially numbered segment files. The caller only ever sees
// WriteActive: rotation to a new segment when the active one would exceed
// its size budget is handled internally.
package segmentmanager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

const (
	defaultMaxSegmentSize = 16 * 1024 * 1024
	defaultLogFileExt     = ".log"
)

var segmentFileNamePattern = regexp.MustCompile(`^segment-(\d+)\.log$`)

// Manager is the interface the WAL writes through. Implementations own a
// directory of segment files and decide when to rotate.
type Manager interface {
	// WriteActive runs fn against the active segment's writer, rotating to
	// a new segment first if the write would exceed the size budget. n is
	// the caller's declared size of what fn is about to write.
	WriteActive(n int, fn func(w io.Writer) error) error
	Sync() error
	RotateSegment() error
	// SegmentPaths returns every segment file path, oldest first, for
	// sequential replay.
	SegmentPaths() ([]string, error)
	Close() error
}

type segmentEntry struct {
	id   int
	name string
}

type segmentEntries []segmentEntry

func (a segmentEntries) Len() int           { return len(a) }
func (a segmentEntries) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a segmentEntries) Less(i, j int) bool { return a[i].id < a[j].id }

// Disk is a Manager backed by a directory of "segment-NNNN.log" files.
type Disk struct {
	mu             sync.Mutex
	active         *os.File
	activeID       int
	dir            string
	logFileExt     string
	maxSegmentSize int64
	log            *zap.SugaredLogger
}

// Option configures a Disk manager.
type Option func(*Disk)

// WithMaxSegmentSize overrides the default 16MiB segment size budget.
func WithMaxSegmentSize(n int64) Option {
	return func(d *Disk) { d.maxSegmentSize = n }
}

// WithLogFileExt overrides the default ".log" segment file extension.
func WithLogFileExt(ext string) Option {
	return func(d *Disk) { d.logFileExt = ext }
}

// WithLogger installs log in place of a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(d *Disk) { d.log = log }
}

// NewDisk opens dir, resuming at its newest segment if one exists, or
// creates dir and its first segment if not.
func NewDisk(dir string, opts ...Option) (*Disk, error) {
	d := &Disk{
		dir:            dir,
		logFileExt:     defaultLogFileExt,
		maxSegmentSize: defaultMaxSegmentSize,
		log:            zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := isDirectoryValid(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return d, d.RotateSegment()
	}

	entries, err := d.listSegments()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return d, d.RotateSegment()
	}
	if !validateSegmentEntries(entries) {
		return nil, errors.New("segmentmanager: segment ids are not contiguous from 1")
	}

	d.activeID = entries[len(entries)-1].id
	active, err := os.OpenFile(d.idToPath(d.activeID), os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		d.log.Errorw("open active segment failed", "path", d.idToPath(d.activeID), "error", err)
		return nil, fmt.Errorf("segmentmanager: open active segment: %w", err)
	}
	d.active = active
	return d, nil
}

func isDirectoryValid(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("segmentmanager: %s exists and is not a directory", path)
	}
	return nil
}

func (d *Disk) listSegments() (segmentEntries, error) {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	var entries segmentEntries
	for _, e := range dirEntries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != d.logFileExt {
			continue
		}
		matches := segmentFileNamePattern.FindStringSubmatch(e.Name())
		if len(matches) != 2 {
			continue
		}
		id, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		entries = append(entries, segmentEntry{id: id, name: e.Name()})
	}
	sort.Sort(entries)
	return entries, nil
}

func validateSegmentEntries(entries segmentEntries) bool {
	for i, e := range entries {
		if e.id != i+1 {
			return false
		}
	}
	return true
}

func (d *Disk) idToPath(id int) string {
	return filepath.Join(d.dir, fmt.Sprintf("segment-%04d%s", id, d.logFileExt))
}

// RotateSegment closes the active segment, if any, and starts a new one.
func (d *Disk) RotateSegment() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rotateLocked()
}

func (d *Disk) rotateLocked() error {
	if d.active != nil {
		if err := d.active.Close(); err != nil {
			d.log.Errorw("close previous segment failed", "id", d.activeID, "error", err)
			return fmt.Errorf("segmentmanager: close previous segment: %w", err)
		}
	}
	d.activeID++
	f, err := os.Create(d.idToPath(d.activeID))
	if err != nil {
		d.log.Errorw("create segment failed", "id", d.activeID, "error", err)
		return fmt.Errorf("segmentmanager: create segment %d: %w", d.activeID, err)
	}
	d.active = f
	d.log.Infow("rotated segment", "id", d.activeID, "path", d.idToPath(d.activeID))
	return nil
}

// WriteActive rotates first if the active segment would exceed its size
// budget, then runs fn against it and syncs.
func (d *Disk) WriteActive(n int, fn func(w io.Writer) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if int64(n) > d.maxSegmentSize {
		return fmt.Errorf("segmentmanager: record of %d bytes exceeds segment size budget %d", n, d.maxSegmentSize)
	}
	if d.active == nil {
		return errors.New("segmentmanager: active segment not initialized")
	}

	stat, err := d.active.Stat()
	if err != nil {
		d.log.Errorw("stat active segment failed", "id", d.activeID, "error", err)
		return fmt.Errorf("segmentmanager: stat active segment: %w", err)
	}
	if stat.Size()+int64(n) > d.maxSegmentSize {
		if err := d.rotateLocked(); err != nil {
			return err
		}
	}

	if err := fn(d.active); err != nil {
		d.log.Errorw("write to active segment failed", "id", d.activeID, "error", err)
		return err
	}
	if err := d.active.Sync(); err != nil {
		d.log.Errorw("sync active segment failed", "id", d.activeID, "error", err)
		return err
	}
	return nil
}

// Sync flushes the active segment to stable storage.
func (d *Disk) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return errors.New("segmentmanager: active segment not initialized")
	}
	return d.active.Sync()
}

// SegmentPaths returns every segment file path, oldest (lowest id) first.
func (d *Disk) SegmentPaths() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries, err := d.listSegments()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = filepath.Join(d.dir, e.name)
	}
	return paths, nil
}

// Close closes the active segment.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	if err := d.active.Close(); err != nil {
		return fmt.Errorf("segmentmanager: close active segment: %w", err)
	}
	d.active = nil
	return nil
}
