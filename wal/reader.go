package wal

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/tpatterson-labs/flashtree/segmentmanager"
)

// Replay reads every entry across every segment sm knows about, oldest
// segment and oldest entry first, calling fn for each. It's the only
// supported way to rebuild a memtable after restart: a single linear scan,
// no concurrent recovery. A segment whose last entry was truncated by a
// crash mid-write is tolerated: replay stops at the truncation point and
// logs a Warn rather than failing recovery over it. log may be nil for a
// no-op logger.
func Replay(sm segmentmanager.Manager, log *zap.SugaredLogger, fn func(*Entry) error) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	paths, err := sm.SegmentPaths()
	if err != nil {
		return fmt.Errorf("wal: list segments: %w", err)
	}

	for _, path := range paths {
		if err := replaySegment(path, log, fn); err != nil {
			return fmt.Errorf("wal: replay %s: %w", path, err)
		}
	}
	return nil
}

func replaySegment(path string, log *zap.SugaredLogger, fn func(*Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		log.Errorw("open wal segment failed", "path", path, "error", err)
		return err
	}
	defer f.Close()

	offset := int64(0)
	for {
		entry, err := Decode(f)
		if err == io.EOF {
			return nil
		}
		if err == ErrTruncated {
			log.Warnw("truncated wal tail ignored during replay", "path", path, "offset", offset)
			return nil
		}
		if err != nil {
			log.Errorw("wal replay failed", "path", path, "offset", offset, "error", err)
			return err
		}
		offset += int64(entry.EncodedSize())
		if err := fn(entry); err != nil {
			return err
		}
	}
}
