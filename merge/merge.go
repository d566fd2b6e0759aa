// Package merge provides the pluggable duplicate-key collapse policy used
// by the buffered SST writer and, optionally, by higher-layer read paths.
package merge

import (
	"bytes"
	"errors"

	"github.com/tpatterson-labs/flashtree/varint"
)

// ErrNoopDuplicateKeys is returned by Noop.Merge when records contains more
// than one record for the same key: Noop only ever passes records through,
// so it cannot be trusted to resolve a duplicate and must say so instead of
// silently keeping (or silently dropping) one arbitrarily.
var ErrNoopDuplicateKeys = errors.New("merge: Noop given duplicate keys")

// Record is one version of a key, as seen by a Merger.
type Record struct {
	Key, Value []byte
}

// Merger collapses runs of equal-key records down to at most one surviving
// record per key. records is sorted ascending by key; within an equal-key
// run, records are ordered newest-first. The returned slice must preserve
// relative key order.
type Merger interface {
	Merge(records []Record) ([]Record, error)
}

// Noop passes records through unchanged. It requires the caller to already
// guarantee unique keys and reports ErrNoopDuplicateKeys rather than
// silently collapsing or duplicating a key it has no policy for.
type Noop struct{}

func (Noop) Merge(records []Record) ([]Record, error) {
	for i := 1; i < len(records); i++ {
		if bytes.Equal(records[i].Key, records[i-1].Key) {
			return nil, ErrNoopDuplicateKeys
		}
	}
	return records, nil
}

// CounterDelta treats each value as a varint-signed i64 delta and collapses
// an equal-key run to the sum of its deltas, dropping the key entirely when
// the sum is exactly zero.
type CounterDelta struct{}

func (CounterDelta) Merge(records []Record) ([]Record, error) {
	out := make([]Record, 0, len(records))
	i := 0
	for i < len(records) {
		j := i
		var sum int64
		for j < len(records) && bytes.Equal(records[j].Key, records[i].Key) {
			delta, _ := varint.Signed(records[j].Value)
			sum += delta
			j++
		}
		if sum != 0 {
			out = append(out, Record{Key: records[i].Key, Value: varint.PutSigned(nil, sum)})
		}
		i = j
	}
	return out, nil
}

// LatestOnly tells a point-lookup read path that it may stop at the first
// (freshest) record it finds for a key instead of walking every level to
// assemble the full newest-first run a Merger would need. It is meaningless
// for a full scan, where every level must still be visited.
type LatestOnly bool
