// Package snapshot holds the immutable, copy-on-write metadata tree the LSM
// iterator reads through: a database snapshot maps table name to a
// TableSnapshot, each table is an ordered list of Levels, and each Level is
// an ordered, disjoint-range list of SstDescriptors.
//
// This is an external collaborator to the storage core -- the core only
// consumes the shape described here -- so it's kept intentionally thin: no
// write path, no compaction, just the read-side contract and the small
// helpers needed to build one up from an SST writer's Info.
package snapshot

import "github.com/tpatterson-labs/flashtree/sst"

// SstDescriptor names one SST file and its key range, as stored in a Level.
type SstDescriptor struct {
	Identifier string
	MinKey     []byte
	MaxKey     []byte
	Size       int64
}

// FromInfo builds an SstDescriptor from the Info an sst.Writer returns on
// Finish.
func FromInfo(info sst.Info) SstDescriptor {
	return SstDescriptor{
		Identifier: info.Identifier,
		MinKey:     info.MinKey,
		MaxKey:     info.MaxKey,
		Size:       info.Size,
	}
}

// Level is an ordered, disjoint-range run of SSTs: for all i,
// Ssts[i].MaxKey < Ssts[i+1].MinKey.
type Level struct {
	Ssts []SstDescriptor
}

// TableSnapshot is one table's full set of LSM levels, level 0 first
// (freshest).
type TableSnapshot struct {
	Levels []Level
}

// WithLevel returns a copy of the TableSnapshot with level index idx
// replaced by level, sharing every other level's backing slice (copy on
// write by convention: callers must treat a TableSnapshot's Levels/Ssts
// slices as immutable once published).
func (t TableSnapshot) WithLevel(idx int, level Level) TableSnapshot {
	levels := make([]Level, len(t.Levels))
	copy(levels, t.Levels)
	levels[idx] = level
	return TableSnapshot{Levels: levels}
}

// DbSnapshot is a point-in-time, read-only view of every table's metadata.
type DbSnapshot struct {
	Tables map[string]TableSnapshot
}

// WithTable returns a copy of the DbSnapshot with table replaced, sharing
// every other table's TableSnapshot.
func (d DbSnapshot) WithTable(name string, table TableSnapshot) DbSnapshot {
	tables := make(map[string]TableSnapshot, len(d.Tables)+1)
	for k, v := range d.Tables {
		tables[k] = v
	}
	tables[name] = table
	return DbSnapshot{Tables: tables}
}
