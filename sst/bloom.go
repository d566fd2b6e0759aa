package sst

import (
	"bytes"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/tpatterson-labs/flashtree/filestore"
)

// bloomFalsePositiveRate targets a 1% false-positive rate, the same
// trade-off the block-based SST writer this package replaces used for its
// embedded filter.
const bloomFalsePositiveRate = 0.01

// BloomSidecarIdentifier returns the blob identifier a bloom filter for the
// SST named sstIdentifier is stored under.
//
// The SST footer's layout is fixed by this package's on-disk format and has
// no room for a filter section, so the filter is written to its own blob
// through the same file store instead of being embedded.
func BloomSidecarIdentifier(sstIdentifier string) string {
	return sstIdentifier + ".bloom"
}

// WriteBloomSidecar builds a bloom filter over keys and persists it as the
// sidecar blob for sstIdentifier.
func WriteBloomSidecar(store filestore.Store, sstIdentifier string, keys [][]byte) error {
	filter := bloom.NewWithEstimates(uint(len(keys)), bloomFalsePositiveRate)
	for _, k := range keys {
		filter.Add(k)
	}

	var buf bytes.Buffer
	if _, err := filter.WriteTo(&buf); err != nil {
		return fmt.Errorf("sst: encode bloom sidecar: %w", err)
	}

	w, err := store.OpenForWrite(BloomSidecarIdentifier(sstIdentifier))
	if err != nil {
		return fmt.Errorf("sst: open bloom sidecar: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("sst: write bloom sidecar: %w", err)
	}
	return w.FlushAndClose()
}

// LoadBloomSidecar reads back the bloom filter written by WriteBloomSidecar.
func LoadBloomSidecar(store filestore.Store, sstIdentifier string) (*bloom.BloomFilter, error) {
	v, err := store.OpenForRead(BloomSidecarIdentifier(sstIdentifier))
	if err != nil {
		return nil, err
	}
	defer v.Close()

	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(bytes.NewReader(v.Bytes())); err != nil {
		return nil, fmt.Errorf("sst: decode bloom sidecar: %w", err)
	}
	return filter, nil
}
