package sst

import (
	"testing"

	"github.com/tpatterson-labs/flashtree/filestore"
	"github.com/tpatterson-labs/flashtree/merge"
	"github.com/tpatterson-labs/flashtree/varint"
)

func TestBufferedWriterSortsOnFinish(t *testing.T) {
	store := filestore.NewMemory(nil)
	w, err := store.OpenForWrite("buffered")
	if err != nil {
		t.Fatal(err)
	}
	bw, err := NewBufferedWriter("buffered", w, merge.Noop{})
	if err != nil {
		t.Fatal(err)
	}
	bw.PushRecord([]byte("c"), []byte("2"))
	bw.PushRecord([]byte("a"), []byte("1"))
	bw.PushRecord([]byte("e"), []byte("3"))

	info, err := bw.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if string(info.MinKey) != "a" || string(info.MaxKey) != "e" {
		t.Fatalf("min/max = %q/%q", info.MinKey, info.MaxKey)
	}

	v, err := store.OpenForRead("buffered")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	r := NewReader(v.Bytes())

	r.Seek(nil)
	for _, want := range []struct{ k, v string }{{"a", "1"}, {"c", "2"}, {"e", "3"}} {
		k, val, ok := r.Get()
		if !ok || string(k) != want.k || string(val) != want.v {
			t.Fatalf("got (%q,%q,%v), want (%q,%q,true)", k, val, ok, want.k, want.v)
		}
		r.Advance()
	}
	if _, _, ok := r.Get(); ok {
		t.Fatalf("expected exhausted cursor")
	}
}

func TestBufferedWriterCounterDeltaDropsZero(t *testing.T) {
	store := filestore.NewMemory(nil)
	w, err := store.OpenForWrite("deltas")
	if err != nil {
		t.Fatal(err)
	}
	bw, err := NewBufferedWriter("deltas", w, merge.CounterDelta{})
	if err != nil {
		t.Fatal(err)
	}

	// Newest-first: pushed in the order a caller would apply them, most
	// recent delta first within a key's run.
	bw.PushRecord([]byte("x"), varint.PutSigned(nil, -5))
	bw.PushRecord([]byte("x"), varint.PutSigned(nil, 5))
	bw.PushRecord([]byte("y"), varint.PutSigned(nil, 3))
	bw.PushRecord([]byte("y"), varint.PutSigned(nil, 4))

	if _, err := bw.Finish(); err != nil {
		t.Fatal(err)
	}

	v, err := store.OpenForRead("deltas")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	r := NewReader(v.Bytes())

	// x's deltas net to zero, so x is dropped and a seek to it lands on the
	// next surviving key, y.
	r.Seek([]byte("x"))
	if k, _, ok := r.Get(); !ok || string(k) != "y" {
		t.Fatalf("expected key x to be dropped (net delta zero) and seek to land on y, got (%q,%v)", k, ok)
	}

	r.Seek([]byte("y"))
	k, val, ok := r.Get()
	if !ok || string(k) != "y" {
		t.Fatalf("expected key y, got (%q,%v)", k, ok)
	}
	got, _ := varint.Signed(val)
	if got != 7 {
		t.Fatalf("delta sum = %d, want 7", got)
	}
}
