package sst

import (
	"testing"

	"github.com/tpatterson-labs/flashtree/filestore"
)

func TestValidateAcceptsWrittenFile(t *testing.T) {
	store := filestore.NewMemory(nil)
	w, err := NewWriter("ok", mustWrite(t, store, "ok"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.PushRecord([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	if err := Validate(readBack(t, store, "ok")); err != nil {
		t.Fatalf("Validate rejected a well-formed file: %v", err)
	}
}

func TestValidateAcceptsEmptyFile(t *testing.T) {
	store := filestore.NewMemory(nil)
	w, err := NewWriter("empty", mustWrite(t, store, "empty"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	if err := Validate(readBack(t, store, "empty")); err != nil {
		t.Fatalf("Validate rejected an empty SST: %v", err)
	}
}

func TestValidateRejectsTooShort(t *testing.T) {
	if err := Validate([]byte("too short")); err == nil {
		t.Fatal("expected an error for a too-short file")
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	data := make([]byte, headerSize+footerSize)
	copy(data, "not-the-right-magic-header")
	if err := Validate(data); err == nil {
		t.Fatal("expected an error for a corrupt header")
	}
}

func TestValidateRejectsBadFooterVersion(t *testing.T) {
	store := filestore.NewMemory(nil)
	w, err := NewWriter("bad-version", mustWrite(t, store, "bad-version"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	data := readBack(t, store, "bad-version")
	data[len(data)-1] = 0xFF
	data[len(data)-2] = 0xFF
	if err := Validate(data); err == nil {
		t.Fatal("expected an error for an unrecognized footer version")
	}
}

func TestValidateRejectsOutOfRangeRootPointer(t *testing.T) {
	store := filestore.NewMemory(nil)
	w, err := NewWriter("bad-root", mustWrite(t, store, "bad-root"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.PushRecord([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	data := readBack(t, store, "bad-root")
	// Overwrite the root pointer with a positive value pointing well past
	// the data section, without touching the footer version.
	for i := 0; i < 4; i++ {
		data[len(data)-footerSize+i] = 0x7F
	}
	if err := Validate(data); err == nil {
		t.Fatal("expected an error for a root pointer outside the data section")
	}
}

func TestCommonPrefixLen(t *testing.T) {
	cases := []struct {
		a, b []byte
		want int
	}{
		{[]byte("abc"), []byte("abd"), 2},
		{[]byte("abc"), []byte("abc"), 3},
		{[]byte(""), []byte("abc"), 0},
		{[]byte("abc"), []byte("ab"), 2},
	}
	for _, c := range cases {
		if got := commonPrefixLen(c.a, c.b); got != c.want {
			t.Fatalf("commonPrefixLen(%q,%q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
