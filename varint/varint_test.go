package varint

import (
	"bytes"
	"math"
	"sort"
	"testing"
)

func TestUnsignedRoundTripAndOrder(t *testing.T) {
	values := []uint32{0, 123, math.MaxUint8, math.MaxUint16, math.MaxUint32}

	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = PutUnsigned(nil, v)
	}

	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })
	sortedValues := append([]uint32(nil), values...)
	sort.Slice(sortedValues, func(i, j int) bool { return sortedValues[i] < sortedValues[j] })

	for i, buf := range encoded {
		got, rem := Unsigned(buf)
		if got != sortedValues[i] {
			t.Fatalf("decode mismatch: got %d want %d", got, sortedValues[i])
		}
		if len(rem) != 0 {
			t.Fatalf("expected no remainder, got %d bytes", len(rem))
		}
	}
}

func TestSignedRoundTripAndOrder(t *testing.T) {
	values := []int64{
		0,
		math.MinInt8, math.MaxInt8,
		math.MaxUint8,
		math.MinInt16, math.MaxInt16,
		math.MaxUint16,
		math.MinInt32, math.MaxInt32,
		math.MaxUint32,
		math.MinInt64, math.MaxInt64,
		-math.MaxInt8, -math.MaxUint8,
		-math.MaxInt16, -math.MaxUint16,
		-math.MaxInt32, -math.MaxUint32,
	}

	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = PutSigned(nil, v)
	}

	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })
	sortedValues := append([]int64(nil), values...)
	sort.Slice(sortedValues, func(i, j int) bool { return sortedValues[i] < sortedValues[j] })

	for i, buf := range encoded {
		got, rem := Signed(buf)
		if got != sortedValues[i] {
			t.Fatalf("decode mismatch: got %d want %d", got, sortedValues[i])
		}
		if len(rem) != 0 {
			t.Fatalf("expected no remainder, got %d bytes", len(rem))
		}
	}
}

func TestSignedZeroConstant(t *testing.T) {
	encoded := []byte{zeroSignedEnc}
	got, _ := Signed(encoded)
	if got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestSignedInjective(t *testing.T) {
	seen := map[string]int64{}
	for v := int64(-150); v <= 200; v++ {
		enc := string(PutSigned(nil, v))
		if prior, ok := seen[enc]; ok {
			t.Fatalf("collision: %d and %d both encode to %q", prior, v, enc)
		}
		seen[enc] = v
	}
}
