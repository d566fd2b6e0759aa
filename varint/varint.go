// Package varint provides lexicographically-sortable byte encodings for
// unsigned 32-bit and signed 64-bit integers. Encoded byte sequences compare
// identically to the numeric order of the values they encode, which is what
// lets the sst package use raw byte comparison for key ordering even though
// some record lengths and deltas are varint encoded.
package varint

import "encoding/binary"

// zeroSignedEnc is the single byte encoding for a signed value of 0.
const zeroSignedEnc = 103

// PutUnsigned appends the lexicographically-sortable encoding of v to buf and
// returns the extended slice.
//
// Values below 253 encode as a single byte equal to v. Larger values use a
// tag byte (253 for two-byte, 254 for four-byte) followed by the big-endian
// payload, so that longer encodings always sort after shorter ones and,
// within the same length, big-endian bytes already sort correctly.
func PutUnsigned(buf []byte, v uint32) []byte {
	switch {
	case v < 253:
		return append(buf, byte(v))
	case v <= 0xFFFF:
		buf = append(buf, 253)
		return append(buf, byte(v>>8), byte(v))
	default:
		buf = append(buf, 254)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], v)
		return append(buf, tmp[:]...)
	}
}

// Unsigned decodes a value written by PutUnsigned and returns the decoded
// value along with the remainder of buf after the encoding.
//
// Panics on a truncated buffer: callers always encode fully, so a short
// buffer indicates a programmer error or corrupt data, not a recoverable
// condition.
func Unsigned(buf []byte) (uint32, []byte) {
	switch buf[0] {
	case 253:
		return uint32(binary.BigEndian.Uint16(buf[1:3])), buf[3:]
	case 254:
		return binary.BigEndian.Uint32(buf[1:5]), buf[5:]
	default:
		return uint32(buf[0]), buf[1:]
	}
}

// PutSigned appends the lexicographically-sortable encoding of v to buf and
// returns the extended slice.
//
// A single tag byte encodes both sign and width. Small values in
// [-99, 148] encode as one byte (v+103). Larger magnitudes use tags
// {252,253,254,255} for positive u8/u16/u32/i64 and {3,2,1,0} for negative,
// where the negative u8/u16/u32 payload is the bitwise complement of the
// absolute value and the tag-0 payload is v's own big-endian two's
// complement bytes, so that lexicographic byte order still tracks numeric
// order across the sign boundary.
func PutSigned(buf []byte, v int64) []byte {
	if v >= 0 {
		switch {
		case v <= 148:
			return append(buf, byte(v)+103)
		case v <= 0xFF:
			return append(buf, 252, byte(v))
		case v <= 0xFFFF:
			buf = append(buf, 253)
			return append(buf, byte(v>>8), byte(v))
		case v <= 0xFFFFFFFF:
			buf = append(buf, 254)
			var tmp [4]byte
			binary.BigEndian.PutUint32(tmp[:], uint32(v))
			return append(buf, tmp[:]...)
		default:
			buf = append(buf, 255)
			var tmp [8]byte
			binary.BigEndian.PutUint64(tmp[:], uint64(v))
			return append(buf, tmp[:]...)
		}
	}

	switch {
	case v >= -99:
		return append(buf, byte(v+103))
	case v >= -0xFF:
		return append(buf, 3, ^byte(-v))
	case v >= -0xFFFF:
		buf = append(buf, 2)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], ^uint16(-v))
		return append(buf, tmp[:]...)
	case v >= -0xFFFFFFFF:
		buf = append(buf, 1)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], ^uint32(-v))
		return append(buf, tmp[:]...)
	default:
		buf = append(buf, 0)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v))
		return append(buf, tmp[:]...)
	}
}

// Signed decodes a value written by PutSigned and returns the decoded value
// along with the remainder of buf after the encoding.
//
// Panics on a truncated buffer, same rationale as Unsigned.
func Signed(buf []byte) (int64, []byte) {
	switch buf[0] {
	case 0:
		return int64(binary.BigEndian.Uint64(buf[1:9])), buf[9:]
	case 1:
		return -int64(^binary.BigEndian.Uint32(buf[1:5])), buf[5:]
	case 2:
		return -int64(^binary.BigEndian.Uint16(buf[1:3])), buf[3:]
	case 3:
		return -int64(^buf[1]), buf[2:]
	case 252:
		return int64(buf[1]), buf[2:]
	case 253:
		return int64(binary.BigEndian.Uint16(buf[1:3])), buf[3:]
	case 254:
		return int64(binary.BigEndian.Uint32(buf[1:5])), buf[5:]
	case 255:
		return int64(binary.BigEndian.Uint64(buf[1:9])), buf[9:]
	default:
		return int64(buf[0]) - zeroSignedEnc, buf[1:]
	}
}
