package wire_test

import (
	"bytes"
	"testing"

	"github.com/aledsdavies/gramforge/wire"
)

// TestWriteReadRoundTripIntegers verifies fixed-width integers survive a
// write/read round trip unchanged.
func TestWriteReadRoundTripIntegers(t *testing.T) {
	// Given: a writer with one value of each fixed width
	w := wire.NewWriter()
	if err := w.U8(0xAB); err != nil {
		t.Fatalf("U8: %v", err)
	}
	if err := w.U16(0xBEEF); err != nil {
		t.Fatalf("U16: %v", err)
	}
	if err := w.U32(0xCAFEBABE); err != nil {
		t.Fatalf("U32: %v", err)
	}
	if err := w.U64(0x0123456789ABCDEF); err != nil {
		t.Fatalf("U64: %v", err)
	}

	// When: read back in the same order
	r := wire.NewReader(w.Bytes())
	u8, err := r.U8()
	if err != nil || u8 != 0xAB {
		t.Fatalf("U8 round trip: got %x, err %v", u8, err)
	}
	u16, err := r.U16()
	if err != nil || u16 != 0xBEEF {
		t.Fatalf("U16 round trip: got %x, err %v", u16, err)
	}
	u32, err := r.U32()
	if err != nil || u32 != 0xCAFEBABE {
		t.Fatalf("U32 round trip: got %x, err %v", u32, err)
	}
	u64, err := r.U64()
	if err != nil || u64 != 0x0123456789ABCDEF {
		t.Fatalf("U64 round trip: got %x, err %v", u64, err)
	}

	// Then: nothing is left unread
	if r.Remaining() != 0 {
		t.Errorf("expected 0 remaining bytes, got %d", r.Remaining())
	}
}

// TestStrRejectsEmbeddedNul verifies the string-heap writer rejects NUL bytes.
func TestStrRejectsEmbeddedNul(t *testing.T) {
	w := wire.NewWriter()
	if err := w.Str("abc\x00def"); err == nil {
		t.Fatal("expected error for embedded NUL, got nil")
	}
}

// TestStrRoundTrip verifies a NUL-terminated string round trips including
// offset 0 as the empty string.
func TestStrRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	if err := w.Str(""); err != nil {
		t.Fatalf("Str(\"\"): %v", err)
	}
	if err := w.Str("hello"); err != nil {
		t.Fatalf("Str(\"hello\"): %v", err)
	}

	r := wire.NewReader(w.Bytes())
	s1, err := r.Str()
	if err != nil || s1 != "" {
		t.Fatalf("first string: got %q, err %v", s1, err)
	}
	s2, err := r.Str()
	if err != nil || s2 != "hello" {
		t.Fatalf("second string: got %q, err %v", s2, err)
	}
}

// TestBlobLenTagBoundaries verifies the CIL-style compressed blob length
// codec picks the right tag width at each boundary (spec §6).
func TestBlobLenTagBoundaries(t *testing.T) {
	cases := []struct {
		n            int
		wantTagBytes int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 4},
		{1 << 20, 4},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := wire.WriteBlobLen(&buf, c.n); err != nil {
			t.Fatalf("WriteBlobLen(%d): %v", c.n, err)
		}
		got := buf.Bytes()
		tag := got[0] >> 5
		var tagBytes int
		switch {
		case tag>>2 == 0: // 0xxxxxxx
			tagBytes = 1
		case tag>>1 == 0b10:
			tagBytes = 2
		case tag == 0b110:
			tagBytes = 4
		default:
			t.Fatalf("unrecognized tag byte 0x%02x for n=%d", got[0], c.n)
		}
		if tagBytes != c.wantTagBytes {
			t.Errorf("n=%d: want %d-byte tag, got %d (first byte 0x%02x)", c.n, c.wantTagBytes, tagBytes, got[0])
		}

		r := wire.NewReader(got)
		gotN, err := r.BlobLen()
		if err != nil {
			t.Fatalf("BlobLen round trip for n=%d: %v", c.n, err)
		}
		if gotN != c.n {
			t.Errorf("n=%d: round trip gave %d", c.n, gotN)
		}
	}
}

// TestBlobRoundTrip verifies full blob write/read including the empty blob.
func TestBlobRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	payloads := [][]byte{{}, {1, 2, 3}, bytes.Repeat([]byte{0x42}, 20000)}
	for _, p := range payloads {
		if err := w.Blob(p); err != nil {
			t.Fatalf("Blob(%d bytes): %v", len(p), err)
		}
	}

	r := wire.NewReader(w.Bytes())
	for i, p := range payloads {
		got, err := r.Blob()
		if err != nil {
			t.Fatalf("Blob #%d: %v", i, err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("Blob #%d: got %d bytes, want %d", i, len(got), len(p))
		}
	}
}

// TestTableIndexWidth verifies the row-count-to-width table matches spec §4.5.
func TestTableIndexWidth(t *testing.T) {
	cases := []struct {
		rowCount int
		want     int
	}{
		{0, 1}, {255, 1}, {256, 2}, {65535, 2}, {65536, 4},
	}
	for _, c := range cases {
		if got := wire.TableIndexWidth(c.rowCount); got != c.want {
			t.Errorf("TableIndexWidth(%d) = %d, want %d", c.rowCount, got, c.want)
		}
	}
}

// TestStringHeapIndexWidth verifies the heap-length-to-width rule.
func TestStringHeapIndexWidth(t *testing.T) {
	if got := wire.StringHeapIndexWidth(0xFFFF); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
	if got := wire.StringHeapIndexWidth(0x10000); got != 4 {
		t.Errorf("got %d, want 4", got)
	}
}
