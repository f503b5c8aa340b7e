// Package wire provides the little-endian binary primitives shared by the
// grammar container format: fixed-width integer read/write, length-prefixed
// strings and blobs, and the CIL-style compressed blob-length codec used by
// the blob heap (spec §6).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer accumulates bytes for one stream of the grammar container.
// Callers build a stream into a Writer, then take its Bytes() once the
// stream is complete; this mirrors the teacher's buffer-then-write pattern
// of building header/body into bytes.Buffer before a single underlying
// io.Writer.Write call.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Bytes returns the accumulated bytes. The Writer remains usable afterward.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// WriteTo writes the accumulated bytes to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	return w.buf.WriteTo(dst)
}

func (w *Writer) U8(v uint8) error {
	return w.buf.WriteByte(v)
}

func (w *Writer) U16(v uint16) error {
	return binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *Writer) U32(v uint32) error {
	return binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *Writer) U64(v uint64) error {
	return binary.Write(&w.buf, binary.LittleEndian, v)
}

// UintN writes v in width bytes (1, 2, or 4), little-endian. width is a
// table- or heap-index width computed by the caller (see grammarfile).
func (w *Writer) UintN(v uint32, width int) error {
	switch width {
	case 1:
		if v > 0xFF {
			return fmt.Errorf("wire: value %d does not fit in 1 byte", v)
		}
		return w.U8(uint8(v))
	case 2:
		if v > 0xFFFF {
			return fmt.Errorf("wire: value %d does not fit in 2 bytes", v)
		}
		return w.U16(uint16(v))
	case 4:
		return w.U32(v)
	default:
		return fmt.Errorf("wire: unsupported index width %d", width)
	}
}

// RawBytes writes raw bytes with no length prefix.
func (w *Writer) RawBytes(b []byte) error {
	_, err := w.buf.Write(b)
	return err
}

// Str writes a nul-terminated UTF-8 string, as used by the string heap.
// It rejects embedded NUL bytes per spec §4.5.
func (w *Writer) Str(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return fmt.Errorf("wire: string contains embedded NUL byte at offset %d", i)
		}
	}
	if _, err := w.buf.WriteString(s); err != nil {
		return err
	}
	return w.buf.WriteByte(0)
}

// LenPrefixedStr writes a u16-length-prefixed string (used by row fields
// that are not heap-indexed, e.g. small ambient metadata).
func (w *Writer) LenPrefixedStr(s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("wire: string of length %d exceeds uint16 prefix", len(s))
	}
	if err := w.U16(uint16(len(s))); err != nil {
		return err
	}
	_, err := w.buf.WriteString(s)
	return err
}

// Blob writes a length-prefixed byte array using the CIL-style compressed
// length tag described in spec §6:
//
//	0xxxxxxx                               7-bit length
//	10xxxxxx xxxxxxxx                      14-bit length, big-endian
//	110xxxxx xxxxxxxx xxxxxxxx xxxxxxxx    29-bit length, big-endian
func (w *Writer) Blob(b []byte) error {
	if err := WriteBlobLen(&w.buf, len(b)); err != nil {
		return err
	}
	_, err := w.buf.Write(b)
	return err
}

const (
	maxBlobLen7  = 1<<7 - 1
	maxBlobLen14 = 1<<14 - 1
	maxBlobLen29 = 1<<29 - 1
)

// WriteBlobLen writes just the compressed length tag to dst.
func WriteBlobLen(dst io.Writer, n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("wire: negative blob length %d", n)
	case n <= maxBlobLen7:
		_, err := dst.Write([]byte{byte(n)})
		return err
	case n <= maxBlobLen14:
		b0 := byte(0x80 | (n >> 8))
		b1 := byte(n & 0xFF)
		_, err := dst.Write([]byte{b0, b1})
		return err
	case n <= maxBlobLen29:
		b0 := byte(0xC0 | (n >> 24))
		b1 := byte((n >> 16) & 0xFF)
		b2 := byte((n >> 8) & 0xFF)
		b3 := byte(n & 0xFF)
		_, err := dst.Write([]byte{b0, b1, b2, b3})
		return err
	default:
		return fmt.Errorf("wire: blob length %d exceeds 29-bit maximum %d", n, maxBlobLen29)
	}
}

// Reader walks a byte slice sequentially, the mirror image of Writer.
type Reader struct {
	b   []byte
	pos int
}

// NewReader wraps b for sequential reads starting at offset 0.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.b) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("wire: unexpected end of stream: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.b[r.pos:])
	r.pos += 8
	return v, nil
}

// UintN reads a value of the given width (1, 2, or 4 bytes), little-endian.
func (r *Reader) UintN(width int) (uint32, error) {
	switch width {
	case 1:
		v, err := r.U8()
		return uint32(v), err
	case 2:
		v, err := r.U16()
		return uint32(v), err
	case 4:
		return r.U32()
	default:
		return 0, fmt.Errorf("wire: unsupported index width %d", width)
	}
}

func (r *Reader) RawBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.b[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Str reads a NUL-terminated UTF-8 string starting at the current offset.
func (r *Reader) Str() (string, error) {
	start := r.pos
	for r.pos < len(r.b) {
		if r.b[r.pos] == 0 {
			s := string(r.b[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return "", fmt.Errorf("wire: unterminated string starting at offset %d", start)
}

func (r *Reader) LenPrefixedStr() (string, error) {
	n, err := r.U16()
	if err != nil {
		return "", err
	}
	b, err := r.RawBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Blob reads a compressed-length-prefixed byte array, per WriteBlobLen.
func (r *Reader) Blob() ([]byte, error) {
	n, err := r.BlobLen()
	if err != nil {
		return nil, err
	}
	return r.RawBytes(n)
}

// BlobLen reads just the compressed length tag and advances past it.
func (r *Reader) BlobLen() (int, error) {
	b0, err := r.U8()
	if err != nil {
		return 0, err
	}
	switch {
	case b0&0x80 == 0:
		return int(b0), nil
	case b0&0xC0 == 0x80:
		b1, err := r.U8()
		if err != nil {
			return 0, err
		}
		return int(b0&0x3F)<<8 | int(b1), nil
	case b0&0xE0 == 0xC0:
		rest, err := r.RawBytes(3)
		if err != nil {
			return 0, err
		}
		return int(b0&0x1F)<<24 | int(rest[0])<<16 | int(rest[1])<<8 | int(rest[2]), nil
	default:
		return 0, fmt.Errorf("wire: invalid blob length tag 0x%02x", b0)
	}
}

// StringHeapIndexWidth returns 2 if a heap of heapLen bytes can be addressed
// by a uint16 offset, else 4, per spec §4.5.
func StringHeapIndexWidth(heapLen int) int {
	if heapLen <= 0xFFFF {
		return 2
	}
	return 4
}

// TableIndexWidth returns the narrowest width (1, 2, or 4 bytes) that can
// address rowCount rows, per spec §4.5.
func TableIndexWidth(rowCount int) int {
	switch {
	case rowCount < 1<<8:
		return 1
	case rowCount < 1<<16:
		return 2
	default:
		return 4
	}
}
