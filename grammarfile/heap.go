package grammarfile

import (
	"bytes"

	"github.com/aledsdavies/gramforge/wire"
)

// stringHeapWriter accumulates unique NUL-terminated UTF-8 strings. Offset 0
// always refers to the empty string (spec §4.5, §6).
type stringHeapWriter struct {
	buf    bytes.Buffer
	offset map[string]uint32
}

func newStringHeapWriter() *stringHeapWriter {
	w := &stringHeapWriter{offset: make(map[string]uint32)}
	w.buf.WriteByte(0) // offset 0 = empty string
	w.offset[""] = 0
	return w
}

// add returns s's byte offset into the heap, writing it if not already
// present (spec §4.5: "maintains a list of unique UTF-8 strings").
func (w *stringHeapWriter) add(s string) (uint32, error) {
	if off, ok := w.offset[s]; ok {
		return off, nil
	}
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		return 0, errEmbeddedNul
	}
	off := uint32(w.buf.Len())
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
	w.offset[s] = off
	return off, nil
}

func (w *stringHeapWriter) bytes() []byte { return w.buf.Bytes() }

var errEmbeddedNul = errStr("grammarfile: string contains an embedded NUL byte")

type errStr string

func (e errStr) Error() string { return string(e) }

// stringHeapReader looks up NUL-terminated strings by byte offset.
type stringHeapReader struct {
	data []byte
}

func newStringHeapReader(data []byte) *stringHeapReader { return &stringHeapReader{data: data} }

func (r *stringHeapReader) at(offset uint32) (string, error) {
	if int(offset) > len(r.data) {
		return "", errStr("grammarfile: string heap offset out of range")
	}
	end := int(offset)
	for end < len(r.data) && r.data[end] != 0 {
		end++
	}
	if end >= len(r.data) {
		return "", errStr("grammarfile: unterminated string heap entry")
	}
	return string(r.data[offset:end]), nil
}

// blobHeapWriter accumulates length-prefixed byte blobs, tagged with the
// CIL-style compressed length scheme (wire.WriteBlobLen). Offset 0 always
// refers to the empty blob.
type blobHeapWriter struct {
	buf bytes.Buffer
}

func newBlobHeapWriter() *blobHeapWriter {
	w := &blobHeapWriter{}
	wire.WriteBlobLen(&w.buf, 0) // offset 0 = empty blob
	return w
}

func (w *blobHeapWriter) add(b []byte) (uint32, error) {
	off := uint32(w.buf.Len())
	if err := wire.WriteBlobLen(&w.buf, len(b)); err != nil {
		return 0, err
	}
	w.buf.Write(b)
	return off, nil
}

func (w *blobHeapWriter) bytes() []byte { return w.buf.Bytes() }

// blobHeapReader looks up length-prefixed blobs by byte offset.
type blobHeapReader struct {
	data []byte
}

func newBlobHeapReader(data []byte) *blobHeapReader { return &blobHeapReader{data: data} }

func (r *blobHeapReader) at(offset uint32) ([]byte, error) {
	if int(offset) > len(r.data) {
		return nil, errStr("grammarfile: blob heap offset out of range")
	}
	rd := wire.NewReader(r.data[offset:])
	b, err := rd.Blob()
	if err != nil {
		return nil, err
	}
	return b, nil
}
