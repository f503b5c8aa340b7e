// Package grammarfile owns the bit-exact binary grammar container: a
// little-endian file header, a stream directory, and three streams (string
// heap, blob heap, tables) that together serialize a model.Grammar plus its
// built DFA and LALR tables (spec §4.5, §6).
//
// Grounded on the teacher's planfmt.Write/Read: buffer-then-write into
// per-stream byte buffers, compute a BLAKE2b-256 content hash, then emit a
// fixed preamble followed by the buffered bodies.
package grammarfile

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/semver"

	"github.com/aledsdavies/gramforge/dfa"
	"github.com/aledsdavies/gramforge/lalr"
	"github.com/aledsdavies/gramforge/model"
	"github.com/aledsdavies/gramforge/wire"
)

// Magic identifies this container format (spec §6 "Magic bytes: 8 bytes").
var Magic = [8]byte{'G', 'R', 'M', 'F', 'R', 'G', 'E', '1'}

// VersionMajor/VersionMinor are this package's format version. Readers
// reject a major mismatch and tolerate a higher minor (spec §6).
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 0
)

// StreamID identifies a stream in the directory (spec §6 "Known ids").
type StreamID uint64

const (
	StreamStrings StreamID = 1
	StreamBlobs   StreamID = 2
	StreamTables  StreamID = 3
)

// CompatVersion returns the semver-style "vMAJOR.MINOR.0" string for a
// container's version pair, used only for diagnostic messages and for
// golang.org/x/mod/semver comparisons against a minimum-supported version.
func CompatVersion(major, minor uint16) string {
	return fmt.Sprintf("v%d.%d.0", major, minor)
}

// CheckCompatible reports whether a reader supporting minSupported (a
// "vMAJOR.MINOR.0" string, the reader's minimum known minor) can read a
// container with the given version: major must match exactly; minor must
// be greater than or equal to the reader's own minor, since a higher minor
// only adds fields an older reader can ignore (spec §6).
func CheckCompatible(minSupported string, major, minor uint16) error {
	fileVersion := CompatVersion(major, minor)
	if semver.Major(fileVersion) != semver.Major(minSupported) {
		return fmt.Errorf("grammarfile: major version %s is incompatible with supported %s", semver.Major(fileVersion), semver.Major(minSupported))
	}
	if semver.Compare(fileVersion, minSupported) < 0 {
		return fmt.Errorf("grammarfile: file minor version %s is older than supported %s", fileVersion, minSupported)
	}
	return nil
}

// Image bundles everything a Grammar build produces and that this package
// serializes together (spec §4.7 steps 7-8: "add its blob-encoded state
// machine stream").
type Image struct {
	Grammar *model.Grammar
	DFA     *dfa.Table
	LR      *lalr.Table
}

// Encode serializes img to w, returning the BLAKE2b-256 hash of the three
// stream bodies (spec §9's content-hash idea, grounded on planfmt.Write's
// "hash of target+body").
func Encode(w io.Writer, img *Image) ([32]byte, error) {
	strings := newStringHeapWriter()
	blobs := newBlobHeapWriter()

	tablesBuf, err := encodeTables(img, strings, blobs)
	if err != nil {
		return [32]byte{}, fmt.Errorf("grammarfile: encoding tables: %w", err)
	}

	stringsBuf := strings.bytes()
	blobsBuf := blobs.bytes()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, err
	}
	for _, b := range [][]byte{stringsBuf, blobsBuf, tablesBuf} {
		if _, err := hasher.Write(b); err != nil {
			return [32]byte{}, err
		}
	}
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))

	if err := writeContainer(w, stringsBuf, blobsBuf, tablesBuf); err != nil {
		return [32]byte{}, err
	}
	return digest, nil
}

func writeContainer(w io.Writer, strings, blobs, tables []byte) error {
	type entry struct {
		id     StreamID
		body   []byte
	}
	entries := []entry{
		{StreamStrings, strings},
		{StreamBlobs, blobs},
		{StreamTables, tables},
	}

	var hdr bytes.Buffer
	if _, err := hdr.Write(Magic[:]); err != nil {
		return err
	}
	wr := wire.NewWriter()
	if err := wr.U16(VersionMajor); err != nil {
		return err
	}
	if err := wr.U16(VersionMinor); err != nil {
		return err
	}
	if err := wr.U32(uint32(len(entries))); err != nil {
		return err
	}

	offset := uint32(len(Magic) + wr.Len())
	offset += uint32(len(entries)) * 16 // each directory entry: u64 id + u32 offset + u32 length
	for _, e := range entries {
		if err := wr.U64(uint64(e.id)); err != nil {
			return err
		}
		if err := wr.U32(offset); err != nil {
			return err
		}
		if err := wr.U32(uint32(len(e.body))); err != nil {
			return err
		}
		offset += uint32(len(e.body))
	}

	if _, err := wr.WriteTo(&hdr); err != nil {
		return err
	}
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := w.Write(e.body); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses a container previously written by Encode. minSupported is
// the caller's own "vMAJOR.MINOR.0" floor, checked via CheckCompatible.
func Decode(data []byte, minSupported string) (*Image, error) {
	if len(data) < 8+4 {
		return nil, fmt.Errorf("grammarfile: container too short")
	}
	var magic [8]byte
	copy(magic[:], data[:8])
	if magic != Magic {
		return nil, fmt.Errorf("grammarfile: bad magic %x", magic)
	}
	r := wire.NewReader(data[8:])
	major, err := r.U16()
	if err != nil {
		return nil, err
	}
	minor, err := r.U16()
	if err != nil {
		return nil, err
	}
	if err := CheckCompatible(minSupported, major, minor); err != nil {
		return nil, err
	}
	streamCount, err := r.U32()
	if err != nil {
		return nil, err
	}

	type dirEntry struct {
		id     StreamID
		offset uint32
		length uint32
	}
	dir := make([]dirEntry, streamCount)
	for i := range dir {
		id, err := r.U64()
		if err != nil {
			return nil, err
		}
		off, err := r.U32()
		if err != nil {
			return nil, err
		}
		length, err := r.U32()
		if err != nil {
			return nil, err
		}
		dir[i] = dirEntry{StreamID(id), off, length}
	}

	streamBytes := func(id StreamID) ([]byte, error) {
		for _, e := range dir {
			if e.id == id {
				if int(e.offset+e.length) > len(data) {
					return nil, fmt.Errorf("grammarfile: stream %d out of bounds", id)
				}
				return data[e.offset : e.offset+e.length], nil
			}
		}
		return nil, fmt.Errorf("grammarfile: missing stream %d", id)
	}

	stringsBuf, err := streamBytes(StreamStrings)
	if err != nil {
		return nil, err
	}
	blobsBuf, err := streamBytes(StreamBlobs)
	if err != nil {
		return nil, err
	}
	tablesBuf, err := streamBytes(StreamTables)
	if err != nil {
		return nil, err
	}

	strings := newStringHeapReader(stringsBuf)
	blobs := newBlobHeapReader(blobsBuf)
	return decodeTables(tablesBuf, strings, blobs)
}
