package zipkit

import (
	"encoding/binary"

	"golang.org/x/text/encoding/charmap"
)

// TextCodec decodes and encodes the legacy or UTF-8 byte strings used for
// entry paths and comments. The core treats the legacy code page as a
// supplied lookup table rather than implementing one; CP437 is available
// via Legacy for callers (and tests) that want the historical default.
type TextCodec interface {
	Decode(b []byte) (string, error)
	Encode(s string) ([]byte, error)
}

// UTF8Codec is the identity TextCodec used whenever the UTF-8 general
// purpose flag bit is set.
var UTF8Codec TextCodec = utf8Codec{}

type utf8Codec struct{}

func (utf8Codec) Decode(b []byte) (string, error) { return string(b), nil }
func (utf8Codec) Encode(s string) ([]byte, error)  { return []byte(s), nil }

// Legacy is a CP437 TextCodec, the classic default code page for ZIP
// entries written with the UTF-8 flag clear. It is backed by
// golang.org/x/text/encoding/charmap, which is the concrete codec table
// that this package's design intentionally keeps as an external collaborator
// rather than reimplementing.
var Legacy TextCodec = legacyCodec{}

type legacyCodec struct{}

func (legacyCodec) Decode(b []byte) (string, error) {
	return charmap.CodePage437.NewDecoder().String(string(b))
}

func (legacyCodec) Encode(s string) ([]byte, error) {
	out, err := charmap.CodePage437.NewEncoder().String(s)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// binaryView is a bounded, non-owning little-endian accessor over a byte
// buffer. It never allocates on read; every accessor checks bounds against
// the view's length cap before touching the backing slice.
type binaryView struct {
	buf []byte
}

func newBinaryView(buf []byte) binaryView {
	return binaryView{buf: buf}
}

func (v binaryView) len() int { return len(v.buf) }

func (v binaryView) checkBounds(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(v.buf) {
		return &BoundsError{Offset: offset, Length: length, Available: len(v.buf)}
	}
	return nil
}

func (v binaryView) uint8(offset int) (uint8, error) {
	if err := v.checkBounds(offset, 1); err != nil {
		return 0, err
	}
	return v.buf[offset], nil
}

func (v binaryView) uint16(offset int) (uint16, error) {
	if err := v.checkBounds(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(v.buf[offset:]), nil
}

func (v binaryView) uint32(offset int) (uint32, error) {
	if err := v.checkBounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v.buf[offset:]), nil
}

// uint64 reads an 8-byte little-endian value. The spec documents a policy
// that implementations in languages without a native 64-bit integer must
// reject values above the safe-integer range; Go's uint64 is native width,
// so that check is a no-op here and every value round-trips exactly.
func (v binaryView) uint64(offset int) (uint64, error) {
	if err := v.checkBounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v.buf[offset:]), nil
}

// bytes returns a sub-slice (not a copy) of length bytes starting at offset.
func (v binaryView) bytes(offset, length int) ([]byte, error) {
	if err := v.checkBounds(offset, length); err != nil {
		return nil, err
	}
	return v.buf[offset : offset+length], nil
}

// text reads length bytes at offset and decodes them with codec.
func (v binaryView) text(offset, length int, codec TextCodec) (string, error) {
	b, err := v.bytes(offset, length)
	if err != nil {
		return "", err
	}
	return codec.Decode(b)
}

// writeBuf is a bounded little-endian write cursor, adapted from the
// teacher's writeBuf in writer.go and extended with a 64-bit writer for
// ZIP64 records.
type writeBuf []byte

func (b *writeBuf) uint8(v uint8) {
	(*b)[0] = v
	*b = (*b)[1:]
}

func (b *writeBuf) uint16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *writeBuf) uint32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

func (b *writeBuf) uint64(v uint64) {
	binary.LittleEndian.PutUint64(*b, v)
	*b = (*b)[8:]
}

func (b *writeBuf) skip(n int) {
	*b = (*b)[n:]
}
