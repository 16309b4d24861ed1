package zipkit

import (
	"hash/crc32"
)

// Extra field tag values recognized by this package, per spec.md §6.
const (
	tagZip64        uint16 = 0x0001
	tagUnicodeCmt    uint16 = 0x6375
	tagUnicodePath   uint16 = 0x7075
)

// ExtraField is one record of an entry's extra-field collection. Recognized
// tags decode to one of the typed field values below; everything else
// round-trips as an UnknownField.
type ExtraField interface {
	tag() uint16
	encodedLen() int
	encode(b *writeBuf)
}

// Zip64Field carries the 64-bit size/offset overrides consumed positionally
// per spec.md §4.4: if present, fields are read in the fixed order
// uncompressed size, compressed size, local header offset, and only those
// whose 32-bit counterpart in the fixed header was masked to 0xFFFFFFFF are
// present.
type Zip64Field struct {
	UncompressedSize *uint64
	CompressedSize   *uint64
	LocalHeaderOffset *uint64
}

func (f *Zip64Field) tag() uint16 { return tagZip64 }

func (f *Zip64Field) encodedLen() int {
	n := 0
	if f.UncompressedSize != nil {
		n += 8
	}
	if f.CompressedSize != nil {
		n += 8
	}
	if f.LocalHeaderOffset != nil {
		n += 8
	}
	return n
}

func (f *Zip64Field) encode(b *writeBuf) {
	if f.UncompressedSize != nil {
		b.uint64(*f.UncompressedSize)
	}
	if f.CompressedSize != nil {
		b.uint64(*f.CompressedSize)
	}
	if f.LocalHeaderOffset != nil {
		b.uint64(*f.LocalHeaderOffset)
	}
}

// UnicodeField is the Unicode-Path (0x7075) or Unicode-Comment (0x6375)
// extra field: a CRC32 of the originally-encoded legacy bytes plus the
// UTF-8 replacement text. Per spec.md §4.4 and the "Unicode path/comment
// cross-check" design note in §9, the field is only honored when its CRC32
// matches the legacy-encoded bytes the caller supplies at decode time;
// otherwise it's a stale mirror and must be ignored.
type UnicodeField struct {
	isComment bool
	CRC32     uint32
	Value     string
	// stale is set on decode when CRC32 didn't match the legacy-encoded
	// bytes supplied by the caller: the field is a stale mirror and its
	// Value should not be honored, per spec.md §9.
	stale bool
}

// Honored reports whether Value should be trusted: false if this field was
// decoded and its CRC32 didn't match the header's legacy-encoded bytes.
func (f *UnicodeField) Honored() bool { return !f.stale }

func (f *UnicodeField) tag() uint16 {
	if f.isComment {
		return tagUnicodeCmt
	}
	return tagUnicodePath
}

func (f *UnicodeField) encodedLen() int { return 5 + len(f.Value) }

func (f *UnicodeField) encode(b *writeBuf) {
	b.uint8(1) // version
	b.uint32(f.CRC32)
	for _, c := range []byte(f.Value) {
		b.uint8(c)
	}
}

// NewUnicodePathField builds a Unicode-Path field whose CRC32 is computed
// over legacyBytes, the originally-encoded (non-UTF-8) representation of
// value.
func NewUnicodePathField(value string, legacyBytes []byte) *UnicodeField {
	return &UnicodeField{CRC32: crc32.ChecksumIEEE(legacyBytes), Value: value}
}

// NewUnicodeCommentField is NewUnicodePathField for the comment tag.
func NewUnicodeCommentField(value string, legacyBytes []byte) *UnicodeField {
	return &UnicodeField{isComment: true, CRC32: crc32.ChecksumIEEE(legacyBytes), Value: value}
}

// UnknownField preserves an unrecognized tag's payload verbatim.
type UnknownField struct {
	Tag  uint16
	Data []byte
}

func (f *UnknownField) tag() uint16     { return f.Tag }
func (f *UnknownField) encodedLen() int { return len(f.Data) }
func (f *UnknownField) encode(b *writeBuf) {
	for _, c := range f.Data {
		b.uint8(c)
	}
}

// ExtraFieldCollection is an ordered sequence of extra-field records, per
// spec.md §3.
type ExtraFieldCollection struct {
	Fields []ExtraField
}

// Zip64 returns the first ZIP64 record in the collection, or nil. Per
// spec.md §3, duplicates are tolerated on read but only the first is
// consulted.
func (c *ExtraFieldCollection) Zip64() *Zip64Field {
	for _, f := range c.Fields {
		if z, ok := f.(*Zip64Field); ok {
			return z
		}
	}
	return nil
}

// Len returns the total serialized byte length of the collection: the sum
// of 4+size across every record.
func (c *ExtraFieldCollection) Len() int {
	n := 0
	for _, f := range c.Fields {
		n += 4 + f.encodedLen()
	}
	return n
}

// Encode serializes the collection as tag/size/payload triples, in order.
func (c *ExtraFieldCollection) Encode() []byte {
	buf := make([]byte, c.Len())
	b := writeBuf(buf)
	for _, f := range c.Fields {
		b.uint16(f.tag())
		b.uint16(uint16(f.encodedLen()))
		f.encode(&b)
	}
	return buf
}

// decodeExtraFieldOptions customizes how ambiguous records are resolved
// during decode.
type decodeExtraFieldOptions struct {
	// uncompressedSizeMasked/compressedSizeMasked/offsetMasked report whether the
	// corresponding fixed-header field was 0xFFFFFFFF, per spec.md §4.4:
	// the ZIP64 field's values are consumed positionally only for the
	// fields that were masked.
	uncompressedSizeMasked bool
	compressedSizeMasked   bool
	offsetMasked           bool

	// legacyName/legacyComment are the originally-encoded (non-UTF8) bytes
	// of the header's path/comment, used to validate Unicode fields.
	legacyName, legacyComment []byte
}

// decodeExtraFieldCollection walks buf end-to-end, dispatching on tag per
// spec.md §4.4.
func decodeExtraFieldCollection(buf []byte, opts decodeExtraFieldOptions) (*ExtraFieldCollection, error) {
	c := &ExtraFieldCollection{}
	v := newBinaryView(buf)
	offset := 0
	for offset < v.len() {
		tag, err := v.uint16(offset)
		if err != nil {
			return nil, err
		}
		size, err := v.uint16(offset + 2)
		if err != nil {
			return nil, err
		}
		payload, err := v.bytes(offset+4, int(size))
		if err != nil {
			return nil, err
		}

		field, err := decodeExtraField(tag, payload, opts)
		if err != nil {
			return nil, err
		}
		c.Fields = append(c.Fields, field)
		offset += 4 + int(size)
	}
	return c, nil
}

func decodeExtraField(tag uint16, payload []byte, opts decodeExtraFieldOptions) (ExtraField, error) {
	switch tag {
	case tagZip64:
		return decodeZip64Field(payload, opts)
	case tagUnicodePath:
		return decodeUnicodeField(payload, false, opts.legacyName)
	case tagUnicodeCmt:
		return decodeUnicodeField(payload, true, opts.legacyComment)
	default:
		data := make([]byte, len(payload))
		copy(data, payload)
		return &UnknownField{Tag: tag, Data: data}, nil
	}
}

func decodeZip64Field(payload []byte, opts decodeExtraFieldOptions) (ExtraField, error) {
	v := newBinaryView(payload)
	f := &Zip64Field{}
	offset := 0
	need := func(label string) (uint64, error) {
		val, err := v.uint64(offset)
		if err != nil {
			return 0, formatErrorf("zip64 extra field too short for %s", label)
		}
		offset += 8
		return val, nil
	}
	if opts.uncompressedSizeMasked {
		val, err := need("uncompressed size")
		if err != nil {
			return nil, err
		}
		f.UncompressedSize = &val
	}
	if opts.compressedSizeMasked {
		val, err := need("compressed size")
		if err != nil {
			return nil, err
		}
		f.CompressedSize = &val
	}
	if opts.offsetMasked {
		val, err := need("local header offset")
		if err != nil {
			return nil, err
		}
		f.LocalHeaderOffset = &val
	}
	return f, nil
}

func decodeUnicodeField(payload []byte, isComment bool, legacyBytes []byte) (ExtraField, error) {
	v := newBinaryView(payload)
	version, err := v.uint8(0)
	if err != nil {
		return nil, formatErrorf("unicode extra field too short")
	}
	if version != 1 {
		return nil, formatErrorf("unicode extra field has unsupported version %d", version)
	}
	storedCRC, err := v.uint32(1)
	if err != nil {
		return nil, formatErrorf("unicode extra field too short")
	}
	value := string(payload[5:])

	f := &UnicodeField{isComment: isComment, CRC32: storedCRC, Value: value}
	if crc32.ChecksumIEEE(legacyBytes) != storedCRC {
		// stale mirror field: per spec.md §9, ignore the decoded value but
		// still round-trip the record's raw bytes so re-serialization is
		// lossless. Callers should prefer the header's own legacy-decoded
		// name/comment over f.Value in this case -- Honored() reports this.
		f.stale = true
	}
	return f, nil
}
