package zipkit

import "testing"

func TestExtraFieldCollectionRoundTrip(t *testing.T) {
	uc := uint64(5_000_000_000)
	cs := uint64(4_000_000_000)
	c := ExtraFieldCollection{Fields: []ExtraField{
		&Zip64Field{UncompressedSize: &uc, CompressedSize: &cs},
		&UnknownField{Tag: 0x9999, Data: []byte{1, 2, 3}},
	}}

	encoded := c.Encode()
	decoded, err := decodeExtraFieldCollection(encoded, decodeExtraFieldOptions{
		uncompressedSizeMasked: true,
		compressedSizeMasked:   true,
	})
	if err != nil {
		t.Fatalf("decodeExtraFieldCollection: %v", err)
	}

	z := decoded.Zip64()
	if z == nil {
		t.Fatalf("decoded collection is missing its zip64 field")
	}
	if z.UncompressedSize == nil || *z.UncompressedSize != uc {
		t.Errorf("UncompressedSize: got %v, want %d", z.UncompressedSize, uc)
	}
	if z.CompressedSize == nil || *z.CompressedSize != cs {
		t.Errorf("CompressedSize: got %v, want %d", z.CompressedSize, cs)
	}

	if len(decoded.Fields) != 2 {
		t.Fatalf("field count: got %d, want 2", len(decoded.Fields))
	}
	unk, ok := decoded.Fields[1].(*UnknownField)
	if !ok {
		t.Fatalf("second field: got %T, want *UnknownField", decoded.Fields[1])
	}
	if string(unk.Data) != "\x01\x02\x03" {
		t.Errorf("unknown field payload not preserved")
	}
}

func TestUnicodeFieldStaleMirrorIgnored(t *testing.T) {
	legacyBytes := []byte("caf\xe9.txt")
	f := NewUnicodePathField("café.txt", legacyBytes)

	// decode it back against DIFFERENT legacy bytes, simulating a renamed
	// entry whose Unicode extra field is now stale.
	decoded, err := decodeUnicodeField(f.encodeBytesForTest(), false, []byte("other.txt"))
	if err != nil {
		t.Fatalf("decodeUnicodeField: %v", err)
	}
	uf := decoded.(*UnicodeField)
	if uf.Honored() {
		t.Errorf("a CRC32 mismatch should mark the Unicode field as not honored")
	}
}

func TestUnicodeFieldFreshIsHonored(t *testing.T) {
	legacyBytes := []byte("caf\xe9.txt")
	f := NewUnicodePathField("café.txt", legacyBytes)

	decoded, err := decodeUnicodeField(f.encodeBytesForTest(), false, legacyBytes)
	if err != nil {
		t.Fatalf("decodeUnicodeField: %v", err)
	}
	uf := decoded.(*UnicodeField)
	if !uf.Honored() {
		t.Errorf("a matching CRC32 should be honored")
	}
	if uf.Value != "café.txt" {
		t.Errorf("Value: got %q, want %q", uf.Value, "café.txt")
	}
}

// encodeBytesForTest serializes just this field's payload (no tag/size
// envelope), mirroring what decodeUnicodeField expects to receive.
func (f *UnicodeField) encodeBytesForTest() []byte {
	buf := make([]byte, f.encodedLen())
	b := writeBuf(buf)
	f.encode(&b)
	return buf
}
