package zipkit

import "testing"

func TestBinaryViewBounds(t *testing.T) {
	v := newBinaryView([]byte{1, 2, 3, 4})
	if _, err := v.uint32(0); err != nil {
		t.Fatalf("uint32(0): unexpected error: %v", err)
	}
	if _, err := v.uint16(3); err == nil {
		t.Fatalf("uint16(3): expected a BoundsError, got nil")
	}
	if _, err := v.uint8(-1); err == nil {
		t.Fatalf("uint8(-1): expected a BoundsError, got nil")
	}
}

func TestBinaryViewRoundTrip(t *testing.T) {
	buf := make([]byte, 15)
	b := writeBuf(buf)
	b.uint8(0xAB)
	b.uint16(0x1234)
	b.uint32(0xDEADBEEF)
	b.uint64(0x0102030405060708)

	v := newBinaryView(buf)
	if got, _ := v.uint8(0); got != 0xAB {
		t.Errorf("uint8: got %#x, want 0xab", got)
	}
	if got, _ := v.uint16(1); got != 0x1234 {
		t.Errorf("uint16: got %#x, want 0x1234", got)
	}
	if got, _ := v.uint32(3); got != 0xDEADBEEF {
		t.Errorf("uint32: got %#x, want 0xdeadbeef", got)
	}
	if got, _ := v.uint64(7); got != 0x0102030405060708 {
		t.Errorf("uint64: got %#x, want 0x0102030405060708", got)
	}
}

func TestLegacyCodecRoundTrip(t *testing.T) {
	encoded, err := Legacy.Encode("README.TXT")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Legacy.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != "README.TXT" {
		t.Errorf("round trip: got %q, want %q", decoded, "README.TXT")
	}
}
