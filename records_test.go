package zipkit

import "testing"

func TestVersionNeeded(t *testing.T) {
	cases := []struct {
		utf8, zip64 bool
		requested   uint16
		want        uint16
	}{
		{false, false, 0, versionBase},
		{true, false, 0, versionUTF8},
		{false, true, 0, versionZip64},
		{true, true, 0, versionUTF8},
		{false, false, 62, 62},
	}
	for _, c := range cases {
		got := versionNeeded(c.utf8, c.zip64, c.requested)
		if got != c.want {
			t.Errorf("versionNeeded(%v, %v, %d): got %d, want %d", c.utf8, c.zip64, c.requested, got, c.want)
		}
	}
}

func TestLocalHeaderRoundTrip(t *testing.T) {
	h := &localHeaderFixed{
		ReaderVersion:    20,
		Flags:            GeneralFlags(0).WithUTF8Strings(true),
		Method:           Deflate,
		ModifiedDOS:      0x12345678,
		CRC32:            0xCAFEBABE,
		CompressedSize:   100,
		UncompressedSize: 200,
	}
	name := []byte("hello.txt")
	extra := []byte{}
	buf := writeLocalHeader(h, name, extra)

	got, err := readLocalHeaderFixed(buf)
	if err != nil {
		t.Fatalf("readLocalHeaderFixed: %v", err)
	}
	if got.CRC32 != h.CRC32 || got.CompressedSize != h.CompressedSize || got.UncompressedSize != h.UncompressedSize {
		t.Errorf("fixed fields did not round trip: got %+v, want %+v", got, h)
	}
	if got.NameLen != len(name) {
		t.Errorf("NameLen: got %d, want %d", got.NameLen, len(name))
	}
	if !got.Flags.HasUTF8Strings() {
		t.Errorf("utf8 flag did not round trip")
	}
}

func TestReadLocalHeaderBadSignature(t *testing.T) {
	buf := make([]byte, localHeaderLen)
	if _, err := readLocalHeaderFixed(buf); err == nil {
		t.Fatalf("expected a SignatureError for an all-zero buffer")
	}
}

func TestCentralHeaderRejectsMultiDisk(t *testing.T) {
	h := &centralHeaderFixed{}
	buf := writeCentralHeader(h, nil, nil, nil)
	// disk number start lives at offset 34; set it to something other than
	// 0 or 0xFFFF.
	buf[34] = 1
	buf[35] = 0
	if _, err := readCentralHeaderFixed(buf); err == nil {
		t.Fatalf("expected a MultiDiskError for a nonzero, non-0xFFFF disk number")
	}
}

func TestDataDescriptorRoundTrip(t *testing.T) {
	d := &dataDescriptor{CRC32: 0x11223344, CompressedSize: 1 << 40, UncompressedSize: 1 << 41}
	buf := writeDataDescriptor(d, true)
	got, err := readDataDescriptor(buf, true)
	if err != nil {
		t.Fatalf("readDataDescriptor: %v", err)
	}
	if *got != *d {
		t.Errorf("got %+v, want %+v", got, d)
	}
}

func TestDataDescriptorWithoutSignature(t *testing.T) {
	d := &dataDescriptor{CRC32: 7, CompressedSize: 8, UncompressedSize: 9}
	buf := writeDataDescriptor(d, false)
	// strip the optional leading signature
	got, err := readDataDescriptor(buf[4:], false)
	if err != nil {
		t.Fatalf("readDataDescriptor: %v", err)
	}
	if *got != *d {
		t.Errorf("got %+v, want %+v", got, d)
	}
}

func TestEOCDRRejectsMismatchedDiskCounts(t *testing.T) {
	e := &eocdr{EntriesOnThisDisk: 3, TotalEntries: 4}
	buf := writeEOCDR(e)
	if _, err := readEOCDR(buf, nil); err == nil {
		t.Fatalf("expected a MultiDiskError when per-disk and total entry counts differ")
	}
}

func TestZip64EOCDLRejectsMultiDisk(t *testing.T) {
	buf := writeZip64EOCDL(12345)
	buf[4] = 1 // disk with start of zip64 EOCDR != 0
	if _, err := readZip64EOCDL(buf); err == nil {
		t.Fatalf("expected a MultiDiskError for a nonzero start disk")
	}
}

func TestZip64EOCDRRoundTrip(t *testing.T) {
	e := &zip64EOCDR{
		VersionMadeBy:     45,
		VersionNeeded:     45,
		EntriesOnThisDisk: 70000,
		TotalEntries:      70000,
		DirectorySize:     1 << 33,
		DirectoryOffset:   1 << 34,
	}
	buf := writeZip64EOCDR(e)
	got, err := readZip64EOCDR(buf)
	if err != nil {
		t.Fatalf("readZip64EOCDR: %v", err)
	}
	if *got != *e {
		t.Errorf("got %+v, want %+v", got, e)
	}
}
