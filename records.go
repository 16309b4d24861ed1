package zipkit

// Record signatures and fixed sizes, per spec.md §6, adapted from the
// teacher's struct.go constants and extended with the ZIP64 locator/record
// the teacher never reads.
const (
	sigLocalHeader   uint32 = 0x04034b50
	sigCentralHeader uint32 = 0x02014b50
	sigDataDesc      uint32 = 0x08074b50
	sigEOCDR         uint32 = 0x06054b50
	sigZip64EOCDL    uint32 = 0x07064b50
	sigZip64EOCDR    uint32 = 0x06064b50

	localHeaderLen   = 30
	centralHeaderLen = 46
	dataDesc32Len    = 16
	dataDesc64Len    = 24
	eocdrLen         = 22
	zip64EOCDLLen    = 20
	zip64EOCDRLen    = 56

	versionBase  uint16 = 20
	versionUTF8  uint16 = 63
	versionZip64 uint16 = 45
)

// versionNeeded computes the minimum "version needed to extract" per
// spec.md's invariant in §3: versionNeeded >= max(20, utf8?63:0, zip64?45:0),
// additionally respecting a caller-requested floor.
func versionNeeded(utf8, zip64 bool, requested uint16) uint16 {
	v := versionBase
	if utf8 && versionUTF8 > v {
		v = versionUTF8
	}
	if zip64 && versionZip64 > v {
		v = versionZip64
	}
	if requested > v {
		v = requested
	}
	return v
}

// localHeaderFixed is the parsed fixed-size portion of a local file header,
// along with the variable-field lengths the caller needs to read the
// trailing name/extra bytes, per spec.md §4.5's "split read" design.
type localHeaderFixed struct {
	ReaderVersion    uint16
	Flags            GeneralFlags
	Method           uint16
	ModifiedDOS      uint32
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLen          int
	ExtraLen         int
}

func readLocalHeaderFixed(buf []byte) (*localHeaderFixed, error) {
	v := newBinaryView(buf)
	sig, err := v.uint32(0)
	if err != nil {
		return nil, err
	}
	if sig != sigLocalHeader {
		return nil, &SignatureError{Record: "local file header", Observed: sig}
	}
	h := &localHeaderFixed{}
	if h.ReaderVersion, err = v.uint16(4); err != nil {
		return nil, err
	}
	flags, err := v.uint16(6)
	if err != nil {
		return nil, err
	}
	h.Flags = GeneralFlags(flags)
	if h.Method, err = v.uint16(8); err != nil {
		return nil, err
	}
	modTime, err := v.uint16(10)
	if err != nil {
		return nil, err
	}
	modDate, err := v.uint16(12)
	if err != nil {
		return nil, err
	}
	h.ModifiedDOS = uint32(modDate)<<16 | uint32(modTime)
	if h.CRC32, err = v.uint32(14); err != nil {
		return nil, err
	}
	if h.CompressedSize, err = v.uint32(18); err != nil {
		return nil, err
	}
	if h.UncompressedSize, err = v.uint32(22); err != nil {
		return nil, err
	}
	nameLen, err := v.uint16(26)
	if err != nil {
		return nil, err
	}
	extraLen, err := v.uint16(28)
	if err != nil {
		return nil, err
	}
	h.NameLen = int(nameLen)
	h.ExtraLen = int(extraLen)
	return h, nil
}

// writeLocalHeader serializes a local header into a fresh buffer, adapted
// from the teacher's writeHeader in writer.go. The size fields are written
// exactly as given; when zip64 is in effect the caller sets them to
// 0xFFFFFFFF itself (the teacher never wrote ZIP64 local headers).
func writeLocalHeader(h *localHeaderFixed, name, extra []byte) []byte {
	buf := make([]byte, localHeaderLen+len(name)+len(extra))
	b := writeBuf(buf)
	b.uint32(sigLocalHeader)
	b.uint16(h.ReaderVersion)
	b.uint16(uint16(h.Flags))
	b.uint16(h.Method)
	b.uint16(uint16(h.ModifiedDOS))
	b.uint16(uint16(h.ModifiedDOS >> 16))
	b.uint32(h.CRC32)
	b.uint32(h.CompressedSize)
	b.uint32(h.UncompressedSize)
	b.uint16(uint16(len(name)))
	b.uint16(uint16(len(extra)))
	copy(b, name)
	b = b[len(name):]
	copy(b, extra)
	return buf
}

// centralHeaderFixed is the parsed fixed-size portion of a central
// directory header, analogous to localHeaderFixed.
type centralHeaderFixed struct {
	CreatorVersion   uint16
	ReaderVersion    uint16
	Flags            GeneralFlags
	Method           uint16
	ModifiedDOS      uint32
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLen          int
	ExtraLen         int
	CommentLen       int
	ExternalAttrs    uint32
	LocalHeaderOffset uint32
}

func readCentralHeaderFixed(buf []byte) (*centralHeaderFixed, error) {
	v := newBinaryView(buf)
	sig, err := v.uint32(0)
	if err != nil {
		return nil, err
	}
	if sig != sigCentralHeader {
		return nil, &SignatureError{Record: "central directory header", Observed: sig}
	}
	h := &centralHeaderFixed{}
	if h.CreatorVersion, err = v.uint16(4); err != nil {
		return nil, err
	}
	if h.ReaderVersion, err = v.uint16(6); err != nil {
		return nil, err
	}
	flags, err := v.uint16(8)
	if err != nil {
		return nil, err
	}
	h.Flags = GeneralFlags(flags)
	if h.Method, err = v.uint16(10); err != nil {
		return nil, err
	}
	modTime, err := v.uint16(12)
	if err != nil {
		return nil, err
	}
	modDate, err := v.uint16(14)
	if err != nil {
		return nil, err
	}
	h.ModifiedDOS = uint32(modDate)<<16 | uint32(modTime)
	if h.CRC32, err = v.uint32(16); err != nil {
		return nil, err
	}
	if h.CompressedSize, err = v.uint32(20); err != nil {
		return nil, err
	}
	if h.UncompressedSize, err = v.uint32(24); err != nil {
		return nil, err
	}
	nameLen, err := v.uint16(28)
	if err != nil {
		return nil, err
	}
	extraLen, err := v.uint16(30)
	if err != nil {
		return nil, err
	}
	commentLen, err := v.uint16(32)
	if err != nil {
		return nil, err
	}
	h.NameLen = int(nameLen)
	h.ExtraLen = int(extraLen)
	h.CommentLen = int(commentLen)

	diskNumberStart, err := v.uint16(34)
	if err != nil {
		return nil, err
	}
	if diskNumberStart != 0 && diskNumberStart != 0xFFFF {
		return nil, &MultiDiskError{Reason: "central directory header disk number start is not 0 or 0xFFFF"}
	}
	// skip internal file attributes (2 bytes at offset 36)
	if h.ExternalAttrs, err = v.uint32(38); err != nil {
		return nil, err
	}
	if h.LocalHeaderOffset, err = v.uint32(42); err != nil {
		return nil, err
	}
	return h, nil
}

// writeCentralHeader serializes a central directory header, adapted from
// the teacher's per-entry loop body in writeCentralDirectory (writer.go),
// split out to a single-entry function so the writer can stream entries one
// at a time instead of building the whole directory buffer up front.
func writeCentralHeader(h *centralHeaderFixed, name, extra, comment []byte) []byte {
	buf := make([]byte, centralHeaderLen+len(name)+len(extra)+len(comment))
	b := writeBuf(buf)
	b.uint32(sigCentralHeader)
	b.uint16(h.CreatorVersion)
	b.uint16(h.ReaderVersion)
	b.uint16(uint16(h.Flags))
	b.uint16(h.Method)
	b.uint16(uint16(h.ModifiedDOS))
	b.uint16(uint16(h.ModifiedDOS >> 16))
	b.uint32(h.CRC32)
	b.uint32(h.CompressedSize)
	b.uint32(h.UncompressedSize)
	b.uint16(uint16(len(name)))
	b.uint16(uint16(len(extra)))
	b.uint16(uint16(len(comment)))
	b.skip(4) // disk number start, internal file attributes
	b.uint32(h.ExternalAttrs)
	b.uint32(h.LocalHeaderOffset)
	copy(b, name)
	b = b[len(name):]
	copy(b, extra)
	b = b[len(extra):]
	copy(b, comment)
	return buf
}

// dataDescriptor carries the CRC32 and sizes that follow an entry's
// compressed data when the local header couldn't record them up front.
type dataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// writeDataDescriptor serializes either the 32-bit or 64-bit form of the
// descriptor, adapted from the teacher's makeDataDescriptor in writer.go.
func writeDataDescriptor(d *dataDescriptor, zip64 bool) []byte {
	if zip64 {
		buf := make([]byte, dataDesc64Len)
		b := writeBuf(buf)
		b.uint32(sigDataDesc)
		b.uint32(d.CRC32)
		b.uint64(d.CompressedSize)
		b.uint64(d.UncompressedSize)
		return buf
	}
	buf := make([]byte, dataDesc32Len)
	b := writeBuf(buf)
	b.uint32(sigDataDesc)
	b.uint32(d.CRC32)
	b.uint32(uint32(d.CompressedSize))
	b.uint32(uint32(d.UncompressedSize))
	return buf
}

func readDataDescriptor(buf []byte, zip64 bool) (*dataDescriptor, error) {
	v := newBinaryView(buf)
	offset := 0
	// the signature is de-facto standard but optional per the format;
	// tolerate its absence by peeking and only consuming it if present.
	if sig, err := v.uint32(0); err == nil && sig == sigDataDesc {
		offset = 4
	}
	d := &dataDescriptor{}
	var err error
	if d.CRC32, err = v.uint32(offset); err != nil {
		return nil, err
	}
	if zip64 {
		if d.CompressedSize, err = v.uint64(offset + 4); err != nil {
			return nil, err
		}
		if d.UncompressedSize, err = v.uint64(offset + 12); err != nil {
			return nil, err
		}
		return d, nil
	}
	cs, err := v.uint32(offset + 4)
	if err != nil {
		return nil, err
	}
	us, err := v.uint32(offset + 8)
	if err != nil {
		return nil, err
	}
	d.CompressedSize = uint64(cs)
	d.UncompressedSize = uint64(us)
	return d, nil
}

// dataDescriptorLen returns the on-disk length of a data descriptor
// (including its designed signature), for the fixed case (zip64 or not).
func dataDescriptorLen(zip64 bool) int {
	if zip64 {
		return dataDesc64Len
	}
	return dataDesc32Len
}

// eocdr is the normalized (32-bit-field) End-of-Central-Directory record.
type eocdr struct {
	DiskNumber         uint16
	CDStartDisk        uint16
	EntriesOnThisDisk  uint16
	TotalEntries       uint16
	DirectorySize      uint32
	DirectoryOffset    uint32
	Comment            string
}

func readEOCDR(buf []byte, comment []byte) (*eocdr, error) {
	v := newBinaryView(buf)
	sig, err := v.uint32(0)
	if err != nil {
		return nil, err
	}
	if sig != sigEOCDR {
		return nil, &SignatureError{Record: "end of central directory record", Observed: sig}
	}
	e := &eocdr{}
	if e.DiskNumber, err = v.uint16(4); err != nil {
		return nil, err
	}
	if e.CDStartDisk, err = v.uint16(6); err != nil {
		return nil, err
	}
	if e.EntriesOnThisDisk, err = v.uint16(8); err != nil {
		return nil, err
	}
	if e.TotalEntries, err = v.uint16(10); err != nil {
		return nil, err
	}
	if e.DirectorySize, err = v.uint32(12); err != nil {
		return nil, err
	}
	if e.DirectoryOffset, err = v.uint32(16); err != nil {
		return nil, err
	}

	if !(e.DiskNumber == 0 || e.DiskNumber == 0xFFFF) || !(e.CDStartDisk == 0 || e.CDStartDisk == 0xFFFF) {
		return nil, &MultiDiskError{Reason: "EOCDR disk number is not 0 or 0xFFFF"}
	}
	if e.EntriesOnThisDisk != e.TotalEntries {
		return nil, &MultiDiskError{Reason: "EOCDR per-disk entry count does not match total"}
	}

	e.Comment = string(comment)
	return e, nil
}

func writeEOCDR(e *eocdr) []byte {
	buf := make([]byte, eocdrLen+len(e.Comment))
	b := writeBuf(buf)
	b.uint32(sigEOCDR)
	b.uint16(0) // disk number
	b.uint16(0) // disk with start of central directory
	b.uint16(e.EntriesOnThisDisk)
	b.uint16(e.TotalEntries)
	b.uint32(e.DirectorySize)
	b.uint32(e.DirectoryOffset)
	b.uint16(uint16(len(e.Comment)))
	copy(b, e.Comment)
	return buf
}

// zip64EOCDR is the ZIP64 End-of-Central-Directory record.
type zip64EOCDR struct {
	VersionMadeBy     uint16
	VersionNeeded     uint16
	DiskNumber        uint32
	CDStartDisk       uint32
	EntriesOnThisDisk uint64
	TotalEntries      uint64
	DirectorySize     uint64
	DirectoryOffset   uint64
}

func readZip64EOCDR(buf []byte) (*zip64EOCDR, error) {
	v := newBinaryView(buf)
	sig, err := v.uint32(0)
	if err != nil {
		return nil, err
	}
	if sig != sigZip64EOCDR {
		return nil, &SignatureError{Record: "zip64 end of central directory record", Observed: sig}
	}
	e := &zip64EOCDR{}
	// skip the 8-byte "size of this record" field at offset 4
	if e.VersionMadeBy, err = v.uint16(12); err != nil {
		return nil, err
	}
	if e.VersionNeeded, err = v.uint16(14); err != nil {
		return nil, err
	}
	if e.DiskNumber, err = v.uint32(16); err != nil {
		return nil, err
	}
	if e.CDStartDisk, err = v.uint32(20); err != nil {
		return nil, err
	}
	if e.EntriesOnThisDisk, err = v.uint64(24); err != nil {
		return nil, err
	}
	if e.TotalEntries, err = v.uint64(32); err != nil {
		return nil, err
	}
	if e.DirectorySize, err = v.uint64(40); err != nil {
		return nil, err
	}
	if e.DirectoryOffset, err = v.uint64(48); err != nil {
		return nil, err
	}
	return e, nil
}

func writeZip64EOCDR(e *zip64EOCDR) []byte {
	buf := make([]byte, zip64EOCDRLen)
	b := writeBuf(buf)
	b.uint32(sigZip64EOCDR)
	b.uint64(zip64EOCDRLen - 12) // size of this record, minus signature and this field
	b.uint16(e.VersionMadeBy)
	b.uint16(e.VersionNeeded)
	b.uint32(e.DiskNumber)
	b.uint32(e.CDStartDisk)
	b.uint64(e.EntriesOnThisDisk)
	b.uint64(e.TotalEntries)
	b.uint64(e.DirectorySize)
	b.uint64(e.DirectoryOffset)
	return buf
}

// zip64EOCDL is the ZIP64 End-of-Central-Directory Locator.
type zip64EOCDL struct {
	StartDisk      uint32
	EOCDROffset    uint64
	TotalDisks     uint32
}

func readZip64EOCDL(buf []byte) (*zip64EOCDL, error) {
	v := newBinaryView(buf)
	sig, err := v.uint32(0)
	if err != nil {
		return nil, err
	}
	if sig != sigZip64EOCDL {
		return nil, &SignatureError{Record: "zip64 end of central directory locator", Observed: sig}
	}
	l := &zip64EOCDL{}
	if l.StartDisk, err = v.uint32(4); err != nil {
		return nil, err
	}
	if l.EOCDROffset, err = v.uint64(8); err != nil {
		return nil, err
	}
	if l.TotalDisks, err = v.uint32(16); err != nil {
		return nil, err
	}
	if l.StartDisk != 0 || l.TotalDisks != 1 {
		return nil, &MultiDiskError{Reason: "zip64 EOCDL references more than one disk"}
	}
	return l, nil
}

func writeZip64EOCDL(offset uint64) []byte {
	buf := make([]byte, zip64EOCDLLen)
	b := writeBuf(buf)
	b.uint32(sigZip64EOCDL)
	b.uint32(0) // disk with start of zip64 EOCDR
	b.uint64(offset)
	b.uint32(1) // total number of disks
	return buf
}

// isSignatureAt reports whether buf[off:off+4] holds the given signature,
// without erroring on out-of-range offsets (used by the trailer locator's
// backward scan).
func isSignatureAt(buf []byte, off int, sig uint32) bool {
	if off < 0 || off+4 > len(buf) {
		return false
	}
	v := newBinaryView(buf)
	got, err := v.uint32(off)
	return err == nil && got == sig
}
