package zipkit

import (
	"io"
	"sync"
	"time"
	"unicode/utf8"
)

// entryPipeHighWaterMark bounds how many uncompressed bytes may be queued
// ahead of the compressor for a single entry before Write blocks, per
// spec.md §5/§9's double-ended buffer: it decouples a producer that wants
// to push bytes faster than the Algorithm consumes them, without letting an
// unbounded backlog build up in memory.
const entryPipeHighWaterMark = 256 * 1024

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Algorithms supplies compression algorithms by method code. Stored
	// (0) always works even if absent; any other method without a
	// registered Algorithm fails.
	Algorithms AlgorithmRegistry

	// Legacy encodes Name/Comment when the UTF-8 flag is not set. Defaults
	// to Legacy (CP437) if nil.
	Legacy TextCodec
}

// writerEntry is the bookkeeping the Writer keeps for each entry added,
// accumulated into the in-memory directory list per spec.md §4.9 step 8.
type writerEntry struct {
	header  centralHeaderFixed
	name    []byte
	extra   []byte
	comment []byte
}

// Writer is a single-producer, append-only ZIP archive builder that emits
// bytes to a sink in strict order, per spec.md §4.9. Adapted from the
// teacher's writer.go/archive.go record-serialization logic, generalized
// from "Template of fully-known entries" to on-the-fly streaming with a
// pluggable compression Algorithm and a real data descriptor for unknown
// sizes.
type Writer struct {
	sink io.Writer
	opts WriterOptions

	mu        sync.Mutex
	written   uint64
	entries   []writerEntry
	finalized bool
	poisonErr error

	active *entryWriter
}

// NewWriter creates a Writer that emits archive bytes to sink, starting at
// byte 0 of the archive unless StartingOffset is called first.
func NewWriter(sink io.Writer, opts WriterOptions) *Writer {
	if opts.Legacy == nil {
		opts.Legacy = Legacy
	}
	return &Writer{sink: sink, opts: opts}
}

// StartingOffset tells the Writer that startingOffset bytes of non-entry
// prefix data already precede it in the final file, so local-header offsets
// recorded in the central directory are correct. Must be called before the
// first CreateHeader.
func (w *Writer) StartingOffset(startingOffset uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = startingOffset
}

func (w *Writer) poison(err error) error {
	w.poisonErr = err
	return err
}

func (w *Writer) checkWritable(op string) error {
	if w.poisonErr != nil {
		return &StateError{Op: op, Reason: "writer poisoned by a previous error: " + w.poisonErr.Error()}
	}
	if w.finalized {
		return &StateError{Op: op, Reason: "writer already finalized"}
	}
	if w.active != nil {
		return &StateError{Op: op, Reason: "previous entry's writer was not closed"}
	}
	return nil
}

// CreateHeader begins a new entry. The caller must write the entry's
// uncompressed content to the returned io.WriteCloser and Close it (which
// finalizes the data descriptor, if any) before calling CreateHeader or
// Finalize again. This is the idiomatic Go shape for a streaming archive
// writer (matching archive/zip.Writer.CreateHeader), generalizing the
// teacher's Template-based "content known up front" model to true streaming.
func (w *Writer) CreateHeader(h *FileHeader) (io.WriteCloser, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkWritable("CreateHeader"); err != nil {
		return nil, err
	}

	localOffset := w.written

	utf8Flag, err := resolveUTF8(h)
	if err != nil {
		return nil, w.poison(err)
	}
	forceZip64 := h.RequestZip64 != nil && *h.RequestZip64
	denyZip64 := h.RequestZip64 != nil && !*h.RequestZip64

	method := h.Method
	isDir := h.IsDirectory()
	if isDir {
		method = Stored
	}

	attrs := h.Attrs
	if attrs == nil {
		attrs = NewUnixAttributes()
	}

	name := []byte(h.Name)
	comment := []byte(h.Comment)
	if !utf8Flag {
		name, err = w.opts.Legacy.Encode(h.Name)
		if err != nil {
			return nil, w.poison(formatErrorf("name cannot be encoded in the legacy code page: %v", err))
		}
		comment, err = w.opts.Legacy.Encode(h.Comment)
		if err != nil {
			return nil, w.poison(formatErrorf("comment cannot be encoded in the legacy code page: %v", err))
		}
	}

	hasDescriptor := !isDir && !h.knownSizes()

	var knownCRC uint32
	var knownCompressed, knownUncompressed uint64
	if h.knownSizes() {
		knownCRC = *h.CRC32
		knownCompressed = *h.CompressedSize64
		knownUncompressed = *h.UncompressedSize64
	}

	zip64 := isZip64For(knownCompressed, knownUncompressed, localOffset, forceZip64)
	if denyZip64 && isZip64For(knownCompressed, knownUncompressed, localOffset, false) {
		return nil, w.poison(&InvariantError{Message: "zip64 required by size or offset but RequestZip64 was false"})
	}

	versionReq := versionNeeded(utf8Flag, zip64, h.RequestedVersionNeeded)
	flags := GeneralFlags(0).WithDataDescriptor(hasDescriptor).WithUTF8Strings(utf8Flag)

	extra := ExtraFieldCollection{Fields: append([]ExtraField(nil), h.Extra.Fields...)}

	localCRC, localCompressed, localUncompressed := knownCRC, uint32(knownCompressed), uint32(knownUncompressed)
	if zip64 {
		localCompressed = uint32max
		localUncompressed = uint32max
		uc, cs := knownUncompressed, knownCompressed
		extra.Fields = append(extra.Fields, &Zip64Field{UncompressedSize: &uc, CompressedSize: &cs})
	}
	if hasDescriptor {
		localCRC, localCompressed, localUncompressed = 0, 0, 0
	}

	lh := &localHeaderFixed{
		ReaderVersion:    versionReq,
		Flags:            flags,
		Method:           method,
		ModifiedDOS:      packDOSDateTime(h.Modified),
		CRC32:            localCRC,
		CompressedSize:   localCompressed,
		UncompressedSize: localUncompressed,
	}

	if err := w.writeRaw(writeLocalHeader(lh, name, extra.Encode())); err != nil {
		return nil, w.poison(err)
	}

	var expect compressExpected
	if h.knownSizes() {
		crc := knownCRC
		cs := knownCompressed
		us := knownUncompressed
		expect = compressExpected{CRC32: &crc, CompressedSize: &cs, UncompressedSize: &us}
	}

	cw, result, err := newCompressWriter(method, expect, w, w.opts.Algorithms)
	if err != nil {
		return nil, w.poison(err)
	}

	pipeBuf := NewBuffer(entryPipeHighWaterMark)
	drained := make(chan error, 1)
	go func() {
		_, err := io.Copy(cw, pipeBuf)
		drained <- err
	}()

	ew := &entryWriter{
		w:             w,
		cw:            cw,
		result:        result,
		pipeBuf:       pipeBuf,
		drained:       drained,
		localOffset:   localOffset,
		attrs:         attrs,
		name:          name,
		comment:       comment,
		flags:         flags,
		method:        method,
		modified:      h.Modified,
		versionReq:    versionReq,
		hasDescriptor: hasDescriptor,
		forcedZip64:   forceZip64,
		deniedZip64:   denyZip64,
		userExtra:     h.Extra,
	}
	w.active = ew
	return ew, nil
}

// writeRaw writes p to the sink and advances the byte counter. Must be
// called with w.mu held.
func (w *Writer) writeRaw(p []byte) error {
	n, err := w.sink.Write(p)
	w.written += uint64(n)
	return err
}

// Write lets an entry's compressWriter treat Writer itself as the
// underlying counting sink for compressed output.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.sink.Write(p)
	w.written += uint64(n)
	return n, err
}

// entryWriter is returned by CreateHeader; writes flow through the
// compression pipeline and Close finalizes the data descriptor and central
// directory bookkeeping.
type entryWriter struct {
	w       *Writer
	cw      *compressWriter
	result  *compressResult
	pipeBuf *Buffer
	drained chan error

	localOffset   uint64
	attrs         Attributes
	name          []byte
	comment       []byte
	flags         GeneralFlags
	method        uint16
	modified      time.Time
	versionReq    uint16
	hasDescriptor bool
	forcedZip64   bool
	deniedZip64   bool
	userExtra     ExtraFieldCollection

	closed bool
}

func (ew *entryWriter) Write(p []byte) (int, error) {
	if ew.closed {
		return 0, &StateError{Op: "Write", Reason: "entry writer already closed"}
	}
	n, err := ew.pipeBuf.Write(p)
	if err != nil {
		ew.w.mu.Lock()
		ew.w.poison(err)
		ew.w.mu.Unlock()
	}
	return n, err
}

// Close finalizes the entry: drains the pipe buffer, closes the
// compressor, writes the data descriptor if needed, and records a central
// directory header, per spec.md §4.9 steps 6-8.
func (ew *entryWriter) Close() error {
	if ew.closed {
		return nil
	}
	ew.closed = true

	ew.pipeBuf.End()
	if err := <-ew.drained; err != nil {
		ew.w.mu.Lock()
		defer ew.w.mu.Unlock()
		return ew.w.poison(err)
	}

	ew.w.mu.Lock()
	defer ew.w.mu.Unlock()
	ew.w.active = nil

	if err := ew.cw.Close(); err != nil {
		return ew.w.poison(err)
	}

	crc := ew.result.CRC32
	compressed := ew.result.CompressedSize
	uncompressed := ew.result.UncompressedSize

	finalZip64 := isZip64For(compressed, uncompressed, ew.localOffset, ew.forcedZip64)
	if ew.deniedZip64 && finalZip64 {
		return ew.w.poison(&InvariantError{Message: "zip64 required by final size but RequestZip64 was false"})
	}

	if ew.hasDescriptor {
		dd := &dataDescriptor{CRC32: crc, CompressedSize: compressed, UncompressedSize: uncompressed}
		if err := ew.w.writeRaw(writeDataDescriptor(dd, finalZip64)); err != nil {
			return ew.w.poison(err)
		}
	}

	extra := ExtraFieldCollection{Fields: append([]ExtraField(nil), ew.userExtra.Fields...)}
	extCompressed, extUncompressed, extOffset := compressed, uncompressed, ew.localOffset
	offsetMasked := ew.localOffset >= uint32max
	if finalZip64 {
		z := &Zip64Field{UncompressedSize: &extUncompressed, CompressedSize: &extCompressed}
		if offsetMasked {
			z.LocalHeaderOffset = &extOffset
		}
		extra.Fields = append(extra.Fields, z)
	}

	ch := &centralHeaderFixed{
		CreatorVersion: uint16(ew.attrs.Platform())<<8 | (versionBase & 0xff),
		ReaderVersion:  ew.versionReq,
		Flags:          ew.flags,
		Method:         ew.method,
		ModifiedDOS:    packDOSDateTime(ew.modified),
		CRC32:          crc,
		ExternalAttrs:  ew.attrs.Raw(),
	}
	if finalZip64 {
		ch.CompressedSize = uint32max
		ch.UncompressedSize = uint32max
	} else {
		ch.CompressedSize = uint32(compressed)
		ch.UncompressedSize = uint32(uncompressed)
	}
	if offsetMasked {
		ch.LocalHeaderOffset = uint32max
	} else {
		ch.LocalHeaderOffset = uint32(ew.localOffset)
	}

	ew.w.entries = append(ew.w.entries, writerEntry{
		header:  *ch,
		name:    ew.name,
		extra:   extra.Encode(),
		comment: ew.comment,
	})
	return nil
}

// Finalize writes the central directory, ZIP64 trailer records if needed,
// and the EOCDR, then transitions the Writer to Finalized. Finalize does
// not close the sink; the caller owns that.
func (w *Writer) Finalize(comment string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkWritable("Finalize"); err != nil {
		return err
	}
	if len(comment) > uint16max {
		return w.poison(formatErrorf("archive comment too long"))
	}

	w.finalized = true

	directoryOffset := w.written
	var maxVersion uint16 = versionBase
	for _, e := range w.entries {
		if e.header.ReaderVersion > maxVersion {
			maxVersion = e.header.ReaderVersion
		}
		buf := writeCentralHeader(&e.header, e.name, e.extra, e.comment)
		if err := w.writeRaw(buf); err != nil {
			return w.poison(err)
		}
	}

	directorySize := w.written - directoryOffset
	entryCount := len(w.entries)

	needZip64 := entryCount >= uint16max || directorySize >= uint32max || directoryOffset >= uint32max
	for _, e := range w.entries {
		if e.header.CompressedSize == uint32max || e.header.UncompressedSize == uint32max || e.header.LocalHeaderOffset == uint32max {
			needZip64 = true
			break
		}
	}

	eocdrEntries := uint16(entryCount)
	eocdrSize := uint32(directorySize)
	eocdrOffset := uint32(directoryOffset)

	if needZip64 {
		zr := &zip64EOCDR{
			VersionMadeBy:     maxVersion,
			VersionNeeded:     versionNeeded(false, true, 0),
			EntriesOnThisDisk: uint64(entryCount),
			TotalEntries:      uint64(entryCount),
			DirectorySize:     directorySize,
			DirectoryOffset:   directoryOffset,
		}
		if err := w.writeRaw(writeZip64EOCDR(zr)); err != nil {
			return w.poison(err)
		}
		locOffset := directoryOffset + directorySize
		if err := w.writeRaw(writeZip64EOCDL(locOffset)); err != nil {
			return w.poison(err)
		}
		eocdrEntries = uint16max
		eocdrSize = uint32max
		eocdrOffset = uint32max
	}

	e := &eocdr{EntriesOnThisDisk: eocdrEntries, TotalEntries: eocdrEntries, DirectorySize: eocdrSize, DirectoryOffset: eocdrOffset, Comment: comment}
	if err := w.writeRaw(writeEOCDR(e)); err != nil {
		return w.poison(err)
	}
	return nil
}

// resolveUTF8 decides the utf8 flag for an entry per spec.md §4.9 step 2,
// adapted from the teacher's detectUTF8/prepareEntry in writer.go,
// generalized to honor an explicit caller request and fail on contradiction.
func resolveUTF8(h *FileHeader) (bool, error) {
	nameValid, nameRequire := detectUTF8(h.Name)
	cmtValid, cmtRequire := detectUTF8(h.Comment)
	needsUTF8 := (nameRequire || cmtRequire) && nameValid && cmtValid
	if !nameValid || !cmtValid {
		// not valid UTF-8 at all: must go through the legacy codec, and
		// cannot honor a request to force the flag on.
		needsUTF8 = false
	}

	if h.NonUTF8 {
		if h.RequestUTF8 != nil && *h.RequestUTF8 {
			return false, &InvariantError{Message: "NonUTF8 and RequestUTF8=true are contradictory"}
		}
		return false, nil
	}
	if h.RequestUTF8 != nil {
		if *h.RequestUTF8 && (!nameValid || !cmtValid) {
			return false, &InvariantError{Message: "RequestUTF8 was true but path/comment is not valid UTF-8"}
		}
		if !*h.RequestUTF8 && needsUTF8 {
			return false, &InvariantError{Message: "utf8 required by path/comment content but RequestUTF8 was false"}
		}
		return *h.RequestUTF8, nil
	}
	return needsUTF8, nil
}

// detectUTF8 reports whether s is valid UTF-8, and whether it must be
// considered UTF-8 (incompatible with CP-437/ASCII), carried verbatim from
// the teacher's writer.go.
func detectUTF8(s string) (valid, require bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r < 0x20 || r > 0x7d || r == 0x5c {
			if !utf8.ValidRune(r) || (r == utf8.RuneError && size == 1) {
				return false, false
			}
			require = true
		}
	}
	return true, require
}
