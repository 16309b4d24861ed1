package zipkit

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Algorithms supplies decompression algorithms by method code. Stored
	// (0) always works even if absent.
	Algorithms AlgorithmRegistry

	// Legacy decodes Name/Comment for entries without the UTF-8 flag.
	// Defaults to Legacy (CP437) if nil.
	Legacy TextCodec

	// DirectoryBufferSize is the size of the rolling window used to scan
	// for the trailer and to read the central directory. Defaults to 1 MiB
	// per spec.md §4.8. The trailer window is never smaller than the
	// largest possible EOCDR plus the ZIP64 locator, and the directory
	// window never smaller than one whole central directory record.
	DirectoryBufferSize int64
}

const defaultDirectoryBufferSize = 1 << 20

// Reader provides random access to a ZIP archive's entries, resolving the
// central directory when Open is called. Grounded on the historical
// standard library archive/zip Reader (gracefuluncle-go's reader.go) for
// the overall trailer-then-directory shape, generalized to a pluggable
// random-access source, a rolling buffer instead of reading the whole tail
// into memory, and ZIP64 throughout.
type Reader struct {
	src  RandomAccessSource
	size int64
	opts ReaderOptions

	group singleflight.Group

	mu       sync.Mutex
	opened   bool
	trailer  *Trailer
	entries  []*Entry
	comment  string
}

// NewReader creates a Reader over src, which holds size bytes. The
// directory is not read until Open is called; the accessors fail with
// StateError before that.
func NewReader(src RandomAccessSource, size int64, opts ReaderOptions) *Reader {
	if opts.Legacy == nil {
		opts.Legacy = Legacy
	}
	if opts.DirectoryBufferSize <= 0 {
		opts.DirectoryBufferSize = defaultDirectoryBufferSize
	}
	return &Reader{src: src, size: size, opts: opts}
}

// Open locates the trailer and parses the central directory. It is
// idempotent: concurrent and repeated calls share a single underlying scan,
// via golang.org/x/sync/singleflight, per spec.md §4.8's "Open is
// idempotent under concurrent callers" invariant.
func (r *Reader) Open(ctx context.Context) error {
	_, err, _ := r.group.Do("open", func() (interface{}, error) {
		r.mu.Lock()
		if r.opened {
			r.mu.Unlock()
			return nil, nil
		}
		r.mu.Unlock()

		trailer, entries, comment, err := r.load(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.trailer = trailer
		r.entries = entries
		r.comment = comment
		r.opened = true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// load performs the actual trailer-scan-then-directory-parse work, without
// touching Reader's shared state (so singleflight callers don't race on
// partially-populated fields).
func (r *Reader) load(ctx context.Context) (*Trailer, []*Entry, string, error) {
	bufSize := r.opts.DirectoryBufferSize
	// the trailer window must hold the largest EOCDR (with its comment)
	// and the ZIP64 locator in front of it
	if minTrailerWindow := int64(eocdrLen + trailerMaxCommentLen + zip64EOCDLLen); bufSize < minTrailerWindow {
		bufSize = minTrailerWindow
	}
	if bufSize > r.size {
		bufSize = r.size
	}
	start := r.size - bufSize
	if start < 0 {
		start = 0
	}

	trailer, err := r.scanTrailer(ctx, start, r.size-start)
	if err != nil {
		return nil, nil, "", err
	}

	entries, err := r.readDirectory(ctx, trailer)
	if err != nil {
		return nil, nil, "", err
	}
	return trailer, entries, trailer.Comment, nil
}

// scanTrailer reads [start, start+length) and hands it to locateTrailer. If
// the zip64 end-of-central-directory record turns out to lie outside that
// window, it widens the window to cover it and retries, per spec.md §4.7's
// "not-in-buffer" re-read signal.
func (r *Reader) scanTrailer(ctx context.Context, start, length int64) (*Trailer, error) {
	buf := make([]byte, length)
	if _, err := readFullAt(ctx, r.src, buf, start); err != nil {
		return nil, err
	}

	trailer, err := locateTrailer(buf, start)
	if nib, ok := err.(*notInBufferError); ok {
		newStart := start
		if nib.Offset < newStart {
			newStart = nib.Offset
		}
		newEnd := start + length
		if need := nib.Offset + int64(nib.Length); need > newEnd {
			newEnd = need
		}
		return r.scanTrailer(ctx, newStart, newEnd-newStart)
	}
	if err != nil {
		return nil, err
	}
	return trailer, nil
}

// readDirectory walks the central directory described by trailer, parsing
// every entry into an *Entry with a lazily-bound Open func, using a rolling
// buffer of DirectoryBufferSize bytes per spec.md §4.8, enlarged when
// needed to hold one whole central directory record.
func (r *Reader) readDirectory(ctx context.Context, trailer *Trailer) ([]*Entry, error) {
	count := trailer.Count
	entries := make([]*Entry, 0, count)

	offset := int64(trailer.Offset)
	end := offset + int64(trailer.Size)

	const minRead = centralHeaderLen
	bufSize := r.opts.DirectoryBufferSize
	if bufSize < minRead {
		bufSize = minRead
	}

	var buf []byte
	var bufStart int64 = -1

	ensure := func(n int) ([]byte, error) {
		if bufStart >= 0 && offset >= bufStart && offset+int64(n) <= bufStart+int64(len(buf)) {
			return buf[offset-bufStart:], nil
		}
		size := bufSize
		if size > end-offset {
			size = end - offset
		}
		if size < int64(n) {
			size = int64(n)
		}
		buf = make([]byte, size)
		if _, err := readFullAt(ctx, r.src, buf, offset); err != nil {
			return nil, err
		}
		bufStart = offset
		return buf, nil
	}

	for i := uint64(0); i < count; i++ {
		if offset >= end {
			return nil, formatErrorf("central directory ended before all entries were read")
		}
		fixedBuf, err := ensure(centralHeaderLen)
		if err != nil {
			return nil, err
		}
		fixed, err := readCentralHeaderFixed(fixedBuf)
		if err != nil {
			return nil, err
		}

		variableLen := fixed.NameLen + fixed.ExtraLen + fixed.CommentLen
		varBuf, err := ensure(centralHeaderLen + variableLen)
		if err != nil {
			return nil, err
		}
		varBuf = varBuf[centralHeaderLen : centralHeaderLen+variableLen]

		nameBytes := varBuf[:fixed.NameLen]
		extraBytes := varBuf[fixed.NameLen : fixed.NameLen+fixed.ExtraLen]
		commentBytes := varBuf[fixed.NameLen+fixed.ExtraLen:]

		entry, err := r.buildEntry(fixed, nameBytes, extraBytes, commentBytes)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)

		offset += int64(centralHeaderLen + variableLen)
	}

	return entries, nil
}

// buildEntry assembles an *Entry from a parsed central directory record,
// resolving ZIP64 overrides and attributes per spec.md §4.3/§4.4.
func (r *Reader) buildEntry(fixed *centralHeaderFixed, nameBytes, extraBytes, commentBytes []byte) (*Entry, error) {
	codec := r.opts.Legacy
	if fixed.Flags.HasUTF8Strings() {
		codec = UTF8Codec
	}
	name, err := codec.Decode(nameBytes)
	if err != nil {
		return nil, formatErrorf("entry name cannot be decoded: %v", err)
	}
	comment, err := codec.Decode(commentBytes)
	if err != nil {
		return nil, formatErrorf("entry comment cannot be decoded: %v", err)
	}

	opts := decodeExtraFieldOptions{
		uncompressedSizeMasked: fixed.UncompressedSize == uint32max,
		compressedSizeMasked:   fixed.CompressedSize == uint32max,
		offsetMasked:           fixed.LocalHeaderOffset == uint32max,
		legacyName:             nameBytes,
		legacyComment:          commentBytes,
	}
	extra, err := decodeExtraFieldCollection(extraBytes, opts)
	if err != nil {
		return nil, err
	}

	compressedSize := uint64(fixed.CompressedSize)
	uncompressedSize := uint64(fixed.UncompressedSize)
	localOffset := uint64(fixed.LocalHeaderOffset)
	if z := extra.Zip64(); z != nil {
		if z.UncompressedSize != nil {
			uncompressedSize = *z.UncompressedSize
		}
		if z.CompressedSize != nil {
			compressedSize = *z.CompressedSize
		}
		if z.LocalHeaderOffset != nil {
			localOffset = *z.LocalHeaderOffset
		}
	}

	platform := Platform(fixed.CreatorVersion >> 8)
	attrs, err := AttributesFromPlatform(platform, fixed.ExternalAttrs)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Name:               name,
		Comment:            comment,
		Modified:           unpackDOSDateTime(fixed.ModifiedDOS, nil),
		Method:             fixed.Method,
		CRC32:              fixed.CRC32,
		CompressedSize64:   compressedSize,
		UncompressedSize64: uncompressedSize,
		CreatorVersion:     fixed.CreatorVersion,
		ReaderVersion:      fixed.ReaderVersion,
		Flags:              fixed.Flags,
		Attrs:              attrs,
		LocalHeaderOffset:  localOffset,
		Extra:              extra,
	}
	e.open = func() (ReadCloserAt, error) { return r.openEntry(e) }
	return e, nil
}

// openEntry resolves an entry's local header (to find where the compressed
// data actually starts -- the central directory's name/extra lengths are
// not authoritative) and returns its decompressed, checksum-verified data
// stream, per spec.md §4.8's "two-step local header read" design.
func (r *Reader) openEntry(e *Entry) (ReadCloserAt, error) {
	ctx := context.Background()
	head := make([]byte, localHeaderLen)
	if _, err := readFullAt(ctx, r.src, head, int64(e.LocalHeaderOffset)); err != nil {
		return nil, err
	}
	lh, err := readLocalHeaderFixed(head)
	if err != nil {
		return nil, err
	}

	dataOffset := int64(e.LocalHeaderOffset) + int64(localHeaderLen+lh.NameLen+lh.ExtraLen)
	dataSection := io.NewSectionReader(asReaderAt(r.src), dataOffset, int64(e.CompressedSize64))

	descr := decompressDescriptor{CRC32: e.CRC32, UncompressedSize: e.UncompressedSize64}
	return newDecompressReader(e.Method, descr, dataSection, r.opts.Algorithms)
}

// Comment returns the archive-level comment. Must be called after Open.
func (r *Reader) Comment() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return "", &StateError{Op: "Comment", Reason: "reader not opened"}
	}
	return r.comment, nil
}

// EntryCount returns the number of entries in the archive. Must be called
// after Open.
func (r *Reader) EntryCount() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return 0, &StateError{Op: "EntryCount", Reason: "reader not opened"}
	}
	return len(r.entries), nil
}

// Entries returns every parsed entry, in central-directory order. Must be
// called after Open.
func (r *Reader) Entries() ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return nil, &StateError{Op: "Entries", Reason: "reader not opened"}
	}
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

// asReaderAt adapts a RandomAccessSource (already io.ReaderAt) for
// io.SectionReader, which wants plain io.ReaderAt; kept as a named seam so
// a future ContextReaderAt source can be threaded through without changing
// openEntry's shape.
func asReaderAt(src RandomAccessSource) io.ReaderAt { return src }

// readFullAt reads exactly len(buf) bytes from src at off, preferring
// ContextReaderAt when src implements it, adapted from the teacher's
// ReaderAt-with-context plumbing in the deleted io.go.
func readFullAt(ctx context.Context, src RandomAccessSource, buf []byte, off int64) (int, error) {
	car := asContextReaderAt(src)
	n, err := car.ReadAtContext(ctx, buf, off)
	if err != nil && err != io.EOF {
		return n, err
	}
	if n < len(buf) {
		return n, formatErrorf("unexpected end of archive while reading %d bytes at offset %d", len(buf), off)
	}
	return n, nil
}
