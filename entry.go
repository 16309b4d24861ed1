package zipkit

import (
	"strings"
	"time"
)

// Compression methods, per spec.md §6.
const (
	Stored  uint16 = 0
	Deflate uint16 = 8
)

const uint32max = 1<<32 - 1
const uint16max = 1<<16 - 1

// FileHeader describes a file to be appended to an archive by Writer. It is
// a mutable builder, adapted from the teacher's FileHeader in struct.go,
// extended with the explicit tri-state UTF8/ZIP64 request fields spec.md
// §4.9 step 2/4 calls for ("requesting false when required fails").
type FileHeader struct {
	// Name is the entry's path. A trailing "/" marks a directory.
	Name string

	// Comment is the entry's comment, up to 64KiB.
	Comment string

	// NonUTF8 forces the legacy code page instead of auto-detected UTF-8.
	NonUTF8 bool

	// RequestUTF8, if non-nil, pins the utf8 flag: true forces it on, false
	// demands it stay off (failing with InvariantError if Name or Comment
	// requires UTF-8).
	RequestUTF8 *bool

	// RequestZip64, if non-nil, pins ZIP64: true forces it on for this
	// entry, false demands it stay off (failing with InvariantError if any
	// size or the eventual local-header offset would exceed 2^32-1).
	RequestZip64 *bool

	// RequestedVersionNeeded, if non-zero, is a floor for versionNeeded; a
	// value lower than what the entry actually requires is an error.
	RequestedVersionNeeded uint16

	// Method is the compression method; the zero value is Stored. The
	// writer uses it as given (directories are always Stored) and never
	// switches to Deflate on its own.
	Method uint16

	// Modified is the entry's last-modified time.
	Modified time.Time

	// CRC32, CompressedSize64, UncompressedSize64, if all non-nil, let the
	// writer skip the trailing data descriptor and write true values
	// directly into the local header. If any is nil, all three are treated
	// as unknown and a data descriptor is emitted, per spec.md §4.9 step 2.
	CRC32              *uint32
	CompressedSize64   *uint64
	UncompressedSize64 *uint64

	// Attrs holds the platform-tagged file attributes. If nil, a
	// UnixAttributes regular file with permissions 0o644 is assumed.
	Attrs Attributes

	// Extra holds caller-supplied extra-field records (e.g. a third-party
	// timestamp extension). The writer appends its own ZIP64 record when
	// needed; callers should not add one themselves.
	Extra ExtraFieldCollection
}

// IsDirectory reports whether Name ends in "/" or Attrs reports a
// directory, per spec.md §3's invariant.
func (h *FileHeader) IsDirectory() bool {
	if strings.HasSuffix(h.Name, "/") {
		return true
	}
	return h.Attrs != nil && h.Attrs.IsDirectory()
}

func (h *FileHeader) knownSizes() bool {
	return h.CRC32 != nil && h.CompressedSize64 != nil && h.UncompressedSize64 != nil
}

// Entry is the immutable, reader-produced counterpart to FileHeader, per
// spec.md §3's lifecycle note ("Entries are immutable value types once
// emitted by the reader").
type Entry struct {
	Name              string
	Comment           string
	Modified          time.Time
	Method            uint16
	CRC32             uint32
	CompressedSize64  uint64
	UncompressedSize64 uint64
	CreatorVersion    uint16
	ReaderVersion     uint16
	Flags             GeneralFlags
	Attrs             Attributes
	LocalHeaderOffset uint64
	Extra             *ExtraFieldCollection

	open func() (ReadCloserAt, error)
}

// ReadCloserAt is the combination of io.ReadCloser's Close with a plain
// io.Reader; Entry's data stream only ever needs to be read forward once,
// so it does not need ReaderAt -- the name documents intent, not
// capability. See Entry.Open.
type ReadCloserAt interface {
	Read(p []byte) (int, error)
	Close() error
}

// IsDirectory reports whether the entry is a directory, per spec.md §3.
func (e *Entry) IsDirectory() bool {
	if strings.HasSuffix(e.Name, "/") {
		return true
	}
	return e.Attrs != nil && e.Attrs.IsDirectory()
}

// IsFile is the negation of IsDirectory.
func (e *Entry) IsFile() bool { return !e.IsDirectory() }

// Open returns the entry's lazily-materialized, decompressed, CRC/size
// -verified data stream. Each call re-opens the stream from the
// random-access source; multiple calls may be outstanding concurrently
// provided the source supports concurrent positioned reads (spec.md §4.8).
func (e *Entry) Open() (ReadCloserAt, error) {
	return e.open()
}

// isZip64For reports whether an entry needs ZIP64 treatment: any size or
// offset is 2^32-1 or more (0xFFFFFFFF itself is the masking sentinel, so
// it cannot be stored directly), or zip64 is explicitly forced, per spec.md §3 and
// the "never derive needs-zip64 from a single field" design note in §9.
func isZip64For(compressedSize, uncompressedSize, offset uint64, forced bool) bool {
	return forced ||
		compressedSize >= uint32max ||
		uncompressedSize >= uint32max ||
		offset >= uint32max
}
