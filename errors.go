package zipkit

import "fmt"

// SignatureError reports that a record's leading 4-byte signature did not
// match what the record kind expects.
type SignatureError struct {
	Record   string
	Observed uint32
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("zipkit: bad %s signature: 0x%08x", e.Record, e.Observed)
}

// FormatError reports a structural violation of the ZIP format that isn't
// a bad signature: an unknown compression method, a malformed extra field,
// a CRC or size mismatch, a missing EOCDR, and so on.
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string { return "zipkit: " + e.Message }

func formatErrorf(format string, args ...interface{}) *FormatError {
	return &FormatError{Message: fmt.Sprintf(format, args...)}
}

// MultiDiskError reports that a record's fields indicate the archive spans
// more than one disk, which this package refuses to read or write.
type MultiDiskError struct {
	Reason string
}

func (e *MultiDiskError) Error() string { return "zipkit: multi-disk archive: " + e.Reason }

// BoundsError reports an attempt to read past the end of a bounded buffer.
type BoundsError struct {
	Offset, Length, Available int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("zipkit: read out of bounds: offset %d length %d available %d", e.Offset, e.Length, e.Available)
}

// RangeError reports an out-of-range value supplied to a setter, such as an
// invalid DOS date component or an attempt to clear IsFile.
type RangeError struct {
	Message string
}

func (e *RangeError) Error() string { return "zipkit: " + e.Message }

// InvariantError reports that the caller asked for zip64=false or utf8=false
// but the entry's content forces one of them to be true.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return "zipkit: " + e.Message }

// StateError reports an operation attempted in the wrong state: add_entry
// after finalize, a second finalize, or a reader accessor used before Open.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("zipkit: %s: %s", e.Op, e.Reason)
}
