package zipkit

// Trailer is the normalized {eocdr, optional zip64} pair from spec.md §3.
// When Zip64 is present it overrides Count, Size, and Offset.
type Trailer struct {
	Comment string
	Count   uint64
	Size    uint64
	Offset  uint64
	Zip64   *zip64EOCDR
}

// trailerMaxCommentLen is the largest EOCDR comment, so the locator never
// needs to scan back further than this many bytes past the fixed 22-byte
// record.
const trailerMaxCommentLen = 0xFFFF

// notInBufferError signals that the locator found a ZIP64 EOCDL pointing
// outside the buffer it was given, so the caller must issue a targeted read
// at Offset for Length bytes and retry, per spec.md §4.7 step 2.
type notInBufferError struct {
	Offset int64
	Length int
}

func (e *notInBufferError) Error() string {
	return "zipkit: zip64 end of central directory record lies outside the provided buffer"
}

// locateTrailer implements spec.md §4.7: given buf (the tail of the
// archive) and bufStart (the absolute file offset of buf[0]), find the
// EOCDR by reverse scan, optionally resolve the ZIP64 trailer chain, and
// return a normalized Trailer.
//
// Grounded on the historical standard library archive/zip reader's
// findSignatureInBlock/readDirectoryEnd (gracefuluncle-go's reader.go) for
// the backward EOCDR scan shape, and nguyengg-xy3's zip-scan package for
// the idea of re-reading a larger window on a miss; the ZIP64 locator/
// record resolution chain has no equivalent in either grounding source and
// is implemented fresh from spec.md §4.7.
func locateTrailer(buf []byte, bufStart int64) (*Trailer, error) {
	n := len(buf)
	lo := n - eocdrLen - trailerMaxCommentLen
	if lo < 0 {
		lo = 0
	}
	hi := n - eocdrLen

	found := -1
	for i := hi; i >= lo; i-- {
		if !isSignatureAt(buf, i, sigEOCDR) {
			continue
		}
		// verify the comment length field is consistent with the
		// remaining buffer, to avoid matching incidental signature bytes
		// inside file data or a comment.
		v := newBinaryView(buf)
		commentLen, err := v.uint16(i + 20)
		if err != nil {
			continue
		}
		if i+eocdrLen+int(commentLen) == n {
			found = i
			break
		}
	}
	if found < 0 {
		return nil, formatErrorf("could not find end of central directory record")
	}

	e, err := readEOCDR(buf[found:found+eocdrLen], buf[found+eocdrLen:])
	if err != nil {
		return nil, err
	}

	t := &Trailer{
		Comment: e.Comment,
		Count:   uint64(e.TotalEntries),
		Size:    uint64(e.DirectorySize),
		Offset:  uint64(e.DirectoryOffset),
	}

	locStart := found - zip64EOCDLLen
	if !isSignatureAt(buf, locStart, sigZip64EOCDL) {
		// Per spec.md §4.7 step 3: if the buffer is big enough to contain
		// an EOCDL slot but doesn't have the signature there, this is a
		// plain (non-ZIP64) archive. If it's too small to tell, fail.
		if locStart < 0 && bufStart > 0 {
			return nil, formatErrorf("buffer must be at least as big as the EOCDR and possible EOCDL")
		}
		return t, nil
	}

	loc, err := readZip64EOCDL(buf[locStart : locStart+zip64EOCDLLen])
	if err != nil {
		return nil, err
	}

	recordOffset := int64(loc.EOCDROffset)
	relStart := recordOffset - bufStart
	if relStart < 0 || relStart+zip64EOCDRLen > int64(len(buf)) {
		return nil, &notInBufferError{Offset: recordOffset, Length: zip64EOCDRLen}
	}

	zr, err := readZip64EOCDR(buf[relStart : relStart+zip64EOCDRLen])
	if err != nil {
		return nil, err
	}

	t.Zip64 = zr
	t.Count = zr.TotalEntries
	t.Size = zr.DirectorySize
	t.Offset = zr.DirectoryOffset
	return t, nil
}
