package zipkit

import (
	"hash/crc32"
	"io"
)

// Algorithm is the compression-algorithm external collaborator from
// spec.md §6: given a byte sequence, produce the opposite-direction byte
// sequence. Concrete DEFLATE (or any other) implementations are supplied by
// the caller through an AlgorithmRegistry; this package never hard-codes
// one (spec.md §1 Non-goals).
type Algorithm interface {
	// NewDecompressor wraps r, yielding the algorithm's uncompressed output.
	NewDecompressor(r io.Reader) (io.ReadCloser, error)

	// NewCompressor wraps w, returning a writer whose written bytes are
	// compressed and forwarded to w. Close must flush and finalize the
	// stream but must not close w.
	NewCompressor(w io.Writer) (io.WriteCloser, error)
}

// AlgorithmRegistry maps a compression method code (spec.md §6: 0 Stored,
// 8 Deflate, or any caller-registered code) to the Algorithm that handles
// it.
type AlgorithmRegistry map[uint16]Algorithm

// storeAlgorithm is the identity Algorithm used for method 0 when the
// caller hasn't registered one explicitly, per spec.md §4.6 step 1
// ("Stored (0) falls back to identity when no explicit algorithm is
// supplied").
type storeAlgorithm struct{}

func (storeAlgorithm) NewDecompressor(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (storeAlgorithm) NewCompressor(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (reg AlgorithmRegistry) resolve(method uint16) (Algorithm, error) {
	if a, ok := reg[method]; ok {
		return a, nil
	}
	if method == Stored {
		return storeAlgorithm{}, nil
	}
	return nil, formatErrorf("unknown compression method %d", method)
}

// decompressDescriptor is the subset of an entry's recorded metadata that
// decompressReader verifies the stream against.
type decompressDescriptor struct {
	CRC32            uint32
	UncompressedSize uint64
}

// decompressReader wraps an Algorithm's decompressed output, accumulating a
// running CRC32 and byte count as the caller pulls chunks, and checking
// both against descriptor only once the stream reports io.EOF. This is
// adapted from the historical standard library archive/zip reader's
// checksumReader (gracefuluncle-go__src-pkg-archive-zip-reader.go.go),
// generalized to take its compression algorithm from a registry instead of
// hard-coding compress/flate, and to verify UncompressedSize in addition to
// CRC32 per spec.md §4.6.
type decompressReader struct {
	rc     io.ReadCloser
	hash   uint32
	nread  uint64
	descr  decompressDescriptor
	done   bool
}

func newDecompressReader(method uint16, descr decompressDescriptor, compressed io.Reader, reg AlgorithmRegistry) (io.ReadCloser, error) {
	alg, err := reg.resolve(method)
	if err != nil {
		return nil, err
	}
	rc, err := alg.NewDecompressor(compressed)
	if err != nil {
		return nil, err
	}
	return &decompressReader{rc: rc, descr: descr}, nil
}

func (r *decompressReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.hash = crc32.Update(r.hash, crc32.IEEETable, p[:n])
		r.nread += uint64(n)
	}
	if err == io.EOF && !r.done {
		r.done = true
		if r.nread != r.descr.UncompressedSize {
			return n, formatErrorf("file size mismatch: got %d bytes, want %d", r.nread, r.descr.UncompressedSize)
		}
		if r.hash != r.descr.CRC32 {
			return n, formatErrorf("crc32 mismatch: got %#x, want %#x", r.hash, r.descr.CRC32)
		}
	}
	return n, err
}

func (r *decompressReader) Close() error { return r.rc.Close() }

// compressResult accumulates the true CRC32, uncompressed size, and
// compressed size of a stream as it's pushed through compressWriter,
// mirroring the teacher's countWriter in writer.go (which counts raw bytes
// written) but teeing on the uncompressed side per spec.md §4.6 step 2.
type compressResult struct {
	CRC32            uint32
	UncompressedSize uint64
	CompressedSize   uint64
}

// compressExpected holds the caller-optional expected values checked
// against the final compressResult per spec.md §4.6 step 3.
type compressExpected struct {
	CRC32            *uint32
	UncompressedSize *uint64
	CompressedSize   *uint64
}

// compressWriter tees incoming (uncompressed) bytes into a running CRC32
// and byte count, while forwarding them through alg's compressor to an
// underlying counting writer that tracks the compressed size.
type compressWriter struct {
	comp    io.WriteCloser
	counter *countingWriter
	out     *compressResult
	expect  compressExpected
	closed  bool
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

func newCompressWriter(method uint16, expect compressExpected, sink io.Writer, reg AlgorithmRegistry) (*compressWriter, *compressResult, error) {
	alg, err := reg.resolve(method)
	if err != nil {
		return nil, nil, err
	}
	counter := &countingWriter{w: sink}
	comp, err := alg.NewCompressor(counter)
	if err != nil {
		return nil, nil, err
	}
	result := &compressResult{}
	return &compressWriter{comp: comp, counter: counter, out: result, expect: expect}, result, nil
}

func (w *compressWriter) Write(p []byte) (int, error) {
	w.out.CRC32 = crc32.Update(w.out.CRC32, crc32.IEEETable, p)
	w.out.UncompressedSize += uint64(len(p))
	n, err := w.comp.Write(p)
	w.out.CompressedSize = w.counter.n
	return n, err
}

// Close finalizes the compressor and validates expect against the final
// accumulated result, per spec.md §4.6 step 3.
func (w *compressWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.comp.Close(); err != nil {
		return err
	}
	w.out.CompressedSize = w.counter.n

	if w.expect.CRC32 != nil && *w.expect.CRC32 != w.out.CRC32 {
		return formatErrorf("crc32 was supplied but is invalid")
	}
	if w.expect.UncompressedSize != nil && *w.expect.UncompressedSize != w.out.UncompressedSize {
		return formatErrorf("uncompressedSize was supplied but is invalid")
	}
	if w.expect.CompressedSize != nil && *w.expect.CompressedSize != w.out.CompressedSize {
		return formatErrorf("compressedSize was supplied but is invalid")
	}
	return nil
}
