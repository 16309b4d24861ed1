package zipkit

import (
	"context"
	"io"
)

// RandomAccessSource is the random-access source external collaborator
// from spec.md §6: positioned reads only, returning fewer bytes than
// requested only at EOF. Plain io.ReaderAt already satisfies this contract.
type RandomAccessSource = io.ReaderAt

// ContextReaderAt is a richer random-access source that threads a context
// through each read, adapted from the teacher's ReaderAt interface in
// io.go. Reader prefers this interface when a supplied source implements
// it, and falls back to plain RandomAccessSource otherwise, so that a
// remote-backed source (e.g. an object-storage client) can honor
// cancellation on the underlying fetch.
type ContextReaderAt interface {
	ReadAtContext(ctx context.Context, p []byte, off int64) (n int, err error)
}

// asContextReaderAt adapts r to ContextReaderAt, using r's own
// ReadAtContext if it implements one, otherwise wrapping plain ReadAt and
// ignoring the context.
func asContextReaderAt(r RandomAccessSource) ContextReaderAt {
	if v, ok := r.(ContextReaderAt); ok {
		return v
	}
	return ignoreContext{r: r}
}

// ignoreContext converts io.ReaderAt to ContextReaderAt for sources that
// have no notion of cancellation.
type ignoreContext struct {
	r io.ReaderAt
}

func (a ignoreContext) ReadAtContext(_ context.Context, p []byte, off int64) (int, error) {
	return a.r.ReadAt(p, off)
}

// withContext converts ContextReaderAt back to plain io.ReaderAt bound to a
// single context. Such a value should only live for the duration of a
// single request/operation.
type withContext struct {
	ctx context.Context
	r   ContextReaderAt
}

func (w withContext) ReadAt(p []byte, off int64) (int, error) {
	return w.r.ReadAtContext(w.ctx, p, off)
}
