package zipkit

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrBufferAborted is returned from Buffer's Read/Write once Abort has been
// called.
var ErrBufferAborted = errors.New("zipkit: buffer aborted")

// Buffer is the "double-ended buffer" from spec.md §5/§9: a bounded,
// backpressured FIFO byte queue. Producers call Write (or WriteContext) and
// block once the tracked byte count exceeds the high-water mark; a single
// consumer drains chunks in FIFO order via Read, which unblocks any waiting
// producer. End signals no more input; Abort surfaces an error at both
// ends.
//
// Implemented with golang.org/x/sync/semaphore.Weighted bounding bytes in
// flight, the same wrapping shape used for backpressure-style admission
// control in buildbarn-bb-storage's pkg/util/semaphore.go (AcquireSemaphore
// around a *semaphore.Weighted).
type Buffer struct {
	sem       *semaphore.Weighted
	highWater int64

	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	ended  bool
	err    error
}

// NewBuffer creates a Buffer whose producers block once highWaterMark bytes
// are enqueued and not yet drained by the consumer.
func NewBuffer(highWaterMark int64) *Buffer {
	b := &Buffer{sem: semaphore.NewWeighted(highWaterMark), highWater: highWaterMark}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write is WriteContext with context.Background().
func (b *Buffer) Write(p []byte) (int, error) {
	return b.WriteContext(context.Background(), p)
}

// WriteContext enqueues p, blocking in high-water-mark-sized slices until
// the semaphore admits each one (or ctx is done), so a single Write larger
// than the mark still completes instead of deadlocking against the
// semaphore's total weight.
func (b *Buffer) WriteContext(ctx context.Context, p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		chunk := p
		if int64(len(chunk)) > b.highWater {
			chunk = chunk[:b.highWater]
		}
		if err := b.sem.Acquire(ctx, int64(len(chunk))); err != nil {
			return written, err
		}

		cp := make([]byte, len(chunk))
		copy(cp, chunk)

		b.mu.Lock()
		if b.err != nil {
			err := b.err
			b.mu.Unlock()
			b.sem.Release(int64(len(chunk)))
			return written, err
		}
		if b.ended {
			b.mu.Unlock()
			b.sem.Release(int64(len(chunk)))
			return written, errors.New("zipkit: write after End")
		}
		b.chunks = append(b.chunks, cp)
		b.mu.Unlock()
		b.cond.Broadcast()

		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

// End signals that no more input will be written; pending and future
// readers see io.EOF once the queue drains.
func (b *Buffer) End() {
	b.mu.Lock()
	b.ended = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Abort surfaces err from both Read and any blocked or future Write.
func (b *Buffer) Abort(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	// queued chunks can no longer be read; returning their weight lets a
	// Write blocked on the semaphore proceed and observe b.err.
	var queued int64
	for _, c := range b.chunks {
		queued += int64(len(c))
	}
	b.chunks = nil
	b.mu.Unlock()
	if queued > 0 {
		b.sem.Release(queued)
	}
	b.cond.Broadcast()
}

// Read implements io.Reader, draining chunks in FIFO order and resuming any
// producer blocked on the semaphore.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	for len(b.chunks) == 0 && !b.ended && b.err == nil {
		b.cond.Wait()
	}
	if b.err != nil {
		err := b.err
		b.mu.Unlock()
		return 0, err
	}
	if len(b.chunks) == 0 {
		b.mu.Unlock()
		return 0, io.EOF
	}
	chunk := b.chunks[0]
	n := copy(p, chunk)
	if n == len(chunk) {
		b.chunks = b.chunks[1:]
	} else {
		b.chunks[0] = chunk[n:]
	}
	b.mu.Unlock()
	b.sem.Release(int64(n))
	return n, nil
}
