package zipkit

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

// TestRoundTripInteropWithStandardLibrary confirms archives built by Writer
// can be opened by the standard library's archive/zip, and vice versa.
func TestRoundTripInteropWithStandardLibrary(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink, WriterOptions{})

	files := map[string]string{
		"a.txt":     "alpha",
		"dir/b.txt": "bravo bravo bravo",
		"c.txt":     "charlie delta echo foxtrot",
	}
	for _, name := range []string{"a.txt", "dir/b.txt", "c.txt"} {
		content := []byte(files[name])
		crc := crc32.ChecksumIEEE(content)
		size := uint64(len(content))
		ew, err := w.CreateHeader(&FileHeader{
			Name:               name,
			Modified:           time.Date(2023, time.January, 2, 3, 4, 6, 0, time.UTC),
			Method:             Stored,
			CRC32:              &crc,
			CompressedSize64:   &size,
			UncompressedSize64: &size,
		})
		if err != nil {
			t.Fatalf("CreateHeader(%s): %v", name, err)
		}
		if _, err := ew.Write(content); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
		if err := ew.Close(); err != nil {
			t.Fatalf("Close(%s): %v", name, err)
		}
	}
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	archive := sink.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	require.Len(t, zr.File, len(files))
	for _, zf := range zr.File {
		want, ok := files[zf.Name]
		require.True(t, ok, "unexpected entry %q", zf.Name)
		rc, err := zf.Open()
		require.NoError(t, err)
		var got bytes.Buffer
		_, err = got.ReadFrom(rc)
		require.NoError(t, err)
		rc.Close()
		require.Equal(t, want, got.String())
	}
}

// TestRoundTripCanReadStandardLibraryArchive confirms Reader can parse an
// archive produced by the standard library.
func TestRoundTripCanReadStandardLibraryArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("notes.txt")
	if err != nil {
		t.Fatalf("zip.Writer.Create: %v", err)
	}
	if _, err := f.Write([]byte("written by the standard library")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip.Writer.Close: %v", err)
	}

	archive := buf.Bytes()
	r := NewReader(bytes.NewReader(archive), int64(len(archive)), ReaderOptions{
		Algorithms: AlgorithmRegistry{Deflate: flateAlgorithm{}},
	})
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "notes.txt" {
		t.Fatalf("got %+v", entries)
	}
	rc, err := entries[0].Open()
	if err != nil {
		t.Fatalf("Open entry: %v", err)
	}
	defer rc.Close()
	var got bytes.Buffer
	if _, err := got.ReadFrom(rc); err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if got.String() != "written by the standard library" {
		t.Errorf("got %q", got.String())
	}
}

// TestRoundTripZip64EntryCountBoundary forces the 65,535/65,536-entry ZIP64
// boundary from spec.md's worked examples by writing one entry past the
// 16-bit count ceiling and confirming the trailer and directory resolve via
// the ZIP64 records rather than silently truncating.
func TestRoundTripZip64EntryCountBoundary(t *testing.T) {
	const count = 65536

	var sink bytes.Buffer
	w := NewWriter(&sink, WriterOptions{})
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("f/%d", i)
		ew, err := w.CreateHeader(&FileHeader{
			Name:               name,
			Modified:           time.Unix(0, 0),
			Method:             Stored,
			CRC32:              new(uint32),
			CompressedSize64:   new(uint64),
			UncompressedSize64: new(uint64),
		})
		if err != nil {
			t.Fatalf("CreateHeader(%d): %v", i, err)
		}
		if err := ew.Close(); err != nil {
			t.Fatalf("Close(%d): %v", i, err)
		}
	}
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	archive := sink.Bytes()
	r := NewReader(bytes.NewReader(archive), int64(len(archive)), ReaderOptions{})
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	n, err := r.EntryCount()
	if err != nil {
		t.Fatalf("EntryCount: %v", err)
	}
	if n != count {
		t.Fatalf("EntryCount: got %d, want %d", n, count)
	}
}

// flateAlgorithm adapts klauspost/compress's flate to the Algorithm
// interface, used only to exercise interop against archive/zip's default
// Deflate output; the concrete codec is deliberately the caller's
// responsibility in production use.
type flateAlgorithm struct{}

func (flateAlgorithm) NewDecompressor(r io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}

func (flateAlgorithm) NewCompressor(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.DefaultCompression)
}
