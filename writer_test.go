package zipkit

import (
	"bytes"
	"context"
	"hash/crc32"
	"testing"
	"time"
)

func TestWriterStoredEntryWithKnownSizesRoundTrips(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink, WriterOptions{})

	data := []byte("the quick brown fox jumps over the lazy dog")
	crc := crc32.ChecksumIEEE(data)
	size := uint64(len(data))

	h := &FileHeader{
		Name:               "hello.txt",
		Modified:           time.Date(2022, time.May, 1, 12, 0, 0, 0, time.UTC),
		Method:             Stored,
		CRC32:              &crc,
		CompressedSize64:   &size,
		UncompressedSize64: &size,
	}
	ew, err := w.CreateHeader(h)
	if err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if _, err := ew.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ew.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Finalize("a test archive"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	archive := sink.Bytes()
	r := NewReader(bytes.NewReader(archive), int64(len(archive)), ReaderOptions{})
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	comment, err := r.Comment()
	if err != nil {
		t.Fatalf("Comment: %v", err)
	}
	if comment != "a test archive" {
		t.Errorf("comment: got %q", comment)
	}

	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entry count: got %d, want 1", len(entries))
	}
	if entries[0].Name != "hello.txt" {
		t.Errorf("name: got %q", entries[0].Name)
	}

	rc, err := entries[0].Open()
	if err != nil {
		t.Fatalf("Open entry: %v", err)
	}
	defer rc.Close()
	var got bytes.Buffer
	if _, err := got.ReadFrom(rc); err != nil {
		t.Fatalf("read entry content: %v", err)
	}
	if got.String() != string(data) {
		t.Errorf("content: got %q, want %q", got.String(), data)
	}
}

func TestWriterStreamedEntryUsesDataDescriptor(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink, WriterOptions{})

	data := []byte("streamed content whose size is not known up front")
	h := &FileHeader{Name: "stream.bin", Modified: time.Now(), Method: Stored}
	ew, err := w.CreateHeader(h)
	if err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if _, err := ew.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ew.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	archive := sink.Bytes()
	r := NewReader(bytes.NewReader(archive), int64(len(archive)), ReaderOptions{})
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if !entries[0].Flags.HasDataDescriptor() {
		t.Errorf("expected the data descriptor flag to be set")
	}
	rc, err := entries[0].Open()
	if err != nil {
		t.Fatalf("Open entry: %v", err)
	}
	defer rc.Close()
	var got bytes.Buffer
	if _, err := got.ReadFrom(rc); err != nil {
		t.Fatalf("read entry content: %v", err)
	}
	if got.String() != string(data) {
		t.Errorf("content: got %q, want %q", got.String(), data)
	}
}

func TestWriterDirectoryEntryHasNoContent(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink, WriterOptions{})

	h := &FileHeader{Name: "assets/", Modified: time.Now()}
	ew, err := w.CreateHeader(h)
	if err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if err := ew.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	archive := sink.Bytes()
	r := NewReader(bytes.NewReader(archive), int64(len(archive)), ReaderOptions{})
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if !entries[0].IsDirectory() {
		t.Errorf("expected a directory entry")
	}
}

func TestWriterRejectsWriteAfterClose(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink, WriterOptions{})
	h := &FileHeader{Name: "x", Modified: time.Now(), Method: Stored}
	ew, err := w.CreateHeader(h)
	if err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if err := ew.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := ew.Write([]byte("too late")); err == nil {
		t.Fatalf("expected Write after Close to fail")
	}
}

func TestWriterRejectsCreateHeaderWhileEntryActive(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink, WriterOptions{})
	h := &FileHeader{Name: "a", Modified: time.Now(), Method: Stored}
	if _, err := w.CreateHeader(h); err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if _, err := w.CreateHeader(&FileHeader{Name: "b", Modified: time.Now()}); err == nil {
		t.Fatalf("expected CreateHeader to fail while a previous entry is still open")
	}
}

func TestWriterDeniesZip64WhenRequested(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink, WriterOptions{})
	no := false
	big := uint64(uint32max) + 1
	crc := uint32(0)
	h := &FileHeader{
		Name:               "huge.bin",
		Modified:           time.Now(),
		Method:             Stored,
		RequestZip64:       &no,
		CRC32:              &crc,
		CompressedSize64:   &big,
		UncompressedSize64: &big,
	}
	if _, err := w.CreateHeader(h); err == nil {
		t.Fatalf("expected CreateHeader to fail when RequestZip64=false conflicts with a size requiring zip64")
	}
}
