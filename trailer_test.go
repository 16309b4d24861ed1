package zipkit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocateTrailerPlain(t *testing.T) {
	buf := writeEOCDR(&eocdr{EntriesOnThisDisk: 2, TotalEntries: 2, DirectorySize: 100, DirectoryOffset: 50})

	trailer, err := locateTrailer(buf, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, trailer.Count)
	require.EqualValues(t, 100, trailer.Size)
	require.EqualValues(t, 50, trailer.Offset)
	require.Nil(t, trailer.Zip64)
}

func TestLocateTrailerWithComment(t *testing.T) {
	buf := writeEOCDR(&eocdr{EntriesOnThisDisk: 1, TotalEntries: 1, Comment: "built by zipkit"})

	trailer, err := locateTrailer(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "built by zipkit", trailer.Comment)
}

func TestLocateTrailerRejectsMissingSignature(t *testing.T) {
	buf := make([]byte, eocdrLen)
	_, err := locateTrailer(buf, 0)
	require.Error(t, err)
}

func TestLocateTrailerResolvesZip64InBuffer(t *testing.T) {
	zr := &zip64EOCDR{VersionMadeBy: 45, VersionNeeded: 45, EntriesOnThisDisk: 3, TotalEntries: 3, DirectorySize: 300, DirectoryOffset: 1000}
	zrBuf := writeZip64EOCDR(zr)
	locBuf := writeZip64EOCDL(0)
	eocdrBuf := writeEOCDR(&eocdr{})

	buf := append(append(append([]byte{}, zrBuf...), locBuf...), eocdrBuf...)

	trailer, err := locateTrailer(buf, 0)
	require.NoError(t, err)
	require.NotNil(t, trailer.Zip64)
	require.EqualValues(t, 3, trailer.Count)
	require.EqualValues(t, 300, trailer.Size)
	require.EqualValues(t, 1000, trailer.Offset)
}

func TestLocateTrailerSignalsNotInBuffer(t *testing.T) {
	locBuf := writeZip64EOCDL(500) // points outside the buffer we give it
	eocdrBuf := writeEOCDR(&eocdr{})
	buf := append(append([]byte{}, locBuf...), eocdrBuf...)

	_, err := locateTrailer(buf, 1000)
	nib, ok := err.(*notInBufferError)
	require.True(t, ok, "got %T (%v), want *notInBufferError", err, err)
	require.EqualValues(t, 500, nib.Offset)
	require.Equal(t, zip64EOCDRLen, nib.Length)
}
