package zipkit

import (
	"testing"
	"time"
)

func TestPackDOSDateTimeClampsPre1980(t *testing.T) {
	got := packDOSDateTime(time.Date(1975, time.March, 4, 1, 2, 4, 0, time.UTC))
	want := unpackDOSDateTime(got, time.UTC)
	if want.Year() != 1980 {
		t.Fatalf("year: got %d, want 1980", want.Year())
	}
}

func TestPackDOSDateTimeRoundTripsEvenSeconds(t *testing.T) {
	in := time.Date(2020, time.June, 15, 13, 45, 22, 0, time.UTC)
	packed := packDOSDateTime(in)
	out := unpackDOSDateTime(packed, time.UTC)
	if !out.Equal(in) {
		t.Fatalf("round trip: got %v, want %v", out, in)
	}
}

func TestPackDOSDateTimeRoundsOddSeconds(t *testing.T) {
	in := time.Date(2020, time.June, 15, 13, 45, 23, 0, time.UTC)
	packed := packDOSDateTime(in)
	out := unpackDOSDateTime(packed, time.UTC)
	if out.Second() != 24 {
		t.Fatalf("second: got %d, want 24 (rounded up to nearest even)", out.Second())
	}
}

func TestUnpackDOSDateTimeFields(t *testing.T) {
	// 2021-11-05 08:30:10, encoded by hand from the bit layout in §4.2.
	date := uint32(5) | uint32(11)<<5 | uint32(2021-1980)<<9
	clock := uint32(10/2) | uint32(30)<<5 | uint32(8)<<11
	v := date<<16 | clock

	got := unpackDOSDateTime(v, time.UTC)
	want := time.Date(2021, time.November, 5, 8, 30, 10, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
