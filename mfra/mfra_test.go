package mfra

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetsuo/mp4flat"
)

// writeTfra emits a tfra box with the given version and entry field widths.
func writeTfra(w *mp4flat.Writer, version uint8, trackID uint32, trafLen, trunLen, sampleLen int, entries []Entry) {
	w.StartFullBox(mp4flat.TypeTfra, version, 0)
	w.PutUint32(trackID)
	packed := uint32(trafLen-1)<<4 | uint32(trunLen-1)<<2 | uint32(sampleLen-1)
	w.PutUint32(packed)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		if version == 1 {
			w.PutUint64(e.Time)
			w.PutUint64(e.MoofOffset)
		} else {
			w.PutUint32(uint32(e.Time))
			w.PutUint32(uint32(e.MoofOffset))
		}
		putUintN(w, e.TrafNumber, trafLen)
		putUintN(w, e.TrunNumber, trunLen)
		putUintN(w, e.SampleNumber, sampleLen)
	}
	w.EndBox()
}

func putUintN(w *mp4flat.Writer, v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.PutUint8(byte(v >> (8 * i)))
	}
}

func TestParseVersion0(t *testing.T) {
	entries := []Entry{
		{Time: 0, MoofOffset: 32, TrafNumber: 1, TrunNumber: 1, SampleNumber: 1},
		{Time: 90000, MoofOffset: 4096, TrafNumber: 1, TrunNumber: 2, SampleNumber: 30},
	}

	w := mp4flat.NewWriter(make([]byte, 0, 256))
	w.StartBox(mp4flat.TypeMfra)
	writeTfra(&w, 0, 1, 1, 1, 4, entries)
	w.StartFullBox(mp4flat.TypeMfro, 0, 0)
	w.PutUint32(0)
	w.EndBox()
	w.EndBox()
	m, err := Parse(w.Bytes())
	require.NoError(t, err)
	require.Len(t, m.Tracks, 1)
	require.Equal(t, uint32(1), m.Tracks[0].TrackID)
	require.Equal(t, entries, m.Tracks[0].Entries)
}

func TestParseVersion1(t *testing.T) {
	entries := []Entry{
		{Time: 1 << 33, MoofOffset: 1 << 34, TrafNumber: 2, TrunNumber: 3, SampleNumber: 4},
	}

	w := mp4flat.NewWriter(make([]byte, 0, 256))
	w.StartBox(mp4flat.TypeMfra)
	writeTfra(&w, 1, 7, 2, 2, 2, entries)
	w.EndBox()

	m, err := Parse(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(7), m.Tracks[0].TrackID)
	require.Equal(t, entries, m.Tracks[0].Entries)
}

func TestParseUnsupportedVersion(t *testing.T) {
	w := mp4flat.NewWriter(make([]byte, 0, 256))
	w.StartBox(mp4flat.TypeMfra)
	writeTfra(&w, 2, 1, 1, 1, 1, nil)
	w.EndBox()

	_, err := Parse(w.Bytes())
	require.ErrorIs(t, err, ErrUnsupportedTfraVersion)
}

func TestParseNoMfra(t *testing.T) {
	w := mp4flat.NewWriter(make([]byte, 0, 64))
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)

	_, err := Parse(w.Bytes())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseMfroSize(t *testing.T) {
	w := mp4flat.NewWriter(make([]byte, 0, 64))
	w.StartBox(mp4flat.TypeMfra)
	w.StartFullBox(mp4flat.TypeMfro, 0, 0)
	w.PutUint32(24)
	w.EndBox()
	w.EndBox()

	m, err := Parse(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(24), m.MfroSize)
	require.Empty(t, m.Tracks)
}

func TestParseTruncatedTfra(t *testing.T) {
	w := mp4flat.NewWriter(make([]byte, 0, 256))
	w.StartBox(mp4flat.TypeMfra)
	w.StartFullBox(mp4flat.TypeTfra, 0, 0)
	w.PutUint32(1) // track id
	w.PutUint32(0) // widths: 1 byte each
	w.PutUint32(5) // claims five entries, provides none
	w.EndBox()
	w.EndBox()

	_, err := Parse(w.Bytes())
	require.ErrorIs(t, err, ErrTruncated)
}
