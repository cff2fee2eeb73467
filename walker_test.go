package mp4flat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func box(t BoxType, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(out)))
	copy(out[4:8], t[:])
	copy(out[8:], payload)
	return out
}

func TestWalkCompactSizes(t *testing.T) {
	buf := append(box(TypeFree, []byte{1, 2, 3}), box(TypeSkip, nil)...)

	boxes, err := Walk(buf, 0, int64(len(buf)))
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	require.Equal(t, TypeFree, boxes[0].Type)
	require.Equal(t, int64(0), boxes[0].Start)
	require.Equal(t, int64(11), boxes[0].Size)
	require.Equal(t, 8, boxes[0].HeaderSize)
	require.Equal(t, int64(11), boxes[0].End())
	require.Equal(t, int64(8), boxes[0].DataStart())

	require.Equal(t, TypeSkip, boxes[1].Type)
	require.Equal(t, int64(11), boxes[1].Start)
}

func TestWalkLargeSize(t *testing.T) {
	payload := []byte{0xaa, 0xbb}
	buf := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint32(buf, 1)
	copy(buf[4:8], TypeMdat[:])
	binary.BigEndian.PutUint64(buf[8:16], uint64(len(buf)))
	copy(buf[16:], payload)

	boxes, err := Walk(buf, 0, int64(len(buf)))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	require.Equal(t, 16, boxes[0].HeaderSize)
	require.Equal(t, int64(len(buf)), boxes[0].Size)
}

func TestWalkBoxTooLarge(t *testing.T) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf, 1)
	copy(buf[4:8], TypeMdat[:])
	binary.BigEndian.PutUint64(buf[8:16], 1<<63)

	_, err := Walk(buf, 0, int64(len(buf)))
	require.ErrorIs(t, err, ErrBoxTooLarge)
}

func TestWalkTerminatingBox(t *testing.T) {
	head := box(TypeFree, nil)
	tail := make([]byte, 8+5)
	binary.BigEndian.PutUint32(tail, 0) // extends to end
	copy(tail[4:8], TypeMdat[:])
	buf := append(head, tail...)

	boxes, err := Walk(buf, 0, int64(len(buf)))
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	require.Equal(t, int64(len(buf)), boxes[1].End())
	require.Equal(t, int64(13), boxes[1].Size)
}

func TestWalkTruncatedTailTolerated(t *testing.T) {
	good := box(TypeFree, nil)
	bad := make([]byte, 8)
	binary.BigEndian.PutUint32(bad, 100) // runs past end
	copy(bad[4:8], TypeMdat[:])
	buf := append(good, bad...)

	boxes, err := Walk(buf, 0, int64(len(buf)))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	require.Equal(t, TypeFree, boxes[0].Type)
}

func TestWalkUndersizedBoxStops(t *testing.T) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf, 4) // smaller than its own header
	copy(buf[4:8], TypeFree[:])

	boxes, err := Walk(buf, 0, int64(len(buf)))
	require.NoError(t, err)
	require.Empty(t, boxes)
}

func TestReaderFullBoxAndNesting(t *testing.T) {
	w := NewWriter(make([]byte, 0, 256))
	w.StartBox(TypeMoof)
	w.WriteMfhd(7)
	w.StartBox(TypeTraf)
	w.WriteTfdt(42)
	w.EndBox()
	w.EndBox()
	buf := w.Bytes()

	r := NewReader(buf)
	require.True(t, r.Next())
	require.Equal(t, TypeMoof, r.Type())

	r.Enter()
	require.True(t, r.Next())
	require.Equal(t, TypeMfhd, r.Type())
	require.Equal(t, uint32(7), r.ReadMfhd())

	require.True(t, r.Next())
	require.Equal(t, TypeTraf, r.Type())
	r.Enter()
	require.True(t, r.Next())
	require.Equal(t, TypeTfdt, r.Type())
	require.Equal(t, uint8(0), r.Version())
	require.Equal(t, uint64(42), r.ReadTfdt())
	require.False(t, r.Next())
	r.Exit()

	require.False(t, r.Next())
	r.Exit()
	require.False(t, r.Next())
}

func TestReaderRangeAbsoluteOffsets(t *testing.T) {
	prefix := box(TypeFree, []byte{0xff})
	w := NewWriter(make([]byte, 0, 64))
	w.WriteMfhd(1)
	buf := append(prefix, w.Bytes()...)

	r := NewReaderRange(buf, len(prefix), len(buf))
	require.True(t, r.Next())
	require.Equal(t, TypeMfhd, r.Type())
	require.Equal(t, len(prefix), r.Offset())
}

func TestWriterBackpatch(t *testing.T) {
	w := NewWriter(make([]byte, 0, 64))
	w.StartBox(TypeMoov)
	w.PutUint32(0xdeadbeef)
	w.EndBox()
	buf := w.Bytes()

	require.Len(t, buf, 12)
	require.Equal(t, uint32(12), binary.BigEndian.Uint32(buf[0:4]))
	require.Equal(t, "moov", string(buf[4:8]))
}

func TestWriteTfhdOptionalFields(t *testing.T) {
	flags := uint32(TfhdBaseDataOffsetPresent | TfhdDefaultSampleSizePresent)
	w := NewWriter(make([]byte, 0, 64))
	w.WriteTfhd(flags, 3, TfhdFields{BaseDataOffset: 1 << 40, DefaultSampleSize: 512})
	buf := w.Bytes()

	r := NewReader(buf)
	require.True(t, r.Next())
	require.Equal(t, TypeTfhd, r.Type())
	require.Equal(t, flags, r.Flags())

	data := r.Data()
	require.Equal(t, uint32(3), binary.BigEndian.Uint32(data[0:4]))
	require.Equal(t, uint64(1<<40), binary.BigEndian.Uint64(data[4:12]))
	require.Equal(t, uint32(512), binary.BigEndian.Uint32(data[12:16]))
}

func TestTrunIterRoundTrip(t *testing.T) {
	flags := uint32(TrunDataOffsetPresent | TrunFirstSampleFlagsPresent |
		TrunSampleDurationPresent | TrunSampleSizePresent | TrunSampleCompositionTimeOffsetPresent)
	entries := []TrunEntry{
		{Duration: 1000, Size: 100, Cto: 0},
		{Duration: 1000, Size: 150, Cto: uint32(0xfffffc18)}, // -1000 as signed bits
	}
	w := NewWriter(make([]byte, 0, 128))
	w.WriteTrun(1, flags, 120, 0x02000000, entries)

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	require.Equal(t, uint8(1), r.Version())

	it := NewTrunIter(r.Data(), r.Flags())
	require.Equal(t, uint32(2), it.Count())
	require.True(t, it.HasDataOffset())
	require.Equal(t, int32(120), it.DataOffset())
	require.True(t, it.HasFirstSampleFlags())
	require.Equal(t, uint32(0x02000000), it.FirstSampleFlags())

	e, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, uint32(1000), e.Duration)
	require.Equal(t, uint32(100), e.Size)

	e, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, int32(-1000), int32(e.Cto))

	_, ok = it.Next()
	require.False(t, ok)
}

func TestSttsIter(t *testing.T) {
	w := NewWriter(make([]byte, 0, 64))
	w.WriteStts([]SttsEntry{{Count: 3, Duration: 1000}, {Count: 1, Duration: 500}})

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	it := NewSttsIter(r.Data())
	require.Equal(t, uint32(2), it.Count())

	e, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, SttsEntry{Count: 3, Duration: 1000}, e)
}
