package flatten

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetsuo/mp4flat"
)

func TestParseInit(t *testing.T) {
	buf := makeInit(defaultInitSpec())

	cfg, err := ParseInit(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(1), cfg.TrackID)
	require.Equal(t, uint32(30000), cfg.Timescale)
	require.Equal(t, uint32(1280), cfg.Width)
	require.Equal(t, uint32(720), cfg.Height)

	// The ftyp is carried verbatim.
	require.NotNil(t, cfg.Ftyp)
	boxes, err := mp4flat.Walk(cfg.Ftyp, 0, int64(len(cfg.Ftyp)))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	require.Equal(t, mp4flat.TypeFtyp, boxes[0].Type)

	// The stsd is the full box, headers included.
	r := mp4flat.NewReader(cfg.Stsd)
	require.True(t, r.Next())
	require.Equal(t, mp4flat.TypeStsd, r.Type())
	require.Equal(t, uint32(1), r.EntryCount())
	require.Equal(t, uint64(len(cfg.Stsd)), r.Size())
}

func TestParseInitWithoutFtyp(t *testing.T) {
	spec := defaultInitSpec()
	spec.withFtyp = false

	cfg, err := ParseInit(makeInit(spec))
	require.NoError(t, err)
	require.Nil(t, cfg.Ftyp)
}

func TestParseInitMissingMoov(t *testing.T) {
	w := mp4flat.NewWriter(make([]byte, 0, 64))
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)

	_, err := ParseInit(w.Bytes())
	require.ErrorIs(t, err, ErrMissingMoov)
}

func TestParseInitNoVideoTrack(t *testing.T) {
	spec := defaultInitSpec()
	spec.handler = [4]byte{'s', 'o', 'u', 'n'}

	_, err := ParseInit(makeInit(spec))
	require.ErrorIs(t, err, ErrNoVideoTrack)
}

func TestParseInitHighTrackId(t *testing.T) {
	spec := defaultInitSpec()
	spec.trackID = 42
	spec.timescale = 90000
	spec.width = 3840
	spec.height = 2160

	cfg, err := ParseInit(makeInit(spec))
	require.NoError(t, err)
	require.Equal(t, uint32(42), cfg.TrackID)
	require.Equal(t, uint32(90000), cfg.Timescale)
	require.Equal(t, uint32(3840), cfg.Width)
	require.Equal(t, uint32(2160), cfg.Height)
}
