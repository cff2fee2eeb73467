package flatten

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetsuo/mp4flat"
)

func keyframeFragment(tfdt uint64, durations []uint32, sizes []uint32) []byte {
	entries := make([]mp4flat.TrunEntry, len(durations))
	var total []int
	for i := range durations {
		flags := nonSyncFlags
		if i == 0 {
			flags = syncFlags
		}
		entries[i] = mp4flat.TrunEntry{Duration: durations[i], Size: sizes[i], Flags: flags}
		total = append(total, int(sizes[i]))
	}
	return makeFragment(trafSpec{
		trackID:   1,
		tfdt:      tfdt,
		trunFlags: trunAllFields,
		entries:   entries,
	}, samplePayload(total...))
}

func TestFlattenEndToEnd(t *testing.T) {
	init := makeInit(defaultInitSpec())
	frag1 := keyframeFragment(0, []uint32{1000, 1000}, []uint32{100, 50})
	frag2 := keyframeFragment(0, []uint32{1000, 1000}, []uint32{80, 40})

	res, err := Flatten([][]byte{init, frag1, frag2}, DefaultOptions())
	require.NoError(t, err)
	require.False(t, res.DiscontinuityDetected)

	p := reparse(t, res.Bytes)
	require.Equal(t, []uint32{100, 50, 80, 40}, p.sizes)
	require.Equal(t, uint64(4000), p.duration)
	require.Equal(t, []uint32{1, 3}, p.stss)
	require.Equal(t, 270, len(p.mdatPayload))

	// Cross-file normalization: the second file's keyframe lands at 2000
	// ticks = 2000/30000 s.
	require.Len(t, res.IDRTimestamps, 2)
	require.InDelta(t, 0.0, res.IDRTimestamps[0], 1e-9)
	require.InDelta(t, 2000.0/30000.0, res.IDRTimestamps[1], 1e-9)

	// The coded bytes survive in input order.
	want := append(append([]byte(nil), samplePayload(100, 50)...), samplePayload(80, 40)...)
	require.Equal(t, want, p.mdatPayload)
}

func TestFlattenInitAlsoFragment(t *testing.T) {
	// One buffer carrying ftyp+moov and a moof+mdat pair is both the init
	// segment and the first fragment.
	init := makeInit(defaultInitSpec())
	combined := append(append([]byte(nil), init...), keyframeFragment(0, []uint32{1000}, []uint32{25})...)
	frag := keyframeFragment(0, []uint32{1000}, []uint32{35})

	res, err := Flatten([][]byte{combined, frag}, DefaultOptions())
	require.NoError(t, err)

	p := reparse(t, res.Bytes)
	require.Equal(t, []uint32{25, 35}, p.sizes)
}

func TestFlattenNoInitSegment(t *testing.T) {
	frag := keyframeFragment(0, []uint32{1000}, []uint32{25})
	_, err := Flatten([][]byte{frag}, DefaultOptions())
	require.ErrorIs(t, err, ErrNoInitSegment)
}

func TestFlattenNormalizeDisabledOverlapStillMonotonic(t *testing.T) {
	init := makeInit(defaultInitSpec())
	frag1 := keyframeFragment(0, []uint32{1000}, []uint32{10})
	frag2 := keyframeFragment(0, []uint32{1000}, []uint32{10})

	opts := DefaultOptions()
	opts.NormalizeAcrossFiles = false
	res, err := Flatten([][]byte{init, frag1, frag2}, opts)
	require.NoError(t, err)

	p := reparse(t, res.Bytes)
	// Decode order stays monotonic even without cross-file offsets.
	require.Equal(t, []mp4flat.SttsEntry{{Count: 2, Duration: 1000}}, p.stts)
}

func TestFlattenEmptyInput(t *testing.T) {
	_, err := Flatten(nil, DefaultOptions())
	require.ErrorIs(t, err, ErrNoInitSegment)
}

func TestFlattenFragmentWithTfdtGap(t *testing.T) {
	// Files whose tfdt restarts at zero are concatenated at the prior
	// file's inferred end, not by raw decode times.
	init := makeInit(defaultInitSpec())
	frag1 := keyframeFragment(90000, []uint32{1000}, []uint32{10})
	frag2 := keyframeFragment(0, []uint32{1000}, []uint32{10})

	res, err := Flatten([][]byte{init, frag1, frag2}, DefaultOptions())
	require.NoError(t, err)

	// First file's inferred end is 91000; second file starts there.
	require.Len(t, res.IDRTimestamps, 2)
	require.InDelta(t, 3.0, res.IDRTimestamps[0], 1e-9)
	require.InDelta(t, 91000.0/30000.0, res.IDRTimestamps[1], 1e-9)
}

func TestSplitInputs(t *testing.T) {
	init := makeInit(defaultInitSpec())
	frag := keyframeFragment(0, []uint32{1000}, []uint32{10})

	res, err := splitInputs([][]byte{frag, init, frag})
	require.NoError(t, err)
	require.Equal(t, 1, res.initIndex)
	require.Equal(t, []int{0, 2}, res.fragmentIndices)
}

func TestSplitInputsInitWithMoof(t *testing.T) {
	init := makeInit(defaultInitSpec())
	combined := append(append([]byte(nil), init...), keyframeFragment(0, []uint32{1000}, []uint32{10})...)

	res, err := splitInputs([][]byte{combined})
	require.NoError(t, err)
	require.Equal(t, 0, res.initIndex)
	require.Equal(t, []int{0}, res.fragmentIndices)
}

func TestSplitInputsGarbageBufferIsFragment(t *testing.T) {
	init := makeInit(defaultInitSpec())
	res, err := splitInputs([][]byte{init, {1, 2, 3}})
	require.NoError(t, err)
	require.Equal(t, []int{1}, res.fragmentIndices)

	// The fragment parser rejects it cleanly downstream.
	_, err = Flatten([][]byte{init, {1, 2, 3}}, DefaultOptions())
	require.ErrorIs(t, err, ErrNoMoof)
}
