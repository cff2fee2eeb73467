package flatten

// Sample is one coded access unit extracted from a fragment.
//
// Data points into the input buffer it was extracted from (zero-copy); it is
// only copied when the builder assembles the output mdat.
type Sample struct {
	DTS      int64  // decode timestamp, media timescale units
	CTS      int64  // composition timestamp, = DTS + composition time offset
	Duration int64  // media timescale units, non-negative after normalization
	Size     uint32 // payload size in bytes
	Sync     bool   // sample_is_non_sync_sample bit clear
	Data     []byte
}

// TrackConfig carries the single video track's parameters pulled from the
// init segment.
type TrackConfig struct {
	TrackID   uint32
	Timescale uint32
	Width     uint32 // pixels
	Height    uint32 // pixels

	// Stsd is the full stsd box, reused verbatim in the output.
	Stsd []byte

	// Ftyp is the input's full ftyp box when present; the builder
	// synthesizes a minimal one otherwise.
	Ftyp []byte
}
