// Package flatten turns one or more fragmented MP4 inputs (an init segment
// plus moof/mdat fragments) into a single self-contained progressive MP4 of
// the shape ftyp+moov+mdat, preserving the coded sample payloads byte for
// byte and the decode/composition ordering of the original timeline.
//
// The pipeline is synchronous and single-threaded; input buffers are
// borrowed for the duration of the call and the returned buffer is a fresh
// allocation. Independent inputs may be flattened concurrently.
package flatten

import (
	"github.com/rs/zerolog"
)

// Options controls the flattening pipeline. The zero value disables
// cross-file normalization; use DefaultOptions for the documented defaults.
type Options struct {
	// NormalizeAcrossFiles shifts each subsequent file's timestamps by the
	// sum of the prior files' inferred ends (each file's largest dts +
	// duration) so their timelines concatenate.
	NormalizeAcrossFiles bool

	// AllowTrunDataOffsetFallback synthesizes a data start for truns that
	// omit data_offset instead of failing.
	AllowTrunDataOffsetFallback bool

	// Debug enables per-file diagnostics through Logger for the first
	// DebugFileLimit files.
	Debug          bool
	DebugFileLimit int

	// Logger receives diagnostics; the pipeline never logs elsewhere.
	Logger zerolog.Logger
}

// DefaultOptions returns the documented defaults: cross-file normalization
// on, data-offset fallback off, logging disabled.
func DefaultOptions() Options {
	return Options{
		NormalizeAcrossFiles: true,
		DebugFileLimit:       4,
		Logger:               zerolog.Nop(),
	}
}

// Result is the output of a Flatten call.
type Result struct {
	// Bytes is the progressive MP4 file: ftyp, moov, mdat.
	Bytes []byte

	// IDRTimestamps lists keyframe decode times in seconds, decode order.
	IDRTimestamps []float64

	// DiscontinuityDetected reports that a source timeline had a jump
	// larger than a single media tick at a zero-duration sample.
	DiscontinuityDetected bool
}

// Flatten remuxes the given buffers into a single progressive MP4. Each
// buffer is a complete ISO-BMFF sequence; at least one must contain a moov.
// Buffer order defines decode order across files.
func Flatten(buffers [][]byte, opts Options) (*Result, error) {
	split, err := splitInputs(buffers)
	if err != nil {
		return nil, err
	}

	cfg, err := ParseInit(buffers[split.initIndex])
	if err != nil {
		return nil, err
	}

	p := newFragmentParser(cfg, opts)
	files := make([][]Sample, 0, len(split.fragmentIndices))
	for n, i := range split.fragmentIndices {
		samples, err := p.parseFragment(buffers[i], n)
		if err != nil {
			return nil, err
		}
		files = append(files, samples)
	}

	ordered, discontinuity := normalizeTimeline(files, opts.NormalizeAcrossFiles)
	if len(ordered) == 0 {
		return nil, ErrEmptySampleList
	}

	out, idr, err := BuildProgressive(cfg, ordered)
	if err != nil {
		return nil, err
	}

	return &Result{
		Bytes:                 out,
		IDRTimestamps:         idr,
		DiscontinuityDetected: discontinuity,
	}, nil
}
