package flatten

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tetsuo/mp4flat"
)

var be = binary.BigEndian

// fragmentParser decodes moof+mdat pairs into samples for one track.
type fragmentParser struct {
	cfg  *TrackConfig
	opts Options
}

func newFragmentParser(cfg *TrackConfig, opts Options) *fragmentParser {
	return &fragmentParser{cfg: cfg, opts: opts}
}

// moofMdatPair is one adjacent moof+mdat pair discovered in a fragment file.
type moofMdatPair struct {
	moof mp4flat.Box
	mdat mp4flat.Box
}

// pairBoxes scans top-level boxes left to right, pairing each moof with the
// next mdat that appears before the next moof.
func pairBoxes(boxes []mp4flat.Box) ([]moofMdatPair, error) {
	var pairs []moofMdatPair
	var pending *mp4flat.Box
	for i := range boxes {
		b := boxes[i]
		switch b.Type {
		case mp4flat.TypeMoof:
			if pending != nil {
				return nil, fmt.Errorf("%w: moof at offset %d", ErrMoofWithoutMdat, pending.Start)
			}
			pending = &boxes[i]
		case mp4flat.TypeMdat:
			if pending != nil {
				pairs = append(pairs, moofMdatPair{moof: *pending, mdat: b})
				pending = nil
			}
		}
	}
	if pending != nil {
		return nil, fmt.Errorf("%w: moof at offset %d", ErrMoofWithoutMdat, pending.Start)
	}
	if len(pairs) == 0 {
		return nil, ErrNoMoof
	}
	return pairs, nil
}

// parseFragment extracts this track's samples from one fragment file.
// Successive moof+mdat pairs within the file are stitched onto a monotonic
// intra-file decode timeline.
func (p *fragmentParser) parseFragment(buf []byte, fileIndex int) ([]Sample, error) {
	boxes, err := mp4flat.Walk(buf, 0, int64(len(buf)))
	if err != nil {
		return nil, err
	}
	pairs, err := pairBoxes(boxes)
	if err != nil {
		return nil, err
	}

	var out []Sample
	var intraOffset, lastEnd int64
	for _, pair := range pairs {
		samples, err := p.extractPair(buf, pair)
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			continue
		}
		if len(out) > 0 && samples[0].DTS+intraOffset < lastEnd {
			intraOffset = lastEnd - samples[0].DTS
		}
		for i := range samples {
			samples[i].DTS += intraOffset
			samples[i].CTS += intraOffset
		}
		out = append(out, samples...)
		last := samples[len(samples)-1]
		lastEnd = last.DTS + max(0, last.Duration)
	}

	if p.opts.Debug && fileIndex < p.opts.DebugFileLimit {
		p.opts.Logger.Debug().
			Int("file", fileIndex).
			Int("pairs", len(pairs)).
			Int("samples", len(out)).
			Msg("parsed fragment")
	}
	return out, nil
}

// tfhdDefaults holds the per-track-fragment defaults from a tfhd box.
type tfhdDefaults struct {
	trackID        uint32
	baseDataOffset uint64
	defDuration    uint32
	defSize        uint32
	defFlags       uint32

	hasBaseDataOffset bool
	hasDefDuration    bool
	hasDefSize        bool
	hasDefFlags       bool
}

// tfhdFieldTable drives the optional-field cursor: each present flag selects
// a field of the given width, stored in order.
var tfhdFieldTable = []struct {
	flag  uint32
	width int
	store func(*tfhdDefaults, uint64)
}{
	{mp4flat.TfhdBaseDataOffsetPresent, 8, func(d *tfhdDefaults, v uint64) { d.baseDataOffset = v; d.hasBaseDataOffset = true }},
	{mp4flat.TfhdSampleDescriptionIndexPresent, 4, nil}, // skipped
	{mp4flat.TfhdDefaultSampleDurationPresent, 4, func(d *tfhdDefaults, v uint64) { d.defDuration = uint32(v); d.hasDefDuration = true }},
	{mp4flat.TfhdDefaultSampleSizePresent, 4, func(d *tfhdDefaults, v uint64) { d.defSize = uint32(v); d.hasDefSize = true }},
	{mp4flat.TfhdDefaultSampleFlagsPresent, 4, func(d *tfhdDefaults, v uint64) { d.defFlags = uint32(v); d.hasDefFlags = true }},
}

// parseTfhd decodes a tfhd payload (after version/flags) using the field table.
func parseTfhd(data []byte, flags uint32, offset int) (tfhdDefaults, error) {
	var d tfhdDefaults
	if len(data) < 4 {
		return d, fmt.Errorf("%w: truncated tfhd at offset %d", ErrMissingTfhd, offset)
	}
	d.trackID = be.Uint32(data[0:4])
	ptr := 4
	for _, f := range tfhdFieldTable {
		if flags&f.flag == 0 {
			continue
		}
		if ptr+f.width > len(data) {
			return d, fmt.Errorf("%w: truncated tfhd at offset %d", ErrMissingTfhd, offset)
		}
		var v uint64
		if f.width == 8 {
			v = be.Uint64(data[ptr:])
		} else {
			v = uint64(be.Uint32(data[ptr:]))
		}
		if f.store != nil {
			f.store(&d, v)
		}
		ptr += f.width
	}
	return d, nil
}

// trafBoxes gathers the relevant children of one traf in document order.
type trafBoxes struct {
	offset int // absolute offset of the traf box

	tfhdData  []byte
	tfhdFlags uint32
	haveTfhd  bool

	tfdtData    []byte
	tfdtVersion uint8
	tfdtOffset  int
	haveTfdt    bool

	truns []trunBox
}

// trunBox is one trun's payload plus its full-box header fields.
type trunBox struct {
	data    []byte
	flags   uint32
	version uint8
	offset  int
}

func collectTraf(r *mp4flat.Reader) trafBoxes {
	t := trafBoxes{offset: r.Offset()}
	r.Enter()
	for r.Next() {
		switch r.Type() {
		case mp4flat.TypeTfhd:
			if !t.haveTfhd {
				t.tfhdData = r.Data()
				t.tfhdFlags = r.Flags()
				t.haveTfhd = true
			}
		case mp4flat.TypeTfdt:
			if !t.haveTfdt {
				t.tfdtData = r.Data()
				t.tfdtVersion = r.Version()
				t.tfdtOffset = r.Offset()
				t.haveTfdt = true
			}
		case mp4flat.TypeTrun:
			t.truns = append(t.truns, trunBox{
				data:    r.Data(),
				flags:   r.Flags(),
				version: r.Version(),
				offset:  r.Offset(),
			})
		}
	}
	r.Exit()
	return t
}

// extractPair pulls this track's samples out of one moof+mdat pair. DTS/CTS
// are raw (tfdt-based) times; the caller applies intra-file offsets.
func (p *fragmentParser) extractPair(buf []byte, pair moofMdatPair) ([]Sample, error) {
	var out []Sample

	r := mp4flat.NewReaderRange(buf, int(pair.moof.DataStart()), int(pair.moof.End()))
	for r.Next() {
		if r.Type() != mp4flat.TypeTraf {
			continue
		}
		traf := collectTraf(&r)

		if !traf.haveTfhd {
			return nil, fmt.Errorf("%w: traf at offset %d", ErrMissingTfhd, traf.offset)
		}
		defaults, err := parseTfhd(traf.tfhdData, traf.tfhdFlags, traf.offset)
		if err != nil {
			return nil, err
		}
		if defaults.trackID != p.cfg.TrackID {
			continue
		}

		if !traf.haveTfdt {
			return nil, fmt.Errorf("%w: traf at offset %d", ErrMissingTfdt, traf.offset)
		}
		if traf.tfdtVersion > 1 {
			return nil, fmt.Errorf("%w: version %d at offset %d", ErrUnsupportedTfdtVersion, traf.tfdtVersion, traf.tfdtOffset)
		}
		var baseTime uint64
		if traf.tfdtVersion == 1 {
			baseTime = be.Uint64(traf.tfdtData[0:8])
		} else {
			baseTime = uint64(be.Uint32(traf.tfdtData[0:4]))
		}
		if baseTime > math.MaxInt64 {
			return nil, fmt.Errorf("%w: tfdt %d at offset %d", mp4flat.ErrIntegerTooLarge, baseTime, traf.tfdtOffset)
		}

		if len(traf.truns) == 0 {
			return nil, fmt.Errorf("%w: traf at offset %d", ErrMissingTrun, traf.offset)
		}

		dts := int64(baseTime)
		for _, tr := range traf.truns {
			samples, nextDts, err := p.extractRun(buf, tr, pair, defaults, dts)
			if err != nil {
				return nil, err
			}
			dts = nextDts
			out = append(out, samples...)
		}
	}
	return out, nil
}

// extractRun decodes one trun into samples, resolving byte addresses inside
// the mdat payload and validating the consumed range.
func (p *fragmentParser) extractRun(buf []byte, tr trunBox, pair moofMdatPair, defaults tfhdDefaults, dts int64) ([]Sample, int64, error) {
	payloadStart := pair.mdat.DataStart()
	payloadEnd := pair.mdat.End()

	it := mp4flat.NewTrunIter(tr.data, tr.flags)

	baseDataOffset := pair.moof.Start
	if defaults.hasBaseDataOffset {
		if defaults.baseDataOffset > math.MaxInt64 {
			return nil, 0, fmt.Errorf("%w: base data offset %d", mp4flat.ErrIntegerTooLarge, defaults.baseDataOffset)
		}
		baseDataOffset = int64(defaults.baseDataOffset)
	}

	var dataStart int64
	switch {
	case it.HasDataOffset():
		dataStart = baseDataOffset + int64(it.DataOffset())
	case p.opts.AllowTrunDataOffsetFallback:
		if defaults.hasBaseDataOffset {
			dataStart = pair.moof.End()
		} else {
			dataStart = payloadStart
		}
	default:
		return nil, 0, fmt.Errorf("%w: trun at offset %d", ErrMissingTrunDataOffset, tr.offset)
	}
	if dataStart < payloadStart {
		return nil, 0, fmt.Errorf("%w: trun at offset %d starts at %d, mdat payload is [%d,%d)",
			ErrMdatRangeMismatch, tr.offset, dataStart, payloadStart, payloadEnd)
	}

	n := int(it.Count())
	samples := make([]Sample, 0, n)
	var total int64
	cursor := dataStart

	for i := 0; i < n; i++ {
		e, ok := it.Next()
		if !ok {
			break
		}

		duration := int64(0)
		if it.HasDuration() {
			duration = int64(e.Duration)
		} else if defaults.hasDefDuration {
			duration = int64(defaults.defDuration)
		}

		size := uint32(0)
		if it.HasSize() {
			size = e.Size
		} else if defaults.hasDefSize {
			size = defaults.defSize
		}
		if size == 0 {
			return nil, 0, fmt.Errorf("%w: sample %d in trun at offset %d", ErrMissingSampleSize, i, tr.offset)
		}

		var flags uint32
		switch {
		case it.HasFlags():
			flags = e.Flags
		case i == 0 && it.HasFirstSampleFlags():
			flags = it.FirstSampleFlags()
		case defaults.hasDefFlags:
			flags = defaults.defFlags
		}

		cto := int64(e.Cto)
		if tr.version == 1 {
			cto = int64(int32(e.Cto))
		}

		if cursor+int64(size) > payloadEnd {
			return nil, 0, fmt.Errorf("%w: trun at offset %d reads past %d, mdat payload is [%d,%d)",
				ErrMdatRangeMismatch, tr.offset, cursor+int64(size), payloadStart, payloadEnd)
		}

		samples = append(samples, Sample{
			DTS:      dts,
			CTS:      dts + cto,
			Duration: duration,
			Size:     size,
			Sync:     flags&mp4flat.SampleIsNonSync == 0,
			Data:     buf[cursor : cursor+int64(size)],
		})

		cursor += int64(size)
		total += int64(size)
		dts += max(0, duration)
	}

	if cursor-dataStart != total {
		return nil, 0, fmt.Errorf("%w: trun at offset %d consumed %d bytes, expected %d",
			ErrMdatRangeMismatch, tr.offset, cursor-dataStart, total)
	}
	return samples, dts, nil
}
