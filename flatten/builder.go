package flatten

import (
	"fmt"

	"github.com/tetsuo/mp4flat"
)

const uint32Max = 1<<32 - 1

// defaultFtyp is synthesized when the init segment carried no ftyp.
var defaultFtyp = struct {
	brand  [4]byte
	minor  uint32
	compat [][4]byte
}{
	brand: [4]byte{'i', 's', 'o', 'm'},
	minor: 0x00000200,
	compat: [][4]byte{
		{'i', 's', 'o', 'm'},
		{'i', 's', 'o', '2'},
		{'a', 'v', 'c', '1'},
		{'m', 'p', '4', '1'},
	},
}

// BuildProgressive emits a progressive MP4 (ftyp, moov, mdat) from a track
// configuration and an ordered sample list. It returns the file bytes and
// the keyframe decode times in seconds.
//
// Chunk offsets require a fixpoint: moov is first laid out with 32-bit
// offsets; if any resulting offset needs 64 bits the table is promoted to
// co64 and moov rebuilt. Promotion grows moov and thus every offset, but
// never shrinks one below 2^32, so a single extra pass converges.
func BuildProgressive(cfg *TrackConfig, samples []Sample) ([]byte, []float64, error) {
	if len(samples) == 0 {
		return nil, nil, ErrEmptySampleList
	}

	t, err := newTables(cfg, samples)
	if err != nil {
		return nil, nil, err
	}

	ftyp := cfg.Ftyp
	if ftyp == nil {
		buf := make([]byte, 0, 16+4*len(defaultFtyp.compat))
		w := mp4flat.NewWriter(buf)
		w.WriteFtyp(defaultFtyp.brand, defaultFtyp.minor, defaultFtyp.compat)
		ftyp = w.Bytes()
	}

	mdatHeaderSize := 8
	if 8+t.mdatPayload > uint32Max {
		mdatHeaderSize = 16
	}

	// Pass 1: lay out moov with 32-bit placeholder offsets to learn its size.
	moov := t.buildMoov(cfg, false, int64(len(ftyp)), int64(mdatHeaderSize))
	if t.maxChunkOffset(int64(len(ftyp))+int64(len(moov)), int64(mdatHeaderSize)) > uint32Max {
		// Pass 2: promote to co64. Offsets only grow from here.
		t.co64 = true
		moov = t.buildMoov(cfg, false, int64(len(ftyp)), int64(mdatHeaderSize))
	}
	// Final pass: same layout, real offsets.
	moov = t.buildMoov(cfg, true, int64(len(ftyp)), int64(mdatHeaderSize))

	if !t.co64 {
		if m := t.maxChunkOffset(int64(len(ftyp))+int64(len(moov)), int64(mdatHeaderSize)); m > uint32Max {
			return nil, nil, fmt.Errorf("%w: chunk offset %d in 32-bit mode", ErrChunkOffsetOverflow, m)
		}
	}

	totalLen := int64(len(ftyp)) + int64(len(moov)) + int64(mdatHeaderSize) + t.mdatPayload
	out := make([]byte, 0, int(totalLen))
	out = append(out, ftyp...)
	out = append(out, moov...)

	var hdr [16]byte
	if mdatHeaderSize == 16 {
		be.PutUint32(hdr[0:4], 1)
		copy(hdr[4:8], mp4flat.TypeMdat[:])
		be.PutUint64(hdr[8:16], uint64(16+t.mdatPayload))
		out = append(out, hdr[:16]...)
	} else {
		be.PutUint32(hdr[0:4], uint32(8+t.mdatPayload))
		copy(hdr[4:8], mp4flat.TypeMdat[:])
		out = append(out, hdr[:8]...)
	}
	for i := range samples {
		out = append(out, samples[i].Data...)
	}

	idr := make([]float64, 0, len(t.syncIndices))
	for _, i := range t.syncIndices {
		idr = append(idr, float64(samples[i-1].DTS)/float64(cfg.Timescale))
	}
	return out, idr, nil
}

// tables holds the precomputed sample-table entries shared across moov
// layout passes.
type tables struct {
	stts        []mp4flat.SttsEntry
	ctts        []mp4flat.CttsEntry
	cttsVersion uint8
	hasCtts     bool
	sizes       []uint32
	syncIndices []uint32 // 1-based keyframe sample numbers
	duration    uint32   // total, media timescale units
	mdatPayload int64
	co64        bool
}

func newTables(cfg *TrackConfig, samples []Sample) (*tables, error) {
	t := &tables{sizes: make([]uint32, len(samples))}

	var duration int64
	for i := range samples {
		s := &samples[i]
		t.sizes[i] = s.Size
		t.mdatPayload += int64(s.Size)
		duration += s.Duration

		// Run-length encode durations.
		d := uint32(s.Duration)
		if n := len(t.stts); n > 0 && t.stts[n-1].Duration == d {
			t.stts[n-1].Count++
		} else {
			t.stts = append(t.stts, mp4flat.SttsEntry{Count: 1, Duration: d})
		}

		// Run-length encode composition offsets; the box is emitted only
		// when at least one offset is non-zero.
		cto := s.CTS - s.DTS
		if cto != 0 {
			t.hasCtts = true
		}
		if cto < 0 {
			t.cttsVersion = 1
		}
		off := int32(cto)
		if n := len(t.ctts); n > 0 && t.ctts[n-1].Offset == off {
			t.ctts[n-1].Count++
		} else {
			t.ctts = append(t.ctts, mp4flat.CttsEntry{Count: 1, Offset: off})
		}

		if s.Sync {
			t.syncIndices = append(t.syncIndices, uint32(i+1))
		}
	}

	// The movie header boxes are version 0; their duration field is 32-bit.
	if duration > uint32Max {
		return nil, fmt.Errorf("%w: track duration %d", mp4flat.ErrIntegerTooLarge, duration)
	}
	t.duration = uint32(duration)
	return t, nil
}

// maxChunkOffset returns the largest chunk offset given the mdat position.
// With one sample per chunk, the last sample starts the highest chunk.
func (t *tables) maxChunkOffset(mdatStart, mdatHeaderSize int64) int64 {
	offset := mdatStart + mdatHeaderSize
	for i := 0; i < len(t.sizes)-1; i++ {
		offset += int64(t.sizes[i])
	}
	return offset
}

// moovCapacity over-approximates the encoded moov size.
func (t *tables) moovCapacity(stsdLen int) int {
	n := len(t.sizes)
	fixed := 512 + stsdLen
	tables := 8*len(t.stts) + 8*len(t.ctts) + 4*len(t.syncIndices) + 4*n + 8*n
	return fixed + tables
}

// buildMoov encodes the complete moov box. When real is false the chunk
// offset entries are zero placeholders (the table width is still decided by
// t.co64, so the size matches the final pass).
func (t *tables) buildMoov(cfg *TrackConfig, real bool, ftypLen, mdatHeaderSize int64) []byte {
	w := mp4flat.NewWriter(make([]byte, 0, t.moovCapacity(len(cfg.Stsd))))

	w.StartBox(mp4flat.TypeMoov)
	w.WriteMvhd(cfg.Timescale, t.duration, 2)

	w.StartBox(mp4flat.TypeTrak)
	// Track enabled, in movie, in preview.
	w.WriteTkhd(0x000007, cfg.TrackID, t.duration, cfg.Width<<16, cfg.Height<<16)

	w.StartBox(mp4flat.TypeMdia)
	w.WriteMdhd(cfg.Timescale, t.duration, 0x55c4) // language 'und'
	w.WriteHdlr([4]byte{'v', 'i', 'd', 'e'}, "VideoHandler")

	w.StartBox(mp4flat.TypeMinf)
	w.WriteVmhd()

	w.StartBox(mp4flat.TypeDinf)
	w.WriteDref()
	w.EndBox() // dinf

	w.StartBox(mp4flat.TypeStbl)
	w.PutBytes(cfg.Stsd)
	w.WriteStts(t.stts)
	if t.hasCtts {
		w.WriteCtts(t.cttsVersion, t.ctts)
	}
	if len(t.syncIndices) > 0 {
		w.WriteStss(t.syncIndices)
	}
	w.WriteStsc([]mp4flat.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionId: 1}})
	w.WriteStsz(0, t.sizes)
	t.writeChunkOffsets(&w, real, ftypLen, mdatHeaderSize)
	w.EndBox() // stbl

	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
	w.EndBox() // moov

	return w.Bytes()
}

// writeChunkOffsets emits stco or co64. The moov size is independent of the
// offset values, so the final pass can compute mdatStart from the writer's
// own position: moov ends where the current box stack says it will.
func (t *tables) writeChunkOffsets(w *mp4flat.Writer, real bool, ftypLen, mdatHeaderSize int64) {
	n := len(t.sizes)

	// Every pass encodes the same widths, so the pass-1 moov length equals
	// the final one and mdatStart can be derived from it by the caller.
	if !real {
		if t.co64 {
			w.WriteCo64(make([]uint64, n))
		} else {
			w.WriteStco(make([]uint32, n))
		}
		return
	}

	// moov starts at position 0 of this buffer and the offset table is the
	// last payload before the containers close (backpatched sizes append no
	// bytes), so the final moov length is the current length plus the table.
	var tableSize int
	if t.co64 {
		tableSize = 16 + 8*n
	} else {
		tableSize = 16 + 4*n
	}
	moovLen := int64(w.Len() + tableSize)
	first := ftypLen + moovLen + mdatHeaderSize

	if t.co64 {
		entries := make([]uint64, n)
		offset := first
		for i := 0; i < n; i++ {
			entries[i] = uint64(offset)
			offset += int64(t.sizes[i])
		}
		w.WriteCo64(entries)
	} else {
		entries := make([]uint32, n)
		offset := first
		for i := 0; i < n; i++ {
			entries[i] = uint32(offset)
			offset += int64(t.sizes[i])
		}
		w.WriteStco(entries)
	}
}
