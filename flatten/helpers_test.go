package flatten

import (
	"encoding/binary"

	"github.com/tetsuo/mp4flat"
)

// initSpec controls the synthesized init segment used by tests.
type initSpec struct {
	trackID   uint32
	timescale uint32
	width     uint32
	height    uint32
	handler   [4]byte
	withFtyp  bool
}

func defaultInitSpec() initSpec {
	return initSpec{
		trackID:   1,
		timescale: 30000,
		width:     1280,
		height:    720,
		handler:   [4]byte{'v', 'i', 'd', 'e'},
		withFtyp:  true,
	}
}

// makeInit synthesizes an init segment (optional ftyp + moov with one trak).
func makeInit(spec initSpec) []byte {
	w := mp4flat.NewWriter(make([]byte, 0, 1024))

	if spec.withFtyp {
		w.WriteFtyp([4]byte{'i', 's', 'o', '5'}, 0x200, [][4]byte{{'i', 's', 'o', '5'}, {'a', 'v', 'c', '1'}})
	}

	w.StartBox(mp4flat.TypeMoov)
	w.WriteMvhd(spec.timescale, 0, spec.trackID+1)

	w.StartBox(mp4flat.TypeTrak)
	w.WriteTkhd(0x000007, spec.trackID, 0, spec.width<<16, spec.height<<16)

	w.StartBox(mp4flat.TypeMdia)
	w.WriteMdhd(spec.timescale, 0, 0x55c4)
	w.WriteHdlr(spec.handler, "VideoHandler")

	w.StartBox(mp4flat.TypeMinf)
	w.WriteVmhd()
	w.StartBox(mp4flat.TypeDinf)
	w.WriteDref()
	w.EndBox()

	w.StartBox(mp4flat.TypeStbl)
	writeTestStsd(&w)
	w.WriteStts(nil)
	w.WriteStsc(nil)
	w.WriteStsz(0, nil)
	w.WriteStco(nil)
	w.EndBox() // stbl

	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
	w.EndBox() // moov

	return append([]byte(nil), w.Bytes()...)
}

// writeTestStsd emits an stsd with one bare avc1 visual sample entry.
func writeTestStsd(w *mp4flat.Writer) {
	w.StartFullBox(mp4flat.TypeStsd, 0, 0)
	w.PutUint32(1) // entry count
	w.StartBox(mp4flat.TypeAvc1)
	w.PutZeros(6)           // reserved
	w.PutUint16(1)          // data reference index
	w.PutZeros(16)          // predefined + reserved
	w.PutUint16(1280)       // width
	w.PutUint16(720)        // height
	w.PutUint32(0x00480000) // hresolution
	w.PutUint32(0x00480000) // vresolution
	w.PutZeros(4)           // reserved
	w.PutUint16(1)          // frame count
	w.PutUint8(0)           // compressor name length
	w.PutZeros(31)          // compressor name
	w.PutUint16(24)         // depth
	w.PutUint16(0xffff)     // predefined
	w.EndBox()
	w.EndBox()
}

// trafSpec describes one traf within a synthesized fragment.
type trafSpec struct {
	trackID          uint32
	tfhdFlags        uint32
	tfhd             mp4flat.TfhdFields
	omitTfdt         bool
	tfdt             uint64
	omitTrun         bool
	trunVersion      uint8
	trunFlags        uint32
	firstSampleFlags uint32
	entries          []mp4flat.TrunEntry
	// explicitDataOffset replaces the auto-computed moof-relative offset
	// when useExplicitOffset is set.
	explicitDataOffset int32
	useExplicitOffset  bool
}

// makeFragment synthesizes one moof+mdat pair. When the trun carries a
// data_offset and none is given explicitly, it is backpatched to point at
// the mdat payload (moof size + 8).
func makeFragment(traf trafSpec, payload []byte) []byte {
	w := mp4flat.NewWriter(make([]byte, 0, 1024+len(payload)))

	var trunStart int

	w.StartBox(mp4flat.TypeMoof)
	w.WriteMfhd(1)
	w.StartBox(mp4flat.TypeTraf)
	w.WriteTfhd(traf.tfhdFlags, traf.trackID, traf.tfhd)
	if !traf.omitTfdt {
		w.WriteTfdt(traf.tfdt)
	}
	if !traf.omitTrun {
		trunStart = w.Len()
		dataOffset := traf.explicitDataOffset
		w.WriteTrun(traf.trunVersion, traf.trunFlags, dataOffset, traf.firstSampleFlags, traf.entries)
	}
	w.EndBox() // traf
	w.EndBox() // moof

	moofSize := w.Len()

	// Backpatch the auto data offset now that the moof size is known.
	if !traf.omitTrun && traf.trunFlags&mp4flat.TrunDataOffsetPresent != 0 && !traf.useExplicitOffset {
		binary.BigEndian.PutUint32(w.Bytes()[trunStart+16:], uint32(moofSize+8))
	}

	w.StartBox(mp4flat.TypeMdat)
	w.PutBytes(payload)
	w.EndBox()

	return append([]byte(nil), w.Bytes()...)
}

// samplePayload builds one deterministic payload whose length is the sum of
// the given sizes; callers slice it per sample.
func samplePayload(sizes ...int) []byte {
	var total int
	for _, s := range sizes {
		total += s
	}
	payload := make([]byte, total)
	for i := range payload {
		payload[i] = byte(i)
	}
	return payload
}

// trunAllFields is the flag set carrying every per-sample field plus the
// data offset.
const trunAllFields = mp4flat.TrunDataOffsetPresent |
	mp4flat.TrunSampleDurationPresent |
	mp4flat.TrunSampleSizePresent |
	mp4flat.TrunSampleFlagsPresent |
	mp4flat.TrunSampleCompositionTimeOffsetPresent

const (
	syncFlags    = uint32(0x02000000)
	nonSyncFlags = uint32(0x01010000)
)
