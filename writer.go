package mp4flat

// writerFrame tracks the start offset of a box for size backpatching.
type writerFrame struct {
	offset int
}

// Writer encodes ISOBMFF boxes into a byte buffer. The buffer must be
// pre-allocated with enough capacity; the Writer never grows it.
type Writer struct {
	buf   []byte
	pos   int
	stack [maxDepth]writerFrame
	depth int
}

// NewWriter creates a Writer that writes into buf.
func NewWriter(buf []byte) Writer {
	return Writer{buf: buf[:cap(buf)]}
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.pos]
}

// Len returns the number of bytes written.
func (w *Writer) Len() int { return w.pos }

// Write appends raw bytes. Implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v byte) {
	w.buf[w.pos] = v
	w.pos++
}

// PutUint16 appends a big-endian uint16.
func (w *Writer) PutUint16(v uint16) {
	be.PutUint16(w.buf[w.pos:], v)
	w.pos += 2
}

// PutUint32 appends a big-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	be.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

// PutUint64 appends a big-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	be.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
}

// PutInt32 appends a big-endian int32.
func (w *Writer) PutInt32(v int32) {
	w.PutUint32(uint32(v))
}

// PutZeros appends n zero bytes.
func (w *Writer) PutZeros(n int) {
	clear(w.buf[w.pos : w.pos+n])
	w.pos += n
}

// PutBytes appends raw bytes.
func (w *Writer) PutBytes(p []byte) {
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
}

// Reset resets the writer position to 0.
func (w *Writer) Reset() {
	w.pos = 0
	w.depth = 0
}

// StartBox begins a new box. Write content, then call EndBox.
func (w *Writer) StartBox(t BoxType) {
	w.stack[w.depth] = writerFrame{offset: w.pos}
	w.depth++
	w.PutUint32(0) // placeholder size
	w.PutBytes(t[:])
}

// StartFullBox begins a new full box with version and flags.
func (w *Writer) StartFullBox(t BoxType, version uint8, flags uint32) {
	w.StartBox(t)
	vf := (uint32(version) << 24) | (flags & 0x00ffffff)
	w.PutUint32(vf)
}

// EndBox finishes the current box by backpatching its size.
func (w *Writer) EndBox() {
	w.depth--
	f := w.stack[w.depth]
	size := uint32(w.pos - f.offset)
	be.PutUint32(w.buf[f.offset:], size)
}

// WriteFtyp writes a complete ftyp box.
func (w *Writer) WriteFtyp(brand [4]byte, brandVersion uint32, compat [][4]byte) {
	w.StartBox(TypeFtyp)
	w.PutBytes(brand[:])
	w.PutUint32(brandVersion)
	for _, c := range compat {
		w.PutBytes(c[:])
	}
	w.EndBox()
}

// WriteMvhd writes a complete version-0 mvhd box.
func (w *Writer) WriteMvhd(timescale uint32, duration uint32, nextTrackId uint32) {
	w.StartFullBox(TypeMvhd, 0, 0)
	w.PutUint32(0) // creation time
	w.PutUint32(0) // modification time
	w.PutUint32(timescale)
	w.PutUint32(duration)
	w.PutUint32(0x00010000) // rate 1.0
	w.PutUint16(0x0100)     // volume 1.0
	w.PutZeros(10)          // reserved
	w.putIdentityMatrix()
	w.PutZeros(24) // predefined
	w.PutUint32(nextTrackId)
	w.EndBox()
}

// WriteTkhd writes a complete version-0 tkhd box.
// Width and height are 16.16 fixed-point values.
func (w *Writer) WriteTkhd(flags uint32, trackId uint32, duration uint32, width, height uint32) {
	w.StartFullBox(TypeTkhd, 0, flags)
	w.PutUint32(0) // creation time
	w.PutUint32(0) // modification time
	w.PutUint32(trackId)
	w.PutUint32(0) // reserved
	w.PutUint32(duration)
	w.PutZeros(8)  // reserved
	w.PutUint16(0) // layer
	w.PutUint16(0) // alternate group
	w.PutUint16(0) // volume
	w.PutUint16(0) // reserved
	w.putIdentityMatrix()
	w.PutUint32(width)
	w.PutUint32(height)
	w.EndBox()
}

// putIdentityMatrix writes the 36-byte rotation-free unity matrix.
func (w *Writer) putIdentityMatrix() {
	w.PutUint32(0x00010000)
	w.PutZeros(4)
	w.PutZeros(4)
	w.PutZeros(4)
	w.PutUint32(0x00010000)
	w.PutZeros(4)
	w.PutZeros(4)
	w.PutZeros(4)
	w.PutUint32(0x40000000)
}

// WriteMdhd writes a complete version-0 mdhd box.
func (w *Writer) WriteMdhd(timescale uint32, duration uint32, language uint16) {
	w.StartFullBox(TypeMdhd, 0, 0)
	w.PutUint32(0) // creation time
	w.PutUint32(0) // modification time
	w.PutUint32(timescale)
	w.PutUint32(duration)
	w.PutUint16(language)
	w.PutUint16(0) // quality
	w.EndBox()
}

// WriteHdlr writes a complete hdlr box.
func (w *Writer) WriteHdlr(handlerType [4]byte, name string) {
	w.StartFullBox(TypeHdlr, 0, 0)
	w.PutUint32(0) // predefined
	w.PutBytes(handlerType[:])
	w.PutZeros(12) // reserved
	w.PutBytes([]byte(name))
	w.PutUint8(0) // null terminator
	w.EndBox()
}

// WriteVmhd writes a complete vmhd box.
func (w *Writer) WriteVmhd() {
	w.StartFullBox(TypeVmhd, 0, 1)
	w.PutUint16(0) // graphicsmode
	w.PutZeros(6)  // opcolor
	w.EndBox()
}

// WriteDref writes a dref box with a single self-referencing url entry.
func (w *Writer) WriteDref() {
	w.StartFullBox(TypeDref, 0, 0)
	w.PutUint32(1) // entry count
	// url entry: self-contained
	w.StartFullBox(TypeUrl, 0, 1)
	w.EndBox()
	w.EndBox()
}

// WriteStsz writes a complete stsz box.
func (w *Writer) WriteStsz(sampleSize uint32, entries []uint32) {
	w.StartFullBox(TypeStsz, 0, 0)
	w.PutUint32(sampleSize)
	w.PutUint32(uint32(len(entries)))
	if sampleSize == 0 {
		for _, e := range entries {
			w.PutUint32(e)
		}
	}
	w.EndBox()
}

// WriteStco writes a complete stco box.
func (w *Writer) WriteStco(entries []uint32) {
	w.StartFullBox(TypeStco, 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint32(e)
	}
	w.EndBox()
}

// WriteCo64 writes a complete co64 box.
func (w *Writer) WriteCo64(entries []uint64) {
	w.StartFullBox(TypeCo64, 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint64(e)
	}
	w.EndBox()
}

// WriteStss writes a complete stss box.
func (w *Writer) WriteStss(entries []uint32) {
	w.StartFullBox(TypeStss, 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint32(e)
	}
	w.EndBox()
}

// WriteStts writes a complete stts box.
func (w *Writer) WriteStts(entries []SttsEntry) {
	w.StartFullBox(TypeStts, 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint32(e.Count)
		w.PutUint32(e.Duration)
	}
	w.EndBox()
}

// WriteCtts writes a complete ctts box. Version must be 1 when any offset
// is negative (signed entries).
func (w *Writer) WriteCtts(version uint8, entries []CttsEntry) {
	w.StartFullBox(TypeCtts, version, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint32(e.Count)
		w.PutUint32(uint32(e.Offset))
	}
	w.EndBox()
}

// WriteStsc writes a complete stsc box.
func (w *Writer) WriteStsc(entries []StscEntry) {
	w.StartFullBox(TypeStsc, 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint32(e.FirstChunk)
		w.PutUint32(e.SamplesPerChunk)
		w.PutUint32(e.SampleDescriptionId)
	}
	w.EndBox()
}

// WriteMfhd writes a complete mfhd box.
func (w *Writer) WriteMfhd(sequenceNumber uint32) {
	w.StartFullBox(TypeMfhd, 0, 0)
	w.PutUint32(sequenceNumber)
	w.EndBox()
}

// TfhdFields carries the optional tfhd field values selected by the flags.
type TfhdFields struct {
	BaseDataOffset         uint64
	SampleDescriptionIndex uint32
	DefaultSampleDuration  uint32
	DefaultSampleSize      uint32
	DefaultSampleFlags     uint32
}

// WriteTfhd writes a complete tfhd box. Optional fields are emitted in flag
// order from f.
func (w *Writer) WriteTfhd(flags uint32, trackId uint32, f TfhdFields) {
	w.StartFullBox(TypeTfhd, 0, flags)
	w.PutUint32(trackId)
	if flags&TfhdBaseDataOffsetPresent != 0 {
		w.PutUint64(f.BaseDataOffset)
	}
	if flags&TfhdSampleDescriptionIndexPresent != 0 {
		w.PutUint32(f.SampleDescriptionIndex)
	}
	if flags&TfhdDefaultSampleDurationPresent != 0 {
		w.PutUint32(f.DefaultSampleDuration)
	}
	if flags&TfhdDefaultSampleSizePresent != 0 {
		w.PutUint32(f.DefaultSampleSize)
	}
	if flags&TfhdDefaultSampleFlagsPresent != 0 {
		w.PutUint32(f.DefaultSampleFlags)
	}
	w.EndBox()
}

// WriteTfdt writes a complete tfdt box, choosing version 1 for 64-bit times.
func (w *Writer) WriteTfdt(baseMediaDecodeTime uint64) {
	if baseMediaDecodeTime > uint32Max {
		w.StartFullBox(TypeTfdt, 1, 0)
		w.PutUint64(baseMediaDecodeTime)
	} else {
		w.StartFullBox(TypeTfdt, 0, 0)
		w.PutUint32(uint32(baseMediaDecodeTime))
	}
	w.EndBox()
}

// WriteTrun writes a complete trun box. Per-sample fields are emitted
// according to the flag bits; firstSampleFlags is written only when its
// flag is set.
func (w *Writer) WriteTrun(version uint8, flags uint32, dataOffset int32, firstSampleFlags uint32, entries []TrunEntry) {
	w.StartFullBox(TypeTrun, version, flags)
	w.PutUint32(uint32(len(entries)))
	if flags&TrunDataOffsetPresent != 0 {
		w.PutInt32(dataOffset)
	}
	if flags&TrunFirstSampleFlagsPresent != 0 {
		w.PutUint32(firstSampleFlags)
	}
	for _, e := range entries {
		if flags&TrunSampleDurationPresent != 0 {
			w.PutUint32(e.Duration)
		}
		if flags&TrunSampleSizePresent != 0 {
			w.PutUint32(e.Size)
		}
		if flags&TrunSampleFlagsPresent != 0 {
			w.PutUint32(e.Flags)
		}
		if flags&TrunSampleCompositionTimeOffsetPresent != 0 {
			w.PutUint32(e.Cto)
		}
	}
	w.EndBox()
}
