// Package mfra parses the movie fragment random access box (mfra) and its
// children (tfra, mfro). It is an auxiliary capability: the flattening
// pipeline never consults it, but tools can use it to inspect the random
// access index a recorder left at the tail of a fragmented file.
package mfra

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tetsuo/mp4flat"
)

var be = binary.BigEndian

var (
	// ErrNotFound means the buffer contains no top-level mfra box.
	ErrNotFound = errors.New("mfra: no mfra box")

	// ErrUnsupportedTfraVersion means a tfra box has a version above 1.
	ErrUnsupportedTfraVersion = errors.New("mfra: unsupported tfra version")

	// ErrTruncated means a tfra or mfro box is shorter than its fields
	// require, including a tfra entry table that ends before its declared
	// count.
	ErrTruncated = errors.New("mfra: truncated box")
)

// Entry is one random access point recorded by a tfra box.
type Entry struct {
	Time         uint64 // presentation time in the track timescale
	MoofOffset   uint64 // byte offset of the moof from the start of the file
	TrafNumber   uint32 // 1-based traf index within the moof
	TrunNumber   uint32 // 1-based trun index within the traf
	SampleNumber uint32 // 1-based sample index within the trun
}

// Tfra is the decoded random access table for one track.
type Tfra struct {
	TrackID uint32
	Entries []Entry
}

// Mfra is the decoded movie fragment random access box.
type Mfra struct {
	Tracks []Tfra
	// MfroSize is the size field of the trailing mfro box, zero when absent.
	MfroSize uint32
}

// Parse locates the top-level mfra box in buf and decodes it.
func Parse(buf []byte) (*Mfra, error) {
	boxes, err := mp4flat.Walk(buf, 0, int64(len(buf)))
	if err != nil {
		return nil, err
	}
	box, ok := mp4flat.FindBox(boxes, mp4flat.TypeMfra)
	if !ok {
		return nil, ErrNotFound
	}

	m := &Mfra{}
	r := mp4flat.NewReaderRange(buf, int(box.DataStart()), int(box.End()))
	for r.Next() {
		switch r.Type() {
		case mp4flat.TypeTfra:
			t, err := parseTfra(&r)
			if err != nil {
				return nil, err
			}
			m.Tracks = append(m.Tracks, t)
		case mp4flat.TypeMfro:
			data := r.Data()
			if len(data) < 4 {
				return nil, fmt.Errorf("%w: mfro at offset %d", ErrTruncated, r.Offset())
			}
			m.MfroSize = be.Uint32(data[0:4])
		}
	}
	return m, nil
}

func parseTfra(r *mp4flat.Reader) (Tfra, error) {
	if r.Version() > 1 {
		return Tfra{}, fmt.Errorf("%w: version %d at offset %d", ErrUnsupportedTfraVersion, r.Version(), r.Offset())
	}
	data := r.Data()
	if len(data) < 12 {
		return Tfra{}, fmt.Errorf("%w: tfra at offset %d", ErrTruncated, r.Offset())
	}

	t := Tfra{TrackID: be.Uint32(data[0:4])}

	// The low six bits pack the byte widths of the three entry number
	// fields, each stored as width-1 in two bits.
	packed := be.Uint32(data[4:8])
	trafLen := int(packed>>4&0x3) + 1
	trunLen := int(packed>>2&0x3) + 1
	sampleLen := int(packed&0x3) + 1
	count := be.Uint32(data[8:12])

	timeLen := 4
	if r.Version() == 1 {
		timeLen = 8
	}
	stride := 2*timeLen + trafLen + trunLen + sampleLen

	ptr := 12
	t.Entries = make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		if ptr+stride > len(data) {
			return Tfra{}, fmt.Errorf("%w: tfra entry %d at offset %d", ErrTruncated, i, r.Offset())
		}
		var e Entry
		if r.Version() == 1 {
			e.Time = be.Uint64(data[ptr:])
			e.MoofOffset = be.Uint64(data[ptr+8:])
		} else {
			e.Time = uint64(be.Uint32(data[ptr:]))
			e.MoofOffset = uint64(be.Uint32(data[ptr+4:]))
		}
		ptr += 2 * timeLen
		e.TrafNumber, ptr = readUintN(data, ptr, trafLen)
		e.TrunNumber, ptr = readUintN(data, ptr, trunLen)
		e.SampleNumber, ptr = readUintN(data, ptr, sampleLen)
		t.Entries = append(t.Entries, e)
	}
	return t, nil
}

// readUintN reads an n-byte big-endian unsigned integer (n in 1..4).
func readUintN(data []byte, ptr, n int) (uint32, int) {
	var v uint32
	for i := 0; i < n; i++ {
		v = v<<8 | uint32(data[ptr+i])
	}
	return v, ptr + n
}
