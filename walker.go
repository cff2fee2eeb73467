package mp4flat

import (
	"fmt"
	"math"
)

// Box is a decoded top-level box header within a byte buffer.
type Box struct {
	Type       BoxType
	Start      int64 // absolute byte offset of the box header
	Size       int64 // total box size including header
	HeaderSize int   // 8, or 16 with an extended 64-bit size
}

// End returns the absolute offset one past the last byte of the box.
func (b Box) End() int64 {
	return b.Start + b.Size
}

// DataStart returns the absolute offset of the box payload.
func (b Box) DataStart() int64 {
	return b.Start + int64(b.HeaderSize)
}

// Walk decodes the top-level boxes in buf[start:end).
//
// A 32-bit size of 1 switches to the 64-bit extended size; a size of 0 makes
// the box extend to end (terminating box). A box whose size is smaller than
// its header or that runs past end stops the walk; the truncated tail is
// tolerated and the boxes decoded so far are returned.
func Walk(buf []byte, start, end int64) ([]Box, error) {
	var boxes []Box
	pos := start
	for end-pos >= 8 {
		size := int64(be.Uint32(buf[pos:]))
		var t BoxType
		copy(t[:], buf[pos+4:pos+8])
		headerSize := 8

		if size == 1 {
			if end-pos < 16 {
				break
			}
			size64 := be.Uint64(buf[pos+8:])
			if size64 > math.MaxInt64 {
				return boxes, fmt.Errorf("%w: %s at offset %d has size %d", ErrBoxTooLarge, t, pos, size64)
			}
			size = int64(size64)
			headerSize = 16
		} else if size == 0 {
			size = end - pos
		}

		if size < int64(headerSize) || pos+size > end {
			break
		}

		boxes = append(boxes, Box{
			Type:       t,
			Start:      pos,
			Size:       size,
			HeaderSize: headerSize,
		})
		pos += size
	}
	return boxes, nil
}

// FindBox returns the first box with the given type, or false when absent.
func FindBox(boxes []Box, t BoxType) (Box, bool) {
	for _, b := range boxes {
		if b.Type == t {
			return b, true
		}
	}
	return Box{}, false
}
