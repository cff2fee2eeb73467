package flatten

import (
	"github.com/tetsuo/mp4flat"
)

// splitResult classifies the input buffers: which one carries the init
// segment, and which carry fragments, in input order.
type splitResult struct {
	initIndex       int
	fragmentIndices []int
}

// splitInputs walks each buffer's top-level boxes and classifies it. The
// first buffer containing a moov becomes the init segment; if it also
// contains moofs it doubles as a fragment. Every other buffer is handed to
// the fragment parser as-is, including later moov-bearing ones and buffers
// with no recognizable boxes (the parser fails cleanly on those).
func splitInputs(buffers [][]byte) (*splitResult, error) {
	res := &splitResult{initIndex: -1}
	for i, buf := range buffers {
		boxes, err := mp4flat.Walk(buf, 0, int64(len(buf)))
		if err != nil {
			return nil, err
		}
		_, hasMoov := mp4flat.FindBox(boxes, mp4flat.TypeMoov)
		_, hasMoof := mp4flat.FindBox(boxes, mp4flat.TypeMoof)

		if hasMoov && res.initIndex < 0 {
			res.initIndex = i
			if hasMoof {
				res.fragmentIndices = append(res.fragmentIndices, i)
			}
			continue
		}
		res.fragmentIndices = append(res.fragmentIndices, i)
	}
	if res.initIndex < 0 {
		return nil, ErrNoInitSegment
	}
	return res, nil
}
