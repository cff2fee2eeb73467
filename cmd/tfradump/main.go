// Command tfradump prints the movie fragment random access index (mfra) of
// a fragmented MP4 file: one line per tfra entry.
package main

import (
	"fmt"
	"os"

	"github.com/tetsuo/mp4flat/mfra"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading file: %v\n", err)
		os.Exit(1)
	}

	m, err := mfra.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	for _, t := range m.Tracks {
		fmt.Printf("track %d: %d entries\n", t.TrackID, len(t.Entries))
		for i, e := range t.Entries {
			fmt.Printf("  [%d] time=%d moofOffset=%d traf=%d trun=%d sample=%d\n",
				i, e.Time, e.MoofOffset, e.TrafNumber, e.TrunNumber, e.SampleNumber)
		}
	}
	if m.MfroSize != 0 {
		fmt.Printf("mfro size=%d\n", m.MfroSize)
	}
}
