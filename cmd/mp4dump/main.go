// Command mp4dump reads a media file and prints its box structure.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	mf "github.com/tetsuo/mp4flat"
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

	boxes, err := mf.Walk(data, 0, int64(len(data)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	for _, box := range boxes {
		r := mf.NewReaderRange(data, int(box.Start), int(box.End()))
		if r.Next() {
			walk(&r, 0)
		}
	}
}

// walk prints the current box and descends into containers. The reader is
// positioned on a box; siblings at the same level are printed by the caller's
// loop or by Enter/Next below.
func walk(r *mf.Reader, depth int) {
	for {
		indent := strings.Repeat("  ", depth)

		fmt.Printf("%s[%s] size=%d", indent, r.Type(), r.Size())
		if mf.IsFullBox(r.Type()) {
			fmt.Printf(" v=%d flags=0x%06x", r.Version(), r.Flags())
		}
		printBoxInfo(r)
		fmt.Println()

		if mf.IsContainerBox(r.Type()) {
			r.Enter()
			if r.Next() {
				walk(r, depth+1)
			}
			r.Exit()
		} else if r.Type() == mf.TypeStsd {
			r.Enter()
			r.Skip(4) // skip entry count
			for r.Next() {
				printSampleEntry(r, depth+1)
			}
			r.Exit()
		}

		if !r.Next() {
			return
		}
	}
}

func printSampleEntry(r *mf.Reader, depth int) {
	indent := strings.Repeat("  ", depth)

	if r.Type() == mf.TypeAvc1 {
		v := mf.ReadVisualSampleEntry(r.Data())
		fmt.Printf("%s[%s] size=%d %dx%d compressor=%q\n", indent, r.Type(), r.Size(), v.Width, v.Height, v.CompressorName)
		// Enter to find avcC and other children
		r.Enter()
		r.Skip(v.ChildOffset)
		for r.Next() {
			childIndent := strings.Repeat("  ", depth+1)
			fmt.Printf("%s[%s] size=%d\n", childIndent, r.Type(), r.Size())
		}
		r.Exit()
		return
	}

	fmt.Printf("%s[%s] size=%d", indent, r.Type(), r.Size())
	if mf.IsFullBox(r.Type()) {
		fmt.Printf(" v=%d flags=0x%06x", r.Version(), r.Flags())
	}
	fmt.Printf(" (raw %d bytes)\n", len(r.Data()))
}

func printBoxInfo(r *mf.Reader) {
	switch r.Type() {
	case mf.TypeFtyp, mf.TypeStyp:
		f := mf.ReadFtyp(r.Data())
		fmt.Printf(" brand=%s ver=%d", string(f.MajorBrand[:]), f.MinorVersion)
		if len(f.Compatible) > 0 {
			fmt.Printf(" compat=[")
			for i, c := range f.Compatible {
				if i > 0 {
					fmt.Printf(",")
				}
				fmt.Printf("%s", string(c[:]))
			}
			fmt.Printf("]")
		}

	case mf.TypeMvhd:
		ts, dur, ntid := r.ReadMvhd()
		fmt.Printf(" timescale=%d duration=%d nextTrackId=%d", ts, dur, ntid)

	case mf.TypeTkhd:
		tid, dur, w, h := r.ReadTkhd()
		fmt.Printf(" trackId=%d duration=%d size=%dx%d", tid, dur, w>>16, h>>16)

	case mf.TypeMdhd:
		ts, dur, lang := r.ReadMdhd()
		fmt.Printf(" timescale=%d duration=%d lang=%d", ts, dur, lang)

	case mf.TypeHdlr:
		ht := r.ReadHdlr()
		name := r.ReadHdlrName()
		fmt.Printf(" type=%s name=%q", string(ht[:]), name)

	case mf.TypeStsd, mf.TypeDref:
		if len(r.Data()) >= 4 {
			fmt.Printf(" entries=%d", r.EntryCount())
		}

	case mf.TypeStsz:
		it := mf.NewStszIter(r.Data())
		fmt.Printf(" entries=%d", it.Count())

	case mf.TypeStco, mf.TypeStss:
		it := mf.NewUint32Iter(r.Data())
		fmt.Printf(" entries=%d", it.Count())

	case mf.TypeCo64:
		it := mf.NewCo64Iter(r.Data())
		fmt.Printf(" entries=%d", it.Count())

	case mf.TypeStts:
		it := mf.NewSttsIter(r.Data())
		fmt.Printf(" entries=%d", it.Count())

	case mf.TypeCtts:
		it := mf.NewCttsIter(r.Data(), r.Version())
		fmt.Printf(" entries=%d", it.Count())

	case mf.TypeStsc:
		it := mf.NewStscIter(r.Data())
		fmt.Printf(" entries=%d", it.Count())

	case mf.TypeMehd:
		fmt.Printf(" fragmentDuration=%d", r.ReadMehd())

	case mf.TypeTrex:
		tid, _, _, _, _ := r.ReadTrex()
		fmt.Printf(" trackId=%d", tid)

	case mf.TypeMfhd:
		fmt.Printf(" seq=%d", r.ReadMfhd())

	case mf.TypeTfhd:
		if data := r.Data(); len(data) >= 4 {
			fmt.Printf(" trackId=%d", binary.BigEndian.Uint32(data[0:4]))
		}

	case mf.TypeTfdt:
		fmt.Printf(" baseMediaDecodeTime=%d", r.ReadTfdt())

	case mf.TypeTrun:
		it := mf.NewTrunIter(r.Data(), r.Flags())
		fmt.Printf(" entries=%d", it.Count())
		if it.HasDataOffset() {
			fmt.Printf(" dataOffset=%d", it.DataOffset())
		}

	case mf.TypeMdat:
		fmt.Printf(" dataLen=%d", len(r.Data()))
	}
}
