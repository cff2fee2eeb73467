// Command mp4flatten remuxes fragmented MP4 inputs (an init segment plus
// moof/mdat fragments) into a single progressive MP4 file. Input order
// defines decode order across files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/tetsuo/mp4flat/flatten"
)

func main() {
	var (
		output    = flag.String("o", "out.mp4", "output file path")
		printIdr  = flag.Bool("idr", false, "print keyframe timestamps (seconds)")
		fallback  = flag.Bool("fallback", false, "synthesize data offsets for truns that omit data_offset")
		noConcat  = flag.Bool("no-normalize", false, "do not concatenate timelines across input files")
		verbose   = flag.Bool("v", false, "enable debug logging")
		fileLimit = flag.Int("debug-files", 4, "number of input files to log diagnostics for")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <init-or-fragment.mp4> [fragment.mp4 ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}

	buffers := make([][]byte, 0, flag.NArg())
	var inputTotal int64
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("read input")
			os.Exit(1)
		}
		buffers = append(buffers, data)
		inputTotal += int64(len(data))
	}

	// The output is roughly the size of the inputs; refuse to start a write
	// that cannot complete.
	if usage, err := disk.Usage(filepath.Dir(absOrDot(*output))); err == nil {
		if usage.Free < uint64(inputTotal) {
			logger.Error().
				Uint64("free", usage.Free).
				Int64("needed", inputTotal).
				Msg("not enough free disk space for output")
			os.Exit(1)
		}
	}

	opts := flatten.DefaultOptions()
	opts.AllowTrunDataOffsetFallback = *fallback
	opts.NormalizeAcrossFiles = !*noConcat
	opts.Debug = *verbose
	opts.DebugFileLimit = *fileLimit
	opts.Logger = logger

	res, err := flatten.Flatten(buffers, opts)
	if err != nil {
		logger.Error().Err(err).Msg("flatten failed")
		os.Exit(1)
	}

	if err := os.WriteFile(*output, res.Bytes, 0o644); err != nil {
		logger.Error().Err(err).Str("file", *output).Msg("write output")
		os.Exit(1)
	}

	logger.Info().
		Str("file", *output).
		Int("bytes", len(res.Bytes)).
		Int("keyframes", len(res.IDRTimestamps)).
		Bool("discontinuity", res.DiscontinuityDetected).
		Msg("flattened")

	if *printIdr {
		for _, ts := range res.IDRTimestamps {
			fmt.Printf("%.6f\n", ts)
		}
	}
}

func absOrDot(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return "."
}
