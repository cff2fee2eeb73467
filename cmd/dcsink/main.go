// Command dcsink collects fragmented MP4 buffers over a WebRTC data channel
// and flattens them into a progressive MP4 when the sender is done.
//
// The peer's base64-encoded SDP offer is read from stdin; the answer is
// printed to stdout, also base64-encoded. Binary data-channel messages are
// collected as input buffers; a text message "done" (or the channel closing)
// triggers the flatten and writes the output file.
package main

import (
	"bufio"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/tetsuo/mp4flat/flatten"
)

func main() {
	var (
		output   = flag.String("o", "out.mp4", "output file path")
		fallback = flag.Bool("fallback", false, "synthesize data offsets for truns that omit data_offset")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().
		Timestamp().
		Str("session", uuid.NewString()).
		Logger()
	if !*verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}

	fmt.Fprintln(os.Stderr, "paste base64 SDP offer:")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		logger.Error().Err(err).Msg("read offer")
		os.Exit(1)
	}
	sdp, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line))
	if err != nil {
		logger.Error().Err(err).Msg("decode offer")
		os.Exit(1)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		logger.Error().Err(err).Msg("peer connection")
		os.Exit(1)
	}
	defer pc.Close()

	done := make(chan error, 1)
	var buffers [][]byte

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log := logger.With().Str("channel", dc.Label()).Logger()
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString {
				if string(msg.Data) == "done" {
					select {
					case done <- nil:
					default:
					}
				}
				return
			}
			// Messages arrive on pion's read loop; copy before it recycles.
			buffers = append(buffers, append([]byte(nil), msg.Data...))
		})
		dc.OnClose(func() {
			log.Debug().Msg("data channel closed")
			select {
			case done <- nil:
			default:
			}
		})
		log.Info().Msg("data channel open")
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  string(sdp),
	}); err != nil {
		logger.Error().Err(err).Msg("set remote description")
		os.Exit(1)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		logger.Error().Err(err).Msg("create answer")
		os.Exit(1)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		logger.Error().Err(err).Msg("set local description")
		os.Exit(1)
	}
	<-gatherComplete

	fmt.Println(base64.StdEncoding.EncodeToString([]byte(pc.LocalDescription().SDP)))

	if err := <-done; err != nil {
		logger.Error().Err(err).Msg("collect")
		os.Exit(1)
	}

	opts := flatten.DefaultOptions()
	opts.AllowTrunDataOffsetFallback = *fallback
	opts.Debug = *verbose
	opts.Logger = logger

	res, err := flatten.Flatten(buffers, opts)
	if err != nil {
		logger.Error().Err(err).Int("buffers", len(buffers)).Msg("flatten failed")
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
		Msg("flattened")
}
