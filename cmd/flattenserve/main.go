// Command flattenserve simulates fragment delivery over a WebSocket. A
// client connects, sends the init segment and each fragment as binary
// messages, then a text message "done"; the server flattens the collected
// buffers and replies with the progressive MP4 as a single binary message.
package main

import (
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tetsuo/mp4flat/flatten"
)

var logger zerolog.Logger

func main() {
	var (
		addr     = flag.String("addr", ":8089", "listen address")
		fallback = flag.Bool("fallback", false, "synthesize data offsets for truns that omit data_offset")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}

	http.HandleFunc("/collect", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade")
			return
		}
		go collect(conn, *fallback, *verbose)
	})

	logger.Info().Str("addr", *addr).Msg("listening")
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error().Err(err).Msg("server")
		os.Exit(1)
	}
}

func collect(conn net.Conn, fallback, verbose bool) {
	defer conn.Close()

	session := uuid.NewString()
	log := logger.With().Str("session", session).Logger()

	var buffers [][]byte
	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			log.Debug().Err(err).Msg("client gone")
			return
		}
		switch op {
		case ws.OpBinary:
			buffers = append(buffers, data)
		case ws.OpText:
			if string(data) != "done" {
				log.Warn().Str("msg", string(data)).Msg("unexpected text message")
				continue
			}
			opts := flatten.DefaultOptions()
			opts.AllowTrunDataOffsetFallback = fallback
			opts.Debug = verbose
			opts.Logger = log

			res, err := flatten.Flatten(buffers, opts)
			if err != nil {
				log.Error().Err(err).Int("buffers", len(buffers)).Msg("flatten failed")
				wsutil.WriteServerText(conn, []byte("error: "+err.Error()))
				return
			}
			log.Info().
				Int("buffers", len(buffers)).
				Int("bytes", len(res.Bytes)).
				Bool("discontinuity", res.DiscontinuityDetected).
				Msg("flattened")
			if err := wsutil.WriteServerBinary(conn, res.Bytes); err != nil {
				log.Error().Err(err).Msg("send output")
			}
			return
		}
	}
}
