package flatten

import (
	"fmt"

	"github.com/tetsuo/mp4flat"
)

// ParseInit extracts the first video track's configuration from an init
// segment. The stsd box (and the ftyp, when present) are copied verbatim
// for reuse in the output.
func ParseInit(buf []byte) (*TrackConfig, error) {
	boxes, err := mp4flat.Walk(buf, 0, int64(len(buf)))
	if err != nil {
		return nil, err
	}

	moov, ok := mp4flat.FindBox(boxes, mp4flat.TypeMoov)
	if !ok {
		return nil, ErrMissingMoov
	}

	var ftyp []byte
	if fb, ok := mp4flat.FindBox(boxes, mp4flat.TypeFtyp); ok {
		ftyp = append([]byte(nil), buf[fb.Start:fb.End()]...)
	}

	r := mp4flat.NewReaderRange(buf, int(moov.DataStart()), int(moov.End()))
	for r.Next() {
		if r.Type() != mp4flat.TypeTrak {
			continue
		}
		cfg, ok, err := parseTrak(&r)
		if err != nil {
			return nil, err
		}
		if ok {
			cfg.Ftyp = ftyp
			return cfg, nil
		}
	}
	return nil, ErrNoVideoTrack
}

// parseTrak decodes one trak. Returns ok=false when the track is not video;
// a video track with missing or malformed headers is an error.
func parseTrak(r *mp4flat.Reader) (*TrackConfig, bool, error) {
	trakOffset := r.Offset()

	var (
		cfg      TrackConfig
		haveTkhd bool
		haveMdhd bool
		isVideo  bool
	)

	r.Enter()
	for r.Next() {
		switch r.Type() {
		case mp4flat.TypeTkhd:
			trackID, _, w, h := r.ReadTkhd()
			cfg.TrackID = trackID
			cfg.Width = w >> 16
			cfg.Height = h >> 16
			haveTkhd = true

		case mp4flat.TypeMdia:
			r.Enter()
			for r.Next() {
				switch r.Type() {
				case mp4flat.TypeHdlr:
					isVideo = r.ReadHdlr() == [4]byte{'v', 'i', 'd', 'e'}

				case mp4flat.TypeMdhd:
					if r.Version() > 1 {
						err := fmt.Errorf("%w: version %d at offset %d", ErrUnsupportedMdhdVersion, r.Version(), r.Offset())
						r.Exit()
						r.Exit()
						return nil, false, err
					}
					ts, _, _ := r.ReadMdhd()
					cfg.Timescale = ts
					haveMdhd = true

				case mp4flat.TypeMinf:
					r.Enter()
					for r.Next() {
						if r.Type() != mp4flat.TypeStbl {
							continue
						}
						r.Enter()
						for r.Next() {
							if r.Type() == mp4flat.TypeStsd {
								cfg.Stsd = append([]byte(nil), r.RawBox()...)
							}
						}
						r.Exit()
					}
					r.Exit()
				}
			}
			r.Exit()
		}
	}
	r.Exit()

	if !isVideo {
		return nil, false, nil
	}
	if !haveTkhd {
		return nil, false, fmt.Errorf("%w: trak at offset %d", ErrMissingTkhd, trakOffset)
	}
	if !haveMdhd {
		return nil, false, fmt.Errorf("%w: trak at offset %d", ErrMissingMdhd, trakOffset)
	}
	if cfg.Stsd == nil {
		return nil, false, fmt.Errorf("%w: trak at offset %d", ErrMissingStsd, trakOffset)
	}
	return &cfg, true, nil
}
