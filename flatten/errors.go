package flatten

import "errors"

// Structural errors: a required box is absent or malformed. Wrapped values
// carry the box type and byte offset; test with errors.Is.
var (
	ErrMissingMoov     = errors.New("flatten: missing moov box")
	ErrNoVideoTrack    = errors.New("flatten: no video track")
	ErrMissingTkhd     = errors.New("flatten: missing tkhd box")
	ErrMissingMdhd     = errors.New("flatten: missing mdhd box")
	ErrMissingStsd     = errors.New("flatten: missing stsd box")
	ErrNoMoof          = errors.New("flatten: no moof box")
	ErrMoofWithoutMdat = errors.New("flatten: moof without mdat")
	ErrMissingTfhd     = errors.New("flatten: missing tfhd box")
	ErrMissingTfdt     = errors.New("flatten: missing tfdt box")
	ErrMissingTrun     = errors.New("flatten: missing trun box")
)

// Version errors: the box exists but uses a version this package does not
// decode.
var (
	ErrUnsupportedTfdtVersion = errors.New("flatten: unsupported tfdt version")
	ErrUnsupportedMdhdVersion = errors.New("flatten: unsupported mdhd version")
)

// Numeric and range errors.
var (
	ErrChunkOffsetOverflow   = errors.New("flatten: chunk offset overflow")
	ErrMdatRangeMismatch     = errors.New("flatten: sample range outside mdat payload")
	ErrMissingSampleSize     = errors.New("flatten: missing sample size")
	ErrMissingTrunDataOffset = errors.New("flatten: missing trun data offset")
)

// Input errors.
var (
	ErrNoInitSegment   = errors.New("flatten: no init segment")
	ErrEmptySampleList = errors.New("flatten: empty sample list")
)
