package mp4flat

import "errors"

// Errors reported by the byte-level layer. Wrapped values carry the box type
// and byte offset; test with errors.Is.
var (
	// ErrBoxTooLarge means a 64-bit box size does not fit the platform's
	// safe integer range.
	ErrBoxTooLarge = errors.New("mp4flat: box size too large")

	// ErrIntegerTooLarge means a 64-bit field value cannot be narrowed
	// without loss.
	ErrIntegerTooLarge = errors.New("mp4flat: integer too large")
)
