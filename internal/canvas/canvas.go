// Package canvas implements the composite/encode side of the pipeline:
// compositing decoded tiles onto an image and emitting PNG, JPEG, or an
// IIIF tile directory, from arbitrary destination rectangles rather than a
// fixed tile grid, plus a streaming row-banded PNG writer for images too
// large to hold in memory whole.
package canvas

import (
	"fmt"
	"image"

	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

// Tile is a CanvasTile: a decoded pixel buffer, its destination rectangle,
// and an optional ICC profile.
type Tile struct {
	Image      image.Image
	Position   vec2d.Vec2d
	ICCProfile []byte
}

// Size returns the tile's pixel dimensions.
func (t Tile) Size() vec2d.Vec2d {
	b := t.Image.Bounds()
	return vec2d.Vec2d{X: b.Dx(), Y: b.Dy()}
}

// ErrorKind classifies a canvas failure.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorRowRegression
	ErrorEncoding
	ErrorFormatLimitExceeded
)

// Error is a canvas failure. Canvas errors are always fatal to the
// download: there is no partial-canvas retry.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("canvas error: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("canvas error: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Canvas is the write-side abstraction every orchestrator drives: tiles
// arrive in arbitrary order, are painted, and Finalize produces the output
// file. Implementations are mutated by exactly one goroutine: the
// orchestrator's painter.
type Canvas interface {
	// SetSize provides the final pixel dimensions as soon as they are
	// known; some dezoomers (Generic) only learn this mid-download.
	SetSize(size vec2d.Vec2d) error
	// AddTile paints one decoded tile. Out-of-bounds pixels are clipped,
	// never causing a panic.
	AddTile(t Tile) error
	// Finalize completes the output: encodes and flushes to disk. It must
	// leave no corrupt partial file behind on failure.
	Finalize() error
	// Destination returns the output path, for logging/error messages.
	Destination() string
}
