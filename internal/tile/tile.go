// Package tile defines the polymorphic zoom-level and tile-reference model
// that every dezoomer produces and the orchestrator consumes: a ZoomLevel
// exposes geometry plus a URL-of(x,y) function without committing to any
// concrete tiled-image format.
package tile

import (
	"fmt"

	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

// Reference is a TileReference: where one tile goes on the canvas plus the
// absolute URL to fetch it from. Immutable once produced.
type Reference struct {
	// Position is the tile's destination origin on the canvas, in pixels.
	Position vec2d.Vec2d
	URL      string
	// Headers are per-tile headers declared by the owning ZoomLevel (e.g.
	// signed-URL cookies); they are layered over the fetcher's default and
	// configured headers.
	Headers map[string]string
	// Probe marks a reference issued purely to test whether a grid extends
	// this far (the Generic dezoomer's boundary discovery): a 404 on a
	// probe reference is a structural signal, not a failed tile, and must
	// not count toward partial-download accounting.
	Probe bool
}

func (r Reference) String() string {
	return fmt.Sprintf("tile@%s <- %s", r.Position, r.URL)
}

// PostProcessFunc lets a dezoomer transform freshly downloaded tile bytes
// before they reach the decoder (for example, to decrypt them). No
// dezoomer in this module sets one.
type PostProcessFunc func(ref Reference, body []byte) ([]byte, error)

// Batch is one pull of tile references from a Level's iterator. Dezoomers
// that don't know their full grid ahead of time (Generic) yield successive
// batches and inspect FetchResult before producing the next one.
type Batch struct {
	Refs []Reference
	// Done is true when this was the final batch the level will produce.
	Done bool
}

// FetchResult summarizes what happened to the previous batch, fed back into
// the iterator so it can decide the next one (used by Generic's edge
// discovery: a row/column terminates at the first structural 404).
type FetchResult struct {
	Count, Successes int
	// AxisExhausted lets a row/column-oriented level know it hit its edge.
	AxisExhausted map[string]bool
	// Size is the decoded pixel size of the tile that was fetched, valid
	// only when Successes == 1: Generic's boundary iterator uses it to
	// place and size its grid from real tile dimensions rather than an
	// assumed nominal one.
	Size vec2d.Vec2d
}

// Iter is a pull-based sequence of tile-reference batches produced by a
// Level. Most levels return a single, complete batch; Generic yields one
// probe tile per batch.
type Iter interface {
	// Next returns the next batch to fetch, or ok=false when exhausted.
	// lastResult is nil on the very first call.
	Next(lastResult *FetchResult) (batch Batch, ok bool)
}

// StaticIter wraps a single, already fully known list of references as an
// Iter, which covers the common case (Zoomify, DeepZoom, IIIF, Krpano...).
type StaticIter struct {
	refs []Reference
	done bool
}

// NewStaticIter builds an Iter that yields refs in a single batch.
func NewStaticIter(refs []Reference) *StaticIter {
	return &StaticIter{refs: refs}
}

func (s *StaticIter) Next(_ *FetchResult) (Batch, bool) {
	if s.done {
		return Batch{}, false
	}
	s.done = true
	return Batch{Refs: s.refs, Done: true}, true
}

// Level is a ZoomLevel: one resolution of one image. Implementations are
// invariant: SizeHint, when known, must be >= 1x1, the
// union of every reference's destination rectangle must partition the
// canvas exactly, and each rectangle's size must equal its decoded tile's
// pixel size.
type Level interface {
	// Name is a short human-readable label ("2048x1536", "level 3", ...).
	Name() string
	// SizeHint returns the level's pixel dimensions, when known up front.
	// Generic-style levels that discover their size via 404 probing return
	// ok=false until discovery completes.
	SizeHint() (size vec2d.Vec2d, ok bool)
	// TileSize returns the nominal tile size for this level, when uniform.
	TileSize() (size vec2d.Vec2d, ok bool)
	// Headers are HTTP headers this level wants injected into every tile
	// request (e.g. an auth cookie extracted from the manifest).
	Headers() map[string]string
	// PostProcess is applied to each tile's raw bytes right after fetch.
	PostProcess() PostProcessFunc
	// Iter starts a new traversal of this level's tile references.
	Iter() Iter
}

// Image is a ZoomableImage: an addressable image as seen by the user,
// produced by a dezoomer and consumed by the image/level selectors.
type Image interface {
	// Title returns a display title, when the source provides one.
	Title() (title string, ok bool)
	// Levels returns this image's zoom levels as a non-empty ordered
	// sequence, highest detail last by convention (dezoomers are free to
	// choose an order; the level selector does not assume monotonicity
	// beyond what its own selection rules require).
	Levels() ([]Level, error)
}
