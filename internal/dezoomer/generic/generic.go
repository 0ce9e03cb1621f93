// Package generic implements the Generic/URL-template dezoomer: the user
// supplies a URL containing {{X}} and {{Y}} tokens (with optional zero-pad
// width via {{X:03}}) and the true grid size is discovered by probing,
// relying on the fetcher's "404 is terminal, never retried" rule to find
// each axis's edge.
package generic

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "generic"

// DefaultTileSize is used both to lay out probe positions and as the
// nominal tile size reported to the canvas; real per-tile dimensions come
// from the decoder and the canvas clips against them.
const DefaultTileSize = 256

var tokenPattern = regexp.MustCompile(`\{\{(X|Y)(?::0(\d+))?\}\}`)

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	if !strings.Contains(in.URI, "{{X}}") && !strings.Contains(in.URI, "{{Y}}") && !tokenPattern.MatchString(in.URI) {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
	}
	level := NewLevel(in.URI, DefaultTileSize)
	return dezoomer.ImagesResult(tile.NewStaticImage("", []tile.Level{level})), nil
}

// Level is Generic's ZoomLevel: its size is unknown until boundaryIter's
// probing has run to completion, at which point SizeHint reports it.
type Level struct {
	template   string
	tileSize   int
	discovered vec2d.Vec2d
	hasSize    bool
}

func NewLevel(template string, tileSize int) *Level {
	return &Level{template: template, tileSize: tileSize}
}

func (l *Level) Name() string { return "generic template" }

func (l *Level) SizeHint() (vec2d.Vec2d, bool) { return l.discovered, l.hasSize }

func (l *Level) TileSize() (vec2d.Vec2d, bool) {
	return vec2d.Vec2d{X: l.tileSize, Y: l.tileSize}, true
}

func (l *Level) Headers() map[string]string { return nil }

func (l *Level) PostProcess() tile.PostProcessFunc { return nil }

func (l *Level) Iter() tile.Iter {
	return &boundaryIter{
		level:      l,
		tileSize:   l.tileSize,
		template:   l.template,
		knownCols:  -1,
		colOffsets: []int{0},
		rowOffsets: []int{0},
	}
}

// boundaryIter walks the grid row-then-column, treating the first 404 on an
// axis as that axis's edge: a 2x2 grid is discovered from exactly two
// 404s. Probe positions and the final discovered size come from the real
// decoded size of each tile fetched along row 0 and column 0, since edge
// tiles in a real grid are routinely smaller than the interior tile size.
// colOffsets[c] is the cumulative x-offset of column c, built as row 0 is
// walked; rowOffsets[r] is the cumulative y-offset of row r, built as
// column 0 is walked. Both start at [0]. Because traversal is row-then-
// column, colOffsets is fully populated (0..knownCols) before any row
// beyond 0 is generated, and rowOffsets[r] is always known before row r's
// tiles are placed, since column 0 of row r is fetched before column 0 of
// row r+1.
type boundaryIter struct {
	level    *Level
	template string
	tileSize int

	col, row         int
	lastCol, lastRow int
	knownCols        int // -1 until the column axis is exhausted
	xExhausted       bool
	yExhausted       bool
	done             bool

	colOffsets []int
	rowOffsets []int
}

func (it *boundaryIter) Next(lastResult *tile.FetchResult) (tile.Batch, bool) {
	if it.done {
		return tile.Batch{}, false
	}
	if lastResult != nil {
		if lastResult.Successes == 1 {
			if it.lastRow == 0 {
				it.colOffsets = append(it.colOffsets, it.colOffsets[len(it.colOffsets)-1]+lastResult.Size.X)
			}
			if it.lastCol == 0 {
				it.rowOffsets = append(it.rowOffsets, it.rowOffsets[len(it.rowOffsets)-1]+lastResult.Size.Y)
			}
		}
		if lastResult.AxisExhausted["x"] && !it.xExhausted {
			it.xExhausted = true
			if it.knownCols < 0 {
				it.knownCols = it.lastCol
			}
		}
		if lastResult.AxisExhausted["y"] && it.lastCol == 0 {
			it.yExhausted = true
		}
	}

	if it.yExhausted {
		it.done = true
		if it.level != nil {
			it.level.discovered = vec2d.Vec2d{X: it.colOffsets[it.knownCols], Y: it.rowOffsets[it.lastRow]}
			it.level.hasSize = true
		}
		return tile.Batch{}, false
	}

	if it.knownCols >= 0 && it.col >= it.knownCols {
		it.col = 0
		it.row++
		it.xExhausted = false
	}

	it.lastCol, it.lastRow = it.col, it.row
	ref := tile.Reference{
		Position: vec2d.Vec2d{X: it.colOffsets[it.col], Y: it.rowOffsets[it.row]},
		URL:      expand(it.template, it.col, it.row),
		Probe:    true,
	}
	it.col++

	return tile.Batch{Refs: []tile.Reference{ref}}, true
}

func expand(template string, x, y int) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		m := tokenPattern.FindStringSubmatch(tok)
		var v int
		if m[1] == "X" {
			v = x
		} else {
			v = y
		}
		if m[2] != "" {
			width, _ := strconv.Atoi(m[2])
			return padZero(v, width)
		}
		return strconv.Itoa(v)
	})
}

func padZero(v, width int) string {
	s := strconv.Itoa(v)
	for len(s) < width {
		s = "0" + s
	}
	return s
}
