package generic

import (
	"testing"

	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

// TestBoundaryIterDiscoversGrid drives the iterator by hand, simulating a
// server that serves columns 0-3 and rows 0-2 (a 4x3 grid) and 404s
// elsewhere.
func TestBoundaryIterDiscoversGrid(t *testing.T) {
	it := newTestIter()

	const cols, rows = 4, 3
	var fetched []tile.Reference
	var last *tile.FetchResult

	for i := 0; i < 1000; i++ {
		batch, ok := it.Next(last)
		if !ok {
			break
		}
		ref := batch.Refs[0]
		col, row := gridIndex(it, ref)
		exists := col < cols && row < rows
		last = &tile.FetchResult{AxisExhausted: map[string]bool{}}
		if exists {
			fetched = append(fetched, ref)
			last.Successes = 1
			last.Size = vec2d.Vec2d{X: 100, Y: 100}
		} else if row >= rows {
			last.AxisExhausted["y"] = true
		} else {
			last.AxisExhausted["x"] = true
		}
	}

	if len(fetched) != cols*rows {
		t.Fatalf("expected %d successful tiles, got %d", cols*rows, len(fetched))
	}
	w, h, ok := sizeOf(it)
	if !ok {
		t.Fatal("expected level size to be discovered")
	}
	if w != cols*100 || h != rows*100 {
		t.Fatalf("expected discovered size %dx%d, got %dx%d", cols*100, rows*100, w, h)
	}
}

// TestBoundaryIterUsesRealTileSizeForEdges simulates a grid whose last
// column and last row are narrower/shorter than the interior tiles, the
// way a real tiled image is cut: the discovered size must be the sum of
// the actual served tile sizes, not knownCols/knownRows times a nominal
// tile size.
func TestBoundaryIterUsesRealTileSizeForEdges(t *testing.T) {
	it := newTestIter()

	// 3 columns wide (100, 100, 60), 2 rows tall (100, 40).
	colWidths := []int{100, 100, 60}
	rowHeights := []int{100, 40}
	const cols, rows = 3, 2

	var last *tile.FetchResult
	var fetchedCount int

	for i := 0; i < 1000; i++ {
		batch, ok := it.Next(last)
		if !ok {
			break
		}
		ref := batch.Refs[0]
		col, row := gridIndex(it, ref)
		exists := col < cols && row < rows
		last = &tile.FetchResult{AxisExhausted: map[string]bool{}}
		if exists {
			fetchedCount++
			last.Successes = 1
			last.Size = vec2d.Vec2d{X: colWidths[col], Y: rowHeights[row]}
		} else if row >= rows {
			last.AxisExhausted["y"] = true
		} else {
			last.AxisExhausted["x"] = true
		}
	}

	if fetchedCount != cols*rows {
		t.Fatalf("expected %d successful tiles, got %d", cols*rows, fetchedCount)
	}
	w, h, ok := sizeOf(it)
	if !ok {
		t.Fatal("expected level size to be discovered")
	}
	wantW := colWidths[0] + colWidths[1] + colWidths[2]
	wantH := rowHeights[0] + rowHeights[1]
	if w != wantW || h != wantH {
		t.Fatalf("expected discovered size %dx%d (sum of real tile sizes), got %dx%d", wantW, wantH, w, h)
	}
}

func newTestIter() *boundaryIter {
	return &boundaryIter{
		level:      &Level{},
		tileSize:   100,
		knownCols:  -1,
		colOffsets: []int{0},
		rowOffsets: []int{0},
	}
}

// gridIndex reports the (col, row) grid coordinates of the probe reference
// Next just returned, tracked by the iterator itself since positions are no
// longer a fixed multiple of a nominal tile size.
func gridIndex(it *boundaryIter, ref tile.Reference) (col, row int) {
	_ = ref
	return it.lastCol, it.lastRow
}

func sizeOf(it *boundaryIter) (int, int, bool) {
	size, ok := it.level.SizeHint()
	return size.X, size.Y, ok
}
