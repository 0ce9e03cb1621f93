package canvas

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

// gridTiles splits a size.X x size.Y canvas into tileSize chunks, each
// filled with a distinct color derived from its position, and returns them
// alongside the reference image they must reconstruct.
func gridTiles(size, tileSize vec2d.Vec2d) ([]Tile, image.Image) {
	ref := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	var tiles []Tile
	for y := 0; y < size.Y; y += tileSize.Y {
		for x := 0; x < size.X; x += tileSize.X {
			w, h := tileSize.X, tileSize.Y
			if x+w > size.X {
				w = size.X - x
			}
			if y+h > size.Y {
				h = size.Y - y
			}
			c := color.RGBA{
				R: uint8((x * 7) % 251),
				G: uint8((y * 13) % 251),
				B: uint8((x+y)%251 + 1),
				A: 255,
			}
			img := image.NewRGBA(image.Rect(0, 0, w, h))
			for dy := 0; dy < h; dy++ {
				for dx := 0; dx < w; dx++ {
					img.SetRGBA(dx, dy, c)
					ref.SetRGBA(x+dx, y+dy, c)
				}
			}
			tiles = append(tiles, Tile{Image: img, Position: vec2d.Vec2d{X: x, Y: y}})
		}
	}
	return tiles, ref
}

func renderStreaming(t *testing.T, size, tileSize vec2d.Vec2d, order []int, tiles []Tile) []byte {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	s := NewStreaming(path)
	if err := s.SetSize(size); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	for _, idx := range order {
		if err := s.AddTile(tiles[idx]); err != nil {
			t.Fatalf("AddTile(%d): %v", idx, err)
		}
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return data
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	return img
}

func imagesEqual(a, b image.Image) bool {
	ba, bb := a.Bounds(), b.Bounds()
	if ba.Dx() != bb.Dx() || ba.Dy() != bb.Dy() {
		return false
	}
	for y := 0; y < ba.Dy(); y++ {
		for x := 0; x < ba.Dx(); x++ {
			ar, ag, ab, aa := a.At(ba.Min.X+x, ba.Min.Y+y).RGBA()
			br, bg, bb_, ba_ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if ar != br || ag != bg || ab != bb_ || aa != ba_ {
				return false
			}
		}
	}
	return true
}

func TestStreamingSequentialFill(t *testing.T) {
	size := vec2d.Vec2d{X: 16, Y: 12}
	tileSize := vec2d.Vec2d{X: 4, Y: 4}
	tiles, ref := gridTiles(size, tileSize)

	order := make([]int, len(tiles))
	for i := range order {
		order[i] = i
	}
	data := renderStreaming(t, size, tileSize, order, tiles)
	got := decodePNG(t, data)
	if !imagesEqual(got, ref) {
		t.Fatalf("sequential fill did not reconstruct the reference image")
	}
}

// TestStreamingShuffledArrivalOrder checks that regardless of the order
// tiles arrive in, as long as no tile arrives after its rows have already
// been flushed, the decoded pixels match a canonical in-order render.
func TestStreamingShuffledArrivalOrder(t *testing.T) {
	size := vec2d.Vec2d{X: 24, Y: 20}
	tileSize := vec2d.Vec2d{X: 4, Y: 5}
	tiles, ref := gridTiles(size, tileSize)

	inOrder := make([]int, len(tiles))
	for i := range inOrder {
		inOrder[i] = i
	}
	canonical := renderStreaming(t, size, tileSize, inOrder, tiles)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]int(nil), inOrder...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		// A shuffled order can still violate row-monotonicity (a tile whose
		// whole row band lies above rows already flushed by an earlier
		// tile in this permutation). safeRowOrder rearranges each
		// permutation so it cannot trigger that invariant violation: this property test is
		// about order-independence of the *result*, not about the
		// regression detector, which has its own test below. Since tiles
		// here are on a uniform grid with row-major bands, any order where
		// each row's tiles arrive before the next row starts flushing is
		// safe; sorting by row start guarantees that regardless of
		// interleaving within a row band.
		data := renderStreaming(t, size, tileSize, safeRowOrder(shuffled, tiles, tileSize.Y), tiles)
		got := decodePNG(t, data)
		if !imagesEqual(got, ref) {
			t.Fatalf("trial %d: shuffled order produced a different image than canonical order", trial)
		}
		if trial < 3 && !bytes.Equal(data, canonical) {
			// Deflate output can vary if row order within a completed
			// prefix differs, so only compare decoded pixels above; this
			// branch documents that raw bytes are not asserted equal.
			_ = data
		}
	}
}

// safeRowOrder reorders indices so that all tiles whose vertical band starts
// at a smaller row come no later than tiles starting at a larger row,
// preserving the shuffled relative order *within* a row band. This mirrors
// real dezoomer traversal, which can interleave columns within a row of
// tiles but won't jump whole rows backwards after they were already
// completed and flushed.
func safeRowOrder(order []int, tiles []Tile, tileHeight int) []int {
	out := append([]int(nil), order...)
	rowOf := func(idx int) int { return tiles[idx].Position.Y / tileHeight }
	// stable insertion sort by row, preserving shuffled order within a row
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && rowOf(out[j-1]) > rowOf(out[j]) {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}

func TestStreamingDetectsRowRegression(t *testing.T) {
	size := vec2d.Vec2d{X: 8, Y: 8}
	dir := t.TempDir()
	s := NewStreaming(filepath.Join(dir, "out.png"))
	if err := s.SetSize(size); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	full := image.NewRGBA(image.Rect(0, 0, 8, 1))
	if err := s.AddTile(Tile{Image: full, Position: vec2d.Vec2d{X: 0, Y: 0}}); err != nil {
		t.Fatalf("first AddTile: %v", err)
	}
	// Row 0 is now flushed (yNext=1). A tile whose bottom is <= 1 must fail.
	late := image.NewRGBA(image.Rect(0, 0, 8, 1))
	err := s.AddTile(Tile{Image: late, Position: vec2d.Vec2d{X: 0, Y: 0}})
	if err == nil {
		t.Fatal("expected a row-regression error for a tile arriving after its row was flushed")
	}
	canvasErr, ok := err.(*Error)
	if !ok || canvasErr.Kind != ErrorRowRegression {
		t.Fatalf("expected ErrorRowRegression, got %#v", err)
	}
}

func TestStreamingFinalizePadsIncompleteRows(t *testing.T) {
	size := vec2d.Vec2d{X: 4, Y: 4}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	s := NewStreaming(path)
	if err := s.SetSize(size); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	top := image.NewRGBA(image.Rect(0, 0, 4, 2))
	if err := s.AddTile(Tile{Image: top, Position: vec2d.Vec2d{X: 0, Y: 0}}); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	// Never paint the bottom two rows; Finalize must still succeed by
	// padding them rather than hanging or erroring.
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize with incomplete rows: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	img := decodePNG(t, data)
	if img.Bounds().Dy() != 4 {
		t.Fatalf("expected padded output height 4, got %d", img.Bounds().Dy())
	}
	r, g, b, a := img.At(0, 3).RGBA()
	if r != 0 || g != 0 || b != 0 || a != 0 {
		t.Fatalf("expected padded row to be transparent, got %d,%d,%d,%d", r, g, b, a)
	}
}
