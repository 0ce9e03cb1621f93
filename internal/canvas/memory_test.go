package canvas

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

func solidTile(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestMemoryCanvasPaintsAndEncodesPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	c := NewMemory(path, FormatPNG, 5)

	if err := c.SetSize(vec2d.Vec2d{X: 4, Y: 4}); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	red := color.RGBA{R: 255, A: 255}
	if err := c.AddTile(Tile{Image: solidTile(2, 2, red), Position: vec2d.Vec2d{X: 2, Y: 2}}); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}

func TestMemoryCanvasClipsOutOfBoundsTile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	c := NewMemory(path, FormatPNG, 5)
	if err := c.SetSize(vec2d.Vec2d{X: 4, Y: 4}); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	// This tile extends past the canvas edge on both axes; it must not panic.
	if err := c.AddTile(Tile{Image: solidTile(4, 4, color.RGBA{G: 255, A: 255}), Position: vec2d.Vec2d{X: 2, Y: 2}}); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestMemoryCanvasGrowsWhenSizeNeverDeclared(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	c := NewMemory(path, FormatPNG, 5)

	// No SetSize call: the canvas must not lock onto this first tile's
	// dimensions the way a size-unknown-up-front download (Generic) hits.
	if err := c.AddTile(Tile{Image: solidTile(2, 2, color.RGBA{R: 255, A: 255}), Position: vec2d.Vec2d{}}); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	if err := c.AddTile(Tile{Image: solidTile(2, 2, color.RGBA{B: 255, A: 255}), Position: vec2d.Vec2d{X: 10, Y: 10}}); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	if c.size.X < 12 || c.size.Y < 12 {
		t.Fatalf("expected canvas to grow to fit both tiles, got size %v", c.size)
	}
	r, g, b, a := c.img.At(11, 11).RGBA()
	if r != 0 || g != 0 || b != 0xffff || a != 0xffff {
		t.Fatalf("second tile's pixel wasn't preserved after growth: %d %d %d %d", r, g, b, a)
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestResolveFormatForcesPNGAboveJPEGLimit(t *testing.T) {
	if got := ResolveFormat(FormatJPEG, vec2d.Vec2d{X: 65535, Y: 65535}); got != FormatJPEG {
		t.Fatalf("65535x65535 should still allow JPEG, got %v", got)
	}
	if got := ResolveFormat(FormatJPEG, vec2d.Vec2d{X: 65536, Y: 100}); got != FormatPNG {
		t.Fatalf("width 65536 must force PNG, got %v", got)
	}
	if got := ResolveFormat(FormatJPEG, vec2d.Vec2d{X: 100, Y: 65536}); got != FormatPNG {
		t.Fatalf("height 65536 must force PNG, got %v", got)
	}
	if got := ResolveFormat(FormatAuto, vec2d.Vec2d{X: 100, Y: 100}); got != FormatJPEG {
		t.Fatalf("auto should default to JPEG for small images, got %v", got)
	}
}

func TestAlphaBlendOpaqueOverOpaqueKeepsColor(t *testing.T) {
	src := [4]byte{10, 20, 30, 255}
	dst := [4]byte{200, 200, 200, 255}
	out := alphaBlend(src, dst)
	if out != src {
		t.Fatalf("fully opaque source should fully replace dest, got %v", out)
	}
}
