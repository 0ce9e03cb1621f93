package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mlb/dezoomify-rs/internal/canvas"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/generic"
	"github.com/mlb/dezoomify-rs/internal/fetch"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/tilecache"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

func tilePNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture tile: %v", err)
	}
	return buf.Bytes()
}

func staticGridLevel(t *testing.T, srv *httptest.Server, cols, rows, tileSize int) tile.Level {
	t.Helper()
	refs := make([]tile.Reference, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			refs = append(refs, tile.Reference{
				Position: vec2d.Vec2d{X: col * tileSize, Y: row * tileSize},
				URL:      fmt.Sprintf("%s/tiles/%d-%d.png", srv.URL, col, row),
			})
		}
	}
	size := vec2d.Vec2d{X: cols * tileSize, Y: rows * tileSize}
	return tile.NewStaticLevel("full", size, vec2d.Vec2d{X: tileSize, Y: tileSize}, refs)
}

func TestRunPaintsFullGridSuccessfully(t *testing.T) {
	const cols, rows, tileSize = 3, 2, 16
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tilePNG(t, tileSize, tileSize, color.RGBA{R: 200, G: 10, B: 10, A: 255}))
	}))
	defer srv.Close()

	level := staticGridLevel(t, srv, cols, rows, tileSize)
	out := filepath.Join(t.TempDir(), "out.png")
	cv := canvas.NewMemory(out, canvas.FormatPNG, 50)
	client := fetch.New(fetch.DefaultConfig(), nil)

	result, err := Run(context.Background(), level, cv, client, Options{Parallelism: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Successes != cols*rows {
		t.Fatalf("expected %d successes, got %d", cols*rows, result.Successes)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("expected no failures, got %v", result.Failures)
	}
}

func TestRunAccumulatesPartialFailures(t *testing.T) {
	const cols, rows, tileSize = 2, 2, 16
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tiles/1-1.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(tilePNG(t, tileSize, tileSize, color.RGBA{R: 10, G: 200, B: 10, A: 255}))
	}))
	defer srv.Close()

	level := staticGridLevel(t, srv, cols, rows, tileSize)
	out := filepath.Join(t.TempDir(), "out.png")
	cv := canvas.NewMemory(out, canvas.FormatPNG, 50)
	client := fetch.New(fetch.DefaultConfig(), nil)

	result, err := Run(context.Background(), level, cv, client, Options{Parallelism: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Successes != cols*rows-1 {
		t.Fatalf("expected %d successes, got %d", cols*rows-1, result.Successes)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected exactly one failure, got %v", result.Failures)
	}
	if !fetch.IsNotFound(result.Failures[0].Cause) {
		t.Fatalf("expected the failure to be a not-found error, got %v", result.Failures[0].Cause)
	}
}

func TestRunUsesCacheOnSecondPass(t *testing.T) {
	const size = 16
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(tilePNG(t, size, size, color.RGBA{B: 255, A: 255}))
	}))
	defer srv.Close()

	level := staticGridLevel(t, srv, 1, 1, size)
	client := fetch.New(fetch.DefaultConfig(), nil)
	cache := tilecache.New(t.TempDir())

	for i := 0; i < 2; i++ {
		out := filepath.Join(t.TempDir(), fmt.Sprintf("out-%d.png", i))
		cv := canvas.NewMemory(out, canvas.FormatPNG, 50)
		if _, err := Run(context.Background(), level, cv, client, Options{Parallelism: 1, Cache: cache}); err != nil {
			t.Fatalf("Run pass %d: %v", i, err)
		}
	}
	if hits != 1 {
		t.Fatalf("expected exactly 1 origin request across both passes, got %d", hits)
	}
}

// TestRunDrivesGenericBoundaryDiscovery exercises the Generic dezoomer's
// 404-boundary Iter through a live Run call: a 4x3 grid of tiles served
// behind a {{X}}/{{Y}} template, with everything past the grid returning
// 404, so Run's AxisExhausted feedback must terminate discovery at exactly
// the right edge and the canvas must end up sized to match.
func TestRunDrivesGenericBoundaryDiscovery(t *testing.T) {
	const cols, rows, tileSize = 4, 3, 8
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var col, row int
		if _, err := fmt.Sscanf(r.URL.Path, "/tiles/%d_%d.png", &col, &row); err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if col >= cols || row >= rows {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(tilePNG(t, tileSize, tileSize, color.RGBA{G: 128, A: 255}))
	}))
	defer srv.Close()

	level := generic.NewLevel(srv.URL+"/tiles/{{X}}_{{Y}}.png", tileSize)
	out := filepath.Join(t.TempDir(), "out.png")
	cv := canvas.NewMemory(out, canvas.FormatPNG, 50)
	client := fetch.New(fetch.DefaultConfig(), nil)

	result, err := Run(context.Background(), level, cv, client, Options{Parallelism: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Successes != cols*rows {
		t.Fatalf("expected %d successful tiles, got %d (failures: %v)", cols*rows, result.Successes, result.Failures)
	}
	size, ok := level.SizeHint()
	if !ok {
		t.Fatal("expected the level to have discovered its size")
	}
	want := vec2d.Vec2d{X: cols * tileSize, Y: rows * tileSize}
	if size != want {
		t.Fatalf("discovered size = %s, want %s", size, want)
	}
}
