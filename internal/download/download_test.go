package download

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlb/dezoomify-rs/internal/config"
	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/generic"
	"github.com/mlb/dezoomify-rs/internal/fetch"
)

func fixtureTile(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 5, G: 5, B: 5, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return buf.Bytes()
}

func TestPipelineRunResolvesSelectsAndDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var col, row int
		if _, err := fmt.Sscanf(r.URL.Path, "/t/%d_%d.png", &col, &row); err != nil || col >= 2 || row >= 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(fixtureTile(t))
	}))
	defer srv.Close()

	reg := dezoomer.NewRegistry(generic.New())
	client := fetch.New(fetch.DefaultConfig(), nil)

	pipeline := &Pipeline{
		Registry: reg,
		Client:   client,
		Args:     config.Default(),
		Out:      io.Discard,
		In:       strings.NewReader("1\n"),
	}

	outfile := filepath.Join(t.TempDir(), "out.png")
	outcome, err := pipeline.Run(context.Background(), srv.URL+"/t/{{X}}_{{Y}}.png", outfile)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Outfile != outfile {
		t.Fatalf("outfile = %q, want %q", outcome.Outfile, outfile)
	}
	if outcome.Result.Successes != 4 {
		t.Fatalf("expected 4 successful tiles, got %d (failures %v)", outcome.Result.Successes, outcome.Result.Failures)
	}
}
