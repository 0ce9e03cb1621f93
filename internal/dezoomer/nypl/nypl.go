// Package nypl scrapes the New York Public Library digital collections
// viewer page for the embedded Leaflet/IIIF tile source JSON it ships
// inline, since NYPL exposes no separate machine-readable manifest.
package nypl

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "nypl"

const tileSize = 256

// captureJSON matches the shape NYPL embeds as `window.__APP_CONFIG__` or
// similar inline JSON blobs naming a highRes image and its dimensions.
type captureJSON struct {
	ImageID   string `json:"imageID"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	TileSource string `json:"tileSource"`
}

var jsonBlobPattern = regexp.MustCompile(`(?s)"imageID"\s*:\s*"[^"]+".{0,400}?\}`)

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	if !strings.Contains(in.URI, "digitalcollections.nypl.org") {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
	}
	if in.Data == nil {
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: in.URI}
	}

	capture, ok := extractCapture(string(in.Data))
	if !ok {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "no embedded capture metadata found"}
	}

	base := fmt.Sprintf("https://images.nypl.org/index.php?id=%s&t=g", capture.ImageID)
	size := vec2d.Vec2d{X: capture.Width, Y: capture.Height}
	cols := (size.X + tileSize - 1) / tileSize
	rows := (size.Y + tileSize - 1) / tileSize

	var refs []tile.Reference
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			url := fmt.Sprintf("%s&x=%d&y=%d&w=%d&h=%d", base, c*tileSize, r*tileSize, tileSize, tileSize)
			refs = append(refs, tile.Reference{Position: vec2d.Vec2d{X: c * tileSize, Y: r * tileSize}, URL: url})
		}
	}
	level := tile.NewStaticLevel("full resolution", size, vec2d.Vec2d{X: tileSize, Y: tileSize}, refs)
	return dezoomer.ImagesResult(tile.NewStaticImage(capture.ImageID, []tile.Level{level})), nil
}

func extractCapture(body string) (captureJSON, bool) {
	m := jsonBlobPattern.FindString(body)
	if m == "" {
		return captureJSON{}, false
	}
	var c captureJSON
	if err := json.Unmarshal([]byte(m), &c); err != nil || c.ImageID == "" || c.Width == 0 {
		return captureJSON{}, false
	}
	return c, true
}
