package canvas

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

//go:embed viewer.html
var iiifViewerTemplate []byte

// iiifInfo mirrors the IIIF Image API 2.x info.json shape closely enough
// for a round-trip: greut/iiif's Image struct (iiif/types.go) is the
// grounding for this layout.
type iiifInfo struct {
	Context  string `json:"@context"`
	ID       string `json:"@id"`
	Protocol string `json:"protocol"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Profile  []any  `json:"profile"`
}

// IIIF is the IIIF output canvas variant: the destination is a directory,
// each incoming tile is (re)encoded as its own JPEG at a canonical IIIF
// Image Request path, plus info.json and a viewer.html copied verbatim.
type IIIF struct {
	dir  string
	size vec2d.Vec2d
	set  bool
}

// NewIIIF builds an IIIF canvas rooted at dir.
func NewIIIF(dir string) *IIIF { return &IIIF{dir: dir} }

func (c *IIIF) Destination() string { return c.dir }

func (c *IIIF) SetSize(size vec2d.Vec2d) error {
	if size.X < 1 || size.Y < 1 {
		return &Error{Kind: ErrorUnknown, Msg: fmt.Sprintf("invalid canvas size %s", size)}
	}
	c.size = size
	c.set = true
	return os.MkdirAll(c.dir, 0o755)
}

// AddTile writes one tile to {out}/{W},{H}/full/{w},/0/default.jpg per IIIF
// 2.1 section "Image Request URI Syntax".
func (c *IIIF) AddTile(t Tile) error {
	if !c.set {
		if err := c.SetSize(t.Position.Add(t.Size())); err != nil {
			return err
		}
	}
	size := t.Size()
	regionDir := filepath.Join(c.dir, fmt.Sprintf("%d,%d", c.size.X, c.size.Y), "full",
		fmt.Sprintf("%d,", size.X), "0")
	if err := os.MkdirAll(regionDir, 0o755); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "creating IIIF tile directory", Cause: err}
	}
	f, err := os.Create(filepath.Join(regionDir, "default.jpg"))
	if err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "creating IIIF tile file", Cause: err}
	}
	defer f.Close()
	if err := jpeg.Encode(f, t.Image, &jpeg.Options{Quality: 90}); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "encoding IIIF tile", Cause: err}
	}
	return nil
}

// Finalize writes info.json and viewer.html into the output directory.
func (c *IIIF) Finalize() error {
	if !c.set {
		return &Error{Kind: ErrorUnknown, Msg: "no tiles were ever painted, canvas has no size"}
	}
	info := iiifInfo{
		Context:  "http://iiif.io/api/image/2/context.json",
		ID:       "file://" + c.dir,
		Protocol: "http://iiif.io/api/image",
		Width:    c.size.X,
		Height:   c.size.Y,
		Profile:  []any{"http://iiif.io/api/image/2/level0.json"},
	}
	infoBytes, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "marshaling info.json", Cause: err}
	}
	if err := os.WriteFile(filepath.Join(c.dir, "info.json"), infoBytes, 0o644); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "writing info.json", Cause: err}
	}
	if err := os.WriteFile(filepath.Join(c.dir, "viewer.html"), iiifViewerTemplate, 0o644); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "writing viewer.html", Cause: err}
	}
	return nil
}
