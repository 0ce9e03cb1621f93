// Package zoomify implements the Zoomify tiled-image protocol: an
// ImageProperties.xml describing overall dimensions and tile size, with
// tiles served from a TileGroup{n}/{level}-{col}-{row}.jpg layout.
package zoomify

import (
	"encoding/xml"
	"fmt"
	"math"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "zoomify"

type imageProperties struct {
	XMLName    xml.Name `xml:"IMAGE_PROPERTIES"`
	Width      int      `xml:"WIDTH,attr"`
	Height     int      `xml:"HEIGHT,attr"`
	TileSize   int      `xml:"TILESIZE,attr"`
	NumTiles   int      `xml:"NUMTILES,attr"`
	NumImages  int      `xml:"NUMIMAGES,attr"`
	Version    string   `xml:"VERSION,attr"`
}

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	propsURL := in.URI
	if in.Data == nil {
		if !looksLikeZoomify(in.URI) {
			return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
		}
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: propsURL}
	}

	var props imageProperties
	if err := xml.Unmarshal(in.Data, &props); err != nil || props.Width == 0 || props.Height == 0 {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "not a Zoomify ImageProperties.xml"}
	}

	base := baseURL(in.URI)
	level := newLevel(base, vec2d.Vec2d{X: props.Width, Y: props.Height}, props.TileSize)
	img := tile.NewStaticImage("", []tile.Level{level})
	return dezoomer.ImagesResult(img), nil
}

func looksLikeZoomify(uri string) bool {
	return strings.Contains(uri, "ImageProperties.xml") || strings.Contains(uri, "TileGroup")
}

func newLevel(base string, size vec2d.Vec2d, tileSize int) tile.Level {
	cols := int(math.Ceil(float64(size.X) / float64(tileSize)))
	rows := int(math.Ceil(float64(size.Y) / float64(tileSize)))

	var refs []tile.Reference
	tilesBeforeLevel := 0
	// Zoomify's TileGroup numbering counts tiles from the smallest (level 0)
	// zoom level upward; without other levels available the count of tiles
	// in lower levels (tilesBeforeLevel) is taken as 0, which matches
	// single-level Zoomify exports.
	tileIndex := 0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			group := (tilesBeforeLevel + tileIndex) / 256
			url := fmt.Sprintf("%s/TileGroup%d/0-%d-%d.jpg", base, group, c, r)
			refs = append(refs, tile.Reference{Position: vec2d.Vec2d{X: c * tileSize, Y: r * tileSize}, URL: url})
			tileIndex++
		}
	}
	return tile.NewStaticLevel("zoomify", size, vec2d.Vec2d{X: tileSize, Y: tileSize}, refs)
}

func baseURL(propsURL string) string {
	idx := strings.LastIndex(propsURL, "/")
	if idx < 0 {
		return propsURL
	}
	return propsURL[:idx]
}
