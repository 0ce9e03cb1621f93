// Package deepzoom implements Microsoft DeepZoom (.dzi): an XML descriptor
// naming overall size and tile format, tiles served from a
// {name}_files/{level}/{col}_{row}.{ext} pyramid where level 0 is a single
// 1x1 pixel and the top level is the full image.
package deepzoom

import (
	"encoding/xml"
	"fmt"
	"math"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "deepzoom"

type dziImage struct {
	XMLName    xml.Name `xml:"Image"`
	Format     string   `xml:"Format,attr"`
	TileSize   int      `xml:"TileSize,attr"`
	Overlap    int      `xml:"Overlap,attr"`
	Size       dziSize  `xml:"Size"`
}

type dziSize struct {
	Width  int `xml:"Width,attr"`
	Height int `xml:"Height,attr"`
}

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	if in.Data == nil {
		if !strings.HasSuffix(strings.ToLower(in.URI), ".dzi") && !strings.Contains(in.URI, "_files/") {
			return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
		}
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: in.URI}
	}

	var img dziImage
	if err := xml.Unmarshal(in.Data, &img); err != nil || img.Size.Width == 0 || img.Format == "" {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "not a DeepZoom .dzi descriptor"}
	}

	filesBase := strings.TrimSuffix(in.URI, ".dzi") + "_files"
	maxLevel := int(math.Ceil(math.Log2(math.Max(float64(img.Size.Width), float64(img.Size.Height)))))

	var levels []tile.Level
	for lvl := 0; lvl <= maxLevel; lvl++ {
		scale := math.Pow(2, float64(maxLevel-lvl))
		size := vec2d.Vec2d{
			X: int(math.Ceil(float64(img.Size.Width) / scale)),
			Y: int(math.Ceil(float64(img.Size.Height) / scale)),
		}
		if size.X < 1 || size.Y < 1 {
			continue
		}
		levels = append(levels, newLevel(filesBase, lvl, size, img.TileSize, img.Overlap, img.Format))
	}
	if len(levels) == 0 {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "empty pyramid"}
	}

	title := strings.TrimSuffix(baseName(in.URI), ".dzi")
	return dezoomer.ImagesResult(tile.NewStaticImage(title, levels)), nil
}

func newLevel(filesBase string, lvl int, size vec2d.Vec2d, tileSize, overlap int, format string) tile.Level {
	cols := int(math.Ceil(float64(size.X) / float64(tileSize)))
	rows := int(math.Ceil(float64(size.Y) / float64(tileSize)))

	var refs []tile.Reference
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			url := fmt.Sprintf("%s/%d/%d_%d.%s", filesBase, lvl, c, r, format)
			// overlap isn't cropped out of the fetched tile: an overlapping
			// tile is painted at its untrimmed position, so its border pixels
			// simply get overwritten by whichever neighboring tile paints
			// last rather than being clipped away.
			_ = overlap
			refs = append(refs, tile.Reference{Position: vec2d.Vec2d{X: c * tileSize, Y: r * tileSize}, URL: url})
		}
	}
	return tile.NewStaticLevel(fmt.Sprintf("level %d (%dx%d)", lvl, size.X, size.Y), size, vec2d.Vec2d{X: tileSize, Y: tileSize}, refs)
}

func baseName(uri string) string {
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}
