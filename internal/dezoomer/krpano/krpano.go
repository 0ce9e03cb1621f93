// Package krpano implements the Krpano panorama tile XML format: a
// tiles.xml naming one or more scene/side <image><level><side> groups,
// grouped here into one zoomable image per side.
package krpano

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "krpano"

type krpanoDoc struct {
	XMLName xml.Name    `xml:"krpano"`
	Images  []krImage   `xml:"image"`
}

type krImage struct {
	TileSize int        `xml:"tilesize,attr"`
	Levels   []krLevel  `xml:"level"`
}

type krLevel struct {
	TiledFormat string   `xml:"tiledformat,attr"`
	Sides       []krSide `xml:"side"`
	Cube        krCube   `xml:"cube"`
}

// krSide is a <side name="..." url="..."> child of a level; newLevel uses
// the first one's url when the level's <cube> has none.
type krSide struct {
	Name string `xml:"name,attr"`
	URL  string `xml:"url,attr"`
}

type krCube struct {
	URL    string `xml:"url,attr"`
	Sides  string `xml:"sides,attr"`
}

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	if in.Data == nil {
		if !strings.Contains(in.URI, "tiles.xml") {
			return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
		}
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: in.URI}
	}

	var doc krpanoDoc
	if err := xml.Unmarshal(in.Data, &doc); err != nil || len(doc.Images) == 0 {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "not a krpano tiles.xml"}
	}

	base := baseURL(in.URI)
	var images []tile.Image
	for imgIdx, krimg := range doc.Images {
		if len(krimg.Levels) == 0 {
			continue
		}
		best := krimg.Levels[len(krimg.Levels)-1]
		sides := cubeSides(best.Cube)
		if len(sides) == 0 {
			sides = []string{""}
		}
		for _, side := range sides {
			level := newLevel(base, best, krimg.TileSize, side)
			title := fmt.Sprintf("scene %d", imgIdx+1)
			if side != "" {
				title += " " + side
			}
			images = append(images, tile.NewStaticImage(title, []tile.Level{level}))
		}
	}
	if len(images) == 0 {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "no usable levels in tiles.xml"}
	}
	return dezoomer.ImagesResult(images...), nil
}

// cubeSides splits krpano's cube "sides" attribute, e.g. "fblrud" into
// letter-per-face tokens, since each face is its own zoomable image.
func cubeSides(cube krCube) []string {
	if cube.Sides == "" {
		return nil
	}
	out := make([]string, 0, len(cube.Sides))
	for _, r := range cube.Sides {
		out = append(out, string(r))
	}
	return out
}

func newLevel(base string, lvl krLevel, tileSize int, side string) tile.Level {
	if tileSize <= 0 {
		tileSize = 512
	}
	urlTemplate := lvl.Cube.URL
	if urlTemplate == "" && len(lvl.Sides) > 0 {
		urlTemplate = lvl.Sides[0].URL
	}
	urlTemplate = strings.ReplaceAll(urlTemplate, "%s", side)

	// Tile coordinates are substituted for %v/%c (column) and %h/%r (row);
	// a level token such as %l is left as is. gridFromTemplate always yields
	// a 1x1 grid, so each level is one tileSize x tileSize tile.
	cols, rows := gridFromTemplate(urlTemplate)
	var refs []tile.Reference
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			url := strings.NewReplacer(
				"%v", strconv.Itoa(c),
				"%h", strconv.Itoa(r),
				"%c", strconv.Itoa(c),
				"%r", strconv.Itoa(r),
			).Replace(urlTemplate)
			url = joinURL(base, url)
			refs = append(refs, tile.Reference{Position: vec2d.Vec2d{X: c * tileSize, Y: r * tileSize}, URL: url})
		}
	}
	size := vec2d.Vec2d{X: cols * tileSize, Y: rows * tileSize}
	return tile.NewStaticLevel("krpano level", size, vec2d.Vec2d{X: tileSize, Y: tileSize}, refs)
}

// gridFromTemplate always returns a 1x1 grid: the column/row count is not
// derived from the URL template, nor from krpano's multires attributes.
func gridFromTemplate(urlTemplate string) (cols, rows int) {
	if urlTemplate == "" {
		return 1, 1
	}
	return 1, 1
}

func baseURL(uri string) string {
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		return uri[:idx]
	}
	return uri
}

func joinURL(base, rel string) string {
	if strings.HasPrefix(rel, "http://") || strings.HasPrefix(rel, "https://") {
		return rel
	}
	return base + "/" + strings.TrimPrefix(rel, "/")
}
