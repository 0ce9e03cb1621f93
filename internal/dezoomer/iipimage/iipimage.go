// Package iipimage implements the IIPImage server's CVT tile protocol: a
// URL naming FIF={path} is probed with the obj=Max-size/Tile-size
// command to learn dimensions, then tiles are
// fetched as JTL={level},{index} commands.
package iipimage

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "iipimage"

const defaultTileSize = 256

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	fif := extractParam(in.URI, "FIF")
	if fif == "" {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
	}
	if in.Data == nil {
		infoURL := endpointBase(in.URI) + "?FIF=" + fif + "&obj=Max-size&obj=Tile-size"
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: infoURL}
	}

	size, tileSize, ok := parseIIPResponse(string(in.Data))
	if !ok {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "unexpected IIPImage response"}
	}

	numResolutions := int(math.Ceil(math.Log2(math.Max(float64(size.X), float64(size.Y))/float64(tileSize.X)))) + 1
	topLevel := numResolutions - 1

	base := endpointBase(in.URI)
	level := newLevel(base, fif, size, tileSize, topLevel)
	return dezoomer.ImagesResult(tile.NewStaticImage("", []tile.Level{level})), nil
}

// parseIIPResponse understands the IIP protocol's plain-text
// "Max-size:W H" / "Tile-size:W H" reply lines.
func parseIIPResponse(body string) (size, tileSize vec2d.Vec2d, ok bool) {
	tileSize = vec2d.Vec2d{X: defaultTileSize, Y: defaultTileSize}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Max-size:"):
			w, h, parsed := parsePair(strings.TrimPrefix(line, "Max-size:"))
			if parsed {
				size = vec2d.Vec2d{X: w, Y: h}
			}
		case strings.HasPrefix(line, "Tile-size:"):
			w, h, parsed := parsePair(strings.TrimPrefix(line, "Tile-size:"))
			if parsed {
				tileSize = vec2d.Vec2d{X: w, Y: h}
			}
		}
	}
	return size, tileSize, size.X > 0 && size.Y > 0
}

func parsePair(s string) (int, int, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(fields[0])
	h, err2 := strconv.Atoi(fields[1])
	return w, h, err1 == nil && err2 == nil
}

func newLevel(base, fif string, size, tileSize vec2d.Vec2d, level int) tile.Level {
	cols := int(math.Ceil(float64(size.X) / float64(tileSize.X)))
	rows := int(math.Ceil(float64(size.Y) / float64(tileSize.Y)))

	var refs []tile.Reference
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			idx := r*cols + c
			url := fmt.Sprintf("%s?FIF=%s&JTL=%d,%d", base, fif, level, idx)
			refs = append(refs, tile.Reference{Position: vec2d.Vec2d{X: c * tileSize.X, Y: r * tileSize.Y}, URL: url})
		}
	}
	return tile.NewStaticLevel("full resolution", size, tileSize, refs)
}

func extractParam(uri, key string) string {
	idx := strings.Index(uri, key+"=")
	if idx < 0 {
		return ""
	}
	rest := uri[idx+len(key)+1:]
	if amp := strings.IndexByte(rest, '&'); amp >= 0 {
		rest = rest[:amp]
	}
	return rest
}

func endpointBase(uri string) string {
	if idx := strings.IndexByte(uri, '?'); idx >= 0 {
		return uri[:idx]
	}
	return uri
}
