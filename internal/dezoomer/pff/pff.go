// Package pff implements the PFF ("Pyramid image File Format" used by the
// zoomify-like MapTiler/Aperio viewers) meta-document protocol: a URL
// containing requestType=1 returns a small binary header naming image
// size, tile size and level count; tiles are requested with
// requestType=2&col=..&row=..&level=...
package pff

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "pff"

// header mirrors the fixed little-endian PFF meta-document layout: magic,
// version, then width/height/tileSize/levelCount as uint32.
type header struct {
	Width     uint32
	Height    uint32
	TileSize  uint32
	NumLevels uint32
}

func parseHeader(data []byte) (header, bool) {
	if len(data) < 24 {
		return header{}, false
	}
	// bytes[0:4] magic + [4:8] version are skipped.
	h := header{
		Width:     binary.LittleEndian.Uint32(data[8:12]),
		Height:    binary.LittleEndian.Uint32(data[12:16]),
		TileSize:  binary.LittleEndian.Uint32(data[16:20]),
		NumLevels: binary.LittleEndian.Uint32(data[20:24]),
	}
	if h.Width == 0 || h.Height == 0 || h.TileSize == 0 {
		return header{}, false
	}
	return h, true
}

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	if in.Data == nil {
		if !strings.Contains(in.URI, "requestType=1") {
			return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
		}
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: in.URI}
	}

	h, ok := parseHeader(in.Data)
	if !ok {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "not a PFF meta-document"}
	}

	base := strings.SplitN(in.URI, "?", 2)[0]
	size := vec2d.Vec2d{X: int(h.Width), Y: int(h.Height)}
	tileSize := int(h.TileSize)
	cols := (size.X + tileSize - 1) / tileSize
	rows := (size.Y + tileSize - 1) / tileSize

	var refs []tile.Reference
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			url := fmt.Sprintf("%s?requestType=2&col=%d&row=%d&level=%d", base, c, r, h.NumLevels-1)
			refs = append(refs, tile.Reference{Position: vec2d.Vec2d{X: c * tileSize, Y: r * tileSize}, URL: url})
		}
	}
	level := tile.NewStaticLevel("full resolution", size, vec2d.Vec2d{X: tileSize, Y: tileSize}, refs)
	return dezoomer.ImagesResult(tile.NewStaticImage("", []tile.Level{level})), nil
}
