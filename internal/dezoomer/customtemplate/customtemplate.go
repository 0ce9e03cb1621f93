// Package customtemplate implements the Custom YAML dezoomer: a
// user-authored file declaring a URL template, named integer-range
// variables, and overall geometry, using a plain {{name}} substitution
// grammar rather than a full arithmetic expression language (see
// DESIGN.md).
package customtemplate

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "customtemplate"

// Variable is a named integer range, e.g. `x: {from: 0, to: 9}` producing
// the URL substitutions `{{x}}` = "0".."9".
type Variable struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
	Step int `yaml:"step"`
}

func (v Variable) values() []int {
	step := v.Step
	if step == 0 {
		step = 1
	}
	var out []int
	for x := v.From; x <= v.To; x += step {
		out = append(out, x)
	}
	return out
}

// Georeference is an optional YAML block giving the image's placement in
// some external coordinate system, letting the download pipeline emit a
// companion world file (.pgw/.jgw) alongside the stitched output — useful
// since this dezoomer's XYZ-style tile URLs are the same shape slippy-map
// tile servers use.
type Georeference struct {
	OriginX    float64 `yaml:"origin_x"`
	OriginY    float64 `yaml:"origin_y"`
	PixelSizeX float64 `yaml:"pixel_size_x"`
	PixelSizeY float64 `yaml:"pixel_size_y"`
}

// Config is the YAML document shape: url, variables, tile_size, width,
// height, headers.
type Config struct {
	URL          string              `yaml:"url"`
	Variables    map[string]Variable `yaml:"variables"`
	TileSize     [2]int              `yaml:"tile_size"`
	Width        int                 `yaml:"width"`
	Height       int                 `yaml:"height"`
	Headers      map[string]string   `yaml:"headers"`
	Georeference *Georeference       `yaml:"georeference"`
}

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	if !strings.HasSuffix(strings.ToLower(in.URI), ".yaml") && !strings.HasSuffix(strings.ToLower(in.URI), ".yml") {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
	}
	if in.Data == nil {
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: in.URI}
	}

	var cfg Config
	if err := yaml.Unmarshal(in.Data, &cfg); err != nil || cfg.URL == "" {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: fmt.Sprintf("invalid custom template YAML: %v", err)}
	}

	level, err := buildLevel(cfg)
	if err != nil {
		return dezoomer.Result{}, err
	}
	return dezoomer.ImagesResult(tile.NewStaticImage("", []tile.Level{level})), nil
}

func buildLevel(cfg Config) (tile.Level, error) {
	tileW, tileH := cfg.TileSize[0], cfg.TileSize[1]
	if tileW == 0 || tileH == 0 {
		return nil, &dezoomer.WrongFormatError{Name: Name, Reason: "tile_size must be non-zero"}
	}

	names := make([]string, 0, len(cfg.Variables))
	valueLists := make([][]int, 0, len(cfg.Variables))
	for name, v := range cfg.Variables {
		names = append(names, name)
		valueLists = append(valueLists, v.values())
	}

	var refs []tile.Reference
	combos := cartesianProduct(valueLists)
	for _, combo := range combos {
		bindings := make(map[string]int, len(names))
		for i, name := range names {
			bindings[name] = combo[i]
		}
		x, hasX := bindings["x"]
		y, hasY := bindings["y"]
		pos := vec2d.Vec2d{}
		if hasX {
			pos.X = x * tileW
		}
		if hasY {
			pos.Y = y * tileH
		}
		refs = append(refs, tile.Reference{Position: pos, URL: expand(cfg.URL, bindings), Headers: cfg.Headers})
	}

	geo := cfg.Georeference
	if geo != nil {
		if geo.PixelSizeX == 0 {
			geo.PixelSizeX = 1
		}
		if geo.PixelSizeY == 0 {
			geo.PixelSizeY = 1
		}
	}

	size := vec2d.Vec2d{X: cfg.Width, Y: cfg.Height}
	return &namedLevel{
		size:     size,
		tileSize: vec2d.Vec2d{X: tileW, Y: tileH},
		refs:     refs,
		headers:  cfg.Headers,
		geo:      geo,
	}, nil
}

type namedLevel struct {
	size     vec2d.Vec2d
	tileSize vec2d.Vec2d
	refs     []tile.Reference
	headers  map[string]string
	geo      *Georeference
}

// Georeference reports the world-file coordinates declared in the YAML
// document, if any. download.Pipeline.RunImage type-asserts for this to
// decide whether to write a companion world file next to the image.
func (l *namedLevel) Georeference() (pixelSizeX, pixelSizeY, originX, originY float64, ok bool) {
	if l.geo == nil {
		return 0, 0, 0, 0, false
	}
	return l.geo.PixelSizeX, l.geo.PixelSizeY, l.geo.OriginX, l.geo.OriginY, true
}

func (l *namedLevel) Name() string { return "custom template" }
func (l *namedLevel) SizeHint() (vec2d.Vec2d, bool) {
	return l.size, l.size.X > 0 && l.size.Y > 0
}
func (l *namedLevel) TileSize() (vec2d.Vec2d, bool)   { return l.tileSize, true }
func (l *namedLevel) Headers() map[string]string       { return l.headers }
func (l *namedLevel) PostProcess() tile.PostProcessFunc { return nil }
func (l *namedLevel) Iter() tile.Iter                   { return tile.NewStaticIter(l.refs) }

func expand(template string, bindings map[string]int) string {
	var b strings.Builder
	for i := 0; i < len(template); {
		if template[i] == '{' && i+1 < len(template) && template[i+1] == '{' {
			end := strings.Index(template[i:], "}}")
			if end < 0 {
				b.WriteString(template[i:])
				break
			}
			name := template[i+2 : i+end]
			if v, ok := bindings[name]; ok {
				b.WriteString(strconv.Itoa(v))
			}
			i += end + 2
			continue
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String()
}

func cartesianProduct(lists [][]int) [][]int {
	if len(lists) == 0 {
		return [][]int{{}}
	}
	rest := cartesianProduct(lists[1:])
	var out [][]int
	for _, v := range lists[0] {
		for _, r := range rest {
			combo := append([]int{v}, r...)
			out = append(out, combo)
		}
	}
	return out
}
