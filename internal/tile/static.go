package tile

import "github.com/mlb/dezoomify-rs/internal/vec2d"

// StaticLevel is a Level whose full tile grid is known up front. It covers
// every dezoomer except Generic, which must discover its grid by probing,
// and the custom YAML template, which has its own level type.
type StaticLevel struct {
	LevelName    string
	Size         vec2d.Vec2d
	NominalTile  vec2d.Vec2d
	Refs         []Reference
	ExtraHeaders map[string]string
	Post         PostProcessFunc
}

func (l *StaticLevel) Name() string { return l.LevelName }

func (l *StaticLevel) SizeHint() (vec2d.Vec2d, bool) {
	if l.Size == vec2d.Zero {
		return vec2d.Zero, false
	}
	return l.Size, true
}

func (l *StaticLevel) TileSize() (vec2d.Vec2d, bool) {
	if l.NominalTile == vec2d.Zero {
		return vec2d.Zero, false
	}
	return l.NominalTile, true
}

func (l *StaticLevel) Headers() map[string]string { return l.ExtraHeaders }

func (l *StaticLevel) PostProcess() PostProcessFunc { return l.Post }

func (l *StaticLevel) Iter() Iter { return NewStaticIter(l.Refs) }

// NewStaticLevel builds a StaticLevel with no extra headers or post-process
// hook, the common case for most dezoomers.
func NewStaticLevel(name string, size, tileSize vec2d.Vec2d, refs []Reference) *StaticLevel {
	return &StaticLevel{LevelName: name, Size: size, NominalTile: tileSize, Refs: refs}
}

// StaticImage is an Image with a precomputed list of levels.
type StaticImage struct {
	ImageTitle  string
	HasTitle    bool
	ImageLevels []Level
}

func (i *StaticImage) Title() (string, bool) { return i.ImageTitle, i.HasTitle }

func (i *StaticImage) Levels() ([]Level, error) { return i.ImageLevels, nil }

// NewStaticImage builds a StaticImage. An empty title reports HasTitle=false.
func NewStaticImage(title string, levels []Level) *StaticImage {
	return &StaticImage{ImageTitle: title, HasTitle: title != "", ImageLevels: levels}
}
