package selector

import (
	"strings"
	"testing"

	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

func levelWithSize(w, h int) tile.Level {
	return tile.NewStaticLevel("level", vec2d.Vec2d{X: w, Y: h}, vec2d.Vec2d{X: 256, Y: 256}, nil)
}

func TestImageSelectorHonorsExplicitIndexClamped(t *testing.T) {
	images := []tile.Image{tile.NewStaticImage("a", nil), tile.NewStaticImage("b", nil)}
	idx, err := Image(images, ImageOptions{HasIndex: true, ImageIndex: 99}, nil, nil)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected clamped index 1, got %d", idx)
	}
}

func TestImageSelectorReturnsSoleImageWithoutPrompting(t *testing.T) {
	images := []tile.Image{tile.NewStaticImage("only", nil)}
	idx, err := Image(images, ImageOptions{Interactive: true}, nil, nil)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}
}

func TestLevelSelectorPicksLargestUnderMaxWidth(t *testing.T) {
	levels := []tile.Level{levelWithSize(256, 256), levelWithSize(1024, 768), levelWithSize(4096, 3072)}
	idx, err := Level(levels, LevelOptions{MaxWidth: 2000}, nil, nil)
	if err != nil {
		t.Fatalf("Level: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected index 1 (1024x768), got %d", idx)
	}
}

func TestLevelSelectorLargestPicksMaxArea(t *testing.T) {
	levels := []tile.Level{levelWithSize(256, 256), levelWithSize(4096, 3072), levelWithSize(1024, 768)}
	idx, err := Level(levels, LevelOptions{Largest: true}, nil, nil)
	if err != nil {
		t.Fatalf("Level: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected index 1 (largest), got %d", idx)
	}
}

func TestLevelSelectorInteractivePromptReadsChoice(t *testing.T) {
	levels := []tile.Level{levelWithSize(256, 256), levelWithSize(1024, 768)}
	in := strings.NewReader("2\n")
	var out strings.Builder
	idx, err := Level(levels, LevelOptions{Interactive: true}, &out, in)
	if err != nil {
		t.Fatalf("Level: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}
}
