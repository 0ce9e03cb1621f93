package customtemplate

import (
	"testing"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
)

const templateYAML = `
url: "https://example.com/tiles/{{x}}_{{y}}.jpg"
tile_size: [256, 256]
width: 512
height: 512
variables:
  x:
    from: 0
    to: 1
  y:
    from: 0
    to: 1
`

func TestResolveBuildsGridFromVariables(t *testing.T) {
	d := New()
	res, err := d.Resolve(dezoomer.Input{URI: "grid.yaml", Data: []byte(templateYAML)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(res.Images))
	}
	levels, err := res.Images[0].Levels()
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected 1 level, got %d", len(levels))
	}
	size, ok := levels[0].SizeHint()
	if !ok || size.X != 512 || size.Y != 512 {
		t.Fatalf("unexpected size hint: %v ok=%v", size, ok)
	}
	if _, _, _, _, ok := levels[0].(*namedLevel).Georeference(); ok {
		t.Fatal("expected no georeference block to report ok=false")
	}
}

func TestGeoreferenceDefaultsPixelSizeToOne(t *testing.T) {
	yamlWithGeo := templateYAML + "georeference:\n  origin_x: 100.0\n  origin_y: 200.0\n"
	d := New()
	res, err := d.Resolve(dezoomer.Input{URI: "grid.yaml", Data: []byte(yamlWithGeo)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	levels, err := res.Images[0].Levels()
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	psx, psy, ox, oy, ok := levels[0].(*namedLevel).Georeference()
	if !ok {
		t.Fatal("expected georeference block to report ok=true")
	}
	if psx != 1 || psy != 1 {
		t.Fatalf("expected default pixel size 1x1, got %v,%v", psx, psy)
	}
	if ox != 100.0 || oy != 200.0 {
		t.Fatalf("expected origin 100,200, got %v,%v", ox, oy)
	}
}
