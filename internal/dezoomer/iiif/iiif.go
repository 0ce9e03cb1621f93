// Package iiif implements the IIIF Image API (info.json, 2.x/3.x) and the
// IIIF Presentation API (manifests, v2/v3): the latter expands into one
// info.json URL per canvas, resolved recursively by the caller.
package iiif

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const Name = "iiif"

const tileSizeFallback = 512

type imageInfo struct {
	Context  json.RawMessage `json:"@context"`
	ID       string          `json:"@id"`
	ID3      string          `json:"id"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Tiles    []infoTile      `json:"tiles"`
	Sizes    []infoSize      `json:"sizes"`
}

type infoTile struct {
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	ScaleFactors []int `json:"scaleFactors"`
}

type infoSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// manifest is a lowest-common-denominator shape covering both Presentation
// API v2 ("sequences[].canvases") and v3 ("items[]") layouts.
type manifest struct {
	Label     json.RawMessage  `json:"label"`
	Sequences []sequence       `json:"sequences"`
	Items     []canvasV3       `json:"items"`
}

type sequence struct {
	Canvases []canvasV2 `json:"canvases"`
}

type canvasV2 struct {
	Label  string    `json:"label"`
	Images []imageV2 `json:"images"`
}

type imageV2 struct {
	Resource resourceV2 `json:"resource"`
}

type resourceV2 struct {
	Service serviceRef `json:"service"`
}

type serviceRef struct {
	ID  string `json:"@id"`
	ID2 string `json:"id"`
}

type canvasV3 struct {
	Label json.RawMessage `json:"label"`
	Items []annotationPageV3 `json:"items"`
}

type annotationPageV3 struct {
	Items []annotationV3 `json:"items"`
}

type annotationV3 struct {
	Body bodyV3 `json:"body"`
}

// bodyV3.Service is loosely typed on purpose: real Presentation v3
// manifests encode it as either a single service object or an array of
// them, and json.RawMessage plus decodeServices below normalizes both
// shapes into a slice.
type bodyV3 struct {
	Service json.RawMessage `json:"service"`
}

// decodeServices normalizes an IIIF "service" value into a slice of
// serviceRef regardless of whether the source manifest encoded it as one
// object or an array of them. mapstructure's weakly-typed decoding is what
// promotes a single map into a one-element slice; encoding/json alone
// would require decoding into `interface{}` and hand-rolling that check
// for every loosely-typed field.
func decodeServices(raw json.RawMessage) []serviceRef {
	if len(raw) == 0 {
		return nil
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	var services []serviceRef
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &services,
	})
	if err != nil {
		return nil
	}
	if err := decoder.Decode(generic); err != nil {
		return nil
	}
	return services
}

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	if in.Data == nil {
		if !looksLikeIIIF(in.URI) {
			return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name}
		}
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: in.URI}
	}

	if info, ok := tryImageInfo(in.Data); ok {
		return dezoomer.ImagesResult(tile.NewStaticImage("", []tile.Level{newLevel(in.URI, info)})), nil
	}
	if urls, ok := tryManifest(in.Data); ok {
		return dezoomer.URLsResult(urls...), nil
	}
	return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "neither an IIIF info.json nor a Presentation manifest"}
}

func looksLikeIIIF(uri string) bool {
	return strings.Contains(uri, "info.json") || strings.Contains(uri, "manifest.json") || strings.Contains(uri, "iiif")
}

func tryImageInfo(data []byte) (imageInfo, bool) {
	var info imageInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return imageInfo{}, false
	}
	if info.Width == 0 || info.Height == 0 {
		return imageInfo{}, false
	}
	return info, true
}

func newLevel(infoURL string, info imageInfo) tile.Level {
	base := strings.TrimSuffix(infoURL, "/info.json")
	tileSize := tileSizeFallback
	if len(info.Tiles) > 0 && info.Tiles[0].Width > 0 {
		tileSize = info.Tiles[0].Width
	}
	size := vec2d.Vec2d{X: info.Width, Y: info.Height}
	cols := int(math.Ceil(float64(size.X) / float64(tileSize)))
	rows := int(math.Ceil(float64(size.Y) / float64(tileSize)))

	var refs []tile.Reference
	for r := 0; r < rows; r++ {
		y := r * tileSize
		h := tileSize
		if y+h > size.Y {
			h = size.Y - y
		}
		for c := 0; c < cols; c++ {
			x := c * tileSize
			w := tileSize
			if x+w > size.X {
				w = size.X - x
			}
			url := fmt.Sprintf("%s/%d,%d,%d,%d/%d,/0/default.jpg", base, x, y, w, h, w)
			refs = append(refs, tile.Reference{Position: vec2d.Vec2d{X: x, Y: y}, URL: url})
		}
	}
	return tile.NewStaticLevel("full resolution", size, vec2d.Vec2d{X: tileSize, Y: tileSize}, refs)
}

func tryManifest(data []byte) ([]dezoomer.URLWithTitle, bool) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	var urls []dezoomer.URLWithTitle
	for _, seq := range m.Sequences {
		for _, c := range seq.Canvases {
			for _, img := range c.Images {
				id := firstNonEmpty(img.Resource.Service.ID, img.Resource.Service.ID2)
				if id == "" {
					continue
				}
				urls = append(urls, dezoomer.URLWithTitle{URL: strings.TrimSuffix(id, "/") + "/info.json", Title: c.Label})
			}
		}
	}
	for i, c := range m.Items {
		for _, page := range c.Items {
			for _, ann := range page.Items {
				for _, svc := range decodeServices(ann.Body.Service) {
					id := firstNonEmpty(svc.ID, svc.ID2)
					if id == "" {
						continue
					}
					urls = append(urls, dezoomer.URLWithTitle{
						URL:   strings.TrimSuffix(id, "/") + "/info.json",
						Title: labelString(c.Label, i),
					})
				}
			}
		}
	}
	if len(urls) == 0 {
		return nil, false
	}
	return urls, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func labelString(raw json.RawMessage, fallbackIndex int) string {
	if len(raw) == 0 {
		return fmt.Sprintf("canvas %d", fallbackIndex+1)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var byLang map[string][]string
	if err := json.Unmarshal(raw, &byLang); err == nil {
		for _, vals := range byLang {
			if len(vals) > 0 {
				return vals[0]
			}
		}
	}
	return fmt.Sprintf("canvas %d", fallbackIndex+1)
}
