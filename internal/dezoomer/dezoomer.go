// Package dezoomer defines the format-detection contract that every
// zoomable-image protocol implementation satisfies, and the fixed-order
// registry walked when no format is given explicitly on the command
// line.
package dezoomer

import (
	"fmt"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/tile"
)

// Input is what a Dezoomer is offered: the URI the user gave (or a URI a
// previous attempt asked to be fetched), and the body of that URI if it has
// already been downloaded by the resolver.
type Input struct {
	URI  string
	Data []byte
}

// URLWithTitle is one entry of a Result's ImageURLs branch: a link to
// another zoomable image discovered inside a manifest or listing page,
// found before any tile grid is known.
type URLWithTitle struct {
	URL   string
	Title string
}

// Result is the tagged union DezoomerResult: either a
// dezoomer resolved straight to one or more ready-to-fetch images, or it
// found links to other images that must themselves be resolved recursively
// (an IIIF Presentation manifest, an NYPL captures listing, a bulk text
// file).
type Result struct {
	Images    []tile.Image
	ImageURLs []URLWithTitle
}

func ImagesResult(images ...tile.Image) Result { return Result{Images: images} }

func URLsResult(urls ...URLWithTitle) Result { return Result{ImageURLs: urls} }

func (r Result) IsEmpty() bool { return len(r.Images) == 0 && len(r.ImageURLs) == 0 }

// NeedsDataError is returned by a Dezoomer that recognized the input as
// plausibly its own format but needs the body of another URI (usually a
// sibling manifest or the page itself) before it can decide. The resolver
// loop fetches uri and offers the dezoomer the same Input again with Data
// populated.
type NeedsDataError struct {
	URI string
}

func (e *NeedsDataError) Error() string { return fmt.Sprintf("need to download data from %s", e.URI) }

// WrongFormatError means this Dezoomer is certain the input is not its
// format; the resolver moves on to the next one without recording it as a
// hard failure.
type WrongFormatError struct {
	Name   string
	Reason string
}

func (e *WrongFormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("the %q dezoomer cannot handle this input", e.Name)
	}
	return fmt.Sprintf("the %q dezoomer cannot handle this input: %s", e.Name, e.Reason)
}

// Dezoomer is the per-format contract every zoomable-image protocol
// implements: given an Input, either resolve it, ask for more data, or
// reject it with WrongFormatError.
type Dezoomer interface {
	Name() string
	Resolve(in Input) (Result, error)
}

// Registry is a fixed-order, name-addressable set of dezoomers: order
// matters because the first dezoomer that claims an input wins when
// running in auto mode.
type Registry struct {
	entries []Dezoomer
}

func NewRegistry(entries ...Dezoomer) *Registry {
	return &Registry{entries: append([]Dezoomer(nil), entries...)}
}

func (r *Registry) All() []Dezoomer { return r.entries }

func (r *Registry) ByName(name string) (Dezoomer, error) {
	for _, d := range r.entries {
		if d.Name() == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no such dezoomer: %s", name)
}

// PrioritizeForURL reorders a copy of entries so the dezoomer whose telltale
// URL pattern matches uri is tried first: this is a pure ordering hint,
// every other dezoomer is still tried afterwards if the prioritized one
// fails.
func PrioritizeForURL(entries []Dezoomer, uri string) []Dezoomer {
	pattern := matchTelltale(uri)
	if pattern == "" {
		return entries
	}
	out := make([]Dezoomer, 0, len(entries))
	var preferred Dezoomer
	for _, d := range entries {
		if d.Name() == pattern && preferred == nil {
			preferred = d
			continue
		}
		out = append(out, d)
	}
	if preferred == nil {
		return entries
	}
	return append([]Dezoomer{preferred}, out...)
}

var telltales = []struct {
	substr string
	name   string
}{
	{"info.json", "iiif"},
	{"iiif", "iiif"},
	{"manifest.json", "iiif"},
	{".dzi", "deepzoom"},
	{"_files/", "deepzoom"},
	{"?FIF", "iipimage"},
	{"tiles.xml", "krpano"},
	{"ImageProperties.xml", "zoomify"},
	{"TileGroup", "zoomify"},
	{"digitalcollections.nypl.org", "nypl"},
	{"{{", "generic"},
}

func matchTelltale(uri string) string {
	for _, t := range telltales {
		if strings.Contains(uri, t.substr) {
			return t.name
		}
	}
	return ""
}
