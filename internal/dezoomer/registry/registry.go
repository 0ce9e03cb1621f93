// Package registry assembles the fixed-order dezoomer registry: custom
// template and Google Arts & Culture are tried first since they have the
// most specific telltales, generic and bulk text last since they're the
// most permissive.
package registry

import (
	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/bulktext"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/customtemplate"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/deepzoom"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/generic"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/googleartsandculture"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/iiif"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/iipimage"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/krpano"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/nypl"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/pff"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/zoomify"
)

// All builds the registry used by --dezoomer auto and by name lookup for
// an explicit --dezoomer flag. includeGeneric controls whether the
// catch-all URL-template dezoomer participates at all: callers that only
// want the format-specific dezoomers (for example to probe a URL without
// risking a false-positive generic match) pass false.
func All(includeGeneric bool) *dezoomer.Registry {
	entries := []dezoomer.Dezoomer{
		customtemplate.New(),
		googleartsandculture.New(),
		zoomify.New(),
		iiif.New(),
		deepzoom.New(),
		pff.New(),
		krpano.New(),
		iipimage.New(),
		nypl.New(),
		bulktext.New(),
	}
	if includeGeneric {
		entries = append(entries, generic.New())
	}
	return dezoomer.NewRegistry(entries...)
}
