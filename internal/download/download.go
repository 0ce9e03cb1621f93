// Package download wires the resolver, selectors, and orchestrator into
// the single-image pipeline (C6 -> C7 -> C5) shared by the download
// command, the bulk driver, and the HTTP server.
package download

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/canvas"
	"github.com/mlb/dezoomify-rs/internal/config"
	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/fetch"
	"github.com/mlb/dezoomify-rs/internal/orchestrator"
	"github.com/mlb/dezoomify-rs/internal/selector"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/tilecache"
)

// hugeCanvasPixels is the area past which a size-known-upfront output
// switches from the in-memory canvas to the row-banded streaming one even
// though its final dimensions are known: holding a raster this large
// resident for the whole download is wasteful when it can be flushed
// incrementally instead.
const hugeCanvasPixels = 64_000_000

// Pipeline bundles the shared collaborators every command constructs once
// and reuses across however many images it downloads.
type Pipeline struct {
	Registry *dezoomer.Registry
	Client   *fetch.Client
	Cache    *tilecache.Cache
	Args     config.Arguments
	Progress orchestrator.Progress
	Out      io.Writer
	In       io.Reader
}

// Outcome is one image's result: the chosen output path plus the
// orchestrator's tile-level accounting, or a hard error if resolution or
// selection itself failed before any tile was ever attempted.
type Outcome struct {
	Outfile string
	Result  orchestrator.Result
}

// Run resolves uri to a single image (using args.ImageIndex when there is
// more than one candidate), picks a zoom level, and downloads it to
// outfile. When neither an explicit zoom level nor max-width/height was
// given, a non-interactive run uses the largest level; an interactive run
// prompts for the level instead.
func (p *Pipeline) Run(ctx context.Context, uri, outfile string) (Outcome, error) {
	resolver := dezoomer.NewResolver(p.Client)

	images, err := resolver.ImagesWithDezoomer(ctx, p.Registry, p.Args.Dezoomer, uri)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving %s: %w", uri, err)
	}
	if len(images) == 0 {
		return Outcome{}, fmt.Errorf("no images found at %s", uri)
	}

	imgIdx, err := selector.Image(images, selector.ImageOptions{
		ImageIndex:  p.Args.ImageIndex,
		HasIndex:    p.Args.HasImage,
		Interactive: p.Args.Interactive,
	}, p.Out, p.In)
	if err != nil {
		return Outcome{}, fmt.Errorf("choosing an image: %w", err)
	}
	return p.RunImage(ctx, images[imgIdx], outfile)
}

// RunImage runs the level-selection and download stages (C7 -> C5) against
// an already-resolved image, skipping C6 entirely. The bulk driver uses
// this directly since it resolves its whole image list up front.
func (p *Pipeline) RunImage(ctx context.Context, image tile.Image, outfile string) (Outcome, error) {
	levels, err := image.Levels()
	if err != nil {
		return Outcome{}, fmt.Errorf("listing zoom levels: %w", err)
	}
	if len(levels) == 0 {
		return Outcome{}, fmt.Errorf("image has no zoom levels")
	}

	levelOpts := selector.LevelOptions{
		ZoomLevel:   p.Args.ZoomLevel,
		HasZoomLevel: p.Args.HasZoom,
		MaxWidth:    p.Args.MaxWidth,
		MaxHeight:   p.Args.MaxHeight,
		Largest:     p.Args.Largest,
		Interactive: p.Args.Interactive,
	}
	if !levelOpts.HasZoomLevel && levelOpts.MaxWidth == 0 && levelOpts.MaxHeight == 0 && !levelOpts.Interactive {
		levelOpts.Largest = true
	}
	lvlIdx, err := selector.Level(levels, levelOpts, p.Out, p.In)
	if err != nil {
		return Outcome{}, fmt.Errorf("choosing a zoom level: %w", err)
	}
	level := levels[lvlIdx]

	if outfile == "" {
		title, ok := image.Title()
		if !ok {
			title = "output"
		}
		outfile = sanitizeFilename(title) + defaultExtension()
	}

	cv := p.chooseCanvas(level, outfile)

	result, err := orchestrator.Run(ctx, level, cv, p.Client, orchestrator.Options{
		Parallelism: p.Args.Parallelism,
		Cache:       p.Cache,
		Progress:    p.Progress,
	})
	if err == nil {
		writeWorldFileIfGeoreferenced(level, outfile)
	}
	return Outcome{Outfile: outfile, Result: result}, err
}

// writeWorldFileIfGeoreferenced emits a companion world file when the
// level carries georeferencing coordinates (currently only the Custom
// template dezoomer's optional "georeference" YAML block). A failure here
// doesn't fail the download: the image itself already landed successfully.
func writeWorldFileIfGeoreferenced(level tile.Level, outfile string) {
	geo, ok := level.(interface {
		Georeference() (pixelSizeX, pixelSizeY, originX, originY float64, ok bool)
	})
	if !ok {
		return
	}
	psx, psy, ox, oy, has := geo.Georeference()
	if !has {
		return
	}
	_ = canvas.WriteWorldFile(outfile, psx, psy, ox, oy)
}

// chooseCanvas is the default output-format selector's canvas half: a
// directory-shaped outfile (no extension, or an explicit trailing slash)
// always means the IIIF tile-directory variant. JPEG output holds its
// whole raster in memory regardless of size since image/jpeg has no
// streaming encoder. A known-upfront size past hugeCanvasPixels uses the
// row-banded streaming canvas instead of buffering the whole raster.
//
// A size that is unknown up front (the Generic dezoomer's boundary
// discovery) cannot use the streaming canvas at all: PNG's IHDR chunk,
// which carries the final width and height, has to be written before any
// row of pixel data, and Generic doesn't know its final height until the
// very last probe 404s, by which point every earlier row has already been
// requested. So an unknown-size level gets the in-memory canvas, which
// grows to fit whatever tile arrives instead of clipping to the first
// one's dimensions — this is the real defect the streaming-selection gap
// caused in practice, and it's fixed regardless of which canvas variant
// ends up handling the download (see DESIGN.md).
func (p *Pipeline) chooseCanvas(level tile.Level, outfile string) canvas.Canvas {
	if isDirectoryOutput(outfile) {
		return canvas.NewIIIF(outfile)
	}
	format := formatFor(outfile)
	if format == canvas.FormatJPEG {
		return canvas.NewMemory(outfile, format, p.Args.Compression)
	}
	if size, ok := level.SizeHint(); ok && int64(size.X)*int64(size.Y) > hugeCanvasPixels {
		return canvas.NewStreaming(outfile)
	}
	return canvas.NewMemory(outfile, format, p.Args.Compression)
}

func isDirectoryOutput(outfile string) bool {
	if outfile == "" {
		return false
	}
	if strings.HasSuffix(outfile, "/") {
		return true
	}
	return filepath.Ext(outfile) == ""
}

func formatFor(outfile string) canvas.Format {
	lower := strings.ToLower(outfile)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return canvas.FormatJPEG
	case strings.HasSuffix(lower, ".png"):
		return canvas.FormatPNG
	default:
		return canvas.FormatAuto
	}
}

func defaultExtension() string { return ".png" }

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "output"
	}
	return b.String()
}
