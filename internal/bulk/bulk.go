// Package bulk implements the bulk download driver: resolve a list of
// images and feed each through the single-image pipeline, accumulating
// per-image outcomes instead of stopping at the first failure.
package bulk

import (
	"context"
	"fmt"
	"io"

	"github.com/mlb/dezoomify-rs/internal/config"
	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/download"
)

// ImageOutcome is one resolved image's bulk-run result.
type ImageOutcome struct {
	Outfile string
	Failed  bool
	Err     error
}

// Run resolves listURI to its full list of images via the registry (bulk
// mode always uses auto-detection across the whole list rather than a
// single pinned dezoomer, since a bulk source is typically itself a listing
// format like bulktext or an IIIF collection), then downloads each one in
// turn to an `_NNNN`-suffixed outfile, logging `[k/n]`-prefixed progress
// lines to log. It never aborts early: every image is attempted regardless
// of earlier failures.
func Run(ctx context.Context, pipeline *download.Pipeline, reg *dezoomer.Registry, listURI, outfileTemplate string, log io.Writer) ([]ImageOutcome, error) {
	resolver := dezoomer.NewResolver(pipeline.Client)
	images, err := resolver.Images(ctx, reg, listURI)
	if err != nil {
		return nil, fmt.Errorf("resolving bulk list %s: %w", listURI, err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("bulk list %s contained no images", listURI)
	}

	// When no level-selecting flag was given, bulk mode implies --largest
	// so every image gets a sane default without prompting (a bulk run is
	// inherently non-interactive).
	args := pipeline.Args
	if !args.HasZoom && args.MaxWidth == 0 && args.MaxHeight == 0 {
		args.Largest = true
	}
	args.Interactive = false
	perImage := *pipeline
	perImage.Args = args

	outcomes := make([]ImageOutcome, 0, len(images))
	total := len(images)
	for i, image := range images {
		n := i + 1
		title, ok := image.Title()
		if !ok {
			title = fmt.Sprintf("image %d", n)
		}
		fmt.Fprintf(log, "[%d/%d] %s\n", n, total, title)

		outfile := config.OutfileForIndex(outfileTemplate, n)
		out, ierr := perImage.RunImage(ctx, image, outfile)
		if ierr != nil {
			fmt.Fprintf(log, "[%d/%d] failed: %v\n", n, total, ierr)
			outcomes = append(outcomes, ImageOutcome{Outfile: outfile, Failed: true, Err: ierr})
			continue
		}
		if len(out.Result.Failures) > 0 {
			fmt.Fprintf(log, "[%d/%d] %s: %d/%d tiles failed\n", n, total, outfile,
				len(out.Result.Failures), out.Result.Successes+len(out.Result.Failures))
			outcomes = append(outcomes, ImageOutcome{Outfile: outfile, Failed: true, Err: fmt.Errorf("%d tiles failed", len(out.Result.Failures))})
			continue
		}
		fmt.Fprintf(log, "[%d/%d] wrote %s\n", n, total, outfile)
		outcomes = append(outcomes, ImageOutcome{Outfile: outfile})
	}
	return outcomes, nil
}

// AnyFailed reports whether the bulk run should exit non-zero: the
// process exits with a non-zero status iff at least one image failed.
func AnyFailed(outcomes []ImageOutcome) bool {
	for _, o := range outcomes {
		if o.Failed {
			return true
		}
	}
	return false
}
