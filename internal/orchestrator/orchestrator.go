// Package orchestrator drives one zoomable image to completion: bounded
// concurrent fetch, per-tile decode, single-producer paint, partial
// failure tracking, and the Generic dezoomer's 404-boundary discovery loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mlb/dezoomify-rs/internal/canvas"
	"github.com/mlb/dezoomify-rs/internal/decode"
	"github.com/mlb/dezoomify-rs/internal/fetch"
	"github.com/mlb/dezoomify-rs/internal/tile"
	"github.com/mlb/dezoomify-rs/internal/tilecache"
	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

// Options configures one run of the pipeline.
type Options struct {
	Parallelism int
	Cache       *tilecache.Cache
	Progress    Progress
}

// Progress lets a caller (CLI, bulk driver, HTTP server) observe download
// events without the orchestrator depending on any particular UI.
type Progress interface {
	TileDone(successes, total int)
}

type noopProgress struct{}

func (noopProgress) TileDone(int, int) {}

// TileFailure records one tile's terminal failure.
type TileFailure struct {
	Ref   tile.Reference
	Cause error
}

// Result is the orchestrator's structured outcome.
type Result struct {
	Successes int
	Failures  []TileFailure
}

// paintJob is the single-producer handoff unit: every fetch/decode worker
// sends its decoded tile here and waits on Done for the painter's verdict.
// The painter goroutine is the only task that ever touches cv.
type paintJob struct {
	tile canvas.Tile
	done chan error
}

// Run drives level to completion, painting into cv, and returns once every
// tile has been placed or definitively failed, or ctx is canceled.
func Run(ctx context.Context, level tile.Level, cv canvas.Canvas, client *fetch.Client, opts Options) (Result, error) {
	progress := opts.Progress
	if progress == nil {
		progress = noopProgress{}
	}
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	sizeKnown := false
	if size, ok := level.SizeHint(); ok {
		if err := cv.SetSize(size); err != nil {
			return Result{}, fmt.Errorf("setting canvas size: %w", err)
		}
		sizeKnown = true
	}

	paintCh := make(chan paintJob)
	painterDone := make(chan struct{})
	go func() {
		defer close(painterDone)
		for job := range paintCh {
			job.done <- cv.AddTile(job.tile)
		}
	}()

	sem := semaphore.NewWeighted(int64(parallelism))
	var (
		mu        sync.Mutex
		successes int
		failures  []TileFailure
	)

	iter := level.Iter()
	var lastResult *tile.FetchResult

	for {
		batch, ok := iter.Next(lastResult)
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			close(paintCh)
			<-painterDone
			return finalize(cv, successes, failures, err)
		}

		batchAxisExhausted := make(map[string]bool)
		var batchMu sync.Mutex
		batchSuccesses := 0
		var batchSize vec2d.Vec2d
		g, gctx := errgroup.WithContext(ctx)

		for _, ref := range batch.Refs {
			ref := ref
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				success, failure, axisHint, size := fetchDecodePaint(gctx, ref, level, client, opts.Cache, paintCh)
				batchMu.Lock()
				defer batchMu.Unlock()
				switch {
				case success:
					batchSuccesses++
					batchSize = size
				case ref.Probe && axisHint != "":
					// A probe's 404 is a grid-boundary signal, not a failed
					// tile: don't record it.
				case failure != nil:
					mu.Lock()
					failures = append(failures, *failure)
					mu.Unlock()
				}
				if axisHint != "" {
					batchAxisExhausted[axisHint] = true
				}
				return nil
			})
		}
		_ = g.Wait()

		mu.Lock()
		successes += batchSuccesses
		total := successes + len(failures)
		mu.Unlock()

		progress.TileDone(successes, total)

		lastResult = &tile.FetchResult{
			Count:         len(batch.Refs),
			Successes:     batchSuccesses,
			AxisExhausted: batchAxisExhausted,
			Size:          batchSize,
		}
		if batch.Done {
			break
		}
	}

	close(paintCh)
	<-painterDone

	// A level whose size was unknown at the start (Generic's boundary
	// discovery) knows it for certain now that iteration is done: give
	// the canvas an authoritative recheck rather than relying solely on
	// whatever it inferred tile-by-tile.
	if !sizeKnown {
		if size, ok := level.SizeHint(); ok {
			if err := cv.SetSize(size); err != nil {
				return Result{}, fmt.Errorf("setting canvas size: %w", err)
			}
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return finalize(cv, successes, failures, nil)
}

// fetchDecodePaint runs one tile through fetch (or cache) -> decode ->
// handoff to the painter. axisHint is "x" or "y" when a BadStatus 404
// should be interpreted as a Generic-dezoomer grid boundary on that axis:
// a 404 at column 0 of a row exhausts the row (column) axis; a 404
// elsewhere exhausts the column (row-continuation) axis. Levels that
// aren't doing boundary discovery ignore the hint entirely since their
// Iter doesn't consult AxisExhausted. On success it also returns the
// tile's real decoded pixel size, which Generic's boundary iterator uses
// to place and size the grid instead of assuming a fixed tile size.
func fetchDecodePaint(ctx context.Context, ref tile.Reference, level tile.Level, client *fetch.Client, cache *tilecache.Cache, paintCh chan<- paintJob) (bool, *TileFailure, string, vec2d.Vec2d) {
	headers := mergeHeaders(level.Headers(), ref.Headers)

	var body []byte
	if cache != nil {
		if cached, ok := cache.Get(ref.URL, headers); ok {
			body = cached
		}
	}
	if body == nil {
		var fetched []byte
		var err error
		if ref.Probe {
			fetched, err = client.FetchProbe(ctx, ref.URL, headers)
		} else {
			fetched, err = client.Fetch(ctx, ref.URL, headers)
		}
		if err != nil {
			if fetch.IsNotFound(err) {
				return false, &TileFailure{Ref: ref, Cause: err}, axisHintFor(ref), vec2d.Vec2d{}
			}
			return false, &TileFailure{Ref: ref, Cause: err}, "", vec2d.Vec2d{}
		}
		body = fetched
		if cache != nil {
			_ = cache.Put(ref.URL, headers, tilecache.DetectContentType(body), body)
		}
	}

	if post := level.PostProcess(); post != nil {
		processed, err := post(ref, body)
		if err != nil {
			return false, &TileFailure{Ref: ref, Cause: fmt.Errorf("post-processing tile: %w", err)}, "", vec2d.Vec2d{}
		}
		body = processed
	}

	decoded, err := decode.Tile(body)
	if err != nil {
		return false, &TileFailure{Ref: ref, Cause: err}, "", vec2d.Vec2d{}
	}
	bounds := decoded.Image.Bounds()
	size := vec2d.Vec2d{X: bounds.Dx(), Y: bounds.Dy()}

	job := paintJob{
		tile: canvas.Tile{Image: decoded.Image, Position: ref.Position, ICCProfile: decoded.ICCProfile},
		done: make(chan error, 1),
	}
	select {
	case paintCh <- job:
	case <-ctx.Done():
		return false, &TileFailure{Ref: ref, Cause: ctx.Err()}, "", vec2d.Vec2d{}
	}
	if err := <-job.done; err != nil {
		return false, &TileFailure{Ref: ref, Cause: err}, "", vec2d.Vec2d{}
	}
	return true, nil, "", size
}

func axisHintFor(ref tile.Reference) string {
	if ref.Position.X == 0 {
		return "y"
	}
	return "x"
}

func mergeHeaders(levelHeaders, refHeaders map[string]string) map[string]string {
	if len(levelHeaders) == 0 && len(refHeaders) == 0 {
		return nil
	}
	merged := make(map[string]string, len(levelHeaders)+len(refHeaders))
	for k, v := range levelHeaders {
		merged[k] = v
	}
	for k, v := range refHeaders {
		merged[k] = v
	}
	return merged
}

func finalize(cv canvas.Canvas, successes int, failures []TileFailure, runErr error) (Result, error) {
	result := Result{Successes: successes, Failures: failures}
	if err := cv.Finalize(); err != nil {
		var canvasErr *canvas.Error
		if errors.As(err, &canvasErr) {
			return result, err
		}
		return result, fmt.Errorf("finalizing canvas: %w", err)
	}
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return result, fmt.Errorf("download canceled: %w", runErr)
	}
	return result, runErr
}
