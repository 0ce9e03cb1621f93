// Package selector implements the image and zoom-level choosers:
// policy-driven when flags are given, interactive otherwise.
package selector

import (
	"bufio"
	"fmt"
	"io"

	"github.com/mlb/dezoomify-rs/internal/tile"
)

// ImageOptions carries the flags relevant to image selection.
type ImageOptions struct {
	ImageIndex   int
	HasIndex     bool
	Interactive  bool
}

// Image picks which resolved image to download: an explicit index wins, a
// single image needs no choice, and otherwise the first image is used
// unless interactive mode is requested.
func Image(images []tile.Image, opts ImageOptions, out io.Writer, in io.Reader) (int, error) {
	if len(images) == 0 {
		return 0, fmt.Errorf("no images to choose from")
	}
	if opts.HasIndex {
		idx := opts.ImageIndex
		if idx > len(images)-1 {
			idx = len(images) - 1
		}
		if idx < 0 {
			idx = 0
		}
		return idx, nil
	}
	if len(images) == 1 {
		return 0, nil
	}
	if !opts.Interactive {
		return 0, nil
	}
	return promptImage(images, out, in)
}

func promptImage(images []tile.Image, out io.Writer, in io.Reader) (int, error) {
	for i, img := range images {
		title, ok := img.Title()
		if !ok {
			title = fmt.Sprintf("image %d", i+1)
		}
		fmt.Fprintf(out, "%d) %s\n", i+1, title)
	}
	fmt.Fprint(out, "Choose an image: ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return 0, fmt.Errorf("reading image choice: %w", err)
	}
	var choice int
	if _, err := fmt.Sscanf(line, "%d", &choice); err != nil || choice < 1 || choice > len(images) {
		return 0, fmt.Errorf("invalid image choice %q", line)
	}
	return choice - 1, nil
}

// LevelOptions carries the flags relevant to level selection.
type LevelOptions struct {
	ZoomLevel   int
	HasZoomLevel bool
	MaxWidth    int
	MaxHeight   int
	Largest     bool
	Interactive bool
}

// Level picks which zoom level to download: apply the first matching rule
// in order (explicit index, max-width/height, largest, interactive); when
// none applies, a non-interactive call takes the largest level by area and
// an interactive one prompts.
func Level(levels []tile.Level, opts LevelOptions, out io.Writer, in io.Reader) (int, error) {
	if len(levels) == 0 {
		return 0, fmt.Errorf("no zoom levels to choose from")
	}
	if opts.HasZoomLevel {
		idx := opts.ZoomLevel
		if idx > len(levels)-1 {
			idx = len(levels) - 1
		}
		if idx < 0 {
			idx = 0
		}
		return idx, nil
	}
	if opts.MaxWidth > 0 || opts.MaxHeight > 0 {
		if idx, ok := largestWithin(levels, opts.MaxWidth, opts.MaxHeight); ok {
			return idx, nil
		}
	}
	if opts.Largest {
		return largestByArea(levels), nil
	}
	if !opts.Interactive {
		return largestByArea(levels), nil
	}
	return promptLevel(levels, out, in)
}

// largestWithin picks the level with the greatest pixel count whose size
// fits both maxWidth and maxHeight (0 means unconstrained on that axis).
func largestWithin(levels []tile.Level, maxWidth, maxHeight int) (int, bool) {
	best := -1
	var bestArea int64
	for i, lvl := range levels {
		size, ok := lvl.SizeHint()
		if !ok {
			continue
		}
		if maxWidth > 0 && size.X > maxWidth {
			continue
		}
		if maxHeight > 0 && size.Y > maxHeight {
			continue
		}
		area := size.Area()
		if best < 0 || area > bestArea {
			best, bestArea = i, area
		}
	}
	return best, best >= 0
}

func largestByArea(levels []tile.Level) int {
	best := 0
	var bestArea int64 = -1
	for i, lvl := range levels {
		size, ok := lvl.SizeHint()
		if !ok {
			continue
		}
		if area := size.Area(); area > bestArea {
			best, bestArea = i, area
		}
	}
	return best
}

func promptLevel(levels []tile.Level, out io.Writer, in io.Reader) (int, error) {
	for i, lvl := range levels {
		size, ok := lvl.SizeHint()
		if ok {
			fmt.Fprintf(out, "%d) %s (%s)\n", i+1, lvl.Name(), size)
		} else {
			fmt.Fprintf(out, "%d) %s (size unknown)\n", i+1, lvl.Name())
		}
	}
	fmt.Fprint(out, "Choose a zoom level: ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return 0, fmt.Errorf("reading level choice: %w", err)
	}
	var choice int
	if _, err := fmt.Sscanf(line, "%d", &choice); err != nil || choice < 1 || choice > len(levels) {
		return 0, fmt.Errorf("invalid level choice %q", line)
	}
	return choice - 1, nil
}
