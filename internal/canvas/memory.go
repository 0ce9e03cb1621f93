package canvas

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

// Format selects the encoder a Memory canvas (or the streaming canvas) uses.
type Format int

const (
	FormatAuto Format = iota
	FormatPNG
	FormatJPEG
)

// jpegMaxDimension is the JPEG format's hard limit: width or height above
// this forces a fallback to PNG.
const jpegMaxDimension = 65535

// ResolveFormat is the default output-format selector: JPEG unless the
// image is too big for JPEG's 16-bit dimension fields, in which case PNG is
// used regardless of what was requested.
func ResolveFormat(requested Format, size vec2d.Vec2d) Format {
	if requested == FormatJPEG && (size.X > jpegMaxDimension || size.Y > jpegMaxDimension) {
		return FormatPNG
	}
	if requested == FormatAuto {
		if size.X > jpegMaxDimension || size.Y > jpegMaxDimension {
			return FormatPNG
		}
		return FormatJPEG
	}
	return requested
}

// Memory is the in-memory canvas variant: a single RGBA pixel buffer
// painted tile by tile at arbitrary destination rectangles and encoded
// whole at Finalize.
type Memory struct {
	path        string
	format      Format
	compression uint8 // 0..100
	img         *image.RGBA
	size        vec2d.Vec2d
	iccProfile  []byte
	iccConflict bool
	sizeSet     bool
	// sizeLocked is true once a caller has declared the canvas's real
	// final size via SetSize. Until then the canvas grows to fit whatever
	// tile arrives, which is how a size-unknown-up-front level (the
	// Generic dezoomer's boundary discovery) avoids clipping to its first
	// tile's dimensions.
	sizeLocked bool
}

// NewMemory builds a Memory canvas that will write to path in the given
// format (FormatAuto lets ResolveFormat decide once the size is known) with
// the given compression/quality byte.
func NewMemory(path string, format Format, compression uint8) *Memory {
	return &Memory{path: path, format: format, compression: compression}
}

func (m *Memory) SetSize(size vec2d.Vec2d) error {
	if err := m.growTo(size); err != nil {
		return err
	}
	m.sizeLocked = true
	return nil
}

// growTo enlarges the backing raster to fit size, preserving any pixels
// already painted, and is a no-op when the canvas is already at least that
// big. It is the mechanism both for an upfront-known SetSize call and for
// the incremental growth AddTile falls back to when the size was never
// declared.
func (m *Memory) growTo(size vec2d.Vec2d) error {
	if size.X < 1 || size.Y < 1 {
		return &Error{Kind: ErrorUnknown, Msg: fmt.Sprintf("invalid canvas size %s", size)}
	}
	if m.sizeSet && size.X <= m.size.X && size.Y <= m.size.Y {
		return nil
	}
	newSize := size
	if m.sizeSet {
		newSize = vec2d.Vec2d{X: maxInt(m.size.X, size.X), Y: maxInt(m.size.Y, size.Y)}
	}
	newImg := image.NewRGBA(image.Rect(0, 0, newSize.X, newSize.Y))
	if m.img != nil {
		draw.Draw(newImg, m.img.Bounds(), m.img, image.Point{}, draw.Src)
	}
	m.img = newImg
	m.size = newSize
	m.sizeSet = true
	return nil
}

func (m *Memory) AddTile(t Tile) error {
	extent := t.Position.Add(t.Size())
	if !m.sizeLocked && (!m.sizeSet || extent.X > m.size.X || extent.Y > m.size.Y) {
		if err := m.growTo(extent); err != nil {
			return err
		}
	}
	paintClipped(m.img, t.Image, t.Position, m.size)
	m.trackICCProfile(t.ICCProfile)
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// trackICCProfile embeds an ICC profile in the output only if every tile
// that carries one agrees on it byte-for-byte.
func (m *Memory) trackICCProfile(profile []byte) {
	if len(profile) == 0 || m.iccConflict {
		return
	}
	if m.iccProfile == nil {
		m.iccProfile = profile
		return
	}
	if string(m.iccProfile) != string(profile) {
		m.iccConflict = true
		m.iccProfile = nil
	}
}

func (m *Memory) Finalize() error {
	if !m.sizeSet {
		return &Error{Kind: ErrorUnknown, Msg: "no tiles were ever painted, canvas has no size"}
	}
	format := ResolveFormat(m.format, m.size)

	f, err := os.Create(m.path)
	if err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "creating output file", Cause: err}
	}
	defer f.Close()

	switch format {
	case FormatJPEG:
		quality := 100 - int(m.compression)
		if err := jpeg.Encode(f, m.img, &jpeg.Options{Quality: quality}); err != nil {
			return &Error{Kind: ErrorEncoding, Msg: "encoding JPEG", Cause: err}
		}
	default:
		enc := &png.Encoder{CompressionLevel: compressionLevel(m.compression)}
		if m.iccProfile != nil {
			return encodePNGWithICC(f, m.img, enc, m.iccProfile)
		}
		if err := enc.Encode(f, m.img); err != nil {
			return &Error{Kind: ErrorEncoding, Msg: "encoding PNG", Cause: err}
		}
	}
	return nil
}

func (m *Memory) Destination() string { return m.path }

// compressionLevel maps the CLI's 0..100 compression byte to image/png's
// discrete effort levels.
func compressionLevel(compression uint8) png.CompressionLevel {
	switch {
	case compression == 0:
		return png.NoCompression
	case compression < 34:
		return png.BestSpeed
	case compression < 67:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// paintClipped copies src onto dst at position, clipping any part that
// would fall outside canvasSize instead of panicking, alpha-blending over
// whatever was already there.
func paintClipped(dst *image.RGBA, src image.Image, position, canvasSize vec2d.Vec2d) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		dy := position.Y + y
		if dy < 0 || dy >= canvasSize.Y {
			continue
		}
		for x := 0; x < w; x++ {
			dx := position.X + x
			if dx < 0 || dx >= canvasSize.X {
				continue
			}
			sr, sg, sb, sa := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if sa == 0xffff {
				dst.SetRGBA(dx, dy, color.RGBA{
					R: uint8(sr >> 8), G: uint8(sg >> 8), B: uint8(sb >> 8), A: 255,
				})
				continue
			}
			if sa == 0 {
				continue
			}
			src8 := [4]byte{uint8(sr >> 8), uint8(sg >> 8), uint8(sb >> 8), uint8(sa >> 8)}
			idx := dst.PixOffset(dx, dy)
			dst8 := [4]byte{dst.Pix[idx], dst.Pix[idx+1], dst.Pix[idx+2], dst.Pix[idx+3]}
			out := alphaBlend(src8, dst8)
			copy(dst.Pix[idx:idx+4], out[:])
		}
	}
}

// alphaBlend performs a straight-alpha "over" composite.
func alphaBlend(src, dst [4]byte) [4]byte {
	as := float64(src[3]) / 255.0
	rs := float64(src[0]) / 255.0 * as
	gs := float64(src[1]) / 255.0 * as
	bs := float64(src[2]) / 255.0 * as

	ad := float64(dst[3]) / 255.0
	rd := float64(dst[0]) / 255.0 * ad
	gd := float64(dst[1]) / 255.0 * ad
	bd := float64(dst[2]) / 255.0 * ad

	ar := as + ad*(1-as)
	rr := rs + rd*(1-as)
	gr := gs + gd*(1-as)
	br := bs + bd*(1-as)

	if ar > 0 {
		return [4]byte{
			byte(rr / ar * 255.0),
			byte(gr / ar * 255.0),
			byte(br / ar * 255.0),
			byte(ar * 255.0),
		}
	}
	return [4]byte{0, 0, 0, 0}
}
