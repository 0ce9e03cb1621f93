package canvas

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mlb/dezoomify-rs/internal/vec2d"
)

const (
	pngColorTypeRGBA  = 6
	pngBitDepth       = 8
	pngFilterNone     = 0
	idatChunkMaxBytes = 32 * 1024
)

// bandRow is the state of one not-yet-flushed canvas row while it is being
// assembled from arbitrarily ordered incoming tiles.
type bandRow struct {
	pix     []byte // W*4 bytes, RGBA
	covered []bool
	filled  int
}

// Streaming is the streaming PNG canvas: it buffers only the currently open
// horizontal band of rows and flushes completed rows top-to-bottom as soon
// as every pixel in them has been painted, keeping peak memory proportional
// to the maximum vertical span of in-flight tiles rather than to the whole
// image. The invariant it must never violate is that the set of
// not-yet-flushed rows is always a contiguous suffix [yNext, H).
type Streaming struct {
	path string
	size vec2d.Vec2d

	file   *os.File
	buf    *bufio.Writer
	zw     *zlib.Writer
	idat   *idatWriter
	opened bool

	yNext int
	band  map[int]*bandRow

	failed bool
}

// NewStreaming builds a Streaming canvas writing to path. Unlike Memory,
// its size must be known (or become known) before any tile can be flushed;
// SetSize may be called once the level's real dimensions are discovered.
func NewStreaming(path string) *Streaming {
	return &Streaming{path: path, band: make(map[int]*bandRow)}
}

func (s *Streaming) Destination() string { return s.path }

func (s *Streaming) SetSize(size vec2d.Vec2d) error {
	if size.X < 1 || size.Y < 1 {
		return &Error{Kind: ErrorUnknown, Msg: fmt.Sprintf("invalid canvas size %s", size)}
	}
	if s.opened {
		if s.size != size {
			return &Error{Kind: ErrorUnknown, Msg: "canvas size changed after streaming began"}
		}
		return nil
	}
	s.size = size
	return s.open()
}

func (s *Streaming) open() error {
	f, err := os.Create(s.path)
	if err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "creating output file", Cause: err}
	}
	s.file = f
	s.buf = bufio.NewWriterSize(f, 64*1024)

	if err := writePNGSignatureAndHeader(s.buf, s.size); err != nil {
		return err
	}

	s.idat = &idatWriter{w: s.buf}
	zw, err := zlib.NewWriterLevel(s.idat, zlib.DefaultCompression)
	if err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "initializing PNG deflate stream", Cause: err}
	}
	s.zw = zw
	s.opened = true
	return nil
}

// AddTile paints a decoded tile into the open band, flushing every row that
// becomes fully covered as a result, in order.
func (s *Streaming) AddTile(t Tile) error {
	if s.failed {
		return &Error{Kind: ErrorRowRegression, Msg: "canvas already failed, refusing further writes"}
	}
	if !s.opened {
		if err := s.SetSize(t.Position.Add(t.Size())); err != nil {
			return err
		}
	}

	tileSize := t.Size()
	top, bottom := t.Position.Y, t.Position.Y+tileSize.Y
	if bottom <= s.yNext {
		s.failed = true
		return &Error{Kind: ErrorRowRegression, Msg: fmt.Sprintf(
			"tile at y=%d..%d arrived after row %d was already flushed", top, bottom, s.yNext)}
	}

	bounds := t.Image.Bounds()
	for y := 0; y < tileSize.Y; y++ {
		absY := t.Position.Y + y
		if absY < s.yNext || absY < 0 || absY >= s.size.Y {
			continue
		}
		row := s.band[absY]
		if row == nil {
			row = &bandRow{pix: make([]byte, s.size.X*4), covered: make([]bool, s.size.X)}
			s.band[absY] = row
		}
		for x := 0; x < tileSize.X; x++ {
			absX := t.Position.X + x
			if absX < 0 || absX >= s.size.X {
				continue
			}
			if row.covered[absX] {
				continue
			}
			r, g, b, a := t.Image.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := absX * 4
			row.pix[idx] = uint8(r >> 8)
			row.pix[idx+1] = uint8(g >> 8)
			row.pix[idx+2] = uint8(b >> 8)
			row.pix[idx+3] = uint8(a >> 8)
			row.covered[absX] = true
			row.filled++
		}
	}

	return s.flushCompleteRows()
}

// flushCompleteRows writes every fully-covered row starting at yNext, in
// order, stopping at the first incomplete or missing row: rows are only
// ever flushed as a contiguous prefix growing from the top.
func (s *Streaming) flushCompleteRows() error {
	for {
		row, ok := s.band[s.yNext]
		if !ok || row.filled < s.size.X {
			return nil
		}
		if _, err := s.zw.Write(append([]byte{pngFilterNone}, row.pix...)); err != nil {
			s.failed = true
			return &Error{Kind: ErrorEncoding, Msg: "writing PNG scanline", Cause: err}
		}
		delete(s.band, s.yNext)
		s.yNext++
	}
}

// Finalize pads any never-completed rows with zeroed (transparent) pixels,
// flushes the deflate stream, writes IEND, and closes the file.
func (s *Streaming) Finalize() error {
	if !s.opened {
		return &Error{Kind: ErrorUnknown, Msg: "no tiles were ever painted, canvas has no size"}
	}
	if s.failed {
		return &Error{Kind: ErrorRowRegression, Msg: "refusing to finalize a canvas that already failed"}
	}
	for s.yNext < s.size.Y {
		row, ok := s.band[s.yNext]
		var pix []byte
		if ok {
			pix = row.pix
		} else {
			pix = make([]byte, s.size.X*4)
		}
		if _, err := s.zw.Write(append([]byte{pngFilterNone}, pix...)); err != nil {
			return &Error{Kind: ErrorEncoding, Msg: "writing PNG scanline", Cause: err}
		}
		delete(s.band, s.yNext)
		s.yNext++
	}
	if err := s.zw.Close(); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "closing PNG deflate stream", Cause: err}
	}
	if err := s.idat.Close(); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "flushing final IDAT chunk", Cause: err}
	}
	if err := writeChunk(s.buf, "IEND", nil); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "writing IEND chunk", Cause: err}
	}
	if err := s.buf.Flush(); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "flushing output file", Cause: err}
	}
	return s.file.Close()
}

func writePNGSignatureAndHeader(w *bufio.Writer, size vec2d.Vec2d) error {
	if _, err := w.Write([]byte("\x89PNG\r\n\x1a\n")); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "writing PNG signature", Cause: err}
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(size.X))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(size.Y))
	ihdr[8] = pngBitDepth
	ihdr[9] = pngColorTypeRGBA
	ihdr[10] = 0 // compression method
	ihdr[11] = 0 // filter method
	ihdr[12] = 0 // interlace method
	if err := writeChunk(w, "IHDR", ihdr); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "writing IHDR chunk", Cause: err}
	}
	return nil
}

func writeChunk(w *bufio.Writer, typ string, body []byte) error {
	if _, err := w.Write(buildChunk(typ, body)); err != nil {
		return err
	}
	return nil
}

// idatWriter turns an unbounded stream of deflate output into a sequence of
// PNG IDAT chunks, each capped at idatChunkMaxBytes, writing each chunk to
// disk as soon as it's full instead of buffering the whole compressed
// image — this is what makes the canvas actually streaming.
type idatWriter struct {
	w      *bufio.Writer
	buf    []byte
}

func (iw *idatWriter) Write(p []byte) (int, error) {
	iw.buf = append(iw.buf, p...)
	for len(iw.buf) >= idatChunkMaxBytes {
		if err := writeChunk(iw.w, "IDAT", iw.buf[:idatChunkMaxBytes]); err != nil {
			return 0, err
		}
		iw.buf = iw.buf[idatChunkMaxBytes:]
	}
	return len(p), nil
}

func (iw *idatWriter) Close() error {
	if len(iw.buf) == 0 {
		return nil
	}
	err := writeChunk(iw.w, "IDAT", iw.buf)
	iw.buf = nil
	return err
}
