// Package decode turns fetched tile bytes into a pixel raster plus an
// optional ICC profile, beyond PNG/JPEG by registering TIFF and WebP
// codecs, and extracts an ICC profile from the raw bytes since neither
// the stdlib codecs nor golang.org/x/image expose one.
package decode

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func init() {
	// image/jpeg, image/png and image/gif self-register via their own
	// init(); golang.org/x/image/{tiff,webp} do the same via blank import.
	_ = jpeg.DefaultQuality
	_ = png.DefaultCompression
	_ = gif.DisposalNone
}

// Error means a tile's bytes could not be turned into a raster.
type Error struct {
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("decode error: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Result is a decoded tile: its raster plus any embedded ICC profile.
type Result struct {
	Image      image.Image
	ICCProfile []byte
}

// Tile decodes raw tile bytes into a raster image, extracting an ICC
// profile when present. It is stateless and safe to call concurrently from
// many goroutines.
func Tile(data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, &Error{Reason: "empty tile body"}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, &Error{Reason: "unrecognized or corrupt image", Cause: err}
	}

	var icc []byte
	switch format {
	case "png":
		icc = pngICCProfile(data)
	case "jpeg":
		icc = jpegICCProfile(data)
	}

	return Result{Image: img, ICCProfile: icc}, nil
}

// pngICCProfile extracts the iCCP chunk's profile, inflated from its
// zlib-compressed form, by walking the PNG chunk stream directly: the standard image/png decoder
// exposes no public API for ancillary chunks, so this is the one place in
// the decoder that steps outside the stdlib codec (see DESIGN.md).
func pngICCProfile(data []byte) []byte {
	const sig = "\x89PNG\r\n\x1a\n"
	if len(data) < len(sig) || string(data[:len(sig)]) != sig {
		return nil
	}
	pos := len(sig)
	for pos+8 <= len(data) {
		length := binary.BigEndian.Uint32(data[pos : pos+4])
		typ := string(data[pos+4 : pos+8])
		bodyStart := pos + 8
		bodyEnd := bodyStart + int(length)
		if bodyEnd+4 > len(data) || bodyEnd < bodyStart {
			return nil
		}
		if typ == "iCCP" {
			body := data[bodyStart:bodyEnd]
			nul := bytes.IndexByte(body, 0)
			if nul < 0 || nul+2 > len(body) {
				return nil
			}
			// body[nul+1] is the compression method (always 0 = deflate);
			// the profile itself follows, zlib-compressed. Inflate it here
			// so this function's contract matches jpegICCProfile's: raw
			// profile bytes, not a format-specific encoding of them.
			r, err := zlib.NewReader(bytes.NewReader(body[nul+2:]))
			if err != nil {
				return nil
			}
			defer r.Close()
			raw, err := io.ReadAll(r)
			if err != nil {
				return nil
			}
			return raw
		}
		if typ == "IDAT" || typ == "IEND" {
			return nil
		}
		pos = bodyEnd + 4
	}
	return nil
}

// jpegICCProfile extracts an ICC profile from JPEG APP2 markers (ICC
// profiles larger than one segment are split across several APP2 markers
// per the ICC.1:2010 spec, each carrying a sequence number and count).
func jpegICCProfile(data []byte) []byte {
	const marker = "ICC_PROFILE\x00"
	type chunk struct {
		seq, count int
		payload    []byte
	}
	var chunks []chunk

	pos := 2 // skip SOI
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			break
		}
		kind := data[pos+1]
		if kind == 0xD8 || kind == 0xD9 {
			pos += 2
			continue
		}
		if kind < 0xD0 || kind > 0xD9 {
			if pos+4 > len(data) {
				break
			}
			segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
			segStart := pos + 4
			segEnd := pos + 2 + segLen
			if segEnd > len(data) || segEnd < segStart {
				break
			}
			if kind == 0xE2 { // APP2
				seg := data[segStart:segEnd]
				if len(seg) > len(marker)+2 && string(seg[:len(marker)]) == marker {
					chunks = append(chunks, chunk{
						seq:     int(seg[len(marker)]),
						count:   int(seg[len(marker)+1]),
						payload: seg[len(marker)+2:],
					})
				}
			}
			if kind == 0xDA { // start of scan: no more markers follow
				break
			}
			pos = segEnd
			continue
		}
		pos += 2
	}
	if len(chunks) == 0 {
		return nil
	}
	total := chunks[0].count
	if total <= 0 {
		total = len(chunks)
	}
	ordered := make([][]byte, total+1)
	for _, c := range chunks {
		if c.seq >= 1 && c.seq <= total {
			ordered[c.seq] = c.payload
		}
	}
	var out []byte
	for _, p := range ordered[1:] {
		out = append(out, p...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
