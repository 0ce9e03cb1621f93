package decode

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	data := encodeTestPNG(t, 4, 3)
	res, err := Tile(data)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	b := res.Image.Bounds()
	if b.Dx() != 4 || b.Dy() != 3 {
		t.Fatalf("unexpected bounds %v", b)
	}
}

func TestDecodeEmptyFails(t *testing.T) {
	_, err := Tile(nil)
	if err == nil {
		t.Fatalf("expected an error for empty input")
	}
}

func TestDecodeGarbageFails(t *testing.T) {
	_, err := Tile([]byte{0x00, 0x01, 0x02})
	if err == nil {
		t.Fatalf("expected an error for unrecognized data")
	}
}

func TestPNGICCProfileInflatesCompressedBytes(t *testing.T) {
	// Build a minimal PNG with a synthetic iCCP chunk ahead of IDAT.
	data := encodeTestPNG(t, 2, 2)
	pos := 8 // past the PNG signature
	idatOffset := -1
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		if typ == "IDAT" {
			idatOffset = pos
			break
		}
		pos += 8 + length + 4
	}
	if idatOffset < 0 {
		t.Fatalf("could not locate IDAT in generated PNG")
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write([]byte("fake-icc-bytes")); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}

	// iCCP body: profile-name NUL compression-method(1 byte) zlib-compressed profile.
	body := append([]byte("test\x00\x00"), compressed.Bytes()...)
	var chunk bytes.Buffer
	lenBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBytes, uint32(len(body)))
	chunk.Write(lenBytes)
	chunk.WriteString("iCCP")
	chunk.Write(body)
	chunk.Write([]byte{0, 0, 0, 0}) // CRC, unchecked by our parser

	spliced := append(append(append([]byte{}, data[:idatOffset]...), chunk.Bytes()...), data[idatOffset:]...)

	icc := pngICCProfile(spliced)
	if icc == nil {
		t.Fatalf("expected to extract an ICC profile")
	}
	if string(icc) != "fake-icc-bytes" {
		t.Fatalf("got %q, want the inflated profile bytes", icc)
	}
}
