package canvas

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"io"
)

// encodePNGWithICC encodes img as PNG via enc, then splices a raw iCCP
// chunk (compressed with zlib per the PNG spec) right after the mandatory
// IHDR chunk. image/png exposes no public API for ancillary chunks, so this
// function works directly on the encoded byte stream instead (see
// DESIGN.md for why this is stdlib-plus-manual-bytes rather than a
// third-party PNG chunk library).
func encodePNGWithICC(w io.Writer, img image.Image, enc *png.Encoder, iccProfile []byte) error {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "encoding PNG", Cause: err}
	}
	data := buf.Bytes()

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(iccProfile); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "compressing ICC profile", Cause: err}
	}
	if err := zw.Close(); err != nil {
		return &Error{Kind: ErrorEncoding, Msg: "compressing ICC profile", Cause: err}
	}

	body := append([]byte("embedded\x00\x00"), compressed.Bytes()...)
	chunk := buildChunk("iCCP", body)

	// Splice right after the signature (8 bytes) + IHDR chunk (8 + 13 + 4).
	const sigLen = 8
	if len(data) < sigLen+8 {
		_, err := w.Write(data)
		return err
	}
	ihdrLen := binary.BigEndian.Uint32(data[sigLen : sigLen+4])
	splitAt := sigLen + 8 + int(ihdrLen) + 4

	if _, err := w.Write(data[:splitAt]); err != nil {
		return err
	}
	if _, err := w.Write(chunk); err != nil {
		return err
	}
	_, err := w.Write(data[splitAt:])
	return err
}

func buildChunk(typ string, body []byte) []byte {
	var out bytes.Buffer
	lenBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBytes, uint32(len(body)))
	out.Write(lenBytes)
	out.WriteString(typ)
	out.Write(body)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(body)
	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, crc.Sum32())
	out.Write(crcBytes)
	return out.Bytes()
}
