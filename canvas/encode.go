package canvas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
)

// ErrEncoding marks a surface that could not be encoded.
var ErrEncoding = errors.New("encoding failed")

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"

	// DefaultQuality is used for lossy formats when the requested quality is
	// outside [0, 1].
	DefaultQuality = 0.92
)

// Encoder writes img to w. quality is in [0, 1] and ignored by lossless
// formats.
type Encoder func(w io.Writer, img image.Image, quality float64) error

// Blob is an encoded image.
type Blob struct {
	Type string
	Data []byte
}

func encodePNG(w io.Writer, img image.Image, _ float64) error {
	return png.Encode(w, img)
}

func encodeJPEG(w io.Writer, img image.Image, quality float64) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: int(quality*100 + 0.5)})
}

func defaultEncoders() map[string]Encoder {
	return map[string]Encoder{
		MimePNG:  encodePNG,
		MimeJPEG: encodeJPEG,
	}
}

// encode picks the encoder for mime, falling back to PNG for types with no
// encoder.
func (e *Engine) encode(img image.Image, mime string, quality float64) (*Blob, error) {
	if mime == "" {
		mime = MimePNG
	}
	enc, ok := e.encoders[mime]
	if !ok {
		mime = MimePNG
		enc = e.encoders[MimePNG]
	}
	if quality < 0 || quality > 1 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := enc(&buf, img, quality); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, mime, err)
	}
	return &Blob{Type: mime, Data: buf.Bytes()}, nil
}

// DataURL renders the blob as a base64 data URL.
func (b *Blob) DataURL() string {
	return "data:" + b.Type + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}
