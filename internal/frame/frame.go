// Package frame holds the encoded images exchanged with the detection
// service and their data URL form.
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"strings"

	// decoders for uploaded files
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned when bytes do not look like a supported image
var ErrNotImage = errors.New("frame: not an image")

// Frame is one encoded image
type Frame struct {
	Data []byte
	MIME string
}

// EncodeJPEG compresses img at the given quality (1-100)
func EncodeJPEG(img image.Image, quality int) (*Frame, error) {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return &Frame{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// New wraps already-encoded bytes, sniffing the MIME type
func New(data []byte) (*Frame, error) {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mime)
	}
	return &Frame{Data: data, MIME: mime}, nil
}

// ReadFile loads an image file as a frame
func ReadFile(path string) (*Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := New(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// DataURL renders the frame as data:<mime>;base64,<payload>
func (f *Frame) DataURL() string {
	return "data:" + f.MIME + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Decode returns the decoded bitmap
func (f *Frame) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", f.MIME, err)
	}
	return img, nil
}

// ParseDataURL decodes a data URL. The payload is everything after the
// first comma; a string without a comma is taken as bare base64.
func ParseDataURL(s string) (*Frame, error) {
	header, payload, found := strings.Cut(s, ",")
	if !found {
		payload = header
		header = ""
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid data URL payload: %w", err)
	}

	mime := ""
	if strings.HasPrefix(header, "data:") {
		mime, _, _ = strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	}
	if mime == "" {
		return New(data)
	}
	return &Frame{Data: data, MIME: mime}, nil
}
