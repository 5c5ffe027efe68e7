package capture

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"sync"

	"github.com/bryanchriswhite/DetectStreamer/internal/frame"
)

// ImageDevice plays a still image as if it were a camera. It backs
// headless runs ("file:<path>") and tests.
type ImageDevice struct {
	path string
	img  image.Image
}

// NewImageDevice creates a device that loads path on Open
func NewImageDevice(path string) *ImageDevice {
	return &ImageDevice{path: path}
}

// NewStaticDevice creates a device around an in-memory image
func NewStaticDevice(img image.Image) *ImageDevice {
	return &ImageDevice{img: img}
}

// Open loads the image and returns a stream that repeats it
func (d *ImageDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := d.img
	if img == nil {
		f, err := frame.ReadFile(d.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		img, err = f.Decode()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	return &imageStream{img: img}, nil
}

// Name returns the device name
func (d *ImageDevice) Name() string {
	if d.path == "" {
		return "static image"
	}
	return "image " + d.path
}

// IsAvailable reports whether the image can be loaded
func (d *ImageDevice) IsAvailable() bool {
	if d.img != nil {
		return true
	}
	_, err := os.Stat(d.path)
	return err == nil
}

type imageStream struct {
	mu      sync.Mutex
	img     image.Image
	stopped bool
}

func (s *imageStream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStreamStopped
	}

	// hand out a copy so callers can draw on it
	b := s.img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), s.img, b.Min, draw.Src)
	return out, nil
}

func (s *imageStream) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *imageStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}
