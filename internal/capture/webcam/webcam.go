// Package webcam is the OpenCV camera backend
package webcam

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/bryanchriswhite/DetectStreamer/internal/capture"
	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"gocv.io/x/gocv"
)

// Device opens a V4L2/AVFoundation camera through gocv
type Device struct {
	target string
}

// New is a capture.Factory for the "webcam" scheme. The target is a
// camera index ("0") or a device path ("/dev/video0").
func New(target string) (capture.Device, error) {
	if target == "" {
		target = "0"
	}
	return &Device{target: target}, nil
}

func (d *Device) source() interface{} {
	if id, err := strconv.Atoi(d.target); err == nil {
		return id
	}
	return d.target
}

// Open acquires the camera and asks for the ideal resolution
func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("webcam")

	vc, err := gocv.OpenVideoCapture(d.source())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: camera %s could not be opened", capture.ErrDeviceUnavailable, d.target)
	}

	// Ideal values only: the driver snaps to the nearest supported mode
	if c.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.FPS))
	}

	s := &stream{
		vc:     vc,
		mat:    gocv.NewMat(),
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}

	log.Info().
		Str("device", d.target).
		Int("width", s.width).
		Int("height", s.height).
		Msg("Camera opened")

	return s, nil
}

// Name returns the device name
func (d *Device) Name() string {
	return "webcam " + d.target
}

// IsAvailable probes the camera by opening and closing it
func (d *Device) IsAvailable() bool {
	vc, err := gocv.OpenVideoCapture(d.source())
	if err != nil {
		return false
	}
	defer vc.Close()
	return vc.IsOpened()
}

type stream struct {
	mu      sync.Mutex
	vc      *gocv.VideoCapture
	mat     gocv.Mat
	width   int
	height  int
	stopped bool
}

func (s *stream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, capture.ErrStreamStopped
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("webcam: failed to read frame")
	}
	return s.mat.ToImage()
}

func (s *stream) Size() (int, int) {
	return s.width, s.height
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.mat.Close()
	return s.vc.Close()
}
