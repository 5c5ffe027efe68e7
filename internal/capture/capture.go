package capture

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrDeviceUnavailable wraps permission and device failures on Open
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrStreamStopped is returned by Read after Stop
	ErrStreamStopped = errors.New("capture: stream stopped")
)

// Constraints are the preferred capture settings. They are ideal values:
// a backend uses the closest mode the hardware offers.
type Constraints struct {
	Width  int
	Height int
	FPS    int
}

// Stream is an open video source
type Stream interface {
	// Read samples the current frame
	Read() (image.Image, error)

	// Size reports the negotiated frame size
	Size() (width, height int)

	// Stop releases every track held by the stream. Safe to call twice.
	Stop() error
}

// Device defines the interface for camera backends
type Device interface {
	// Open acquires the device. Failures wrap ErrDeviceUnavailable.
	Open(ctx context.Context, c Constraints) (Stream, error)

	// Name returns a human-readable name for this device
	Name() string

	// IsAvailable checks if this device can be used in the current environment
	IsAvailable() bool
}
