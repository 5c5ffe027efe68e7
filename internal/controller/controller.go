// Package controller drives the camera, the display surface and the two
// paths to the detection service.
package controller

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/bryanchriswhite/DetectStreamer/internal/capture"
	"github.com/bryanchriswhite/DetectStreamer/internal/output"
	"github.com/bryanchriswhite/DetectStreamer/internal/transport"
)

var (
	// ErrCameraNotActive is returned by operations that need a running camera
	ErrCameraNotActive = errors.New("controller: camera not active")

	// ErrChannelUnavailable is returned when streaming is enabled without
	// a connected channel
	ErrChannelUnavailable = errors.New("controller: detection channel unavailable")

	// ErrCameraStarting is returned by StartCamera while another start is
	// still opening the device
	ErrCameraStarting = errors.New("controller: camera is starting")

	// ErrStaleResult is returned when a single-shot result arrives after
	// the camera it was captured from has been stopped
	ErrStaleResult = errors.New("controller: result discarded after camera stop")
)

// Detector is the single-shot path
type Detector interface {
	Detect(ctx context.Context, image string) (string, error)
}

// FrameSender is the streaming path
type FrameSender interface {
	SendFrame(dataURL string) error
	Close() error
}

// Dialer opens the streaming channel with h receiving its events
type Dialer func(ctx context.Context, h transport.Handler) (FrameSender, error)

// Options wires a Controller
type Options struct {
	Device      capture.Device
	Constraints capture.Constraints
	Detector    Detector
	Dial        Dialer
	Surface     *output.Surface

	// JPEG quality of captured frames on each path
	CaptureQuality int
	StreamQuality  int

	// OnFrame, if set, is called after each streamed result is shown
	OnFrame func()
}

// Controller owns the camera lifecycle, the streaming flag and the
// channel. Every state change happens under mu.
type Controller struct {
	device      capture.Device
	constraints capture.Constraints
	detector    Detector
	dial        Dialer
	surface     *output.Surface
	onFrame     func()

	captureQuality int
	streamQuality  int

	mu         sync.Mutex
	stream     capture.Stream
	latest     image.Image
	starting   bool
	channel    FrameSender
	dialing    bool
	streaming  bool
	inFlight   bool
	generation uint64
	status     string
	controls   Controls
	listeners  []chan State
	stopPump   context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	bgMu   sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a controller in the idle state
func New(opts Options) *Controller {
	if opts.Surface == nil {
		opts.Surface = output.NewSurface(30, nil)
	}
	if opts.CaptureQuality == 0 {
		opts.CaptureQuality = 92
	}
	if opts.StreamQuality == 0 {
		opts.StreamQuality = 50
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		device:         opts.Device,
		constraints:    opts.Constraints,
		detector:       opts.Detector,
		dial:           opts.Dial,
		surface:        opts.Surface,
		onFrame:        opts.OnFrame,
		captureQuality: opts.CaptureQuality,
		streamQuality:  opts.StreamQuality,
		controls:       idleControls(),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Surface returns the display surface
func (c *Controller) Surface() *output.Surface {
	return c.surface
}

// Close stops the camera, closes the channel and waits for background work
func (c *Controller) Close() error {
	c.StopCamera()
	c.cancel()

	c.mu.Lock()
	ch := c.channel
	c.channel = nil
	for _, listener := range c.listeners {
		close(listener)
	}
	c.listeners = nil
	c.mu.Unlock()

	c.bgMu.Lock()
	c.closed = true
	c.bgMu.Unlock()

	var err error
	if ch != nil {
		err = ch.Close()
	}
	c.wg.Wait()
	return err
}

// goBackground runs fn as tracked background work. Nothing new starts
// once Close has begun waiting.
func (c *Controller) goBackground(fn func()) {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}
