package output

import (
	"context"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/bryanchriswhite/DetectStreamer/internal/overlay"
)

// View names the slot of the display surface that is visible
type View string

const (
	// ViewLive shows the camera feed
	ViewLive View = "live"

	// ViewResult shows the most recent processed image
	ViewResult View = "result"
)

// Surface is the display: it holds the live feed and the last processed
// image and shows exactly one of them. Run paints the visible slot to the
// outputs once per tick; NextPaint lets callers wait for a tick.
type Surface struct {
	mu     sync.RWMutex
	view   View
	live   image.Image
	result image.Image

	fps     int
	overlay *overlay.Manager
	outputs []Output

	tickMu sync.Mutex
	tick   chan struct{}
	paints uint64
}

// NewSurface creates a surface painting at fps. overlay may be nil.
func NewSurface(fps int, ov *overlay.Manager, outputs ...Output) *Surface {
	if fps <= 0 {
		fps = 30
	}
	return &Surface{
		view:    ViewLive,
		fps:     fps,
		overlay: ov,
		outputs: outputs,
		tick:    make(chan struct{}),
	}
}

// View returns the visible slot
func (s *Surface) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// ShowLive makes the live feed visible
func (s *Surface) ShowLive() {
	s.mu.Lock()
	s.view = ViewLive
	s.mu.Unlock()
}

// ShowResult makes the result slot visible without changing its content
func (s *Surface) ShowResult() {
	s.mu.Lock()
	s.view = ViewResult
	s.mu.Unlock()
}

// Present stores a processed image and makes it visible
func (s *Surface) Present(img image.Image) {
	s.mu.Lock()
	s.result = img
	s.view = ViewResult
	s.mu.Unlock()
}

// SetLive updates the live feed buffer
func (s *Surface) SetLive(img image.Image) {
	s.mu.Lock()
	s.live = img
	s.mu.Unlock()
}

// ClearLive drops the live feed, as when the camera is released
func (s *Surface) ClearLive() {
	s.mu.Lock()
	s.live = nil
	s.mu.Unlock()
}

// Result returns the stored processed image
func (s *Surface) Result() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Visible returns the image in the visible slot, or nil
func (s *Surface) Visible() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view == ViewResult {
		return s.result
	}
	return s.live
}

// Interval is the time between paints
func (s *Surface) Interval() time.Duration {
	return time.Second / time.Duration(s.fps)
}

// Run paints until ctx is done
func (s *Surface) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Paint()
		}
	}
}

// Paint composes the visible slot with the overlay, writes it to every
// output and releases NextPaint waiters
func (s *Surface) Paint() {
	defer s.release()

	src := s.Visible()
	if src == nil || len(s.outputs) == 0 {
		return
	}

	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)

	if s.overlay != nil {
		s.overlay.Render(canvas)
	}

	for _, out := range s.outputs {
		if !out.IsRunning() {
			continue
		}
		if err := out.WriteFrame(canvas); err != nil {
			logger.WithComponent("surface").Warn().
				Err(err).
				Str("output", out.Name()).
				Msg("Failed to write frame")
		}
	}
}

func (s *Surface) release() {
	s.tickMu.Lock()
	close(s.tick)
	s.tick = make(chan struct{})
	s.paints++
	s.tickMu.Unlock()
}

// Paints returns the number of completed paints
func (s *Surface) Paints() uint64 {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.paints
}

// NextPaint blocks until the next paint completes. It is the counterpart
// of a browser animation frame callback.
func (s *Surface) NextPaint(ctx context.Context) error {
	s.tickMu.Lock()
	tick := s.tick
	s.tickMu.Unlock()

	select {
	case <-tick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
