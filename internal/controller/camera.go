package controller

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/capture"
	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
)

// StartCamera opens the capture device and starts the live feed. Calling
// it while the camera is active does nothing; calling it while another
// start is opening the device returns ErrCameraStarting. The detection channel is
// opened on the first successful start and reused afterwards.
func (c *Controller) StartCamera(ctx context.Context) error {
	log := logger.WithComponent("controller")

	c.mu.Lock()
	if c.starting {
		c.mu.Unlock()
		return ErrCameraStarting
	}
	if c.stream != nil {
		c.mu.Unlock()
		return nil
	}
	if c.device == nil {
		c.status = StatusCameraError
		c.notifyLocked()
		c.mu.Unlock()
		return fmt.Errorf("failed to start camera: %w", capture.ErrDeviceUnavailable)
	}
	c.starting = true
	c.mu.Unlock()

	stream, err := c.device.Open(ctx, c.constraints)
	var first image.Image
	if err == nil {
		first, err = stream.Read()
		if err != nil {
			stream.Stop()
		}
	}

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.status = StatusCameraError
		c.notifyLocked()
		c.mu.Unlock()
		log.Error().Err(err).Str("device", c.device.Name()).Msg("Failed to access camera")
		return fmt.Errorf("failed to start camera: %w", err)
	}

	pumpCtx, stop := context.WithCancel(c.ctx)
	c.stream = stream
	c.latest = first
	c.stopPump = stop
	c.controls = activeControls()
	c.status = StatusCameraStarted
	c.surface.SetLive(first)
	c.surface.ShowLive()
	c.notifyLocked()
	c.mu.Unlock()

	w, h := stream.Size()
	log.Info().
		Str("device", c.device.Name()).
		Int("width", w).
		Int("height", h).
		Msg("Camera started")

	c.goBackground(func() { c.pump(pumpCtx, stream) })

	c.connect(ctx)
	return nil
}

// StopCamera releases the device and resets the controls. Any in-flight
// single-shot result is discarded when it arrives.
func (c *Controller) StopCamera() {
	c.mu.Lock()
	stream := c.stream
	if stream == nil {
		c.mu.Unlock()
		return
	}
	c.stream = nil
	c.latest = nil
	c.streaming = false
	c.generation++
	c.controls = idleControls()
	c.status = StatusCameraStopped
	if c.stopPump != nil {
		c.stopPump()
		c.stopPump = nil
	}
	c.surface.ClearLive()
	c.surface.ShowLive()
	c.notifyLocked()
	c.mu.Unlock()

	if err := stream.Stop(); err != nil {
		logger.WithComponent("controller").Warn().Err(err).Msg("Failed to stop camera stream")
	}
	logger.WithComponent("controller").Info().Msg("Camera stopped")
}

// pump is the only reader of the camera stream. It keeps the latest frame
// and the surface's live slot current.
func (c *Controller) pump(ctx context.Context, stream capture.Stream) {
	ticker := time.NewTicker(c.surface.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		img, err := stream.Read()
		if err != nil {
			if ctx.Err() == nil {
				logger.WithComponent("controller").Debug().Err(err).Msg("Camera read failed")
			}
			continue
		}

		c.mu.Lock()
		if c.stream != stream {
			c.mu.Unlock()
			return
		}
		c.latest = img
		c.surface.SetLive(img)
		c.mu.Unlock()
	}
}

// snapshot returns the current camera frame
func (c *Controller) snapshot() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil || c.latest == nil {
		return nil, ErrCameraNotActive
	}
	return c.latest, nil
}
