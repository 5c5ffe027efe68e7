package controller

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/DetectStreamer/internal/frame"
	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
)

// connect opens the detection channel unless one is already open. A failed
// dial leaves the single-shot path usable.
func (c *Controller) connect(ctx context.Context) {
	log := logger.WithComponent("controller")

	c.mu.Lock()
	if c.channel != nil || c.dialing || c.dial == nil {
		c.mu.Unlock()
		return
	}
	c.dialing = true
	c.mu.Unlock()

	ch, err := c.dial(ctx, (*channelHandler)(c))

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		log.Warn().Err(err).Msg("Detection channel unavailable, real-time detection disabled")
		return
	}
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		ch.Close()
		return
	}
	c.channel = ch
	c.notifyLocked()
	c.mu.Unlock()

	if d, ok := ch.(interface{ Done() <-chan struct{} }); ok {
		c.goBackground(func() { c.watchChannel(ch, d.Done()) })
	}
}

// watchChannel forgets the channel once it goes away so the next camera
// start can open a new one
func (c *Controller) watchChannel(ch FrameSender, done <-chan struct{}) {
	select {
	case <-done:
	case <-c.ctx.Done():
		return
	}

	c.mu.Lock()
	if c.channel != ch {
		c.mu.Unlock()
		return
	}
	c.channel = nil
	c.streaming = false
	c.inFlight = false
	if c.stream != nil {
		c.controls.ToggleChecked = false
		c.surface.ShowLive()
	}
	c.notifyLocked()
	c.mu.Unlock()

	if err := ch.Close(); err != nil {
		logger.WithComponent("controller").Debug().Err(err).Msg("Failed to close lost channel")
	}
}

// ToggleStreaming turns real-time detection on or off
func (c *Controller) ToggleStreaming(enabled bool) error {
	c.mu.Lock()
	if !enabled {
		wasStreaming := c.streaming
		c.streaming = false
		c.controls.ToggleChecked = false
		if c.stream != nil {
			c.surface.ShowLive()
		}
		if wasStreaming {
			c.status = StatusStreamingStopped
		}
		c.notifyLocked()
		c.mu.Unlock()
		if wasStreaming {
			logger.WithComponent("controller").Info().Msg("Real-time detection stopped")
		}
		return nil
	}

	if c.stream == nil {
		c.mu.Unlock()
		return ErrCameraNotActive
	}
	if c.channel == nil {
		c.mu.Unlock()
		return ErrChannelUnavailable
	}
	if c.streaming {
		c.mu.Unlock()
		return nil
	}
	c.streaming = true
	c.controls.ToggleChecked = true
	c.status = StatusStreamingActive
	c.surface.ShowResult()
	c.notifyLocked()
	c.mu.Unlock()

	logger.WithComponent("controller").Info().Msg("Real-time detection active")
	c.sendFrame()
	return nil
}

// Streaming reports whether real-time detection is on
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// sendFrame emits the current camera frame on the channel. It does nothing
// once streaming has been turned off or while a frame is awaiting its reply.
func (c *Controller) sendFrame() {
	c.mu.Lock()
	if !c.streaming || c.stream == nil || c.channel == nil || c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	img := c.latest
	ch := c.channel
	c.mu.Unlock()

	f, err := frame.EncodeJPEG(img, c.streamQuality)
	if err == nil {
		err = ch.SendFrame(f.DataURL())
	}
	if err != nil {
		logger.WithComponent("controller").Warn().Err(err).Msg("Failed to send frame")
		c.mu.Lock()
		c.inFlight = false
		c.status = fmt.Sprintf("Error: %v", err)
		c.notifyLocked()
		c.mu.Unlock()
	}
}

// channelHandler receives channel events on behalf of the controller
type channelHandler Controller

func (h *channelHandler) OnConnect() {
	logger.WithComponent("controller").Info().Msg("Connected to detection channel")
}

// OnProcessedFrame shows the result and sends the next frame after the
// following paint, so exactly one frame is in flight
func (h *channelHandler) OnProcessedFrame(image string) {
	c := (*Controller)(h)
	log := logger.WithComponent("controller")

	// the reply settles the outstanding frame even when it is discarded
	c.mu.Lock()
	c.inFlight = false
	streaming := c.streaming
	c.mu.Unlock()
	if !streaming {
		return
	}

	f, err := frame.ParseDataURL(image)
	if err != nil {
		log.Warn().Err(err).Msg("Malformed processed frame")
		c.setStatus(fmt.Sprintf("Error: %v", err))
		return
	}
	img, err := f.Decode()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode processed frame")
		c.setStatus(fmt.Sprintf("Error: %v", err))
		return
	}

	c.mu.Lock()
	if !c.streaming {
		c.mu.Unlock()
		return
	}
	c.surface.Present(img)
	c.mu.Unlock()

	if c.onFrame != nil {
		c.onFrame()
	}

	c.goBackground(func() {
		if err := c.surface.NextPaint(c.ctx); err != nil {
			return
		}
		c.sendFrame()
	})
}

func (h *channelHandler) OnError(message string) {
	c := (*Controller)(h)
	logger.WithComponent("controller").Warn().Str("message", message).Msg("Detection service reported an error")
	c.mu.Lock()
	c.inFlight = false
	c.status = "Error: " + message
	c.notifyLocked()
	c.mu.Unlock()
}
