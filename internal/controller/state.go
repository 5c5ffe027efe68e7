package controller

import "github.com/bryanchriswhite/DetectStreamer/internal/output"

// Mode is the session mode. Streaming implies an active camera.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeCamera    Mode = "camera-active"
	ModeStreaming Mode = "streaming-active"
)

// Status lines shown to the user
const (
	StatusCameraStarted    = "Camera started"
	StatusCameraError      = "Error accessing camera"
	StatusCameraStopped    = "Camera stopped"
	StatusStreamingActive  = "Real-time detection active"
	StatusStreamingStopped = "Real-time detection stopped"
	StatusProcessing       = "Processing image..."
	StatusDetectionDone    = "Detection complete"
	StatusProcessingError  = "Error processing image"
)

// Controls mirrors which user controls are usable
type Controls struct {
	StartEnabled   bool `json:"start_enabled"`
	StopEnabled    bool `json:"stop_enabled"`
	CaptureEnabled bool `json:"capture_enabled"`
	ToggleEnabled  bool `json:"toggle_enabled"`
	ToggleChecked  bool `json:"toggle_checked"`
}

// idleControls is the pre-start state
func idleControls() Controls {
	return Controls{StartEnabled: true}
}

// activeControls is the state after a successful camera start
func activeControls() Controls {
	return Controls{
		StopEnabled:    true,
		CaptureEnabled: true,
		ToggleEnabled:  true,
	}
}

// State is a snapshot of the controller
type State struct {
	Mode      Mode        `json:"mode"`
	Controls  Controls    `json:"controls"`
	View      output.View `json:"view"`
	Status    string      `json:"status"`
	Connected bool        `json:"connected"`
}

// Subscribe returns a channel receiving a snapshot after every change
func (c *Controller) Subscribe() chan State {
	ch := make(chan State, 10)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (c *Controller) Unsubscribe(ch chan State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, listener := range c.listeners {
		if listener == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// notifyLocked publishes the current state. Caller holds c.mu.
func (c *Controller) notifyLocked() {
	s := c.stateLocked()
	for _, listener := range c.listeners {
		select {
		case listener <- s:
		default:
			// Skip if channel is full
		}
	}
}

func (c *Controller) stateLocked() State {
	mode := ModeIdle
	if c.stream != nil {
		mode = ModeCamera
		if c.streaming {
			mode = ModeStreaming
		}
	}
	return State{
		Mode:      mode,
		Controls:  c.controls,
		View:      c.surface.View(),
		Status:    c.status,
		Connected: c.channel != nil,
	}
}

// State returns a snapshot of the controller
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Status returns the current status line
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// setStatus updates the status line and notifies listeners
func (c *Controller) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.notifyLocked()
	c.mu.Unlock()
}
