package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
)

// Factory builds a device for the target part of a device spec
type Factory func(target string) (Device, error)

// DefaultScheme handles specs without a recognised scheme, e.g. "0" or
// "/dev/video0"
const DefaultScheme = "webcam"

// Router routes a configured device spec to the backend that handles it.
// Specs look like "file:/path/img.jpg", "webcam:1", "0" or "/dev/video0".
type Router struct {
	spec      string
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRouter creates a router for spec with the "file" backend registered
func NewRouter(spec string) *Router {
	r := &Router{
		spec:      spec,
		factories: make(map[string]Factory),
	}
	r.Register("file", func(target string) (Device, error) {
		return NewImageDevice(target), nil
	})
	return r
}

// Register adds a backend for scheme
func (r *Router) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[scheme] = f
}

// ParseSpec splits a device spec into scheme and target
func ParseSpec(spec string) (scheme, target string) {
	if s, t, ok := strings.Cut(spec, ":"); ok && s != "" && !strings.Contains(s, "/") {
		return s, t
	}
	return DefaultScheme, spec
}

// Resolve returns the device for the configured spec
func (r *Router) Resolve() (Device, error) {
	scheme, target := ParseSpec(r.spec)

	r.mu.RLock()
	f, ok := r.factories[scheme]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no backend for %q", ErrDeviceUnavailable, r.spec)
	}

	d, err := f(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return d, nil
}

// Open resolves the device and opens it
func (r *Router) Open(ctx context.Context, c Constraints) (Stream, error) {
	d, err := r.Resolve()
	if err != nil {
		return nil, err
	}

	logger.WithComponent("capture").Debug().
		Str("spec", r.spec).
		Str("device", d.Name()).
		Int("width", c.Width).
		Int("height", c.Height).
		Msg("Opening capture device")

	return d.Open(ctx, c)
}

// Name returns the configured spec
func (r *Router) Name() string {
	return r.spec
}

// IsAvailable checks if the resolved backend can be used
func (r *Router) IsAvailable() bool {
	d, err := r.Resolve()
	if err != nil {
		return false
	}
	return d.IsAvailable()
}
