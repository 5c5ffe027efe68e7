package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
)

// MJPEGOutput streams painted frames as Motion JPEG over HTTP
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	frameMu    sync.RWMutex
	lastJPEG   []byte
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount atomic.Uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 {
		config.Quality = 80
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output. The HTTP side is mounted
// separately via StreamHandler.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount.Store(0)

	logger.WithComponent("mjpeg").Info().
		Int("fps", m.config.FPS).
		Int("quality", m.config.Quality).
		Msg("Output started")
	return nil
}

// Stop cleanly shuts down the output and disconnects clients
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Uint64("frames", m.frameCount.Load()).
		Msg("Output stopped")
	return nil
}

// WriteFrame encodes a frame and sends it to all connected clients
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastJPEG = jpegData
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.frameCount.Add(1)

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// LastJPEG returns the most recently written frame
func (m *MJPEGOutput) LastJPEG() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.lastJPEG
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ClientCount returns the number of connected viewers
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// StreamHandler returns an http.Handler for the MJPEG stream
func (m *MJPEGOutput) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Client disconnected")
		}()

		// Start with the last frame so a viewer never waits on an idle surface
		if last := m.LastJPEG(); last != nil {
			if err := writePart(w, last); err != nil {
				return
			}
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Stats summarises the stream
type Stats struct {
	Running    bool    `json:"running"`
	TargetFPS  int     `json:"target_fps"`
	ActualFPS  float64 `json:"actual_fps"`
	Frames     uint64  `json:"frames"`
	Clients    int     `json:"clients"`
	LastUpdate string  `json:"last_update"`
	Uptime     string  `json:"uptime"`
}

// Stats returns current stream statistics
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running := m.running
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	m.frameMu.RUnlock()

	frames := m.frameCount.Load()
	s := Stats{
		Running:    running,
		TargetFPS:  m.config.FPS,
		Frames:     frames,
		Clients:    m.ClientCount(),
		LastUpdate: "never",
		Uptime:     "n/a",
	}

	if running && !startTime.IsZero() {
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			s.ActualFPS = float64(frames) / elapsed
		}
		s.Uptime = time.Since(startTime).Round(time.Second).String()
	}
	if !lastUpdate.IsZero() {
		s.LastUpdate = time.Since(lastUpdate).Round(time.Millisecond).String() + " ago"
	}
	return s
}
