package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/config"
	"github.com/bryanchriswhite/DetectStreamer/internal/controller"
	"github.com/bryanchriswhite/DetectStreamer/internal/frame"
	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/bryanchriswhite/DetectStreamer/internal/output"
	"github.com/bryanchriswhite/DetectStreamer/internal/transport"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

const (
	maxUploadBytes = 32 << 20
	wsWriteTimeout = 10 * time.Second
)

// Server represents the HTTP control API and viewer
type Server struct {
	router     *mux.Router
	controller *controller.Controller
	configMgr  *config.Manager
	mjpeg      *output.MJPEGOutput
	upgrader   websocket.Upgrader
}

// NewServer creates a new API server. mjpeg may be nil when no viewer
// stream is published.
func NewServer(ctrl *controller.Controller, configMgr *config.Manager, mjpeg *output.MJPEGOutput) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		controller: ctrl,
		configMgr:  configMgr,
		mjpeg:      mjpeg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the viewer may be opened from any local origin
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Camera and detection
	api.HandleFunc("/camera/start", s.handleStartCamera).Methods("POST")
	api.HandleFunc("/camera/stop", s.handleStopCamera).Methods("POST")
	api.HandleFunc("/capture", s.handleCapture).Methods("POST")
	api.HandleFunc("/realtime", s.handleRealtime).Methods("PUT")
	api.HandleFunc("/upload", s.handleUpload).Methods("POST")

	// State
	api.HandleFunc("/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/state/stream", s.handleStateStream)

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Display stream
	if s.mjpeg != nil {
		s.router.HandleFunc("/stream", s.mjpeg.StreamHandler()).Methods("GET")
		s.router.HandleFunc("/stream/stats", s.handleStreamStats).Methods("GET")
	}

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the router wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithComponent("api").Info().
			Str("addr", "http://localhost"+addr).
			Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errorStatus maps controller and transport errors onto HTTP codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, controller.ErrCameraNotActive),
		errors.Is(err, controller.ErrCameraStarting),
		errors.Is(err, controller.ErrChannelUnavailable),
		errors.Is(err, controller.ErrStaleResult):
		return http.StatusConflict
	case errors.Is(err, frame.ErrNotImage):
		return http.StatusBadRequest
	case transport.IsServiceError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// detectionResponse is returned by the single-shot endpoints
type detectionResponse struct {
	Status         string `json:"status"`
	ProcessedImage string `json:"processed_image"`
}

// HTTP Handlers

func (s *Server) handleStartCamera(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StartCamera(r.Context()); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, controller.ErrCameraStarting) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]interface{}{
			"error": err.Error(),
			"state": s.controller.State(),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleStopCamera(w http.ResponseWriter, r *http.Request) {
	s.controller.StopCamera()
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	result, err := s.controller.CaptureOne(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detectionResponse{
		Status:         s.controller.Status(),
		ProcessedImage: result,
	})
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.controller.ToggleStreaming(req.Enabled); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		// nothing selected
		writeJSON(w, http.StatusOK, s.controller.State())
		return
	}

	file, err := files[0].Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger.WithComponent("api").Debug().
		Str("filename", files[0].Filename).
		Int("bytes", len(data)).
		Msg("Upload received")

	result, err := s.controller.UploadData(r.Context(), data)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detectionResponse{
		Status:         s.controller.Status(),
		ProcessedImage: result,
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Subscribe to state changes
	updates := s.controller.Subscribe()
	defer s.controller.Unsubscribe(updates)

	// Notice the viewer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(state controller.State) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(state); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return false
		}
		return true
	}

	// Send initial state
	if !write(s.controller.State()) {
		return
	}

	// Stream updates
	for {
		select {
		case <-gone:
			return
		case state, ok := <-updates:
			if !ok || !write(state) {
				return
			}
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		writeError(w, http.StatusNotFound, errors.New("no configuration loaded"))
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mjpeg.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"version":   Version,
		"connected": s.controller.State().Connected,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}
