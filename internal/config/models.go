package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"gopkg.in/yaml.v3"
)

// CameraConfig describes the preferred capture device and resolution.
// Width and height are ideal values, the device may pick something else.
type CameraConfig struct {
	Device string `json:"device" yaml:"device"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	FPS    int    `json:"fps" yaml:"fps"`
}

// DisplayConfig controls the published display surface
type DisplayConfig struct {
	FPS           int  `json:"fps" yaml:"fps"`
	OverlayStatus bool `json:"overlay_status" yaml:"overlay_status"`
}

// Config represents the application configuration
type Config struct {
	ServiceURL     string        `json:"service_url" yaml:"service_url"`
	DetectPath     string        `json:"detect_path" yaml:"detect_path"`
	ChannelPath    string        `json:"channel_path" yaml:"channel_path"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`

	Camera         CameraConfig  `json:"camera" yaml:"camera"`
	Display        DisplayConfig `json:"display" yaml:"display"`
	CaptureQuality int           `json:"capture_quality" yaml:"capture_quality"`
	StreamQuality  int           `json:"stream_quality" yaml:"stream_quality"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServiceURL:     "http://localhost:5001",
		DetectPath:     "/detect",
		ChannelPath:    "/ws",
		RequestTimeout: 30 * time.Second,
		ServerPort:     8080,
		LogLevel:       "info",
		Camera: CameraConfig{
			Device: "0",
			Width:  1280,
			Height: 720,
			FPS:    30,
		},
		Display: DisplayConfig{
			FPS:           30,
			OverlayStatus: true,
		},
		CaptureQuality: 92,
		StreamQuality:  50,
	}
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	var problems []string

	if c.ServiceURL == "" {
		problems = append(problems, "service_url must be set")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		problems = append(problems, "server_port must be between 0 and 65535")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		problems = append(problems, "camera width and height must be positive")
	}
	if c.Display.FPS <= 0 {
		problems = append(problems, "display.fps must be positive")
	}
	if c.CaptureQuality < 1 || c.CaptureQuality > 100 {
		problems = append(problems, "capture_quality must be between 1 and 100")
	}
	if c.StreamQuality < 1 || c.StreamQuality > 100 {
		problems = append(problems, "stream_quality must be between 1 and 100")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/detectstreamer/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "detectstreamer", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile
// selects the default path. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("service_url", m.config.ServiceURL).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk on top of the defaults, so keys
// missing from older files keep their default values
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the entire configuration and saves it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	c := *cfg
	m.config = &c
	m.mu.Unlock()
	return m.Save()
}

// mutate applies fn to the live config without saving
func (m *Manager) mutate(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		m.config = Defaults()
	}
	fn(m.config)
}

// SetPort overrides the server port for this process
func (m *Manager) SetPort(port int) {
	m.mutate(func(c *Config) { c.ServerPort = port })
}

// SetLogLevel overrides the log level for this process
func (m *Manager) SetLogLevel(level string) {
	m.mutate(func(c *Config) { c.LogLevel = level })
}

// SetServiceURL overrides the detection service URL for this process
func (m *Manager) SetServiceURL(url string) {
	m.mutate(func(c *Config) { c.ServiceURL = strings.TrimRight(url, "/") })
}

// SetDevice overrides the camera device for this process
func (m *Manager) SetDevice(device string) {
	m.mutate(func(c *Config) { c.Camera.Device = device })
}

// GetConfigPath returns the path of the backing file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
