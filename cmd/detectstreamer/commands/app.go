package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/bryanchriswhite/DetectStreamer/internal/capture"
	"github.com/bryanchriswhite/DetectStreamer/internal/capture/webcam"
	"github.com/bryanchriswhite/DetectStreamer/internal/config"
	"github.com/bryanchriswhite/DetectStreamer/internal/controller"
	"github.com/bryanchriswhite/DetectStreamer/internal/frame"
	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/bryanchriswhite/DetectStreamer/internal/output"
	"github.com/bryanchriswhite/DetectStreamer/internal/overlay"
	"github.com/bryanchriswhite/DetectStreamer/internal/transport"
	"github.com/spf13/viper"
)

// loadConfig reads the config file, applies flag overrides and sets up
// logging
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Override from flags if provided
	if port := viper.GetInt("server_port"); port > 0 {
		configMgr.SetPort(port)
	}
	if level := viper.GetString("log_level"); level != "" {
		configMgr.SetLogLevel(level)
	}
	if url := viper.GetString("service_url"); url != "" {
		configMgr.SetServiceURL(url)
	}
	if device := viper.GetString("camera.device"); device != "" {
		configMgr.SetDevice(device)
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, viper.GetBool("pretty_logs"))
	logger.WithComponent("config").Debug().
		Str("path", configMgr.GetConfigPath()).
		Str("service", cfg.ServiceURL).
		Str("device", cfg.Camera.Device).
		Msg("Configuration loaded")

	return configMgr, nil
}

// newDevice routes the configured device spec to a capture backend
func newDevice(cfg *config.Config) capture.Device {
	router := capture.NewRouter(cfg.Camera.Device)
	router.Register(capture.DefaultScheme, webcam.New)
	return router
}

// newDialer opens the streaming channel next to the service's HTTP endpoint
func newDialer(cfg *config.Config) controller.Dialer {
	return func(ctx context.Context, h transport.Handler) (controller.FrameSender, error) {
		wsURL, err := transport.ChannelURL(cfg.ServiceURL, cfg.ChannelPath)
		if err != nil {
			return nil, err
		}
		ch, err := transport.Dial(ctx, wsURL, h)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// session bundles the pieces every command wires together
type session struct {
	cfg     *config.Config
	surface *output.Surface
	ctrl    *controller.Controller
}

// newSession builds the controller and its display surface. outputs are
// painted on every tick; streaming enables the persistent channel.
func newSession(cfg *config.Config, streaming bool, onFrame func(), outputs ...output.Output) *session {
	s := &session{cfg: cfg}

	var ov *overlay.Manager
	if cfg.Display.OverlayStatus && len(outputs) > 0 {
		ov = overlay.NewManager()
		ov.AddWidget(overlay.NewStatusWidget(func() string {
			if s.ctrl == nil {
				return ""
			}
			return s.ctrl.Status()
		}))
	}
	s.surface = output.NewSurface(cfg.Display.FPS, ov, outputs...)

	opts := controller.Options{
		Device: newDevice(cfg),
		Constraints: capture.Constraints{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		},
		Detector: transport.NewClient(cfg.ServiceURL,
			transport.WithDetectPath(cfg.DetectPath),
			transport.WithTimeout(cfg.RequestTimeout),
		),
		Surface:        s.surface,
		CaptureQuality: cfg.CaptureQuality,
		StreamQuality:  cfg.StreamQuality,
		OnFrame:        onFrame,
	}
	if streaming {
		opts.Dial = newDialer(cfg)
	}
	s.ctrl = controller.New(opts)
	return s
}

// writeResult stores a processed data URL as an image file
func writeResult(path, dataURL string) error {
	f, err := frame.ParseDataURL(dataURL)
	if err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}
	if err := os.WriteFile(path, f.Data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
