package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/DetectStreamer/internal/api"
	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/bryanchriswhite/DetectStreamer/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveStartCamera bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DetectStreamer server",
	Long: `Start the DetectStreamer HTTP server.

The server publishes the display as an MJPEG stream, serves a viewer page
with the camera controls and exposes a REST and WebSocket control API.`,
	Example: `  # Start server on default port (8080)
  detectstreamer serve

  # Start server on custom port against a remote service
  detectstreamer serve --port 9090 --service http://gpu-box:5001

  # Loop a still image instead of a camera and start it right away
  detectstreamer serve --device file:./street.jpg --start-camera

  # Start with debug logging
  detectstreamer serve --log-level debug --pretty-logs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveStartCamera, "start-camera", false, "start the camera on launch")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	// Initialize MJPEG stream output
	mjpegOut := output.NewMJPEGOutput(output.Config{
		FPS:     cfg.Display.FPS,
		Quality: cfg.CaptureQuality,
	})
	if err := mjpegOut.Start(); err != nil {
		return fmt.Errorf("failed to start MJPEG output: %w", err)
	}
	defer mjpegOut.Stop()

	s := newSession(cfg, true, nil, mjpegOut)
	defer s.ctrl.Close()

	server := api.NewServer(s.ctrl, configMgr, mjpegOut)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.surface.Run(ctx)
	})
	g.Go(func() error {
		return server.Start(ctx, cfg.ServerPort)
	})

	if serveStartCamera {
		if err := s.ctrl.StartCamera(ctx); err != nil {
			log.Warn().Err(err).Msg("Camera did not start")
		}
	}

	log.Info().
		Str("web_ui", fmt.Sprintf("http://localhost:%d", cfg.ServerPort)).
		Str("stream", fmt.Sprintf("http://localhost:%d/stream", cfg.ServerPort)).
		Str("service", cfg.ServiceURL).
		Msg("DetectStreamer is running, press Ctrl+C to stop")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("Shutting down gracefully...")
	return nil
}
