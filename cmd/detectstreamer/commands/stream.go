package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/bryanchriswhite/DetectStreamer/internal/frame"
	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	streamFrames int
	streamOut    string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Run real-time detection without the viewer",
	Long: `Start the camera and stream frames to the detection service over the
persistent channel. Each processed frame triggers the next capture.`,
	Example: `  # Process 100 frames and keep the last result
  detectstreamer stream --frames 100 --out last.jpg

  # Stream until interrupted
  detectstreamer stream`,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().IntVarP(&streamFrames, "frames", "n", 0, "number of frames to process (0 = until interrupted)")
	streamCmd.Flags().StringVarP(&streamOut, "out", "o", "", "write the last processed frame here")
}

func runStream(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("stream")

	total := int64(streamFrames)
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("Detecting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var processed atomic.Int64
	s := newSession(cfg, true, func() {
		bar.Add(1)
		if n := processed.Add(1); streamFrames > 0 && n >= int64(streamFrames) {
			cancel()
		}
	})
	defer s.ctrl.Close()

	go s.surface.Run(ctx)

	if err := s.ctrl.StartCamera(ctx); err != nil {
		return err
	}

	updates := s.ctrl.Subscribe()
	if err := s.ctrl.ToggleStreaming(true); err != nil {
		return fmt.Errorf("failed to start real-time detection: %w", err)
	}

	var streamErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case state, ok := <-updates:
			if !ok {
				break loop
			}
			if strings.HasPrefix(state.Status, "Error") {
				streamErr = errors.New(state.Status)
				break loop
			}
		}
	}

	s.ctrl.ToggleStreaming(false)
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if streamOut != "" {
		if img := s.surface.Result(); img != nil {
			f, err := frame.EncodeJPEG(img, cfg.CaptureQuality)
			if err != nil {
				return err
			}
			if err := os.WriteFile(streamOut, f.Data, 0644); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
		}
	}

	log.Info().Int64("frames", processed.Load()).Msg("Real-time detection stopped")
	return streamErr
}
