package commands

import (
	"fmt"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/spf13/cobra"
)

var captureOut string

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture one camera frame and run detection on it",
	Long: `Start the camera, capture a single frame, send it to the detection
service and write the annotated image to a file.`,
	Example: `  # Capture from the default camera
  detectstreamer capture --out result.jpg

  # Capture from a specific device
  detectstreamer capture --device /dev/video2 --out result.jpg`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "detection.jpg", "where to write the processed image")
}

func runCapture(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	s := newSession(cfg, false, nil)
	defer s.ctrl.Close()

	ctx := cmd.Context()
	if err := s.ctrl.StartCamera(ctx); err != nil {
		return err
	}

	result, err := s.ctrl.CaptureOne(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", s.ctrl.Status(), err)
	}
	if err := writeResult(captureOut, result); err != nil {
		return err
	}

	logger.WithComponent("capture").Info().Str("out", captureOut).Msg(s.ctrl.Status())
	return nil
}
