package commands

import (
	"fmt"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/spf13/cobra"
)

var uploadOut string

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Run detection on an image file",
	Long: `Send an image file to the detection service and write the annotated image
to a file. Only the first file is processed.`,
	Example: `  # Detect objects in a photo
  detectstreamer upload street.png --out street-detected.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringVarP(&uploadOut, "out", "o", "detection.jpg", "where to write the processed image")
}

func runUpload(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	s := newSession(configMgr.Get(), false, nil)
	defer s.ctrl.Close()

	result, err := s.ctrl.UploadFiles(cmd.Context(), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", s.ctrl.Status(), err)
	}
	if err := writeResult(uploadOut, result); err != nil {
		return err
	}

	logger.WithComponent("upload").Info().
		Str("file", args[0]).
		Str("out", uploadOut).
		Msg(s.ctrl.Status())
	return nil
}
