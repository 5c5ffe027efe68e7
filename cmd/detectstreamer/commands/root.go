package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "detectstreamer",
		Short: "DetectStreamer - Camera client for an object detection service",
		Long: `DetectStreamer captures frames from a local camera or image files, sends
them to an object detection service and shows the annotated results.

Features:
  • Single-shot detection of camera captures and uploaded images
  • Real-time detection over a persistent channel
  • MJPEG viewer with status overlay
  • REST and WebSocket control API
  • Persistent configuration`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/detectstreamer/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("service", "", "detection service URL (default is http://localhost:5001)")
	rootCmd.PersistentFlags().String("device", "", "camera device: index, /dev/videoN or file:<path>")
	rootCmd.PersistentFlags().Bool("pretty-logs", false, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("service_url", rootCmd.PersistentFlags().Lookup("service"))
	viper.BindPFlag("camera.device", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("pretty_logs", rootCmd.PersistentFlags().Lookup("pretty-logs"))

	viper.SetEnvPrefix("DETECTSTREAMER")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
