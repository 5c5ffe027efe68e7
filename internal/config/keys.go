package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
)

// Keys lists every settable configuration key
var Keys = []string{
	"service_url",
	"detect_path",
	"channel_path",
	"request_timeout",
	"server_port",
	"log_level",
	"camera.device",
	"camera.width",
	"camera.height",
	"camera.fps",
	"display.fps",
	"display.overlay_status",
	"capture_quality",
	"stream_quality",
}

// Lookup returns the value stored under a dotted key
func (c *Config) Lookup(key string) (interface{}, error) {
	switch key {
	case "service_url":
		return c.ServiceURL, nil
	case "detect_path":
		return c.DetectPath, nil
	case "channel_path":
		return c.ChannelPath, nil
	case "request_timeout":
		return c.RequestTimeout.String(), nil
	case "server_port":
		return c.ServerPort, nil
	case "log_level":
		return c.LogLevel, nil
	case "camera.device":
		return c.Camera.Device, nil
	case "camera.width":
		return c.Camera.Width, nil
	case "camera.height":
		return c.Camera.Height, nil
	case "camera.fps":
		return c.Camera.FPS, nil
	case "display.fps":
		return c.Display.FPS, nil
	case "display.overlay_status":
		return c.Display.OverlayStatus, nil
	case "capture_quality":
		return c.CaptureQuality, nil
	case "stream_quality":
		return c.StreamQuality, nil
	}
	return nil, fmt.Errorf("configuration key not found: %s", key)
}

// Set parses value according to the key's type and stores it
func (c *Config) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		return n, nil
	}

	switch key {
	case "service_url":
		c.ServiceURL = strings.TrimRight(value, "/")
	case "detect_path":
		c.DetectPath = value
	case "channel_path":
		c.ChannelPath = value
	case "request_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		c.RequestTimeout = d
	case "log_level":
		if !logger.ValidLevel(value) {
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		c.LogLevel = value
	case "camera.device":
		c.Camera.Device = value
	case "display.overlay_status":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		c.Display.OverlayStatus = b
	case "server_port", "camera.width", "camera.height", "camera.fps",
		"display.fps", "capture_quality", "stream_quality":
		n, err := atoi()
		if err != nil {
			return err
		}
		switch key {
		case "server_port":
			c.ServerPort = n
		case "camera.width":
			c.Camera.Width = n
		case "camera.height":
			c.Camera.Height = n
		case "camera.fps":
			c.Camera.FPS = n
		case "display.fps":
			c.Display.FPS = n
		case "capture_quality":
			c.CaptureQuality = n
		case "stream_quality":
			c.StreamQuality = n
		}
	default:
		return fmt.Errorf("configuration key not found: %s", key)
	}
	return c.Validate()
}
