package controller

import (
	"context"
	"fmt"
	"image"

	"github.com/bryanchriswhite/DetectStreamer/internal/frame"
	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
)

// CaptureOne turns streaming off, snapshots the current camera frame and
// runs it through single-shot detection
func (c *Controller) CaptureOne(ctx context.Context) (string, error) {
	if err := c.ToggleStreaming(false); err != nil {
		return "", err
	}

	img, err := c.snapshot()
	if err != nil {
		return "", err
	}
	f, err := frame.EncodeJPEG(img, c.captureQuality)
	if err != nil {
		c.setStatus(StatusProcessingError)
		return "", fmt.Errorf("failed to encode capture: %w", err)
	}
	return c.Submit(ctx, f)
}

// UploadFiles runs single-shot detection on the first of paths. An empty
// selection does nothing.
func (c *Controller) UploadFiles(ctx context.Context, paths ...string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	if len(paths) > 1 {
		logger.WithComponent("controller").Debug().
			Int("ignored", len(paths)-1).
			Msg("Only the first selected file is processed")
	}

	f, err := frame.ReadFile(paths[0])
	if err != nil {
		c.setStatus(StatusProcessingError)
		return "", err
	}
	return c.Submit(ctx, f)
}

// UploadData runs single-shot detection on uploaded image bytes. Bytes
// that are not an image fail like any other processing error.
func (c *Controller) UploadData(ctx context.Context, data []byte) (string, error) {
	f, err := frame.New(data)
	if err != nil {
		logger.WithComponent("controller").Warn().Err(err).Msg("Rejected upload")
		c.setStatus(StatusProcessingError)
		return "", err
	}
	return c.Submit(ctx, f)
}

// Submit sends f to the detection service and shows the annotated result.
// A result that arrives after the camera was stopped is dropped with
// ErrStaleResult.
func (c *Controller) Submit(ctx context.Context, f *frame.Frame) (string, error) {
	log := logger.WithComponent("controller")

	if c.detector == nil {
		c.setStatus(StatusProcessingError)
		return "", fmt.Errorf("no detector configured")
	}

	c.mu.Lock()
	gen := c.generation
	c.status = StatusProcessing
	c.notifyLocked()
	c.mu.Unlock()

	result, err := c.detector.Detect(ctx, f.DataURL())
	var img image.Image
	if err == nil {
		img, err = decodeResult(result)
	}
	if err != nil {
		log.Error().Err(err).Msg("Detection failed")
		c.mu.Lock()
		if c.generation == gen {
			c.status = StatusProcessingError
			c.notifyLocked()
		}
		c.mu.Unlock()
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		log.Debug().Msg("Dropping detection result after camera stop")
		return "", ErrStaleResult
	}
	c.surface.Present(img)
	c.status = StatusDetectionDone
	c.notifyLocked()
	log.Info().Msg("Detection complete")
	return result, nil
}

func decodeResult(dataURL string) (image.Image, error) {
	f, err := frame.ParseDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	img, err := f.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode detection result: %w", err)
	}
	return img, nil
}
