package controller

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/capture"
	"github.com/bryanchriswhite/DetectStreamer/internal/frame"
	"github.com/bryanchriswhite/DetectStreamer/internal/output"
	"github.com/bryanchriswhite/DetectStreamer/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func dataURL(t *testing.T, img image.Image) string {
	t.Helper()
	f, err := frame.EncodeJPEG(img, 90)
	require.NoError(t, err)
	return f.DataURL()
}

type deniedDevice struct{}

func (deniedDevice) Open(context.Context, capture.Constraints) (capture.Stream, error) {
	return nil, errors.New("permission denied")
}
func (deniedDevice) Name() string      { return "denied" }
func (deniedDevice) IsAvailable() bool { return false }

// fakeChannel records frames sent on the streaming path
type fakeChannel struct {
	mu      sync.Mutex
	frames  []string
	closed  bool
	handler transport.Handler
}

func (f *fakeChannel) SendFrame(dataURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrChannelClosed
	}
	f.frames = append(f.frames, dataURL)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

type fakeDialer struct {
	dials atomic.Int32
	ch    *fakeChannel
	err   error
}

func (d *fakeDialer) dial(ctx context.Context, h transport.Handler) (FrameSender, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	d.ch = &fakeChannel{handler: h}
	h.OnConnect()
	return d.ch, nil
}

type detectorFunc func(ctx context.Context, image string) (string, error)

func (f detectorFunc) Detect(ctx context.Context, image string) (string, error) {
	return f(ctx, image)
}

func newTestController(t *testing.T, opts Options) *Controller {
	t.Helper()
	if opts.Device == nil {
		opts.Device = capture.NewStaticDevice(solid(32, 24, color.RGBA{0, 0, 255, 255}))
	}
	if opts.Surface == nil {
		opts.Surface = output.NewSurface(200, nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go opts.Surface.Run(ctx)

	c := New(opts)
	t.Cleanup(func() {
		c.Close()
		cancel()
	})
	return c
}

func TestInitialState(t *testing.T) {
	c := newTestController(t, Options{})

	s := c.State()
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Equal(t, output.ViewLive, s.View)
	assert.True(t, s.Controls.StartEnabled)
	assert.False(t, s.Controls.StopEnabled)
	assert.False(t, s.Controls.CaptureEnabled)
	assert.False(t, s.Controls.ToggleEnabled)
	assert.False(t, s.Controls.ToggleChecked)
}

func TestStartCameraDenied(t *testing.T) {
	c := newTestController(t, Options{Device: deniedDevice{}})

	err := c.StartCamera(context.Background())
	require.Error(t, err)

	s := c.State()
	assert.Equal(t, StatusCameraError, s.Status)
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Equal(t, idleControls(), s.Controls)
}

func TestStartCamera(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(t, Options{Dial: d.dial})

	require.NoError(t, c.StartCamera(context.Background()))

	s := c.State()
	assert.Equal(t, StatusCameraStarted, s.Status)
	assert.Equal(t, ModeCamera, s.Mode)
	assert.Equal(t, output.ViewLive, s.View)
	assert.True(t, s.Connected)
	assert.False(t, s.Controls.StartEnabled)
	assert.True(t, s.Controls.StopEnabled)
	assert.True(t, s.Controls.CaptureEnabled)
	assert.True(t, s.Controls.ToggleEnabled)
	assert.NotNil(t, c.Surface().Visible())
}

func TestChannelOpenedOnce(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(t, Options{Dial: d.dial})
	ctx := context.Background()

	require.NoError(t, c.StartCamera(ctx))
	require.NoError(t, c.StartCamera(ctx))
	c.StopCamera()
	require.NoError(t, c.StartCamera(ctx))

	assert.Equal(t, int32(1), d.dials.Load())
}

func TestDialFailureKeepsSingleShot(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	c := newTestController(t, Options{Dial: d.dial})

	require.NoError(t, c.StartCamera(context.Background()))
	assert.False(t, c.State().Connected)
	assert.ErrorIs(t, c.ToggleStreaming(true), ErrChannelUnavailable)
	assert.Equal(t, StatusCameraStarted, c.Status())
}

func TestStopCameraResetsControls(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(t, Options{Dial: d.dial})

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.ToggleStreaming(true))
	c.StopCamera()

	s := c.State()
	assert.Equal(t, StatusCameraStopped, s.Status)
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Equal(t, idleControls(), s.Controls)
	assert.Equal(t, output.ViewLive, s.View)
	assert.False(t, c.Streaming())
	assert.Nil(t, c.Surface().Visible())
}

func TestStopCameraWhenIdle(t *testing.T) {
	c := newTestController(t, Options{})
	c.StopCamera()
	assert.Equal(t, "", c.Status())
}

func TestToggleWithoutCamera(t *testing.T) {
	c := newTestController(t, Options{})
	assert.ErrorIs(t, c.ToggleStreaming(true), ErrCameraNotActive)
	assert.False(t, c.Streaming())
}

func TestStreamingLoop(t *testing.T) {
	d := &fakeDialer{}
	var shown atomic.Int32
	c := newTestController(t, Options{
		Dial:    d.dial,
		OnFrame: func() { shown.Add(1) },
	})

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.ToggleStreaming(true))

	s := c.State()
	assert.Equal(t, ModeStreaming, s.Mode)
	assert.Equal(t, StatusStreamingActive, s.Status)
	assert.Equal(t, output.ViewResult, s.View)
	assert.True(t, s.Controls.ToggleChecked)
	require.Equal(t, 1, d.ch.sent())

	// each processed frame triggers exactly one more send after a paint
	result := solid(32, 24, color.RGBA{255, 0, 0, 255})
	d.ch.handler.OnProcessedFrame(dataURL(t, result))
	require.Eventually(t, func() bool { return d.ch.sent() == 2 }, time.Second, 5*time.Millisecond)
	assert.NotNil(t, c.Surface().Result())

	d.ch.handler.OnProcessedFrame(dataURL(t, result))
	require.Eventually(t, func() bool { return d.ch.sent() == 3 }, time.Second, 5*time.Millisecond)

	// disabling stops the loop; late results are ignored
	require.NoError(t, c.ToggleStreaming(false))
	assert.Equal(t, StatusStreamingStopped, c.Status())
	assert.Equal(t, output.ViewLive, c.State().View)

	d.ch.handler.OnProcessedFrame(dataURL(t, result))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, d.ch.sent())
	assert.Equal(t, int32(2), shown.Load())
}

func TestStreamingErrorEndsLoop(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(t, Options{Dial: d.dial})

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.ToggleStreaming(true))
	require.Equal(t, 1, d.ch.sent())

	d.ch.handler.OnError("overload")
	assert.Equal(t, "Error: overload", c.Status())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.ch.sent())
}

func TestStreamingMalformedFrame(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(t, Options{Dial: d.dial})

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.ToggleStreaming(true))

	d.ch.handler.OnProcessedFrame("data:image/jpeg;base64,!!!")
	assert.Contains(t, c.Status(), "Error: ")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.ch.sent())
}

// detectService answers /detect with a fixed image and counts requests
func detectService(t *testing.T, processed string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req transport.DetectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.DetectResponse{Error: "no image"})
			return
		}
		json.NewEncoder(w).Encode(transport.DetectResponse{Success: true, ProcessedImage: processed})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCaptureOne(t *testing.T) {
	var hits atomic.Int32
	processed := dataURL(t, solid(32, 24, color.RGBA{0, 255, 0, 255}))
	srv := detectService(t, processed, &hits)

	d := &fakeDialer{}
	c := newTestController(t, Options{
		Dial:     d.dial,
		Detector: transport.NewClient(srv.URL),
	})

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.ToggleStreaming(true))

	sub := c.Subscribe()
	defer c.Unsubscribe(sub)

	result, err := c.CaptureOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, processed, result)
	assert.Equal(t, int32(1), hits.Load())

	s := c.State()
	assert.Equal(t, StatusDetectionDone, s.Status)
	assert.Equal(t, output.ViewResult, s.View)
	assert.False(t, c.Streaming())
	assert.NotNil(t, c.Surface().Result())

	var statuses []string
	for len(sub) > 0 {
		statuses = append(statuses, (<-sub).Status)
	}
	assert.Contains(t, statuses, StatusProcessing)
	assert.Contains(t, statuses, StatusDetectionDone)
}

func TestCaptureWithoutCamera(t *testing.T) {
	c := newTestController(t, Options{})
	_, err := c.CaptureOne(context.Background())
	assert.ErrorIs(t, err, ErrCameraNotActive)
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, solid(8, 8, color.White)))
	return path
}

func TestUploadFiles(t *testing.T) {
	var hits atomic.Int32
	processed := dataURL(t, solid(8, 8, color.Black))
	srv := detectService(t, processed, &hits)
	c := newTestController(t, Options{Detector: transport.NewClient(srv.URL)})

	dir := t.TempDir()
	first := writePNG(t, dir, "a.png")
	second := writePNG(t, dir, "b.png")

	// no camera is needed for uploads
	result, err := c.UploadFiles(context.Background(), first, second)
	require.NoError(t, err)
	assert.Equal(t, processed, result)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, StatusDetectionDone, c.Status())
	assert.Equal(t, output.ViewResult, c.State().View)
}

func TestUploadNothing(t *testing.T) {
	c := newTestController(t, Options{})
	result, err := c.UploadFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, "", c.Status())
}

func TestUploadUnreadable(t *testing.T) {
	c := newTestController(t, Options{Detector: detectorFunc(func(context.Context, string) (string, error) {
		t.Fatal("detector must not be called")
		return "", nil
	})})

	_, err := c.UploadFiles(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.Equal(t, StatusProcessingError, c.Status())
}

func TestSubmitServiceError(t *testing.T) {
	c := newTestController(t, Options{Detector: detectorFunc(func(context.Context, string) (string, error) {
		return "", &transport.ServiceError{StatusCode: 500, Message: "model not loaded"}
	})})

	f, err := frame.EncodeJPEG(solid(4, 4, color.White), 80)
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), f)
	require.Error(t, err)
	assert.True(t, transport.IsServiceError(err))
	assert.Equal(t, StatusProcessingError, c.Status())
	assert.Nil(t, c.Surface().Result())
}

func TestSubmitUndecodableResult(t *testing.T) {
	c := newTestController(t, Options{Detector: detectorFunc(func(context.Context, string) (string, error) {
		return "data:image/jpeg;base64,aGVsbG8=", nil
	})})

	f, err := frame.EncodeJPEG(solid(4, 4, color.White), 80)
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), f)
	require.Error(t, err)
	assert.Equal(t, StatusProcessingError, c.Status())
}

func TestResultDroppedAfterStop(t *testing.T) {
	release := make(chan struct{})
	processed := dataURL(t, solid(8, 8, color.Black))
	c := newTestController(t, Options{Detector: detectorFunc(func(ctx context.Context, _ string) (string, error) {
		<-release
		return processed, nil
	})})

	require.NoError(t, c.StartCamera(context.Background()))

	errs := make(chan error, 1)
	go func() {
		_, err := c.CaptureOne(context.Background())
		errs <- err
	}()

	require.Eventually(t, func() bool { return c.Status() == StatusProcessing }, time.Second, 5*time.Millisecond)
	c.StopCamera()
	close(release)

	assert.ErrorIs(t, <-errs, ErrStaleResult)
	assert.Equal(t, StatusCameraStopped, c.Status())
	assert.Nil(t, c.Surface().Result())
}

func TestChannelLossDisablesStreaming(t *testing.T) {
	done := make(chan struct{})
	ch := &closingChannel{fakeChannel: &fakeChannel{}, done: done}
	c := newTestController(t, Options{Dial: func(ctx context.Context, h transport.Handler) (FrameSender, error) {
		ch.handler = h
		return ch, nil
	}})

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.ToggleStreaming(true))

	close(done)
	require.Eventually(t, func() bool { return !c.State().Connected }, time.Second, 5*time.Millisecond)
	assert.False(t, c.Streaming())
	assert.False(t, c.State().Controls.ToggleChecked)

	// the lost channel is released, not just forgotten
	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return ch.closed
	}, time.Second, 5*time.Millisecond)
}

type closingChannel struct {
	*fakeChannel
	done chan struct{}
}

func (c *closingChannel) Done() <-chan struct{} { return c.done }

func TestSubscribeUnsubscribe(t *testing.T) {
	c := newTestController(t, Options{})

	sub := c.Subscribe()
	require.NoError(t, c.StartCamera(context.Background()))

	select {
	case s := <-sub:
		assert.Equal(t, StatusCameraStarted, s.Status)
	case <-time.After(time.Second):
		t.Fatal("no state published")
	}

	c.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
}

func TestStreamingReenableKeepsOneFrameInFlight(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(t, Options{Dial: d.dial})

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.ToggleStreaming(true))
	require.Equal(t, 1, d.ch.sent())

	// the first frame is still awaiting its reply
	require.NoError(t, c.ToggleStreaming(false))
	require.NoError(t, c.ToggleStreaming(true))
	assert.Equal(t, 1, d.ch.sent())

	// the late reply continues the single loop
	result := dataURL(t, solid(32, 24, color.RGBA{255, 0, 0, 255}))
	d.ch.handler.OnProcessedFrame(result)
	require.Eventually(t, func() bool { return d.ch.sent() == 2 }, time.Second, 5*time.Millisecond)

	d.ch.handler.OnProcessedFrame(result)
	require.Eventually(t, func() bool { return d.ch.sent() == 3 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, d.ch.sent())
}

func TestStreamingRestartsAfterError(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(t, Options{Dial: d.dial})

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.ToggleStreaming(true))
	d.ch.handler.OnError("overload")

	require.NoError(t, c.ToggleStreaming(false))
	require.NoError(t, c.ToggleStreaming(true))
	assert.Equal(t, 2, d.ch.sent())
}

func TestUploadDataNotImage(t *testing.T) {
	c := newTestController(t, Options{Detector: detectorFunc(func(context.Context, string) (string, error) {
		t.Fatal("detector must not be called")
		return "", nil
	})})

	_, err := c.UploadData(context.Background(), []byte("plain text, not pixels"))
	assert.ErrorIs(t, err, frame.ErrNotImage)
	assert.Equal(t, StatusProcessingError, c.Status())
}

func TestUploadData(t *testing.T) {
	var hits atomic.Int32
	processed := dataURL(t, solid(8, 8, color.Black))
	srv := detectService(t, processed, &hits)
	c := newTestController(t, Options{Detector: transport.NewClient(srv.URL)})

	path := writePNG(t, t.TempDir(), "a.png")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	result, err := c.UploadData(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, processed, result)
	assert.Equal(t, StatusDetectionDone, c.Status())
}

// slowDevice blocks in Open until released
type slowDevice struct {
	entered chan struct{}
	release chan error
}

func (d *slowDevice) Open(ctx context.Context, _ capture.Constraints) (capture.Stream, error) {
	close(d.entered)
	if err := <-d.release; err != nil {
		return nil, err
	}
	return capture.NewStaticDevice(solid(8, 8, color.White)).Open(ctx, capture.Constraints{})
}
func (d *slowDevice) Name() string      { return "slow" }
func (d *slowDevice) IsAvailable() bool { return true }

func TestStartCameraWhileStarting(t *testing.T) {
	dev := &slowDevice{entered: make(chan struct{}), release: make(chan error, 1)}
	c := newTestController(t, Options{Device: dev})

	first := make(chan error, 1)
	go func() { first <- c.StartCamera(context.Background()) }()
	<-dev.entered

	assert.ErrorIs(t, c.StartCamera(context.Background()), ErrCameraStarting)

	dev.release <- errors.New("permission denied")
	assert.Error(t, <-first)
	assert.Equal(t, StatusCameraError, c.Status())
	assert.Equal(t, ModeIdle, c.State().Mode)
}
