package output

import (
	"bufio"
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOutput struct {
	mu     sync.Mutex
	frames []*image.RGBA
}

func (r *recordingOutput) Start() error    { return nil }
func (r *recordingOutput) Stop() error     { return nil }
func (r *recordingOutput) Name() string    { return "recorder" }
func (r *recordingOutput) IsRunning() bool { return true }
func (r *recordingOutput) WriteFrame(f *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordingOutput) last() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

func solid(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestSurfaceShowsExactlyOneSlot(t *testing.T) {
	rec := &recordingOutput{}
	s := NewSurface(30, nil, rec)

	red := color.RGBA{255, 0, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}
	s.SetLive(solid(red))

	assert.Equal(t, ViewLive, s.View())
	s.Paint()
	assert.Equal(t, red, rec.last().RGBAAt(0, 0))

	s.Present(solid(blue))
	assert.Equal(t, ViewResult, s.View())
	s.Paint()
	assert.Equal(t, blue, rec.last().RGBAAt(0, 0))

	s.ShowLive()
	s.Paint()
	assert.Equal(t, red, rec.last().RGBAAt(0, 0))
	assert.NotNil(t, s.Result(), "the result is kept while hidden")
}

func TestSurfaceSkipsEmptySlot(t *testing.T) {
	rec := &recordingOutput{}
	s := NewSurface(30, nil, rec)

	s.ShowResult()
	s.Paint()
	assert.Nil(t, rec.last())
	assert.Equal(t, uint64(1), s.Paints(), "an empty paint still ticks")
}

func TestSurfaceOverlay(t *testing.T) {
	rec := &recordingOutput{}
	ov := overlay.NewManager()
	require.NoError(t, ov.AddWidget(overlay.NewStatusWidget(func() string { return "Camera started" })))

	s := NewSurface(30, ov, rec)
	live := solid(color.RGBA{200, 200, 200, 255})
	s.SetLive(live)
	s.Paint()

	// overlay draws on the painted copy, never on the source
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, live.(*image.RGBA).RGBAAt(10, 14))
	assert.NotNil(t, rec.last())
}

func TestNextPaint(t *testing.T) {
	s := NewSurface(200, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, s.NextPaint(waitCtx))
	require.NoError(t, s.NextPaint(waitCtx))
	assert.GreaterOrEqual(t, s.Paints(), uint64(2))
}

func TestNextPaintCancelled(t *testing.T) {
	s := NewSurface(30, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.NextPaint(ctx), context.Canceled)
}

func TestMJPEGLifecycle(t *testing.T) {
	m := NewMJPEGOutput(Config{FPS: 10})
	assert.Error(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))))

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
	assert.True(t, m.IsRunning())

	require.NoError(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))))
	assert.NotEmpty(t, m.LastJPEG())
	assert.Equal(t, uint64(1), m.Stats().Frames)

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
	assert.False(t, m.Stats().Running)
}

func TestMJPEGStreamHandler(t *testing.T) {
	m := NewMJPEGOutput(Config{FPS: 10})
	require.NoError(t, m.Start())
	defer m.Stop()
	require.NoError(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))))

	server := httptest.NewServer(m.StreamHandler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace"))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)
}

func TestMJPEGStreamHandlerNotRunning(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	rec := httptest.NewRecorder()
	m.StreamHandler()(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
