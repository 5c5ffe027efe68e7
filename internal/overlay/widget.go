package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Widget is something drawn on top of each published frame
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Render draws the widget onto img
	Render(img *image.RGBA) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget. A negative y anchors the widget
// that many pixels above the bottom edge.
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{
		id:      id,
		enabled: true,
		x:       x,
		y:       y,
	}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// SetOpacity sets the widget's opacity, clamped to [0, 1]
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// origin resolves the widget position inside bounds for a box of height h
func (w *BaseWidget) origin(bounds image.Rectangle, h int) image.Point {
	y := bounds.Min.Y + w.y
	if w.y < 0 {
		y = bounds.Max.Y + w.y - h
	}
	return image.Pt(bounds.Min.X+w.x, y)
}

// BlendImage blends src onto dst at (x, y) with the given opacity
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	srcBounds := src.Bounds()
	dstBounds := dst.Bounds()

	for sy := srcBounds.Min.Y; sy < srcBounds.Max.Y; sy++ {
		dy := y + (sy - srcBounds.Min.Y)
		if dy < dstBounds.Min.Y || dy >= dstBounds.Max.Y {
			continue
		}

		for sx := srcBounds.Min.X; sx < srcBounds.Max.X; sx++ {
			dx := x + (sx - srcBounds.Min.X)
			if dx < dstBounds.Min.X || dx >= dstBounds.Max.X {
				continue
			}

			sr, sg, sb, sa := src.At(sx, sy).RGBA()
			alpha := float64(sa) * opacity / 65535.0
			if alpha <= 0 {
				continue
			}

			d := dst.RGBAAt(dx, dy)
			inv := 1 - alpha
			dst.SetRGBA(dx, dy, color.RGBA{
				R: uint8(float64(sr>>8)*alpha + float64(d.R)*inv),
				G: uint8(float64(sg>>8)*alpha + float64(d.G)*inv),
				B: uint8(float64(sb>>8)*alpha + float64(d.B)*inv),
				A: uint8(255*alpha + float64(d.A)*inv),
			})
		}
	}
}

// DrawRectangle draws a filled rectangle with the specified color and opacity
func DrawRectangle(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	tmp := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(tmp, tmp.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	BlendImage(dst, tmp, r.Min.X, r.Min.Y, opacity)
}
