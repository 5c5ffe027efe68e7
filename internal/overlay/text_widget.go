package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextWidget draws a single line of text. The text is pulled from a
// function on every render so it can follow live state such as the
// status line.
type TextWidget struct {
	*BaseWidget
	text      func() string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a text widget at (x, y). A nil text func renders nothing.
func NewTextWidget(id string, x, y int, text func() string) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		text:       text,
		textColor:  color.RGBA{255, 255, 255, 255},
		bgColor:    &color.RGBA{0, 0, 0, 255},
		padding:    5,
	}
}

// NewStatusWidget returns the status line shown at the bottom left
func NewStatusWidget(status func() string) *TextWidget {
	w := NewTextWidget("status", 8, -8, status)
	w.SetOpacity(0.85)
	return w
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// Text returns the text that would be drawn now
func (w *TextWidget) Text() string {
	if w.text == nil {
		return ""
	}
	return w.text()
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA) error {
	text := w.Text()
	if !w.IsEnabled() || text == "" {
		return nil
	}

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()

	d := &font.Drawer{Face: face}
	textWidth := d.MeasureString(text).Ceil()

	boxW := textWidth + w.padding*2
	boxH := lineHeight + w.padding*2
	at := w.origin(img.Bounds(), boxH)

	if w.bgColor != nil {
		DrawRectangle(img, image.Rect(at.X, at.Y, at.X+boxW, at.Y+boxH), *w.bgColor, w.opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, textWidth, lineHeight))
	textDrawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: face.Metrics().Ascent},
	}
	textDrawer.DrawString(text)

	BlendImage(img, textImg, at.X+w.padding, at.Y+w.padding, w.opacity)
	return nil
}
