// Package overlay draws analysis regions over captured images.
package overlay

import (
	"image"
	"image/color"

	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/types"
)

// Default stroke settings, matching the yellow 5px box of the web client.
var (
	DefaultColor  = color.NRGBA{255, 255, 0, 255}
	DefaultStroke = 5
)

// Renderer strokes a region onto a raster buffer's display.
type Renderer struct {
	Color  color.NRGBA
	Stroke int
}

// New creates a renderer with the default color and stroke.
func New() *Renderer {
	return &Renderer{Color: DefaultColor, Stroke: DefaultStroke}
}

// DrawRegion replaces the buffer's display with the frozen pixels plus a
// rectangle around region. A nil region leaves the buffer untouched.
func (r *Renderer) DrawRegion(buf *raster.Buffer, region *types.Region) {
	if buf == nil || region == nil {
		return
	}
	norm, ok := region.Normalize()
	if !ok {
		return
	}
	stroke := r.Stroke
	if stroke < 1 {
		stroke = 1
	}
	buf.Redraw(func(dst *image.NRGBA) {
		drawBox(dst, norm, r.Color, stroke)
	})
}

// PixelRect returns the pixel rectangle a region covers on a w x h image.
func PixelRect(region types.Region, w, h int) image.Rectangle {
	x0, y0, x1, y1 := region.Pixels(w, h)
	return image.Rect(x0, y0, x1, y1)
}

// drawBox strokes inward from the region edges so the box never leaves the
// region.
func drawBox(img *image.NRGBA, region types.Region, c color.NRGBA, stroke int) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	x0, y0, x1, y1 := region.Pixels(w, h)
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
