// Package raster holds still images: the frozen pixels of a capture and the
// presentation layer drawn on top of them.
package raster

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// Buffer owns one frozen image. The frozen pixels never change after
// construction; everything visual (overlays) goes to the display copy.
type Buffer struct {
	mu      sync.RWMutex
	frozen  *image.NRGBA
	display *image.NRGBA
	source  string
}

// New freezes img into a buffer sized to its native resolution. source is a
// free-form description of where the pixels came from (e.g. "feed", "jpeg").
func New(img image.Image, source string) *Buffer {
	frozen := imaging.Clone(img)
	return &Buffer{
		frozen:  frozen,
		display: frozen,
		source:  source,
	}
}

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int {
	return b.frozen.Bounds().Dx()
}

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int {
	return b.frozen.Bounds().Dy()
}

// Source returns where the pixels came from.
func (b *Buffer) Source() string {
	return b.source
}

// Frozen returns the captured pixels. Callers must not modify them.
func (b *Buffer) Frozen() image.Image {
	return b.frozen
}

// Display returns what should currently be shown for this buffer.
func (b *Buffer) Display() image.Image {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.display
}

// Redraw rebuilds the display from a fresh copy of the frozen pixels and
// hands it to draw. Repeating the same draw yields the same display.
func (b *Buffer) Redraw(draw func(dst *image.NRGBA)) {
	dst := imaging.Clone(b.frozen)
	draw(dst)

	b.mu.Lock()
	b.display = dst
	b.mu.Unlock()
}

// ClearOverlay drops anything drawn over the frozen pixels.
func (b *Buffer) ClearOverlay() {
	b.mu.Lock()
	b.display = b.frozen
	b.mu.Unlock()
}
