// Package screen turns graphical screen updates into pixels on a display
// surface. Every update replaces the whole frame: the canvas is cleared and
// the new image is scaled to fit with its aspect ratio preserved.
package screen

import (
	"image"
	"math"
)

// Placement is where an image lands on the canvas, in canvas pixels.
type Placement struct {
	OffsetX float64
	OffsetY float64
	Width   float64
	Height  float64
}

// Rect rounds the placement to the pixel grid.
func (p Placement) Rect() image.Rectangle {
	x0 := int(math.Round(p.OffsetX))
	y0 := int(math.Round(p.OffsetY))
	return image.Rect(x0, y0, x0+int(math.Round(p.Width)), y0+int(math.Round(p.Height)))
}

// Fit computes an aspect-preserving placement of an imageW x imageH image on
// a canvasW x canvasH canvas. A canvas wider than the image (by ratio) is
// filled to full height and centred horizontally; otherwise the image fills
// the full width and is centred vertically.
func Fit(canvasW, canvasH, imageW, imageH int) Placement {
	if canvasW <= 0 || canvasH <= 0 || imageW <= 0 || imageH <= 0 {
		return Placement{}
	}
	canvasRatio := float64(canvasW) / float64(canvasH)
	imageRatio := float64(imageW) / float64(imageH)

	// Multiply before dividing so integral results stay exact.
	if canvasRatio > imageRatio {
		h := float64(canvasH)
		w := h * float64(imageW) / float64(imageH)
		return Placement{OffsetX: (float64(canvasW) - w) / 2, OffsetY: 0, Width: w, Height: h}
	}
	w := float64(canvasW)
	h := w * float64(imageH) / float64(imageW)
	return Placement{OffsetX: 0, OffsetY: (float64(canvasH) - h) / 2, Width: w, Height: h}
}
