package screen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// DefaultWidth and DefaultHeight size a canvas before the first resize.
const (
	DefaultWidth  = 1024
	DefaultHeight = 768
)

// Background fills the area outside the fitted image.
var Background = color.RGBA{A: 0xff}

// FrameInfo describes the frame currently on the canvas.
type FrameInfo struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Placement Placement `json:"placement"`
	Frames    int64     `json:"frames"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Renderer composites ScreenUpdates onto an RGBA canvas. It is safe for
// concurrent use: the session's controller renders while HTTP handlers
// snapshot.
type Renderer struct {
	mu     sync.Mutex
	canvas *image.RGBA

	// last is kept so a canvas resize can recomposite without a new update.
	last    image.Image
	lastW   int
	lastH   int
	info    FrameInfo
	onFrame func(FrameInfo)
	scaler  xdraw.Scaler
}

// NewRenderer creates a renderer with a width x height canvas.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	r := &Renderer{
		canvas: image.NewRGBA(image.Rect(0, 0, width, height)),
		scaler: xdraw.ApproxBiLinear,
	}
	r.clear()
	return r
}

// OnFrame registers a callback invoked after each successful composite.
// It runs synchronously on the rendering goroutine.
func (r *Renderer) OnFrame(fn func(FrameInfo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFrame = fn
}

// DecodeImage decodes a screen update's image bytes (PNG, JPEG, GIF, BMP or WebP).
func DecodeImage(u protocol.ScreenUpdate) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(u.Image))
	if err != nil {
		return nil, fmt.Errorf("decode screen image (%d bytes): %w", len(u.Image), err)
	}
	return img, nil
}

// Render decodes u and replaces the canvas contents with it. On decode
// failure the previous frame stays on the canvas and the error is returned.
func (r *Renderer) Render(u protocol.ScreenUpdate) (Placement, error) {
	img, err := DecodeImage(u)
	if err != nil {
		return Placement{}, err
	}

	r.mu.Lock()
	r.last, r.lastW, r.lastH = img, u.Width, u.Height
	p := r.compositeLocked()
	r.info.Frames++
	r.info.UpdatedAt = time.Now()
	info := r.info
	cb := r.onFrame
	r.mu.Unlock()

	if cb != nil {
		cb(info)
	}
	return p, nil
}

// Resize reallocates the canvas and recomposites the last frame, if any.
func (r *Renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.canvas.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return
	}
	r.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	if r.last == nil {
		r.clear()
		return
	}
	r.compositeLocked()
}

// compositeLocked clears the canvas and draws r.last fitted into it.
// Caller must hold r.mu.
func (r *Renderer) compositeLocked() Placement {
	r.clear()
	b := r.canvas.Bounds()
	p := Fit(b.Dx(), b.Dy(), r.lastW, r.lastH)
	dst := p.Rect()
	if !dst.Empty() {
		r.scaler.Scale(r.canvas, dst, r.last, r.last.Bounds(), draw.Over, nil)
	}
	r.info.Width, r.info.Height, r.info.Placement = r.lastW, r.lastH, p
	return p
}

func (r *Renderer) clear() {
	draw.Draw(r.canvas, r.canvas.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
}

// Size returns the canvas dimensions.
func (r *Renderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.canvas.Bounds()
	return b.Dx(), b.Dy()
}

// Info returns metadata about the frame on the canvas.
func (r *Renderer) Info() FrameInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// Snapshot returns a copy of the canvas.
func (r *Renderer) Snapshot() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := image.NewRGBA(r.canvas.Bounds())
	copy(out.Pix, r.canvas.Pix)
	return out
}

// WritePNG encodes the current canvas as PNG.
func (r *Renderer) WritePNG(w io.Writer) error {
	if err := png.Encode(w, r.Snapshot()); err != nil {
		log.Printf("[screen] png encode failed: %v", err)
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
