package screen

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name             string
		canvasW, canvasH int
		imageW, imageH   int
		want             Placement
	}{
		{"square canvas wide image", 400, 400, 800, 600, Placement{OffsetX: 0, OffsetY: 50, Width: 400, Height: 300}},
		{"wide canvas", 1000, 500, 800, 600, Placement{OffsetX: 500.0 / 3, OffsetY: 0, Width: 2000.0 / 3, Height: 500}},
		{"exact ratio", 800, 600, 1600, 1200, Placement{Width: 800, Height: 600}},
		{"tall canvas", 300, 900, 600, 600, Placement{OffsetY: 300, Width: 300, Height: 300}},
		{"degenerate", 0, 400, 800, 600, Placement{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(tt.canvasW, tt.canvasH, tt.imageW, tt.imageH)
			if !approx(got.OffsetX, tt.want.OffsetX) || !approx(got.OffsetY, tt.want.OffsetY) ||
				!approx(got.Width, tt.want.Width) || !approx(got.Height, tt.want.Height) {
				t.Errorf("Fit() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestRenderer_FullFrameReplace(t *testing.T) {
	r := NewRenderer(400, 400)
	red := color.RGBA{R: 0xff, A: 0xff}

	p, err := r.Render(protocol.ScreenUpdate{Width: 800, Height: 600, Image: encodePNG(t, 80, 60, red)})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if p.Rect() != image.Rect(0, 50, 400, 350) {
		t.Errorf("placement rect = %v, want (0,50)-(400,350)", p.Rect())
	}

	snap := r.Snapshot()
	if got := snap.RGBAAt(200, 200); got != red {
		t.Errorf("centre pixel = %v, want red", got)
	}
	if got := snap.RGBAAt(200, 10); got != Background {
		t.Errorf("letterbox pixel = %v, want background", got)
	}

	// A second, taller update must clear the old letterbox region.
	blue := color.RGBA{B: 0xff, A: 0xff}
	if _, err := r.Render(protocol.ScreenUpdate{Width: 600, Height: 600, Image: encodePNG(t, 10, 10, blue)}); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	snap = r.Snapshot()
	if got := snap.RGBAAt(200, 10); got != blue {
		t.Errorf("pixel after replace = %v, want blue", got)
	}
	if info := r.Info(); info.Frames != 2 || info.Width != 600 {
		t.Errorf("Info() = %+v", info)
	}
}

func TestRenderer_DecodeFailureKeepsPreviousFrame(t *testing.T) {
	r := NewRenderer(100, 100)
	green := color.RGBA{G: 0xff, A: 0xff}
	if _, err := r.Render(protocol.ScreenUpdate{Width: 100, Height: 100, Image: encodePNG(t, 4, 4, green)}); err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	_, err := r.Render(protocol.ScreenUpdate{Width: 100, Height: 100, Image: []byte("garbage")})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if got := r.Snapshot().RGBAAt(50, 50); got != green {
		t.Errorf("pixel after failed render = %v, want previous green", got)
	}
	if r.Info().Frames != 1 {
		t.Errorf("Frames = %d, want 1", r.Info().Frames)
	}
}

func TestRenderer_ResizeRecomposites(t *testing.T) {
	r := NewRenderer(400, 400)
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	r.Render(protocol.ScreenUpdate{Width: 800, Height: 600, Image: encodePNG(t, 8, 6, white)})

	r.Resize(800, 300)
	if w, h := r.Size(); w != 800 || h != 300 {
		t.Fatalf("Size() = %dx%d, want 800x300", w, h)
	}
	p := r.Info().Placement
	if !approx(p.Height, 300) || !approx(p.Width, 400) || !approx(p.OffsetX, 200) {
		t.Errorf("placement after resize = %+v", p)
	}
	if got := r.Snapshot().RGBAAt(400, 150); got != white {
		t.Errorf("centre pixel = %v, want white", got)
	}
}

func TestRenderer_OnFrameAndPNG(t *testing.T) {
	r := NewRenderer(50, 50)
	var calls int
	r.OnFrame(func(FrameInfo) { calls++ })
	r.Render(protocol.ScreenUpdate{Width: 5, Height: 5, Image: encodePNG(t, 5, 5, color.White)})
	if calls != 1 {
		t.Errorf("OnFrame calls = %d, want 1", calls)
	}

	var buf bytes.Buffer
	if err := r.WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG() error: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode written png: %v", err)
	}
	if img.Bounds().Dx() != 50 {
		t.Errorf("png width = %d, want 50", img.Bounds().Dx())
	}
}
