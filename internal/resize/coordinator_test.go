package resize

import (
	"testing"

	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

func TestCellMetrics_Fit(t *testing.T) {
	tests := []struct {
		name string
		m    CellMetrics
		box  protocol.Size
		want protocol.Size
	}{
		{"default cells", DefaultCells, protocol.Size{Width: 900, Height: 510}, protocol.Size{Width: 100, Height: 30}},
		{"partial cells dropped", DefaultCells, protocol.Size{Width: 908, Height: 526}, protocol.Size{Width: 100, Height: 30}},
		{"padding", CellMetrics{CellWidth: 10, CellHeight: 20, PaddingX: 5, PaddingY: 10}, protocol.Size{Width: 810, Height: 500}, protocol.Size{Width: 80, Height: 24}},
		{"tty grid", CellGrid, protocol.Size{Width: 132, Height: 43}, protocol.Size{Width: 132, Height: 43}},
		{"clamped to minimum", DefaultCells, protocol.Size{Width: 3, Height: 3}, protocol.Size{Width: MinCols, Height: MinRows}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Fit(tt.box); got != tt.want {
				t.Errorf("Fit(%v) = %v, want %v", tt.box, got, tt.want)
			}
		})
	}
}

func TestCoordinator_TextSuppressesRedundant(t *testing.T) {
	var emitted []protocol.Size
	c := New(protocol.KindSSH, CellGrid, nil, func(s protocol.Size) { emitted = append(emitted, s) })

	c.Observe(protocol.Size{Width: 80, Height: 24})
	c.Observe(protocol.Size{Width: 80, Height: 24})
	c.Observe(protocol.Size{Width: 0, Height: 24})
	c.Observe(protocol.Size{Width: 100, Height: 30})

	if len(emitted) != 2 {
		t.Fatalf("emitted %v, want 2 sizes", emitted)
	}
	if emitted[1] != (protocol.Size{Width: 100, Height: 30}) {
		t.Errorf("second size = %v", emitted[1])
	}
	if c.Size() != emitted[1] {
		t.Errorf("Size() = %v", c.Size())
	}
}

func TestCoordinator_TextBoxChangeWithinSameGrid(t *testing.T) {
	var calls int
	c := New(protocol.KindTelnet, DefaultCells, nil, func(protocol.Size) { calls++ })

	c.Observe(protocol.Size{Width: 900, Height: 510})
	// A few pixels more does not add a cell.
	if _, sent := c.Observe(protocol.Size{Width: 905, Height: 512}); sent {
		t.Error("resize sent for unchanged grid")
	}
	if calls != 1 {
		t.Errorf("onResize calls = %d, want 1", calls)
	}
	if c.Box() != (protocol.Size{Width: 905, Height: 512}) {
		t.Errorf("Box() = %v", c.Box())
	}
}

type fakeSurface struct{ w, h, calls int }

func (s *fakeSurface) Resize(w, h int) { s.w, s.h = w, h; s.calls++ }

func TestCoordinator_GraphicalResizesSurface(t *testing.T) {
	surf := &fakeSurface{}
	var last protocol.Size
	c := New(protocol.KindRDP, nil, surf, func(s protocol.Size) { last = s })

	size, sent := c.Observe(protocol.Size{Width: 1280, Height: 720})
	if !sent || size != (protocol.Size{Width: 1280, Height: 720}) || last != size {
		t.Errorf("Observe() = %v, %v; onResize got %v", size, sent, last)
	}
	if surf.w != 1280 || surf.h != 720 {
		t.Errorf("surface = %dx%d", surf.w, surf.h)
	}

	c.Observe(protocol.Size{Width: 1280, Height: 720})
	if surf.calls != 1 {
		t.Errorf("surface resized %d times, want 1", surf.calls)
	}
}
