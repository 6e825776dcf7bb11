// Package resize turns container size changes into session resize
// notifications. Text sessions map the pixel box onto a terminal grid via a
// TerminalAdapter; graphical sessions use the box directly and resize their
// drawing surface. A size equal to the last one emitted is suppressed.
package resize

import (
	"sync"

	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// TerminalAdapter maps a container box to a terminal grid.
type TerminalAdapter interface {
	Fit(box protocol.Size) protocol.Size
}

// Surface is a drawable that follows the container size. *screen.Renderer
// implements it.
type Surface interface {
	Resize(width, height int)
}

// Minimum grid accepted by terminal backends.
const (
	MinCols = 2
	MinRows = 1
)

// CellMetrics is a TerminalAdapter for a fixed-size monospace cell.
type CellMetrics struct {
	CellWidth  int
	CellHeight int
	PaddingX   int
	PaddingY   int
}

// DefaultCells approximates a 14px monospace font.
var DefaultCells = CellMetrics{CellWidth: 9, CellHeight: 17}

// CellGrid treats the box as already measured in cells, as a local tty
// reports it.
var CellGrid = CellMetrics{CellWidth: 1, CellHeight: 1}

// Fit returns how many whole cells fit inside box after padding.
func (m CellMetrics) Fit(box protocol.Size) protocol.Size {
	cw, ch := m.CellWidth, m.CellHeight
	if cw <= 0 {
		cw = 1
	}
	if ch <= 0 {
		ch = 1
	}
	cols := (box.Width - 2*m.PaddingX) / cw
	rows := (box.Height - 2*m.PaddingY) / ch
	if cols < MinCols {
		cols = MinCols
	}
	if rows < MinRows {
		rows = MinRows
	}
	return protocol.Size{Width: cols, Height: rows}
}

// Coordinator tracks one session's container and emits resize events.
type Coordinator struct {
	graphical bool
	adapter   TerminalAdapter
	surface   Surface
	onResize  func(protocol.Size)

	mu   sync.Mutex
	box  protocol.Size
	last protocol.Size
}

// New builds a coordinator for a session of kind. adapter is used for text
// sessions (nil means DefaultCells); surface, if set, follows the box for
// graphical sessions.
func New(kind protocol.Kind, adapter TerminalAdapter, surface Surface, onResize func(protocol.Size)) *Coordinator {
	if adapter == nil {
		adapter = DefaultCells
	}
	return &Coordinator{
		graphical: kind.Graphical(),
		adapter:   adapter,
		surface:   surface,
		onResize:  onResize,
	}
}

// Observe records a new container box. It returns the size passed to
// onResize, or false when the box is empty or the resulting size is
// unchanged.
func (c *Coordinator) Observe(box protocol.Size) (protocol.Size, bool) {
	if box.Width <= 0 || box.Height <= 0 {
		return protocol.Size{}, false
	}

	c.mu.Lock()
	boxChanged := box != c.box
	c.box = box
	size := box
	if !c.graphical {
		size = c.adapter.Fit(box)
	}
	changed := size != c.last
	if changed {
		c.last = size
	}
	c.mu.Unlock()

	if boxChanged && c.graphical && c.surface != nil {
		c.surface.Resize(box.Width, box.Height)
	}
	if !changed {
		return size, false
	}
	if c.onResize != nil {
		c.onResize(size)
	}
	return size, true
}

// Size returns the last size emitted.
func (c *Coordinator) Size() protocol.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Box returns the last container box observed.
func (c *Coordinator) Box() protocol.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.box
}
