package visual

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Frame is what a Renderer draws on each tick. Data is reused between frames.
type Frame struct {
	Seq  uint64
	Data []byte
	Bars []Bar
}

type Renderer interface {
	Render(Frame) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Frame) error

func (f RendererFunc) Render(fr Frame) error { return f(fr) }

// PastelHex is the colour of bar i: hsl(i*360/96, 70%, 80%).
func PastelHex(hue float64) string {
	return colorful.Hsl(hue, 0.7, 0.8).Hex()
}

// TermRenderer rasterizes the radial canvas onto a character grid.
type TermRenderer struct {
	out    io.Writer
	cols   int
	rows   int
	styles [BarCount]lipgloss.Style
	grid   [][]int
}

// NewTermRenderer draws into cols x rows cells. Cells are twice as tall as wide.
func NewTermRenderer(out io.Writer, cols, rows int) *TermRenderer {
	if cols <= 0 {
		cols = 64
	}
	if rows <= 0 {
		rows = 32
	}
	r := &TermRenderer{out: out, cols: cols, rows: rows, grid: make([][]int, rows)}
	for i := range r.grid {
		r.grid[i] = make([]int, cols)
	}
	for i := range r.styles {
		r.styles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(PastelHex(float64(i) * 360 / BarCount)))
	}
	return r
}

func (r *TermRenderer) Render(f Frame) error {
	_, err := io.WriteString(r.out, "\x1b[H"+r.Draw(f))
	return err
}

// Draw returns the frame as styled text without cursor control.
func (r *TermRenderer) Draw(f Frame) string {
	for y := range r.grid {
		for x := range r.grid[y] {
			r.grid[y][x] = -1
		}
	}
	sx := float64(r.cols) / CanvasSize
	sy := float64(r.rows) / CanvasSize
	for _, b := range f.Bars {
		steps := int(math.Ceil(b.Height/4)) + 1
		for s := 0; s <= steps; s++ {
			t := float64(s) / float64(steps)
			x := int((b.Inner.X + (b.Outer.X-b.Inner.X)*t) * sx)
			y := int((b.Inner.Y + (b.Outer.Y-b.Inner.Y)*t) * sy)
			if x >= 0 && x < r.cols && y >= 0 && y < r.rows {
				r.grid[y][x] = b.Index
			}
		}
	}

	var sb strings.Builder
	for _, row := range r.grid {
		for _, idx := range row {
			if idx < 0 {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteString(r.styles[idx].Render("█"))
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "frame %d\n", f.Seq)
	return sb.String()
}
