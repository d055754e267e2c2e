package visual

import "math"

// Radial layout of the canvas.
const (
	CanvasSize   = 600
	Radius       = 200
	BarWidth     = 10
	BarCount     = 96
	MinBarHeight = 5
	MaxBarHeight = 150
)

type Point struct{ X, Y float64 }

// Bar is one radial bar. Inner sits on the circle; Outer is Height further out.
type Bar struct {
	Index  int
	Angle  float64 // degrees clockwise from 12 o'clock
	Height float64
	Inner  Point
	Outer  Point
	Hue    float64
}

// Layout maps frequency data to bars: bar i samples bin 2i.
func Layout(data []byte) []Bar {
	bars := make([]Bar, BarCount)
	c := float64(CanvasSize) / 2
	for i := range bars {
		var v byte
		if 2*i < len(data) {
			v = data[2*i]
		}
		h := math.Max(MinBarHeight, float64(v)/255*MaxBarHeight)
		deg := float64(i) * 360 / BarCount
		rad := deg * math.Pi / 180
		dx, dy := math.Sin(rad), -math.Cos(rad)
		bars[i] = Bar{
			Index:  i,
			Angle:  deg,
			Height: h,
			Inner:  Point{X: c + Radius*dx, Y: c + Radius*dy},
			Outer:  Point{X: c + (Radius+h)*dx, Y: c + (Radius+h)*dy},
			Hue:    float64(i) * (360.0 / BarCount),
		}
	}
	return bars
}
