package layout

import "fmt"

// Point is a position on a page in points, origin at the top-left corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box; (X0,Y0) is the top-left corner and (X1,Y1)
// the bottom-right.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width of r.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height of r.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// BottomRight is the corner comments are anchored to.
func (r Rect) BottomRight() Point { return Point{X: r.X1, Y: r.Y1} }

// Union returns the smallest Rect containing r and o. An empty r yields o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X0: min(r.X0, o.X0),
		Y0: min(r.Y0, o.Y0),
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.1f,%.1f %.1f,%.1f]", r.X0, r.Y0, r.X1, r.Y1)
}
