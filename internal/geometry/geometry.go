package geometry

import "math"

// Point is a position in scene coordinates.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned bounding box given by origin and extent.
type Rect struct {
	X, Y, W, H float64
}

// Side names one of the four edges of a Rect.
type Side string

const (
	SideTop    Side = "top"
	SideBottom Side = "bottom"
	SideLeft   Side = "left"
	SideRight  Side = "right"
)

// Sides lists the edges in the order candidates are evaluated.
var Sides = []Side{SideTop, SideRight, SideBottom, SideLeft}

// Normalize returns an equivalent rect with non-negative extents.
func (r Rect) Normalize() Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// Expand grows the rect by pad on every side.
func (r Rect) Expand(pad float64) Rect {
	return Rect{X: r.X - pad, Y: r.Y - pad, W: r.W + pad*2, H: r.H + pad*2}
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	n := r.Normalize()
	return p.X >= n.X && p.X <= n.X+n.W && p.Y >= n.Y && p.Y <= n.Y+n.H
}

func (r Rect) Intersects(b Rect) bool {
	a, b := r.Normalize(), b.Normalize()
	return a.X < b.X+b.W && a.X+a.W > b.X &&
		a.Y < b.Y+b.H && a.Y+a.H > b.Y
}

// Center returns the midpoint of the rect.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// EdgeMidpoint returns the center of the given edge.
func (r Rect) EdgeMidpoint(s Side) Point {
	switch s {
	case SideTop:
		return Point{X: r.X + r.W/2, Y: r.Y}
	case SideBottom:
		return Point{X: r.X + r.W/2, Y: r.Y + r.H}
	case SideLeft:
		return Point{X: r.X, Y: r.Y + r.H/2}
	default:
		return Point{X: r.X + r.W, Y: r.Y + r.H/2}
	}
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ClampMagnitude pushes v away from zero so that |v| >= floor, keeping its sign.
// Zero is treated as positive.
func ClampMagnitude(v, floor float64) float64 {
	if math.Abs(v) >= floor {
		return v
	}
	if v < 0 {
		return -floor
	}
	return floor
}

// Clip limits v to [-limit, limit]. A non-positive limit disables clipping.
func Clip(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}
