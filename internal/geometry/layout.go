package geometry

import "math"

const (
	GridSize = 20.0
	Padding  = 40.0
	MaxRowW  = 1600.0
)

// LayoutEngine places new groups of elements on a scene so they do not
// overlap what is already there.
type LayoutEngine struct {
	gridSize float64
	padding  float64
	maxRowW  float64
}

func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{
		gridSize: GridSize,
		padding:  Padding,
		maxRowW:  MaxRowW,
	}
}

// snap rounds v to the nearest grid point.
func (le *LayoutEngine) snap(v float64) float64 {
	return math.Round(v/le.gridSize) * le.gridSize
}

// NextPosition finds the first grid position, scanning rows top to bottom,
// where a box of size (w, h) clears every existing box by the padding.
func (le *LayoutEngine) NextPosition(existing []Rect, w, h float64) (float64, float64) {
	if len(existing) == 0 {
		return 0, 0
	}

	occupied := make([]Rect, len(existing))
	for i, r := range existing {
		occupied[i] = r.Normalize().Expand(le.padding)
	}

	candidate := Rect{W: w, H: h}
	for y := 0.0; y < 100000; y += le.gridSize {
		for x := 0.0; x < le.maxRowW; x += le.gridSize {
			candidate.X = le.snap(x)
			candidate.Y = le.snap(y)

			overlaps := false
			for _, occ := range occupied {
				if candidate.Intersects(occ) {
					overlaps = true
					break
				}
			}
			if !overlaps {
				return candidate.X, candidate.Y
			}
		}
	}

	// Fallback: below everything
	maxY := 0.0
	for _, r := range existing {
		n := r.Normalize()
		if n.Y+n.H > maxY {
			maxY = n.Y + n.H
		}
	}
	return 0, le.snap(maxY + le.padding)
}

// Bounds returns the smallest rect enclosing all of rs.
func Bounds(rs []Rect) Rect {
	if len(rs) == 0 {
		return Rect{}
	}
	first := rs[0].Normalize()
	minX, minY := first.X, first.Y
	maxX, maxY := first.X+first.W, first.Y+first.H
	for _, r := range rs[1:] {
		n := r.Normalize()
		minX = math.Min(minX, n.X)
		minY = math.Min(minY, n.Y)
		maxX = math.Max(maxX, n.X+n.W)
		maxY = math.Max(maxY, n.Y+n.H)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
