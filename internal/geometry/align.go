package geometry

// Vector is a connector's origin plus its extent to the far endpoint.
type Vector struct {
	X, Y, Width, Height float64
}

// End returns the far endpoint.
func (v Vector) End() Point {
	return Point{X: v.X + v.Width, Y: v.Y + v.Height}
}

// Align routes a connector from the facing edge of start to the facing edge
// of end. Edges are chosen from the relative position of the two origins:
// shapes sharing a row or column face each other directly, otherwise the
// dominant axis decides and a tie goes to the top/bottom edges.
func Align(start, end Rect) Vector {
	from := start.EdgeMidpoint(facingSide(start, end, SideRight))
	to := end.EdgeMidpoint(facingSide(end, start, SideLeft))
	return Vector{X: from.X, Y: from.Y, Width: to.X - from.X, Height: to.Y - from.Y}
}

// facingSide picks the edge of self that points toward other.
func facingSide(self, other Rect, fallback Side) Side {
	dx := self.X - other.X
	dy := self.Y - other.Y

	horizontal := func() Side {
		if dx < 0 {
			return SideRight
		}
		return SideLeft
	}
	vertical := func() Side {
		if dy < 0 {
			return SideBottom
		}
		return SideTop
	}

	switch {
	case dx == 0 && dy == 0:
		return fallback
	case dy == 0:
		return horizontal()
	case dx == 0:
		return vertical()
	case abs(dx) > abs(dy):
		return horizontal()
	default:
		return vertical()
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
