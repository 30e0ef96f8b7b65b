package geometry

import "math"

// Shape is a binding candidate: an element id with its bounding box.
// Connectors are carried so callers can pass the whole scene; they never match.
type Shape struct {
	ID        string
	Bounds    Rect
	Connector bool
}

// Match describes the shape an endpoint resolved to.
type Match struct {
	ID        string
	Side      Side    // nearest edge
	Distance  float64 // 0 when the point is inside the expanded box
	EdgeDist  float64 // distance to the nearest edge midpoint
	Contained bool
}

// Resolve finds the shape an endpoint should bind to.
//
// A candidate's effective distance is 0 when p lies inside its box expanded
// by tolerance, otherwise the distance to its nearest edge midpoint. The
// smallest effective distance within tolerance wins. Ties between contained
// candidates go to the nearer edge midpoint, then to the earlier candidate.
func Resolve(p Point, candidates []Shape, tolerance float64) (Match, bool) {
	var best Match
	found := false
	for _, c := range candidates {
		if c.Connector || c.ID == "" {
			continue
		}
		m := measure(p, c, tolerance)
		if m.Distance > tolerance {
			continue
		}
		if !found || better(m, best) {
			best = m
			found = true
		}
	}
	return best, found
}

// ResolveEndpoints resolves both ends of a connector independently. The
// connector's own id never matches.
func ResolveEndpoints(selfID string, start, end Point, candidates []Shape, tolerance float64) (startID, endID string) {
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if c.ID != selfID {
			filtered = append(filtered, c)
		}
	}
	if m, ok := Resolve(start, filtered, tolerance); ok {
		startID = m.ID
	}
	if m, ok := Resolve(end, filtered, tolerance); ok {
		endID = m.ID
	}
	return startID, endID
}

func measure(p Point, c Shape, tolerance float64) Match {
	box := c.Bounds.Normalize()
	m := Match{ID: c.ID, EdgeDist: math.Inf(1)}
	for _, s := range Sides {
		if d := Distance(p, box.EdgeMidpoint(s)); d < m.EdgeDist {
			m.EdgeDist = d
			m.Side = s
		}
	}
	m.Contained = box.Expand(tolerance).Contains(p)
	if m.Contained {
		m.Distance = 0
	} else {
		m.Distance = m.EdgeDist
	}
	return m
}

func better(a, b Match) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.EdgeDist < b.EdgeDist
}
