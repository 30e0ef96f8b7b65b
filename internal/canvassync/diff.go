package canvassync

import (
	"math"
	"reflect"

	"drawgen/internal/domain"
)

// sameIDs reports whether both lists contain exactly the same ids.
func sameIDs[T any](a, b []T, id func(T) string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, el := range a {
		set[id(el)] = struct{}{}
	}
	for _, el := range b {
		if _, ok := set[id(el)]; !ok {
			return false
		}
	}
	return len(set) == len(b)
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func nearPtr(a, b *float64, tol float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return near(*a, *b, tol)
}

func nearPoints(a, b [][2]float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !near(a[i][0], b[i][0], tol) || !near(a[i][1], b[i][1], tol) {
			return false
		}
	}
	return true
}

// editorChanged reports whether next differs materially from prev. A
// different id set always counts; otherwise geometry is compared within tol
// and everything else exactly. Label geometry is derived from the parent and
// is not compared.
func editorChanged(prev, next []domain.EditorElement, tol float64) bool {
	if !sameIDs(prev, next, func(e domain.EditorElement) string { return e.ID }) {
		return true
	}
	byID := make(map[string]domain.EditorElement, len(prev))
	for _, el := range prev {
		byID[el.ID] = el
	}
	for _, n := range next {
		p := byID[n.ID]
		if p.Type != n.Type || p.Text != n.Text || p.Container() != n.Container() ||
			!reflect.DeepEqual(p.Style, n.Style) || p.FontSize != n.FontSize ||
			bindingID(p.StartBinding) != bindingID(n.StartBinding) ||
			bindingID(p.EndBinding) != bindingID(n.EndBinding) ||
			!reflect.DeepEqual(p.StartArrowhead, n.StartArrowhead) ||
			!reflect.DeepEqual(p.EndArrowhead, n.EndArrowhead) {
			return true
		}
		if n.ContainerID != nil {
			continue
		}
		if !near(p.X, n.X, tol) || !near(p.Y, n.Y, tol) ||
			!near(p.Width, n.Width, tol) || !near(p.Height, n.Height, tol) ||
			!nearPoints(p.Points, n.Points, tol) {
			return true
		}
	}
	return false
}

// diagramChanged is editorChanged for diagram descriptions.
func diagramChanged(prev, next []domain.Element, tol float64) bool {
	if !sameIDs(prev, next, func(e domain.Element) string { return e.ID }) {
		return true
	}
	byID := make(map[string]domain.Element, len(prev))
	for _, el := range prev {
		byID[el.ID] = el
	}
	for _, n := range next {
		p := byID[n.ID]
		if p.Type != n.Type || p.Text != n.Text ||
			!reflect.DeepEqual(p.Style, n.Style) || !reflect.DeepEqual(p.Label, n.Label) ||
			!nearPtr(p.FontSize, n.FontSize, 0) ||
			p.Start.BindingID() != n.Start.BindingID() || p.End.BindingID() != n.End.BindingID() ||
			p.StartArrowhead != n.StartArrowhead || p.EndArrowhead != n.EndArrowhead {
			return true
		}
		if !near(p.X, n.X, tol) || !near(p.Y, n.Y, tol) ||
			!near(p.Width, n.Width, tol) || !near(p.Height, n.Height, tol) ||
			!nearPtr(p.X1, n.X1, tol) || !nearPtr(p.Y1, n.Y1, tol) ||
			!nearPtr(p.X2, n.X2, tol) || !nearPtr(p.Y2, n.Y2, tol) ||
			!nearPoints(p.Points, n.Points, tol) {
			return true
		}
	}
	return false
}

func bindingID(b *domain.PointBinding) string {
	if b == nil {
		return ""
	}
	return b.ElementID
}
