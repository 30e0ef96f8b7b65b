package adapter

import (
	"fmt"

	"drawgen/internal/domain"
	"drawgen/internal/geometry"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// AlignConnectors returns a copy of elements in which every connector bound
// at both ends runs between the facing edge midpoints of its shapes.
// Connectors of exactly zero width are widened to one unit.
func (c *Converter) AlignConnectors(elements []domain.Element) []domain.Element {
	boxes := make(map[string]geometry.Rect, len(elements))
	for _, el := range elements {
		if !el.Type.IsConnector() && el.ID != "" {
			boxes[el.ID] = c.alignRect(el.X, el.Y, el.Width, el.Height)
		}
	}

	out := make([]domain.Element, len(elements))
	copy(out, elements)
	for i := range out {
		el := &out[i]
		if !el.Type.IsConnector() {
			continue
		}
		start, okStart := boxes[el.Start.BindingID()]
		end, okEnd := boxes[el.End.BindingID()]
		if okStart && okEnd {
			v := geometry.Align(start, end)
			el.X, el.Y, el.Width, el.Height = v.X, v.Y, v.Width, v.Height
			el.Points = nil
			if el.HasEndpoints() {
				x1, y1, x2, y2 := v.X, v.Y, v.X+v.Width, v.Y+v.Height
				el.X1, el.Y1, el.X2, el.Y2 = &x1, &y1, &x2, &y2
			}
		}
		if el.Width == 0 {
			el.Width = 1
		}
	}
	return out
}

// OptimizeCode applies AlignConnectors to diagram code in place, touching
// only the geometry fields of aligned connectors so unknown fields and key
// order survive. Code that is not a JSON array is returned unchanged.
func (c *Converter) OptimizeCode(code string) string {
	if !gjson.Valid(code) {
		return code
	}
	root := gjson.Parse(code)
	if !root.IsArray() {
		return code
	}

	items := root.Array()
	boxes := make(map[string]geometry.Rect, len(items))
	for _, v := range items {
		typ := domain.ElementType(v.Get("type").String())
		id := v.Get("id").String()
		if id == "" || typ.IsConnector() {
			continue
		}
		boxes[id] = c.alignRect(number(v.Get("x")), number(v.Get("y")), number(v.Get("width")), number(v.Get("height")))
	}

	out := code
	aligned := 0
	for i, v := range items {
		if !domain.ElementType(v.Get("type").String()).IsConnector() {
			continue
		}
		updates := map[string]float64{}
		start, okStart := boxes[v.Get("start.id").String()]
		end, okEnd := boxes[v.Get("end.id").String()]
		if okStart && okEnd {
			vec := geometry.Align(start, end)
			updates["x"], updates["y"] = vec.X, vec.Y
			updates["width"], updates["height"] = vec.Width, vec.Height
			if v.Get("x1").Exists() || v.Get("x2").Exists() {
				updates["x1"], updates["y1"] = vec.X, vec.Y
				updates["x2"], updates["y2"] = vec.X+vec.Width, vec.Y+vec.Height
			}
			aligned++
		}
		if w, ok := updates["width"]; (ok && w == 0) || (!ok && v.Get("width").Exists() && number(v.Get("width")) == 0) {
			updates["width"] = 1
		}
		for _, key := range []string{"x", "y", "width", "height", "x1", "y1", "x2", "y2"} {
			val, ok := updates[key]
			if !ok {
				continue
			}
			next, err := sjson.Set(out, fmt.Sprintf("%d.%s", i, key), val)
			if err != nil {
				log.WithError(err).Warn("adapter: optimize connector geometry")
				return code
			}
			out = next
		}
	}
	log.WithField("aligned", aligned).Debug("adapter: optimized connectors")
	return out
}

// alignRect builds the box used for alignment; zero or invalid extents fall
// back to the default extent.
func (c *Converter) alignRect(x, y, w, h float64) geometry.Rect {
	if !geometry.Finite(w) || w == 0 {
		w = c.opts.DefaultExtent
	}
	if !geometry.Finite(h) || h == 0 {
		h = c.opts.DefaultExtent
	}
	return geometry.Rect{X: c.offset(x), Y: c.offset(y), W: w, H: h}
}
