package adapter

import (
	"math"
	"strings"
	"unicode/utf8"

	"drawgen/internal/domain"
	"drawgen/internal/geometry"

	"github.com/google/uuid"
)

// LabelSuffix is appended to a parent id to name its synthesized label.
const LabelSuffix = "-label"

// ToEditorModel converts a diagram description into editor elements,
// logging one warning per dropped element.
func (c *Converter) ToEditorModel(elements []domain.Element) []domain.EditorElement {
	out, _ := c.ToEditorModelReport(elements)
	return out
}

// ToEditorModelReport is ToEditorModel that also returns what was dropped or
// renamed.
//
// Labels become standalone text elements that follow their parent and point
// back at it through ContainerID. Connector bindings come from explicit
// references first and spatial inference second.
func (c *Converter) ToEditorModelReport(elements []domain.Element) ([]domain.EditorElement, Report) {
	var report Report
	elements = c.uniqueIDs(elements, &report)

	boxes := make(map[string]geometry.Rect, len(elements))
	var candidates []geometry.Shape
	for _, el := range elements {
		if el.Type.IsConnector() || (el.Type == domain.ElementText && strings.TrimSpace(el.Text) == "") {
			continue
		}
		r := c.shapeRect(el)
		boxes[el.ID] = r
		// Text may be referenced explicitly but is never inferred.
		if el.Type.IsShape() {
			candidates = append(candidates, geometry.Shape{ID: el.ID, Bounds: r})
		}
	}

	taken := make(map[string]bool, len(elements))
	for _, el := range elements {
		taken[el.ID] = true
	}

	out := make([]domain.EditorElement, 0, len(elements))
	index := make(map[string]int, len(elements))
	for i, el := range elements {
		var ed domain.EditorElement
		var reason string
		switch {
		case el.Type == domain.ElementText:
			ed, reason = c.forwardText(el)
		case el.Type.IsConnector():
			ed = c.forwardConnector(el, boxes, candidates)
		default:
			ed = c.forwardShape(el, boxes[el.ID])
		}
		if reason != "" {
			report.drop(i, el.ID, string(el.Type), reason)
			continue
		}

		index[ed.ID] = len(out)
		out = append(out, ed)

		if text, ok := labelText(el); ok && el.Type != domain.ElementText {
			labelID := freshID(ed.ID+LabelSuffix, taken)
			lbl := c.forwardLabel(el, &out[index[ed.ID]], labelID, text)
			out[index[ed.ID]].BoundElements = append(out[index[ed.ID]].BoundElements,
				domain.BoundElement{ID: lbl.ID, Type: string(domain.ElementText)})
			index[lbl.ID] = len(out)
			out = append(out, lbl)
		}
	}

	// Bound shapes list the connectors attached to them.
	for _, ed := range out {
		for _, b := range []*domain.PointBinding{ed.StartBinding, ed.EndBinding} {
			if b == nil {
				continue
			}
			at, ok := index[b.ElementID]
			if !ok || hasBound(out[at].BoundElements, ed.ID) {
				continue
			}
			out[at].BoundElements = append(out[at].BoundElements,
				domain.BoundElement{ID: ed.ID, Type: string(ed.Type)})
		}
	}
	return out, report
}

// uniqueIDs regenerates the id of any element that repeats an earlier one.
func (c *Converter) uniqueIDs(elements []domain.Element, report *Report) []domain.Element {
	seen := make(map[string]bool, len(elements))
	var copied []domain.Element
	for i, el := range elements {
		if el.ID != "" && !seen[el.ID] {
			seen[el.ID] = true
			continue
		}
		if copied == nil {
			copied = append([]domain.Element(nil), elements...)
		}
		fresh := uuid.NewString()
		if el.ID != "" {
			report.rename(el.ID, fresh)
		}
		copied[i].ID = fresh
		seen[fresh] = true
	}
	if copied == nil {
		return elements
	}
	return copied
}

func (c *Converter) baseElement(el domain.Element) domain.EditorElement {
	style := el.Style
	bg := style.BackgroundColor
	if bg == "" {
		bg = style.Fill
	}
	style.BackgroundColor = bg
	style.Fill = bg
	return domain.EditorElement{ID: el.ID, Type: el.Type, Style: style}
}

// shapeRect sanitizes box geometry: non-finite offsets become 0, missing or
// non-finite extents the default, small extents the minimum, and everything
// is clipped to the coordinate limit.
func (c *Converter) shapeRect(el domain.Element) geometry.Rect {
	r := geometry.Rect{
		X: c.offset(el.X),
		Y: c.offset(el.Y),
		W: el.Width,
		H: el.Height,
	}
	if !geometry.Finite(r.W) || r.W == 0 {
		r.W = c.opts.DefaultExtent
	}
	if !geometry.Finite(r.H) || r.H == 0 {
		r.H = c.opts.DefaultExtent
	}
	if el.Type == domain.ElementText && (el.Width == 0 || el.Height == 0) {
		w, h := c.measureText(el.Text, c.fontSize(el.FontSize))
		if el.Width == 0 {
			r.W = w
		}
		if el.Height == 0 {
			r.H = h
		}
	}
	r.W = c.extent(r.W)
	r.H = c.extent(r.H)
	return r
}

func (c *Converter) offset(v float64) float64 {
	if !geometry.Finite(v) {
		return 0
	}
	return geometry.Clip(v, c.opts.CoordinateLimit)
}

func (c *Converter) extent(v float64) float64 {
	return geometry.Clip(geometry.ClampMagnitude(v, c.opts.MinExtent), c.opts.CoordinateLimit)
}

func (c *Converter) forwardShape(el domain.Element, r geometry.Rect) domain.EditorElement {
	ed := c.baseElement(el)
	ed.X, ed.Y, ed.Width, ed.Height = r.X, r.Y, r.W, r.H
	return ed
}

func (c *Converter) forwardText(el domain.Element) (domain.EditorElement, string) {
	if strings.TrimSpace(el.Text) == "" {
		return domain.EditorElement{}, "text element has no text"
	}
	r := c.shapeRect(el)
	ed := c.baseElement(el)
	ed.X, ed.Y, ed.Width, ed.Height = r.X, r.Y, r.W, r.H
	ed.Text = el.Text
	ed.OriginalText = el.Text
	ed.FontSize = c.fontSize(el.FontSize)
	ed.TextAlign = el.TextAlign
	ed.VerticalAlign = el.VerticalAlign
	return ed, ""
}

// forwardConnector converts a connector to origin + vector form. Each axis of
// the vector is raised to at least MinExtent, keeping its sign.
func (c *Converter) forwardConnector(el domain.Element, boxes map[string]geometry.Rect, candidates []geometry.Shape) domain.EditorElement {
	ed := c.baseElement(el)

	var origin geometry.Point
	var w, h float64
	var inner [][2]float64
	switch {
	case el.HasEndpoints():
		x1 := orDefault(el.X1, el.X)
		y1 := orDefault(el.Y1, el.Y)
		x2 := orDefault(el.X2, x1)
		y2 := orDefault(el.Y2, y1)
		origin = geometry.Point{X: x1, Y: y1}
		w, h = x2-x1, y2-y1
		ed.CustomData = map[string]any{domain.CustomEndpointForm: true}
	case len(el.Points) >= 2:
		first, last := el.Points[0], el.Points[len(el.Points)-1]
		origin = geometry.Point{X: el.X + first[0], Y: el.Y + first[1]}
		w, h = last[0]-first[0], last[1]-first[1]
		for _, p := range el.Points[1 : len(el.Points)-1] {
			inner = append(inner, [2]float64{p[0] - first[0], p[1] - first[1]})
		}
	default:
		origin = geometry.Point{X: el.X, Y: el.Y}
		w, h = el.Width, el.Height
	}

	origin.X = c.offset(origin.X)
	origin.Y = c.offset(origin.Y)
	if !geometry.Finite(w) {
		w = c.opts.DefaultExtent
	}
	if !geometry.Finite(h) {
		h = 0
	}

	startID := c.explicitBinding(el.Start, boxes)
	endID := c.explicitBinding(el.End, boxes)
	if startID == "" || endID == "" {
		end := geometry.Point{X: origin.X + w, Y: origin.Y + h}
		inferredStart, inferredEnd := geometry.ResolveEndpoints(el.ID, origin, end, candidates, c.opts.BindingTolerance)
		if startID == "" {
			startID = inferredStart
		}
		if endID == "" {
			endID = inferredEnd
		}
	}

	w = c.extent(w)
	h = c.extent(h)

	ed.X, ed.Y, ed.Width, ed.Height = origin.X, origin.Y, w, h
	ed.Points = append([][2]float64{{0, 0}}, inner...)
	ed.Points = append(ed.Points, [2]float64{w, h})
	if startID != "" {
		ed.StartBinding = &domain.PointBinding{ElementID: startID, Gap: 1}
	}
	if endID != "" {
		ed.EndBinding = &domain.PointBinding{ElementID: endID, Gap: 1}
	}
	ed.StartArrowhead = editorArrowhead(el.StartArrowhead, "")
	if el.Type == domain.ElementArrow {
		ed.EndArrowhead = editorArrowhead(el.EndArrowhead, "arrow")
	} else {
		ed.EndArrowhead = editorArrowhead(el.EndArrowhead, "")
	}
	return ed
}

// explicitBinding returns the referenced id when it names a known
// non-connector element; anything else is treated as unbound.
func (c *Converter) explicitBinding(b *domain.Binding, boxes map[string]geometry.Rect) string {
	id := b.BindingID()
	if _, ok := boxes[id]; !ok {
		return ""
	}
	return id
}

// forwardLabel builds the text element attached to parent.
func (c *Converter) forwardLabel(el domain.Element, parent *domain.EditorElement, id, text string) domain.EditorElement {
	var lbl domain.Label
	if el.Label != nil {
		lbl = *el.Label
	}
	fontSize := lbl.FontSize
	if fontSize == nil {
		fontSize = el.FontSize
	}
	size := c.fontSize(fontSize)

	align := firstNonEmpty(lbl.TextAlign, el.TextAlign, "center")
	valign := firstNonEmpty(lbl.VerticalAlign, el.VerticalAlign, "middle")
	color := firstNonEmpty(el.TextColor, lbl.StrokeColor, el.LabelColor, el.StrokeColor, c.opts.DefaultTextColor)

	w, h := c.measureText(text, size)
	box := geometry.Rect{X: parent.X, Y: parent.Y, W: parent.Width, H: parent.Height}.Normalize()
	if w > box.W && box.W > 0 && !parent.Type.IsConnector() {
		w = box.W
	}
	center := box.Center()

	parentID := parent.ID
	return domain.EditorElement{
		ID:   id,
		Type: domain.ElementText,
		Style: domain.Style{
			StrokeColor:     color,
			BackgroundColor: "transparent",
			Fill:            "transparent",
		},
		X:             center.X - w/2,
		Y:             center.Y - h/2,
		Width:         w,
		Height:        h,
		ContainerID:   &parentID,
		Text:          text,
		OriginalText:  text,
		FontSize:      size,
		TextAlign:     align,
		VerticalAlign: valign,
	}
}

// measureText estimates the box a text occupies.
func (c *Converter) measureText(text string, fontSize float64) (float64, float64) {
	lines := strings.Split(text, "\n")
	longest := 0
	for _, l := range lines {
		if n := utf8.RuneCountInString(l); n > longest {
			longest = n
		}
	}
	w := math.Max(float64(longest)*fontSize*0.6, c.opts.MinExtent)
	h := float64(len(lines)) * fontSize * 1.25
	return w, h
}

func (c *Converter) fontSize(v *float64) float64 {
	if v == nil || !geometry.Finite(*v) || *v <= 0 {
		return c.opts.DefaultFontSize
	}
	return *v
}

// labelText returns the text a shape or connector should display.
func labelText(el domain.Element) (string, bool) {
	if el.Label != nil && strings.TrimSpace(el.Label.Text) != "" {
		return el.Label.Text, true
	}
	if strings.TrimSpace(el.Text) != "" {
		return el.Text, true
	}
	return "", false
}

func editorArrowhead(v, def string) *string {
	switch v {
	case domain.ArrowheadNone:
		return nil
	case "":
		if def == "" {
			return nil
		}
		v = def
	}
	return &v
}

func freshID(want string, taken map[string]bool) string {
	id := want
	if taken[id] {
		id = uuid.NewString()
	}
	taken[id] = true
	return id
}

func hasBound(list []domain.BoundElement, id string) bool {
	for _, b := range list {
		if b.ID == id {
			return true
		}
	}
	return false
}

func orDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
