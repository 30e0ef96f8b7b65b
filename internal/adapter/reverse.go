package adapter

import (
	"math"

	"drawgen/internal/domain"
)

// ToDiagramModel converts editor elements back into a diagram description.
//
// A text element whose container exists is folded into that container's
// label and never emitted on its own. Geometry is rounded to whole units and
// binding ids are kept even when the target is gone.
func (c *Converter) ToDiagramModel(elements []domain.EditorElement) []domain.Element {
	live := make([]domain.EditorElement, 0, len(elements))
	byID := make(map[string]int, len(elements))
	for _, ed := range elements {
		if ed.IsDeleted {
			continue
		}
		byID[ed.ID] = len(live)
		live = append(live, ed)
	}

	labels := resolveLabels(live, byID)
	folded := make(map[string]bool, len(labels))
	for _, textID := range labels {
		folded[textID] = true
	}

	out := make([]domain.Element, 0, len(live))
	for _, ed := range live {
		if folded[ed.ID] {
			continue
		}
		el := c.reverseElement(ed)
		if textID, ok := labels[ed.ID]; ok {
			el.Label = reverseLabel(live[byID[textID]])
		}
		out = append(out, el)
	}
	return out
}

// resolveLabels maps each parent id to the text element labelling it. The
// child's ContainerID is authoritative; a parent's BoundElements entry is
// used only for text that has no container set. Each parent gets at most one
// label.
func resolveLabels(live []domain.EditorElement, byID map[string]int) map[string]string {
	labels := make(map[string]string)
	claimed := make(map[string]bool)
	for _, ed := range live {
		if ed.Type != domain.ElementText {
			continue
		}
		parent := ed.Container()
		at, ok := byID[parent]
		if parent == "" || !ok || live[at].Type == domain.ElementText {
			continue
		}
		if _, has := labels[parent]; has {
			continue
		}
		labels[parent] = ed.ID
		claimed[ed.ID] = true
	}
	for _, ed := range live {
		if ed.Type == domain.ElementText {
			continue
		}
		if _, has := labels[ed.ID]; has {
			continue
		}
		for _, b := range ed.BoundElements {
			at, ok := byID[b.ID]
			if b.Type != string(domain.ElementText) || !ok || claimed[b.ID] {
				continue
			}
			child := live[at]
			if child.Type != domain.ElementText || child.ContainerID != nil {
				continue
			}
			labels[ed.ID] = b.ID
			claimed[b.ID] = true
			break
		}
	}
	return labels
}

func (c *Converter) reverseElement(ed domain.EditorElement) domain.Element {
	style := ed.Style
	bg := style.BackgroundColor
	if bg == "" {
		bg = style.Fill
	}
	style.BackgroundColor = bg
	style.Fill = bg

	el := domain.Element{
		ID:     ed.ID,
		Type:   ed.Type,
		Style:  style,
		X:      round(ed.X),
		Y:      round(ed.Y),
		Width:  round(ed.Width),
		Height: round(ed.Height),
	}

	switch {
	case ed.Type == domain.ElementText:
		el.Text = ed.Text
		if el.Text == "" {
			el.Text = ed.OriginalText
		}
		if ed.FontSize > 0 {
			fs := ed.FontSize
			el.FontSize = &fs
		}
		el.TextAlign = ed.TextAlign
		el.VerticalAlign = ed.VerticalAlign

	case ed.Type.IsConnector():
		if ed.HasCustomFlag(domain.CustomEndpointForm) {
			x1, y1 := el.X, el.Y
			x2, y2 := round(ed.X+ed.Width), round(ed.Y+ed.Height)
			el.X1, el.Y1, el.X2, el.Y2 = &x1, &y1, &x2, &y2
		}
		if len(ed.Points) > 2 {
			el.Points = make([][2]float64, len(ed.Points))
			for i, p := range ed.Points {
				el.Points[i] = [2]float64{round(p[0]), round(p[1])}
			}
		}
		if ed.StartBinding != nil && ed.StartBinding.ElementID != "" {
			el.Start = &domain.Binding{ID: ed.StartBinding.ElementID}
		}
		if ed.EndBinding != nil && ed.EndBinding.ElementID != "" {
			el.End = &domain.Binding{ID: ed.EndBinding.ElementID}
		}
		el.StartArrowhead = diagramArrowhead(ed.StartArrowhead, "")
		if ed.Type == domain.ElementArrow {
			el.EndArrowhead = diagramArrowhead(ed.EndArrowhead, domain.ArrowheadNone)
		} else {
			el.EndArrowhead = diagramArrowhead(ed.EndArrowhead, "")
		}
	}
	return el
}

func reverseLabel(text domain.EditorElement) *domain.Label {
	lbl := &domain.Label{
		Text:          text.Text,
		StrokeColor:   text.StrokeColor,
		TextAlign:     text.TextAlign,
		VerticalAlign: text.VerticalAlign,
	}
	if lbl.Text == "" {
		lbl.Text = text.OriginalText
	}
	if text.FontSize > 0 {
		fs := text.FontSize
		lbl.FontSize = &fs
	}
	return lbl
}

// diagramArrowhead renders an editor arrowhead; missing becomes missing.
func diagramArrowhead(v *string, missing string) string {
	if v == nil || *v == "" {
		return missing
	}
	return *v
}

func round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r := math.Round(v)
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}
