package adapter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"drawgen/internal/domain"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Decode reads a diagram description into typed elements. Entries that are
// not objects, have an unknown type, or are text without text are dropped.
// When two entries share an id the later one wins but keeps the position of
// the first. Entries without an id get "<type>-<index>".
func Decode(code string) ([]domain.Element, Report) {
	var report Report
	root := gjson.Parse(code)
	if root.IsObject() && root.Get("elements").IsArray() {
		root = root.Get("elements")
	}
	if !root.IsArray() {
		return nil, report
	}

	var out []domain.Element
	position := make(map[string]int)
	for i, v := range root.Array() {
		el, reason := decodeElement(v)
		if reason != "" {
			report.drop(i, v.Get("id").String(), v.Get("type").String(), reason)
			continue
		}
		if el.ID == "" {
			el.ID = fmt.Sprintf("%s-%d", el.Type, i)
			if _, taken := position[el.ID]; taken {
				el.ID = uuid.NewString()
			}
		}
		if at, seen := position[el.ID]; seen {
			out[at] = el
			continue
		}
		position[el.ID] = len(out)
		out = append(out, el)
	}
	return out, report
}

// DecodeEditor reads editor elements from either a bare array or a scene
// object with an "elements" array.
func DecodeEditor(data string) ([]domain.EditorElement, error) {
	root := gjson.Parse(data)
	if root.IsObject() {
		root = root.Get("elements")
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("decode editor elements: expected an array")
	}
	var out []domain.EditorElement
	if err := json.Unmarshal([]byte(root.Raw), &out); err != nil {
		return nil, fmt.Errorf("decode editor elements: %w", err)
	}
	return out, nil
}

// Encode renders elements as an indented diagram description.
func Encode(elements []domain.Element) (string, error) {
	if elements == nil {
		elements = []domain.Element{}
	}
	data, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode diagram: %w", err)
	}
	return string(data), nil
}

func decodeElement(v gjson.Result) (domain.Element, string) {
	if !v.IsObject() {
		return domain.Element{}, "not an object"
	}
	typ := domain.ElementType(strings.ToLower(v.Get("type").String()))
	if !typ.Valid() {
		return domain.Element{}, "unknown type"
	}

	el := domain.Element{
		ID:     v.Get("id").String(),
		Type:   typ,
		Style:  decodeStyle(v),
		X:      number(v.Get("x")),
		Y:      number(v.Get("y")),
		Width:  number(v.Get("width")),
		Height: number(v.Get("height")),
		X1:     optNumber(v.Get("x1")),
		Y1:     optNumber(v.Get("y1")),
		X2:     optNumber(v.Get("x2")),
		Y2:     optNumber(v.Get("y2")),

		FontSize:      optNumber(v.Get("fontSize")),
		TextAlign:     v.Get("textAlign").String(),
		VerticalAlign: v.Get("verticalAlign").String(),
		TextColor:     v.Get("textColor").String(),
		LabelColor:    v.Get("labelColor").String(),
		Label:         decodeLabel(v.Get("label")),
	}

	if t := v.Get("text"); t.Exists() && t.Type != gjson.Null {
		el.Text = t.String()
	}
	if typ == domain.ElementText && strings.TrimSpace(el.Text) == "" {
		return domain.Element{}, "text element has no text"
	}

	for _, p := range v.Get("points").Array() {
		pair := p.Array()
		if len(pair) >= 2 {
			el.Points = append(el.Points, [2]float64{number(pair[0]), number(pair[1])})
		}
	}

	if typ.IsConnector() {
		el.Start = decodeBinding(v, "start", "startId", "startBinding.elementId")
		el.End = decodeBinding(v, "end", "endId", "endBinding.elementId")
		el.StartArrowhead = decodeArrowhead(v.Get("startArrowhead"), gjson.Result{})
		el.EndArrowhead = decodeArrowhead(v.Get("endArrowhead"), v.Get("head"))
	}
	return el, ""
}

func decodeStyle(v gjson.Result) domain.Style {
	s := domain.Style{
		StrokeColor: firstString(v, "strokeColor", "stroke"),
		StrokeWidth: optNumber(v.Get("strokeWidth")),
		FillStyle:   v.Get("fillStyle").String(),
		StrokeStyle: v.Get("strokeStyle").String(),
		Opacity:     optNumber(v.Get("opacity")),
		Angle:       optNumber(v.Get("angle")),
	}
	bg := firstString(v, "backgroundColor", "fill")
	s.BackgroundColor = bg
	s.Fill = bg
	if r := v.Get("roundness"); r.IsObject() {
		s.Roundness = &domain.Roundness{Type: int(r.Get("type").Int())}
	}
	return s
}

func decodeLabel(v gjson.Result) *domain.Label {
	switch {
	case v.Type == gjson.String:
		if v.String() == "" {
			return nil
		}
		return &domain.Label{Text: v.String()}
	case v.IsObject():
		l := &domain.Label{
			Text:          v.Get("text").String(),
			FontSize:      optNumber(v.Get("fontSize")),
			StrokeColor:   v.Get("strokeColor").String(),
			TextAlign:     v.Get("textAlign").String(),
			VerticalAlign: v.Get("verticalAlign").String(),
		}
		if l.Text == "" {
			return nil
		}
		return l
	}
	return nil
}

// decodeBinding reads the first non-empty binding reference among the given
// paths. A bare string is accepted in place of {"id": ...}.
func decodeBinding(v gjson.Result, paths ...string) *domain.Binding {
	for _, p := range paths {
		r := v.Get(p)
		if r.IsObject() {
			r = r.Get("id")
		}
		if id := r.String(); r.Type == gjson.String && id != "" {
			return &domain.Binding{ID: id}
		}
	}
	return nil
}

// decodeArrowhead maps explicit arrowhead fields and the legacy "head"
// shorthand onto the description's string form.
func decodeArrowhead(explicit, head gjson.Result) string {
	if explicit.Exists() {
		if explicit.Type == gjson.Null || explicit.String() == "" {
			return domain.ArrowheadNone
		}
		return explicit.String()
	}
	if head.Exists() {
		if head.String() == "arrow" {
			return "arrow"
		}
		return domain.ArrowheadNone
	}
	return ""
}

func firstString(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k).String(); s != "" {
			return s
		}
	}
	return ""
}

// number reads a numeric field. Numeric strings are accepted and may yield
// NaN or Inf, which later stages replace.
func number(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.String()), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return 0
}

func optNumber(r gjson.Result) *float64 {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	f := number(r)
	return &f
}
