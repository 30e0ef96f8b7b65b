package domain

// ElementType is the closed set of element kinds a diagram may contain.
type ElementType string

const (
	ElementRectangle ElementType = "rectangle"
	ElementEllipse   ElementType = "ellipse"
	ElementDiamond   ElementType = "diamond"
	ElementText      ElementType = "text"
	ElementLine      ElementType = "line"
	ElementArrow     ElementType = "arrow"
)

// ArrowheadNone marks an explicitly absent arrowhead in a diagram description.
const ArrowheadNone = "none"

// Valid reports whether t is one of the supported kinds.
func (t ElementType) Valid() bool {
	switch t {
	case ElementRectangle, ElementEllipse, ElementDiamond, ElementText, ElementLine, ElementArrow:
		return true
	}
	return false
}

// IsShape reports whether t is a box-geometry shape that can hold a label.
func (t ElementType) IsShape() bool {
	return t == ElementRectangle || t == ElementEllipse || t == ElementDiamond
}

// IsConnector reports whether t is a line or an arrow.
func (t ElementType) IsConnector() bool {
	return t == ElementLine || t == ElementArrow
}

// Roundness mirrors the editor's corner rounding descriptor.
type Roundness struct {
	Type int `json:"type"`
}

// Style holds presentation fields shared by every element kind.
// BackgroundColor and Fill carry the same value; both are kept so older
// descriptions continue to load.
type Style struct {
	StrokeColor     string     `json:"strokeColor,omitempty"`
	BackgroundColor string     `json:"backgroundColor,omitempty"`
	Fill            string     `json:"fill,omitempty"`
	StrokeWidth     *float64   `json:"strokeWidth,omitempty"`
	FillStyle       string     `json:"fillStyle,omitempty"`
	StrokeStyle     string     `json:"strokeStyle,omitempty"`
	Roundness       *Roundness `json:"roundness,omitempty"`
	Opacity         *float64   `json:"opacity,omitempty"`
	Angle           *float64   `json:"angle,omitempty"`
}

// Label is text attached to a shape or connector.
type Label struct {
	Text          string   `json:"text"`
	FontSize      *float64 `json:"fontSize,omitempty"`
	StrokeColor   string   `json:"strokeColor,omitempty"`
	TextAlign     string   `json:"textAlign,omitempty"`
	VerticalAlign string   `json:"verticalAlign,omitempty"`
}

// Binding references the element a connector endpoint is attached to.
type Binding struct {
	ID string `json:"id"`
}

// Element is one entry of a diagram description: the compact schema the
// generator emits and the code editor shows.
//
// Connectors may use either endpoint pairs (X1..Y2) or origin+vector
// geometry (X, Y, Width, Height). Shapes may carry inline Text or a Label.
type Element struct {
	ID   string      `json:"id"`
	Type ElementType `json:"type"`
	Style

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	X1 *float64 `json:"x1,omitempty"`
	Y1 *float64 `json:"y1,omitempty"`
	X2 *float64 `json:"x2,omitempty"`
	Y2 *float64 `json:"y2,omitempty"`

	Points [][2]float64 `json:"points,omitempty"`

	Text          string   `json:"text,omitempty"`
	FontSize      *float64 `json:"fontSize,omitempty"`
	TextAlign     string   `json:"textAlign,omitempty"`
	VerticalAlign string   `json:"verticalAlign,omitempty"`
	TextColor     string   `json:"textColor,omitempty"`
	LabelColor    string   `json:"labelColor,omitempty"`
	Label         *Label   `json:"label,omitempty"`

	Start          *Binding `json:"start,omitempty"`
	End            *Binding `json:"end,omitempty"`
	StartArrowhead string   `json:"startArrowhead,omitempty"`
	EndArrowhead   string   `json:"endArrowhead,omitempty"`
}

// HasEndpoints reports whether the connector was given as an endpoint pair.
func (e *Element) HasEndpoints() bool {
	return e.X1 != nil || e.Y1 != nil || e.X2 != nil || e.Y2 != nil
}

// BindingID returns the bound element id, or "" for a nil binding.
func (b *Binding) BindingID() string {
	if b == nil {
		return ""
	}
	return b.ID
}
