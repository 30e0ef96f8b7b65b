package domain

// EditorElement is the editing surface's element model. Geometry is always
// origin+vector; labels are separate text elements linked to their parent by
// ContainerID, and the parent lists them in BoundElements.
type EditorElement struct {
	ID   string      `json:"id"`
	Type ElementType `json:"type"`
	Style

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// Points is relative to (X, Y): the first point is [0,0] and the last is
	// [Width, Height].
	Points         [][2]float64  `json:"points,omitempty"`
	StartBinding   *PointBinding `json:"startBinding,omitempty"`
	EndBinding     *PointBinding `json:"endBinding,omitempty"`
	StartArrowhead *string       `json:"startArrowhead"`
	EndArrowhead   *string       `json:"endArrowhead"`

	BoundElements []BoundElement `json:"boundElements,omitempty"`
	ContainerID   *string        `json:"containerId,omitempty"`

	Text          string  `json:"text,omitempty"`
	OriginalText  string  `json:"originalText,omitempty"`
	FontSize      float64 `json:"fontSize,omitempty"`
	TextAlign     string  `json:"textAlign,omitempty"`
	VerticalAlign string  `json:"verticalAlign,omitempty"`

	IsDeleted  bool           `json:"isDeleted,omitempty"`
	CustomData map[string]any `json:"customData,omitempty"`
}

// PointBinding ties a connector endpoint to another element.
type PointBinding struct {
	ElementID string  `json:"elementId"`
	Focus     float64 `json:"focus"`
	Gap       float64 `json:"gap"`
}

// BoundElement is a parent-side reference to an attached label or connector.
type BoundElement struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// CustomEndpointForm is the CustomData key recording that a connector was
// authored as an endpoint pair.
const CustomEndpointForm = "endpointForm"

// HasCustomFlag reports whether CustomData holds key set to true.
func (e *EditorElement) HasCustomFlag(key string) bool {
	v, ok := e.CustomData[key].(bool)
	return ok && v
}

// Container returns the parent id for an attached label, or "".
func (e *EditorElement) Container() string {
	if e.ContainerID == nil {
		return ""
	}
	return *e.ContainerID
}
