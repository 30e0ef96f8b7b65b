package adapter_test

import (
	"math"
	"testing"

	"drawgen/internal/adapter"
	"drawgen/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func f(v float64) *float64 { return &v }

func newConverter() *adapter.Converter {
	return adapter.NewConverter(adapter.DefaultOptions())
}

func findEditor(t *testing.T, els []domain.EditorElement, id string) domain.EditorElement {
	t.Helper()
	for _, el := range els {
		if el.ID == id {
			return el
		}
	}
	require.Failf(t, "element not found", "id %q", id)
	return domain.EditorElement{}
}

// ─────────────────────────────────────────────────────────────
// Decode
// ─────────────────────────────────────────────────────────────

func TestDecode_FiltersAndAliases(t *testing.T) {
	code := `[
		{"id":"r","type":"rectangle","x":0,"y":0,"width":100,"height":50,"stroke":"#111","fill":"#eee"},
		{"id":"bad","type":"hexagon"},
		42,
		{"id":"t0","type":"text","text":""},
		{"id":"t1","type":"text","text":7},
		{"id":"a","type":"arrow","startId":"r","end":{"id":"t1"},"head":"none"},
		{"type":"ellipse"}
	]`

	els, report := adapter.Decode(code)
	require.Len(t, els, 4)
	assert.Len(t, report.Dropped, 3)

	r := els[0]
	assert.Equal(t, "#111", r.StrokeColor)
	assert.Equal(t, "#eee", r.BackgroundColor)
	assert.Equal(t, "#eee", r.Fill)

	assert.Equal(t, "7", els[1].Text)

	a := els[2]
	assert.Equal(t, "r", a.Start.BindingID())
	assert.Equal(t, "t1", a.End.BindingID())
	assert.Equal(t, domain.ArrowheadNone, a.EndArrowhead)

	assert.Equal(t, "ellipse-6", els[3].ID)
}

func TestDecode_DuplicateLaterWinsAtFirstPosition(t *testing.T) {
	els, _ := adapter.Decode(`[
		{"id":"x","type":"rectangle","x":1},
		{"id":"y","type":"ellipse"},
		{"id":"x","type":"diamond","x":2}
	]`)

	require.Len(t, els, 2)
	assert.Equal(t, "x", els[0].ID)
	assert.Equal(t, domain.ElementDiamond, els[0].Type)
	assert.Equal(t, 2.0, els[0].X)
	assert.Equal(t, "y", els[1].ID)
}

func TestDecode_SceneObjectAndNonFiniteStrings(t *testing.T) {
	els, _ := adapter.Decode(`{"elements":[{"id":"r","type":"rectangle","x":"NaN","width":"Infinity"}]}`)
	require.Len(t, els, 1)
	assert.True(t, math.IsNaN(els[0].X))
	assert.True(t, math.IsInf(els[0].Width, 1))
}

// ─────────────────────────────────────────────────────────────
// Forward
// ─────────────────────────────────────────────────────────────

func TestToEditorModel_InlineTextBecomesLabel(t *testing.T) {
	els := []domain.Element{{
		ID: "box", Type: domain.ElementRectangle,
		Style: domain.Style{StrokeColor: "#333"},
		X:     0, Y: 0, Width: 200, Height: 100,
		Text: "Service", LabelColor: "#f00",
	}}

	out := newConverter().ToEditorModel(els)
	require.Len(t, out, 2)

	parent, label := out[0], out[1]
	assert.Equal(t, "box", parent.ID)
	assert.Empty(t, parent.Text)
	assert.Equal(t, []domain.BoundElement{{ID: "box-label", Type: "text"}}, parent.BoundElements)

	assert.Equal(t, "box-label", label.ID)
	assert.Equal(t, "box", label.Container())
	assert.Equal(t, "Service", label.Text)
	assert.Equal(t, "#f00", label.StrokeColor)
	assert.Equal(t, 16.0, label.FontSize)
	assert.Equal(t, "center", label.TextAlign)
	assert.Equal(t, "middle", label.VerticalAlign)
}

func TestToEditorModel_LabelColorPrecedence(t *testing.T) {
	tests := []struct {
		name string
		el   domain.Element
		want string
	}{
		{"text color", domain.Element{TextColor: "#1", LabelColor: "#2", Style: domain.Style{StrokeColor: "#3"}}, "#1"},
		{"label color", domain.Element{LabelColor: "#2", Style: domain.Style{StrokeColor: "#3"}}, "#2"},
		{"stroke color", domain.Element{Style: domain.Style{StrokeColor: "#3"}}, "#3"},
		{"default", domain.Element{}, "#000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := tt.el
			el.ID, el.Type, el.Text, el.Width, el.Height = "s", domain.ElementEllipse, "x", 10, 10
			out := newConverter().ToEditorModel([]domain.Element{el})
			require.Len(t, out, 2)
			assert.Equal(t, tt.want, out[1].StrokeColor)
		})
	}
}

func twoBoxes() []domain.Element {
	return []domain.Element{
		{ID: "A", Type: domain.ElementRectangle, X: 0, Y: 0, Width: 100, Height: 100},
		{ID: "B", Type: domain.ElementRectangle, X: 300, Y: 0, Width: 100, Height: 100},
	}
}

func TestToEditorModel_EndpointPairInfersBindings(t *testing.T) {
	els := append(twoBoxes(), domain.Element{
		ID: "arrow", Type: domain.ElementArrow,
		X1: f(100), Y1: f(50), X2: f(300), Y2: f(50),
	})

	out := newConverter().ToEditorModel(els)
	arrow := findEditor(t, out, "arrow")

	assert.Equal(t, 100.0, arrow.X)
	assert.Equal(t, 50.0, arrow.Y)
	assert.Equal(t, 200.0, arrow.Width)
	assert.Equal(t, 1.0, arrow.Height)
	assert.Equal(t, [][2]float64{{0, 0}, {200, 1}}, arrow.Points)
	require.NotNil(t, arrow.StartBinding)
	require.NotNil(t, arrow.EndBinding)
	assert.Equal(t, "A", arrow.StartBinding.ElementID)
	assert.Equal(t, "B", arrow.EndBinding.ElementID)
	require.NotNil(t, arrow.EndArrowhead)
	assert.Equal(t, "arrow", *arrow.EndArrowhead)
	assert.Nil(t, arrow.StartArrowhead)
	assert.True(t, arrow.HasCustomFlag(domain.CustomEndpointForm))

	a := findEditor(t, out, "A")
	assert.Equal(t, []domain.BoundElement{{ID: "arrow", Type: "arrow"}}, a.BoundElements)
}

func TestToEditorModel_MissingEndCollapsesToStart(t *testing.T) {
	els := []domain.Element{{ID: "l", Type: domain.ElementLine, X1: f(5), Y1: f(5)}}

	out, report := newConverter().ToEditorModelReport(els)
	assert.Empty(t, report.Dropped)
	require.Len(t, out, 1)
	assert.Equal(t, 5.0, out[0].X)
	assert.Equal(t, 5.0, out[0].Y)
	assert.Equal(t, 1.0, out[0].Width)
	assert.Equal(t, 1.0, out[0].Height)
}

func TestToEditorModel_ExplicitBindingWins(t *testing.T) {
	els := append(twoBoxes(), domain.Element{
		ID: "arrow", Type: domain.ElementArrow,
		X1: f(100), Y1: f(50), X2: f(300), Y2: f(50),
		Start: &domain.Binding{ID: "B"}, End: &domain.Binding{ID: "missing"},
	})

	arrow := findEditor(t, newConverter().ToEditorModel(els), "arrow")
	assert.Equal(t, "B", arrow.StartBinding.ElementID)
	assert.Equal(t, "B", arrow.EndBinding.ElementID)
}

func TestToEditorModel_SanitizesGeometry(t *testing.T) {
	els := []domain.Element{
		{ID: "r", Type: domain.ElementRectangle, X: math.NaN(), Y: math.Inf(1), Width: math.Inf(-1), Height: 0.2},
		{ID: "far", Type: domain.ElementEllipse, X: 1e12, Y: -1e12, Width: 10, Height: 10},
	}
	out := newConverter().ToEditorModel(els)
	require.Len(t, out, 2)

	assert.Equal(t, 0.0, out[0].X)
	assert.Equal(t, 0.0, out[0].Y)
	assert.Equal(t, 100.0, out[0].Width)
	assert.Equal(t, 1.0, out[0].Height)

	assert.Equal(t, 1e6, out[1].X)
	assert.Equal(t, -1e6, out[1].Y)
}

func TestToEditorModel_DropsInvalid(t *testing.T) {
	els := []domain.Element{
		{ID: "t", Type: domain.ElementText, Text: "   "},
		{ID: "dot", Type: domain.ElementArrow, X: 5000, Y: 5000},
		{ID: "ok", Type: domain.ElementText, Text: "kept"},
	}
	out, report := newConverter().ToEditorModelReport(els)

	require.Len(t, out, 2)
	assert.Equal(t, "dot", out[0].ID)
	assert.Equal(t, "ok", out[1].ID)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, "t", report.Dropped[0].ID)

	dot := out[0]
	assert.Equal(t, 5000.0, dot.X)
	assert.Equal(t, 5000.0, dot.Y)
	assert.Equal(t, 1.0, dot.Width)
	assert.Equal(t, 1.0, dot.Height)
	assert.Nil(t, dot.StartBinding)
	assert.Nil(t, dot.EndBinding)
}

func TestToEditorModel_ConnectorAxesKeepMinimumMagnitude(t *testing.T) {
	cases := []struct {
		name         string
		x2, y2       float64
		wantW, wantH float64
	}{
		{"horizontal", 5200, 5000, 200, 1},
		{"vertical", 5000, 4800, 1, -200},
		{"tiny negative", 4999.5, 4999.8, -1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			els := []domain.Element{{
				ID: "a", Type: domain.ElementArrow,
				X1: f(5000), Y1: f(5000), X2: f(tc.x2), Y2: f(tc.y2),
			}}
			out := newConverter().ToEditorModel(els)
			require.Len(t, out, 1)
			assert.Equal(t, tc.wantW, out[0].Width)
			assert.Equal(t, tc.wantH, out[0].Height)
			assert.Equal(t, [2]float64{tc.wantW, tc.wantH}, out[0].Points[len(out[0].Points)-1])
		})
	}
}

func TestToEditorModel_TextIsNotInferredAsBindingTarget(t *testing.T) {
	els := []domain.Element{
		{ID: "box", Type: domain.ElementRectangle, X: 0, Y: 0, Width: 100, Height: 100},
		{ID: "caption", Type: domain.ElementText, X: 400, Y: 40, Width: 60, Height: 20, Text: "cache"},
		{ID: "a", Type: domain.ElementArrow, X1: f(100), Y1: f(50), X2: f(400), Y2: f(50)},
		{ID: "b", Type: domain.ElementArrow, X1: f(100), Y1: f(50), X2: f(400), Y2: f(50),
			End: &domain.Binding{ID: "caption"}},
	}
	out := newConverter().ToEditorModel(els)

	a := findEditor(t, out, "a")
	require.NotNil(t, a.StartBinding)
	assert.Equal(t, "box", a.StartBinding.ElementID)
	assert.Nil(t, a.EndBinding)

	b := findEditor(t, out, "b")
	require.NotNil(t, b.EndBinding)
	assert.Equal(t, "caption", b.EndBinding.ElementID, "explicit references to text stay")
}

func TestToEditorModel_DegenerateBoundConnectorIsClamped(t *testing.T) {
	els := append(twoBoxes(), domain.Element{ID: "c", Type: domain.ElementLine, X: 100, Y: 50})

	c := findEditor(t, newConverter().ToEditorModel(els), "c")
	assert.Equal(t, 1.0, c.Width)
	assert.Equal(t, "A", c.StartBinding.ElementID)
}

func TestToEditorModel_DuplicateIDsRegenerated(t *testing.T) {
	els := []domain.Element{
		{ID: "x", Type: domain.ElementRectangle, Width: 10, Height: 10},
		{ID: "x", Type: domain.ElementEllipse, Width: 10, Height: 10},
	}
	out, report := newConverter().ToEditorModelReport(els)

	require.Len(t, out, 2)
	assert.Equal(t, "x", out[0].ID)
	assert.NotEqual(t, "x", out[1].ID)
	assert.Equal(t, out[1].ID, report.Renamed["x"])
}

// ─────────────────────────────────────────────────────────────
// Reverse
// ─────────────────────────────────────────────────────────────

func TestToDiagramModel_FoldsLabels(t *testing.T) {
	parent := "box"
	editor := []domain.EditorElement{
		{ID: "box", Type: domain.ElementRectangle, X: 10.4, Y: 9.6, Width: 99.5, Height: 50,
			BoundElements: []domain.BoundElement{{ID: "lbl", Type: "text"}}},
		{ID: "lbl", Type: domain.ElementText, ContainerID: &parent, Text: "Hi", FontSize: 20,
			Style: domain.Style{StrokeColor: "#00f"}},
		{ID: "free", Type: domain.ElementText, Text: "note", FontSize: 16},
		{ID: "gone", Type: domain.ElementEllipse, IsDeleted: true},
	}

	out := newConverter().ToDiagramModel(editor)
	require.Len(t, out, 2)

	box := out[0]
	assert.Equal(t, 10.0, box.X)
	assert.Equal(t, 10.0, box.Y)
	assert.Equal(t, 100.0, box.Width)
	require.NotNil(t, box.Label)
	assert.Equal(t, "Hi", box.Label.Text)
	assert.Equal(t, "#00f", box.Label.StrokeColor)
	assert.Equal(t, 20.0, *box.Label.FontSize)

	assert.Equal(t, "free", out[1].ID)
	assert.Equal(t, "note", out[1].Text)
}

func TestToDiagramModel_DanglingContainerStaysStandalone(t *testing.T) {
	missing := "nowhere"
	out := newConverter().ToDiagramModel([]domain.EditorElement{
		{ID: "t", Type: domain.ElementText, ContainerID: &missing, Text: "orphan"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "orphan", out[0].Text)
}

func TestToDiagramModel_ParentSideReference(t *testing.T) {
	out := newConverter().ToDiagramModel([]domain.EditorElement{
		{ID: "d", Type: domain.ElementDiamond, BoundElements: []domain.BoundElement{{ID: "t", Type: "text"}}},
		{ID: "t", Type: domain.ElementText, Text: "yes?"},
	})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Label)
	assert.Equal(t, "yes?", out[0].Label.Text)
}

func TestToDiagramModel_KeepsBindingIDsAndPoints(t *testing.T) {
	out := newConverter().ToDiagramModel([]domain.EditorElement{{
		ID: "a", Type: domain.ElementArrow, X: 0, Y: 0, Width: 100.4, Height: 40,
		Points:       [][2]float64{{0, 0}, {50.2, 0}, {100.4, 40}},
		StartBinding: &domain.PointBinding{ElementID: "deleted-shape"},
	}})
	require.Len(t, out, 1)
	assert.Equal(t, "deleted-shape", out[0].Start.BindingID())
	assert.Nil(t, out[0].End)
	assert.Equal(t, [][2]float64{{0, 0}, {50, 0}, {100, 40}}, out[0].Points)
	assert.Equal(t, domain.ArrowheadNone, out[0].EndArrowhead)
	assert.Nil(t, out[0].X1)
}

// ─────────────────────────────────────────────────────────────
// Round trip
// ─────────────────────────────────────────────────────────────

func sampleDiagram() []domain.Element {
	style := domain.Style{
		StrokeColor: "#1e1e1e", BackgroundColor: "#a5d8ff", Fill: "#a5d8ff",
		StrokeWidth: f(2), FillStyle: "solid", StrokeStyle: "dashed",
		Roundness: &domain.Roundness{Type: 3}, Opacity: f(80), Angle: f(0),
	}
	return []domain.Element{
		{ID: "A", Type: domain.ElementRectangle, Style: style, X: 0.4, Y: 0, Width: 100, Height: 100, Text: "API"},
		{ID: "B", Type: domain.ElementEllipse, Style: style, X: 300, Y: 0, Width: 100, Height: 100},
		{ID: "C", Type: domain.ElementDiamond, Style: style, X: 0, Y: 300, Width: 80.6, Height: 80},
		{ID: "T", Type: domain.ElementText, Style: style, X: 500, Y: 500, Width: 40, Height: 20, Text: "note"},
		{ID: "E", Type: domain.ElementArrow, Style: style, X1: f(100), Y1: f(50), X2: f(300), Y2: f(50)},
		{ID: "L", Type: domain.ElementLine, Style: style, X: 40, Y: 100, Width: 0, Height: 200},
	}
}

func TestRoundTrip_PreservesIdentityAndStyle(t *testing.T) {
	c := newConverter()
	for _, el := range sampleDiagram() {
		t.Run(el.ID, func(t *testing.T) {
			out := c.ToDiagramModel(c.ToEditorModel([]domain.Element{el}))
			require.Len(t, out, 1)
			got := out[0]
			assert.Equal(t, el.ID, got.ID)
			assert.Equal(t, el.Type, got.Type)
			assert.Equal(t, el.Style, got.Style)

			// Flat connector axes come back raised to the minimum extent.
			delta := 0.5
			if el.Type.IsConnector() {
				delta = adapter.DefaultOptions().MinExtent
			}
			if el.HasEndpoints() {
				require.True(t, got.HasEndpoints())
				assert.InDelta(t, *el.X1, *got.X1, delta)
				assert.InDelta(t, *el.Y1, *got.Y1, delta)
				assert.InDelta(t, *el.X2, *got.X2, delta)
				assert.InDelta(t, *el.Y2, *got.Y2, delta)
				return
			}
			assert.InDelta(t, el.X, got.X, delta)
			assert.InDelta(t, el.Y, got.Y, delta)
			assert.InDelta(t, el.Width, got.Width, delta)
			assert.InDelta(t, el.Height, got.Height, delta)
		})
	}
}

func TestRoundTrip_EndpointsAndBindings(t *testing.T) {
	c := newConverter()
	out := c.ToDiagramModel(c.ToEditorModel(sampleDiagram()))
	require.Len(t, out, 6)

	edge := out[4]
	require.Equal(t, "E", edge.ID)
	assert.Equal(t, 100.0, *edge.X1)
	assert.Equal(t, 300.0, *edge.X2)
	assert.Equal(t, "A", edge.Start.BindingID())
	assert.Equal(t, "B", edge.End.BindingID())
	assert.Equal(t, "arrow", edge.EndArrowhead)

	require.NotNil(t, out[0].Label)
	assert.Equal(t, "API", out[0].Label.Text)
}

func TestRoundTrip_Idempotent(t *testing.T) {
	c := newConverter()
	once := c.ToDiagramModel(c.ToEditorModel(sampleDiagram()))
	twice := c.ToDiagramModel(c.ToEditorModel(once))
	assert.Equal(t, once, twice)
}

// ─────────────────────────────────────────────────────────────
// Alignment
// ─────────────────────────────────────────────────────────────

func TestAlignConnectors(t *testing.T) {
	els := []domain.Element{
		{ID: "A", Type: domain.ElementRectangle, X: 0, Y: 0, Width: 100, Height: 100},
		{ID: "B", Type: domain.ElementRectangle, X: 300, Y: 300, Width: 100, Height: 100},
		{ID: "e", Type: domain.ElementArrow, Start: &domain.Binding{ID: "A"}, End: &domain.Binding{ID: "B"}},
		{ID: "loose", Type: domain.ElementLine, X: 5, Y: 5, Width: 0, Height: 40},
	}

	out := newConverter().AlignConnectors(els)
	e := out[2]
	assert.Equal(t, 50.0, e.X)
	assert.Equal(t, 100.0, e.Y)
	assert.Equal(t, 300.0, e.Width)
	assert.Equal(t, 200.0, e.Height)
	assert.Equal(t, 1.0, out[3].Width)
	assert.Equal(t, 0.0, els[2].X, "input is not modified")
}

func TestOptimizeCode_PreservesUnknownFields(t *testing.T) {
	code := `[
  {"id":"A","type":"rectangle","x":0,"y":0,"width":100,"height":100,"customTag":"keep"},
  {"id":"B","type":"rectangle","x":300,"y":0,"width":100,"height":100},
  {"id":"e","type":"arrow","x":1,"y":2,"width":3,"height":4,"start":{"id":"A"},"end":{"id":"B"},"note":"n"}
]`
	out := newConverter().OptimizeCode(code)

	assert.Equal(t, "keep", gjson.Get(out, "0.customTag").String())
	assert.Equal(t, "n", gjson.Get(out, "2.note").String())
	assert.Equal(t, 100.0, gjson.Get(out, "2.x").Float())
	assert.Equal(t, 50.0, gjson.Get(out, "2.y").Float())
	assert.Equal(t, 200.0, gjson.Get(out, "2.width").Float())
	assert.Equal(t, 0.0, gjson.Get(out, "2.height").Float())
}

func TestOptimizeCode_InvalidInputUnchanged(t *testing.T) {
	assert.Equal(t, "not json", newConverter().OptimizeCode("not json"))
	assert.Equal(t, `{"a":1}`, newConverter().OptimizeCode(`{"a":1}`))
}

// ─────────────────────────────────────────────────────────────
// Structure
// ─────────────────────────────────────────────────────────────

func TestExtractStructure(t *testing.T) {
	els := []domain.Element{
		{ID: "u", Type: domain.ElementRectangle, Label: &domain.Label{Text: "User Service"}},
		{ID: "d", Type: domain.ElementEllipse, Text: "数据库"},
		{ID: "blank", Type: domain.ElementRectangle},
		{ID: "e", Type: domain.ElementArrow, Start: &domain.Binding{ID: "u"}, End: &domain.Binding{ID: "d"}, Label: &domain.Label{Text: " reads "}},
		{ID: "x", Type: domain.ElementArrow, Start: &domain.Binding{ID: "u"}, End: &domain.Binding{ID: "blank"}},
	}

	s, ok := adapter.ExtractStructure(els)
	require.True(t, ok)
	require.Len(t, s.Nodes, 2)
	assert.Equal(t, adapter.Node{ID: "user_service", Label: "User Service", Shape: "rectangle"}, s.Nodes[0])
	assert.Equal(t, "数据库", s.Nodes[1].ID)
	assert.Equal(t, []adapter.Edge{{From: "user_service", To: "数据库", Label: "reads"}}, s.Edges)

	summary := adapter.Summarize(s)
	assert.Contains(t, summary, "2 nodes and 1 edges")
	assert.Contains(t, summary, "User Service -> 数据库")
}

func TestExtractStructure_Empty(t *testing.T) {
	_, ok := adapter.ExtractStructure([]domain.Element{{ID: "a", Type: domain.ElementArrow}})
	assert.False(t, ok)
}
