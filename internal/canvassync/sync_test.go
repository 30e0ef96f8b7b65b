package canvassync_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"drawgen/internal/adapter"
	"drawgen/internal/canvassync"
	"drawgen/internal/domain"
	"drawgen/internal/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────

type recordingSurface struct {
	applied  [][]domain.EditorElement
	onApply  func(elements []domain.EditorElement)
	failWith error
}

func (s *recordingSurface) ApplyElements(_ context.Context, elements []domain.EditorElement) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.applied = append(s.applied, elements)
	if s.onApply != nil {
		s.onApply(elements)
	}
	return nil
}

func (s *recordingSurface) last() []domain.EditorElement {
	if len(s.applied) == 0 {
		return nil
	}
	return append([]domain.EditorElement(nil), s.applied[len(s.applied)-1]...)
}

type event struct {
	name string
	data any
}

type recordingEmitter struct {
	events []event
}

func (e *recordingEmitter) Emit(_ context.Context, name string, data any) {
	e.events = append(e.events, event{name: name, data: data})
}

func newSync(t *testing.T) (*canvassync.Sync, *recordingSurface, *recordingEmitter) {
	t.Helper()
	surface := &recordingSurface{}
	emitter := &recordingEmitter{}
	s := canvassync.New(surface, emitter, adapter.NewConverter(adapter.DefaultOptions()), canvassync.Options{})
	return s, surface, emitter
}

func diagram() []domain.Element {
	x1, y1, x2, y2 := 100.0, 50.0, 300.0, 50.0
	return []domain.Element{
		{ID: "A", Type: domain.ElementRectangle, X: 0, Y: 0, Width: 100, Height: 100, Text: "client"},
		{ID: "B", Type: domain.ElementRectangle, X: 300, Y: 0, Width: 100, Height: 100},
		{ID: "e", Type: domain.ElementArrow, X1: &x1, Y1: &y1, X2: &x2, Y2: &y2},
	}
}

func moveElement(els []domain.EditorElement, id string, dx, dy float64) []domain.EditorElement {
	for i := range els {
		if els[i].ID == id {
			els[i].X += dx
			els[i].Y += dy
		}
	}
	return els
}

// ─────────────────────────────────────────────────────────────
// Loop avoidance
// ─────────────────────────────────────────────────────────────

func TestIdenticalNotificationAfterApplyIsIgnored(t *testing.T) {
	s, surface, emitter := newSync(t)
	ctx := context.Background()

	applied, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)
	require.True(t, applied)

	emitted := s.HandleSurfaceChange(ctx, canvassync.SurfaceChange{Elements: surface.last()})
	assert.False(t, emitted)
	assert.Empty(t, emitter.events)
}

func TestSubUnitJitterIsIgnored(t *testing.T) {
	s, surface, emitter := newSync(t)
	ctx := context.Background()
	_, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)

	jittered := moveElement(surface.last(), "B", 0.3, -0.2)
	assert.False(t, s.HandleSurfaceChange(ctx, canvassync.SurfaceChange{Elements: jittered}))
	assert.Empty(t, emitter.events)
}

func TestNotificationDuringApplyIsSuppressed(t *testing.T) {
	s, surface, emitter := newSync(t)
	ctx := context.Background()

	var reentrant []bool
	surface.onApply = func(elements []domain.EditorElement) {
		moved := moveElement(append([]domain.EditorElement(nil), elements...), "A", 40, 0)
		reentrant = append(reentrant, s.HandleSurfaceChange(ctx, canvassync.SurfaceChange{Elements: moved}))
	}

	_, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, reentrant)
	assert.Empty(t, emitter.events)
}

func TestUserEditIsEmittedOnce(t *testing.T) {
	s, surface, emitter := newSync(t)
	ctx := context.Background()
	_, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)

	edited := moveElement(surface.last(), "B", 0, 120)
	require.True(t, s.HandleSurfaceChange(ctx, canvassync.SurfaceChange{Elements: edited}))
	require.Len(t, emitter.events, 1)
	assert.Equal(t, canvassync.EventDiagramChanged, emitter.events[0].name)

	change, ok := emitter.events[0].data.(canvassync.DiagramChange)
	require.True(t, ok)
	require.Len(t, change.Elements, 3)
	assert.Equal(t, 120.0, change.Elements[1].Y)
	assert.Contains(t, change.Code, `"id": "B"`)

	assert.False(t, s.HandleSurfaceChange(ctx, canvassync.SurfaceChange{Elements: edited}))
	assert.Len(t, emitter.events, 1)
}

func TestDeletionIsAlwaysMaterial(t *testing.T) {
	s, surface, emitter := newSync(t)
	ctx := context.Background()
	_, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)

	var kept []domain.EditorElement
	for _, el := range surface.last() {
		if el.ID != "B" {
			kept = append(kept, el)
		}
	}
	assert.True(t, s.HandleSurfaceChange(ctx, canvassync.SurfaceChange{Elements: kept}))
	require.Len(t, emitter.events, 1)
	assert.Len(t, s.Snapshot(), 2)
}

func TestSelectionAndDeletedElementsAreFiltered(t *testing.T) {
	s, surface, emitter := newSync(t)
	ctx := context.Background()
	_, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)

	els := append(surface.last(),
		domain.EditorElement{ID: "sel", Type: "selection", Width: 500, Height: 500},
		domain.EditorElement{ID: "old", Type: domain.ElementEllipse, IsDeleted: true},
	)
	change := canvassync.SurfaceChange{Elements: els, AppState: map[string]any{"selectedElementIds": map[string]bool{"A": true}}}
	assert.False(t, s.HandleSurfaceChange(ctx, change))
	assert.Empty(t, emitter.events)
}

// ─────────────────────────────────────────────────────────────
// Apply
// ─────────────────────────────────────────────────────────────

func TestApplyDiagram_SkipsUnchanged(t *testing.T) {
	s, surface, _ := newSync(t)
	ctx := context.Background()

	first, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)
	second, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Len(t, surface.applied, 1)

	changed := diagram()
	changed[1].X = 350
	third, err := s.ApplyDiagram(ctx, changed)
	require.NoError(t, err)
	assert.True(t, third)
	assert.Len(t, surface.applied, 2)
}

func TestApplyDiagram_SurfaceError(t *testing.T) {
	s, surface, _ := newSync(t)
	surface.failWith = assert.AnError

	applied, err := s.ApplyDiagram(context.Background(), diagram())
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, applied)
	assert.Nil(t, s.Snapshot())
}

func TestApplyCode_RepairsAndBinds(t *testing.T) {
	s, surface, _ := newSync(t)

	res, err := s.ApplyCode(context.Background(), "```json\n"+`[
		{"id":"A","type":"rectangle","x":0,"y":0,"width":100,"height":100},
		{"id":"B","type":"rectangle","x":300,"y":0,"width":100,"height":100},
		{"id":"e","type":"arrow","x1":100,"y1":50,"x2":300,"y2":50}
	]`+"\n```\n这是解释")
	require.NoError(t, err)
	require.True(t, res.Repair.Recovered)
	assert.True(t, res.Applied)

	var arrow domain.EditorElement
	for _, el := range surface.last() {
		if el.ID == "e" {
			arrow = el
		}
	}
	require.NotNil(t, arrow.StartBinding)
	assert.Equal(t, "A", arrow.StartBinding.ElementID)
	assert.Equal(t, "B", arrow.EndBinding.ElementID)
}

func TestApplyCode_UnrecoverableWarns(t *testing.T) {
	s, surface, emitter := newSync(t)

	res, err := s.ApplyCode(context.Background(), "sorry, I cannot draw that")
	require.NoError(t, err)
	assert.False(t, res.Repair.Recovered)
	assert.False(t, res.Applied)
	assert.Empty(t, surface.applied)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, canvassync.EventRepairWarning, emitter.events[0].name)
}

func TestAlignOption(t *testing.T) {
	surface := &recordingSurface{}
	s := canvassync.New(surface, nil, nil, canvassync.Options{AlignConnectors: true})

	els := []domain.Element{
		{ID: "A", Type: domain.ElementRectangle, X: 0, Y: 0, Width: 100, Height: 100},
		{ID: "B", Type: domain.ElementRectangle, X: 300, Y: 300, Width: 100, Height: 100},
		{ID: "e", Type: domain.ElementArrow, X: 10, Y: 10, Width: 5, Height: 5, Start: &domain.Binding{ID: "A"}, End: &domain.Binding{ID: "B"}},
	}
	_, err := s.ApplyDiagram(context.Background(), els)
	require.NoError(t, err)

	arrow := surface.last()[2]
	assert.Equal(t, 50.0, arrow.X)
	assert.Equal(t, 100.0, arrow.Y)
	assert.Equal(t, 300.0, arrow.Width)
	assert.Equal(t, 200.0, arrow.Height)
}

// ─────────────────────────────────────────────────────────────
// Libraries
// ─────────────────────────────────────────────────────────────

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestCategorize(t *testing.T) {
	tests := map[string]domain.LibraryCategory{
		"aws-architecture.excalidrawlib": domain.CategoryArchitecture,
		"system-design":                  domain.CategoryArchitecture,
		"data-viz":                       domain.CategoryDataScience,
		"database-icons":                 domain.CategoryOther,
		"cloud":                          domain.CategoryDevOps,
		"dev-tools-ops":                  domain.CategoryDevOps,
		"stick-figures":                  domain.CategoryDesign,
		"circuit-components":             domain.CategoryCircuits,
		"misc":                           domain.CategoryOther,
	}
	for name, want := range tests {
		assert.Equal(t, want, canvassync.Categorize(name), name)
	}
}

func TestLibraries_LoadOnceAndReset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "system-design.excalidrawlib", `{
		"type":"excalidrawlib","version":2,
		"libraryItems":[{"id":"db","name":"Database","elements":[
			{"id":"shape","type":"rectangle","x":0,"y":0,"width":80,"height":40,"boundElements":[{"id":"txt","type":"text"}]},
			{"id":"txt","type":"text","x":10,"y":10,"width":60,"height":20,"text":"DB","containerId":"shape"}
		]}]
	}`)
	writeFile(t, dir, "cloud.excalidrawlib", `{"type":"excalidrawlib","version":1,"library":[[
		{"id":"shape","type":"ellipse","x":0,"y":0,"width":50,"height":50}
	]]}`)
	writeFile(t, dir, "notes.txt", "ignored")

	libs := canvassync.NewLibraries(dir)
	assert.False(t, libs.Loaded())

	loaded, err := libs.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, libs.Loaded())

	// Files load in name order: cloud first keeps "shape".
	assert.Equal(t, "cloud", loaded[0].Name)
	assert.Equal(t, domain.CategoryDevOps, loaded[0].Category)
	assert.Equal(t, "shape", loaded[0].Items[0].Elements[0].ID)

	design := loaded[1].Items[0]
	assert.Equal(t, "Database", design.Name)
	renamed := design.Elements[0].ID
	assert.NotEqual(t, "shape", renamed)
	assert.Equal(t, renamed, design.Elements[1].Container())

	writeFile(t, dir, "circuit.excalidrawlib", `{"libraryItems":[]}`)
	again, err := libs.Load()
	require.NoError(t, err)
	assert.Len(t, again, 2)

	libs.Reset()
	assert.False(t, libs.Loaded())
	again, err = libs.Load()
	require.NoError(t, err)
	assert.Len(t, again, 3)
}

func TestLibraries_MissingDir(t *testing.T) {
	libs := canvassync.NewLibraries(filepath.Join(t.TempDir(), "absent"))
	loaded, err := libs.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestInsertLibraryItem(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shapes.excalidrawlib", `{"libraryItems":[{"id":"box","elements":[
		{"id":"A","type":"rectangle","x":1000,"y":1000,"width":60,"height":60}
	]}]}`)

	surface := &recordingSurface{}
	emitter := &recordingEmitter{}
	s := canvassync.New(surface, emitter, nil, canvassync.Options{LibraryDir: dir})
	ctx := context.Background()
	_, err := s.ApplyDiagram(ctx, diagram())
	require.NoError(t, err)

	placed, err := s.InsertLibraryItem(ctx, "shapes", "box")
	require.NoError(t, err)
	require.Len(t, placed, 1)
	assert.NotEqual(t, "A", placed[0].ID, "colliding id is regenerated")

	newBox := geometry.Rect{X: placed[0].X, Y: placed[0].Y, W: 60, H: 60}
	for _, el := range surface.last()[:len(surface.last())-1] {
		if el.ContainerID != nil {
			continue
		}
		assert.False(t, newBox.Intersects(geometry.Rect{X: el.X, Y: el.Y, W: el.Width, H: el.Height}), el.ID)
	}

	require.Len(t, emitter.events, 1)
	assert.Len(t, s.Snapshot(), 4)

	_, err = s.InsertLibraryItem(ctx, "shapes", "nope")
	assert.Error(t, err)
}
