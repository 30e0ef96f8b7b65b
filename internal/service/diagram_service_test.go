package service_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drawgen/internal/canvassync"
	"drawgen/internal/domain"
	"drawgen/internal/service"
	"drawgen/internal/storage"
	"drawgen/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiagramService(t *testing.T, maxRevisions int) (*service.DiagramService, *service.MockEmitter) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "drawgen.db"), dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	emitter := &service.MockEmitter{}
	svc := service.NewDiagramService(
		storage.NewDiagramStore(db),
		storage.NewRevisionStore(db, maxRevisions),
		nil,
		emitter,
		maxRevisions,
	)
	return svc, emitter
}

const twoBoxes = `[
	{"id":"A","type":"rectangle","x":0,"y":0,"width":100,"height":100},
	{"id":"B","type":"rectangle","x":300,"y":300,"width":100,"height":100},
	{"id":"e","type":"arrow","start":{"id":"A"},"end":{"id":"B"},"x":0,"y":0,"width":10,"height":10}
]`

func sse(event, data string) string {
	return "event: " + event + "\ndata: " + data + "\n\n"
}

// ─────────────────────────────────────────────────────────────
// Create / Save
// ─────────────────────────────────────────────────────────────

func TestCreate_EmptyAndRepaired(t *testing.T) {
	svc, emitter := newDiagramService(t, 10)
	ctx := context.Background()

	empty, err := svc.Create(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", empty.Diagram.Name)
	assert.Equal(t, "[]", empty.Diagram.Code)

	repaired, err := svc.Create(ctx, "flow", "```json\n[{\"id\":\"a\",\"type\":\"ellipse\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a","type":"ellipse"}]`, repaired.Diagram.Code)
	require.NotNil(t, repaired.Revision)
	assert.Equal(t, service.LabelCreate, repaired.Revision.Label)

	_, err = svc.Create(ctx, "bad", "no diagram here")
	assert.ErrorIs(t, err, service.ErrUnrecoverable)

	list, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, []string{service.EventDiagramCreated, service.EventDiagramCreated}, emitter.Names())
}

func TestSaveCode_RecordsRevisionOnChangeOnly(t *testing.T) {
	svc, emitter := newDiagramService(t, 10)
	ctx := context.Background()
	created, err := svc.Create(ctx, "d", "")
	require.NoError(t, err)
	id := created.Diagram.ID

	saved, err := svc.SaveCode(ctx, id, `[{"id":"x","type":"diamond"}`, "")
	require.NoError(t, err)
	require.NotNil(t, saved.Revision)
	assert.Equal(t, service.LabelSave, saved.Revision.Label)
	assert.Equal(t, `[{"id":"x","type":"diamond"}]`, saved.Diagram.Code)

	again, err := svc.SaveCode(ctx, id, `[{"id":"x","type":"diamond"}]`, "")
	require.NoError(t, err)
	assert.Nil(t, again.Revision)

	h, err := svc.History(id)
	require.NoError(t, err)
	assert.Len(t, h.Revisions, 2)
	assert.Equal(t, []string{service.EventDiagramCreated, service.EventDiagramSaved}, emitter.Names())
}

func TestSaveCode_UnrecoverableKeepsStoredCode(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	ctx := context.Background()
	created, err := svc.Create(ctx, "d", `[{"id":"a","type":"text","text":"hi"}]`)
	require.NoError(t, err)

	res, err := svc.SaveCode(ctx, created.Diagram.ID, "I'm sorry", "")
	require.ErrorIs(t, err, service.ErrUnrecoverable)
	assert.False(t, res.Repair.Recovered)

	d, err := svc.Get(created.Diagram.ID)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a","type":"text","text":"hi"}]`, d.Code)
}

func TestSaveCode_SceneObjectKeepsElements(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	ctx := context.Background()
	created, err := svc.Create(ctx, "pasted", "")
	require.NoError(t, err)

	scene := `{"type":"excalidraw","elements":[{"id":"A","type":"rectangle","x":0,"y":0,"width":100,"height":100}],"appState":{"viewBackgroundColor":"#fff"}}`
	res, err := svc.SaveCode(ctx, created.Diagram.ID, scene, service.LabelSave)
	require.NoError(t, err)
	assert.Empty(t, res.Report.Dropped)

	els, _, err := svc.Elements(created.Diagram.ID)
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, "A", els[0].ID)
}

func TestSaveCode_MissingDiagram(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	_, err := svc.SaveCode(context.Background(), "ghost", "[]", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// ─────────────────────────────────────────────────────────────
// Generate
// ─────────────────────────────────────────────────────────────

func TestGenerate_SavesAlignedResult(t *testing.T) {
	svc, emitter := newDiagramService(t, 10)
	ctx := context.Background()
	created, err := svc.Create(ctx, "d", "")
	require.NoError(t, err)

	body := sse("progress", `{"stage":"generate","progress":0.5}`) +
		sse("chunk", `{"content":"[{\"id\":\"A\""}`) +
		sse("done", `{"code":`+quote(twoBoxes)+`}`)

	var texts []string
	res, err := svc.Generate(ctx, created.Diagram.ID, strings.NewReader(body), stream.Handler{
		OnText: func(s string) { texts = append(texts, s) },
	})
	require.NoError(t, err)
	require.NotNil(t, res.Revision)
	assert.Equal(t, service.LabelGenerate, res.Revision.Label)
	assert.Equal(t, []string{`[{"id":"A"`}, texts)

	elements, _, err := svc.Elements(created.Diagram.ID)
	require.NoError(t, err)
	require.Len(t, elements, 3)
	arrow := elements[2]
	assert.Equal(t, 50.0, arrow.X)
	assert.Equal(t, 100.0, arrow.Y)
	assert.Equal(t, 300.0, arrow.Width)
	assert.Equal(t, 200.0, arrow.Height)

	assert.Contains(t, emitter.Names(), service.EventGenerationText)
	assert.Contains(t, emitter.Names(), service.EventGenerationStatus)
	assert.Contains(t, emitter.Names(), service.EventDiagramSaved)
	assert.Empty(t, svc.Generating())
}

func TestGenerate_ServerErrorSavesNothing(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	ctx := context.Background()
	created, err := svc.Create(ctx, "d", "")
	require.NoError(t, err)

	body := sse("chunk", `{"content":"[{\"id\":\"A\",\"type\":\"ellipse\"}"}`) + sse("error", `{"error":"overloaded"}`)
	_, err = svc.Generate(ctx, created.Diagram.ID, strings.NewReader(body), stream.Handler{})
	require.ErrorIs(t, err, stream.ErrStreamError)

	d, err := svc.Get(created.Diagram.ID)
	require.NoError(t, err)
	assert.Equal(t, "[]", d.Code)
}

func TestGenerate_CancelledKeepsPartial(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	created, err := svc.Create(context.Background(), "d", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	body := sse("chunk", `{"content":"[{\"id\":\"A\",\"type\":\"ellipse\"}"}`) + sse("chunk", `{"content":",{"}`)
	res, err := svc.Generate(ctx, created.Diagram.ID, strings.NewReader(body), stream.Handler{
		OnText: func(string) { cancel() },
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res.Revision)
	assert.Equal(t, service.LabelPartial, res.Revision.Label)
	assert.Equal(t, `[{"id":"A","type":"ellipse"}]`, res.Diagram.Code)
}

// blockingReader blocks until released, holding a generation open.
type blockingReader struct {
	release chan struct{}
	body    *strings.Reader
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.release
	return r.body.Read(p)
}

func TestGenerate_OnePerDiagram(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	ctx := context.Background()
	created, err := svc.Create(ctx, "d", "")
	require.NoError(t, err)
	id := created.Diagram.ID

	r := &blockingReader{release: make(chan struct{}), body: strings.NewReader(sse("done", `{"code":"[]"}`))}
	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, id, r, stream.Handler{})
		done <- err
	}()

	require.Eventually(t, func() bool { return len(svc.Generating()) == 1 }, time.Second, 5*time.Millisecond)
	_, err = svc.Generate(ctx, id, strings.NewReader(""), stream.Handler{})
	assert.ErrorIs(t, err, service.ErrGenerationRunning)

	close(r.release)
	require.NoError(t, <-done)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	svc.WaitGenerating(waitCtx)
	assert.Empty(t, svc.Generating())
}

// ─────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────

func TestRestore(t *testing.T) {
	svc, emitter := newDiagramService(t, 10)
	ctx := context.Background()
	created, err := svc.Create(ctx, "d", `[{"id":"a","type":"ellipse"}]`)
	require.NoError(t, err)
	id := created.Diagram.ID
	_, err = svc.SaveCode(ctx, id, `[{"id":"b","type":"diamond"}]`, "")
	require.NoError(t, err)

	d, err := svc.Restore(ctx, id, created.Revision.ID)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a","type":"ellipse"}]`, d.Code)

	h, err := svc.History(id)
	require.NoError(t, err)
	assert.Equal(t, created.Revision.ID, h.CurrentID)
	assert.Len(t, h.Revisions, 2)
	assert.Contains(t, emitter.Names(), service.EventDiagramRestored)

	other, err := svc.Create(ctx, "other", "")
	require.NoError(t, err)
	_, err = svc.Restore(ctx, other.Diagram.ID, created.Revision.ID)
	assert.Error(t, err)
}

func TestHistory_EmptyForUnknown(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	h, err := svc.History("nobody")
	require.NoError(t, err)
	assert.Empty(t, h.Revisions)
}

func TestPruneAllAndSchedule(t *testing.T) {
	svc, _ := newDiagramService(t, 2)
	ctx := context.Background()
	created, err := svc.Create(ctx, "d", "")
	require.NoError(t, err)
	for _, code := range []string{"[1]", "[2]", "[3]"} {
		_, err := svc.SaveCode(ctx, created.Diagram.ID, code, "")
		require.NoError(t, err)
	}

	n, err := svc.PruneAll()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "pushes already keep the limit")

	h, err := svc.History(created.Diagram.ID)
	require.NoError(t, err)
	assert.Len(t, h.Revisions, 2)

	assert.Error(t, svc.StartPruning("not a schedule"))
	require.NoError(t, svc.StartPruning("@every 1h"))
	svc.StopPruning()
}

func TestDeleteAndLink(t *testing.T) {
	svc, emitter := newDiagramService(t, 10)
	ctx := context.Background()
	a, err := svc.Create(ctx, "a", "")
	require.NoError(t, err)
	b, err := svc.Create(ctx, "b", "")
	require.NoError(t, err)

	require.NoError(t, svc.Link(a.Diagram.ID, "/tmp/a.json"))
	linked, err := svc.Linked()
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "/tmp/a.json", linked[0].SourcePath)

	require.NoError(t, svc.Delete(ctx, b.Diagram.ID))
	_, err = svc.Get(b.Diagram.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	h, err := svc.History(b.Diagram.ID)
	require.NoError(t, err)
	assert.Empty(t, h.Revisions)
	assert.Contains(t, emitter.Names(), service.EventDiagramDeleted)
}

// ─────────────────────────────────────────────────────────────
// CanvasService
// ─────────────────────────────────────────────────────────────

type recordingSurface struct {
	applied [][]domain.EditorElement
}

func (s *recordingSurface) ApplyElements(_ context.Context, elements []domain.EditorElement) error {
	s.applied = append(s.applied, elements)
	return nil
}

func (s *recordingSurface) last() []domain.EditorElement {
	return append([]domain.EditorElement(nil), s.applied[len(s.applied)-1]...)
}

func TestCanvas_EditIsSavedAsRevision(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	ctx := context.Background()
	created, err := svc.Create(ctx, "d", twoBoxes)
	require.NoError(t, err)

	surface := &recordingSurface{}
	emitter := &service.MockEmitter{}
	canvas := service.NewCanvasService(svc, surface, emitter, canvassync.Options{})

	assert.False(t, canvas.HandleSurfaceChange(ctx, canvassync.SurfaceChange{}), "nothing open")

	res, err := canvas.Open(ctx, created.Diagram.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, created.Diagram.ID, canvas.DiagramID())

	// echo of what was applied
	assert.False(t, canvas.HandleSurfaceChange(ctx, canvassync.SurfaceChange{Elements: surface.last()}))

	edited := surface.last()
	for i := range edited {
		if edited[i].ID == "A" {
			edited[i].X = -200
		}
	}
	assert.True(t, canvas.HandleSurfaceChange(ctx, canvassync.SurfaceChange{Elements: edited}))
	assert.Equal(t, []string{canvassync.EventDiagramChanged}, emitter.Names())

	h, err := svc.History(created.Diagram.ID)
	require.NoError(t, err)
	require.Len(t, h.Revisions, 2)
	assert.Equal(t, service.LabelEdit, h.Revisions[1].Label)

	elements, _, err := svc.Elements(created.Diagram.ID)
	require.NoError(t, err)
	assert.Equal(t, -200.0, elements[0].X)

	// stored code now matches the surface
	refreshed, err := canvas.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed.Applied)
}

func TestCanvas_InsertRequiresOpenDiagram(t *testing.T) {
	svc, _ := newDiagramService(t, 10)
	canvas := service.NewCanvasService(svc, &recordingSurface{}, nil, canvassync.Options{})
	_, err := canvas.InsertLibraryItem(context.Background(), "lib", "item")
	assert.Error(t, err)

	libs, err := canvas.Libraries()
	require.NoError(t, err)
	assert.Empty(t, libs)
	canvas.ReloadLibraries()
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
