// Package canvassync keeps a diagram description and the editing surface in
// step without feedback loops.
package canvassync

import (
	"context"
	"fmt"

	"drawgen/internal/adapter"
	"drawgen/internal/domain"
	"drawgen/internal/geometry"
	"drawgen/internal/repair"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Events emitted to collaborators.
const (
	EventDiagramChanged = "diagram:changed"
	EventRepairWarning  = "diagram:repair-warning"
)

// Surface is the graphics-editing surface. ApplyElements replaces the whole
// scene. The surface may report its own change notifications while
// ApplyElements runs; Sync ignores them.
type Surface interface {
	ApplyElements(ctx context.Context, elements []domain.EditorElement) error
}

// EventEmitter delivers updates to the surrounding application.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// SurfaceChange is the surface's change notification: its current elements
// plus transient selection and view state.
type SurfaceChange struct {
	Elements []domain.EditorElement `json:"elements"`
	AppState map[string]any         `json:"appState,omitempty"`
}

// DiagramChange is the payload of EventDiagramChanged.
type DiagramChange struct {
	Elements []domain.Element `json:"elements"`
	Code     string           `json:"code"`
}

// ApplyResult describes what ApplyCode did.
type ApplyResult struct {
	Repair  repair.Result  `json:"repair"`
	Report  adapter.Report `json:"report"`
	Applied bool           `json:"applied"`
}

// Options configures a Sync.
type Options struct {
	// JitterTolerance is the coordinate difference below which the surface's
	// own rounding is not treated as an edit.
	JitterTolerance float64
	// AlignConnectors runs connector alignment before applying.
	AlignConnectors bool
	// LibraryDir, when set, is where shape libraries are loaded from.
	LibraryDir string
}

// DefaultJitterTolerance is one scene unit, the granularity of the
// description's rounded geometry.
const DefaultJitterTolerance = 1.0

// Sync owns the last-applied and last-synced snapshots. It is driven from a
// single event loop and is not safe for concurrent use; the suppression flag
// guards against reentrant notifications, not parallel callers.
type Sync struct {
	surface   Surface
	emitter   EventEmitter
	conv      *adapter.Converter
	layout    *geometry.LayoutEngine
	libraries *Libraries

	tolerance float64
	align     bool

	lastApplied []domain.EditorElement
	lastSynced  []domain.Element
	suppress    bool
}

// New creates a Sync bound to surface. The shape library resource is created
// here and loaded lazily.
func New(surface Surface, emitter EventEmitter, conv *adapter.Converter, opts Options) *Sync {
	if opts.JitterTolerance <= 0 {
		opts.JitterTolerance = DefaultJitterTolerance
	}
	if conv == nil {
		conv = adapter.NewConverter(adapter.DefaultOptions())
	}
	return &Sync{
		surface:   surface,
		emitter:   emitter,
		conv:      conv,
		layout:    geometry.NewLayoutEngine(),
		libraries: NewLibraries(opts.LibraryDir),
		tolerance: opts.JitterTolerance,
		align:     opts.AlignConnectors,
	}
}

// Libraries returns the shape library resource owned by this Sync.
func (s *Sync) Libraries() *Libraries {
	return s.libraries
}

// Snapshot returns the last description synchronized in either direction.
func (s *Sync) Snapshot() []domain.Element {
	return append([]domain.Element(nil), s.lastSynced...)
}

// ApplyCode repairs raw diagram code and applies the result. An
// unrecoverable document clears nothing: it emits a warning and leaves the
// surface as it was.
func (s *Sync) ApplyCode(ctx context.Context, code string) (ApplyResult, error) {
	res := ApplyResult{Repair: repair.FullRepair(code)}
	if !res.Repair.Recovered {
		log.WithField("warning", res.Repair.Warning).Warn("canvassync: unrecoverable diagram code")
		s.emit(ctx, EventRepairWarning, map[string]string{"warning": res.Repair.Warning})
		return res, nil
	}
	elements, report := adapter.Decode(res.Repair.Text)
	res.Report = report
	applied, err := s.ApplyDiagram(ctx, elements)
	res.Applied = applied
	return res, err
}

// ApplyDiagram converts elements and pushes them to the surface unless the
// result matches what was last applied. It reports whether the surface was
// updated.
func (s *Sync) ApplyDiagram(ctx context.Context, elements []domain.Element) (bool, error) {
	if s.align {
		elements = s.conv.AlignConnectors(elements)
	}
	next, report := s.conv.ToEditorModelReport(elements)
	if s.lastApplied != nil && !editorChanged(s.lastApplied, next, s.tolerance) {
		log.Debug("canvassync: diagram unchanged, skipping apply")
		return false, nil
	}
	if len(report.Dropped) > 0 {
		log.WithField("dropped", len(report.Dropped)).Warn("canvassync: applied diagram with dropped elements")
	}
	if err := s.push(ctx, next); err != nil {
		return false, err
	}
	s.lastSynced = s.conv.ToDiagramModel(next)
	return true, nil
}

// HandleSurfaceChange processes a change notification from the surface and
// reports whether an update was emitted.
func (s *Sync) HandleSurfaceChange(ctx context.Context, change SurfaceChange) bool {
	if s.suppress {
		return false
	}
	current := filterTransient(change.Elements)
	next := s.conv.ToDiagramModel(current)
	if s.lastSynced != nil && !diagramChanged(s.lastSynced, next, s.tolerance) {
		return false
	}
	s.lastApplied = current
	s.publish(ctx, next)
	return true
}

// InsertLibraryItem places a copy of a library item next to the current
// scene, applies it, and publishes the resulting description.
func (s *Sync) InsertLibraryItem(ctx context.Context, libraryName, itemID string) ([]domain.EditorElement, error) {
	item, err := s.libraries.Item(libraryName, itemID)
	if err != nil {
		return nil, err
	}

	placed := cloneWithFreshIDs(item.Elements, s.lastApplied)
	var existing, incoming []geometry.Rect
	for _, el := range s.lastApplied {
		existing = append(existing, geometry.Rect{X: el.X, Y: el.Y, W: el.Width, H: el.Height})
	}
	for _, el := range placed {
		incoming = append(incoming, geometry.Rect{X: el.X, Y: el.Y, W: el.Width, H: el.Height})
	}
	box := geometry.Bounds(incoming)
	x, y := s.layout.NextPosition(existing, box.W, box.H)
	for i := range placed {
		placed[i].X += x - box.X
		placed[i].Y += y - box.Y
	}

	next := append(append([]domain.EditorElement(nil), s.lastApplied...), placed...)
	if err := s.push(ctx, next); err != nil {
		return nil, err
	}
	s.publish(ctx, s.conv.ToDiagramModel(next))
	return placed, nil
}

// Reset forgets both snapshots so the next diagram is always applied.
func (s *Sync) Reset() {
	s.lastApplied = nil
	s.lastSynced = nil
}

func (s *Sync) push(ctx context.Context, next []domain.EditorElement) error {
	s.suppress = true
	defer func() { s.suppress = false }()
	if err := s.surface.ApplyElements(ctx, next); err != nil {
		return fmt.Errorf("apply elements: %w", err)
	}
	s.lastApplied = next
	return nil
}

func (s *Sync) publish(ctx context.Context, next []domain.Element) {
	s.lastSynced = next
	code, err := adapter.Encode(next)
	if err != nil {
		log.WithError(err).Error("canvassync: encode diagram")
		return
	}
	s.emit(ctx, EventDiagramChanged, DiagramChange{Elements: next, Code: code})
}

func (s *Sync) emit(ctx context.Context, event string, data any) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, event, data)
	}
}

// filterTransient drops deleted elements and anything outside the six
// diagram kinds, such as the surface's selection box.
func filterTransient(elements []domain.EditorElement) []domain.EditorElement {
	out := make([]domain.EditorElement, 0, len(elements))
	for _, el := range elements {
		if el.IsDeleted || !el.Type.Valid() {
			continue
		}
		out = append(out, el)
	}
	return out
}

// cloneWithFreshIDs copies elements, giving every element whose id collides
// with the scene a new id and rewriting references to it.
func cloneWithFreshIDs(elements, scene []domain.EditorElement) []domain.EditorElement {
	taken := make(map[string]bool, len(scene))
	for _, el := range scene {
		taken[el.ID] = true
	}
	renamed := make(map[string]string)
	out := make([]domain.EditorElement, len(elements))
	for i, el := range elements {
		out[i] = el
		if el.ID == "" || taken[el.ID] {
			fresh := uuid.NewString()
			renamed[el.ID] = fresh
			out[i].ID = fresh
		}
		taken[out[i].ID] = true
	}
	for i := range out {
		rewriteRefs(&out[i], renamed)
	}
	return out
}

func rewriteRefs(el *domain.EditorElement, renamed map[string]string) {
	if len(renamed) == 0 {
		return
	}
	if el.ContainerID != nil {
		if to, ok := renamed[*el.ContainerID]; ok {
			el.ContainerID = &to
		}
	}
	if el.StartBinding != nil {
		if to, ok := renamed[el.StartBinding.ElementID]; ok {
			b := *el.StartBinding
			b.ElementID = to
			el.StartBinding = &b
		}
	}
	if el.EndBinding != nil {
		if to, ok := renamed[el.EndBinding.ElementID]; ok {
			b := *el.EndBinding
			b.ElementID = to
			el.EndBinding = &b
		}
	}
	if len(el.BoundElements) > 0 {
		bound := make([]domain.BoundElement, len(el.BoundElements))
		for i, b := range el.BoundElements {
			if to, ok := renamed[b.ID]; ok {
				b.ID = to
			}
			bound[i] = b
		}
		el.BoundElements = bound
	}
}
