package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"drawgen/internal/adapter"
	"drawgen/internal/domain"
	"drawgen/internal/repair"
	"drawgen/internal/stream"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrGenerationRunning is returned when a diagram already has a
	// generation stream in progress.
	ErrGenerationRunning = errors.New("generation already running for diagram")
	// ErrUnrecoverable is returned when submitted code yields no diagram.
	ErrUnrecoverable = errors.New("diagram code could not be recovered")
)

// Revision labels.
const (
	LabelCreate   = "create"
	LabelSave     = "save"
	LabelGenerate = "generate"
	LabelPartial  = "generate (partial)"
	LabelEdit     = "edit"
)

// ─────────────────────────────────────────────────────────────
// Diagram Service — persistence, repair and history for diagrams
// ─────────────────────────────────────────────────────────────

// SaveResult is what a save or generation produced.
type SaveResult struct {
	Diagram  *domain.Diagram  `json:"diagram"`
	Revision *domain.Revision `json:"revision,omitempty"`
	Repair   repair.Result    `json:"repair"`
	Report   adapter.Report   `json:"report"`
}

// DiagramService manages diagrams and their revision history.
type DiagramService struct {
	store     domain.DiagramStore
	revisions domain.RevisionStore
	conv      *adapter.Converter
	emitter   EventEmitter

	maxRevisions int
	generating   generationGuard

	// pruning scheduler lifecycle
	cronMu    sync.Mutex
	cronSched *cron.Cron
}

// NewDiagramService creates a DiagramService. maxRevisions bounds each
// diagram's history during scheduled pruning.
func NewDiagramService(
	store domain.DiagramStore,
	revisions domain.RevisionStore,
	conv *adapter.Converter,
	emitter EventEmitter,
	maxRevisions int,
) *DiagramService {
	if conv == nil {
		conv = adapter.NewConverter(adapter.DefaultOptions())
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &DiagramService{
		store:        store,
		revisions:    revisions,
		conv:         conv,
		emitter:      emitter,
		maxRevisions: maxRevisions,
	}
}

// Converter returns the converter the service repairs and aligns with.
func (s *DiagramService) Converter() *adapter.Converter {
	return s.conv
}

// ── Diagrams ───────────────────────────────────────────────

func (s *DiagramService) List() ([]domain.Diagram, error) {
	return s.store.ListDiagrams()
}

func (s *DiagramService) Get(id string) (*domain.Diagram, error) {
	return s.store.GetDiagram(id)
}

// Create stores a new diagram. Empty code starts an empty diagram;
// otherwise the code is repaired first and must yield a document.
func (s *DiagramService) Create(ctx context.Context, name, code string) (*SaveResult, error) {
	if strings.TrimSpace(name) == "" {
		name = "Untitled"
	}
	res := repair.Result{Text: repair.EmptyDocument, Recovered: true}
	if strings.TrimSpace(code) != "" {
		res = repair.FullRepair(code)
		if !res.Recovered {
			return &SaveResult{Repair: res}, fmt.Errorf("create diagram: %w", ErrUnrecoverable)
		}
	}
	_, report := adapter.Decode(res.Text)

	d := &domain.Diagram{
		ID:   uuid.NewString(),
		Name: name,
		Code: res.Text,
	}
	if err := s.store.CreateDiagram(d); err != nil {
		return nil, fmt.Errorf("create diagram: %w", err)
	}
	rev, err := s.revisions.PushRevision(d.ID, LabelCreate, d.Code)
	if err != nil {
		return nil, fmt.Errorf("record revision: %w", err)
	}

	s.emitter.Emit(ctx, EventDiagramCreated, d)
	return &SaveResult{Diagram: d, Revision: rev, Repair: res, Report: report}, nil
}

// SaveCode repairs code and stores it as the diagram's current code with a
// new revision. Code identical to what is stored is not recorded again.
func (s *DiagramService) SaveCode(ctx context.Context, id, code, label string) (*SaveResult, error) {
	res := repair.FullRepair(code)
	if !res.Recovered {
		log.WithField("diagram", id).Warn("service: rejected unrecoverable diagram code")
		return &SaveResult{Repair: res}, fmt.Errorf("save diagram %s: %w", id, ErrUnrecoverable)
	}
	return s.persist(ctx, id, res, label)
}

// Elements decodes a diagram's stored code.
func (s *DiagramService) Elements(id string) ([]domain.Element, adapter.Report, error) {
	d, err := s.store.GetDiagram(id)
	if err != nil {
		return nil, adapter.Report{}, err
	}
	elements, report := adapter.Decode(d.Code)
	return elements, report, nil
}

// EditorElements converts a diagram's stored code to editor elements.
func (s *DiagramService) EditorElements(id string) ([]domain.EditorElement, adapter.Report, error) {
	elements, _, err := s.Elements(id)
	if err != nil {
		return nil, adapter.Report{}, err
	}
	editor, report := s.conv.ToEditorModelReport(elements)
	return editor, report, nil
}

// Link records the code file a diagram is kept in sync with. An empty path
// unlinks it.
func (s *DiagramService) Link(id, path string) error {
	d, err := s.store.GetDiagram(id)
	if err != nil {
		return err
	}
	d.SourcePath = path
	return s.store.UpdateDiagram(d)
}

// Linked returns the diagrams that have a source file.
func (s *DiagramService) Linked() ([]domain.Diagram, error) {
	all, err := s.store.ListDiagrams()
	if err != nil {
		return nil, err
	}
	var linked []domain.Diagram
	for _, d := range all {
		if d.SourcePath != "" {
			linked = append(linked, d)
		}
	}
	return linked, nil
}

func (s *DiagramService) Delete(ctx context.Context, id string) error {
	if err := s.revisions.ClearDiagram(id); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if err := s.store.DeleteDiagram(id); err != nil {
		return fmt.Errorf("delete diagram: %w", err)
	}
	s.emitter.Emit(ctx, EventDiagramDeleted, id)
	return nil
}

// ── Generation ─────────────────────────────────────────────

// Generate consumes a generation stream for diagram id, forwarding live text
// and progress as events, then aligns connectors and saves the result. Only
// one generation per diagram runs at a time. A stream that stops early
// (cancellation, missing done event) still saves what could be recovered;
// a server error event saves nothing.
func (s *DiagramService) Generate(ctx context.Context, id string, r io.Reader, h stream.Handler) (*SaveResult, error) {
	if _, err := s.store.GetDiagram(id); err != nil {
		return nil, err
	}
	if !s.generating.TryLock(id) {
		return nil, fmt.Errorf("generate %s: %w", id, ErrGenerationRunning)
	}
	defer s.generating.Unlock(id)

	handler := stream.Handler{
		OnText: func(live string) {
			s.emitter.Emit(ctx, EventGenerationText, map[string]string{"id": id, "text": live})
			if h.OnText != nil {
				h.OnText(live)
			}
		},
		OnPlan: h.OnPlan,
		OnProgress: func(p stream.Progress) {
			s.emitter.Emit(ctx, EventGenerationStatus, map[string]any{"id": id, "progress": p})
			if h.OnProgress != nil {
				h.OnProgress(p)
			}
		},
	}

	res, streamErr := stream.Consume(ctx, r, handler)
	if errors.Is(streamErr, stream.ErrStreamError) {
		return &SaveResult{Repair: res}, fmt.Errorf("generate %s: %w", id, streamErr)
	}
	if !res.Recovered {
		err := fmt.Errorf("generate %s: %w", id, ErrUnrecoverable)
		if streamErr != nil {
			err = fmt.Errorf("generate %s: %w", id, errors.Join(ErrUnrecoverable, streamErr))
		}
		return &SaveResult{Repair: res}, err
	}

	label := LabelGenerate
	if streamErr != nil {
		label = LabelPartial
	}
	res.Text = s.conv.OptimizeCode(res.Text)

	// Persist with a fresh context: a cancelled stream still keeps its
	// partial diagram.
	saved, err := s.persist(context.WithoutCancel(ctx), id, res, label)
	if err != nil {
		return saved, err
	}
	if streamErr != nil {
		return saved, fmt.Errorf("generate %s: %w", id, streamErr)
	}
	return saved, nil
}

// Generating returns the ids of diagrams with a generation in progress.
func (s *DiagramService) Generating() []string {
	return s.generating.Running()
}

// WaitGenerating blocks until all generations finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *DiagramService) WaitGenerating(ctx context.Context) {
	s.generating.WaitAll(ctx)
}

// ── History ────────────────────────────────────────────────

// History returns a diagram's revisions. A diagram without history yields
// an empty History rather than nil.
func (s *DiagramService) History(id string) (*domain.History, error) {
	h, err := s.revisions.LoadHistory(id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if h == nil {
		return &domain.History{}, nil
	}
	return h, nil
}

// Restore makes revisionID the diagram's current code. The revision stays
// where it is in the history; only the current pointer moves.
func (s *DiagramService) Restore(ctx context.Context, id, revisionID string) (*domain.Diagram, error) {
	rev, err := s.revisions.GetRevision(revisionID)
	if err != nil {
		return nil, err
	}
	if rev.DiagramID != id {
		return nil, fmt.Errorf("revision %s does not belong to diagram %s", revisionID, id)
	}
	d, err := s.store.GetDiagram(id)
	if err != nil {
		return nil, err
	}
	d.Code = rev.Code
	if err := s.store.UpdateDiagram(d); err != nil {
		return nil, fmt.Errorf("restore diagram: %w", err)
	}
	if err := s.revisions.GoTo(id, revisionID); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventDiagramRestored, map[string]string{"id": id, "revisionId": revisionID})
	return d, nil
}

// PruneAll trims every diagram's history to the configured limit and
// returns how many revisions were deleted.
func (s *DiagramService) PruneAll() (int, error) {
	if s.maxRevisions <= 0 {
		return 0, nil
	}
	ids, err := s.revisions.ListDiagramIDs()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		n, err := s.revisions.Prune(id, s.maxRevisions)
		if err != nil {
			log.WithError(err).WithField("diagram", id).Warn("service: prune history")
			continue
		}
		total += n
	}
	return total, nil
}

// StartPruning schedules PruneAll on a cron expression, replacing any
// previous schedule.
func (s *DiagramService) StartPruning(schedule string) error {
	s.StopPruning()

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		n, err := s.PruneAll()
		if err != nil {
			log.WithError(err).Warn("service: scheduled prune failed")
			return
		}
		if n > 0 {
			log.WithField("deleted", n).Info("service: pruned revision history")
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	c.Start()

	s.cronMu.Lock()
	s.cronSched = c
	s.cronMu.Unlock()
	log.WithField("schedule", schedule).Debug("service: revision pruning scheduled")
	return nil
}

// StopPruning stops the pruning schedule, if any.
func (s *DiagramService) StopPruning() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}

// persist writes repaired code to the diagram and records a revision when the
// code changed.
func (s *DiagramService) persist(ctx context.Context, id string, res repair.Result, label string) (*SaveResult, error) {
	d, err := s.store.GetDiagram(id)
	if err != nil {
		return nil, err
	}
	_, report := adapter.Decode(res.Text)
	out := &SaveResult{Diagram: d, Repair: res, Report: report}
	if d.Code == res.Text {
		return out, nil
	}

	d.Code = res.Text
	if err := s.store.UpdateDiagram(d); err != nil {
		return nil, fmt.Errorf("save diagram: %w", err)
	}
	if label == "" {
		label = LabelSave
	}
	rev, err := s.revisions.PushRevision(id, label, d.Code)
	if err != nil {
		return nil, fmt.Errorf("record revision: %w", err)
	}
	out.Revision = rev

	s.emitter.Emit(ctx, EventDiagramSaved, out)
	return out, nil
}
