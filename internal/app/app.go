package app

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"drawgen/internal/adapter"
	"drawgen/internal/canvassync"
	"drawgen/internal/config"
	"drawgen/internal/service"
	"drawgen/internal/storage"
)

// App owns the storage and services shared by the long-running commands.
type App struct {
	cfg *config.Config

	db       *storage.DB
	diagrams *service.DiagramService
	emitter  *appEmitter

	canvas *service.CanvasService
}

// Open opens the database under cfg and builds the services.
func Open(cfg *config.Config) (*App, error) {
	db, err := storage.New(cfg.DBPath, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{cfg: cfg, db: db, emitter: &appEmitter{}}
	a.diagrams = service.NewDiagramService(
		storage.NewDiagramStore(db),
		storage.NewRevisionStore(db, cfg.History.MaxRevisions),
		adapter.NewConverter(ConverterOptions(cfg)),
		a.emitter,
		cfg.History.MaxRevisions,
	)
	return a, nil
}

// Diagrams returns the diagram service.
func (a *App) Diagrams() *service.DiagramService {
	return a.diagrams
}

// AttachCanvas opens an editing surface. Saved diagrams that are open on it
// are pushed to it afterwards.
func (a *App) AttachCanvas(surface canvassync.Surface) *service.CanvasService {
	a.canvas = service.NewCanvasService(a.diagrams, surface, a.emitter, SyncOptions(a.cfg))
	a.emitter.setCanvas(a.canvas)
	return a.canvas
}

// Canvas returns the attached canvas, or nil.
func (a *App) Canvas() *service.CanvasService {
	return a.canvas
}

// Close stops background work, waits for pending canvas refreshes and
// closes the database.
func (a *App) Close() error {
	a.diagrams.StopPruning()
	a.emitter.close()
	return a.db.Close()
}

// ConverterOptions maps configuration onto converter settings.
func ConverterOptions(cfg *config.Config) adapter.Options {
	opts := adapter.DefaultOptions()
	opts.BindingTolerance = cfg.Binding.Tolerance
	opts.MinExtent = cfg.Binding.MinExtent
	opts.CoordinateLimit = cfg.Geometry.CoordinateLimit
	opts.DefaultExtent = cfg.Geometry.DefaultExtent
	opts.DefaultTextColor = cfg.Style.DefaultTextColor
	opts.DefaultFontSize = cfg.Style.DefaultFontSize
	return opts
}

// SyncOptions maps configuration onto canvas sync settings.
func SyncOptions(cfg *config.Config) canvassync.Options {
	return canvassync.Options{
		JitterTolerance: cfg.Sync.JitterTolerance,
		AlignConnectors: cfg.Sync.AlignConnectors,
		LibraryDir:      cfg.LibrariesDir,
	}
}

// ── Events ─────────────────────────────────────────────────

// appEmitter logs service events and keeps the canvas showing the open
// diagram's stored code.
type appEmitter struct {
	mu      sync.Mutex
	canvas  *service.CanvasService
	closed  bool
	pending sync.WaitGroup
}

func (e *appEmitter) setCanvas(c *service.CanvasService) {
	e.mu.Lock()
	e.canvas = c
	e.mu.Unlock()
}

func (e *appEmitter) Emit(ctx context.Context, event string, data any) {
	log.WithField("event", event).Debug("app: event")

	var id string
	switch event {
	case service.EventDiagramSaved:
		if res, ok := data.(*service.SaveResult); ok && res.Diagram != nil {
			id = res.Diagram.ID
		}
	case service.EventDiagramRestored:
		if m, ok := data.(map[string]string); ok {
			id = m["id"]
		}
	}
	if id == "" {
		return
	}

	e.mu.Lock()
	canvas := e.canvas
	if canvas == nil || e.closed {
		e.mu.Unlock()
		return
	}
	e.pending.Add(1)
	e.mu.Unlock()

	// Saves can originate inside the canvas's own lock, so refresh outside it.
	go func() {
		defer e.pending.Done()
		if canvas.DiagramID() != id {
			return
		}
		if _, err := canvas.Refresh(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).WithField("diagram", id).Warn("app: refresh canvas")
		}
	}()
}

// close stops new refreshes and waits for the running ones.
func (e *appEmitter) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.pending.Wait()
}
