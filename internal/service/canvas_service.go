package service

import (
	"context"
	"fmt"
	"sync"

	"drawgen/internal/canvassync"
	"drawgen/internal/domain"

	log "github.com/sirupsen/logrus"
)

// ─────────────────────────────────────────────────────────────
// Canvas Service — one diagram open on an editing surface
// ─────────────────────────────────────────────────────────────

// CanvasService binds a canvassync.Sync to a stored diagram. Surface edits
// are saved as revisions; stored code is pushed to the surface. Calls are
// serialized, so the surface's watcher and the MCP server may both drive it.
type CanvasService struct {
	mu        sync.Mutex
	diagrams  *DiagramService
	syncer    *canvassync.Sync
	emitter   EventEmitter
	diagramID string
}

// NewCanvasService creates a CanvasService drawing on surface.
func NewCanvasService(diagrams *DiagramService, surface canvassync.Surface, emitter EventEmitter, opts canvassync.Options) *CanvasService {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	c := &CanvasService{diagrams: diagrams, emitter: emitter}
	c.syncer = canvassync.New(surface, EmitterFunc(c.onSyncEvent), diagrams.Converter(), opts)
	return c
}

// DiagramID returns the open diagram, or "" when none is open.
func (c *CanvasService) DiagramID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diagramID
}

// Open shows diagram id on the surface.
func (c *CanvasService) Open(ctx context.Context, id string) (canvassync.ApplyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := c.diagrams.Get(id)
	if err != nil {
		return canvassync.ApplyResult{}, err
	}
	c.syncer.Reset()
	c.diagramID = id
	res, err := c.syncer.ApplyCode(ctx, d.Code)
	if err != nil {
		return res, fmt.Errorf("open diagram %s: %w", id, err)
	}
	return res, nil
}

// Refresh pushes the open diagram's stored code to the surface. It is a
// no-op when the surface already shows it.
func (c *CanvasService) Refresh(ctx context.Context) (canvassync.ApplyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.diagramID == "" {
		return canvassync.ApplyResult{}, nil
	}
	d, err := c.diagrams.Get(c.diagramID)
	if err != nil {
		return canvassync.ApplyResult{}, err
	}
	return c.syncer.ApplyCode(ctx, d.Code)
}

// HandleSurfaceChange forwards a surface notification. A material edit is
// saved to the open diagram.
func (c *CanvasService) HandleSurfaceChange(ctx context.Context, change canvassync.SurfaceChange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.diagramID == "" {
		return false
	}
	return c.syncer.HandleSurfaceChange(ctx, change)
}

// InsertLibraryItem places a library item on the open diagram.
func (c *CanvasService) InsertLibraryItem(ctx context.Context, library, itemID string) ([]domain.EditorElement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.diagramID == "" {
		return nil, fmt.Errorf("insert library item: no diagram open")
	}
	return c.syncer.InsertLibraryItem(ctx, library, itemID)
}

// Libraries returns the loaded shape libraries.
func (c *CanvasService) Libraries() ([]domain.Library, error) {
	return c.syncer.Libraries().Load()
}

// ReloadLibraries forgets loaded libraries so the next use re-reads them.
func (c *CanvasService) ReloadLibraries() {
	c.syncer.Libraries().Reset()
	log.WithField("dir", c.syncer.Libraries().Dir()).Debug("service: libraries will reload")
}

// onSyncEvent runs inside Sync calls, with c.mu held.
func (c *CanvasService) onSyncEvent(ctx context.Context, event string, data any) {
	if change, ok := data.(canvassync.DiagramChange); ok && event == canvassync.EventDiagramChanged {
		if _, err := c.diagrams.SaveCode(ctx, c.diagramID, change.Code, LabelEdit); err != nil {
			log.WithError(err).WithField("diagram", c.diagramID).Warn("service: save surface edit")
		}
	}
	c.emitter.Emit(ctx, event, data)
}
