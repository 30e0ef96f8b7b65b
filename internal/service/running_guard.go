package service

import (
	"context"
	"sort"
	"sync"
)

// ExportedGenerationGuard is an exported alias so _test packages can test the guard.
type ExportedGenerationGuard = generationGuard

// ─────────────────────────────────────────────────────────────
// generationGuard — one generation per diagram at a time
// ─────────────────────────────────────────────────────────────

// generationGuard ensures only one generation stream writes to a given
// diagram at a time, and lets shutdown wait for streams in flight.
type generationGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks diagramID as generating. It returns false if a generation
// for that diagram is already in progress.
func (g *generationGuard) TryLock(diagramID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[diagramID]; ok {
		return false
	}
	g.running[diagramID] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock marks the generation as finished. Must follow a successful TryLock.
func (g *generationGuard) Unlock(diagramID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, diagramID)
	g.wg.Done()
}

// Running returns the ids of diagrams currently generating, sorted.
func (g *generationGuard) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.running))
	for id := range g.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WaitAll blocks until all generations complete or ctx is cancelled.
func (g *generationGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
