package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples services from their transport
// ─────────────────────────────────────────────────────────────

// EventEmitter delivers service events to whoever is listening: the MCP
// server's log notifications, the CLI's console, or a test.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Events emitted by DiagramService.
const (
	EventDiagramCreated   = "diagram:created"
	EventDiagramSaved     = "diagram:saved"
	EventDiagramRestored  = "diagram:restored"
	EventDiagramDeleted   = "diagram:deleted"
	EventGenerationText   = "generation:text"
	EventGenerationStatus = "generation:progress"
)

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event string, data any)

func (f EmitterFunc) Emit(ctx context.Context, event string, data any) {
	f(ctx, event, data)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// Watch callbacks emit from timer goroutines, so recording is locked.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Events))
	for i, e := range m.Events {
		names[i] = e.Event
	}
	return names
}
