package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"drawgen/internal/canvassync"
	"drawgen/internal/geometry"
	"drawgen/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
)

// EventDiagramChanged is emitted after a tool edits a stored diagram.
const EventDiagramChanged = "mcp:diagram-changed"

// Server is the MCP server for drawgen.
// It exposes tools, resources, and prompts so agents can repair, convert and
// edit diagrams.
type Server struct {
	mcp     *server.MCPServer
	emitter service.EventEmitter
	layout  *geometry.LayoutEngine

	// Services (injected from app layer)
	diagrams  *service.DiagramService
	canvas    *service.CanvasService
	libraries *canvassync.Libraries
}

// Deps holds all dependencies passed from the app layer to the MCP server.
// Canvas and Libraries are optional.
type Deps struct {
	Emitter   service.EventEmitter
	Diagrams  *service.DiagramService
	Canvas    *service.CanvasService
	Libraries *canvassync.Libraries
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = service.NopEmitter{}
	}
	s := &Server{
		emitter:   emitter,
		layout:    geometry.NewLayoutEngine(),
		diagrams:  deps.Diagrams,
		canvas:    deps.Canvas,
		libraries: deps.Libraries,
	}

	s.mcp = server.NewMCPServer(
		"drawgen-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	// Stateless conversion
	s.registerRepairTools()

	// Stored diagrams
	s.registerDiagramTools()
	s.registerElementTools()
	s.registerResources()

	// Surface and libraries
	s.registerCanvasTools()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Info("mcp: starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// emitDiagramChanged notifies listeners that a tool edited a diagram.
func (s *Server) emitDiagramChanged(ctx context.Context, diagramID string) {
	s.emitter.Emit(ctx, EventDiagramChanged, map[string]string{"diagramId": diagramID})
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// requireString returns a non-empty string argument.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}
