package mcpserver

import (
	"context"
	"fmt"

	"drawgen/internal/adapter"
	"drawgen/internal/repair"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("system_diagram",
		mcp.WithPromptDescription("Create a system architecture diagram as stored diagram code"),
		mcp.WithArgument("systemName",
			mcp.ArgumentDescription("Name of the system to diagram"),
			mcp.RequiredArgument(),
		),
	), s.handleSystemDiagramPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("modify_diagram",
		mcp.WithPromptDescription("Change an existing diagram, starting from a summary of its structure"),
		mcp.WithArgument("diagramId",
			mcp.ArgumentDescription("Diagram to change"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("request",
			mcp.ArgumentDescription("What should change"),
			mcp.RequiredArgument(),
		),
	), s.handleModifyDiagramPrompt)
}

const diagramCodeRules = `Diagram code is a JSON array. Each element has "id", "type" (rectangle, ellipse, diamond, text, line, arrow), "x", "y", "width", "height".
Shapes take a "label": {"text": "..."}; text elements take "text".
Connectors take "start": {"id": "<shape id>"} and "end": {"id": "<shape id>"}; their geometry is aligned automatically.`

func (s *Server) handleSystemDiagramPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	systemName := req.Params.Arguments["systemName"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Create a system diagram for: %s", systemName),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Create a system architecture diagram for "%s". Follow these steps:

1. Identify the main components of the system
2. Use create_diagram with a name and code containing a rectangle for each component
3. Use connect_elements to connect related components, with a label describing the flow
4. Use list_elements to check the layout, and update_element to move anything that overlaps

%s

Use consistent colors: #3b82f6 for primary components, #10b981 for databases, #f59e0b for external services.`, systemName, diagramCodeRules),
				},
			},
		},
	}, nil
}

func (s *Server) handleModifyDiagramPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id := req.Params.Arguments["diagramId"]
	request := req.Params.Arguments["request"]

	d, err := s.diagrams.Get(id)
	if err != nil {
		return nil, err
	}
	elements, _ := adapter.Decode(repair.FullRepair(d.Code).Text)
	structure, _ := adapter.ExtractStructure(elements)

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Modify diagram %s", d.Name),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Modify the diagram "%s" (id %s): %s

Current structure:
%s

Keep existing element ids where the element survives. Save the result with save_diagram_code, or make small changes with add_element, update_element, delete_element and connect_elements.

%s`, d.Name, d.ID, request, adapter.Summarize(structure), diagramCodeRules),
				},
			},
		},
	}, nil
}
