package mcpserver

import (
	"context"
	"fmt"

	"drawgen/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerCanvasTools() {
	s.mcp.AddTool(mcp.NewTool("list_libraries",
		mcp.WithDescription("List the shape libraries available for insertion, with their items"),
		mcp.WithString("category", mcp.Description("Only libraries of this category (architecture, data-science, devops, design, circuits, other)")),
	), s.handleListLibraries)

	if s.canvas == nil {
		return
	}

	s.mcp.AddTool(mcp.NewTool("open_in_canvas",
		mcp.WithDescription("Show a stored diagram on the editing surface. Later edits on the surface are saved to it"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
	), s.handleOpenInCanvas)

	s.mcp.AddTool(mcp.NewTool("insert_library_item",
		mcp.WithDescription("Insert a library item into the diagram open on the surface, clear of existing elements"),
		mcp.WithString("library", mcp.Description("Library name"), mcp.Required()),
		mcp.WithString("itemId", mcp.Description("Item ID"), mcp.Required()),
	), s.handleInsertLibraryItem)
}

func (s *Server) loadLibraries() ([]domain.Library, error) {
	switch {
	case s.canvas != nil:
		return s.canvas.Libraries()
	case s.libraries != nil:
		return s.libraries.Load()
	}
	return nil, fmt.Errorf("no library directory configured")
}

func (s *Server) handleListLibraries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, _ := req.GetArguments()["category"].(string)
	libs, err := s.loadLibraries()
	if err != nil {
		return nil, err
	}

	type itemSummary struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Elements int    `json:"elements"`
	}
	type librarySummary struct {
		Name     string                 `json:"name"`
		Category domain.LibraryCategory `json:"category"`
		Items    []itemSummary          `json:"items"`
	}

	out := []librarySummary{}
	for _, lib := range libs {
		if category != "" && string(lib.Category) != category {
			continue
		}
		items := make([]itemSummary, len(lib.Items))
		for i, it := range lib.Items {
			items[i] = itemSummary{ID: it.ID, Name: it.Name, Elements: len(it.Elements)}
		}
		out = append(out, librarySummary{Name: lib.Name, Category: lib.Category, Items: items})
	}
	return jsonResult(out)
}

func (s *Server) handleOpenInCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "diagramId")
	if err != nil {
		return nil, err
	}
	res, err := s.canvas.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonResult(res)
}

func (s *Server) handleInsertLibraryItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	library, err := requireString(args, "library")
	if err != nil {
		return nil, err
	}
	itemID, err := requireString(args, "itemId")
	if err != nil {
		return nil, err
	}
	inserted, err := s.canvas.InsertLibraryItem(ctx, library, itemID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(inserted))
	for i, el := range inserted {
		ids[i] = el.ID
	}
	s.emitDiagramChanged(ctx, s.canvas.DiagramID())
	return jsonResult(map[string]any{"inserted": ids})
}
