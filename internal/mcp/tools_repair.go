package mcpserver

import (
	"context"
	"fmt"

	"drawgen/internal/adapter"
	"drawgen/internal/domain"
	"drawgen/internal/repair"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerRepairTools() {
	s.mcp.AddTool(mcp.NewTool("repair_diagram_code",
		mcp.WithDescription("Recover a diagram description (JSON element array) from raw model output. Strips fences and prose, fixes quotes, truncation and unbalanced brackets"),
		mcp.WithString("code", mcp.Description("Raw generated text"), mcp.Required()),
	), s.handleRepairCode)

	s.mcp.AddTool(mcp.NewTool("convert_to_editor",
		mcp.WithDescription("Convert diagram code to editing-surface elements. Binds connectors to nearby shapes and synthesizes bound labels"),
		mcp.WithString("code", mcp.Description("Diagram code (repaired first)"), mcp.Required()),
	), s.handleConvertToEditor)

	s.mcp.AddTool(mcp.NewTool("convert_to_diagram",
		mcp.WithDescription("Convert editing-surface elements (array or scene object) back to diagram code"),
		mcp.WithString("elements", mcp.Description("JSON array of editor elements, or a scene with an elements array"), mcp.Required()),
	), s.handleConvertToDiagram)

	s.mcp.AddTool(mcp.NewTool("align_connectors",
		mcp.WithDescription("Snap every connector bound at both ends to the facing edge midpoints of its shapes. Other fields are left untouched"),
		mcp.WithString("code", mcp.Description("Diagram code"), mcp.Required()),
	), s.handleAlignConnectors)

	s.mcp.AddTool(mcp.NewTool("extract_structure",
		mcp.WithDescription("Describe the nodes and connections of a diagram. Pass either code or a stored diagram id"),
		mcp.WithString("code", mcp.Description("Diagram code")),
		mcp.WithString("diagramId", mcp.Description("Stored diagram ID")),
	), s.handleExtractStructure)
}

func (s *Server) handleRepairCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := requireString(req.GetArguments(), "code")
	if err != nil {
		return nil, err
	}
	res := repair.FullRepair(code)
	return jsonResult(map[string]any{
		"text":      res.Text,
		"recovered": res.Recovered,
		"warning":   res.Warning,
	})
}

func (s *Server) handleConvertToEditor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := requireString(req.GetArguments(), "code")
	if err != nil {
		return nil, err
	}
	res := repair.FullRepair(code)
	if !res.Recovered {
		return nil, fmt.Errorf("convert: %s", res.Warning)
	}
	elements, decodeReport := adapter.Decode(res.Text)
	editor, report := s.diagrams.Converter().ToEditorModelReport(elements)
	if editor == nil {
		editor = []domain.EditorElement{}
	}
	return jsonResult(map[string]any{
		"elements": editor,
		"report":   combineReports(decodeReport, report),
	})
}

func (s *Server) handleConvertToDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := requireString(req.GetArguments(), "elements")
	if err != nil {
		return nil, err
	}
	editor, err := adapter.DecodeEditor(raw)
	if err != nil {
		return nil, err
	}
	code, err := adapter.Encode(s.diagrams.Converter().ToDiagramModel(editor))
	if err != nil {
		return nil, err
	}
	return textResult(code), nil
}

func (s *Server) handleAlignConnectors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := requireString(req.GetArguments(), "code")
	if err != nil {
		return nil, err
	}
	res := repair.FullRepair(code)
	if !res.Recovered {
		return nil, fmt.Errorf("align: %s", res.Warning)
	}
	return textResult(s.diagrams.Converter().OptimizeCode(res.Text)), nil
}

func (s *Server) handleExtractStructure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	code, _ := args["code"].(string)
	if id, _ := args["diagramId"].(string); id != "" {
		d, err := s.diagrams.Get(id)
		if err != nil {
			return nil, err
		}
		code = d.Code
	}
	if code == "" {
		return nil, fmt.Errorf("code or diagramId is required")
	}

	elements, _ := adapter.Decode(repair.FullRepair(code).Text)
	structure, _ := adapter.ExtractStructure(elements)
	return jsonResult(map[string]any{
		"structure": structure,
		"summary":   adapter.Summarize(structure),
	})
}
