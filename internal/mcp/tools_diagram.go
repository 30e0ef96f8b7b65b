package mcpserver

import (
	"context"
	"fmt"

	"drawgen/internal/domain"
	"drawgen/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDiagramTools() {
	s.mcp.AddTool(mcp.NewTool("list_diagrams",
		mcp.WithDescription("List stored diagrams, most recently updated first"),
	), s.handleListDiagrams)

	s.mcp.AddTool(mcp.NewTool("create_diagram",
		mcp.WithDescription("Create a stored diagram. Code is repaired before saving; omit it for an empty diagram"),
		mcp.WithString("name", mcp.Description("Diagram name"), mcp.Required()),
		mcp.WithString("code", mcp.Description("Initial diagram code")),
	), s.handleCreateDiagram)

	s.mcp.AddTool(mcp.NewTool("get_diagram",
		mcp.WithDescription("Get a stored diagram's code, optionally converted to editor elements"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
		mcp.WithString("format", mcp.Description("'code' (default) or 'editor'")),
	), s.handleGetDiagram)

	s.mcp.AddTool(mcp.NewTool("save_diagram_code",
		mcp.WithDescription("Repair and save new code for a diagram, recording a revision. Unrecoverable code is rejected and the stored code kept"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
		mcp.WithString("code", mcp.Description("Diagram code"), mcp.Required()),
		mcp.WithString("label", mcp.Description("Revision label (default 'save')")),
	), s.handleSaveDiagramCode)

	s.mcp.AddTool(mcp.NewTool("diagram_history",
		mcp.WithDescription("List a diagram's revisions and the current one"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
	), s.handleDiagramHistory)

	s.mcp.AddTool(mcp.NewTool("restore_revision",
		mcp.WithDescription("Make an earlier revision the diagram's current code"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
		mcp.WithString("revisionId", mcp.Description("Revision ID"), mcp.Required()),
	), s.handleRestoreRevision)

	s.mcp.AddTool(mcp.NewTool("delete_diagram",
		mcp.WithDescription("Delete a diagram and its history"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
	), s.handleDeleteDiagram)
}

type diagramSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SourcePath string `json:"sourcePath,omitempty"`
	UpdatedAt  string `json:"updatedAt"`
}

func summarizeDiagrams(list []domain.Diagram) []diagramSummary {
	out := make([]diagramSummary, len(list))
	for i, d := range list {
		out[i] = diagramSummary{
			ID:         d.ID,
			Name:       d.Name,
			SourcePath: d.SourcePath,
			UpdatedAt:  d.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
	}
	return out
}

func (s *Server) handleListDiagrams(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.diagrams.List()
	if err != nil {
		return nil, err
	}
	return jsonResult(summarizeDiagrams(list))
}

func (s *Server) handleCreateDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	code, _ := args["code"].(string)

	res, err := s.diagrams.Create(ctx, name, code)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"diagram": res.Diagram,
		"report":  res.Report,
	})
}

func (s *Server) handleGetDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "diagramId")
	if err != nil {
		return nil, err
	}
	format, _ := args["format"].(string)

	switch format {
	case "", "code":
		d, err := s.diagrams.Get(id)
		if err != nil {
			return nil, err
		}
		return jsonResult(d)
	case "editor":
		elements, report, err := s.diagrams.EditorElements(id)
		if err != nil {
			return nil, err
		}
		if elements == nil {
			elements = []domain.EditorElement{}
		}
		return jsonResult(map[string]any{"elements": elements, "report": report})
	default:
		return nil, fmt.Errorf("unknown format %q (use 'code' or 'editor')", format)
	}
}

func (s *Server) handleSaveDiagramCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "diagramId")
	if err != nil {
		return nil, err
	}
	code, err := requireString(args, "code")
	if err != nil {
		return nil, err
	}
	label, _ := args["label"].(string)

	res, err := s.diagrams.SaveCode(ctx, id, code, label)
	if err != nil {
		return nil, err
	}
	s.emitDiagramChanged(ctx, id)
	return jsonResult(saveSummary(res))
}

func (s *Server) handleDiagramHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "diagramId")
	if err != nil {
		return nil, err
	}
	h, err := s.diagrams.History(id)
	if err != nil {
		return nil, err
	}

	type revisionSummary struct {
		ID        string  `json:"id"`
		ParentID  *string `json:"parentId"`
		Label     string  `json:"label"`
		CreatedAt string  `json:"createdAt"`
		Current   bool    `json:"current,omitempty"`
	}
	revs := make([]revisionSummary, len(h.Revisions))
	for i, r := range h.Revisions {
		revs[i] = revisionSummary{
			ID:        r.ID,
			ParentID:  r.ParentID,
			Label:     r.Label,
			CreatedAt: r.CreatedAt.Format("2006-01-02 15:04:05"),
			Current:   r.ID == h.CurrentID,
		}
	}
	return jsonResult(map[string]any{"revisions": revs, "currentId": h.CurrentID})
}

func (s *Server) handleRestoreRevision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "diagramId")
	if err != nil {
		return nil, err
	}
	revID, err := requireString(args, "revisionId")
	if err != nil {
		return nil, err
	}
	d, err := s.diagrams.Restore(ctx, id, revID)
	if err != nil {
		return nil, err
	}
	s.emitDiagramChanged(ctx, id)
	return jsonResult(d)
}

func (s *Server) handleDeleteDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "diagramId")
	if err != nil {
		return nil, err
	}
	if err := s.diagrams.Delete(ctx, id); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Diagram %s deleted", id)), nil
}

// saveSummary is the part of a save result worth showing to an agent.
func saveSummary(res *service.SaveResult) map[string]any {
	out := map[string]any{
		"diagramId": res.Diagram.ID,
		"changed":   res.Revision != nil,
		"report":    res.Report,
	}
	if res.Revision != nil {
		out["revisionId"] = res.Revision.ID
	}
	return out
}
