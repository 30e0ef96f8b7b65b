package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	diagramsURI      = "drawgen://diagrams"
	diagramURIPrefix = "drawgen://diagram/"
)

func (s *Server) registerResources() {
	// ── drawgen://diagrams ─────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		diagramsURI,
		"All Diagrams",
		mcp.WithMIMEType("application/json"),
	), s.handleDiagramsResource)

	// ── drawgen://diagram/{diagramId} ──────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			diagramURIPrefix+"{diagramId}",
			"Diagram Code",
		),
		s.handleDiagramResource,
	)
}

func (s *Server) handleDiagramsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := s.diagrams.List()
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(summarizeDiagrams(list), "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      diagramsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleDiagramResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id := diagramIDFromURI(uri)
	if id == "" {
		return nil, fmt.Errorf("could not extract diagramId from URI: %s", uri)
	}
	d, err := s.diagrams.Get(id)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     d.Code,
		},
	}, nil
}

// diagramIDFromURI extracts the id from "drawgen://diagram/{id}".
func diagramIDFromURI(uri string) string {
	id, ok := strings.CutPrefix(uri, diagramURIPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
