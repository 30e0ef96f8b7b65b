package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"drawgen/internal/adapter"
	"drawgen/internal/domain"
	"drawgen/internal/geometry"
	"drawgen/internal/service"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	defaultShapeW = 160.0
	defaultShapeH = 80.0
)

func (s *Server) registerElementTools() {
	s.mcp.AddTool(mcp.NewTool("list_elements",
		mcp.WithDescription("List the elements of a stored diagram with connection counts and the overall bounding box"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
	), s.handleListElements)

	s.mcp.AddTool(mcp.NewTool("add_element",
		mcp.WithDescription("Append one element to a stored diagram. Shapes without x/y are placed clear of existing shapes"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
		mcp.WithString("element", mcp.Description(`Element JSON object, e.g. {"type":"rectangle","width":160,"height":80,"label":{"text":"API"}}`), mcp.Required()),
	), s.handleAddElement)

	s.mcp.AddTool(mcp.NewTool("update_element",
		mcp.WithDescription("Merge fields into one element of a stored diagram. A null value removes the field"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
		mcp.WithString("elementId", mcp.Description("Element ID"), mcp.Required()),
		mcp.WithString("patch", mcp.Description("JSON object of fields to set"), mcp.Required()),
	), s.handleUpdateElement)

	s.mcp.AddTool(mcp.NewTool("delete_element",
		mcp.WithDescription("Remove an element from a stored diagram along with connectors bound to it"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
		mcp.WithString("elementId", mcp.Description("Element ID"), mcp.Required()),
	), s.handleDeleteElement)

	s.mcp.AddTool(mcp.NewTool("connect_elements",
		mcp.WithDescription("Add a connector between two shapes, aligned to their facing edges"),
		mcp.WithString("diagramId", mcp.Description("Diagram ID"), mcp.Required()),
		mcp.WithString("fromId", mcp.Description("Source element ID"), mcp.Required()),
		mcp.WithString("toId", mcp.Description("Target element ID"), mcp.Required()),
		mcp.WithString("label", mcp.Description("Connector label")),
		mcp.WithString("type", mcp.Description("'arrow' (default) or 'line'")),
	), s.handleConnectElements)
}

// ── Diagram code helpers ────────────────────────────────────

func (s *Server) diagramCode(id string) (string, error) {
	d, err := s.diagrams.Get(id)
	if err != nil {
		return "", err
	}
	return d.Code, nil
}

func (s *Server) saveEdit(ctx context.Context, id, code string) (*service.SaveResult, error) {
	res, err := s.diagrams.SaveCode(ctx, id, code, service.LabelEdit)
	if err != nil {
		return nil, err
	}
	s.emitDiagramChanged(ctx, id)
	return res, nil
}

// ── Handlers ────────────────────────────────────────────────

func (s *Server) handleListElements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "diagramId")
	if err != nil {
		return nil, err
	}
	elements, _, err := s.diagrams.Elements(id)
	if err != nil {
		return nil, err
	}
	if elements == nil {
		elements = []domain.Element{}
	}

	// connections per element id
	connections := map[string]int{}
	var rects []geometry.Rect
	for _, el := range elements {
		if !el.Type.IsConnector() {
			rects = append(rects, geometry.Rect{X: el.X, Y: el.Y, W: el.Width, H: el.Height})
			continue
		}
		if el.Start != nil && el.Start.ID != "" {
			connections[el.Start.ID]++
		}
		if el.End != nil && el.End.ID != "" {
			connections[el.End.ID]++
		}
	}
	box := geometry.Bounds(rects)

	return jsonResult(map[string]any{
		"elements":    elements,
		"connections": connections,
		"boundingBox": map[string]float64{
			"minX": box.X, "minY": box.Y, "maxX": box.X + box.W, "maxY": box.Y + box.H,
			"width": box.W, "height": box.H,
		},
		"totalElements": len(elements),
	})
}

func (s *Server) handleAddElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "diagramId")
	if err != nil {
		return nil, err
	}
	raw, err := requireString(args, "element")
	if err != nil {
		return nil, err
	}
	el := gjson.Parse(raw)
	if !gjson.Valid(raw) || !el.IsObject() {
		return nil, fmt.Errorf("element must be a JSON object")
	}
	typ := domain.ElementType(el.Get("type").String())
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown element type %q", typ)
	}

	code, err := s.diagramCode(id)
	if err != nil {
		return nil, err
	}

	elementID := el.Get("id").String()
	if elementID == "" {
		elementID = uuid.NewString()
		if raw, err = sjson.Set(raw, "id", elementID); err != nil {
			return nil, err
		}
	} else if idx, _ := findElement(code, elementID); idx >= 0 {
		return nil, fmt.Errorf("element %s already exists", elementID)
	}

	if !typ.IsConnector() && !el.Get("x").Exists() && !el.Get("y").Exists() {
		w, h := defaultShapeW, defaultShapeH
		if v := el.Get("width"); v.Exists() && v.Float() > 0 {
			w = v.Float()
		}
		if v := el.Get("height"); v.Exists() && v.Float() > 0 {
			h = v.Float()
		}
		x, y := s.layout.NextPosition(shapeRects(code), w, h)
		if raw, err = sjson.Set(raw, "x", x); err != nil {
			return nil, err
		}
		if raw, err = sjson.Set(raw, "y", y); err != nil {
			return nil, err
		}
	}

	next, err := sjson.SetRaw(code, "-1", raw)
	if err != nil {
		return nil, fmt.Errorf("append element: %w", err)
	}
	res, err := s.saveEdit(ctx, id, next)
	if err != nil {
		return nil, err
	}
	out := saveSummary(res)
	out["elementId"] = elementID
	return jsonResult(out)
}

func (s *Server) handleUpdateElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "diagramId")
	if err != nil {
		return nil, err
	}
	elementID, err := requireString(args, "elementId")
	if err != nil {
		return nil, err
	}
	rawPatch, err := requireString(args, "patch")
	if err != nil {
		return nil, err
	}
	patch := gjson.Parse(rawPatch)
	if !gjson.Valid(rawPatch) || !patch.IsObject() {
		return nil, fmt.Errorf("patch must be a JSON object")
	}
	if patch.Get("id").Exists() {
		return nil, fmt.Errorf("patch may not change the element id")
	}

	code, err := s.diagramCode(id)
	if err != nil {
		return nil, err
	}
	idx, _ := findElement(code, elementID)
	if idx < 0 {
		return nil, fmt.Errorf("element %s not found", elementID)
	}

	var setErr error
	patch.ForEach(func(key, value gjson.Result) bool {
		path := elementPath(idx, key.String())
		if value.Type == gjson.Null {
			code, setErr = sjson.Delete(code, path)
		} else {
			code, setErr = sjson.SetRaw(code, path, value.Raw)
		}
		return setErr == nil
	})
	if setErr != nil {
		return nil, fmt.Errorf("apply patch: %w", setErr)
	}

	res, err := s.saveEdit(ctx, id, code)
	if err != nil {
		return nil, err
	}
	return jsonResult(saveSummary(res))
}

func (s *Server) handleDeleteElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "diagramId")
	if err != nil {
		return nil, err
	}
	elementID, err := requireString(args, "elementId")
	if err != nil {
		return nil, err
	}
	code, err := s.diagramCode(id)
	if err != nil {
		return nil, err
	}

	var victims []int
	gjson.Parse(code).ForEach(func(key, value gjson.Result) bool {
		if value.Get("id").String() == elementID ||
			value.Get("start.id").String() == elementID ||
			value.Get("end.id").String() == elementID {
			victims = append(victims, int(key.Int()))
		}
		return true
	})
	if len(victims) == 0 {
		return nil, fmt.Errorf("element %s not found", elementID)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(victims)))
	for _, i := range victims {
		if code, err = sjson.Delete(code, strconv.Itoa(i)); err != nil {
			return nil, fmt.Errorf("delete element: %w", err)
		}
	}
	res, err := s.saveEdit(ctx, id, code)
	if err != nil {
		return nil, err
	}
	out := saveSummary(res)
	out["removed"] = len(victims)
	return jsonResult(out)
}

func (s *Server) handleConnectElements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "diagramId")
	if err != nil {
		return nil, err
	}
	fromID, err := requireString(args, "fromId")
	if err != nil {
		return nil, err
	}
	toID, err := requireString(args, "toId")
	if err != nil {
		return nil, err
	}
	label, _ := args["label"].(string)
	typ := domain.ElementArrow
	if t, _ := args["type"].(string); t != "" {
		typ = domain.ElementType(t)
	}
	if !typ.IsConnector() {
		return nil, fmt.Errorf("type must be a connector, got %q", typ)
	}

	code, err := s.diagramCode(id)
	if err != nil {
		return nil, err
	}
	for _, endpoint := range []string{fromID, toID} {
		idx, el := findElement(code, endpoint)
		if idx < 0 {
			return nil, fmt.Errorf("element %s not found", endpoint)
		}
		if domain.ElementType(el.Get("type").String()).IsConnector() {
			return nil, fmt.Errorf("element %s is a connector", endpoint)
		}
	}

	connector := domain.Element{
		ID:    uuid.NewString(),
		Type:  typ,
		Start: &domain.Binding{ID: fromID},
		End:   &domain.Binding{ID: toID},
	}
	if label != "" {
		connector.Label = &domain.Label{Text: label}
	}
	encoded, err := adapter.Encode([]domain.Element{connector})
	if err != nil {
		return nil, err
	}
	next, err := sjson.SetRaw(code, "-1", gjson.Get(encoded, "0").Raw)
	if err != nil {
		return nil, fmt.Errorf("append connector: %w", err)
	}

	res, err := s.saveEdit(ctx, id, s.diagrams.Converter().OptimizeCode(next))
	if err != nil {
		return nil, err
	}
	out := saveSummary(res)
	out["elementId"] = connector.ID
	return jsonResult(out)
}
