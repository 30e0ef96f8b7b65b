package adapter

import (
	"fmt"
	"regexp"
	"strings"

	"drawgen/internal/domain"
)

// Node is a labelled element in a diagram's logical graph.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Shape string `json:"shape"`
}

// Edge is a connector joining two nodes.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Structure is the logical graph behind a diagram.
type Structure struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

const maxLogicalIDLen = 30

// ExtractStructure derives nodes from labelled shapes and text, and edges
// from connectors bound to two nodes. It reports false when the diagram has
// no nodes.
func ExtractStructure(elements []domain.Element) (Structure, bool) {
	s := Structure{Nodes: []Node{}, Edges: []Edge{}}
	logical := make(map[string]string)
	used := make(map[string]bool)

	for _, el := range elements {
		if el.ID == "" || el.Type.IsConnector() {
			continue
		}
		label := el.Text
		if el.Type != domain.ElementText && el.Label != nil {
			label = el.Label.Text
		}
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		id := logicalID(label, len(s.Nodes))
		if used[id] {
			id = fmt.Sprintf("%s_%d", id, len(s.Nodes))
		}
		used[id] = true
		logical[el.ID] = id
		s.Nodes = append(s.Nodes, Node{ID: id, Label: label, Shape: string(el.Type)})
	}

	for _, el := range elements {
		if !el.Type.IsConnector() {
			continue
		}
		from, okFrom := logical[el.Start.BindingID()]
		to, okTo := logical[el.End.BindingID()]
		if !okFrom || !okTo {
			continue
		}
		e := Edge{From: from, To: to}
		if text, ok := labelText(el); ok {
			e.Label = strings.TrimSpace(text)
		}
		s.Edges = append(s.Edges, e)
	}

	return s, len(s.Nodes) > 0
}

func logicalID(label string, index int) string {
	id := strings.Trim(nonWord.ReplaceAllString(label, "_"), "_")
	if id == "" {
		return fmt.Sprintf("node_%d", index)
	}
	if r := []rune(id); len(r) > maxLogicalIDLen {
		id = string(r[:maxLogicalIDLen])
	}
	return strings.ToLower(id)
}

// maxSummaryEdges limits how many edges Summarize lists.
const maxSummaryEdges = 10

// Summarize renders s as a short plain-text description suitable for a
// modification prompt.
func Summarize(s Structure) string {
	if len(s.Nodes) == 0 {
		return "No existing structure."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The diagram has %d nodes and %d edges.\n\nNodes:\n", len(s.Nodes), len(s.Edges))
	labels := make(map[string]string, len(s.Nodes))
	for i, n := range s.Nodes {
		labels[n.ID] = n.Label
		fmt.Fprintf(&b, "  %d. [%s] %s\n", i+1, n.Shape, n.Label)
	}
	if len(s.Edges) > 0 {
		b.WriteString("\nConnections:\n")
		for i, e := range s.Edges {
			if i == maxSummaryEdges {
				fmt.Fprintf(&b, "  ... and %d more\n", len(s.Edges)-maxSummaryEdges)
				break
			}
			fmt.Fprintf(&b, "  - %s -> %s\n", labels[e.From], labels[e.To])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
