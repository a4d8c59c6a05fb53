package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/csngraph/internal/graph"
)

// GenerateMermaid produces a Mermaid graph TD diagram from a graph. Nodes
// are grouped by their Group value (the entity namespace for schema
// graphs, the entity name for data graphs); edges carry the role and
// cardinality as label and the resolution as line style.
func GenerateMermaid(g *graph.Graph) string {
	// Build node → ID mapping for Mermaid (alphanumeric only).
	nodeIDs := make(map[string]string)
	nextID := 0
	getID := func(key string) string {
		if id, ok := nodeIDs[key]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", nextID)
		nextID++
		nodeIDs[key] = id
		return id
	}

	grouped := make(map[string][]graph.Node)
	var groups []string
	for _, n := range g.Nodes {
		if _, ok := grouped[n.Group]; !ok {
			groups = append(groups, n.Group)
		}
		grouped[n.Group] = append(grouped[n.Group], n)
	}
	sort.Strings(groups)

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, group := range groups {
		members := grouped[group]
		if group == "" || (len(groups) == 1 && len(members) == 1) {
			for _, n := range members {
				sb.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", getID(n.ID), escapeLabel(n.Label)))
			}
			continue
		}
		sb.WriteString(fmt.Sprintf("  subgraph %s[\"%.40s\"]\n", getID("group:"+group), group))
		for _, n := range members {
			sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", getID(n.ID), escapeLabel(n.Label)))
		}
		sb.WriteString("  end\n")
	}

	for _, e := range g.Edges {
		arrow := arrowFor(e)
		label := edgeLabel(e)
		if label != "" {
			sb.WriteString(fmt.Sprintf("  %s %s|%s| %s\n", getID(e.From), arrow, escapeLabel(label), getID(e.To)))
		} else {
			sb.WriteString(fmt.Sprintf("  %s %s %s\n", getID(e.From), arrow, getID(e.To)))
		}
	}

	return sb.String()
}

// arrowFor maps edge style and width onto Mermaid link syntax. Dashed and
// dotted collapse onto the dotted link; Mermaid has no finer distinction.
func arrowFor(e graph.Edge) string {
	switch e.Style {
	case graph.StyleDashed, graph.StyleDotted:
		return "-.->"
	default:
		if e.Width >= 3 {
			return "==>"
		}
		return "-->"
	}
}

func edgeLabel(e graph.Edge) string {
	parts := make([]string, 0, 2)
	if e.Role != "" {
		parts = append(parts, e.Role)
	}
	if e.Cardinality != "" {
		parts = append(parts, string(e.Cardinality))
	}
	return strings.Join(parts, " ")
}

func escapeLabel(label string) string {
	label = strings.ReplaceAll(label, `"`, "#quot;")
	label = strings.ReplaceAll(label, "|", "/")
	if len(label) > 60 {
		label = label[:57] + "..."
	}
	return label
}
