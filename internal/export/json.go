package export

import (
	"encoding/json"
	"time"

	"github.com/dusk-indust/csngraph/internal/graph"
)

// GraphExport is the top-level JSON export structure. It wraps a graph
// with export metadata so downstream visualizers can reload it without
// talking to the engine.
type GraphExport struct {
	Kind         string       `json:"kind"`
	Scope        string       `json:"scope"`
	ExportedAt   string       `json:"exportedAt"`
	BuiltAt      string       `json:"builtAt"`
	Digest       string       `json:"digest"`
	InputsDigest string       `json:"inputsDigest"`
	NodeCount    int          `json:"nodeCount"`
	EdgeCount    int          `json:"edgeCount"`
	Nodes        []graph.Node `json:"nodes"`
	Edges        []graph.Edge `json:"edges"`
	Warnings     []string     `json:"warnings,omitempty"`
}

// BuildExport assembles a GraphExport from a graph.
func BuildExport(g *graph.Graph) *GraphExport {
	return &GraphExport{
		Kind:         string(g.Kind),
		Scope:        g.Scope,
		ExportedAt:   time.Now().UTC().Format(time.RFC3339),
		BuiltAt:      g.BuiltAt.UTC().Format(time.RFC3339),
		Digest:       g.Digest(),
		InputsDigest: g.InputsDigest(),
		NodeCount:    len(g.Nodes),
		EdgeCount:    len(g.Edges),
		Nodes:        g.Nodes,
		Edges:        g.Edges,
		Warnings:     g.Warnings,
	}
}

// GenerateJSON renders a graph as an indented JSON document.
func GenerateJSON(g *graph.Graph) ([]byte, error) {
	return json.MarshalIndent(BuildExport(g), "", "  ")
}
