package mcptools

import (
	"github.com/dusk-indust/csngraph/internal/export"
	"github.com/dusk-indust/csngraph/internal/facade"
	"github.com/dusk-indust/csngraph/internal/graph"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// LoadGraphInput is the input for the load_graph MCP tool.
type LoadGraphInput struct {
	Kind  string `json:"kind" jsonschema:"graph kind: schema, data, or hybrid"`
	Scope string `json:"scope,omitempty" jsonschema:"graph scope (default: default)"`
}

// LoadGraphOutput is the result of the load_graph MCP tool.
type LoadGraphOutput struct {
	Graph *export.GraphExport `json:"graph"`
}

// RebuildGraphInput is the input for the rebuild_graph MCP tool.
type RebuildGraphInput struct {
	Kind  string `json:"kind" jsonschema:"graph kind: schema, data, or hybrid"`
	Scope string `json:"scope,omitempty" jsonschema:"graph scope (default: default)"`
}

// RebuildGraphOutput is the result of the rebuild_graph MCP tool.
type RebuildGraphOutput struct {
	Graph *export.GraphExport `json:"graph"`
}

// GraphStatusInput is the input for the graph_status MCP tool.
type GraphStatusInput struct {
	Kind  string `json:"kind" jsonschema:"graph kind: schema, data, or hybrid"`
	Scope string `json:"scope,omitempty" jsonschema:"graph scope (default: default)"`
}

// GraphStatusOutput is the result of the graph_status MCP tool.
type GraphStatusOutput struct {
	Status *facade.Status `json:"status"`
}

// ClearCacheInput is the input for the clear_cache MCP tool.
type ClearCacheInput struct{}

// ClearCacheOutput is the result of the clear_cache MCP tool.
type ClearCacheOutput struct {
	Removed int `json:"removed"`
}

// GetNeighborsInput is the input for the get_neighbors MCP tool.
type GetNeighborsInput struct {
	Kind      string `json:"kind" jsonschema:"graph kind: schema, data, or hybrid"`
	Scope     string `json:"scope,omitempty" jsonschema:"graph scope (default: default)"`
	NodeID    string `json:"nodeId" jsonschema:"node identifier, e.g. Supplier:S1"`
	Direction string `json:"direction,omitempty" jsonschema:"out (references), in (referenced by), or both. Default: both"`
	Role      string `json:"role,omitempty" jsonschema:"restrict to edges with this role"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of neighbors (0 = all)"`
}

// GetNeighborsOutput is the result of the get_neighbors MCP tool.
type GetNeighborsOutput struct {
	Neighbors []graph.Node `json:"neighbors"`
	Total     int          `json:"total"`
}

// ShortestPathInput is the input for the shortest_path MCP tool.
type ShortestPathInput struct {
	Kind    string `json:"kind" jsonschema:"graph kind: schema, data, or hybrid"`
	Scope   string `json:"scope,omitempty" jsonschema:"graph scope (default: default)"`
	From    string `json:"from" jsonschema:"start node identifier"`
	To      string `json:"to" jsonschema:"target node identifier"`
	MaxHops int    `json:"maxHops,omitempty" jsonschema:"maximum path length in hops (default: 10)"`
}

// ShortestPathOutput is the result of the shortest_path MCP tool.
type ShortestPathOutput struct {
	Found bool        `json:"found"`
	Path  *graph.Path `json:"path,omitempty"`
}

// TraverseInput is the input for the traverse MCP tool.
type TraverseInput struct {
	Kind      string `json:"kind" jsonschema:"graph kind: schema, data, or hybrid"`
	Scope     string `json:"scope,omitempty" jsonschema:"graph scope (default: default)"`
	From      string `json:"from" jsonschema:"start node identifier"`
	Depth     int    `json:"depth,omitempty" jsonschema:"maximum traversal depth (default: 3)"`
	Direction string `json:"direction,omitempty" jsonschema:"out, in, or both. Default: out"`
	Role      string `json:"role,omitempty" jsonschema:"restrict to edges with this role"`
}

// TraverseOutput is the result of the traverse MCP tool.
type TraverseOutput struct {
	Nodes []graph.Node `json:"nodes"`
	Total int          `json:"total"`
}

// SubgraphInput is the input for the subgraph MCP tool.
type SubgraphInput struct {
	Kind         string   `json:"kind" jsonschema:"graph kind: schema, data, or hybrid"`
	Scope        string   `json:"scope,omitempty" jsonschema:"graph scope (default: default)"`
	NodeIDs      []string `json:"nodeIds" jsonschema:"node identifiers to include"`
	IncludeEdges bool     `json:"includeEdges,omitempty" jsonschema:"include edges between the selected nodes (default: true when omitted by callers that want edges)"`
}

// SubgraphOutput is the result of the subgraph MCP tool.
type SubgraphOutput struct {
	Graph *export.GraphExport `json:"graph"`
}

// ExportGraphInput is the input for the export_graph MCP tool.
type ExportGraphInput struct {
	Kind   string `json:"kind" jsonschema:"graph kind: schema, data, or hybrid"`
	Scope  string `json:"scope,omitempty" jsonschema:"graph scope (default: default)"`
	Format string `json:"format,omitempty" jsonschema:"export format: json or mermaid. Default: json"`
}

// ExportGraphOutput is the result of the export_graph MCP tool.
type ExportGraphOutput struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}
