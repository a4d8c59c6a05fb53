package mcptools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/csngraph/internal/export"
	"github.com/dusk-indust/csngraph/internal/facade"
	"github.com/dusk-indust/csngraph/internal/graph"
)

const (
	defaultScope   = "default"
	defaultMaxHops = 10
	defaultDepth   = 3
)

// GraphService holds the facade used by MCP tool handlers.
type GraphService struct {
	facade *facade.Facade
}

// NewGraphService creates a GraphService over the given facade.
func NewGraphService(f *facade.Facade) *GraphService {
	return &GraphService{facade: f}
}

func parseKind(s string) (graph.Kind, error) {
	switch s {
	case "schema":
		return graph.KindSchema, nil
	case "data":
		return graph.KindData, nil
	case "hybrid":
		return graph.KindHybrid, nil
	default:
		return "", fmt.Errorf("unknown graph kind %q (want schema, data, or hybrid)", s)
	}
}

func parseDirection(s, fallback string) (graph.Direction, error) {
	if s == "" {
		s = fallback
	}
	switch s {
	case "out":
		return graph.DirOut, nil
	case "in":
		return graph.DirIn, nil
	case "both":
		return graph.DirBoth, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want out, in, or both)", s)
	}
}

func scopeOrDefault(s string) string {
	if s == "" {
		return defaultScope
	}
	return s
}

// LoadGraph returns the cached graph for (kind, scope), building it when
// no entry exists.
func (s *GraphService) LoadGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input LoadGraphInput,
) (*mcp.CallToolResult, LoadGraphOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, LoadGraphOutput{}, err
	}
	g, err := s.facade.LoadGraph(ctx, kind, scopeOrDefault(input.Scope))
	if err != nil {
		return nil, LoadGraphOutput{}, err
	}
	return nil, LoadGraphOutput{Graph: export.BuildExport(g)}, nil
}

// RebuildGraph discards the cached graph for (kind, scope) and builds it
// fresh.
func (s *GraphService) RebuildGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RebuildGraphInput,
) (*mcp.CallToolResult, RebuildGraphOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, RebuildGraphOutput{}, err
	}
	g, err := s.facade.Rebuild(ctx, kind, scopeOrDefault(input.Scope))
	if err != nil {
		return nil, RebuildGraphOutput{}, err
	}
	return nil, RebuildGraphOutput{Graph: export.BuildExport(g)}, nil
}

// GraphStatus reports the cache state for (kind, scope) without building.
func (s *GraphService) GraphStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GraphStatusInput,
) (*mcp.CallToolResult, GraphStatusOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, GraphStatusOutput{}, err
	}
	st, err := s.facade.GraphStatus(ctx, kind, scopeOrDefault(input.Scope))
	if err != nil {
		return nil, GraphStatusOutput{}, err
	}
	return nil, GraphStatusOutput{Status: st}, nil
}

// ClearCache removes every cached graph.
func (s *GraphService) ClearCache(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ClearCacheInput,
) (*mcp.CallToolResult, ClearCacheOutput, error) {
	removed, err := s.facade.ClearCache(ctx)
	if err != nil {
		return nil, ClearCacheOutput{}, err
	}
	return nil, ClearCacheOutput{Removed: removed}, nil
}

// GetNeighbors returns the one-hop neighbors of a node.
func (s *GraphService) GetNeighbors(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetNeighborsInput,
) (*mcp.CallToolResult, GetNeighborsOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, GetNeighborsOutput{}, err
	}
	if input.NodeID == "" {
		return nil, GetNeighborsOutput{}, fmt.Errorf("nodeId is required")
	}
	dir, err := parseDirection(input.Direction, "both")
	if err != nil {
		return nil, GetNeighborsOutput{}, err
	}
	nodes, err := s.facade.GetNeighbors(ctx, kind, scopeOrDefault(input.Scope), input.NodeID, dir, input.Role, input.Limit)
	if err != nil {
		return nil, GetNeighborsOutput{}, err
	}
	return nil, GetNeighborsOutput{Neighbors: nodes, Total: len(nodes)}, nil
}

// ShortestPath finds the shortest undirected path between two nodes.
func (s *GraphService) ShortestPath(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ShortestPathInput,
) (*mcp.CallToolResult, ShortestPathOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, ShortestPathOutput{}, err
	}
	if input.From == "" || input.To == "" {
		return nil, ShortestPathOutput{}, fmt.Errorf("from and to are required")
	}
	maxHops := input.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	path, err := s.facade.ShortestPath(ctx, kind, scopeOrDefault(input.Scope), input.From, input.To, maxHops)
	if err != nil {
		return nil, ShortestPathOutput{}, err
	}
	return nil, ShortestPathOutput{Found: path != nil, Path: path}, nil
}

// Traverse returns the nodes reachable from a start node.
func (s *GraphService) Traverse(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TraverseInput,
) (*mcp.CallToolResult, TraverseOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, TraverseOutput{}, err
	}
	if input.From == "" {
		return nil, TraverseOutput{}, fmt.Errorf("from is required")
	}
	dir, err := parseDirection(input.Direction, "out")
	if err != nil {
		return nil, TraverseOutput{}, err
	}
	depth := input.Depth
	if depth <= 0 {
		depth = defaultDepth
	}
	nodes, err := s.facade.Traverse(ctx, kind, scopeOrDefault(input.Scope), input.From, depth, dir, graph.TraverseOptions{RoleFilter: input.Role})
	if err != nil {
		return nil, TraverseOutput{}, err
	}
	return nil, TraverseOutput{Nodes: nodes, Total: len(nodes)}, nil
}

// Subgraph returns the induced subgraph over the given node ids.
func (s *GraphService) Subgraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SubgraphInput,
) (*mcp.CallToolResult, SubgraphOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, SubgraphOutput{}, err
	}
	if len(input.NodeIDs) == 0 {
		return nil, SubgraphOutput{}, fmt.Errorf("nodeIds is required")
	}
	g, err := s.facade.Subgraph(ctx, kind, scopeOrDefault(input.Scope), input.NodeIDs, input.IncludeEdges)
	if err != nil {
		return nil, SubgraphOutput{}, err
	}
	return nil, SubgraphOutput{Graph: export.BuildExport(g)}, nil
}

// ExportGraph renders a graph as JSON or Mermaid.
func (s *GraphService) ExportGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExportGraphInput,
) (*mcp.CallToolResult, ExportGraphOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, ExportGraphOutput{}, err
	}
	g, err := s.facade.LoadGraph(ctx, kind, scopeOrDefault(input.Scope))
	if err != nil {
		return nil, ExportGraphOutput{}, err
	}
	format := input.Format
	if format == "" {
		format = "json"
	}
	switch format {
	case "json":
		data, err := export.GenerateJSON(g)
		if err != nil {
			return nil, ExportGraphOutput{}, err
		}
		return nil, ExportGraphOutput{Format: format, Content: string(data)}, nil
	case "mermaid":
		return nil, ExportGraphOutput{Format: format, Content: export.GenerateMermaid(g)}, nil
	default:
		return nil, ExportGraphOutput{}, fmt.Errorf("unknown format %q (want json or mermaid)", format)
	}
}
