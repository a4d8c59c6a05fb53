package graph

import (
	"context"
	"io"
	"sort"
)

// Direction selects which edge orientation a query follows. Every edge is
// directed source->target; "out" follows that orientation, "in" reverses
// it, "both" unions the two (out before in).
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// Path is a resolved route between two nodes. Length == len(Edges).
type Path struct {
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
	Length int    `json:"length"`
}

// TraverseOptions tune a bounded BFS.
type TraverseOptions struct {
	RoleFilter   string // only follow edges with this role; "" = all
	IncludeStart bool
}

// Engine is the uniform query surface over a bound graph. Both backends
// (in-memory adjacency and property-graph SQL) implement identical
// contracts, including result ordering: neighbor lists sort by (target
// entity name, target node id) ascending, and tied shortest paths resolve
// to the lexicographically smallest node-id sequence.
type Engine interface {
	io.Closer

	// GetNode returns the node with the given id, or nil if absent.
	GetNode(ctx context.Context, id string) (*Node, error)

	// NodeExists reports whether id is a node of the bound graph.
	NodeExists(ctx context.Context, id string) (bool, error)

	// GetNeighbors returns the one-hop neighborhood of id. limit <= 0
	// means unbounded; roleFilter "" matches every role.
	GetNeighbors(ctx context.Context, id string, dir Direction, roleFilter string, limit int) ([]Node, error)

	// ShortestPath returns a minimal-hop path from one node to another
	// over the undirected view of the graph, or nil when none exists
	// within maxHops.
	ShortestPath(ctx context.Context, from, to string, maxHops int) (*Path, error)

	// Traverse returns every node reachable from the start within depth
	// hops, BFS order deduplicated, excluding the start unless
	// opts.IncludeStart.
	Traverse(ctx context.Context, from string, depth int, dir Direction, opts TraverseOptions) ([]Node, error)

	// Subgraph extracts the induced subgraph over ids. When includeEdges,
	// only edges with both endpoints in ids are carried.
	Subgraph(ctx context.Context, ids []string, includeEdges bool) (*Graph, error)

	NodeCount(ctx context.Context) (int, error)
	EdgeCount(ctx context.Context) (int, error)

	// ClearCache drops backend-internal caches, forcing a re-read on the
	// next operation. A no-op for backends without one.
	ClearCache(ctx context.Context) error
}

// neighborLess orders nodes by (entity name, node id) ascending — the
// deterministic neighbor order both backends guarantee.
func neighborLess(a, b Node) bool {
	ea, eb := EntityOfNodeID(a.ID), EntityOfNodeID(b.ID)
	if ea != eb {
		return ea < eb
	}
	return a.ID < b.ID
}

// sortNeighbors sorts a node slice into the canonical neighbor order.
func sortNeighbors(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return neighborLess(nodes[i], nodes[j]) })
}

// applyLimit truncates nodes to limit when limit > 0.
func applyLimit(nodes []Node, limit int) []Node {
	if limit > 0 && len(nodes) > limit {
		return nodes[:limit]
	}
	return nodes
}
