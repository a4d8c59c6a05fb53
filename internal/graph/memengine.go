package graph

import (
	"context"
	"sort"
)

// Compile-time assertion: *MemEngine satisfies Engine.
var _ Engine = (*MemEngine)(nil)

// halfEdge is one adjacency entry: the edge plus the far endpoint.
type halfEdge struct {
	edge   *Edge
	nodeID string
}

// MemEngine is the development backend: the bound graph held as out- and
// in-adjacency maps. It is built once from an immutable Graph and is
// read-only afterwards, so concurrent readers need no locking.
type MemEngine struct {
	graph *Graph
	nodes map[string]*Node
	out   map[string][]halfEdge
	in    map[string][]halfEdge
}

// NewMemEngine builds the adjacency index for g. Adjacency lists are
// pre-sorted into the canonical neighbor order at construction.
func NewMemEngine(g *Graph) *MemEngine {
	e := &MemEngine{
		graph: g,
		nodes: make(map[string]*Node, len(g.Nodes)),
		out:   make(map[string][]halfEdge, len(g.Nodes)),
		in:    make(map[string][]halfEdge, len(g.Nodes)),
	}
	for i := range g.Nodes {
		e.nodes[g.Nodes[i].ID] = &g.Nodes[i]
	}
	for i := range g.Edges {
		edge := &g.Edges[i]
		e.out[edge.From] = append(e.out[edge.From], halfEdge{edge: edge, nodeID: edge.To})
		e.in[edge.To] = append(e.in[edge.To], halfEdge{edge: edge, nodeID: edge.From})
	}
	for _, adj := range []map[string][]halfEdge{e.out, e.in} {
		for _, list := range adj {
			sort.Slice(list, func(i, j int) bool {
				a, b := e.nodes[list[i].nodeID], e.nodes[list[j].nodeID]
				return neighborLess(*a, *b)
			})
		}
	}
	return e
}

// Graph returns the bound graph.
func (m *MemEngine) Graph() *Graph { return m.graph }

// GetNode returns the node with the given id, or nil if absent.
func (m *MemEngine) GetNode(_ context.Context, id string) (*Node, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, nil
	}
	out := *n
	return &out, nil
}

// NodeExists reports whether id is a node of the bound graph.
func (m *MemEngine) NodeExists(_ context.Context, id string) (bool, error) {
	_, ok := m.nodes[id]
	return ok, nil
}

// GetNeighbors returns the one-hop neighborhood in canonical order: out
// neighbors before in neighbors for DirBoth, each block pre-sorted.
func (m *MemEngine) GetNeighbors(ctx context.Context, id string, dir Direction, roleFilter string, limit int) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(KindCancelled, err, "neighbors of %s", id)
	}
	if limit < 0 {
		return nil, Errf(KindBoundExceeded, "negative limit %d", limit)
	}
	if _, ok := m.nodes[id]; !ok {
		return nil, Errf(KindNotFound, "node %q", id)
	}

	var nodes []Node
	appendDir := func(adj []halfEdge) {
		for _, h := range adj {
			if roleFilter != "" && h.edge.Role != roleFilter {
				continue
			}
			nodes = append(nodes, *m.nodes[h.nodeID])
		}
	}
	switch dir {
	case DirOut:
		appendDir(m.out[id])
	case DirIn:
		appendDir(m.in[id])
	case DirBoth:
		appendDir(m.out[id])
		appendDir(m.in[id])
	default:
		return nil, Errf(KindInput, "unknown direction %q", dir)
	}
	return applyLimit(nodes, limit), nil
}

// ShortestPath runs BFS over the undirected view. When several paths tie
// in length, the lexicographically smallest node-id sequence wins: a
// reverse BFS computes distances to the target, then a greedy forward
// walk picks the smallest next hop that stays on a shortest path.
func (m *MemEngine) ShortestPath(ctx context.Context, from, to string, maxHops int) (*Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(KindCancelled, err, "shortest path")
	}
	if maxHops < 0 {
		return nil, Errf(KindBoundExceeded, "negative maxHops %d", maxHops)
	}
	if _, ok := m.nodes[from]; !ok {
		return nil, Errf(KindNotFound, "node %q", from)
	}
	if _, ok := m.nodes[to]; !ok {
		return nil, Errf(KindNotFound, "node %q", to)
	}

	if from == to {
		return &Path{Nodes: []Node{*m.nodes[from]}, Length: 0}, nil
	}
	if maxHops == 0 {
		return nil, nil
	}

	// Distance-to-target over the undirected view.
	dist := map[string]int{to: 0}
	queue := []string{to}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if dist[cur] >= maxHops {
			continue
		}
		for _, h := range m.undirected(cur) {
			if _, seen := dist[h.nodeID]; seen {
				continue
			}
			dist[h.nodeID] = dist[cur] + 1
			queue = append(queue, h.nodeID)
		}
	}

	total, reachable := dist[from]
	if !reachable || total > maxHops {
		return nil, nil
	}

	// Greedy forward walk: at each step take the smallest-id neighbor
	// whose distance to the target decreases.
	path := &Path{Nodes: []Node{*m.nodes[from]}}
	cur := from
	for cur != to {
		var next string
		var via *Edge
		for _, h := range m.undirected(cur) {
			d, ok := dist[h.nodeID]
			if !ok || d != dist[cur]-1 {
				continue
			}
			if next == "" || h.nodeID < next {
				next = h.nodeID
				via = h.edge
			}
		}
		if next == "" {
			return nil, nil // unreachable within bound; dist map was truncated
		}
		path.Nodes = append(path.Nodes, *m.nodes[next])
		path.Edges = append(path.Edges, *via)
		cur = next
	}
	path.Length = len(path.Edges)
	return path, nil
}

// undirected returns the union of out and in adjacency for id.
func (m *MemEngine) undirected(id string) []halfEdge {
	out := m.out[id]
	in := m.in[id]
	merged := make([]halfEdge, 0, len(out)+len(in))
	merged = append(merged, out...)
	merged = append(merged, in...)
	return merged
}

// Traverse performs a depth-bounded BFS from the start node.
func (m *MemEngine) Traverse(ctx context.Context, from string, depth int, dir Direction, opts TraverseOptions) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(KindCancelled, err, "traverse from %s", from)
	}
	if depth < 0 {
		return nil, Errf(KindBoundExceeded, "negative depth %d", depth)
	}
	if _, ok := m.nodes[from]; !ok {
		return nil, Errf(KindNotFound, "node %q", from)
	}

	visited := map[string]bool{from: true}
	frontier := []string{from}
	var result []Node
	if opts.IncludeStart {
		result = append(result, *m.nodes[from])
	}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := m.GetNeighbors(ctx, id, dir, opts.RoleFilter, 0)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.ID] {
					continue
				}
				visited[n.ID] = true
				result = append(result, n)
				next = append(next, n.ID)
			}
		}
		frontier = next
	}
	return result, nil
}

// Subgraph extracts the induced subgraph over ids, preserving the bound
// graph's node and edge order.
func (m *MemEngine) Subgraph(ctx context.Context, ids []string, includeEdges bool) (*Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(KindCancelled, err, "subgraph")
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.nodes[id]; !ok {
			return nil, Errf(KindNotFound, "node %q", id)
		}
		want[id] = true
	}

	sub := &Graph{
		Kind:         m.graph.Kind,
		Scope:        m.graph.Scope,
		BuiltAt:      m.graph.BuiltAt,
		InputDigests: m.graph.InputDigests,
	}
	for _, n := range m.graph.Nodes {
		if want[n.ID] {
			sub.Nodes = append(sub.Nodes, n)
		}
	}
	if includeEdges {
		for _, e := range m.graph.Edges {
			if want[e.From] && want[e.To] {
				sub.Edges = append(sub.Edges, e)
			}
		}
	}
	return sub, nil
}

// NodeCount returns the number of nodes in the bound graph.
func (m *MemEngine) NodeCount(_ context.Context) (int, error) { return len(m.graph.Nodes), nil }

// EdgeCount returns the number of edges in the bound graph.
func (m *MemEngine) EdgeCount(_ context.Context) (int, error) { return len(m.graph.Edges), nil }

// ClearCache is a no-op: the in-memory backend holds no derived caches
// beyond the adjacency built at construction.
func (m *MemEngine) ClearCache(_ context.Context) error { return nil }

// Close is a no-op for the in-memory backend.
func (m *MemEngine) Close() error { return nil }
