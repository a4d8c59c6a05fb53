//go:build cgo

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/dusk-indust/csngraph/internal/csn"
)

// Compile-time check that KuzuEngine satisfies Engine.
var _ Engine = (*KuzuEngine)(nil)

// KuzuEngine is the production backend: the bound graph loaded into a
// Kuzu property-graph database and queried with parameterized Cypher. It
// requires CGO because the go-kuzu driver wraps Kuzu's C library.
//
// Results are sorted client-side into the same deterministic order the
// in-memory backend guarantees.
type KuzuEngine struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// NewKuzuEngine creates a KuzuEngine backed by an in-memory Kuzu instance.
func NewKuzuEngine() (*KuzuEngine, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileEngine creates a KuzuEngine backed by a file-based database
// at dbPath, so the loaded graph survives across sessions.
func NewKuzuFileEngine(dbPath string) (*KuzuEngine, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "kuzu: create parent directory")
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuEngine, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "kuzu: open database")
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, Wrap(KindBackendUnavailable, err, "kuzu: open connection")
	}
	return &KuzuEngine{db: db, conn: conn}, nil
}

// Close releases the Kuzu connection and database.
func (k *KuzuEngine) Close() error {
	if k.conn != nil {
		k.conn.Close()
	}
	if k.db != nil {
		k.db.Close()
	}
	return nil
}

// ddlStatements create the property-graph schema. Node table first, then
// the relationship table.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Record(
		id STRING,
		label STRING,
		grp STRING,
		props STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS REF(
		FROM Record TO Record,
		role STRING,
		cardinality STRING,
		style STRING,
		resolution STRING
	)`,
}

// Bind loads a built graph into the backend: schema DDL, then one CREATE
// per node and edge. Existing contents are dropped first so a rebind
// replaces the previous graph.
func (k *KuzuEngine) Bind(ctx context.Context, g *Graph) error {
	for _, stmt := range ddlStatements {
		if err := k.exec(stmt, nil); err != nil {
			return err
		}
	}
	if err := k.exec("MATCH (n:Record) DETACH DELETE n", nil); err != nil {
		return err
	}

	for _, n := range g.Nodes {
		if err := ctx.Err(); err != nil {
			return Wrap(KindCancelled, err, "kuzu: bind")
		}
		props, _ := json.Marshal(n.Properties)
		err := k.exec(
			"CREATE (n:Record {id: $id, label: $label, grp: $grp, props: $props})",
			map[string]any{"id": n.ID, "label": n.Label, "grp": n.Group, "props": string(props)},
		)
		if err != nil {
			return err
		}
	}
	for _, e := range g.Edges {
		if err := ctx.Err(); err != nil {
			return Wrap(KindCancelled, err, "kuzu: bind")
		}
		err := k.exec(
			`MATCH (a:Record {id: $from}), (b:Record {id: $to})
			 CREATE (a)-[:REF {role: $role, cardinality: $card, style: $style, resolution: $res}]->(b)`,
			map[string]any{
				"from": e.From, "to": e.To, "role": e.Role,
				"card": string(e.Cardinality), "style": string(e.Style), "res": string(e.Resolution),
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetNode returns the node with the given id, or nil if absent.
func (k *KuzuEngine) GetNode(_ context.Context, id string) (*Node, error) {
	rows, err := k.query(
		"MATCH (n:Record {id: $id}) RETURN n.id, n.label, n.grp, n.props",
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToNode(rows[0]), nil
}

// NodeExists reports whether id is a node of the bound graph.
func (k *KuzuEngine) NodeExists(ctx context.Context, id string) (bool, error) {
	n, err := k.GetNode(ctx, id)
	return n != nil, err
}

// GetNeighbors runs a one-hop pattern per direction and sorts the result
// client-side into the canonical neighbor order.
func (k *KuzuEngine) GetNeighbors(ctx context.Context, id string, dir Direction, roleFilter string, limit int) ([]Node, error) {
	if limit < 0 {
		return nil, Errf(KindBoundExceeded, "negative limit %d", limit)
	}
	exists, err := k.NodeExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, Errf(KindNotFound, "node %q", id)
	}

	var nodes []Node
	fetch := func(cypher string) error {
		params := map[string]any{"id": id}
		if roleFilter != "" {
			cypher += " AND e.role = $role"
			params["role"] = roleFilter
		}
		rows, err := k.query(cypher+" RETURN b.id, b.label, b.grp, b.props", params)
		if err != nil {
			return err
		}
		block := make([]Node, 0, len(rows))
		for _, r := range rows {
			block = append(block, *rowToNode(r))
		}
		sortNeighbors(block)
		nodes = append(nodes, block...)
		return nil
	}

	switch dir {
	case DirOut:
		err = fetch("MATCH (a:Record {id: $id})-[e:REF]->(b:Record) WHERE true")
	case DirIn:
		err = fetch("MATCH (a:Record {id: $id})<-[e:REF]-(b:Record) WHERE true")
	case DirBoth:
		if err = fetch("MATCH (a:Record {id: $id})-[e:REF]->(b:Record) WHERE true"); err == nil {
			err = fetch("MATCH (a:Record {id: $id})<-[e:REF]-(b:Record) WHERE true")
		}
	default:
		err = Errf(KindInput, "unknown direction %q", dir)
	}
	if err != nil {
		return nil, err
	}
	return applyLimit(nodes, limit), nil
}

// ShortestPath uses Kuzu's native ALL SHORTEST recursive pattern bounded
// by maxHops, then picks the lexicographically smallest node-id sequence
// client-side so both backends return the same path.
func (k *KuzuEngine) ShortestPath(ctx context.Context, from, to string, maxHops int) (*Path, error) {
	if maxHops < 0 {
		return nil, Errf(KindBoundExceeded, "negative maxHops %d", maxHops)
	}
	for _, id := range []string{from, to} {
		exists, err := k.NodeExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, Errf(KindNotFound, "node %q", id)
		}
	}
	if from == to {
		n, err := k.GetNode(ctx, from)
		if err != nil {
			return nil, err
		}
		return &Path{Nodes: []Node{*n}, Length: 0}, nil
	}
	if maxHops == 0 {
		return nil, nil
	}

	// The recursive bound must be inlined: Kuzu does not parameterize
	// variable-length bounds. maxHops is an internal int, not user text.
	cypher := fmt.Sprintf(
		`MATCH p = (a:Record {id: $from})-[:REF* ALL SHORTEST 1..%d]-(b:Record {id: $to})
		 RETURN properties(nodes(p), 'id')`, maxHops)
	rows, err := k.query(cypher, map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var best []string
	for _, r := range rows {
		seq := toStringSlice(r[0])
		if best == nil || lexLess(seq, best) {
			best = seq
		}
	}
	return k.materializePath(ctx, best)
}

// materializePath resolves a node-id sequence into full nodes and the
// connecting edges (either orientation).
func (k *KuzuEngine) materializePath(ctx context.Context, ids []string) (*Path, error) {
	p := &Path{}
	for _, id := range ids {
		n, err := k.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, Errf(KindNotFound, "node %q vanished during path resolution", id)
		}
		p.Nodes = append(p.Nodes, *n)
	}
	for i := 0; i+1 < len(ids); i++ {
		edge, err := k.edgeBetween(ids[i], ids[i+1])
		if err != nil {
			return nil, err
		}
		p.Edges = append(p.Edges, edge)
	}
	p.Length = len(p.Edges)
	return p, nil
}

// edgeBetween fetches one edge connecting a and b in either orientation.
func (k *KuzuEngine) edgeBetween(a, b string) (Edge, error) {
	rows, err := k.query(
		`MATCH (x:Record {id: $a})-[e:REF]->(y:Record {id: $b})
		 RETURN e.role, e.cardinality, e.style, e.resolution`,
		map[string]any{"a": a, "b": b},
	)
	if err != nil {
		return Edge{}, err
	}
	if len(rows) > 0 {
		return rowToEdge(a, b, rows[0]), nil
	}
	rows, err = k.query(
		`MATCH (x:Record {id: $b})-[e:REF]->(y:Record {id: $a})
		 RETURN e.role, e.cardinality, e.style, e.resolution`,
		map[string]any{"a": a, "b": b},
	)
	if err != nil {
		return Edge{}, err
	}
	if len(rows) > 0 {
		return rowToEdge(b, a, rows[0]), nil
	}
	return Edge{}, Errf(KindNotFound, "no edge between %q and %q", a, b)
}

// Traverse performs a depth-bounded BFS using one-hop neighbor queries.
func (k *KuzuEngine) Traverse(ctx context.Context, from string, depth int, dir Direction, opts TraverseOptions) ([]Node, error) {
	if depth < 0 {
		return nil, Errf(KindBoundExceeded, "negative depth %d", depth)
	}
	start, err := k.GetNode(ctx, from)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, Errf(KindNotFound, "node %q", from)
	}

	visited := map[string]bool{from: true}
	frontier := []string{from}
	var result []Node
	if opts.IncludeStart {
		result = append(result, *start)
	}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, Wrap(KindCancelled, err, "traverse from %s", from)
		}
		var next []string
		for _, id := range frontier {
			neighbors, err := k.GetNeighbors(ctx, id, dir, opts.RoleFilter, 0)
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

// Subgraph extracts the induced subgraph over ids with an IN filter.
func (k *KuzuEngine) Subgraph(ctx context.Context, ids []string, includeEdges bool) (*Graph, error) {
	for _, id := range ids {
		exists, err := k.NodeExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, Errf(KindNotFound, "node %q", id)
		}
	}

	rows, err := k.query(
		"MATCH (n:Record) WHERE list_contains($ids, n.id) RETURN n.id, n.label, n.grp, n.props",
		map[string]any{"ids": ids},
	)
	if err != nil {
		return nil, err
	}
	sub := &Graph{Kind: KindData}
	for _, r := range rows {
		sub.Nodes = append(sub.Nodes, *rowToNode(r))
	}
	sortNeighbors(sub.Nodes)

	if includeEdges {
		rows, err := k.query(
			`MATCH (a:Record)-[e:REF]->(b:Record)
			 WHERE list_contains($ids, a.id) AND list_contains($ids, b.id)
			 RETURN a.id, b.id, e.role, e.cardinality, e.style, e.resolution`,
			map[string]any{"ids": ids},
		)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			sub.Edges = append(sub.Edges, rowToEdge(toString(r[0]), toString(r[1]), r[2:]))
		}
		sort.Slice(sub.Edges, func(i, j int) bool {
			a, b := sub.Edges[i], sub.Edges[j]
			if a.From != b.From {
				return a.From < b.From
			}
			if a.To != b.To {
				return a.To < b.To
			}
			return a.Role < b.Role
		})
	}
	return sub, nil
}

// NodeCount returns the number of Record nodes.
func (k *KuzuEngine) NodeCount(_ context.Context) (int, error) {
	rows, err := k.query("MATCH (n:Record) RETURN count(n)", nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// EdgeCount returns the number of REF edges.
func (k *KuzuEngine) EdgeCount(_ context.Context) (int, error) {
	rows, err := k.query("MATCH ()-[r:REF]->() RETURN count(r)", nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// ClearCache is a no-op: every operation already queries the database.
func (k *KuzuEngine) ClearCache(_ context.Context) error { return nil }

// ---------- Internal helpers ----------

// exec runs a parameterized Cypher statement that produces no result rows.
func (k *KuzuEngine) exec(cypher string, params map[string]any) error {
	if len(params) == 0 {
		res, err := k.conn.Query(cypher)
		if err != nil {
			return Wrap(KindBackendUnavailable, err, "kuzu: exec")
		}
		res.Close()
		return nil
	}
	stmt, err := k.conn.Prepare(cypher)
	if err != nil {
		return Wrap(KindBackendUnavailable, err, "kuzu: prepare")
	}
	defer stmt.Close()
	res, err := k.conn.Execute(stmt, params)
	if err != nil {
		return Wrap(KindBackendUnavailable, err, "kuzu: execute")
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all rows as
// []any slices in column order.
func (k *KuzuEngine) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = k.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = k.conn.Prepare(cypher)
		if err != nil {
			return nil, Wrap(KindBackendUnavailable, err, "kuzu: prepare")
		}
		defer stmt.Close()
		res, err = k.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "kuzu: query")
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, Wrap(KindBackendUnavailable, err, "kuzu: next")
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, Wrap(KindBackendUnavailable, err, "kuzu: row values")
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// rowToNode converts a 4-column row (id, label, grp, props) into a Node.
func rowToNode(r []any) *Node {
	n := &Node{
		ID:    toString(r[0]),
		Label: toString(r[1]),
		Group: toString(r[2]),
	}
	if props := toString(r[3]); props != "" && props != "null" {
		var m map[string]any
		if err := json.Unmarshal([]byte(props), &m); err == nil {
			n.Properties = m
		}
	}
	return n
}

// rowToEdge converts a 4-column row (role, cardinality, style, resolution)
// plus endpoints into an Edge.
func rowToEdge(from, to string, r []any) Edge {
	return Edge{
		From:        from,
		To:          to,
		Role:        toString(r[0]),
		Cardinality: csn.Cardinality(toString(r[1])),
		Style:       EdgeStyle(toString(r[2])),
		Resolution:  Resolution(toString(r[3])),
	}
}

// lexLess compares two string sequences lexicographically.
func lexLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// toStringSlice coerces a Kuzu list value into []string.
func toStringSlice(v any) []string {
	switch xs := v.(type) {
	case []string:
		return xs
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			out = append(out, toString(x))
		}
		return out
	default:
		return nil
	}
}

// ---------- Type coercion helpers ----------
// Kuzu returns typed Go values (int64, float64, bool, string). These
// helpers coerce any -> concrete type.

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
