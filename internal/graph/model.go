// Package graph holds the engine's graph model, the schema and data graph
// builders, and the query engine backends.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/csngraph/internal/csn"
)

// --- Enums ---

// Kind classifies a graph by what its nodes represent.
type Kind string

const (
	KindSchema Kind = "schema" // nodes are entities, edges are associations
	KindData   Kind = "data"   // nodes are records, edges are resolved FKs
	KindHybrid Kind = "hybrid" // schema nodes enriched with instance stats
)

// Resolution records how a data-level edge was discovered.
type Resolution string

const (
	ResolutionDeclared  Resolution = "declared"
	ResolutionCertain   Resolution = "inferred-certain"
	ResolutionHeuristic Resolution = "inferred-heuristic"
)

// EdgeStyle is the rendering class of an edge line.
type EdgeStyle string

const (
	StyleSolid  EdgeStyle = "solid"  // required
	StyleDashed EdgeStyle = "dashed" // optional
	StyleDotted EdgeStyle = "dotted" // weak / heuristic
)

// --- Models ---

// Node is a vertex of a built graph. For schema graphs ID is the entity
// FQN; for data graphs it is "<EntityShortName>:<keyTuple>". Properties is
// an opaque bag for tooltips, styling, and provenance.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Group      string         `json:"group"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Edge is a directed edge of a built graph. (From, To, Role) is unique
// within a graph.
type Edge struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Role        string          `json:"role"`
	Cardinality csn.Cardinality `json:"cardinality,omitempty"`
	Style       EdgeStyle       `json:"style"`
	Width       int             `json:"width,omitempty"` // importance 1-3
	Resolution  Resolution      `json:"resolution,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
}

// Graph is an immutable, published build result. Builders emit nodes and
// edges in deterministic order so Digest is stable across runs.
type Graph struct {
	Kind         Kind      `json:"kind"`
	Scope        string    `json:"scope"`
	Nodes        []Node    `json:"nodes"`
	Edges        []Edge    `json:"edges"`
	BuiltAt      time.Time `json:"builtAt"`
	InputDigests []string  `json:"inputDigests"`
	Warnings     []string  `json:"warnings,omitempty"`
	// CacheUsed marks a graph served from the cache rather than built for
	// this request. Excluded from Digest.
	CacheUsed bool `json:"cacheUsed,omitempty"`
}

// NodeIndex returns a map from node id to its position in Nodes.
func (g *Graph) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// Digest returns the content digest of the graph's node and edge
// sequences. Metadata (BuiltAt, Warnings) is excluded: two builds from
// identical inputs digest identically.
func (g *Graph) Digest() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, n := range g.Nodes {
		enc.Encode(n) //nolint:errcheck // sha256 writer never fails
	}
	for _, e := range g.Edges {
		enc.Encode(e) //nolint:errcheck
	}
	return hex.EncodeToString(h.Sum(nil))
}

// InputsDigest collapses the graph's input-source digests into one hash,
// used as the cache key component that detects source-of-truth changes.
func (g *Graph) InputsDigest() string {
	return CombineDigests(g.InputDigests)
}

// Validate checks structural invariants: endpoint closure and
// (from, to, role) uniqueness. Builders always emit valid graphs; this
// guards graphs rehydrated from the cache.
func (g *Graph) Validate() error {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
	}
	seen := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if !ids[e.From] || !ids[e.To] {
			return fmt.Errorf("edge %s->%s (%s) references missing node", e.From, e.To, e.Role)
		}
		k := e.From + "\x00" + e.To + "\x00" + e.Role
		if seen[k] {
			return fmt.Errorf("duplicate edge %s->%s (%s)", e.From, e.To, e.Role)
		}
		seen[k] = true
	}
	return nil
}

// CombineDigests hashes an ordered list of digests into one hex digest.
func CombineDigests(digests []string) string {
	h := sha256.New()
	for _, d := range digests {
		h.Write([]byte(d))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NodeID builds the stable data-graph node id for a record:
// "<EntityShortName>:<keyValues joined by |>". Key values appear in the
// entity's declared key order.
func NodeID(entityShort string, keyValues []string) string {
	return entityShort + ":" + strings.Join(keyValues, "|")
}

// EntityOfNodeID returns the entity short name encoded in a data node id.
func EntityOfNodeID(id string) string {
	if i := strings.Index(id, ":"); i >= 0 {
		return id[:i]
	}
	return id
}
