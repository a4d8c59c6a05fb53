// Package cache persists built graphs so repeat visualizations are served
// from storage instead of being recomputed.
package cache

import (
	"context"
	"io"
	"time"

	"github.com/dusk-indust/csngraph/internal/graph"
)

// Key identifies a cache entry: one entry per (kind, scope). Scope names
// used by the engine: "schema", "data", "csn-enhanced" variants such as
// "default".
type Key struct {
	Kind  graph.Kind `json:"kind"`
	Scope string     `json:"scope"`
}

func (k Key) String() string { return string(k.Kind) + "/" + k.Scope }

// Entry is a materialized cache row: the full graph plus bookkeeping for
// invalidation. DependsOn lists the entries whose invalidation cascades
// to this one (the data graph depends on the schema graph).
type Entry struct {
	Key          Key          `json:"key"`
	Graph        *graph.Graph `json:"graph"`
	InputsDigest string       `json:"inputsDigest"`
	BuiltAt      time.Time    `json:"builtAt"`
	DependsOn    []Key        `json:"dependsOn,omitempty"`
}

// Store is a keyed store of built graphs. Implementations: MemStore
// (development/testing) and PGStore (persistent, Postgres).
//
// Entries are never implicitly garbage-collected; retention is
// operator-driven through Invalidate and ClearAll.
type Store interface {
	io.Closer

	// Get returns the entry for key, or nil on a miss. A stored graph
	// that fails its integrity check surfaces as a CacheCorrupted error.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Put creates or replaces the entry for key.
	Put(ctx context.Context, key Key, g *graph.Graph, inputsDigest string, dependsOn []Key) error

	// Invalidate removes the entry for key and, transitively, every entry
	// that depends on it. Returns the number of entries removed.
	Invalidate(ctx context.Context, key Key) (int, error)

	// InvalidateByScope removes all entries of the given scope, with
	// cascades. Returns the number of entries removed.
	InvalidateByScope(ctx context.Context, scope string) (int, error)

	// ClearAll removes every entry. Returns the number removed.
	ClearAll(ctx context.Context) (int, error)
}
