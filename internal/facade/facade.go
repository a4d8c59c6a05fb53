// Package facade is the single entry point for building, caching, and
// querying knowledge graphs. It coordinates the loader, the builders, the
// cache store, and the query engines so callers never touch those layers
// directly.
package facade

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/dusk-indust/csngraph/internal/cache"
	"github.com/dusk-indust/csngraph/internal/csn"
	"github.com/dusk-indust/csngraph/internal/graph"
)

// Backend names accepted by Options.Backend.
const (
	BackendInMemory      = "in-memory"
	BackendPropertyGraph = "property-graph"
)

// Options configures a Facade.
type Options struct {
	// SchemaSource is the CSN file, directory, or URL loaded for every
	// build.
	SchemaSource string
	// RegistryURL and Product select a registry discovery endpoint as the
	// schema source instead of SchemaSource. When Product is set, builds
	// load <RegistryURL>/products/<Product>/csn.
	RegistryURL string
	Product     string
	// Backend selects the query engine implementation.
	Backend string
	// AllowBackendFallback degrades to the in-memory engine when the
	// property-graph backend cannot be opened.
	AllowBackendFallback bool
	// Build controls data and hybrid graph construction.
	Build graph.DataBuildOptions
	// BuildTimeout bounds a single end-to-end build. Zero means no bound
	// beyond the caller's context.
	BuildTimeout time.Duration
	Logger       *log.Logger
}

// Status describes one cache key for operators.
type Status struct {
	Key          cache.Key `json:"key"`
	Cached       bool      `json:"cached"`
	BuiltAt      time.Time `json:"builtAt,omitempty"`
	InputsDigest string    `json:"inputsDigest,omitempty"`
	NodeCount    int       `json:"nodeCount"`
	EdgeCount    int       `json:"edgeCount"`
	Backend      string    `json:"backend"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// Facade ties the loader, builders, cache, and engines together. Safe for
// concurrent use. Builds are deduplicated per cache key: concurrent
// requests for the same key share one build.
type Facade struct {
	loader *csn.Loader
	reader graph.TableReader
	store  cache.Store
	opts   Options
	logger *log.Logger

	group singleflight.Group

	mu      sync.RWMutex
	engines map[cache.Key]graph.Engine
}

// New creates a Facade. reader may be nil when only schema graphs are
// built.
func New(loader *csn.Loader, reader graph.TableReader, store cache.Store, opts Options) *Facade {
	if opts.Backend == "" {
		opts.Backend = BackendInMemory
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Facade{
		loader:  loader,
		reader:  reader,
		store:   store,
		opts:    opts,
		logger:  logger,
		engines: make(map[cache.Key]graph.Engine),
	}
}

// Close releases every bound engine and the cache store.
func (f *Facade) Close() error {
	f.mu.Lock()
	for key, e := range f.engines {
		e.Close() //nolint:errcheck
		delete(f.engines, key)
	}
	f.mu.Unlock()
	return f.store.Close()
}

// LoadGraph returns the graph for (kind, scope), serving from the cache
// when an entry exists and building otherwise. A corrupted entry is
// invalidated and rebuilt once.
func (f *Facade) LoadGraph(ctx context.Context, kind graph.Kind, scope string) (*graph.Graph, error) {
	key := cache.Key{Kind: kind, Scope: scope}

	entry, err := f.store.Get(ctx, key)
	if err != nil {
		if !graph.IsKind(err, graph.KindCacheCorrupted) {
			return nil, err
		}
		f.logger.Warn("corrupted cache entry, rebuilding", "key", key.String(), "err", err)
		if _, err := f.store.Invalidate(ctx, key); err != nil {
			return nil, err
		}
	}
	if entry != nil {
		hit := *entry.Graph
		hit.CacheUsed = true
		return &hit, nil
	}
	return f.build(ctx, key)
}

// Rebuild discards the entry for (kind, scope) together with its
// dependents and builds it fresh.
func (f *Facade) Rebuild(ctx context.Context, kind graph.Kind, scope string) (*graph.Graph, error) {
	key := cache.Key{Kind: kind, Scope: scope}
	removed, err := f.store.Invalidate(ctx, key)
	if err != nil {
		return nil, err
	}
	f.dropEngines(key)
	f.logger.Info("rebuild requested", "key", key.String(), "invalidated", removed)
	return f.build(ctx, key)
}

// build deduplicates concurrent builds per key through singleflight.
// Waiters that are cancelled stop waiting; the build itself runs on the
// leader's context and is never cached when that context is cancelled.
func (f *Facade) build(ctx context.Context, key cache.Key) (*graph.Graph, error) {
	ch := f.group.DoChan(key.String(), func() (any, error) {
		return f.buildOnce(ctx, key)
	})
	select {
	case <-ctx.Done():
		return nil, graph.Wrap(graph.KindCancelled, ctx.Err(), "build %s", key)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*graph.Graph), nil
	}
}

// loadSchema resolves the configured schema source: a registry product
// lookup when Product is set, the plain source otherwise.
func (f *Facade) loadSchema(ctx context.Context) (*csn.SchemaSet, error) {
	if f.opts.Product != "" {
		return f.loader.LoadRegistry(ctx, f.opts.RegistryURL, f.opts.Product)
	}
	return f.loader.Load(ctx, f.opts.SchemaSource)
}

func (f *Facade) buildOnce(ctx context.Context, key cache.Key) (*graph.Graph, error) {
	if f.opts.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.BuildTimeout)
		defer cancel()
	}

	start := time.Now()
	set, err := f.loadSchema(ctx)
	if err != nil {
		return nil, graph.Wrap(graph.KindInput, err, "load schema for %s", key)
	}

	var g *graph.Graph
	var dependsOn []cache.Key
	switch key.Kind {
	case graph.KindSchema:
		g, err = graph.BuildSchemaGraph(ctx, set, key.Scope)
	case graph.KindData:
		if f.reader == nil {
			return nil, graph.Errf(graph.KindInput, "data graph requires a table reader")
		}
		g, err = graph.BuildDataGraph(ctx, set, f.reader, f.opts.Build, key.Scope)
		dependsOn = []cache.Key{{Kind: graph.KindSchema, Scope: key.Scope}}
	case graph.KindHybrid:
		if f.reader == nil {
			return nil, graph.Errf(graph.KindInput, "hybrid graph requires a table reader")
		}
		g, err = graph.BuildHybridGraph(ctx, set, f.reader, f.opts.Build, key.Scope)
		dependsOn = []cache.Key{{Kind: graph.KindSchema, Scope: key.Scope}}
	default:
		return nil, graph.Errf(graph.KindInput, "unknown graph kind %q", key.Kind)
	}
	if err != nil {
		return nil, err
	}

	// A cancelled or timed-out build must not publish partial results.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, graph.Wrap(graph.KindCancelled, ctxErr, "build %s", key)
	}

	if err := f.store.Put(ctx, key, g, g.InputsDigest(), dependsOn); err != nil {
		return nil, err
	}
	f.dropEngines(key)
	f.logger.Info("graph built",
		"key", key.String(),
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"warnings", len(g.Warnings),
		"took", time.Since(start))
	return g, nil
}

// engineFor returns the query engine bound to the current graph of key,
// creating and binding it on first use. Engines are replaced atomically
// on rebuild: readers either see the old snapshot or the new one.
func (f *Facade) engineFor(ctx context.Context, key cache.Key) (graph.Engine, error) {
	f.mu.RLock()
	e, ok := f.engines[key]
	f.mu.RUnlock()
	if ok {
		return e, nil
	}

	g, err := f.LoadGraph(ctx, key.Kind, key.Scope)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.engines[key]; ok {
		return e, nil
	}
	e, err = f.openEngine(ctx, g)
	if err != nil {
		return nil, err
	}
	f.engines[key] = e
	return e, nil
}

// openEngine opens the configured backend, falling back to the in-memory
// engine when the property-graph backend is unavailable and fallback is
// allowed.
func (f *Facade) openEngine(ctx context.Context, g *graph.Graph) (graph.Engine, error) {
	if f.opts.Backend != BackendPropertyGraph {
		return graph.NewMemEngine(g), nil
	}
	e, err := newPropertyGraphEngine(ctx, g)
	if err == nil {
		return e, nil
	}
	if f.opts.AllowBackendFallback && graph.IsKind(err, graph.KindBackendUnavailable) {
		f.logger.Warn("property-graph backend unavailable, using in-memory engine", "err", err)
		return graph.NewMemEngine(g), nil
	}
	return nil, err
}

func (f *Facade) dropEngines(keys ...cache.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		if e, ok := f.engines[key]; ok {
			e.Close() //nolint:errcheck
			delete(f.engines, key)
		}
	}
}

// GetNode returns a node of the (kind, scope) graph, or nil when absent.
func (f *Facade) GetNode(ctx context.Context, kind graph.Kind, scope, id string) (*graph.Node, error) {
	e, err := f.engineFor(ctx, cache.Key{Kind: kind, Scope: scope})
	if err != nil {
		return nil, err
	}
	return e.GetNode(ctx, id)
}

// GetNeighbors returns the one-hop neighbors of id.
func (f *Facade) GetNeighbors(ctx context.Context, kind graph.Kind, scope, id string, dir graph.Direction, roleFilter string, limit int) ([]graph.Node, error) {
	e, err := f.engineFor(ctx, cache.Key{Kind: kind, Scope: scope})
	if err != nil {
		return nil, err
	}
	return e.GetNeighbors(ctx, id, dir, roleFilter, limit)
}

// ShortestPath returns the shortest undirected path between two nodes, or
// nil when none exists within maxHops.
func (f *Facade) ShortestPath(ctx context.Context, kind graph.Kind, scope, from, to string, maxHops int) (*graph.Path, error) {
	e, err := f.engineFor(ctx, cache.Key{Kind: kind, Scope: scope})
	if err != nil {
		return nil, err
	}
	return e.ShortestPath(ctx, from, to, maxHops)
}

// Traverse returns the nodes reachable from a start node within depth hops.
func (f *Facade) Traverse(ctx context.Context, kind graph.Kind, scope, from string, depth int, dir graph.Direction, opts graph.TraverseOptions) ([]graph.Node, error) {
	e, err := f.engineFor(ctx, cache.Key{Kind: kind, Scope: scope})
	if err != nil {
		return nil, err
	}
	return e.Traverse(ctx, from, depth, dir, opts)
}

// Subgraph returns the induced subgraph over the given node ids.
func (f *Facade) Subgraph(ctx context.Context, kind graph.Kind, scope string, ids []string, includeEdges bool) (*graph.Graph, error) {
	e, err := f.engineFor(ctx, cache.Key{Kind: kind, Scope: scope})
	if err != nil {
		return nil, err
	}
	return e.Subgraph(ctx, ids, includeEdges)
}

// GraphStatus reports the cache state of (kind, scope) without triggering
// a build.
func (f *Facade) GraphStatus(ctx context.Context, kind graph.Kind, scope string) (*Status, error) {
	key := cache.Key{Kind: kind, Scope: scope}
	st := &Status{Key: key, Backend: f.opts.Backend}
	entry, err := f.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return st, nil
	}
	st.Cached = true
	st.BuiltAt = entry.BuiltAt
	st.InputsDigest = entry.InputsDigest
	st.NodeCount = len(entry.Graph.Nodes)
	st.EdgeCount = len(entry.Graph.Edges)
	st.Warnings = entry.Graph.Warnings
	return st, nil
}

// Invalidate removes the cache entry for (kind, scope) and its transitive
// dependents. Returns the number of entries removed.
func (f *Facade) Invalidate(ctx context.Context, kind graph.Kind, scope string) (int, error) {
	key := cache.Key{Kind: kind, Scope: scope}
	f.dropEngines(key,
		cache.Key{Kind: graph.KindData, Scope: scope},
		cache.Key{Kind: graph.KindHybrid, Scope: scope})
	return f.store.Invalidate(ctx, key)
}

// ClearCache removes every cache entry and closes all bound engines.
func (f *Facade) ClearCache(ctx context.Context) (int, error) {
	f.mu.Lock()
	for key, e := range f.engines {
		e.Close() //nolint:errcheck
		delete(f.engines, key)
	}
	f.mu.Unlock()
	return f.store.ClearAll(ctx)
}
