package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dusk-indust/csngraph/internal/csn"
	"github.com/dusk-indust/csngraph/internal/graph"
)

// Compile-time assertion: *PGStore satisfies Store.
var _ Store = (*PGStore)(nil)

// ddl creates the persistence schema: a parent row per (kind, scope) and
// node/edge/dependency children that cascade on delete. Non-core node and
// edge fields travel as an opaque JSONB properties blob.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS graph_cache (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL,
		inputs_digest TEXT NOT NULL,
		input_digests JSONB NOT NULL,
		warnings JSONB,
		built_at TIMESTAMPTZ NOT NULL,
		UNIQUE (kind, scope)
	)`,
	`CREATE TABLE IF NOT EXISTS graph_cache_nodes (
		parent_id UUID NOT NULL REFERENCES graph_cache(id) ON DELETE CASCADE,
		seq INT NOT NULL,
		node_key TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		node_group TEXT NOT NULL DEFAULT '',
		properties JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS graph_cache_edges (
		parent_id UUID NOT NULL REFERENCES graph_cache(id) ON DELETE CASCADE,
		seq INT NOT NULL,
		from_key TEXT NOT NULL,
		to_key TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		cardinality TEXT NOT NULL DEFAULT '',
		style TEXT NOT NULL DEFAULT '',
		resolution TEXT NOT NULL DEFAULT '',
		width INT NOT NULL DEFAULT 0,
		properties JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS graph_cache_deps (
		parent_id UUID NOT NULL REFERENCES graph_cache(id) ON DELETE CASCADE,
		depends_kind TEXT NOT NULL,
		depends_scope TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_cache_scope ON graph_cache(scope)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_cache_nodes_key ON graph_cache_nodes(parent_id, node_key)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_cache_edges_from ON graph_cache_edges(parent_id, from_key)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_cache_edges_to ON graph_cache_edges(parent_id, to_key)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_cache_deps ON graph_cache_deps(depends_kind, depends_scope)`,
}

// PGStore implements Store on Postgres. A cache hit rehydrates the full
// graph in one round per child table — no lazy edge fetching.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore over pool and runs the schema DDL.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	s := &PGStore{pool: pool}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, graph.Wrap(graph.KindBackendUnavailable, err, "cache schema")
		}
	}
	return s, nil
}

// Close releases nothing: the pool is owned by the caller.
func (s *PGStore) Close() error { return nil }

// Get rehydrates the entry for key, or returns nil on a miss. Graphs that
// fail the structural integrity check surface as CacheCorrupted.
func (s *PGStore) Get(ctx context.Context, key Key) (*Entry, error) {
	var (
		id            uuid.UUID
		inputsDigest  string
		inputDigests  []string
		warnings      []string
		builtAt       time.Time
		rawInputs     []byte
		rawWarnings   []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, inputs_digest, input_digests, COALESCE(warnings, 'null'), built_at
		FROM graph_cache WHERE kind = $1 AND scope = $2`,
		string(key.Kind), key.Scope,
	).Scan(&id, &inputsDigest, &rawInputs, &rawWarnings, &builtAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, graph.Wrap(graph.KindBackendUnavailable, err, "cache get %s", key)
	}
	if err := json.Unmarshal(rawInputs, &inputDigests); err != nil {
		return nil, graph.Wrap(graph.KindCacheCorrupted, err, "input digests of %s", key)
	}
	json.Unmarshal(rawWarnings, &warnings) //nolint:errcheck // absent warnings stay nil

	g := &graph.Graph{
		Kind:         key.Kind,
		Scope:        key.Scope,
		BuiltAt:      builtAt,
		InputDigests: inputDigests,
		Warnings:     warnings,
	}

	if err := s.loadNodes(ctx, id, g); err != nil {
		return nil, err
	}
	if err := s.loadEdges(ctx, id, g); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, graph.Wrap(graph.KindCacheCorrupted, err, "entry %s", key)
	}

	deps, err := s.loadDeps(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Key:          key,
		Graph:        g,
		InputsDigest: inputsDigest,
		BuiltAt:      builtAt,
		DependsOn:    deps,
	}, nil
}

func (s *PGStore) loadNodes(ctx context.Context, id uuid.UUID, g *graph.Graph) error {
	rows, err := s.pool.Query(ctx, `
		SELECT node_key, label, node_group, properties
		FROM graph_cache_nodes WHERE parent_id = $1 ORDER BY seq`, id)
	if err != nil {
		return graph.Wrap(graph.KindBackendUnavailable, err, "cache nodes")
	}
	defer rows.Close()
	for rows.Next() {
		var n graph.Node
		var props []byte
		if err := rows.Scan(&n.ID, &n.Label, &n.Group, &props); err != nil {
			return graph.Wrap(graph.KindBackendUnavailable, err, "scan cache node")
		}
		if len(props) > 0 {
			json.Unmarshal(props, &n.Properties) //nolint:errcheck
		}
		g.Nodes = append(g.Nodes, n)
	}
	return rows.Err()
}

func (s *PGStore) loadEdges(ctx context.Context, id uuid.UUID, g *graph.Graph) error {
	rows, err := s.pool.Query(ctx, `
		SELECT from_key, to_key, role, cardinality, style, resolution, width, properties
		FROM graph_cache_edges WHERE parent_id = $1 ORDER BY seq`, id)
	if err != nil {
		return graph.Wrap(graph.KindBackendUnavailable, err, "cache edges")
	}
	defer rows.Close()
	for rows.Next() {
		var e graph.Edge
		var card, style, res string
		var props []byte
		if err := rows.Scan(&e.From, &e.To, &e.Role, &card, &style, &res, &e.Width, &props); err != nil {
			return graph.Wrap(graph.KindBackendUnavailable, err, "scan cache edge")
		}
		e.Cardinality = csn.Cardinality(card)
		e.Style = graph.EdgeStyle(style)
		e.Resolution = graph.Resolution(res)
		if len(props) > 0 {
			json.Unmarshal(props, &e.Properties) //nolint:errcheck
		}
		g.Edges = append(g.Edges, e)
	}
	return rows.Err()
}

func (s *PGStore) loadDeps(ctx context.Context, id uuid.UUID) ([]Key, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT depends_kind, depends_scope
		FROM graph_cache_deps WHERE parent_id = $1`, id)
	if err != nil {
		return nil, graph.Wrap(graph.KindBackendUnavailable, err, "cache deps")
	}
	defer rows.Close()
	var deps []Key
	for rows.Next() {
		var kind, scope string
		if err := rows.Scan(&kind, &scope); err != nil {
			return nil, graph.Wrap(graph.KindBackendUnavailable, err, "scan cache dep")
		}
		deps = append(deps, Key{Kind: graph.Kind(kind), Scope: scope})
	}
	return deps, rows.Err()
}

// Put creates or replaces the entry for key inside one transaction. The
// previous parent row is deleted first so children cascade away.
func (s *PGStore) Put(ctx context.Context, key Key, g *graph.Graph, inputsDigest string, dependsOn []Key) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return graph.Wrap(graph.KindBackendUnavailable, err, "cache put %s", key)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx,
		`DELETE FROM graph_cache WHERE kind = $1 AND scope = $2`,
		string(key.Kind), key.Scope); err != nil {
		return graph.Wrap(graph.KindBackendUnavailable, err, "cache put %s", key)
	}

	id := uuid.New()
	inputDigests, _ := json.Marshal(g.InputDigests)
	warnings, _ := json.Marshal(g.Warnings)
	if _, err := tx.Exec(ctx, `
		INSERT INTO graph_cache (id, kind, scope, inputs_digest, input_digests, warnings, built_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(key.Kind), key.Scope, inputsDigest, inputDigests, warnings, g.BuiltAt); err != nil {
		return graph.Wrap(graph.KindBackendUnavailable, err, "cache put %s", key)
	}

	batch := &pgx.Batch{}
	for i, n := range g.Nodes {
		props, _ := json.Marshal(n.Properties)
		batch.Queue(`
			INSERT INTO graph_cache_nodes (parent_id, seq, node_key, label, node_group, properties)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, i, n.ID, n.Label, n.Group, props)
	}
	for i, e := range g.Edges {
		props, _ := json.Marshal(e.Properties)
		batch.Queue(`
			INSERT INTO graph_cache_edges (parent_id, seq, from_key, to_key, role, cardinality, style, resolution, width, properties)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, i, e.From, e.To, e.Role, string(e.Cardinality), string(e.Style), string(e.Resolution), e.Width, props)
	}
	for _, dep := range dependsOn {
		batch.Queue(`
			INSERT INTO graph_cache_deps (parent_id, depends_kind, depends_scope)
			VALUES ($1, $2, $3)`,
			id, string(dep.Kind), dep.Scope)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return graph.Wrap(graph.KindBackendUnavailable, err, "cache put %s", key)
	}

	if err := tx.Commit(ctx); err != nil {
		return graph.Wrap(graph.KindBackendUnavailable, err, "cache put %s", key)
	}
	return nil
}

// Invalidate removes key and every transitive dependent.
func (s *PGStore) Invalidate(ctx context.Context, key Key) (int, error) {
	return s.invalidateKeys(ctx, []Key{key})
}

// InvalidateByScope removes every entry of scope, with cascades.
func (s *PGStore) InvalidateByScope(ctx context.Context, scope string) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT kind, scope FROM graph_cache WHERE scope = $1`, scope)
	if err != nil {
		return 0, graph.Wrap(graph.KindBackendUnavailable, err, "invalidate scope %s", scope)
	}
	defer rows.Close()
	var roots []Key
	for rows.Next() {
		var kind, sc string
		if err := rows.Scan(&kind, &sc); err != nil {
			return 0, graph.Wrap(graph.KindBackendUnavailable, err, "invalidate scope %s", scope)
		}
		roots = append(roots, Key{Kind: graph.Kind(kind), Scope: sc})
	}
	if err := rows.Err(); err != nil {
		return 0, graph.Wrap(graph.KindBackendUnavailable, err, "invalidate scope %s", scope)
	}
	return s.invalidateKeys(ctx, roots)
}

// invalidateKeys deletes parents one wave at a time, following the deps
// side table. Child rows go with their parents via ON DELETE CASCADE.
func (s *PGStore) invalidateKeys(ctx context.Context, roots []Key) (int, error) {
	removed := 0
	queue := roots
	seen := make(map[Key]bool)
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if seen[key] {
			continue
		}
		seen[key] = true

		tag, err := s.pool.Exec(ctx,
			`DELETE FROM graph_cache WHERE kind = $1 AND scope = $2`,
			string(key.Kind), key.Scope)
		if err != nil {
			return removed, graph.Wrap(graph.KindBackendUnavailable, err, "invalidate %s", key)
		}
		removed += int(tag.RowsAffected())

		rows, err := s.pool.Query(ctx, `
			SELECT gc.kind, gc.scope
			FROM graph_cache gc
			JOIN graph_cache_deps d ON d.parent_id = gc.id
			WHERE d.depends_kind = $1 AND d.depends_scope = $2`,
			string(key.Kind), key.Scope)
		if err != nil {
			return removed, graph.Wrap(graph.KindBackendUnavailable, err, "dependents of %s", key)
		}
		for rows.Next() {
			var kind, scope string
			if err := rows.Scan(&kind, &scope); err != nil {
				rows.Close()
				return removed, graph.Wrap(graph.KindBackendUnavailable, err, "dependents of %s", key)
			}
			queue = append(queue, Key{Kind: graph.Kind(kind), Scope: scope})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return removed, graph.Wrap(graph.KindBackendUnavailable, err, "dependents of %s", key)
		}
	}
	return removed, nil
}

// ClearAll removes every entry.
func (s *PGStore) ClearAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM graph_cache`)
	if err != nil {
		return 0, graph.Wrap(graph.KindBackendUnavailable, err, "cache clear")
	}
	return int(tag.RowsAffected()), nil
}
