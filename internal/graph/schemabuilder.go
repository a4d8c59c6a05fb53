package graph

import (
	"context"
	"time"

	"github.com/dusk-indust/csngraph/internal/csn"
)

// Semantic color classes rendered on schema-graph edges.
const (
	edgeClassOwnership = "ownership"
	edgeClassReference = "reference"
	edgeClassWeak      = "weak"
)

// BuildSchemaGraph materializes the schema-level graph: one node per
// entity grouped by namespace, one edge per deduplicated association.
// Emission follows the schema set's deterministic entity order, then
// association declaration order, so repeated builds digest identically.
func BuildSchemaGraph(ctx context.Context, set *csn.SchemaSet, scope string) (*Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(KindCancelled, err, "schema graph build")
	}

	g := &Graph{
		Kind:         KindSchema,
		Scope:        scope,
		BuiltAt:      time.Now().UTC(),
		InputDigests: []string{set.Digest()},
	}
	for _, w := range set.Warnings() {
		g.Warnings = append(g.Warnings, w.Source+": "+w.Message)
	}

	for _, e := range set.Entities() {
		g.Nodes = append(g.Nodes, Node{
			ID:    e.FQN(),
			Label: e.Name,
			Group: e.Namespace,
			Properties: map[string]any{
				"version":      e.Version,
				"keyFields":    e.KeyFields,
				"syntheticKey": e.SyntheticKey,
				"fieldCount":   len(e.Fields),
			},
		})
	}

	seen := make(map[string]int) // (from,to,role) -> index into g.Edges
	for _, e := range set.Entities() {
		if err := ctx.Err(); err != nil {
			return nil, Wrap(KindCancelled, err, "schema graph build")
		}
		for _, a := range e.Assocs {
			target, ok := set.Get(a.Target)
			if !ok {
				continue // dropped under lenient load
			}
			edge := schemaEdge(e, target, a)
			key := edge.From + "\x00" + edge.To + "\x00" + edge.Role
			if i, dup := seen[key]; dup {
				// Duplicate associations collapse; composition wins over
				// reference when both are declared.
				if a.Ownership == csn.OwnComposition {
					g.Edges[i] = edge
				}
				continue
			}
			seen[key] = len(g.Edges)
			g.Edges = append(g.Edges, edge)
		}
	}

	return g, nil
}

// schemaEdge derives the rendered edge for one association: cardinality
// (declared or inferred from key coverage), importance width, semantic
// class, and line style.
func schemaEdge(source, target *csn.Entity, a csn.Assoc) Edge {
	card := a.Cardinality
	if card == "" {
		card = inferCardinality(source, target, a)
	}

	class := edgeClassReference
	if a.Ownership == csn.OwnComposition {
		class = edgeClassOwnership
	}
	if target.SyntheticKey {
		class = edgeClassWeak
	}

	required := sourceFieldsRequired(source, a)
	style := StyleSolid
	switch {
	case class == edgeClassWeak:
		style = StyleDotted
	case !required:
		style = StyleDashed
	}

	return Edge{
		From:        source.FQN(),
		To:          target.FQN(),
		Role:        a.Role,
		Cardinality: card,
		Style:       style,
		Width:       edgeWidth(source, a),
		Properties: map[string]any{
			"class":     class,
			"ownership": string(a.Ownership),
		},
	}
}

// inferCardinality applies the key-coverage rule when the CSN declares no
// cardinality: source fields covering the source key pull toward 1:N,
// covering the target key pull toward N:1, both give 1:1, neither N:M.
func inferCardinality(source, target *csn.Entity, a csn.Assoc) csn.Cardinality {
	coversSource := coversKey(a.SourceFields, source.KeyFields)
	coversTarget := coversKey(a.SourceFields, target.KeyFields)
	switch {
	case coversSource && coversTarget:
		return csn.CardOneToOne
	case coversSource:
		return csn.CardOneToMany
	case coversTarget:
		return csn.CardManyToOne
	default:
		return csn.CardManyToMany
	}
}

// coversKey reports whether fields contains every key field by name.
func coversKey(fields, keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	have := make(map[string]bool, len(fields))
	for _, f := range fields {
		have[f] = true
	}
	for _, k := range keys {
		if !have[k] {
			return false
		}
	}
	return true
}

// edgeWidth derives importance 1-3 from the first source field: part of
// the source key (3), non-nullable (2), neither (1).
func edgeWidth(source *csn.Entity, a csn.Assoc) int {
	if len(a.SourceFields) == 0 {
		return 1
	}
	name := a.SourceFields[0]
	if source.HasKeyField(name) {
		return 3
	}
	if f, ok := source.Field(name); ok && !f.Nullable {
		return 2
	}
	return 1
}

// sourceFieldsRequired reports whether every source field is non-nullable.
func sourceFieldsRequired(source *csn.Entity, a csn.Assoc) bool {
	for _, name := range a.SourceFields {
		f, ok := source.Field(name)
		if !ok || f.Nullable {
			return false
		}
	}
	return len(a.SourceFields) > 0
}
