package graph

import (
	"context"
	"fmt"

	"github.com/dusk-indust/csngraph/internal/csn"
)

// BuildHybridGraph builds the csn-enhanced view: the schema graph's nodes
// and edges, with each entity node enriched by instance statistics from
// the table reader (record count over the scanned window). Entities
// without a matching table report a count of zero.
func BuildHybridGraph(ctx context.Context, set *csn.SchemaSet, reader TableReader, opts DataBuildOptions, scope string) (*Graph, error) {
	g, err := BuildSchemaGraph(ctx, set, scope)
	if err != nil {
		return nil, err
	}
	g.Kind = KindHybrid

	if pinner, ok := reader.(connPinner); ok {
		if err := pinner.Acquire(ctx); err != nil {
			return nil, err
		}
		defer pinner.Release()
	}

	tables, err := reader.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	byFQN := make(map[string]*tableScan)
	for _, scan := range discoverTables(set, tables, DataBuildOptions{}, g) {
		if scan.entity != nil {
			byFQN[scan.entity.FQN()] = scan
		}
	}

	for i := range g.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, Wrap(KindCancelled, err, "hybrid graph build")
		}
		node := &g.Nodes[i]
		scan, ok := byFQN[node.ID]
		if !ok {
			node.Properties["recordCount"] = 0
			continue
		}
		scanTable(ctx, reader, scan, opts.MaxRecordsPerEntity)
		if scan.err != nil {
			g.Warnings = append(g.Warnings, fmt.Sprintf("%s: table read failed: %v", scan.table, scan.err))
			node.Properties["recordCount"] = 0
			continue
		}
		node.Properties["recordCount"] = len(scan.rows)
		g.InputDigests = append(g.InputDigests, scan.digest)
	}

	return g, nil
}
