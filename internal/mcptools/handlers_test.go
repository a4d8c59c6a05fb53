package mcptools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/csngraph/internal/cache"
	"github.com/dusk-indust/csngraph/internal/csn"
	"github.com/dusk-indust/csngraph/internal/facade"
	"github.com/dusk-indust/csngraph/internal/graph"
)

const procurementCSN = `{
  "definitions": {
    "test.Supplier": {
      "kind": "entity",
      "elements": {
        "Supplier": {"type": "cds.String", "key": true},
        "Name": {"type": "cds.String"}
      }
    },
    "test.PurchaseOrder": {
      "kind": "entity",
      "elements": {
        "PurchaseOrder": {"type": "cds.String", "key": true},
        "Supplier": {"type": "cds.Association", "target": "test.Supplier"}
      }
    }
  }
}`

// newTestService wires a GraphService over a temp-dir schema file, an
// in-memory table reader, and a MemStore-backed facade.
func newTestService(t *testing.T) *GraphService {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procurement.json")
	require.NoError(t, os.WriteFile(path, []byte(procurementCSN), 0o644))

	reader := graph.NewMemTableReader()
	reader.AddTable("Supplier",
		[]graph.Column{{Name: "Supplier", Type: "text", Key: true}, {Name: "Name", Type: "text", Nullable: true}},
		[]graph.Row{
			{"Supplier": "S1", "Name": "Acme Metals"},
			{"Supplier": "S2", "Name": "Globex Parts"},
		})
	reader.AddTable("PurchaseOrder",
		[]graph.Column{{Name: "PurchaseOrder", Type: "text", Key: true}, {Name: "Supplier", Type: "text", Nullable: true}},
		[]graph.Row{
			{"PurchaseOrder": "P1", "Supplier": "S1"},
			{"PurchaseOrder": "P2", "Supplier": "S2"},
			{"PurchaseOrder": "P3", "Supplier": "S1"},
		})

	f := facade.New(csn.NewLoader(csn.Options{}), reader, cache.NewMemStore(), facade.Options{
		SchemaSource: path,
	})
	t.Cleanup(func() { _ = f.Close() })
	return NewGraphService(f)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want graph.Kind
		ok   bool
	}{
		{"schema", graph.KindSchema, true},
		{"data", graph.KindData, true},
		{"hybrid", graph.KindHybrid, true},
		{"", "", false},
		{"Schema", "", false},
		{"full", "", false},
	}
	for _, tt := range tests {
		kind, err := parseKind(tt.in)
		if tt.ok {
			require.NoError(t, err, "parseKind(%q)", tt.in)
			assert.Equal(t, tt.want, kind)
		} else {
			assert.Error(t, err, "parseKind(%q)", tt.in)
		}
	}
}

func TestParseDirection(t *testing.T) {
	dir, err := parseDirection("", "both")
	require.NoError(t, err)
	assert.Equal(t, graph.DirBoth, dir, "empty input falls back")

	dir, err = parseDirection("in", "both")
	require.NoError(t, err)
	assert.Equal(t, graph.DirIn, dir)

	_, err = parseDirection("sideways", "both")
	assert.Error(t, err)
}

func TestScopeOrDefault(t *testing.T) {
	assert.Equal(t, "default", scopeOrDefault(""))
	assert.Equal(t, "finance", scopeOrDefault("finance"))
}

func TestLoadGraphTool(t *testing.T) {
	t.Run("builds and returns the export", func(t *testing.T) {
		svc := newTestService(t)

		_, out, err := svc.LoadGraph(context.Background(), nil, LoadGraphInput{Kind: "data"})
		require.NoError(t, err)
		require.NotNil(t, out.Graph)
		assert.Equal(t, "data", out.Graph.Kind)
		assert.Equal(t, "default", out.Graph.Scope)
		assert.Equal(t, 5, out.Graph.NodeCount)
		assert.Equal(t, 3, out.Graph.EdgeCount)
	})

	t.Run("unknown kind returns error", func(t *testing.T) {
		svc := newTestService(t)

		_, _, err := svc.LoadGraph(context.Background(), nil, LoadGraphInput{Kind: "full"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown graph kind")
	})
}

func TestGetNeighborsTool(t *testing.T) {
	t.Run("defaults to both directions", func(t *testing.T) {
		svc := newTestService(t)

		_, out, err := svc.GetNeighbors(context.Background(), nil, GetNeighborsInput{
			Kind: "data", NodeID: "Supplier:S1",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Total)
		require.Len(t, out.Neighbors, 2)
		assert.Equal(t, "PurchaseOrder:P1", out.Neighbors[0].ID)
		assert.Equal(t, "PurchaseOrder:P3", out.Neighbors[1].ID)
	})

	t.Run("empty nodeId returns error", func(t *testing.T) {
		svc := newTestService(t)

		_, _, err := svc.GetNeighbors(context.Background(), nil, GetNeighborsInput{Kind: "data"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nodeId is required")
	})
}

func TestShortestPathTool(t *testing.T) {
	t.Run("finds the path", func(t *testing.T) {
		svc := newTestService(t)

		_, out, err := svc.ShortestPath(context.Background(), nil, ShortestPathInput{
			Kind: "data", From: "PurchaseOrder:P1", To: "PurchaseOrder:P3",
		})
		require.NoError(t, err)
		assert.True(t, out.Found)
		require.NotNil(t, out.Path)
		assert.Equal(t, 2, out.Path.Length)
		assert.Equal(t, "Supplier:S1", out.Path.Nodes[1].ID)
	})

	t.Run("missing endpoints return error", func(t *testing.T) {
		svc := newTestService(t)

		_, _, err := svc.ShortestPath(context.Background(), nil, ShortestPathInput{
			Kind: "data", From: "PurchaseOrder:P1",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "from and to are required")
	})
}

func TestTraverseTool(t *testing.T) {
	svc := newTestService(t)

	_, out, err := svc.Traverse(context.Background(), nil, TraverseInput{
		Kind: "data", From: "PurchaseOrder:P1", Direction: "both", Depth: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Nodes, 2)
	assert.Equal(t, "Supplier:S1", out.Nodes[0].ID)
	assert.Equal(t, "PurchaseOrder:P3", out.Nodes[1].ID)
}

func TestSubgraphTool(t *testing.T) {
	t.Run("induced edges", func(t *testing.T) {
		svc := newTestService(t)

		_, out, err := svc.Subgraph(context.Background(), nil, SubgraphInput{
			Kind:         "data",
			NodeIDs:      []string{"PurchaseOrder:P1", "Supplier:S1", "PurchaseOrder:P2"},
			IncludeEdges: true,
		})
		require.NoError(t, err)
		require.NotNil(t, out.Graph)
		assert.Equal(t, 3, out.Graph.NodeCount)
		assert.Equal(t, 1, out.Graph.EdgeCount)
	})

	t.Run("empty nodeIds returns error", func(t *testing.T) {
		svc := newTestService(t)

		_, _, err := svc.Subgraph(context.Background(), nil, SubgraphInput{Kind: "data"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nodeIds is required")
	})
}

func TestGraphStatusAndClearCacheTools(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, out, err := svc.GraphStatus(ctx, nil, GraphStatusInput{Kind: "data"})
	require.NoError(t, err)
	assert.False(t, out.Status.Cached, "status must not trigger a build")

	_, _, err = svc.LoadGraph(ctx, nil, LoadGraphInput{Kind: "data"})
	require.NoError(t, err)

	_, out, err = svc.GraphStatus(ctx, nil, GraphStatusInput{Kind: "data"})
	require.NoError(t, err)
	assert.True(t, out.Status.Cached)
	assert.Equal(t, 5, out.Status.NodeCount)

	_, cleared, err := svc.ClearCache(ctx, nil, ClearCacheInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, cleared.Removed)

	_, out, err = svc.GraphStatus(ctx, nil, GraphStatusInput{Kind: "data"})
	require.NoError(t, err)
	assert.False(t, out.Status.Cached)
}

func TestRebuildGraphTool(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.LoadGraph(ctx, nil, LoadGraphInput{Kind: "data"})
	require.NoError(t, err)

	_, out, err := svc.RebuildGraph(ctx, nil, RebuildGraphInput{Kind: "data"})
	require.NoError(t, err)
	require.NotNil(t, out.Graph)
	assert.Equal(t, 5, out.Graph.NodeCount)
}

func TestExportGraphTool(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		svc := newTestService(t)

		_, out, err := svc.ExportGraph(context.Background(), nil, ExportGraphInput{Kind: "data"})
		require.NoError(t, err)
		assert.Equal(t, "json", out.Format, "format defaults to json")
		assert.Contains(t, out.Content, `"kind": "data"`)
	})

	t.Run("mermaid", func(t *testing.T) {
		svc := newTestService(t)

		_, out, err := svc.ExportGraph(context.Background(), nil, ExportGraphInput{Kind: "data", Format: "mermaid"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out.Content, "graph TD\n"), "content = %q", out.Content)
	})

	t.Run("unknown format returns error", func(t *testing.T) {
		svc := newTestService(t)

		_, _, err := svc.ExportGraph(context.Background(), nil, ExportGraphInput{Kind: "data", Format: "dot"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown format")
	})
}
