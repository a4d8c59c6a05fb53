package facade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/csngraph/internal/cache"
	"github.com/dusk-indust/csngraph/internal/csn"
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

// countingStore wraps a Store and counts Put calls, so tests can verify
// how many builds actually ran.
type countingStore struct {
	cache.Store
	puts atomic.Int64
}

func (s *countingStore) Put(ctx context.Context, key cache.Key, g *graph.Graph, inputsDigest string, dependsOn []cache.Key) error {
	s.puts.Add(1)
	return s.Store.Put(ctx, key, g, inputsDigest, dependsOn)
}

// slowReader delays row reads so concurrent loads overlap one build.
type slowReader struct {
	graph.TableReader
	delay time.Duration
}

func (r *slowReader) ReadRows(ctx context.Context, table string, limit, offset int) ([]graph.Row, error) {
	time.Sleep(r.delay)
	return r.TableReader.ReadRows(ctx, table, limit, offset)
}

func testReader() *graph.MemTableReader {
	r := graph.NewMemTableReader()
	r.AddTable("Supplier",
		[]graph.Column{{Name: "Supplier", Type: "text", Key: true}, {Name: "Name", Type: "text", Nullable: true}},
		[]graph.Row{
			{"Supplier": "S1", "Name": "Acme Metals"},
			{"Supplier": "S2", "Name": "Globex Parts"},
		})
	r.AddTable("PurchaseOrder",
		[]graph.Column{{Name: "PurchaseOrder", Type: "text", Key: true}, {Name: "Supplier", Type: "text", Nullable: true}},
		[]graph.Row{
			{"PurchaseOrder": "P1", "Supplier": "S1"},
			{"PurchaseOrder": "P2", "Supplier": "S2"},
			{"PurchaseOrder": "P3", "Supplier": "S1"},
		})
	return r
}

// newTestFacade wires a facade over a temp-dir schema file, the in-memory
// table reader, and a counting MemStore.
func newTestFacade(t *testing.T, reader graph.TableReader) (*Facade, *countingStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procurement.json")
	require.NoError(t, os.WriteFile(path, []byte(procurementCSN), 0o644))

	store := &countingStore{Store: cache.NewMemStore()}
	f := New(csn.NewLoader(csn.Options{}), reader, store, Options{
		SchemaSource: path,
	})
	t.Cleanup(func() { _ = f.Close() })
	return f, store
}

func TestFacade_LoadGraph_CacheHit(t *testing.T) {
	f, store := newTestFacade(t, testReader())
	ctx := context.Background()

	first, err := f.LoadGraph(ctx, graph.KindData, "default")
	require.NoError(t, err)
	assert.False(t, first.CacheUsed)
	assert.Len(t, first.Nodes, 5)
	assert.Len(t, first.Edges, 3)

	start := time.Now()
	second, err := f.LoadGraph(ctx, graph.KindData, "default")
	require.NoError(t, err)

	assert.True(t, second.CacheUsed, "second load must be served from cache")
	assert.Equal(t, first.InputsDigest(), second.InputsDigest())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), store.puts.Load(), "second load must not rebuild")
}

func TestFacade_AtMostOneBuild(t *testing.T) {
	reader := &slowReader{TableReader: testReader(), delay: 100 * time.Millisecond}
	f, store := newTestFacade(t, reader)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.LoadGraph(ctx, graph.KindData, "default")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), store.puts.Load(), "concurrent misses must share one build")
}

func TestFacade_CascadeInvalidation(t *testing.T) {
	f, _ := newTestFacade(t, testReader())
	ctx := context.Background()

	_, err := f.LoadGraph(ctx, graph.KindSchema, "default")
	require.NoError(t, err)
	_, err = f.LoadGraph(ctx, graph.KindData, "default")
	require.NoError(t, err)

	removed, err := f.Invalidate(ctx, graph.KindSchema, "default")
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "data entry depends on schema and must cascade")

	st, err := f.GraphStatus(ctx, graph.KindData, "default")
	require.NoError(t, err)
	assert.False(t, st.Cached)
}

func TestFacade_Rebuild(t *testing.T) {
	f, store := newTestFacade(t, testReader())
	ctx := context.Background()

	_, err := f.LoadGraph(ctx, graph.KindData, "default")
	require.NoError(t, err)

	g, err := f.Rebuild(ctx, graph.KindData, "default")
	require.NoError(t, err)
	assert.False(t, g.CacheUsed)
	assert.Equal(t, int64(2), store.puts.Load(), "rebuild must run the builder again")
}

func TestFacade_Status(t *testing.T) {
	f, _ := newTestFacade(t, testReader())
	ctx := context.Background()

	st, err := f.GraphStatus(ctx, graph.KindData, "default")
	require.NoError(t, err)
	assert.False(t, st.Cached, "status must not trigger a build")

	_, err = f.LoadGraph(ctx, graph.KindData, "default")
	require.NoError(t, err)

	st, err = f.GraphStatus(ctx, graph.KindData, "default")
	require.NoError(t, err)
	assert.True(t, st.Cached)
	assert.Equal(t, 5, st.NodeCount)
	assert.Equal(t, 3, st.EdgeCount)
	assert.NotEmpty(t, st.InputsDigest)
}

func TestFacade_Query(t *testing.T) {
	f, _ := newTestFacade(t, testReader())
	ctx := context.Background()

	path, err := f.ShortestPath(ctx, graph.KindData, "default", "PurchaseOrder:P1", "PurchaseOrder:P3", 3)
	require.NoError(t, err)
	require.NotNil(t, path)
	assert.Equal(t, 2, path.Length)
	assert.Equal(t, "Supplier:S1", path.Nodes[1].ID)

	neighbors, err := f.GetNeighbors(ctx, graph.KindData, "default", "Supplier:S1", graph.DirIn, "", 0)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "PurchaseOrder:P1", neighbors[0].ID)
}

// corruptingStore returns CacheCorrupted on the first Get for a key that
// has an entry, then behaves normally.
type corruptingStore struct {
	cache.Store
	tripped atomic.Bool
}

func (s *corruptingStore) Get(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	entry, err := s.Store.Get(ctx, key)
	if err != nil || entry == nil {
		return entry, err
	}
	if s.tripped.CompareAndSwap(false, true) {
		return nil, graph.Errf(graph.KindCacheCorrupted, "checksum mismatch for %s", key)
	}
	return entry, nil
}

func TestFacade_CorruptedEntryRebuilt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procurement.json")
	require.NoError(t, os.WriteFile(path, []byte(procurementCSN), 0o644))

	store := &corruptingStore{Store: cache.NewMemStore()}
	f := New(csn.NewLoader(csn.Options{}), testReader(), store, Options{SchemaSource: path})
	t.Cleanup(func() { _ = f.Close() })
	ctx := context.Background()

	_, err := f.LoadGraph(ctx, graph.KindData, "default")
	require.NoError(t, err)

	// Next load trips the corruption path once; the facade invalidates and
	// rebuilds transparently.
	g, err := f.LoadGraph(ctx, graph.KindData, "default")
	require.NoError(t, err)
	assert.False(t, g.CacheUsed, "corrupted entry must be rebuilt, not served")
}

func TestFacade_SchemaLoadFailureIsInputError(t *testing.T) {
	store := &countingStore{Store: cache.NewMemStore()}
	f := New(csn.NewLoader(csn.Options{}), testReader(), store, Options{
		SchemaSource: filepath.Join(t.TempDir(), "missing.json"),
	})
	t.Cleanup(func() { _ = f.Close() })

	_, err := f.LoadGraph(context.Background(), graph.KindData, "default")
	require.Error(t, err)
	assert.True(t, graph.IsKind(err, graph.KindInput), "err = %v", err)
	assert.Zero(t, store.puts.Load())
}

func TestFacade_RegistryProductSource(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(procurementCSN)) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(csn.NewLoader(csn.Options{}), testReader(), cache.NewMemStore(), Options{
		RegistryURL: srv.URL,
		Product:     "procurement",
	})
	t.Cleanup(func() { _ = f.Close() })

	g, err := f.LoadGraph(context.Background(), graph.KindData, "default")
	require.NoError(t, err)
	assert.Equal(t, "/products/procurement/csn", gotPath)
	assert.Len(t, g.Nodes, 5)
	assert.Len(t, g.Edges, 3)
}

func TestFacade_DataGraphWithoutReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procurement.json")
	require.NoError(t, os.WriteFile(path, []byte(procurementCSN), 0o644))

	f := New(csn.NewLoader(csn.Options{}), nil, cache.NewMemStore(), Options{SchemaSource: path})
	t.Cleanup(func() { _ = f.Close() })

	_, err := f.LoadGraph(context.Background(), graph.KindData, "default")
	require.Error(t, err)
	assert.True(t, graph.IsKind(err, graph.KindInput), "err = %v", err)

	// Schema graphs need no reader.
	g, err := f.LoadGraph(context.Background(), graph.KindSchema, "default")
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
}
