package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBuildDataGraph_DeclaredFK(t *testing.T) {
	set := procurementSet(t)
	reader := procurementReader("Supplier")

	g, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{}, "default")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	want := []string{
		"PurchaseOrder:P1", "PurchaseOrder:P2", "PurchaseOrder:P3",
		"Supplier:S1", "Supplier:S2",
	}
	got := nodeIDs(g)
	if len(got) != len(want) {
		t.Fatalf("nodes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("nodes = %v, want %v", got, want)
		}
	}

	if len(g.Edges) != 3 {
		t.Fatalf("edge count = %d, want 3", len(g.Edges))
	}
	wantEdges := [][2]string{
		{"PurchaseOrder:P1", "Supplier:S1"},
		{"PurchaseOrder:P2", "Supplier:S2"},
		{"PurchaseOrder:P3", "Supplier:S1"},
	}
	for i, we := range wantEdges {
		e := g.Edges[i]
		if e.From != we[0] || e.To != we[1] {
			t.Errorf("edge[%d] = %s->%s, want %s->%s", i, e.From, e.To, we[0], we[1])
		}
		if e.Resolution != ResolutionDeclared {
			t.Errorf("edge[%d] resolution = %s, want declared", i, e.Resolution)
		}
		if e.Role != "Supplier" {
			t.Errorf("edge[%d] role = %q", i, e.Role)
		}
	}

	// Display labels prefer a Name field.
	for _, n := range g.Nodes {
		if n.ID == "Supplier:S1" && n.Label != "Acme Metals" {
			t.Errorf("label = %q, want Acme Metals", n.Label)
		}
	}

	if err := g.Validate(); err != nil {
		t.Errorf("graph invalid: %v", err)
	}
}

func TestBuildDataGraph_HeuristicFK(t *testing.T) {
	set := procurementHeuristicSet(t)
	reader := procurementReader("SupplierID")

	g, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{}, "default")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if len(g.Edges) != 3 {
		t.Fatalf("edge count = %d, want 3", len(g.Edges))
	}
	for _, e := range g.Edges {
		// Exact stem match ("Supplier" strips to "supplier"): certain.
		if e.Resolution != ResolutionCertain {
			t.Errorf("resolution = %s, want inferred-certain", e.Resolution)
		}
		if e.Role != "SupplierID" {
			t.Errorf("role = %q, want SupplierID", e.Role)
		}
		if e.Style != StyleDashed {
			t.Errorf("style = %s, want dashed", e.Style)
		}
	}
}

func TestBuildDataGraph_DanglingFKDropped(t *testing.T) {
	set := procurementSet(t)
	reader := NewMemTableReader()
	reader.AddTable("Supplier",
		[]Column{{Name: "Supplier", Type: "text", Key: true}},
		[]Row{{"Supplier": "S1"}})
	reader.AddTable("PurchaseOrder",
		[]Column{{Name: "PurchaseOrder", Type: "text", Key: true}, {Name: "Supplier", Type: "text", Nullable: true}},
		[]Row{{"PurchaseOrder": "P4", "Supplier": "SX"}})

	g, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{}, "default")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if !hasNode(g, "PurchaseOrder:P4") {
		t.Error("node PurchaseOrder:P4 missing")
	}
	if len(g.Edges) != 0 {
		t.Errorf("edges = %v, want none for the unresolvable value", g.Edges)
	}
}

func TestBuildDataGraph_StrictSuppressesHeuristicOnly(t *testing.T) {
	// "SupplID" strips to stem "suppl", which is only a substring of
	// "supplier": a heuristic match, suppressed under strict mode.
	set := procurementHeuristicSet(t)
	reader := procurementReader("SupplID")

	strict, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{InferenceMode: InferStrict}, "default")
	if err != nil {
		t.Fatal(err)
	}
	if len(strict.Edges) != 0 {
		t.Errorf("strict edges = %d, want 0", len(strict.Edges))
	}

	heuristic, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{InferenceMode: InferHeuristic}, "default")
	if err != nil {
		t.Fatal(err)
	}
	if len(heuristic.Edges) != 3 {
		t.Fatalf("heuristic edges = %d, want 3", len(heuristic.Edges))
	}
	for _, e := range heuristic.Edges {
		if e.Resolution != ResolutionHeuristic || e.Style != StyleDotted {
			t.Errorf("edge = %+v, want inferred-heuristic/dotted", e)
		}
	}
}

func TestBuildDataGraph_FloatingTables(t *testing.T) {
	set := procurementSet(t)
	reader := procurementReader("Supplier")
	reader.AddTable("AuditLog",
		[]Column{{Name: "ID", Type: "text", Key: true}},
		[]Row{{"ID": "A1"}})

	kept, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{KeepFloatingTables: true}, "default")
	if err != nil {
		t.Fatal(err)
	}
	if !hasNode(kept, "AuditLog:A1") {
		t.Errorf("floating node missing: %v", nodeIDs(kept))
	}
	for _, n := range kept.Nodes {
		if n.ID == "AuditLog:A1" && n.Group != "floating" {
			t.Errorf("floating group = %q", n.Group)
		}
	}

	dropped, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{}, "default")
	if err != nil {
		t.Fatal(err)
	}
	if hasNode(dropped, "AuditLog:A1") {
		t.Error("unmatched table retained without KeepFloatingTables")
	}
}

func TestBuildDataGraph_MaxRecordsPerEntity(t *testing.T) {
	set := procurementSet(t)
	reader := procurementReader("Supplier")

	g, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{MaxRecordsPerEntity: 1}, "default")
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, n := range g.Nodes {
		if strings.HasPrefix(n.ID, "PurchaseOrder:") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("purchase order nodes = %d, want 1", count)
	}
}

// failingReader wraps a TableReader and fails reads of one table.
type failingReader struct {
	*MemTableReader
	failTable string
}

func (r *failingReader) ReadRows(ctx context.Context, table string, limit, offset int) ([]Row, error) {
	if table == r.failTable {
		return nil, errors.New("connection reset")
	}
	return r.MemTableReader.ReadRows(ctx, table, limit, offset)
}

func TestBuildDataGraph_ReadFailureDegrades(t *testing.T) {
	set := procurementSet(t)
	reader := &failingReader{MemTableReader: procurementReader("Supplier"), failTable: "PurchaseOrder"}

	g, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{}, "default")
	if err != nil {
		t.Fatalf("build aborted on single-table failure: %v", err)
	}
	if !hasNode(g, "Supplier:S1") {
		t.Error("healthy table contributed no nodes")
	}
	if hasNode(g, "PurchaseOrder:P1") {
		t.Error("failed table contributed nodes")
	}
	if len(g.Warnings) == 0 {
		t.Error("expected a warning for the failed table")
	}
}

func TestBuildDataGraph_Deterministic(t *testing.T) {
	set := procurementSet(t)
	reader := procurementReader("Supplier")

	first, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{}, "default")
	if err != nil {
		t.Fatal(err)
	}
	second, err := BuildDataGraph(context.Background(), set, reader, DataBuildOptions{}, "default")
	if err != nil {
		t.Fatal(err)
	}

	if first.Digest() != second.Digest() {
		t.Errorf("content digests differ: %s vs %s", first.Digest(), second.Digest())
	}
	if first.InputsDigest() != second.InputsDigest() {
		t.Errorf("input digests differ: %s vs %s", first.InputsDigest(), second.InputsDigest())
	}
}

func TestBuildDataGraph_Cancelled(t *testing.T) {
	set := procurementSet(t)
	reader := procurementReader("Supplier")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildDataGraph(ctx, set, reader, DataBuildOptions{}, "default")
	if !IsKind(err, KindCancelled) {
		t.Errorf("err = %v, want Cancelled", err)
	}
}

func TestValueString_DecimalNormalization(t *testing.T) {
	if got := valueString("1.50", "decimal(15,2)"); got != "1.5" {
		t.Errorf("valueString(1.50) = %q, want 1.5", got)
	}
	if got := valueString("1.5", "numeric"); got != "1.5" {
		t.Errorf("valueString(1.5) = %q, want 1.5", got)
	}
	if got := valueString("abc", "text"); got != "abc" {
		t.Errorf("valueString(abc) = %q", got)
	}
}
