package graph

import (
	"testing"

	"github.com/dusk-indust/csngraph/internal/csn"
)

// procurementSet builds the two-entity schema used across builder and
// engine tests: Supplier, and PurchaseOrder with a declared association
// to Supplier.
func procurementSet(t *testing.T) *csn.SchemaSet {
	t.Helper()
	supplier := &csn.Entity{
		Namespace: "test", Name: "Supplier", Version: "1.0",
		Fields: []csn.Field{
			{Name: "Supplier", Type: csn.TypeString, Key: true},
			{Name: "Name", Type: csn.TypeString, Nullable: true},
		},
		KeyFields: []string{"Supplier"},
	}
	po := &csn.Entity{
		Namespace: "test", Name: "PurchaseOrder", Version: "1.0",
		Fields: []csn.Field{
			{Name: "PurchaseOrder", Type: csn.TypeString, Key: true},
			{Name: "Supplier", Type: csn.TypeString, Nullable: true},
		},
		KeyFields: []string{"PurchaseOrder"},
		Assocs: []csn.Assoc{{
			Source: "test.PurchaseOrder", Target: "test.Supplier",
			Role: "Supplier", SourceFields: []string{"Supplier"},
			TargetFields: []string{"Supplier"}, Ownership: csn.OwnReference,
		}},
	}
	set, err := csn.NewSchemaSet([]*csn.Entity{supplier, po}, nil, "schema-digest")
	if err != nil {
		t.Fatal(err)
	}
	return set
}

// procurementHeuristicSet is the same schema without the declared
// association; PurchaseOrder instead carries a SupplierID column.
func procurementHeuristicSet(t *testing.T) *csn.SchemaSet {
	t.Helper()
	supplier := &csn.Entity{
		Namespace: "test", Name: "Supplier", Version: "1.0",
		Fields: []csn.Field{
			{Name: "Supplier", Type: csn.TypeString, Key: true},
		},
		KeyFields: []string{"Supplier"},
	}
	po := &csn.Entity{
		Namespace: "test", Name: "PurchaseOrder", Version: "1.0",
		Fields: []csn.Field{
			{Name: "PurchaseOrder", Type: csn.TypeString, Key: true},
			{Name: "SupplierID", Type: csn.TypeString, Nullable: true},
		},
		KeyFields: []string{"PurchaseOrder"},
	}
	set, err := csn.NewSchemaSet([]*csn.Entity{supplier, po}, nil, "schema-digest")
	if err != nil {
		t.Fatal(err)
	}
	return set
}

// procurementReader returns a MemTableReader with S1's instance data:
// suppliers S1 and S2, purchase orders P1->S1, P2->S2, P3->S1. fkColumn
// names the purchase order column holding the supplier reference.
func procurementReader(fkColumn string) *MemTableReader {
	r := NewMemTableReader()
	r.AddTable("Supplier",
		[]Column{{Name: "Supplier", Type: "text", Key: true}, {Name: "Name", Type: "text", Nullable: true}},
		[]Row{
			{"Supplier": "S1", "Name": "Acme Metals"},
			{"Supplier": "S2", "Name": "Globex Parts"},
		})
	r.AddTable("PurchaseOrder",
		[]Column{{Name: "PurchaseOrder", Type: "text", Key: true}, {Name: fkColumn, Type: "text", Nullable: true}},
		[]Row{
			{"PurchaseOrder": "P1", fkColumn: "S1"},
			{"PurchaseOrder": "P2", fkColumn: "S2"},
			{"PurchaseOrder": "P3", fkColumn: "S1"},
		})
	return r
}

func nodeIDs(g *Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func hasNode(g *Graph, id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func findEdge(g *Graph, from, to string) (Edge, bool) {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}
