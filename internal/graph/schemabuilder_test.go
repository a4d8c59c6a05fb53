package graph

import (
	"context"
	"testing"

	"github.com/dusk-indust/csngraph/internal/csn"
)

func TestBuildSchemaGraph(t *testing.T) {
	set := procurementSet(t)
	g, err := BuildSchemaGraph(context.Background(), set, "default")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if g.Kind != KindSchema || g.Scope != "default" {
		t.Errorf("kind/scope = %s/%s", g.Kind, g.Scope)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("node count = %d, want 2", len(g.Nodes))
	}
	// Entity order: (namespace, name) ascending.
	if g.Nodes[0].ID != "test.PurchaseOrder" || g.Nodes[1].ID != "test.Supplier" {
		t.Errorf("node order = %v", nodeIDs(g))
	}
	if g.Nodes[1].Label != "Supplier" || g.Nodes[1].Group != "test" {
		t.Errorf("supplier node = %+v", g.Nodes[1])
	}

	if len(g.Edges) != 1 {
		t.Fatalf("edge count = %d, want 1", len(g.Edges))
	}
	e := g.Edges[0]
	if e.From != "test.PurchaseOrder" || e.To != "test.Supplier" || e.Role != "Supplier" {
		t.Errorf("edge = %+v", e)
	}
	// Source field covers the target key but not the source key: N:1.
	if e.Cardinality != csn.CardManyToOne {
		t.Errorf("cardinality = %s, want N:1", e.Cardinality)
	}
	// Nullable source field: optional, dashed, width 1.
	if e.Style != StyleDashed || e.Width != 1 {
		t.Errorf("style/width = %s/%d, want dashed/1", e.Style, e.Width)
	}

	if err := g.Validate(); err != nil {
		t.Errorf("graph invalid: %v", err)
	}
}

func TestBuildSchemaGraph_Empty(t *testing.T) {
	set, err := csn.NewSchemaSet(nil, nil, "empty")
	if err != nil {
		t.Fatal(err)
	}
	g, err := BuildSchemaGraph(context.Background(), set, "default")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Errorf("empty set produced %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
}

func TestBuildSchemaGraph_CardinalityInference(t *testing.T) {
	tests := []struct {
		name         string
		sourceFields []string
		want         csn.Cardinality
	}{
		{"covers target key only", []string{"Ref"}, csn.CardManyToMany},
		{"covers source key", []string{"Header"}, csn.CardOneToMany},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := &csn.Entity{
				Namespace: "test", Name: "Header", Version: "1.0",
				Fields:    []csn.Field{{Name: "Header", Type: csn.TypeString, Key: true}},
				KeyFields: []string{"Header"},
			}
			item := &csn.Entity{
				Namespace: "test", Name: "Item", Version: "1.0",
				Fields: []csn.Field{
					{Name: "Item", Type: csn.TypeString, Key: true},
					{Name: "Ref", Type: csn.TypeString, Nullable: true},
				},
				KeyFields: []string{"Item"},
			}
			header.Assocs = []csn.Assoc{{
				Source: "test.Header", Target: "test.Item",
				Role: "items", SourceFields: tt.sourceFields,
				Ownership: csn.OwnComposition,
			}}

			set, err := csn.NewSchemaSet([]*csn.Entity{header, item}, nil, "d")
			if err != nil {
				t.Fatal(err)
			}
			g, err := BuildSchemaGraph(context.Background(), set, "default")
			if err != nil {
				t.Fatal(err)
			}
			if len(g.Edges) != 1 {
				t.Fatalf("edge count = %d", len(g.Edges))
			}
			if g.Edges[0].Cardinality != tt.want {
				t.Errorf("cardinality = %s, want %s", g.Edges[0].Cardinality, tt.want)
			}
		})
	}
}

func TestBuildSchemaGraph_CompositionWinsOnDuplicate(t *testing.T) {
	target := &csn.Entity{
		Namespace: "test", Name: "Item", Version: "1.0",
		Fields:    []csn.Field{{Name: "Item", Type: csn.TypeString, Key: true}},
		KeyFields: []string{"Item"},
	}
	source := &csn.Entity{
		Namespace: "test", Name: "Header", Version: "1.0",
		Fields: []csn.Field{
			{Name: "Header", Type: csn.TypeString, Key: true},
			{Name: "Item", Type: csn.TypeString},
		},
		KeyFields: []string{"Header"},
		Assocs: []csn.Assoc{
			{Source: "test.Header", Target: "test.Item", Role: "item", SourceFields: []string{"Item"}, Ownership: csn.OwnReference},
			{Source: "test.Header", Target: "test.Item", Role: "item", SourceFields: []string{"Item"}, Ownership: csn.OwnComposition},
		},
	}

	set, err := csn.NewSchemaSet([]*csn.Entity{source, target}, nil, "d")
	if err != nil {
		t.Fatal(err)
	}
	g, err := BuildSchemaGraph(context.Background(), set, "default")
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edge count = %d, want 1 after dedupe", len(g.Edges))
	}
	if got := g.Edges[0].Properties["class"]; got != "ownership" {
		t.Errorf("class = %v, want ownership", got)
	}
}

func TestBuildSchemaGraph_WeakEdgeForSyntheticKey(t *testing.T) {
	target := &csn.Entity{
		Namespace: "test", Name: "Note", Version: "1.0",
		Fields:       []csn.Field{{Name: "Text", Type: csn.TypeString, Key: true}},
		KeyFields:    []string{"Text"},
		SyntheticKey: true,
	}
	source := &csn.Entity{
		Namespace: "test", Name: "Doc", Version: "1.0",
		Fields: []csn.Field{
			{Name: "Doc", Type: csn.TypeString, Key: true},
			{Name: "Note", Type: csn.TypeString},
		},
		KeyFields: []string{"Doc"},
		Assocs: []csn.Assoc{{
			Source: "test.Doc", Target: "test.Note",
			Role: "note", SourceFields: []string{"Note"}, Ownership: csn.OwnReference,
		}},
	}

	set, err := csn.NewSchemaSet([]*csn.Entity{source, target}, nil, "d")
	if err != nil {
		t.Fatal(err)
	}
	g, err := BuildSchemaGraph(context.Background(), set, "default")
	if err != nil {
		t.Fatal(err)
	}
	e := g.Edges[0]
	if e.Properties["class"] != "weak" || e.Style != StyleDotted {
		t.Errorf("class/style = %v/%s, want weak/dotted", e.Properties["class"], e.Style)
	}
	// Non-nullable non-key source field: width 2.
	if e.Width != 2 {
		t.Errorf("width = %d, want 2", e.Width)
	}
}
