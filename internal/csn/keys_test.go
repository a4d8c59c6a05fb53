package csn

import "testing"

func newTestSet(t *testing.T, entities ...*Entity) *SchemaSet {
	t.Helper()
	set, err := NewSchemaSet(entities, nil, "test-digest")
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func TestInferKeys(t *testing.T) {
	tests := []struct {
		name          string
		entity        *Entity
		wantKeys      []string
		wantSynthetic bool
	}{
		{
			name: "declared key wins",
			entity: &Entity{Name: "Supplier", Fields: []Field{
				{Name: "Supplier", Type: TypeString, Key: true},
				{Name: "SupplierID", Type: TypeString, Nullable: true},
			}},
			wantKeys: []string{"Supplier"},
		},
		{
			name: "exact short name match",
			entity: &Entity{Name: "Supplier", Fields: []Field{
				{Name: "Supplier", Type: TypeString},
				{Name: "Name", Type: TypeString, Nullable: true},
			}},
			wantKeys: []string{"Supplier"},
		},
		{
			name: "ID suffix",
			entity: &Entity{Name: "Supplier", Fields: []Field{
				{Name: "SupplierID", Type: TypeString},
				{Name: "Name", Type: TypeString, Nullable: true},
			}},
			wantKeys: []string{"SupplierID"},
		},
		{
			name: "Number suffix",
			entity: &Entity{Name: "Invoice", Fields: []Field{
				{Name: "InvoiceNumber", Type: TypeString},
			}},
			wantKeys: []string{"InvoiceNumber"},
		},
		{
			name: "first non-nullable fallback is synthetic",
			entity: &Entity{Name: "Order", Fields: []Field{
				{Name: "CreatedAt", Type: TypeTimestamp, Nullable: true},
				{Name: "Reference", Type: TypeString},
			}},
			wantKeys:      []string{"Reference"},
			wantSynthetic: true,
		},
		{
			name: "all nullable uses first field",
			entity: &Entity{Name: "Note", Fields: []Field{
				{Name: "Text", Type: TypeString, Nullable: true},
				{Name: "Author", Type: TypeString, Nullable: true},
			}},
			wantKeys:      []string{"Text"},
			wantSynthetic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newTestSet(t, tt.entity)
			InferKeys(set)

			e := set.Entities()[0]
			if len(e.KeyFields) != len(tt.wantKeys) {
				t.Fatalf("key fields = %v, want %v", e.KeyFields, tt.wantKeys)
			}
			for i, k := range tt.wantKeys {
				if e.KeyFields[i] != k {
					t.Errorf("key fields = %v, want %v", e.KeyFields, tt.wantKeys)
				}
			}
			if e.SyntheticKey != tt.wantSynthetic {
				t.Errorf("synthetic = %v, want %v", e.SyntheticKey, tt.wantSynthetic)
			}
			for _, k := range e.KeyFields {
				f, _ := e.Field(k)
				if f.Nullable {
					t.Errorf("key field %q is nullable", k)
				}
			}
		})
	}
}

func TestInferKeys_NullableDeclaredKeyForced(t *testing.T) {
	e := &Entity{Name: "Supplier", Fields: []Field{
		{Name: "Supplier", Type: TypeString, Key: true, Nullable: true},
	}}
	set := newTestSet(t, e)
	InferKeys(set)

	f, _ := e.Field("Supplier")
	if f.Nullable {
		t.Error("declared key should be forced non-nullable")
	}
	if len(set.Warnings()) == 0 {
		t.Error("expected a warning for the nullable key")
	}
}
