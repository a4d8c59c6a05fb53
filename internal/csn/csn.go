// Package csn loads CSN (Core Schema Notation) documents and normalizes
// them into a typed schema model: entities, fields, keys, and associations.
package csn

import (
	"fmt"
	"sort"
	"strings"
)

// --- Enums ---

// SemanticType is the closed set of field types the engine understands.
// Unknown CSN types degrade to TypeString with a warning.
type SemanticType string

const (
	TypeString    SemanticType = "string"
	TypeInteger   SemanticType = "integer"
	TypeDecimal   SemanticType = "decimal"
	TypeBoolean   SemanticType = "boolean"
	TypeDate      SemanticType = "date"
	TypeTime      SemanticType = "time"
	TypeTimestamp SemanticType = "timestamp"
	TypeBlob      SemanticType = "blob"
)

// Cardinality classifies an association between two entities.
type Cardinality string

const (
	CardOneToOne   Cardinality = "1:1"
	CardOneToMany  Cardinality = "1:N"
	CardManyToOne  Cardinality = "N:1"
	CardManyToMany Cardinality = "N:M"
)

// Ownership distinguishes lifecycle-bound compositions from plain references.
type Ownership string

const (
	OwnComposition Ownership = "composition"
	OwnReference   Ownership = "reference"
)

// --- Models ---

// Field is a single element of an entity.
type Field struct {
	Name      string       `json:"name"`
	Type      SemanticType `json:"type"`
	Length    int          `json:"length,omitempty"`
	Precision int          `json:"precision,omitempty"`
	Scale     int          `json:"scale,omitempty"`
	Nullable  bool         `json:"nullable"`
	Key       bool         `json:"key"`
}

// Assoc is a schema-level edge from one entity to another. Source and
// target field lists are equal in length.
type Assoc struct {
	Source       string      `json:"source"` // FQN of the owning entity
	Target       string      `json:"target"` // FQN of the target entity
	Role         string      `json:"role"`
	SourceFields []string    `json:"sourceFields"`
	TargetFields []string    `json:"targetFields"`
	Cardinality  Cardinality `json:"cardinality,omitempty"` // empty when undeclared
	Ownership    Ownership   `json:"ownership"`
}

// Entity is a schema-level record type. KeyFields is non-empty after the
// key-inference pass; SyntheticKey marks keys the pass had to invent.
type Entity struct {
	Namespace    string   `json:"namespace"`
	Name         string   `json:"name"` // short name
	Version      string   `json:"version"`
	Fields       []Field  `json:"fields"`
	KeyFields    []string `json:"keyFields"`
	SyntheticKey bool     `json:"syntheticKey"`
	Assocs       []Assoc  `json:"assocs"`
}

// FQN returns the fully-qualified entity name (namespace.short).
func (e *Entity) FQN() string {
	if e.Namespace == "" {
		return e.Name
	}
	return e.Namespace + "." + e.Name
}

// Field returns the field with the given name, or false if absent.
func (e *Entity) Field(name string) (*Field, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// HasKeyField reports whether name is one of the entity's key fields.
func (e *Entity) HasKeyField(name string) bool {
	for _, k := range e.KeyFields {
		if k == name {
			return true
		}
	}
	return false
}

// Warning is a non-fatal issue recorded during schema loading.
type Warning struct {
	Source  string `json:"source"` // file path, URL, or entity FQN
	Message string `json:"message"`
}

// SchemaSet is the normalized output of a load: every entity decoded from
// the CSN definitions blocks, plus accumulated warnings and a content
// digest over the raw inputs.
type SchemaSet struct {
	entities map[string]*Entity
	order    []string // FQNs sorted by (namespace, name, version)
	warnings []Warning
	digest   string
}

// NewSchemaSet builds a SchemaSet from the given entities. Iteration order
// is fixed to (namespace, name, version) ascending so that downstream node
// ids and digests are stable between runs.
func NewSchemaSet(entities []*Entity, warnings []Warning, digest string) (*SchemaSet, error) {
	s := &SchemaSet{
		entities: make(map[string]*Entity, len(entities)),
		warnings: warnings,
		digest:   digest,
	}
	for _, e := range entities {
		fqn := e.FQN()
		if _, dup := s.entities[fqn]; dup {
			return nil, fmt.Errorf("csn: duplicate entity %q", fqn)
		}
		s.entities[fqn] = e
		s.order = append(s.order, fqn)
	}
	sort.Slice(s.order, func(i, j int) bool {
		a, b := s.entities[s.order[i]], s.entities[s.order[j]]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Version < b.Version
	})
	return s, nil
}

// Get returns the entity with the given FQN.
func (s *SchemaSet) Get(fqn string) (*Entity, bool) {
	e, ok := s.entities[fqn]
	return e, ok
}

// GetByShortName returns the entity whose short name matches name
// (case-insensitive). Returns false when zero or more than one entity
// matches.
func (s *SchemaSet) GetByShortName(name string) (*Entity, bool) {
	var found *Entity
	lower := strings.ToLower(name)
	for _, fqn := range s.order {
		e := s.entities[fqn]
		if strings.ToLower(e.Name) == lower {
			if found != nil {
				return nil, false // ambiguous
			}
			found = e
		}
	}
	return found, found != nil
}

// Entities returns all entities in deterministic order.
func (s *SchemaSet) Entities() []*Entity {
	out := make([]*Entity, 0, len(s.order))
	for _, fqn := range s.order {
		out = append(out, s.entities[fqn])
	}
	return out
}

// Len returns the number of entities in the set.
func (s *SchemaSet) Len() int { return len(s.order) }

// Warnings returns the warnings accumulated during loading.
func (s *SchemaSet) Warnings() []Warning { return s.warnings }

// Digest returns the content digest of the loaded CSN inputs.
func (s *SchemaSet) Digest() string { return s.digest }

// AddWarning appends a warning to the set.
func (s *SchemaSet) AddWarning(source, format string, args ...any) {
	s.warnings = append(s.warnings, Warning{Source: source, Message: fmt.Sprintf(format, args...)})
}

// SplitFQN splits a fully-qualified name into namespace and short name.
// "acme.procurement.PurchaseOrder" -> ("acme.procurement", "PurchaseOrder").
func SplitFQN(fqn string) (namespace, short string) {
	idx := strings.LastIndex(fqn, ".")
	if idx < 0 {
		return "", fqn
	}
	return fqn[:idx], fqn[idx+1:]
}
