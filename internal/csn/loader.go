package csn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// LoadErrorKind classifies loader failures.
type LoadErrorKind string

const (
	LoadErrParse      LoadErrorKind = "parse"
	LoadErrIO         LoadErrorKind = "io"
	LoadErrUnresolved LoadErrorKind = "unresolved-association"
)

// LoadError is returned for malformed or unresolvable CSN inputs.
type LoadError struct {
	Kind    LoadErrorKind
	Source  string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("csn load (%s) %s: %s", e.Kind, e.Source, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// remoteCacheSize bounds the loader's LRU of remote fetch results.
const remoteCacheSize = 20

// Options configure a Loader.
type Options struct {
	// Lenient drops associations whose target entity is not part of the
	// loaded set instead of failing the whole load.
	Lenient bool

	// HTTPTimeout bounds each remote fetch. Zero means 10s.
	HTTPTimeout time.Duration
}

// Loader fetches and parses CSN documents from files, directories, or
// remote registry endpoints. A Loader is safe for concurrent use.
type Loader struct {
	opts   Options
	client *http.Client
	cache  *fetchCache
}

// NewLoader creates a Loader with the given options.
func NewLoader(opts Options) *Loader {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Loader{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		cache:  newFetchCache(remoteCacheSize),
	}
}

// Load reads CSN from source and returns the normalized SchemaSet. Source
// is a local file path, a directory (all .json files merged), or an
// http(s) URL. Key inference and association resolution run before return.
func (l *Loader) Load(ctx context.Context, source string) (*SchemaSet, error) {
	var docs []rawDoc
	var err error

	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		docs, err = l.loadRemote(ctx, source)
	default:
		info, statErr := os.Stat(source)
		if statErr != nil {
			return nil, &LoadError{Kind: LoadErrIO, Source: source, Message: statErr.Error(), Err: statErr}
		}
		if info.IsDir() {
			docs, err = l.loadDir(ctx, source)
		} else {
			docs, err = l.loadFile(source)
		}
	}
	if err != nil {
		return nil, err
	}

	return l.assemble(docs)
}

// LoadRegistry loads CSN from a registry discovery endpoint for a named
// data product: <baseURL>/products/<product>/csn.
func (l *Loader) LoadRegistry(ctx context.Context, baseURL, product string) (*SchemaSet, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/products/" + product + "/csn"
	docs, err := l.loadRemote(ctx, url)
	if err != nil {
		return nil, err
	}
	return l.assemble(docs)
}

// Refresh drops the cached fetch result for url so the next load hits the
// network again. Remote entries are otherwise kept until evicted by
// capacity (digest-based expiry, not time-based).
func (l *Loader) Refresh(url string) {
	l.cache.drop(url)
}

// --- Source readers ---

// rawDoc pairs a parsed CSN document with its origin and raw bytes.
type rawDoc struct {
	source string
	body   []byte
	doc    csnDocument
}

func (l *Loader) loadFile(path string) ([]rawDoc, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Kind: LoadErrIO, Source: path, Message: err.Error(), Err: err}
	}
	doc, err := parseDocument(path, body)
	if err != nil {
		return nil, err
	}
	return []rawDoc{{source: path, body: body, doc: doc}}, nil
}

// loadDir parses every .json file in dir in parallel. Results are merged
// in sorted path order so the digest is independent of scheduling.
func (l *Loader) loadDir(ctx context.Context, dir string) ([]rawDoc, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Kind: LoadErrIO, Source: dir, Message: err.Error(), Err: err}
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	docs := make([]rawDoc, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			body, err := os.ReadFile(path)
			if err != nil {
				return &LoadError{Kind: LoadErrIO, Source: path, Message: err.Error(), Err: err}
			}
			doc, err := parseDocument(path, body)
			if err != nil {
				return err
			}
			docs[i] = rawDoc{source: path, body: body, doc: doc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (l *Loader) loadRemote(ctx context.Context, url string) ([]rawDoc, error) {
	if body, _, ok := l.cache.get(url); ok {
		doc, err := parseDocument(url, body)
		if err != nil {
			return nil, err
		}
		return []rawDoc{{source: url, body: body, doc: doc}}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &LoadError{Kind: LoadErrIO, Source: url, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &LoadError{Kind: LoadErrIO, Source: url, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Kind: LoadErrIO, Source: url, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LoadError{Kind: LoadErrIO, Source: url, Message: err.Error(), Err: err}
	}

	doc, err := parseDocument(url, body)
	if err != nil {
		return nil, err
	}
	l.cache.put(url, body, digestBytes(body))
	return []rawDoc{{source: url, body: body, doc: doc}}, nil
}

// --- CSN document decoding ---

type csnDocument struct {
	Definitions map[string]csnDefinition `json:"definitions"`
}

type csnDefinition struct {
	Kind     string                `json:"kind"`
	Version  string                `json:"@version"`
	Elements map[string]csnElement `json:"elements"`
}

type csnElement struct {
	Type        string          `json:"type"`
	Key         bool            `json:"key"`
	NotNull     bool            `json:"notNull"`
	Length      int             `json:"length"`
	Precision   int             `json:"precision"`
	Scale       int             `json:"scale"`
	Target      string          `json:"target"`
	Cardinality *csnCardinality `json:"cardinality"`
}

type csnCardinality struct {
	Min json.RawMessage `json:"min"`
	Max json.RawMessage `json:"max"` // number or "*"
}

func parseDocument(source string, body []byte) (csnDocument, error) {
	var doc csnDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return csnDocument{}, &LoadError{Kind: LoadErrParse, Source: source, Message: err.Error(), Err: err}
	}
	return doc, nil
}

// assemble merges parsed documents into a SchemaSet: decode entities,
// resolve association targets, run key inference, then fill in target
// key fields for every association.
func (l *Loader) assemble(docs []rawDoc) (*SchemaSet, error) {
	var (
		entities []*Entity
		warnings []Warning
		hasher   = sha256.New()
	)

	for _, d := range docs {
		hasher.Write(d.body)
		names := make([]string, 0, len(d.doc.Definitions))
		for name := range d.doc.Definitions {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			def := d.doc.Definitions[name]
			if def.Kind != "entity" {
				if def.Kind != "" && def.Kind != "context" && def.Kind != "service" {
					warnings = append(warnings, Warning{
						Source:  d.source,
						Message: fmt.Sprintf("skipping definition %q of kind %q", name, def.Kind),
					})
				}
				continue
			}
			e, w := decodeEntity(name, def)
			entities = append(entities, e)
			warnings = append(warnings, w...)
		}
	}

	set, err := NewSchemaSet(entities, warnings, hex.EncodeToString(hasher.Sum(nil)))
	if err != nil {
		return nil, &LoadError{Kind: LoadErrParse, Source: "merge", Message: err.Error(), Err: err}
	}

	if err := l.resolveAssociations(set); err != nil {
		return nil, err
	}

	InferKeys(set)
	fillTargetFields(set)
	return set, nil
}

// decodeEntity converts one CSN entity definition into the typed model.
// JSON objects carry no element order, so fields are sorted by (key desc,
// name asc) for a deterministic sequence.
func decodeEntity(fqn string, def csnDefinition) (*Entity, []Warning) {
	ns, short := SplitFQN(fqn)
	e := &Entity{
		Namespace: ns,
		Name:      short,
		Version:   def.Version,
	}
	if e.Version == "" {
		e.Version = "1.0"
	}

	var warnings []Warning
	names := make([]string, 0, len(def.Elements))
	for name := range def.Elements {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		el := def.Elements[name]

		if own, ok := isAssociationType(el.Type); ok {
			e.Assocs = append(e.Assocs, Assoc{
				Source:       fqn,
				Target:       el.Target,
				Role:         name,
				SourceFields: []string{name},
				Cardinality:  decodeCardinality(el.Cardinality),
				Ownership:    own,
			})
			// The managed association is also a scalar FK column on the
			// source table.
			e.Fields = append(e.Fields, Field{
				Name:     name,
				Type:     TypeString,
				Nullable: !el.NotNull,
			})
			continue
		}

		t, known := mapType(el.Type)
		if !known {
			warnings = append(warnings, Warning{
				Source:  fqn,
				Message: fmt.Sprintf("unknown type %q on field %q, degrading to string", el.Type, name),
			})
		}
		e.Fields = append(e.Fields, Field{
			Name:      name,
			Type:      t,
			Length:    el.Length,
			Precision: el.Precision,
			Scale:     el.Scale,
			Nullable:  !el.NotNull && !el.Key,
			Key:       el.Key,
		})
	}

	sort.SliceStable(e.Fields, func(i, j int) bool {
		if e.Fields[i].Key != e.Fields[j].Key {
			return e.Fields[i].Key
		}
		return e.Fields[i].Name < e.Fields[j].Name
	})

	return e, warnings
}

// decodeCardinality maps a CSN cardinality block to the engine enum. A
// missing block leaves cardinality empty for the schema graph builder to
// infer from key coverage.
func decodeCardinality(c *csnCardinality) Cardinality {
	if c == nil || len(c.Max) == 0 {
		return ""
	}
	max := strings.Trim(string(c.Max), `"`)
	if max == "*" {
		return CardOneToMany
	}
	return CardManyToOne
}

// resolveAssociations verifies every association target exists in the set.
// Under lenient mode unresolved associations are dropped with a warning;
// otherwise the load fails.
func (l *Loader) resolveAssociations(set *SchemaSet) error {
	for _, e := range set.Entities() {
		kept := e.Assocs[:0]
		for _, a := range e.Assocs {
			if _, ok := set.Get(a.Target); ok {
				kept = append(kept, a)
				continue
			}
			if !l.opts.Lenient {
				return &LoadError{
					Kind:    LoadErrUnresolved,
					Source:  e.FQN(),
					Message: fmt.Sprintf("association %q targets unknown entity %q", a.Role, a.Target),
				}
			}
			set.AddWarning(e.FQN(), "dropping association %q: unknown target %q", a.Role, a.Target)
		}
		e.Assocs = kept
	}
	return nil
}

// fillTargetFields completes each association's target field list with the
// target entity's (possibly inferred) key fields. Source and target lists
// must end up equal in length: surplus target keys are truncated, and when
// the target has fewer keys than the association names source fields, the
// extra source fields are trimmed with a warning.
func fillTargetFields(set *SchemaSet) {
	for _, e := range set.Entities() {
		for i := range e.Assocs {
			a := &e.Assocs[i]
			if len(a.TargetFields) > 0 {
				continue
			}
			target, ok := set.Get(a.Target)
			if !ok {
				continue
			}
			keys := target.KeyFields
			if len(keys) > len(a.SourceFields) {
				keys = keys[:len(a.SourceFields)]
			}
			if len(keys) < len(a.SourceFields) {
				set.AddWarning(a.Source,
					"association %q: target %q has %d key fields for %d source fields, trimming",
					a.Role, a.Target, len(keys), len(a.SourceFields))
				a.SourceFields = a.SourceFields[:len(keys)]
			}
			a.TargetFields = append([]string(nil), keys...)
		}
	}
}

// digestBytes returns the hex sha256 of b.
func digestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
