package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/csngraph/internal/csn"
)

// InferenceMode controls whether heuristic foreign-key edges are emitted.
type InferenceMode string

const (
	InferStrict    InferenceMode = "strict"    // declared + inferred-certain only
	InferHeuristic InferenceMode = "heuristic" // also emit inferred-heuristic
)

// fkSuffixes are the column-name suffixes tried during foreign-key
// inference, in priority order.
var fkSuffixes = []string{"ID", "Key", "Code", "Number"}

// tooltipPairs caps the number of key/value pairs attached to a node's
// tooltip payload.
const tooltipPairs = 8

// DataBuildOptions configure a data graph build.
type DataBuildOptions struct {
	// MaxRecordsPerEntity caps node materialization per entity. <= 0 means
	// unbounded (analytical builds); visualization builds default to 20.
	MaxRecordsPerEntity int

	// InferenceMode defaults to InferHeuristic.
	InferenceMode InferenceMode

	// KeepFloatingTables retains tables unmatched to any entity as nodes
	// without typed edges.
	KeepFloatingTables bool

	// ScanConcurrency bounds parallel table scans. <= 0 means 4.
	ScanConcurrency int
}

func (o DataBuildOptions) withDefaults() DataBuildOptions {
	if o.InferenceMode == "" {
		o.InferenceMode = InferHeuristic
	}
	if o.ScanConcurrency <= 0 {
		o.ScanConcurrency = 4
	}
	return o
}

// tableScan is the result of scanning one table: the matched entity (nil
// for floating tables), the described columns, and the fetched rows.
type tableScan struct {
	table   string
	entity  *csn.Entity // nil => floating
	columns []Column
	rows    []Row
	digest  string
	err     error
}

// BuildDataGraph materializes the instance graph: one node per scanned
// record, one edge per resolved foreign-key reference. A failing table
// degrades to zero nodes with a warning; the build never aborts on a
// single entity. Output order is deterministic (entity declaration order,
// then key order) so the digest is stable.
func BuildDataGraph(ctx context.Context, set *csn.SchemaSet, reader TableReader, opts DataBuildOptions, scope string) (*Graph, error) {
	opts = opts.withDefaults()

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

	g := &Graph{
		Kind:    KindData,
		Scope:   scope,
		BuiltAt: time.Now().UTC(),
	}

	scans := discoverTables(set, tables, opts, g)

	// Scan tables in parallel with a bounded limit. Each scan writes only
	// its own slot, so the result order stays deterministic.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.ScanConcurrency)
	for _, scan := range scans {
		eg.Go(func() error {
			scanTable(egCtx, reader, scan, opts.MaxRecordsPerEntity)
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, Wrap(KindCancelled, err, "data graph build")
	}

	// Read failures degrade the affected entity, never the build.
	for _, scan := range scans {
		if scan.err != nil {
			g.Warnings = append(g.Warnings, fmt.Sprintf("%s: table read failed: %v", scan.table, scan.err))
			scan.rows = nil
		}
	}

	// Node materialization, entity by entity in declaration order. The
	// key->node-id map built here backs all edge inference lookups.
	keyIndex := make(map[string]map[string]string) // entity short (lower) -> key value -> node id
	for _, scan := range scans {
		if err := ctx.Err(); err != nil {
			return nil, Wrap(KindCancelled, err, "data graph build")
		}
		materializeNodes(g, scan, keyIndex)
	}

	inferEdges(g, set, scans, keyIndex, opts)

	g.InputDigests = append(g.InputDigests, set.Digest())
	for _, scan := range scans {
		g.InputDigests = append(g.InputDigests, scan.digest)
	}
	return g, nil
}

// discoverTables matches tables to entities by exact or case-insensitive
// short-name match. Unmatched tables are retained as floating when the
// options ask for it. Matched scans come first, in entity declaration
// order; floating scans follow in table order.
func discoverTables(set *csn.SchemaSet, tables []string, opts DataBuildOptions, g *Graph) []*tableScan {
	matched := make(map[string]*tableScan) // entity FQN -> scan
	var floating []*tableScan

	for _, table := range tables {
		if strings.HasPrefix(table, "_") {
			continue // system / internal tables
		}
		entity, ok := set.GetByShortName(table)
		if ok {
			if _, dup := matched[entity.FQN()]; dup {
				g.Warnings = append(g.Warnings, fmt.Sprintf("%s: multiple tables match entity %s, keeping first", table, entity.FQN()))
				continue
			}
			matched[entity.FQN()] = &tableScan{table: table, entity: entity}
			continue
		}
		if opts.KeepFloatingTables {
			floating = append(floating, &tableScan{table: table})
		}
	}

	var scans []*tableScan
	for _, e := range set.Entities() {
		if s, ok := matched[e.FQN()]; ok {
			scans = append(scans, s)
		}
	}
	return append(scans, floating...)
}

// scanTable describes and reads one table, filling the scan in place. The
// per-table digest hashes every fetched row so input digests change when
// the data does.
func scanTable(ctx context.Context, reader TableReader, scan *tableScan, limit int) {
	cols, err := reader.Describe(ctx, scan.table)
	if err != nil {
		scan.err = err
		return
	}
	scan.columns = cols

	rows, err := reader.ReadRows(ctx, scan.table, limit, 0)
	if err != nil {
		scan.err = err
		return
	}
	scan.rows = rows

	h := sha256.New()
	h.Write([]byte(scan.table))
	enc := json.NewEncoder(h)
	for _, row := range rows {
		enc.Encode(canonicalRow(row)) //nolint:errcheck
	}
	scan.digest = hex.EncodeToString(h.Sum(nil))
}

// canonicalRow renders a row as sorted key/value string pairs so its hash
// is independent of map iteration order.
func canonicalRow(row Row) [][2]string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, valueString(row[k], "")})
	}
	return out
}

// materializeNodes emits one node per row of a scan, sorted by key tuple.
// Duplicate node ids within a scan are dropped with a warning.
func materializeNodes(g *Graph, scan *tableScan, keyIndex map[string]map[string]string) {
	if len(scan.rows) == 0 {
		return
	}

	shortName, keyCols := scanIdentity(scan)
	if len(keyCols) == 0 {
		g.Warnings = append(g.Warnings, fmt.Sprintf("%s: no key column, skipping table", scan.table))
		return
	}

	group := "floating"
	if scan.entity != nil {
		group = scan.entity.Namespace
	}

	index := keyIndex[strings.ToLower(shortName)]
	if index == nil {
		index = make(map[string]string, len(scan.rows))
		keyIndex[strings.ToLower(shortName)] = index
	}

	type pending struct {
		id     string
		keyVal string
		row    Row
	}
	nodes := make([]pending, 0, len(scan.rows))
	for _, row := range scan.rows {
		keyVals := make([]string, 0, len(keyCols))
		for _, kc := range keyCols {
			keyVals = append(keyVals, valueString(row[kc], columnType(scan.columns, kc)))
		}
		nodes = append(nodes, pending{
			id:     NodeID(shortName, keyVals),
			keyVal: strings.Join(keyVals, "|"),
			row:    row,
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })

	for _, p := range nodes {
		if _, dup := index[p.keyVal]; dup {
			g.Warnings = append(g.Warnings, fmt.Sprintf("%s: duplicate key %q, dropping row", scan.table, p.keyVal))
			continue
		}
		index[p.keyVal] = p.id
		g.Nodes = append(g.Nodes, Node{
			ID:         p.id,
			Label:      nodeLabel(shortName, p.keyVal, p.row, scan.columns),
			Group:      group,
			Properties: tooltipProps(p.row, scan.columns),
		})
	}
}

// scanIdentity returns the node-id prefix and key columns for a scan.
// Matched tables use the entity's inferred keys; floating tables fall back
// to described key columns, then the first column.
func scanIdentity(scan *tableScan) (short string, keyCols []string) {
	if scan.entity != nil {
		return scan.entity.Name, scan.entity.KeyFields
	}
	for _, c := range scan.columns {
		if c.Key {
			keyCols = append(keyCols, c.Name)
		}
	}
	if len(keyCols) == 0 && len(scan.columns) > 0 {
		keyCols = []string{scan.columns[0].Name}
	}
	return scan.table, keyCols
}

// labelFields are tried, in order, when synthesizing a node display label.
var labelFields = []string{"Name", "Description", "Title"}

func nodeLabel(short, keyVal string, row Row, cols []Column) string {
	for _, lf := range labelFields {
		for col, v := range row {
			if strings.EqualFold(col, lf) && v != nil {
				if s := valueString(v, columnType(cols, col)); s != "" {
					return s
				}
			}
		}
	}
	if keyVal != "" {
		return short + ":" + keyVal
	}
	// Truncated first non-null value, in column order for determinism.
	for _, c := range cols {
		if v := row[c.Name]; v != nil {
			s := valueString(v, c.Type)
			if len(s) > 32 {
				s = s[:32]
			}
			return s
		}
	}
	return short
}

// tooltipProps builds the node's opaque properties bag: up to tooltipPairs
// column values in column order.
func tooltipProps(row Row, cols []Column) map[string]any {
	tooltip := make(map[string]string, tooltipPairs)
	for _, c := range cols {
		if len(tooltip) >= tooltipPairs {
			break
		}
		if v := row[c.Name]; v != nil {
			tooltip[c.Name] = valueString(v, c.Type)
		}
	}
	if len(tooltip) == 0 {
		return nil
	}
	return map[string]any{"tooltip": tooltip}
}

// inferEdges runs foreign-key resolution over every scanned row: the
// declared association path first, then the column-name suffix heuristic.
// Edges deduplicate on (from, to, role); self-loops are discarded.
func inferEdges(g *Graph, set *csn.SchemaSet, scans []*tableScan, keyIndex map[string]map[string]string, opts DataBuildOptions) {
	seen := make(map[string]bool)

	for _, scan := range scans {
		if scan.entity == nil {
			continue // floating tables contribute no typed edges
		}
		e := scan.entity
		sourceIndex := keyIndex[strings.ToLower(e.Name)]

		for _, row := range scan.rows {
			keyVals := make([]string, 0, len(e.KeyFields))
			for _, kc := range e.KeyFields {
				keyVals = append(keyVals, valueString(row[kc], columnType(scan.columns, kc)))
			}
			fromID, ok := sourceIndex[strings.Join(keyVals, "|")]
			if !ok {
				continue // row was dropped as a duplicate
			}

			for _, col := range sortedColumns(row) {
				if e.HasKeyField(col) || row[col] == nil {
					continue
				}
				value := valueString(row[col], columnType(scan.columns, col))
				if value == "" {
					continue
				}
				edge, ok := resolveReference(set, e, col, value, fromID, keyIndex, opts)
				if !ok {
					continue
				}
				k := edge.From + "\x00" + edge.To + "\x00" + edge.Role
				if seen[k] {
					continue
				}
				seen[k] = true
				g.Edges = append(g.Edges, edge)
			}
		}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Role < b.Role
	})
}

// resolveReference attempts to resolve one non-key column value to a
// target record node.
func resolveReference(set *csn.SchemaSet, e *csn.Entity, col, value, fromID string, keyIndex map[string]map[string]string, opts DataBuildOptions) (Edge, bool) {
	// Declared path: an association whose source field set is exactly
	// this column.
	for _, a := range e.Assocs {
		if len(a.SourceFields) != 1 || a.SourceFields[0] != col {
			continue
		}
		target, ok := set.Get(a.Target)
		if !ok {
			continue
		}
		toID, ok := keyIndex[strings.ToLower(target.Name)][value]
		if !ok || toID == fromID {
			return Edge{}, false
		}
		card := a.Cardinality
		if card == "" {
			card = csn.CardManyToOne
		}
		return Edge{
			From:        fromID,
			To:          toID,
			Role:        a.Role,
			Cardinality: card,
			Style:       StyleSolid,
			Resolution:  ResolutionDeclared,
			Properties:  map[string]any{"column": col},
		}, true
	}

	// Name heuristic path: strip a known suffix and look for an entity
	// whose short name equals (certain) or contains (heuristic) the stem.
	// Candidates are tried exact-first, then in sorted name order, so a
	// value matched by several entities resolves the same way every run.
	for _, suffix := range fkSuffixes {
		if !strings.HasSuffix(col, suffix) || len(col) <= len(suffix) {
			continue
		}
		stem := strings.ToLower(strings.TrimSuffix(col, suffix))

		if index, ok := keyIndex[stem]; ok {
			if toID, ok := index[value]; ok && toID != fromID {
				return Edge{
					From:        fromID,
					To:          toID,
					Role:        col,
					Cardinality: csn.CardManyToOne,
					Style:       StyleDashed,
					Resolution:  ResolutionCertain,
					Properties:  map[string]any{"column": col},
				}, true
			}
		}
		if opts.InferenceMode == InferStrict {
			continue
		}

		shorts := make([]string, 0, len(keyIndex))
		for short := range keyIndex {
			if short != stem && strings.Contains(short, stem) {
				shorts = append(shorts, short)
			}
		}
		sort.Strings(shorts)
		for _, short := range shorts {
			toID, ok := keyIndex[short][value]
			if !ok || toID == fromID {
				continue
			}
			return Edge{
				From:        fromID,
				To:          toID,
				Role:        col,
				Cardinality: csn.CardManyToOne,
				Style:       StyleDotted,
				Resolution:  ResolutionHeuristic,
				Properties:  map[string]any{"column": col},
			}, true
		}
	}

	return Edge{}, false
}

// sortedColumns returns the row's column names sorted, so edge inference
// visits columns in a stable order.
func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// columnType looks up the declared type of a column, or "".
func columnType(cols []Column, name string) string {
	for _, c := range cols {
		if c.Name == name {
			return c.Type
		}
	}
	return ""
}

// valueString renders a scanned value as its canonical string form.
// Decimal-typed values normalize through shopspring/decimal so "1.50" and
// "1.5" produce the same node keys and digests.
func valueString(v any, declaredType string) string {
	if v == nil {
		return ""
	}
	isDecimal := strings.Contains(strings.ToLower(declaredType), "decimal") ||
		strings.Contains(strings.ToLower(declaredType), "numeric")

	switch x := v.(type) {
	case string:
		if isDecimal {
			if d, err := decimal.NewFromString(x); err == nil {
				return d.String()
			}
		}
		return x
	case []byte:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return decimal.NewFromFloat32(x).String()
	case float64:
		if isDecimal {
			return decimal.NewFromFloat(x).String()
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case decimal.Decimal:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
