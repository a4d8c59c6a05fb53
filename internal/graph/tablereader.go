package graph

import (
	"context"
	"sort"
)

// Column describes one column of a scanned table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      bool   `json:"key"`
}

// Row is a single record as returned by a table reader: column name to
// typed value.
type Row map[string]any

// TableReader is the read-only capability the data graph builder consumes.
// Implementations must not require write privileges. The builder authors
// no SQL of its own; all access goes through these three calls.
type TableReader interface {
	ListTables(ctx context.Context) ([]string, error)
	Describe(ctx context.Context, table string) ([]Column, error)
	ReadRows(ctx context.Context, table string, limit, offset int) ([]Row, error)
}

// connPinner is implemented by readers backed by a connection pool. The
// data builder pins one connection for the duration of its scan and
// releases it before publishing.
type connPinner interface {
	Acquire(ctx context.Context) error
	Release()
}

// --- In-memory implementation ---

// MemTableReader is a fixture-backed TableReader used by tests and the
// development path. Tables iterate in sorted name order; rows keep their
// insertion order.
type MemTableReader struct {
	tables map[string]*memTable
}

type memTable struct {
	columns []Column
	rows    []Row
}

// NewMemTableReader returns an empty reader.
func NewMemTableReader() *MemTableReader {
	return &MemTableReader{tables: make(map[string]*memTable)}
}

// AddTable registers a table with its column descriptions and rows.
func (r *MemTableReader) AddTable(name string, columns []Column, rows []Row) {
	r.tables[name] = &memTable{columns: columns, rows: rows}
}

// ListTables returns all table names in sorted order.
func (r *MemTableReader) ListTables(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Describe returns the column descriptions for table.
func (r *MemTableReader) Describe(_ context.Context, table string) ([]Column, error) {
	t, ok := r.tables[table]
	if !ok {
		return nil, Errf(KindNotFound, "table %q", table)
	}
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out, nil
}

// ReadRows returns up to limit rows starting at offset. A limit <= 0
// returns all remaining rows.
func (r *MemTableReader) ReadRows(_ context.Context, table string, limit, offset int) ([]Row, error) {
	t, ok := r.tables[table]
	if !ok {
		return nil, Errf(KindNotFound, "table %q", table)
	}
	if offset >= len(t.rows) {
		return nil, nil
	}
	rows := t.rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out, nil
}
