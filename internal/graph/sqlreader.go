package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgQuerier is the subset of pgx calls the reader needs. Satisfied by both
// *pgxpool.Pool and a pinned *pgxpool.Conn.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SQLTableReader implements TableReader over a Postgres connection pool.
// Discovery goes through information_schema so the reader needs only
// SELECT privileges. Each scan may pin a single pooled connection via
// Acquire/Release; otherwise calls draw from the pool directly.
type SQLTableReader struct {
	pool        *pgxpool.Pool
	schema      string
	readTimeout time.Duration
	pinned      *pgxpool.Conn
}

// NewSQLTableReader creates a reader over pool scoped to the given
// database schema ("public" when empty). readTimeout bounds every
// individual query; zero means 30s.
func NewSQLTableReader(pool *pgxpool.Pool, schema string, readTimeout time.Duration) *SQLTableReader {
	if schema == "" {
		schema = "public"
	}
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	return &SQLTableReader{pool: pool, schema: schema, readTimeout: readTimeout}
}

// Acquire pins one pooled connection for the duration of a scan.
func (r *SQLTableReader) Acquire(ctx context.Context) error {
	if r.pinned != nil {
		return nil
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Wrap(KindBackendUnavailable, err, "acquire connection")
	}
	r.pinned = conn
	return nil
}

// Release returns the pinned connection to the pool.
func (r *SQLTableReader) Release() {
	if r.pinned != nil {
		r.pinned.Release()
		r.pinned = nil
	}
}

func (r *SQLTableReader) querier() pgQuerier {
	if r.pinned != nil {
		return r.pinned
	}
	return r.pool
}

// ListTables enumerates base tables in the configured schema, excluding
// system tables, in sorted order.
func (r *SQLTableReader) ListTables(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	rows, err := r.querier().Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		  AND table_name NOT LIKE 'pg\_%'
		ORDER BY table_name`, r.schema)
	if err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "list tables")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, Wrap(KindBackendUnavailable, err, "scan table name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "list tables")
	}
	return names, nil
}

// Describe returns column metadata for table, with primary-key membership
// resolved through key_column_usage.
func (r *SQLTableReader) Describe(ctx context.Context, table string) ([]Column, error) {
	ctx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	rows, err := r.querier().Query(ctx, `
		SELECT c.column_name,
		       c.data_type,
		       c.is_nullable = 'YES',
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON kcu.constraint_name = tc.constraint_name
		            AND kcu.table_schema = tc.table_schema
		           WHERE tc.table_schema = c.table_schema
		             AND tc.table_name = c.table_name
		             AND tc.constraint_type = 'PRIMARY KEY'
		             AND kcu.column_name = c.column_name
		       )
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, r.schema, table)
	if err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "describe %s", table)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Key); err != nil {
			return nil, Wrap(KindBackendUnavailable, err, "scan column of %s", table)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "describe %s", table)
	}
	if len(cols) == 0 {
		return nil, Errf(KindNotFound, "table %q", table)
	}
	return cols, nil
}

// ReadRows fetches up to limit rows from table starting at offset, ordered
// by the first column so pagination is stable. A limit <= 0 reads without
// a LIMIT clause.
func (r *SQLTableReader) ReadRows(ctx context.Context, table string, limit, offset int) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	sql := fmt.Sprintf("SELECT * FROM %s.%s ORDER BY 1 OFFSET $1", quoteIdent(r.schema), quoteIdent(table))
	args := []any{offset}
	if limit > 0 {
		sql += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.querier().Query(ctx, sql, args...)
	if err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "read rows of %s", table)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, Wrap(KindBackendUnavailable, err, "row values of %s", table)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(KindBackendUnavailable, err, "read rows of %s", table)
	}
	return out, nil
}

// quoteIdent quotes a SQL identifier. Table names come from
// information_schema, never from callers, but quoting keeps mixed-case
// names working.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
