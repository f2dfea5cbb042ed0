// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	_ "github.com/teradata-labs/spindle/internal/sqlitedriver"
	"github.com/teradata-labs/spindle/pkg/contract"
	"github.com/teradata-labs/spindle/pkg/fingerprint"
)

// Resolved is a data source opened for analysis. SQL sources carry a
// live connection pool; file sources carry the loaded table.
type Resolved struct {
	Name        string
	Type        contract.SourceType
	DB          *sql.DB
	Dialect     string
	Table       *Table
	TableName   string
	Columns     []fingerprint.Column
	Fingerprint string
}

// Close releases the underlying connection, if any.
func (r *Resolved) Close() error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// Resolve opens a data source descriptor and introspects its schema.
// When the descriptor pins a schema fingerprint, the live schema must
// match it or resolution fails with fingerprint.ErrSchemaUnavailable
// wrapped in a mismatch error.
func Resolve(ctx context.Context, name string, ds contract.DataSource) (*Resolved, error) {
	var (
		r   *Resolved
		err error
	)
	switch ds.Type {
	case contract.SourceSQL:
		r, err = resolveSQL(ctx, name, ds)
	case contract.SourceCSV:
		r, err = resolveCSV(name, ds)
	case contract.SourceJSON:
		r, err = resolveJSON(name, ds)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", ds.Type)
	}
	if err != nil {
		return nil, err
	}

	r.Fingerprint, err = fingerprint.Compute(r.Columns)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("fingerprint source %s: %w", name, err)
	}
	if ds.SchemaFingerprint != "" && ds.SchemaFingerprint != r.Fingerprint {
		r.Close()
		return nil, fmt.Errorf("source %s: schema fingerprint mismatch: pinned %s, live %s",
			name, shortHash(ds.SchemaFingerprint), shortHash(r.Fingerprint))
	}
	return r, nil
}

func resolveSQL(ctx context.Context, name string, ds contract.DataSource) (*Resolved, error) {
	driver, dsn, dialect, err := splitDSN(ds.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("source %s: open: %w", name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("source %s: connect: %w", name, err)
	}
	cols, err := introspect(ctx, db, dialect, ds.Table)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	return &Resolved{
		Name:      name,
		Type:      contract.SourceSQL,
		DB:        db,
		Dialect:   dialect,
		TableName: ds.Table,
		Columns:   cols,
	}, nil
}

// splitDSN maps a connection string onto a registered driver. Postgres
// URLs pass through unchanged; mysql and sqlite URLs have their scheme
// prefix stripped, matching what their drivers expect.
func splitDSN(conn string) (driver, dsn, dialect string, err error) {
	switch {
	case strings.HasPrefix(conn, "postgres://"), strings.HasPrefix(conn, "postgresql://"):
		return "postgres", conn, "postgres", nil
	case strings.HasPrefix(conn, "mysql://"):
		return "mysql", strings.TrimPrefix(conn, "mysql://"), "mysql", nil
	case strings.HasPrefix(conn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(conn, "sqlite://"), "sqlite", nil
	case strings.HasPrefix(conn, "file:"), strings.HasSuffix(conn, ".db"), conn == ":memory:":
		return "sqlite3", conn, "sqlite", nil
	default:
		return "", "", "", fmt.Errorf("unrecognized connection string scheme")
	}
}

// introspect reads the column layout of a table. Sqlite uses PRAGMA
// table_info; postgres and mysql read information_schema.
func introspect(ctx context.Context, db *sql.DB, dialect, table string) ([]fingerprint.Column, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: no table named", fingerprint.ErrSchemaUnavailable)
	}
	var (
		rows *sql.Rows
		err  error
	)
	switch dialect {
	case "sqlite":
		rows, err = db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var cols []fingerprint.Column
		for rows.Next() {
			var (
				cid     int
				name    string
				typ     string
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
				return nil, err
			}
			cols = append(cols, fingerprint.Column{Name: name, Type: typ})
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("%w: table %s has no columns", fingerprint.ErrSchemaUnavailable, table)
		}
		return cols, rows.Err()
	case "postgres":
		rows, err = db.QueryContext(ctx,
			`SELECT column_name, data_type FROM information_schema.columns
			 WHERE table_name = $1 ORDER BY ordinal_position`, table)
	case "mysql":
		rows, err = db.QueryContext(ctx,
			`SELECT column_name, data_type FROM information_schema.columns
			 WHERE table_name = ? AND table_schema = DATABASE() ORDER BY ordinal_position`, table)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []fingerprint.Column
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		cols = append(cols, fingerprint.Column{Name: name, Type: typ})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: table %s not found", fingerprint.ErrSchemaUnavailable, table)
	}
	return cols, rows.Err()
}

// QueryTable runs a SELECT against the source connection and
// materializes the result set. args bind to ? or $n placeholders in
// the query, per the driver's placeholder convention.
func (r *Resolved) QueryTable(ctx context.Context, query string, args ...any) (*Table, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("source %s is not a SQL source", r.Name)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		cells := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(names))
		for i, n := range names {
			row[n] = normalizeCell(cells[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewTable(names, out), nil
}

// normalizeCell folds driver-specific scan types into the small set
// the rest of the pipeline handles.
func normalizeCell(v any) any {
	switch c := v.(type) {
	case []byte:
		return string(c)
	case int32:
		return int64(c)
	case int:
		return int64(c)
	default:
		return v
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
