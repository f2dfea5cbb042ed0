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
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/contract"
)

func TestLoadCSV(t *testing.T) {
	in := "region,revenue,active\nwest,1200.5,true\neast,800,false\n"
	tbl, err := LoadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "revenue", "active"}, tbl.ColumnNames())
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "west", tbl.Rows[0]["region"])
	assert.Equal(t, 1200.5, tbl.Rows[0]["revenue"])
	assert.Equal(t, true, tbl.Rows[0]["active"])
	assert.Equal(t, int64(800), tbl.Rows[1]["revenue"])
}

func TestLoadCSV_Empty(t *testing.T) {
	_, err := LoadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadJSON_Array(t *testing.T) {
	in := `[{"name":"alice","score":91},{"name":"bob","score":84}]`
	tbl, err := LoadJSON(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "score"}, tbl.ColumnNames())
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "alice", tbl.Rows[0]["name"])
}

func TestLoadJSON_Lines(t *testing.T) {
	in := "{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n"
	tbl, err := LoadJSON(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 3)
}

func TestTable_SortAndNumeric(t *testing.T) {
	tbl := NewTable([]string{"v"}, []map[string]any{
		{"v": 3}, {"v": 1}, {"v": 2},
	})
	require.NoError(t, tbl.SortRows("v", false))
	assert.Equal(t, 1, tbl.Rows[0]["v"])

	require.NoError(t, tbl.SortRows("v", true))
	assert.Equal(t, 3, tbl.Rows[0]["v"])

	assert.Equal(t, []float64{3, 2, 1}, tbl.NumericValues("v"))
	assert.Error(t, tbl.SortRows("missing", false))
}

func TestResolve_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE orders (id INTEGER, amount REAL, region TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders VALUES (1, 10.5, 'west'), (2, 20.0, 'east')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	r, err := Resolve(context.Background(), "orders", contract.DataSource{
		Type:             contract.SourceSQL,
		ConnectionString: "sqlite://" + path,
		Table:            "orders",
	})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "sqlite", r.Dialect)
	assert.Len(t, r.Columns, 3)
	assert.NotEmpty(t, r.Fingerprint)

	tbl, err := r.QueryTable(context.Background(), "SELECT region, amount FROM orders ORDER BY amount")
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "west", tbl.Rows[0]["region"])
}

func TestResolve_FingerprintMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE x (a INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Resolve(context.Background(), "x", contract.DataSource{
		Type:              contract.SourceSQL,
		ConnectionString:  "sqlite://" + path,
		Table:             "x",
		SchemaFingerprint: strings.Repeat("ab", 32),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint mismatch")
}

func TestResolve_MissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Resolve(context.Background(), "x", contract.DataSource{
		Type:             contract.SourceSQL,
		ConnectionString: "sqlite://" + path,
		Table:            "nope",
	})
	assert.Error(t, err)
}

func TestSplitDSN(t *testing.T) {
	cases := []struct {
		conn    string
		driver  string
		dialect string
	}{
		{"postgres://u:p@h/db", "postgres", "postgres"},
		{"mysql://u:p@tcp(h)/db", "mysql", "mysql"},
		{"sqlite:///tmp/x.db", "sqlite3", "sqlite"},
		{"/var/data/x.db", "sqlite3", "sqlite"},
		{":memory:", "sqlite3", "sqlite"},
	}
	for _, tc := range cases {
		driver, _, dialect, err := splitDSN(tc.conn)
		require.NoError(t, err, tc.conn)
		assert.Equal(t, tc.driver, driver, tc.conn)
		assert.Equal(t, tc.dialect, dialect, tc.conn)
	}

	_, _, _, err := splitDSN("redis://whatever")
	assert.Error(t, err)
}
