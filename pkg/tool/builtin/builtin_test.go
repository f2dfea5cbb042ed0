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

package builtin

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/artifact"
	"github.com/teradata-labs/spindle/pkg/contract"
	"github.com/teradata-labs/spindle/pkg/safety"
	"github.com/teradata-labs/spindle/pkg/source"
	"github.com/teradata-labs/spindle/pkg/tool"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEnv("req-test", safety.New(safety.Config{}), store, 1000)
}

func sqliteSource(t *testing.T, env *Env) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE sales (region TEXT, amount REAL, units INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sales VALUES
		('west', 120.0, 3), ('west', 80.0, 2), ('east', 200.0, 5), ('north', 50.0, 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	r, err := source.Resolve(context.Background(), "sales", contract.DataSource{
		Type:             contract.SourceSQL,
		ConnectionString: "sqlite://" + path,
		Table:            "sales",
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	env.AddSource(r)
}

func TestSQLRun(t *testing.T) {
	env := newTestEnv(t)
	sqliteSource(t, env)
	s := NewSQLRun(env)

	res, err := s.Execute(context.Background(), map[string]any{
		"source": "sales",
		"query":  "SELECT region, SUM(amount) AS total FROM sales GROUP BY region",
		"output": "by_region",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.RowCount)

	tbl, err := env.Table("by_region")
	require.NoError(t, err)
	assert.True(t, tbl.HasColumn("total"))
}

func TestSQLRun_PolicyBlocksDDL(t *testing.T) {
	env := newTestEnv(t)
	sqliteSource(t, env)
	s := NewSQLRun(env)

	res, err := s.Execute(context.Background(), map[string]any{
		"source": "sales",
		"query":  "DROP TABLE sales",
		"output": "x",
	})
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Equal(t, "policy_violation", res.Error.Code)
	assert.False(t, res.Error.Retryable)
}

func TestSQLRun_RowLimit(t *testing.T) {
	env := newTestEnv(t)
	sqliteSource(t, env)
	s := NewSQLRun(env)

	res, err := s.Execute(context.Background(), map[string]any{
		"source":    "sales",
		"query":     "SELECT * FROM sales",
		"row_limit": 2,
		"output":    "x",
	})
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Equal(t, "resource_limit", res.Error.Code)
}

func TestSQLRun_Params(t *testing.T) {
	env := newTestEnv(t)
	sqliteSource(t, env)
	s := NewSQLRun(env)

	args := map[string]any{
		"source": "sales",
		"query":  "SELECT region, amount FROM sales WHERE region = ? AND amount > ?",
		"params": []any{"west", 100.0},
		"output": "west_large",
	}
	require.NoError(t, tool.ValidateArgs(s.InputSchema(), args))

	res, err := s.Execute(context.Background(), args)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.RowCount)

	tbl, err := env.Table("west_large")
	require.NoError(t, err)
	assert.Equal(t, "west", tbl.Rows[0]["region"])
}

func TestSQLRun_PerCallTimeout(t *testing.T) {
	env := newTestEnv(t)
	sqliteSource(t, env)
	s := NewSQLRun(env)

	args := map[string]any{
		"source":  "sales",
		"query":   "WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM c WHERE x < 2000000000) SELECT count(x) FROM c",
		"timeout": 1,
		"output":  "never",
	}
	require.NoError(t, tool.ValidateArgs(s.InputSchema(), args))

	start := time.Now()
	_, err := s.Execute(context.Background(), args)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	_, err = env.Table("never")
	assert.Error(t, err)
}

func TestSQLRun_UnknownSource(t *testing.T) {
	env := newTestEnv(t)
	s := NewSQLRun(env)

	res, err := s.Execute(context.Background(), map[string]any{
		"source": "nope", "query": "SELECT 1", "output": "x",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Error.Retryable)
}

func fixtureTable() *source.Table {
	return source.NewTable([]string{"region", "amount"}, []map[string]any{
		{"region": "west", "amount": 120.0},
		{"region": "west", "amount": 80.0},
		{"region": "east", "amount": 200.0},
	})
}

func TestTransform_Filter(t *testing.T) {
	env := newTestEnv(t)
	env.PutTable("t0", fixtureTable())
	d := NewTransform(env)

	res, err := d.Execute(context.Background(), map[string]any{
		"operation": "filter", "input": "t0", "output": "t1",
		"column": "amount", "op": "gt", "value": "100",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 2, res.RowCount)
}

func TestTransform_Aggregate(t *testing.T) {
	env := newTestEnv(t)
	env.PutTable("t0", fixtureTable())
	d := NewTransform(env)

	res, err := d.Execute(context.Background(), map[string]any{
		"operation": "aggregate", "input": "t0", "output": "t1",
		"columns": []any{"region"}, "aggregation": "sum", "column": "amount",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 2, res.RowCount)

	tbl, err := env.Table("t1")
	require.NoError(t, err)
	require.NoError(t, tbl.SortRows("region", false))
	assert.Equal(t, "east", tbl.Rows[0]["region"])
	assert.Equal(t, 200.0, tbl.Rows[0]["sum_amount"])
	assert.Equal(t, 200.0, tbl.Rows[1]["sum_amount"])
}

func TestTransform_GroupCount(t *testing.T) {
	env := newTestEnv(t)
	env.PutTable("t0", fixtureTable())
	d := NewTransform(env)

	res, err := d.Execute(context.Background(), map[string]any{
		"operation": "group", "input": "t0", "output": "t1",
		"columns": []any{"region"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	tbl, err := env.Table("t1")
	require.NoError(t, err)
	require.NoError(t, tbl.SortRows("count", true))
	assert.Equal(t, int64(2), tbl.Rows[0]["count"])
}

func TestTransform_SortAndSelect(t *testing.T) {
	env := newTestEnv(t)
	env.PutTable("t0", fixtureTable())
	d := NewTransform(env)

	_, err := d.Execute(context.Background(), map[string]any{
		"operation": "sort", "input": "t0", "output": "t1",
		"column": "amount", "descending": true,
	})
	require.NoError(t, err)
	tbl, err := env.Table("t1")
	require.NoError(t, err)
	assert.Equal(t, 200.0, tbl.Rows[0]["amount"])

	res, err := d.Execute(context.Background(), map[string]any{
		"operation": "select", "input": "t1", "output": "t2",
		"columns": []any{"region"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	t2, err := env.Table("t2")
	require.NoError(t, err)
	assert.Equal(t, []string{"region"}, t2.ColumnNames())
}

func TestTransform_Join(t *testing.T) {
	env := newTestEnv(t)
	env.PutTable("left", fixtureTable())
	env.PutTable("right", source.NewTable([]string{"region", "manager"}, []map[string]any{
		{"region": "west", "manager": "kim"},
		{"region": "east", "manager": "lee"},
	}))
	d := NewTransform(env)

	res, err := d.Execute(context.Background(), map[string]any{
		"operation": "join", "input": "left", "output": "joined",
		"right": "right", "on": "region",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.RowCount)

	tbl, err := env.Table("joined")
	require.NoError(t, err)
	assert.True(t, tbl.HasColumn("manager"))
}

func TestTransform_MissingColumn(t *testing.T) {
	env := newTestEnv(t)
	env.PutTable("t0", fixtureTable())
	d := NewTransform(env)

	_, err := d.Execute(context.Background(), map[string]any{
		"operation": "filter", "input": "t0", "output": "t1",
		"column": "amont", "op": "gt", "value": "1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such column")
}

func TestPlotRender(t *testing.T) {
	env := newTestEnv(t)
	env.PutTable("t0", fixtureTable())
	p := NewPlotRender(env)

	for _, kind := range []string{"bar", "line", "scatter", "pie"} {
		res, err := p.Execute(context.Background(), map[string]any{
			"input": "t0", "type": kind, "x_col": "region", "y_col": "amount",
		})
		require.NoError(t, err, kind)
		require.True(t, res.Success, kind)

		data := res.Data.(map[string]any)
		id := data["artifact_id"].(string)
		_, content, err := env.Artifacts.Read(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(content), "<svg"), kind)
	}
}

func TestPlotRender_EmptyTable(t *testing.T) {
	env := newTestEnv(t)
	env.PutTable("t0", &source.Table{})
	p := NewPlotRender(env)

	res, err := p.Execute(context.Background(), map[string]any{
		"input": "t0", "type": "bar", "x_col": "region", "y_col": "amount",
	})
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestProfiler_FileSource(t *testing.T) {
	env := newTestEnv(t)
	env.AddSource(&source.Resolved{
		Name:    "data",
		Type:    contract.SourceCSV,
		Table:   fixtureTable(),
		Columns: fixtureTable().Columns,
	})
	p := NewProfiler(env)

	res, err := p.Execute(context.Background(), map[string]any{"source": "data"})
	require.NoError(t, err)
	require.True(t, res.Success)

	data := res.Data.(map[string]any)
	assert.Equal(t, 3, data["row_count"])
	profiles := data["columns"].([]ColumnProfile)
	require.Len(t, profiles, 2)
	for _, cp := range profiles {
		if cp.Name == "amount" {
			require.NotNil(t, cp.Mean)
			assert.InDelta(t, 133.33, *cp.Mean, 0.01)
		}
	}
}

func TestProfiler_SQLSource(t *testing.T) {
	env := newTestEnv(t)
	sqliteSource(t, env)
	p := NewProfiler(env)

	res, err := p.Execute(context.Background(), map[string]any{"source": "sales"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 4, res.RowCount)
}

func TestRegister(t *testing.T) {
	reg := tool.NewRegistry()
	Register(reg, newTestEnv(t))
	assert.ElementsMatch(t,
		[]string{"sql.run", "df.transform", "plot.render", "profiler.analyze"},
		reg.List())
}
