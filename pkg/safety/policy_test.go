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

package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckQuery_AllowsReadOnlySelect(t *testing.T) {
	p := New(Config{})

	d := p.CheckQuery("SELECT region, SUM(amount) FROM sales WHERE sale_date >= '2021-01-01' GROUP BY region")
	assert.True(t, d.Allowed, "reason: %s", d.Reason)
}

func TestCheckQuery_BlocksDDL(t *testing.T) {
	p := New(Config{})

	for _, q := range []string{
		"DROP TABLE sales",
		"create table t (id int)",
		"ALTER TABLE sales ADD COLUMN x int",
		"TRUNCATE sales",
	} {
		d := p.CheckQuery(q)
		assert.False(t, d.Allowed, "query should be blocked: %s", q)
		assert.Equal(t, "ddl_keyword", d.Rule)
		assert.Equal(t, "critical", d.Severity)
	}
}

func TestCheckQuery_BlocksDML(t *testing.T) {
	p := New(Config{})

	for _, q := range []string{
		"INSERT INTO sales VALUES (1)",
		"update sales set amount = 0",
		"DELETE FROM sales",
		"MERGE INTO sales USING staging ON 1=1",
	} {
		d := p.CheckQuery(q)
		assert.False(t, d.Allowed, "query should be blocked: %s", q)
		assert.Equal(t, "dml_keyword", d.Rule)
	}
}

func TestCheckQuery_KeywordWholeWordOnly(t *testing.T) {
	p := New(Config{})

	// "created_at" contains CREATE but is not a DDL statement.
	d := p.CheckQuery("SELECT created_at FROM orders")
	assert.True(t, d.Allowed, "substring matches must not trigger keyword rules: %s", d.Reason)
}

func TestCheckQuery_BlocksSystemTables(t *testing.T) {
	p := New(Config{})

	for _, q := range []string{
		"SELECT * FROM pg_catalog.pg_tables",
		"SELECT * FROM information_schema.columns",
		"SELECT * FROM mysql.user",
	} {
		d := p.CheckQuery(q)
		assert.False(t, d.Allowed, "query should be blocked: %s", q)
		assert.Equal(t, "system_table", d.Rule)
	}
}

func TestCheckQuery_BlocksInjectionShapes(t *testing.T) {
	p := New(Config{})

	d := p.CheckQuery(`SELECT * FROM users WHERE name = 'x'; -- comment`)
	assert.False(t, d.Allowed)

	d = p.CheckQuery("SELECT 1; SELECT 2")
	assert.False(t, d.Allowed)
	assert.Equal(t, "stacked_statements", d.Rule)
}

func TestCheckQuery_BlocksPIIColumns(t *testing.T) {
	p := New(Config{})

	d := p.CheckQuery("SELECT email FROM customers")
	assert.False(t, d.Allowed)
	assert.Equal(t, "pii_column", d.Rule)
}

func TestCheckColumns_AllowList(t *testing.T) {
	p := New(Config{AllowedColumns: []string{"email"}})

	d := p.CheckColumns([]string{"email", "region"})
	assert.True(t, d.Allowed, "allow-listed column must pass: %s", d.Reason)

	d = p.CheckColumns([]string{"ssn"})
	assert.False(t, d.Allowed)
}

func TestCheckIntent_BlockedPattern(t *testing.T) {
	p := New(Config{BlockedPatterns: []string{"salary"}})

	d := p.CheckIntent("Show customer names and emails from sales table")
	assert.False(t, d.Allowed)
	assert.Equal(t, "pii_column", d.Rule)

	d = p.CheckIntent("Average salary by department")
	assert.False(t, d.Allowed)

	d = p.CheckIntent("Analyze Q1 2021 Arizona sales; trends + charts")
	assert.True(t, d.Allowed, "reason: %s", d.Reason)
}

func TestCheckLimits(t *testing.T) {
	p := New(Config{})

	assert.True(t, p.CheckLimits(200_000, 180).Allowed)

	d := p.CheckLimits(200_001, 30)
	assert.False(t, d.Allowed)
	assert.Equal(t, "row_limit_ceiling", d.Rule)

	d = p.CheckLimits(100, 181)
	assert.False(t, d.Allowed)
	assert.Equal(t, "timeout_ceiling", d.Rule)
}
