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

// Package source resolves data source descriptors into queryable
// handles: SQL connections via database/sql (postgres, mysql, sqlite
// drivers) and CSV/JSON files loaded into in-memory tables.
package source

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/teradata-labs/spindle/pkg/fingerprint"
)

// Table is the in-memory tabular value flowing between analysis steps.
type Table struct {
	Columns []fingerprint.Column `json:"columns"`
	Rows    []map[string]any     `json:"rows"`
}

// NewTable builds a table from column names and rows, inferring column
// types from the first non-nil value per column.
func NewTable(columns []string, rows []map[string]any) *Table {
	t := &Table{Rows: rows}
	for _, name := range columns {
		t.Columns = append(t.Columns, fingerprint.Column{
			Name: name,
			Type: inferColumnType(name, rows),
		})
	}
	return t
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Fingerprint computes the schema fingerprint of the table.
func (t *Table) Fingerprint() (string, error) {
	return fingerprint.Compute(t.Columns)
}

// NumericValues extracts the named column as float64s, skipping
// non-numeric cells.
func (t *Table) NumericValues(column string) []float64 {
	var vals []float64
	for _, row := range t.Rows {
		if f, ok := toNumber(row[column]); ok {
			vals = append(vals, f)
		}
	}
	return vals
}

func inferColumnType(name string, rows []map[string]any) string {
	for _, row := range rows {
		v, ok := row[name]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case int, int32, int64:
			return "integer"
		case float32, float64:
			return "float"
		case bool:
			return "boolean"
		default:
			return "string"
		}
	}
	return "string"
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// SortRows orders rows by the given column ascending or descending.
// Mixed types sort by their string form.
func (t *Table) SortRows(column string, descending bool) error {
	if !t.HasColumn(column) {
		return fmt.Errorf("column not found: %s", column)
	}
	sort.SliceStable(t.Rows, func(i, j int) bool {
		less := lessValues(t.Rows[i][column], t.Rows[j][column])
		if descending {
			return !less
		}
		return less
	})
	return nil
}

func lessValues(a, b any) bool {
	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
