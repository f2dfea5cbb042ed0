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
	"fmt"
	"strconv"
	"strings"

	"github.com/teradata-labs/spindle/pkg/source"
	"github.com/teradata-labs/spindle/pkg/tool"
)

// Transform applies in-memory dataframe operations to named tables
// produced by earlier steps or loaded from file sources.
type Transform struct {
	env *Env
}

// NewTransform returns the df.transform tool bound to env.
func NewTransform(env *Env) *Transform { return &Transform{env: env} }

func (d *Transform) Name() string { return "df.transform" }

func (d *Transform) Description() string {
	return "Transform a named in-memory table: filter, aggregate, sort, select columns or join with another table."
}

func (d *Transform) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("df.transform input",
		map[string]*tool.JSONSchema{
			"operation":   tool.NewStringSchema("Transformation to apply").WithEnum("filter", "group", "aggregate", "sort", "select", "join"),
			"input":       tool.NewStringSchema("Name of the input table"),
			"output":      tool.NewStringSchema("Name to store the result table under"),
			"column":      tool.NewStringSchema("Column the operation applies to"),
			"columns":     tool.NewArraySchema("Columns to keep (select) or group by (aggregate)", tool.NewStringSchema("column name")),
			"op":          tool.NewStringSchema("Filter comparison operator").WithEnum("eq", "ne", "gt", "lt", "ge", "le", "contains"),
			"value":       tool.NewStringSchema("Filter comparison value"),
			"aggregation": tool.NewStringSchema("Aggregation function").WithEnum("sum", "avg", "min", "max", "count"),
			"right":       tool.NewStringSchema("Right-hand table for join"),
			"on":          tool.NewStringSchema("Join key column"),
			"descending":  tool.NewBooleanSchema("Sort descending"),
		},
		[]string{"operation", "input", "output"})
}

func (d *Transform) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	in, err := d.env.Table(stringArg(params, "input"))
	if err != nil {
		return errorResult("missing_table", err.Error(),
			"reference the output name of an earlier step", true), nil
	}

	var out *source.Table
	switch op := stringArg(params, "operation"); op {
	case "filter":
		out, err = filterTable(in, stringArg(params, "column"), stringArg(params, "op"), stringArg(params, "value"))
	case "group", "aggregate":
		// "group" without an aggregation degrades to a count per group.
		out, err = aggregateTable(in, stringSliceArg(params, "columns"), stringArg(params, "aggregation"), stringArg(params, "column"))
	case "sort":
		out, err = sortTable(in, stringArg(params, "column"), boolArg(params, "descending"))
	case "select":
		out, err = selectColumns(in, stringSliceArg(params, "columns"))
	case "join":
		var right *source.Table
		right, err = d.env.Table(stringArg(params, "right"))
		if err == nil {
			out, err = joinTables(in, right, stringArg(params, "on"))
		}
	default:
		err = fmt.Errorf("unknown operation: %s", op)
	}
	if err != nil {
		return nil, err
	}

	output := stringArg(params, "output")
	d.env.PutTable(output, out)
	return &tool.Result{
		Success:  true,
		Data:     map[string]any{"table": output, "columns": out.ColumnNames()},
		RowCount: len(out.Rows),
	}, nil
}

func filterTable(t *source.Table, column, op, value string) (*source.Table, error) {
	if !t.HasColumn(column) {
		return nil, fmt.Errorf("no such column: %s", column)
	}
	var rows []map[string]any
	for _, row := range t.Rows {
		ok, err := compare(row[column], op, value)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return &source.Table{Columns: t.Columns, Rows: rows}, nil
}

func compare(cell any, op, value string) (bool, error) {
	if op == "contains" {
		return strings.Contains(strings.ToLower(fmt.Sprint(cell)), strings.ToLower(value)), nil
	}
	if cf, ok := numeric(cell); ok {
		vf, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false, fmt.Errorf("type mismatch: comparing numeric column to %q", value)
		}
		switch op {
		case "eq":
			return cf == vf, nil
		case "ne":
			return cf != vf, nil
		case "gt":
			return cf > vf, nil
		case "lt":
			return cf < vf, nil
		case "ge":
			return cf >= vf, nil
		case "le":
			return cf <= vf, nil
		}
		return false, fmt.Errorf("unknown operator: %s", op)
	}
	cs := fmt.Sprint(cell)
	switch op {
	case "eq":
		return cs == value, nil
	case "ne":
		return cs != value, nil
	case "gt":
		return cs > value, nil
	case "lt":
		return cs < value, nil
	case "ge":
		return cs >= value, nil
	case "le":
		return cs <= value, nil
	}
	return false, fmt.Errorf("unknown operator: %s", op)
}

func aggregateTable(t *source.Table, groupBy []string, aggregation, column string) (*source.Table, error) {
	if aggregation == "" {
		aggregation = "count"
	}
	if aggregation != "count" {
		if column == "" {
			return nil, fmt.Errorf("aggregation %s requires a column", aggregation)
		}
		if !t.HasColumn(column) {
			return nil, fmt.Errorf("no such column: %s", column)
		}
	}
	for _, g := range groupBy {
		if !t.HasColumn(g) {
			return nil, fmt.Errorf("no such column: %s", g)
		}
	}

	resultCol := aggregation
	if column != "" {
		resultCol = aggregation + "_" + column
	}

	type bucket struct {
		key    []any
		values []float64
		count  int
	}
	order := []string{}
	buckets := map[string]*bucket{}
	for _, row := range t.Rows {
		key := make([]any, len(groupBy))
		parts := make([]string, len(groupBy))
		for i, g := range groupBy {
			key[i] = row[g]
			parts[i] = fmt.Sprint(row[g])
		}
		k := strings.Join(parts, "\x00")
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: key}
			buckets[k] = b
			order = append(order, k)
		}
		b.count++
		if column != "" {
			if f, ok := numeric(row[column]); ok {
				b.values = append(b.values, f)
			} else if aggregation != "count" {
				return nil, fmt.Errorf("type mismatch: column %s has non-numeric value %v", column, row[column])
			}
		}
	}

	var rows []map[string]any
	for _, k := range order {
		b := buckets[k]
		row := make(map[string]any, len(groupBy)+1)
		for i, g := range groupBy {
			row[g] = b.key[i]
		}
		row[resultCol] = aggregate(aggregation, b.values, b.count)
		rows = append(rows, row)
	}
	return source.NewTable(append(append([]string{}, groupBy...), resultCol), rows), nil
}

func aggregate(fn string, values []float64, count int) any {
	if fn == "count" {
		return int64(count)
	}
	if len(values) == 0 {
		return nil
	}
	switch fn {
	case "sum":
		var s float64
		for _, v := range values {
			s += v
		}
		return s
	case "avg":
		var s float64
		for _, v := range values {
			s += v
		}
		return s / float64(len(values))
	case "min":
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case "max":
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	}
	return nil
}

func sortTable(t *source.Table, column string, descending bool) (*source.Table, error) {
	out := &source.Table{Columns: t.Columns, Rows: append([]map[string]any{}, t.Rows...)}
	if err := out.SortRows(column, descending); err != nil {
		return nil, err
	}
	return out, nil
}

func selectColumns(t *source.Table, columns []string) (*source.Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("select requires at least one column")
	}
	for _, c := range columns {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("no such column: %s", c)
		}
	}
	rows := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		slim := make(map[string]any, len(columns))
		for _, c := range columns {
			slim[c] = row[c]
		}
		rows[i] = slim
	}
	return source.NewTable(columns, rows), nil
}

// joinTables performs an inner hash join on a shared key column.
func joinTables(left, right *source.Table, on string) (*source.Table, error) {
	if on == "" {
		return nil, fmt.Errorf("join requires an 'on' column")
	}
	if !left.HasColumn(on) || !right.HasColumn(on) {
		return nil, fmt.Errorf("no such column: %s (must exist in both tables)", on)
	}
	index := map[string][]map[string]any{}
	for _, row := range right.Rows {
		k := fmt.Sprint(row[on])
		index[k] = append(index[k], row)
	}

	columns := left.ColumnNames()
	seen := map[string]bool{}
	for _, c := range columns {
		seen[c] = true
	}
	for _, c := range right.ColumnNames() {
		if !seen[c] {
			columns = append(columns, c)
		}
	}

	var rows []map[string]any
	for _, lrow := range left.Rows {
		for _, rrow := range index[fmt.Sprint(lrow[on])] {
			merged := make(map[string]any, len(columns))
			for k, v := range rrow {
				merged[k] = v
			}
			// Left side wins on column name collisions.
			for k, v := range lrow {
				merged[k] = v
			}
			rows = append(rows, merged)
		}
	}
	return source.NewTable(columns, rows), nil
}

func numeric(v any) (float64, bool) {
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
	default:
		return 0, false
	}
}
