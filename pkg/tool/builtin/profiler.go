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
	"sort"

	"github.com/teradata-labs/spindle/pkg/source"
	"github.com/teradata-labs/spindle/pkg/tool"
)

// profileSampleRows caps how many rows the profiler pulls from a SQL
// source. Stats are over the sample, the row count is exact.
const profileSampleRows = 10000

// Profiler reports a source's schema fingerprint, row count and basic
// per-column statistics without materializing the full data set.
type Profiler struct {
	env *Env
}

// NewProfiler returns the profiler.analyze tool bound to env.
func NewProfiler(env *Env) *Profiler { return &Profiler{env: env} }

func (p *Profiler) Name() string { return "profiler.analyze" }

func (p *Profiler) Description() string {
	return "Profile a data source: schema, fingerprint, row count and per-column statistics."
}

func (p *Profiler) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("profiler.analyze input",
		map[string]*tool.JSONSchema{
			"source": tool.NewStringSchema("Name of the data source to profile"),
		},
		[]string{"source"})
}

// ColumnProfile is the statistical summary of one column.
type ColumnProfile struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Nulls    int      `json:"nulls"`
	Distinct int      `json:"distinct"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Mean     *float64 `json:"mean,omitempty"`
}

func (p *Profiler) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	src, err := p.env.Source(stringArg(params, "source"))
	if err != nil {
		return errorResult("missing_source", err.Error(),
			"use one of the sources named in the request", true), nil
	}

	var (
		t        *source.Table
		rowCount int
	)
	if src.DB != nil {
		query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", src.TableName, profileSampleRows)
		if decision := p.env.Policy.CheckQuery(query); !decision.Allowed {
			return errorResult("policy_violation",
				fmt.Sprintf("profile blocked by rule %s: %s", decision.Rule, decision.Reason),
				"", false), nil
		}
		t, err = src.QueryTable(ctx, query)
		if err != nil {
			return nil, err
		}
		row := src.DB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", src.TableName))
		if err := row.Scan(&rowCount); err != nil {
			return nil, err
		}
	} else {
		t = src.Table
		rowCount = len(t.Rows)
	}

	profiles := make([]ColumnProfile, 0, len(t.Columns))
	for _, col := range t.Columns {
		profiles = append(profiles, profileColumn(t, col.Name, col.Type))
	}

	return &tool.Result{
		Success: true,
		Data: map[string]any{
			"fingerprint": src.Fingerprint,
			"row_count":   rowCount,
			"sampled":     len(t.Rows),
			"columns":     profiles,
		},
		RowCount: rowCount,
	}, nil
}

func profileColumn(t *source.Table, name, typ string) ColumnProfile {
	cp := ColumnProfile{Name: name, Type: typ}
	distinct := map[string]bool{}
	var (
		sum  float64
		nums []float64
	)
	for _, row := range t.Rows {
		v, ok := row[name]
		if !ok || v == nil {
			cp.Nulls++
			continue
		}
		distinct[fmt.Sprint(v)] = true
		if f, ok := numeric(v); ok {
			nums = append(nums, f)
			sum += f
		}
	}
	cp.Distinct = len(distinct)
	if len(nums) > 0 {
		sort.Float64s(nums)
		lo, hi := nums[0], nums[len(nums)-1]
		mean := sum / float64(len(nums))
		cp.Min, cp.Max, cp.Mean = &lo, &hi, &mean
	}
	return cp
}
