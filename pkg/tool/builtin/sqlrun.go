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
	"time"

	"github.com/teradata-labs/spindle/pkg/contract"
	"github.com/teradata-labs/spindle/pkg/tool"
)

// SQLRun executes read-only SELECT queries against a resolved SQL
// source. Every query passes the safety policy before it reaches the
// database.
type SQLRun struct {
	env *Env
}

// NewSQLRun returns the sql.run tool bound to env.
func NewSQLRun(env *Env) *SQLRun { return &SQLRun{env: env} }

func (s *SQLRun) Name() string { return "sql.run" }

func (s *SQLRun) Description() string {
	return "Run a read-only, optionally parameterized SQL SELECT query against a named data source and store the result as a named table."
}

func (s *SQLRun) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("sql.run input",
		map[string]*tool.JSONSchema{
			"source":    tool.NewStringSchema("Name of the data source to query"),
			"query":     tool.NewStringSchema("SQL SELECT statement").WithLength(1, 8192),
			"params":    tool.NewArraySchema("Positional bind values for placeholders in the query", nil),
			"row_limit": tool.NewIntegerSchema("Maximum rows to return").WithRange(1, float64(contract.MaxRowLimit)),
			"timeout":   tool.NewIntegerSchema("Per-call time budget in seconds").WithRange(1, float64(contract.MaxTimeoutSeconds)),
			"output":    tool.NewStringSchema("Name to store the result table under"),
		},
		[]string{"source", "query", "output"})
}

func (s *SQLRun) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	query := stringArg(params, "query")
	rowLimit := intArg(params, "row_limit", s.env.RowLimit)
	if rowLimit <= 0 {
		rowLimit = contract.DefaultRowLimit
	}

	if decision := s.env.Policy.CheckQuery(query); !decision.Allowed {
		return errorResult("policy_violation",
			fmt.Sprintf("query blocked by rule %s: %s", decision.Rule, decision.Reason),
			"", false), nil
	}

	src, err := s.env.Source(stringArg(params, "source"))
	if err != nil {
		return errorResult("missing_source", err.Error(),
			"use one of the sources named in the request", true), nil
	}
	if src.DB == nil {
		return errorResult("invalid_source",
			fmt.Sprintf("source %s is not a SQL source", src.Name),
			"use df.transform for file-backed sources", true), nil
	}

	// A per-call timeout only tightens the request deadline already on
	// ctx; it can never extend past the request budget.
	if secs := intArg(params, "timeout", 0); secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	bind, _ := params["params"].([]any)
	t, err := src.QueryTable(ctx, query, bind...)
	if err != nil {
		// Raw driver error text feeds the repair classifier.
		return nil, err
	}
	if len(t.Rows) > rowLimit {
		return errorResult("resource_limit",
			fmt.Sprintf("row limit exceeded: query returned more than %d rows", rowLimit),
			"add a LIMIT clause or aggregate before returning", false), nil
	}

	output := stringArg(params, "output")
	s.env.PutTable(output, t)
	return &tool.Result{
		Success:  true,
		Data:     map[string]any{"table": output, "columns": t.ColumnNames()},
		RowCount: len(t.Rows),
		Metadata: map[string]any{"source": src.Name},
	}, nil
}
