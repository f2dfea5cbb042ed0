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

package actor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/audit"
	"github.com/teradata-labs/spindle/pkg/fingerprint"
	"github.com/teradata-labs/spindle/pkg/planner"
	"github.com/teradata-labs/spindle/pkg/safety"
	"github.com/teradata-labs/spindle/pkg/sandbox"
	"github.com/teradata-labs/spindle/pkg/tool"
)

// flakyTool fails with a repairable error until the arguments carry
// the fixed column name.
type flakyTool struct {
	calls int
}

func (f *flakyTool) Name() string        { return "sql.run" }
func (f *flakyTool) Description() string { return "test" }
func (f *flakyTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("input", map[string]*tool.JSONSchema{
		"query": tool.NewStringSchema("query"),
	}, []string{"query"})
}
func (f *flakyTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	f.calls++
	q := params["query"].(string)
	if q == "SELECT revenu FROM sales" {
		return nil, errors.New("no such column: revenu")
	}
	return &tool.Result{Success: true, RowCount: 1}, nil
}

func newHarness(t *testing.T, tools ...tool.Tool) (*Actor, *audit.Log) {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		reg.Register(tl)
	}
	alog, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { alog.Close() })

	p := planner.New(planner.NewRuleProposer(), reg.List(), 0)
	a := New(sandbox.NewExecutor(reg), p, safety.New(safety.Config{}), audit.NewTracer(alog, "req-1"))
	return a, alog
}

func salesSources() []planner.SourceInfo {
	return []planner.SourceInfo{{
		Name: "sales",
		Columns: []fingerprint.Column{
			{Name: "region", Type: "string"},
			{Name: "revenue", Type: "float"},
		},
	}}
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	a, alog := newHarness(t, &flakyTool{})

	res := a.Run(context.Background(), &planner.Subtask{
		ID: "s1", Tool: "sql.run",
		Args: map[string]any{"query": "SELECT revenue FROM sales"},
	}, salesSources(), 0)

	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, res.Attempts)

	entries, err := alog.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.EventToolCalled, entries[0].EventKind)
	assert.Equal(t, audit.EventObservationRecorded, entries[1].EventKind)
}

func TestRun_RepairsMissingColumn(t *testing.T) {
	ft := &flakyTool{}
	a, alog := newHarness(t, ft)

	res := a.Run(context.Background(), &planner.Subtask{
		ID: "s1", Tool: "sql.run",
		Args: map[string]any{"query": "SELECT revenu FROM sales"},
	}, salesSources(), 0)

	assert.True(t, res.Succeeded())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, ft.calls)
	assert.Equal(t, "SELECT revenue FROM sales", res.LastCall.Arguments["query"])

	entries, err := alog.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

// brokenTool always fails with a repairable-looking error.
type brokenTool struct{ calls int }

func (b *brokenTool) Name() string        { return "sql.run" }
func (b *brokenTool) Description() string { return "test" }
func (b *brokenTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("input", map[string]*tool.JSONSchema{
		"query": tool.NewStringSchema("query"),
	}, []string{"query"})
}
func (b *brokenTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	b.calls++
	return nil, errors.New("no such column: ghost")
}

func TestRun_AttemptCeiling(t *testing.T) {
	bt := &brokenTool{}
	a, _ := newHarness(t, bt)

	// "ghost" resembles no real column, so the rule repairer gives up
	// after the first failure.
	res := a.Run(context.Background(), &planner.Subtask{
		ID: "s1", Tool: "sql.run",
		Args: map[string]any{"query": "SELECT ghost FROM sales"},
	}, salesSources(), 0)

	assert.Equal(t, TaskFailedTerminal, res.State)
	assert.False(t, res.Succeeded())
	assert.LessOrEqual(t, res.Attempts, MaxAttempts)
}

func TestRun_PolicyBlockIsTerminal(t *testing.T) {
	ft := &flakyTool{}
	a, alog := newHarness(t, ft)

	res := a.Run(context.Background(), &planner.Subtask{
		ID: "s1", Tool: "sql.run",
		Args: map[string]any{"query": "DROP TABLE sales"},
	}, salesSources(), 0)

	assert.Equal(t, TaskFailedTerminal, res.State)
	assert.Equal(t, 0, ft.calls)
	assert.Contains(t, res.Observation.ErrorMessage, "blocked by policy")

	entries, err := alog.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventPolicyDecision, entries[0].EventKind)
}

func TestRun_PIIColumnBlocked(t *testing.T) {
	a, _ := newHarness(t, &flakyTool{})

	res := a.Run(context.Background(), &planner.Subtask{
		ID: "s1", Tool: "sql.run",
		Args: map[string]any{"query": "SELECT 1", "column": "ssn"},
	}, salesSources(), 0)

	assert.Equal(t, TaskFailedTerminal, res.State)
}
