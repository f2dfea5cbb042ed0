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

package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teradata-labs/spindle/pkg/tool"
)

type fakeTool struct {
	name    string
	execute func(ctx context.Context, params map[string]any) (*tool.Result, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "test tool" }
func (f *fakeTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("test input", map[string]*tool.JSONSchema{
		"query": tool.NewStringSchema("query text"),
	}, []string{"query"})
}
func (f *fakeTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	return f.execute(ctx, params)
}

func newExecutor(t *testing.T, tools ...tool.Tool) *Executor {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		reg.Register(tl)
	}
	return NewExecutor(reg)
}

func TestExecute_Success(t *testing.T) {
	e := newExecutor(t, &fakeTool{name: "t", execute: func(ctx context.Context, params map[string]any) (*tool.Result, error) {
		return &tool.Result{Success: true, Data: "ok", RowCount: 7}, nil
	}})

	obs := e.Execute(context.Background(), ToolCall{CallID: "c1", ToolName: "t", Arguments: map[string]any{"query": "x"}})
	assert.Equal(t, StatusSuccess, obs.Status)
	assert.Equal(t, "ok", obs.Data)
	assert.Equal(t, 7, obs.RowCount)
	assert.False(t, obs.Retryable())
	assert.Greater(t, obs.DurationSeconds, 0.0)
}

func TestExecute_UnknownTool(t *testing.T) {
	e := newExecutor(t)
	obs := e.Execute(context.Background(), ToolCall{CallID: "c1", ToolName: "missing", Arguments: map[string]any{}})
	assert.Equal(t, StatusError, obs.Status)
}

func TestExecute_SchemaRejection(t *testing.T) {
	e := newExecutor(t, &fakeTool{name: "t", execute: func(ctx context.Context, params map[string]any) (*tool.Result, error) {
		t.Fatal("tool must not run on invalid args")
		return nil, nil
	}})

	obs := e.Execute(context.Background(), ToolCall{CallID: "c1", ToolName: "t", Arguments: map[string]any{"query": 42}})
	assert.Equal(t, StatusError, obs.Status)
	assert.Equal(t, ErrTypeMismatch, obs.ErrorKind)
	assert.True(t, obs.Retryable())
}

func TestExecute_Panic(t *testing.T) {
	e := newExecutor(t, &fakeTool{name: "t", execute: func(ctx context.Context, params map[string]any) (*tool.Result, error) {
		panic("boom")
	}})

	obs := e.Execute(context.Background(), ToolCall{CallID: "c1", ToolName: "t", Arguments: map[string]any{"query": "x"}})
	assert.Equal(t, StatusError, obs.Status)
	assert.Contains(t, obs.ErrorMessage, "boom")
}

func TestExecute_Timeout(t *testing.T) {
	e := newExecutor(t, &fakeTool{name: "t", execute: func(ctx context.Context, params map[string]any) (*tool.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	obs := e.Execute(context.Background(), ToolCall{
		CallID: "c1", ToolName: "t",
		Arguments: map[string]any{"query": "x"},
		Timeout:   20 * time.Millisecond,
	})
	assert.Equal(t, StatusTimeout, obs.Status)
	assert.False(t, obs.Retryable())
}

func TestExecute_ClassifiesToolError(t *testing.T) {
	e := newExecutor(t, &fakeTool{name: "t", execute: func(ctx context.Context, params map[string]any) (*tool.Result, error) {
		return nil, errors.New(`near "SELEC": syntax error`)
	}})

	obs := e.Execute(context.Background(), ToolCall{CallID: "c1", ToolName: "t", Arguments: map[string]any{"query": "x"}})
	assert.Equal(t, StatusError, obs.Status)
	assert.Equal(t, ErrSQLSyntax, obs.ErrorKind)
	assert.True(t, obs.Retryable())
}

func TestExecute_StructuredToolError(t *testing.T) {
	e := newExecutor(t, &fakeTool{name: "t", execute: func(ctx context.Context, params map[string]any) (*tool.Result, error) {
		return &tool.Result{Success: false, Error: &tool.Error{
			Code:       "missing_column",
			Message:    "no such column: revenu",
			Suggestion: "did you mean revenue?",
		}}, nil
	}})

	obs := e.Execute(context.Background(), ToolCall{CallID: "c1", ToolName: "t", Arguments: map[string]any{"query": "x"}})
	assert.Equal(t, ErrMissingColumn, obs.ErrorKind)
	assert.Equal(t, "did you mean revenue?", obs.Suggestion)
}

func TestClassify(t *testing.T) {
	cases := map[string]ErrorKind{
		`near "FORM": syntax error`:        ErrSQLSyntax,
		"no such column: amont":            ErrMissingColumn,
		`column "x" does not exist`:        ErrMissingColumn,
		"type mismatch in aggregation":     ErrTypeMismatch,
		"row limit exceeded":               ErrResourceExhausted,
		"something else entirely happened": ErrUnknown,
	}
	for msg, want := range cases {
		assert.Equal(t, want, Classify(msg), msg)
	}
}
