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

// Package builtin provides the fixed analysis tool set: sql.run,
// df.transform, plot.render and profiler.analyze. Tools share a
// per-request Env holding resolved sources, intermediate tables and
// the artifact store. Intermediate results are named, so every tool
// argument stays a JSON-schema-checkable scalar.
package builtin

import (
	"fmt"
	"sync"

	"github.com/teradata-labs/spindle/pkg/artifact"
	"github.com/teradata-labs/spindle/pkg/safety"
	"github.com/teradata-labs/spindle/pkg/source"
	"github.com/teradata-labs/spindle/pkg/tool"
)

// Env is the per-request execution environment the builtin tools
// operate on.
type Env struct {
	RequestID string
	Policy    *safety.Policy
	Artifacts *artifact.Store
	RowLimit  int

	mu      sync.RWMutex
	sources map[string]*source.Resolved
	tables  map[string]*source.Table
}

// NewEnv creates an environment for one request.
func NewEnv(requestID string, policy *safety.Policy, store *artifact.Store, rowLimit int) *Env {
	return &Env{
		RequestID: requestID,
		Policy:    policy,
		Artifacts: store,
		RowLimit:  rowLimit,
		sources:   make(map[string]*source.Resolved),
		tables:    make(map[string]*source.Table),
	}
}

// AddSource registers a resolved data source under its name. File
// sources also publish their loaded table under the same name.
func (e *Env) AddSource(r *source.Resolved) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[r.Name] = r
	if r.Table != nil {
		e.tables[r.Name] = r.Table
	}
}

// Source returns the named resolved source.
func (e *Env) Source(name string) (*source.Resolved, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.sources[name]
	if !ok {
		return nil, fmt.Errorf("source not found: %s", name)
	}
	return r, nil
}

// Sources returns all registered sources.
func (e *Env) Sources() []*source.Resolved {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*source.Resolved, 0, len(e.sources))
	for _, r := range e.sources {
		out = append(out, r)
	}
	return out
}

// PutTable stores an intermediate table under a step name.
func (e *Env) PutTable(name string, t *source.Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[name] = t
}

// Table returns the named intermediate table.
func (e *Env) Table(name string) (*source.Table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("table not found: %s (produce it with an earlier step)", name)
	}
	return t, nil
}

// Close releases all source connections.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, r := range e.sources {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Register adds the full builtin tool set, bound to env, to a registry.
func Register(reg *tool.Registry, env *Env) {
	reg.Register(NewSQLRun(env))
	reg.Register(NewTransform(env))
	reg.Register(NewPlotRender(env))
	reg.Register(NewProfiler(env))
}

// errorResult builds a failed tool result with a structured error.
func errorResult(code, message, suggestion string, retryable bool) *tool.Result {
	return &tool.Result{
		Success: false,
		Error: &tool.Error{
			Code:       code,
			Message:    message,
			Retryable:  retryable,
			Suggestion: suggestion,
		},
	}
}

func stringArg(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func intArg(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func boolArg(params map[string]any, key string) bool {
	b, _ := params[key].(bool)
	return b
}

func stringSliceArg(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		if ss, ok := params[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
