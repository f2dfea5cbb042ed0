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

// Package sandbox executes schema-validated tool calls under a
// wall-clock timeout with panic recovery and error classification.
// Only tools registered in the registry run; there is no arbitrary
// code path.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/pkg/tool"
)

// Status is the outcome class of a tool execution.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusError         Status = "error"
	StatusTimeout       Status = "timeout"
	StatusResourceLimit Status = "resource_limit"
)

// ErrorKind categorizes execution failures for the repair loop.
type ErrorKind string

const (
	ErrSQLSyntax         ErrorKind = "sql_syntax"
	ErrTypeMismatch      ErrorKind = "type_mismatch"
	ErrMissingColumn     ErrorKind = "missing_column"
	ErrResourceExhausted ErrorKind = "resource_exhausted"
	ErrUnknown           ErrorKind = "unknown"
)

// Repairable reports whether a failure of this kind is worth another
// grounding attempt. Resource exhaustion and timeouts are not.
func (k ErrorKind) Repairable() bool {
	switch k {
	case ErrSQLSyntax, ErrTypeMismatch, ErrMissingColumn:
		return true
	default:
		return false
	}
}

// ToolCall is one grounded invocation of a registered tool.
type ToolCall struct {
	CallID    string         `json:"call_id"`
	TaskID    string         `json:"task_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Attempt   int            `json:"attempt"`
	Timeout   time.Duration  `json:"-"`
}

// Observation is the structured result of a tool execution.
type Observation struct {
	CallID          string         `json:"call_id"`
	Status          Status         `json:"status"`
	ErrorKind       ErrorKind      `json:"error_kind,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Suggestion      string         `json:"suggestion,omitempty"`
	Data            any            `json:"data,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	RowCount        int            `json:"row_count"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// Retryable reports whether the repair loop may re-attempt this call.
func (o *Observation) Retryable() bool {
	return o.Status == StatusError && o.ErrorKind.Repairable()
}

// Executor runs tool calls from a registry.
type Executor struct {
	registry *tool.Registry
	logger   *zap.Logger
}

// NewExecutor returns an executor over the given registry.
func NewExecutor(registry *tool.Registry) *Executor {
	return &Executor{
		registry: registry,
		logger:   log.Named("sandbox"),
	}
}

// Execute runs one tool call and always returns an observation; no
// error escapes, including panics inside the tool.
func (e *Executor) Execute(ctx context.Context, call ToolCall) (obs *Observation) {
	start := time.Now()
	obs = &Observation{CallID: call.CallID, Status: StatusError, ErrorKind: ErrUnknown}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Tool panicked",
				zap.String("tool", call.ToolName),
				zap.Any("panic", r))
			obs.Status = StatusError
			obs.ErrorKind = ErrUnknown
			obs.ErrorMessage = fmt.Sprintf("tool panic: %v", r)
		}
		obs.DurationSeconds = time.Since(start).Seconds()
	}()

	t, err := e.registry.MustGet(call.ToolName)
	if err != nil {
		obs.ErrorMessage = err.Error()
		return obs
	}
	if err := tool.ValidateArgs(t.InputSchema(), call.Arguments); err != nil {
		obs.ErrorKind = ErrTypeMismatch
		obs.ErrorMessage = err.Error()
		obs.Suggestion = "fix the arguments to match the tool's input schema"
		return obs
	}

	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	result, err := t.Execute(ctx, call.Arguments)
	if ctx.Err() == context.DeadlineExceeded {
		obs.Status = StatusTimeout
		obs.ErrorKind = ""
		obs.ErrorMessage = "tool execution exceeded its time budget"
		return obs
	}
	if err != nil {
		obs.ErrorKind = Classify(err.Error())
		obs.ErrorMessage = err.Error()
		if obs.ErrorKind == ErrResourceExhausted {
			obs.Status = StatusResourceLimit
		}
		return obs
	}
	if result == nil {
		obs.ErrorMessage = "tool returned no result"
		return obs
	}
	if !result.Success {
		obs.ErrorMessage = "tool reported failure"
		if result.Error != nil {
			obs.ErrorMessage = result.Error.Message
			obs.Suggestion = result.Error.Suggestion
			obs.ErrorKind = Classify(result.Error.Code + " " + result.Error.Message)
		}
		if obs.ErrorKind == ErrResourceExhausted {
			obs.Status = StatusResourceLimit
		}
		return obs
	}

	obs.Status = StatusSuccess
	obs.ErrorKind = ""
	obs.Data = result.Data
	obs.Metadata = result.Metadata
	obs.RowCount = result.RowCount
	return obs
}

// Classify maps an error message onto a repair category.
func Classify(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "syntax"):
		return ErrSQLSyntax
	case strings.Contains(m, "no such column"),
		strings.Contains(m, "column not found"),
		strings.Contains(m, "unknown column"),
		strings.Contains(m, "does not exist"):
		return ErrMissingColumn
	case strings.Contains(m, "type mismatch"),
		strings.Contains(m, "invalid type"),
		strings.Contains(m, "cannot convert"),
		strings.Contains(m, "datatype"):
		return ErrTypeMismatch
	case strings.Contains(m, "row limit"),
		strings.Contains(m, "too many rows"),
		strings.Contains(m, "out of memory"),
		strings.Contains(m, "resource"):
		return ErrResourceExhausted
	default:
		return ErrUnknown
	}
}
