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

// Package tool defines the fixed set of validated operations available
// to the agent. Every tool declares a JSON Schema for its arguments;
// calls are validated against that schema before they reach the sandbox.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is one executable operation in the agent's fixed tool set.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "sql.run").
	Name() string

	// Description returns a human-readable description for LLM context.
	Description() string

	// InputSchema returns the JSON Schema for tool parameters.
	InputSchema() *JSONSchema

	// Execute runs the tool with schema-validated parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result represents the outcome of tool execution.
type Result struct {
	// Success indicates if the tool executed successfully.
	Success bool

	// Data contains the result payload (format varies by tool).
	Data any

	// Error contains structured error information if execution failed.
	Error *Error

	// Metadata contains tool-specific metadata (row counts, paths).
	Metadata map[string]any

	// RowCount is the number of rows produced, when applicable.
	RowCount int
}

// Error represents a tool execution error with structured information.
type Error struct {
	// Code is a machine-readable error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Retryable indicates if the operation can be retried with
	// corrected arguments.
	Retryable bool

	// Suggestion provides a hint for fixing the error.
	Suggestion string
}

// JSONSchema represents a JSON Schema for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []any                  `json:"enum,omitempty"`
	Default     any                    `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
}

// ToJSON converts the schema to JSON bytes.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// NewObjectSchema creates a new object schema with the given properties.
func NewObjectSchema(description string, properties map[string]*JSONSchema, required []string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// NewStringSchema creates a new string schema.
func NewStringSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: description}
}

// NewNumberSchema creates a new number schema.
func NewNumberSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "number", Description: description}
}

// NewIntegerSchema creates a new integer schema.
func NewIntegerSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "integer", Description: description}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "boolean", Description: description}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(description string, items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: "array", Description: description, Items: items}
}

// WithEnum adds enum values to the schema.
func (s *JSONSchema) WithEnum(values ...any) *JSONSchema {
	s.Enum = values
	return s
}

// WithDefault adds a default value to the schema.
func (s *JSONSchema) WithDefault(value any) *JSONSchema {
	s.Default = value
	return s
}

// WithRange adds min/max constraints to the schema.
func (s *JSONSchema) WithRange(min, max float64) *JSONSchema {
	s.Minimum = &min
	s.Maximum = &max
	return s
}

// WithLength adds length constraints to the schema.
func (s *JSONSchema) WithLength(minLen, maxLen int) *JSONSchema {
	s.MinLength = &minLen
	s.MaxLength = &maxLen
	return s
}
