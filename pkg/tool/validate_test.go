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

package tool

import (
	"errors"
	"testing"
)

func testSchema() *JSONSchema {
	return NewObjectSchema("test tool", map[string]*JSONSchema{
		"query":       NewStringSchema("SQL query").WithLength(1, 10000),
		"row_limit":   NewIntegerSchema("max rows").WithRange(1, 200000),
		"chart_type":  NewStringSchema("chart kind").WithEnum("bar", "line", "scatter", "pie"),
		"columns":     NewArraySchema("column names", NewStringSchema("name")),
		"dry_run":     NewBooleanSchema("validate only"),
		"aggregation": NewObjectSchema("agg spec", map[string]*JSONSchema{"fn": NewStringSchema("fn")}, nil),
	}, []string{"query"})
}

func TestValidateArgs_Valid(t *testing.T) {
	params := map[string]any{
		"query":      "SELECT region, SUM(sales) FROM sales GROUP BY region",
		"row_limit":  1000,
		"chart_type": "bar",
		"columns":    []any{"region", "sales"},
		"dry_run":    false,
	}

	if err := ValidateArgs(testSchema(), params); err != nil {
		t.Fatalf("expected valid args, got %v", err)
	}
}

func TestValidateArgs_MissingRequired(t *testing.T) {
	err := ValidateArgs(testSchema(), map[string]any{"row_limit": 10})
	if err == nil {
		t.Fatal("expected error for missing required field")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Field != "query" {
		t.Errorf("expected field 'query', got %q", verr.Field)
	}
}

func TestValidateArgs_UnknownField(t *testing.T) {
	err := ValidateArgs(testSchema(), map[string]any{
		"query":  "SELECT 1",
		"querry": "typo",
	})
	if err == nil {
		t.Fatal("expected error for undeclared field")
	}
}

func TestValidateArgs_TypeMismatch(t *testing.T) {
	err := ValidateArgs(testSchema(), map[string]any{
		"query":     "SELECT 1",
		"row_limit": "many",
	})
	if err == nil {
		t.Fatal("expected type error")
	}
}

func TestValidateArgs_RangeViolation(t *testing.T) {
	err := ValidateArgs(testSchema(), map[string]any{
		"query":     "SELECT 1",
		"row_limit": 500000,
	})
	if err == nil {
		t.Fatal("expected range error for row_limit above maximum")
	}
}

func TestValidateArgs_EnumViolation(t *testing.T) {
	err := ValidateArgs(testSchema(), map[string]any{
		"query":      "SELECT 1",
		"chart_type": "hologram",
	})
	if err == nil {
		t.Fatal("expected enum error")
	}
}

func TestValidateArgs_FloatIntegerAfterJSONRoundTrip(t *testing.T) {
	// JSON decoding yields float64 for all numbers.
	err := ValidateArgs(testSchema(), map[string]any{
		"query":     "SELECT 1",
		"row_limit": float64(100),
	})
	if err != nil {
		t.Fatalf("expected float64 whole number to satisfy integer schema, got %v", err)
	}

	err = ValidateArgs(testSchema(), map[string]any{
		"query":     "SELECT 1",
		"row_limit": 99.5,
	})
	if err == nil {
		t.Fatal("expected fractional value to fail integer schema")
	}
}

func TestValidateArgs_NestedObject(t *testing.T) {
	err := ValidateArgs(testSchema(), map[string]any{
		"query":       "SELECT 1",
		"aggregation": map[string]any{"fn": "sum"},
	})
	if err != nil {
		t.Fatalf("expected nested object to validate, got %v", err)
	}

	err = ValidateArgs(testSchema(), map[string]any{
		"query":       "SELECT 1",
		"aggregation": map[string]any{"fn": 42},
	})
	if err == nil {
		t.Fatal("expected nested type error")
	}
}
