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
	"fmt"
	"math"
	"reflect"
)

// ValidationError reports an argument that does not satisfy the tool's
// declared schema. It is classified as a grounding error: a validation
// failure never reaches the sandbox.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Field, e.Reason)
}

// ValidateArgs checks params against an object schema. Required fields
// must be present; present fields must satisfy type, enum, range, and
// length constraints. Unknown fields are rejected so a mis-grounded
// argument name surfaces as a repairable error instead of being
// silently dropped.
func ValidateArgs(schema *JSONSchema, params map[string]any) error {
	if schema == nil || schema.Type != "object" {
		return fmt.Errorf("tool schema must be an object schema")
	}

	for _, req := range schema.Required {
		if _, ok := params[req]; !ok {
			return &ValidationError{Field: req, Reason: "required field missing"}
		}
	}

	for name, value := range params {
		prop, ok := schema.Properties[name]
		if !ok {
			return &ValidationError{Field: name, Reason: "not declared in tool schema"}
		}
		if err := validateValue(name, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(field string, schema *JSONSchema, value any) error {
	if value == nil {
		return &ValidationError{Field: field, Reason: "must not be null"}
	}

	switch schema.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return typeError(field, "string", value)
		}
		if schema.MinLength != nil && len(s) < *schema.MinLength {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("shorter than minLength %d", *schema.MinLength)}
		}
		if schema.MaxLength != nil && len(s) > *schema.MaxLength {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("longer than maxLength %d", *schema.MaxLength)}
		}

	case "number", "integer":
		n, ok := toFloat(value)
		if !ok {
			return typeError(field, schema.Type, value)
		}
		if schema.Type == "integer" && n != math.Trunc(n) {
			return &ValidationError{Field: field, Reason: "must be an integer"}
		}
		if schema.Minimum != nil && n < *schema.Minimum {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("below minimum %g", *schema.Minimum)}
		}
		if schema.Maximum != nil && n > *schema.Maximum {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("above maximum %g", *schema.Maximum)}
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(field, "boolean", value)
		}

	case "array":
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice {
			return typeError(field, "array", value)
		}
		if schema.Items != nil {
			for i := 0; i < rv.Len(); i++ {
				item := rv.Index(i).Interface()
				if err := validateValue(fmt.Sprintf("%s[%d]", field, i), schema.Items, item); err != nil {
					return err
				}
			}
		}

	case "object":
		m, ok := value.(map[string]any)
		if !ok {
			return typeError(field, "object", value)
		}
		if len(schema.Properties) > 0 {
			if err := ValidateArgs(schema, m); err != nil {
				return err
			}
		}

	default:
		return &ValidationError{Field: field, Reason: fmt.Sprintf("unsupported schema type %q", schema.Type)}
	}

	if len(schema.Enum) > 0 {
		for _, allowed := range schema.Enum {
			if enumEqual(allowed, value) {
				return nil
			}
		}
		return &ValidationError{Field: field, Reason: fmt.Sprintf("value %v not in enum %v", value, schema.Enum)}
	}
	return nil
}

func typeError(field, want string, got any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf("expected %s, got %T", want, got)}
}

// toFloat accepts the numeric types JSON decoding and literal Go code
// produce.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// enumEqual compares enum members loosely so 30 matches 30.0 after a
// JSON round trip.
func enumEqual(allowed, value any) bool {
	if af, ok := toFloat(allowed); ok {
		if vf, ok := toFloat(value); ok {
			return af == vf
		}
		return false
	}
	return allowed == value
}
