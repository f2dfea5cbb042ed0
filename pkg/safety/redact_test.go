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

package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact_SensitiveKeys(t *testing.T) {
	in := map[string]any{
		"intent":            "sum sales by region",
		"connection_string": "postgres://user:hunter2@db:5432/sales",
		"api-key":           "sk-12345",
		"nested": map[string]any{
			"AccessToken": "abcdef",
			"row_limit":   1000,
		},
	}

	out := Redact(in).(map[string]any)

	assert.Equal(t, "sum sales by region", out["intent"])
	assert.Equal(t, RedactedValue, out["connection_string"])
	assert.Equal(t, RedactedValue, out["api-key"])

	nested := out["nested"].(map[string]any)
	assert.Equal(t, RedactedValue, nested["AccessToken"])
	assert.Equal(t, 1000, nested["row_limit"])

	// Input must be untouched.
	assert.Equal(t, "postgres://user:hunter2@db:5432/sales", in["connection_string"])
}

func TestRedact_CredentialShapedValues(t *testing.T) {
	in := []any{
		"Bearer eyJhbGciOiJIUzI1NiJ9.payload",
		"password=topsecret",
		"plain analysis note",
	}

	out := Redact(in).([]any)

	assert.Equal(t, RedactedValue, out[0])
	assert.Equal(t, RedactedValue, out[1])
	assert.Equal(t, "plain analysis note", out[2])
}

func TestRedact_CardNumbers(t *testing.T) {
	out := Redact("charge 4111 1111 1111 1111 recorded").(string)
	assert.Equal(t, "charge "+RedactedValue+" recorded", out)

	// A Luhn-invalid digit run of the same shape stays put.
	kept := Redact("order 4111 1111 1111 1112 shipped").(string)
	assert.Equal(t, "order 4111 1111 1111 1112 shipped", kept)
}

func TestIsCreditCard(t *testing.T) {
	assert.True(t, IsCreditCard("4111111111111111"))
	assert.True(t, IsCreditCard("5500-0000-0000-0004"))
	assert.False(t, IsCreditCard("4111111111111112"))
	assert.False(t, IsCreditCard("1234"))
	assert.False(t, IsCreditCard("not a number"))
}

func TestRedact_Primitives(t *testing.T) {
	assert.Equal(t, 42, Redact(42))
	assert.Equal(t, true, Redact(true))
	assert.Nil(t, Redact(nil))
}
